// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stacklok/edgeauth/pkg/authserver"
	"github.com/stacklok/edgeauth/pkg/authserver/server/keys"
	flowstore "github.com/stacklok/edgeauth/pkg/authserver/storage"
	"github.com/stacklok/edgeauth/pkg/logger"
)

func newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage ID token signing keys",
		Long: `Manage the RSA keys that sign ID tokens. Keys live in the configured flow
store, so these commands are only useful with the redis backend or against a
store shared with a running server.`,
	}
	cmd.AddCommand(newKeysRotateCmd())
	cmd.AddCommand(newKeysJWKSCmd())
	return cmd
}

func newKeysRotateCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "Rotate the signing key",
		Long: `Rotate the signing key. The current key is kept for verification until the
next rotation. Without --force the key is only replaced once it is older than
keys.min_age.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withKeyManager(cmd, func(cfg *authserver.Config) {
				if force {
					cfg.Keys.MinAge = 0
				}
			}, func(m *keys.Manager) error {
				outcome, err := m.Rotate(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to rotate signing key: %w", err)
				}
				key, err := m.SigningKey(cmd.Context())
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s (kid %s)\n", outcome, key.KeyID)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Rotate even if the current key is younger than keys.min_age")
	return cmd
}

func newKeysJWKSCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "jwks",
		Short: "Print the public JSON Web Key Set",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withKeyManager(cmd, nil, func(m *keys.Manager) error {
				jwks, err := m.JWKS(cmd.Context())
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(jwks)
			})
		},
	}
}

func withKeyManager(cmd *cobra.Command, adjust func(*authserver.Config), fn func(*keys.Manager) error) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}
	if adjust != nil {
		adjust(cfg)
	}
	if cfg.Storage.Type != flowstore.TypeRedis {
		logger.Warnw("signing keys are kept in process memory; changes are lost when this command exits",
			"storage", cfg.Storage.Type)
	}

	kv, err := flowstore.New(cmd.Context(), &cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open flow store: %w", err)
	}
	defer func() { _ = kv.Close() }()

	manager, err := keys.NewManager(kv, cfg.Keys, keys.WithLogger(logger.Get()))
	if err != nil {
		return err
	}
	return fn(manager)
}
