// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/edgeauth/pkg/authserver"
	"github.com/stacklok/edgeauth/pkg/logger"
	"github.com/stacklok/edgeauth/pkg/versions"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authorization server",
		Long: `Start the authorization server. It serves the OAuth2 and OpenID Connect
endpoints, rotates signing keys in the background and shuts down gracefully on
SIGINT or SIGTERM.`,
		RunE: runServe,
	}
	cmd.Flags().String("listen-addr", authserver.DefaultListenAddr, "Address to listen on")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	v := viper.New()
	if err := v.BindPFlag("listen_addr", cmd.Flags().Lookup("listen-addr")); err != nil {
		return fmt.Errorf("failed to bind listen-addr flag: %w", err)
	}
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}

	srv, err := authserver.New(ctx, cfg, authserver.WithLogger(logger.Get()))
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer func() {
		if err := srv.Close(); err != nil {
			logger.Warnw("failed to release server resources", "error", err)
		}
	}()

	logger.Infof("edgeauth %s", versions.GetVersionInfo().Version)
	logger.Infow("starting edgeauth",
		"domain", cfg.Domain,
		"listen_addr", cfg.ListenAddr,
		"storage", cfg.Storage.Type,
	)
	return srv.Run(ctx)
}
