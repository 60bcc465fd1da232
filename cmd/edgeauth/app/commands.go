// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app provides the edgeauth command-line application.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/edgeauth/pkg/authserver"
	"github.com/stacklok/edgeauth/pkg/logger"
)

// NewRootCmd creates the edgeauth root command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "edgeauth",
		DisableAutoGenTag: true,
		Short:             "edgeauth - federating OAuth2 and OpenID Connect authorization server",
		Long: `edgeauth signs users in through upstream identity providers such as GitHub,
Discord or any OpenID Connect provider and issues its own authorization codes
and ID tokens to registered applications.

Configuration is read from the file given with --config and from EDGEAUTH_*
environment variables, e.g. EDGEAUTH_DOMAIN or EDGEAUTH_STORAGE_REDIS_PASSWORD.`,
		Run: func(cmd *cobra.Command, _ []string) {
			if err := cmd.Help(); err != nil {
				logger.Errorw("error displaying help", "error", err)
			}
		},
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			logger.Initialize()
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorw("error binding debug flag", "error", err)
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the edgeauth configuration file")
	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		logger.Errorw("error binding config flag", "error", err)
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newAppCmd())
	rootCmd.AddCommand(newKeysCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// loadConfig reads the configuration named by --config. v may carry flag
// bindings that override file and environment values.
func loadConfig(v *viper.Viper) (*authserver.Config, error) {
	if v == nil {
		v = viper.New()
	}
	return authserver.LoadConfig(v, viper.GetString("config"))
}
