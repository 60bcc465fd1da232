// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

/*
Package authserver assembles the edgeauth authorization server.

edgeauth federates sign-in to upstream identity providers (GitHub, Discord,
Google and any OIDC or OAuth2 provider described in configuration) and issues
its own authorization codes and RS256 ID tokens to registered applications.

	cfg, err := authserver.LoadConfig(viper.New(), "edgeauth.yaml")
	if err != nil {
		return err
	}
	srv, err := authserver.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer srv.Close()
	return srv.Run(ctx)

New opens the flow store (memory or Redis) and the SQLite database, makes sure
a signing key exists and builds the chi router from the handlers package. Run
serves HTTP and rotates signing keys until its context is cancelled.
*/
package authserver
