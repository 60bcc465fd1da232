// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package handlers provides the HTTP layer of the authorization server.
//
// Endpoints:
//   - GET  /oauth/authorize  provider picker, or redirect to the chosen provider
//   - GET  /oauth/callback   provider callback, mints the local tokens
//   - POST /oauth/token      authorization code exchange
//   - POST /oauth/refresh    provider refresh passthrough
//   - POST /application      client registration
//   - GET  /users            stored provider tokens of the bearer's user
//   - GET  /.well-known/openid-configuration, GET /jwks
//   - GET  /healthz, GET /metrics
//
// Handlers return errors instead of writing them; see writeError for how
// each kind of error reaches the client.
package handlers
