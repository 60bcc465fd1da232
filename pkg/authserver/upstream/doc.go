// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package upstream provides the connectors that federate login to external
// identity providers.
//
// Two connector kinds exist:
//
//   - OAuth2Connector talks to plain OAuth 2.0 providers with static
//     authorization and token URLs. Because such providers have no standard
//     profile endpoint, the user profile is fetched by a provider-specific
//     ProfileAdapter (GitHub, Discord).
//   - OIDCConnector discovers its endpoints from the issuer, verifies the ID
//     token (signature, issuer, audience, expiry, nonce and at_hash) and builds
//     the profile from the userinfo endpoint or the verified claims.
//
// Every authorization request uses PKCE (S256) and a fresh CSRF state. User ids
// produced by connectors are always prefixed with the connector name, as in
// "github|42".
//
// Connectors are described by an embedded YAML catalog and enabled through
// configuration; the Registry resolves a connection name to its Connector.
package upstream
