// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/stacklok/toolhive-core/httperr"

	"github.com/stacklok/edgeauth/pkg/authserver/identity"
)

//go:generate mockgen -destination=mocks/mock_connector.go -package=mocks -source=types.go Connector

// maxResponseSize is the maximum allowed response size for HTTP requests to prevent DoS.
const maxResponseSize = 1024 * 1024 // 1MB

// Kind identifies the protocol a connector speaks.
type Kind string

const (
	// KindOAuth2 is for pure OAuth 2.0 providers with explicit endpoints.
	KindOAuth2 Kind = "oauth2"
	// KindOIDC is for OpenID Connect providers that support discovery.
	KindOIDC Kind = "oidc"
)

var (
	// ErrTokenExchange is returned when the provider token endpoint fails.
	ErrTokenExchange = errors.New("token exchange failed")

	// ErrClaimsVerification is returned when the ID token signature or its
	// claims (nonce, at_hash), or the userinfo subject, do not match what was
	// expected.
	ErrClaimsVerification = errors.New("claims verification failed")

	// ErrMissingIDToken is returned when an OIDC token response has no id_token.
	ErrMissingIDToken = errors.New("token response missing id_token")

	// ErrProfileFetch is returned when the provider profile cannot be read.
	ErrProfileFetch = errors.New("failed to fetch user profile")

	// ErrUnknownConnection is returned when no connector is registered under a name.
	ErrUnknownConnection = httperr.WithCode(errors.New("invalid connection"), http.StatusBadRequest)
)

// AuthorizationRequest is the result of BuildAuthorizationRequest. Everything
// except URL must be kept server-side until the callback.
type AuthorizationRequest struct {
	// URL is the provider authorization URL to redirect the user agent to.
	URL string
	// State is the CSRF token round-tripped through the provider.
	State string
	// PKCEVerifier is the PKCE code verifier whose S256 challenge is in URL.
	PKCEVerifier string
	// Nonce is the OIDC nonce. Empty for OAuth2 connectors.
	Nonce string
}

// Tokens represents the tokens obtained from an upstream provider.
type Tokens struct {
	AccessToken  string
	TokenType    string
	RefreshToken string
	IDToken      string

	// ExpiresIn is the lifetime in seconds reported by the provider, or zero.
	ExpiresIn int64
	// ExpiresAt is when the access token expires, or zero if unknown.
	ExpiresAt time.Time

	// idToken is the verified ID token, set by OIDCConnector.ExchangeCode.
	idToken *oidc.IDToken
}

// Connector handles communication with one upstream identity provider.
type Connector interface {
	// Name returns the connection name, which is also the user id prefix.
	Name() string

	// Kind returns the protocol kind of the connector.
	Kind() Kind

	// BuildAuthorizationRequest generates a fresh PKCE pair, CSRF state and,
	// for OIDC, a nonce, and returns the provider redirect URL. The requested
	// scopes are the client's scopes; the provider is always asked for the
	// connector's own configured scopes.
	BuildAuthorizationRequest(ctx context.Context, requested []string) (*AuthorizationRequest, error)

	// ExchangeCode exchanges an authorization code for tokens. The nonce is
	// ignored by OAuth2 connectors.
	ExchangeCode(ctx context.Context, code, pkceVerifier, nonce string) (*Tokens, error)

	// FetchProfile returns the normalized user for the tokens. The user id is
	// prefixed with the connector name.
	FetchProfile(ctx context.Context, tokens *Tokens) (*identity.User, error)

	// RefreshTokens runs a refresh_token grant against the provider.
	RefreshTokens(ctx context.Context, refreshToken string) (*Tokens, error)
}
