// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/stacklok/edgeauth/pkg/authserver/identity"
)

// Compile-time interface compliance check.
var _ Connector = (*OIDCConnector)(nil)

// defaultOIDCScopes is used when the connector has no configured scopes.
var defaultOIDCScopes = []string{oidc.ScopeOpenID, "profile", "email"}

// OIDCConnector implements Connector for OIDC-compliant identity providers.
// Discovery runs on first use and is cached; a failed discovery is retried on
// the next request.
type OIDCConnector struct {
	config     *Config
	scopes     []string
	httpClient *http.Client
	logger     *slog.Logger

	mu           sync.Mutex
	provider     *oidc.Provider
	verifier     *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config
}

// NewOIDCConnector creates a connector for a discoverable issuer. No network
// request is made until the connector is first used.
func NewOIDCConnector(config *Config, opts ...Option) (*OIDCConnector, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if config.Kind != KindOIDC {
		return nil, fmt.Errorf("config.Kind must be %q, got %q", KindOIDC, config.Kind)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	scopes := config.Scopes
	if len(scopes) == 0 {
		scopes = defaultOIDCScopes
	}
	// Without openid the provider returns no ID token.
	if !slices.Contains(scopes, oidc.ScopeOpenID) {
		return nil, fmt.Errorf("openid scope is required for oidc connector %q", config.Name)
	}

	o := newConnectorOptions(opts)
	return &OIDCConnector{
		config:     config,
		scopes:     scopes,
		httpClient: o.httpClient,
		logger:     o.logger.With("connection", config.Name),
	}, nil
}

// Name returns the connection name.
func (c *OIDCConnector) Name() string {
	return c.config.Name
}

// Kind returns KindOIDC.
func (*OIDCConnector) Kind() Kind {
	return KindOIDC
}

// discover returns the cached provider state, running discovery if needed.
func (c *OIDCConnector) discover(ctx context.Context) (*oidc.Provider, *oauth2.Config, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.provider != nil {
		return c.provider, c.oauth2Config, nil
	}

	c.logger.Debug("discovering OIDC endpoints", "issuer", c.config.Issuer)

	// The provider keeps this context for later JWKS refreshes, so it must
	// outlive the request that triggered discovery.
	discoveryCtx := oidc.ClientContext(context.WithoutCancel(ctx), c.httpClient)
	provider, err := oidc.NewProvider(discoveryCtx, c.config.Issuer)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to discover OIDC endpoints: %w", err)
	}

	endpoint := provider.Endpoint()
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	c.provider = provider
	c.verifier = provider.Verifier(&oidc.Config{ClientID: c.config.ClientID})
	c.oauth2Config = &oauth2.Config{
		ClientID:     c.config.ClientID,
		ClientSecret: c.config.ClientSecret,
		RedirectURL:  c.config.RedirectURL,
		Scopes:       c.scopes,
		Endpoint:     endpoint,
	}

	c.logger.Debug("oidc connector discovered",
		"authorization_endpoint", endpoint.AuthURL,
		"token_endpoint", endpoint.TokenURL,
		"has_userinfo", provider.UserInfoEndpoint() != "",
	)
	return c.provider, c.oauth2Config, nil
}

// BuildAuthorizationRequest builds the provider redirect with PKCE, state and nonce.
func (c *OIDCConnector) BuildAuthorizationRequest(ctx context.Context, requested []string) (*AuthorizationRequest, error) {
	_, cfg, err := c.discover(ctx)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("building authorization URL",
		"authorization_endpoint", cfg.Endpoint.AuthURL,
		"requested_scopes", len(requested),
	)
	return buildAuthorizationRequest(cfg, true), nil
}

// ExchangeCode exchanges the code and verifies the returned ID token,
// including its nonce and, when present, its at_hash.
func (c *OIDCConnector) ExchangeCode(ctx context.Context, code, pkceVerifier, nonce string) (*Tokens, error) {
	_, cfg, err := c.discover(ctx)
	if err != nil {
		return nil, err
	}

	tokens, err := exchangeCode(ctx, c.httpClient, cfg, code, pkceVerifier, c.logger)
	if err != nil {
		return nil, err
	}

	if tokens.IDToken == "" {
		return nil, ErrMissingIDToken
	}

	idToken, err := c.verifyIDToken(ctx, tokens.IDToken, nonce)
	if err != nil {
		return nil, err
	}

	if idToken.AccessTokenHash != "" {
		if err := idToken.VerifyAccessToken(tokens.AccessToken); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrClaimsVerification, err)
		}
	}

	tokens.idToken = idToken
	return tokens, nil
}

// verifyIDToken checks the signature, issuer, audience and expiry with go-oidc,
// then the nonce. Every failure is a claims verification failure.
func (c *OIDCConnector) verifyIDToken(ctx context.Context, rawIDToken, nonce string) (*oidc.IDToken, error) {
	c.mu.Lock()
	verifier := c.verifier
	c.mu.Unlock()

	idToken, err := verifier.Verify(oidc.ClientContext(ctx, c.httpClient), rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to verify ID token: %w", ErrClaimsVerification, err)
	}

	if nonce != "" {
		if idToken.Nonce == "" {
			return nil, fmt.Errorf("%w: ID token missing nonce claim", ErrClaimsVerification)
		}
		if idToken.Nonce != nonce {
			return nil, fmt.Errorf("%w: ID token nonce does not match", ErrClaimsVerification)
		}
	}
	return idToken, nil
}

// FetchProfile builds the user from the userinfo endpoint, or from the
// verified ID token claims when the provider has no userinfo endpoint.
func (c *OIDCConnector) FetchProfile(ctx context.Context, tokens *Tokens) (*identity.User, error) {
	if tokens == nil || tokens.AccessToken == "" {
		return nil, errors.New("access token is required")
	}

	provider, _, err := c.discover(ctx)
	if err != nil {
		return nil, err
	}

	idToken := tokens.idToken
	if idToken == nil {
		if tokens.IDToken == "" {
			return nil, ErrMissingIDToken
		}
		if idToken, err = c.verifyIDToken(ctx, tokens.IDToken, ""); err != nil {
			return nil, err
		}
	}

	var raw json.RawMessage
	if provider.UserInfoEndpoint() == "" {
		if err := idToken.Claims(&raw); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrProfileFetch, err)
		}
		return userFromOIDCClaims(c.config.Name, raw)
	}

	info, err := provider.UserInfo(
		oidc.ClientContext(ctx, c.httpClient),
		oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tokens.AccessToken, TokenType: "Bearer"}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProfileFetch, err)
	}
	// A different subject means the userinfo response is for another user.
	if info.Subject != idToken.Subject {
		return nil, fmt.Errorf("%w: userinfo subject does not match ID token subject", ErrClaimsVerification)
	}
	if err := info.Claims(&raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProfileFetch, err)
	}
	return userFromOIDCClaims(c.config.Name, raw)
}

// RefreshTokens refreshes the upstream tokens. A refreshed ID token, when
// returned, is not re-verified because the local tokens are not reissued.
func (c *OIDCConnector) RefreshTokens(ctx context.Context, refreshToken string) (*Tokens, error) {
	_, cfg, err := c.discover(ctx)
	if err != nil {
		return nil, err
	}
	return refreshTokens(ctx, c.httpClient, cfg, refreshToken, c.logger)
}
