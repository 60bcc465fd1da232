// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/stacklok/edgeauth/pkg/authserver/identity"
	servercrypto "github.com/stacklok/edgeauth/pkg/authserver/server/crypto"
)

// Compile-time interface compliance check.
var _ Connector = (*OAuth2Connector)(nil)

// OAuth2Connector implements Connector for pure OAuth 2.0 providers.
type OAuth2Connector struct {
	config       *Config
	oauth2Config *oauth2.Config
	profile      ProfileAdapter
	httpClient   *http.Client
	logger       *slog.Logger
}

// NewOAuth2Connector creates a connector for a provider with explicit endpoints.
// The profile adapter is looked up by config.Profile.
func NewOAuth2Connector(config *Config, opts ...Option) (*OAuth2Connector, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if config.Kind != KindOAuth2 {
		return nil, fmt.Errorf("config.Kind must be %q, got %q", KindOAuth2, config.Kind)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	adapter, err := LookupProfileAdapter(config.Profile)
	if err != nil {
		return nil, err
	}

	o := newConnectorOptions(opts)
	return &OAuth2Connector{
		config: config,
		oauth2Config: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Scopes:       config.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   config.AuthURL,
				TokenURL:  config.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		profile:    adapter,
		httpClient: o.httpClient,
		logger:     o.logger.With("connection", config.Name),
	}, nil
}

// Name returns the connection name.
func (c *OAuth2Connector) Name() string {
	return c.config.Name
}

// Kind returns KindOAuth2.
func (*OAuth2Connector) Kind() Kind {
	return KindOAuth2
}

// BuildAuthorizationRequest builds the provider redirect with a fresh PKCE pair and state.
func (c *OAuth2Connector) BuildAuthorizationRequest(_ context.Context, requested []string) (*AuthorizationRequest, error) {
	c.logger.Debug("building authorization URL",
		"authorization_endpoint", c.config.AuthURL,
		"requested_scopes", len(requested),
	)
	return buildAuthorizationRequest(c.oauth2Config, false), nil
}

// ExchangeCode exchanges an authorization code for tokens.
func (c *OAuth2Connector) ExchangeCode(ctx context.Context, code, pkceVerifier, _ string) (*Tokens, error) {
	return exchangeCode(ctx, c.httpClient, c.oauth2Config, code, pkceVerifier, c.logger)
}

// FetchProfile fetches the user through the connector's profile adapter.
func (c *OAuth2Connector) FetchProfile(ctx context.Context, tokens *Tokens) (*identity.User, error) {
	if tokens == nil || tokens.AccessToken == "" {
		return nil, errors.New("access token is required")
	}

	user, err := c.profile.FetchProfile(ctx, c.httpClient, c.config.APIBaseURL, tokens.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProfileFetch, err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("%w: provider returned no user id", ErrProfileFetch)
	}
	user.ID = identity.UserID(c.config.Name, user.ID)
	return user, nil
}

// RefreshTokens refreshes the upstream tokens.
func (c *OAuth2Connector) RefreshTokens(ctx context.Context, refreshToken string) (*Tokens, error) {
	return refreshTokens(ctx, c.httpClient, c.oauth2Config, refreshToken, c.logger)
}

// buildAuthorizationRequest generates the per-request secrets and the provider URL.
func buildAuthorizationRequest(cfg *oauth2.Config, withNonce bool) *AuthorizationRequest {
	req := &AuthorizationRequest{
		State:        rand.Text(),
		PKCEVerifier: servercrypto.GeneratePKCEVerifier(),
	}

	opts := servercrypto.PKCEAuthCodeOptions(req.PKCEVerifier)
	if withNonce {
		req.Nonce = rand.Text()
		opts = append(opts, oauth2.SetAuthURLParam("nonce", req.Nonce))
	}

	req.URL = cfg.AuthCodeURL(req.State, opts...)
	return req
}

func exchangeCode(
	ctx context.Context,
	client *http.Client,
	cfg *oauth2.Config,
	code, pkceVerifier string,
	logger *slog.Logger,
) (*Tokens, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: authorization code is required", ErrTokenExchange)
	}

	logger.Debug("exchanging authorization code for tokens",
		"token_endpoint", cfg.Endpoint.TokenURL,
		"has_pkce_verifier", pkceVerifier != "",
	)

	var opts []oauth2.AuthCodeOption
	if pkceVerifier != "" {
		opts = append(opts, oauth2.VerifierOption(pkceVerifier))
	}

	tok, err := cfg.Exchange(withHTTPClient(ctx, client), code, opts...)
	if err != nil {
		return nil, tokenError(err, logger)
	}

	tokens, err := tokensFromOAuth2(tok)
	if err != nil {
		return nil, err
	}

	logger.Debug("authorization code exchange successful",
		"has_refresh_token", tokens.RefreshToken != "",
		"has_id_token", tokens.IDToken != "",
	)
	return tokens, nil
}

func refreshTokens(
	ctx context.Context,
	client *http.Client,
	cfg *oauth2.Config,
	refreshToken string,
	logger *slog.Logger,
) (*Tokens, error) {
	if refreshToken == "" {
		return nil, errors.New("refresh token is required")
	}

	logger.Debug("refreshing tokens", "token_endpoint", cfg.Endpoint.TokenURL)

	// An expired token forces the TokenSource to run the refresh grant.
	src := cfg.TokenSource(withHTTPClient(ctx, client), &oauth2.Token{
		RefreshToken: refreshToken,
		Expiry:       time.Unix(1, 0),
	})
	tok, err := src.Token()
	if err != nil {
		return nil, tokenError(err, logger)
	}
	return tokensFromOAuth2(tok)
}

// tokensFromOAuth2 converts and validates an x/oauth2 token.
func tokensFromOAuth2(tok *oauth2.Token) (*Tokens, error) {
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("%w: token response missing access_token", ErrTokenExchange)
	}
	if tok.TokenType != "" && tok.Type() != "Bearer" {
		return nil, fmt.Errorf("%w: unexpected token_type %q", ErrTokenExchange, tok.TokenType)
	}

	tokens := &Tokens{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.Type(),
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    tok.ExpiresIn,
		ExpiresAt:    tok.Expiry,
	}
	if idToken, ok := tok.Extra("id_token").(string); ok {
		tokens.IDToken = idToken
	}
	return tokens, nil
}

// tokenError maps an x/oauth2 failure to ErrTokenExchange. OAuth error
// responses are standardized and safe to return; anything else is logged.
func tokenError(err error, logger *slog.Logger) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.ErrorCode != "" {
			return fmt.Errorf("%w: %s - %s", ErrTokenExchange, retrieveErr.ErrorCode, retrieveErr.ErrorDescription)
		}
		statusCode := 0
		if retrieveErr.Response != nil {
			statusCode = retrieveErr.Response.StatusCode
		}
		logger.Debug("token request failed",
			"status", statusCode,
			"body", string(retrieveErr.Body))
		return fmt.Errorf("%w: status %d", ErrTokenExchange, statusCode)
	}
	return fmt.Errorf("%w: %w", ErrTokenExchange, err)
}

// withHTTPClient makes x/oauth2 and go-oidc use client for requests derived from ctx.
func withHTTPClient(ctx context.Context, client *http.Client) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, client)
}
