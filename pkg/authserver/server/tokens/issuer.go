// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package tokens mints the local tokens handed to client applications: opaque
// access and refresh tokens, the single-use authorization code, and the
// RS256-signed ID token.
package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/edgeauth/pkg/authserver/identity"
	"github.com/stacklok/edgeauth/pkg/authserver/scopes"
	servercrypto "github.com/stacklok/edgeauth/pkg/authserver/server/crypto"
	"github.com/stacklok/edgeauth/pkg/authserver/server/keys"
	"github.com/stacklok/edgeauth/pkg/authserver/storage"
)

const instrumentationName = "github.com/stacklok/edgeauth/pkg/authserver/server/tokens"

// IDTokenLifetime is the validity of issued ID tokens.
const IDTokenLifetime = 36000 * time.Second

// TokenTypeBearer is the token_type of every token response.
const TokenTypeBearer = "Bearer"

// SigningKeySource returns the key new ID tokens are signed with.
type SigningKeySource interface {
	SigningKey(ctx context.Context) (*keys.SigningKeyData, error)
}

// Grant describes a completed login to be turned into tokens.
type Grant struct {
	User        *identity.User
	ClientID    string
	RedirectURI string
	Scopes      scopes.Set
}

// Issuer mints and persists local tokens.
type Issuer struct {
	issuer string
	keys   SigningKeySource
	store  *storage.Store
	now    func() time.Time
	tracer trace.Tracer
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithClock sets the time source for iat and exp.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		i.now = now
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(i *Issuer) {
		i.tracer = tp.Tracer(instrumentationName)
	}
}

// NewIssuer creates an Issuer. issuer is the iss claim, normally the public
// base URL of the server.
func NewIssuer(issuer string, keySource SigningKeySource, store *storage.Store, opts ...Option) (*Issuer, error) {
	if issuer == "" {
		return nil, errors.New("issuer is required")
	}
	if keySource == nil {
		return nil, errors.New("key source is required")
	}
	if store == nil {
		return nil, errors.New("store is required")
	}

	i := &Issuer{
		issuer: issuer,
		keys:   keySource,
		store:  store,
		now:    time.Now,
		tracer: otel.GetTracerProvider().Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Issue mints an access token, a refresh token and an authorization code,
// signs an ID token bound to them, and persists the token metadata and the
// code flow. It returns the authorization code.
func (i *Issuer) Issue(ctx context.Context, g Grant) (string, error) {
	if g.User == nil || g.User.ID == "" {
		return "", errors.New("grant user is required")
	}
	if g.ClientID == "" {
		return "", errors.New("grant client_id is required")
	}

	ctx, span := i.tracer.Start(ctx, "tokens.Issue",
		trace.WithAttributes(attribute.String("client_id", g.ClientID)))
	defer span.End()

	code, err := i.issue(ctx, g)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return code, nil
}

func (i *Issuer) issue(ctx context.Context, g Grant) (string, error) {
	accessToken, err := servercrypto.RandomAlphanumeric(servercrypto.AccessTokenLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate access token: %w", err)
	}
	refreshToken, err := servercrypto.RandomAlphanumeric(servercrypto.RefreshTokenLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate refresh token: %w", err)
	}

	code, err := servercrypto.RandomAlphanumeric(servercrypto.AuthCodeLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate authorization code: %w", err)
	}

	// Nothing is stored until the ID token is signed.
	idToken, err := i.SignIDToken(ctx, g.User, g.ClientID, accessToken, code)
	if err != nil {
		return "", err
	}

	flow := &storage.CodeFlowState{
		Response: storage.TokenResponse{
			AccessToken:  accessToken,
			TokenType:    TokenTypeBearer,
			RefreshToken: refreshToken,
			ExpiresIn:    int64(storage.AccessTokenTTL / time.Second),
			Scope:        g.Scopes.String(),
			IDToken:      idToken,
		},
		ClientID:    g.ClientID,
		RedirectURI: g.RedirectURI,
	}

	if err := i.persist(ctx, g, accessToken, refreshToken, code, flow); err != nil {
		if delErr := i.store.DeleteTokens(context.WithoutCancel(ctx), accessToken, refreshToken); delErr != nil {
			err = errors.Join(err, delErr)
		}
		return "", err
	}
	return code, nil
}

func (i *Issuer) persist(
	ctx context.Context, g Grant, accessToken, refreshToken, code string, flow *storage.CodeFlowState,
) error {
	meta := &storage.TokenMetadata{UserID: g.User.ID, Scopes: g.Scopes}
	if err := i.store.PutAccessToken(ctx, accessToken, meta, storage.AccessTokenTTL); err != nil {
		return fmt.Errorf("failed to store access token: %w", err)
	}
	if err := i.store.PutRefreshToken(ctx, refreshToken, meta, storage.RefreshTokenTTL); err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	if err := i.store.PutCodeFlow(ctx, code, flow); err != nil {
		return fmt.Errorf("failed to store code flow: %w", err)
	}
	return nil
}

// SignIDToken signs an ID token for user with audience clientID. The at_hash
// and c_hash claims are derived from accessToken and code when they are set.
func (i *Issuer) SignIDToken(ctx context.Context, user *identity.User, clientID, accessToken, code string) (string, error) {
	ctx, span := i.tracer.Start(ctx, "tokens.SignIDToken")
	defer span.End()

	key, err := i.keys.SigningKey(ctx)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to load signing key: %w", err)
	}
	span.SetAttributes(attribute.String("kid", key.KeyID))

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: key.Key},
		(&jose.SignerOptions{}).WithType("JWT").WithHeader("kid", key.KeyID),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create signer: %w", err)
	}

	now := i.now()
	claims := NewIDTokenClaims(user)
	claims.Issuer = i.issuer
	claims.Audience = jwt.Audience{clientID}
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.Expiry = jwt.NewNumericDate(now.Add(IDTokenLifetime))
	if accessToken != "" {
		claims.AccessTokenHash = servercrypto.HalfHash(accessToken)
	}
	if code != "" {
		claims.CodeHash = servercrypto.HalfHash(code)
	}

	raw, err := jwt.Signed(signer).Claims(claims).Serialize()
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to sign ID token: %w", err)
	}
	return raw, nil
}
