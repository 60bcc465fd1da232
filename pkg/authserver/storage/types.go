// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package storage provides the ephemeral key-value store backing the
// authorization flow, with Redis and in-memory implementations.
package storage

//go:generate mockgen -destination=mocks/mock_kv.go -package=mocks -source=types.go KV

import (
	"context"
	"errors"
	"time"

	"github.com/stacklok/edgeauth/pkg/authserver/scopes"
)

// Lifetimes of the records kept in the store.
const (
	AuthorizeStateTTL   = 30 * time.Minute
	CodeFlowTTL         = 60 * time.Second
	AccessTokenTTL      = 7 * 24 * time.Hour
	RefreshTokenTTL     = 4 * 7 * 24 * time.Hour
	ConnectionTokensTTL = 4 * 7 * 24 * time.Hour

	// DefaultConnectionExpiresIn is assumed when a provider omits expires_in.
	DefaultConnectionExpiresIn = 7 * 24 * time.Hour
)

// ErrNotFound is returned when a key is absent or has expired.
var ErrNotFound = errors.New("storage: key not found")

// KV is a byte-oriented key-value store with per-entry expiry.
// A zero TTL stores the value without expiry.
type KV interface {
	// Set stores value under key.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetNX stores value under key only if key is absent. It reports whether
	// the value was stored.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// GetDel atomically returns and removes the value stored under key, or
	// returns ErrNotFound. Only one of any number of concurrent callers
	// observes the value.
	GetDel(ctx context.Context, key string) ([]byte, error)

	// Del removes key. Removing an absent key is not an error.
	Del(ctx context.Context, key string) error

	// DelIfEqual atomically removes key only while it still holds value. It
	// reports whether the key was removed.
	DelIfEqual(ctx context.Context, key string, value []byte) (bool, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend's resources.
	Close() error
}

// FlowKind distinguishes connector protocols in stored flow state.
type FlowKind string

const (
	// FlowKindOAuth2 marks a flow started against a plain OAuth2 connector.
	FlowKindOAuth2 FlowKind = "oauth2"
	// FlowKindOIDC marks a flow started against an OIDC connector.
	FlowKindOIDC FlowKind = "oidc"
)

// AuthorizeState is the pending authorization saved while the user is at the provider.
type AuthorizeState struct {
	FlowID       string     `json:"flow_id"`
	Kind         FlowKind   `json:"kind"`
	Connection   string     `json:"connection"`
	PKCEVerifier string     `json:"pkce_verifier"`
	Nonce        string     `json:"nonce,omitempty"`
	Scopes       scopes.Set `json:"scopes"`
	ClientID     string     `json:"client_id"`
	RedirectURI  string     `json:"redirect_uri"`
	State        string     `json:"state"`
	CreatedAt    time.Time  `json:"created_at"`
}

// ConnectionTokens are the provider tokens kept for a federated user.
type ConnectionTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
}

// TokenMetadata records who a locally issued token belongs to and what it grants.
type TokenMetadata struct {
	UserID string     `json:"user_id"`
	Scopes scopes.Set `json:"scopes"`
}

// TokenResponse is the RFC 6749 Section 5.1 response prepared at callback time.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	Scope        string `json:"scope,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
}

// CodeFlowState binds a prepared token response to the client that may redeem it.
type CodeFlowState struct {
	Response    TokenResponse `json:"response"`
	ClientID    string        `json:"client_id"`
	RedirectURI string        `json:"redirect_uri"`
}
