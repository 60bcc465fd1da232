// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Store keeps the records of the authorization flow in a KV backend under
// their documented keys and lifetimes.
type Store struct {
	kv KV
}

// NewStore wraps a KV backend.
func NewStore(kv KV) *Store {
	return &Store{kv: kv}
}

// KV returns the underlying backend.
func (s *Store) KV() KV {
	return s.kv
}

// -----------------------
// Authorize state
// -----------------------

// PutAuthorizeState saves the pending authorization for a CSRF token.
func (s *Store) PutAuthorizeState(ctx context.Context, csrf string, state *AuthorizeState) error {
	if csrf == "" {
		return errors.New("csrf token cannot be empty")
	}
	return PutJSON(ctx, s.kv, StateKey(csrf), state, AuthorizeStateTTL)
}

// TakeAuthorizeState loads and consumes the pending authorization for a CSRF token.
func (s *Store) TakeAuthorizeState(ctx context.Context, csrf string) (*AuthorizeState, error) {
	if csrf == "" {
		return nil, ErrNotFound
	}
	return TakeJSON[AuthorizeState](ctx, s.kv, StateKey(csrf))
}

// -----------------------
// Authorization codes
// -----------------------

// PutCodeFlow saves the prepared token response for an authorization code.
func (s *Store) PutCodeFlow(ctx context.Context, code string, flow *CodeFlowState) error {
	return PutJSON(ctx, s.kv, CodeKey(code), flow, CodeFlowTTL)
}

// TakeCodeFlow loads and consumes the prepared token response for an authorization code.
func (s *Store) TakeCodeFlow(ctx context.Context, code string) (*CodeFlowState, error) {
	if code == "" {
		return nil, ErrNotFound
	}
	return TakeJSON[CodeFlowState](ctx, s.kv, CodeKey(code))
}

// -----------------------
// Local tokens
// -----------------------

// PutAccessToken records the owner and scopes of an access token.
func (s *Store) PutAccessToken(ctx context.Context, token string, meta *TokenMetadata, ttl time.Duration) error {
	return PutJSON(ctx, s.kv, AccessTokenKey(token), meta, ttl)
}

// PutRefreshToken records the owner and scopes of a refresh token.
func (s *Store) PutRefreshToken(ctx context.Context, token string, meta *TokenMetadata, ttl time.Duration) error {
	return PutJSON(ctx, s.kv, RefreshTokenKey(token), meta, ttl)
}

// GetAccessToken looks up an access token.
func (s *Store) GetAccessToken(ctx context.Context, token string) (*TokenMetadata, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	return GetJSON[TokenMetadata](ctx, s.kv, AccessTokenKey(token))
}

// DeleteTokens removes the metadata of an access and refresh token pair.
func (s *Store) DeleteTokens(ctx context.Context, accessToken, refreshToken string) error {
	return errors.Join(
		s.kv.Del(ctx, AccessTokenKey(accessToken)),
		s.kv.Del(ctx, RefreshTokenKey(refreshToken)),
	)
}

// -----------------------
// Provider tokens
// -----------------------

// PutConnectionTokens saves the provider tokens of a user, replacing earlier ones.
func (s *Store) PutConnectionTokens(ctx context.Context, userID string, tokens *ConnectionTokens) error {
	if userID == "" {
		return errors.New("user id cannot be empty")
	}
	if err := PutJSON(ctx, s.kv, ConnectionTokensKey(userID), tokens, ConnectionTokensTTL); err != nil {
		return fmt.Errorf("failed to store connection tokens: %w", err)
	}
	return nil
}

// GetConnectionTokens loads the provider tokens of a user.
func (s *Store) GetConnectionTokens(ctx context.Context, userID string) (*ConnectionTokens, error) {
	return GetJSON[ConnectionTokens](ctx, s.kv, ConnectionTokensKey(userID))
}
