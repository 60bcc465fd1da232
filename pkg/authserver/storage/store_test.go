// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/edgeauth/pkg/authserver/scopes"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(NewRedisKVWithClient(client, "")), mr
}

func TestStore_AuthorizeState(t *testing.T) {
	t.Parallel()

	store, mr := newTestStore(t)
	ctx := context.Background()

	state := &AuthorizeState{
		FlowID:       "flow-1",
		Kind:         FlowKindOIDC,
		Connection:   "google",
		PKCEVerifier: "verifier",
		Nonce:        "nonce",
		Scopes:       scopes.New("openid", "profile"),
		ClientID:     "client",
		RedirectURI:  "https://app.example.com/cb",
		State:        "client-state",
		CreatedAt:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.PutAuthorizeState(ctx, "csrf", state))
	assert.Equal(t, 30*time.Minute, mr.TTL("state:csrf"))

	got, err := store.TakeAuthorizeState(ctx, "csrf")
	require.NoError(t, err)
	assert.Equal(t, state, got)

	_, err = store.TakeAuthorizeState(ctx, "csrf")
	require.ErrorIs(t, err, ErrNotFound, "state must be single use")
}

func TestStore_AuthorizeStateExpires(t *testing.T) {
	t.Parallel()

	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutAuthorizeState(ctx, "csrf", &AuthorizeState{Connection: "github"}))
	mr.FastForward(AuthorizeStateTTL + time.Second)

	_, err := store.TakeAuthorizeState(ctx, "csrf")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_EmptyKeys(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()

	require.Error(t, store.PutAuthorizeState(ctx, "", &AuthorizeState{}))
	_, err := store.TakeAuthorizeState(ctx, "")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = store.TakeCodeFlow(ctx, "")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetAccessToken(ctx, "")
	require.ErrorIs(t, err, ErrNotFound)
	require.Error(t, store.PutConnectionTokens(ctx, "", &ConnectionTokens{}))
}

func TestStore_CodeFlow(t *testing.T) {
	t.Parallel()

	store, mr := newTestStore(t)
	ctx := context.Background()

	flow := &CodeFlowState{
		Response: TokenResponse{
			AccessToken: "at",
			TokenType:   "Bearer",
			ExpiresIn:   int64(AccessTokenTTL.Seconds()),
			Scope:       "openid",
			IDToken:     "id",
		},
		ClientID:    "client",
		RedirectURI: "https://app.example.com/cb",
	}
	require.NoError(t, store.PutCodeFlow(ctx, "code", flow))
	assert.Equal(t, 60*time.Second, mr.TTL("code:code"))

	got, err := store.TakeCodeFlow(ctx, "code")
	require.NoError(t, err)
	assert.Equal(t, flow, got)

	_, err = store.TakeCodeFlow(ctx, "code")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Tokens(t *testing.T) {
	t.Parallel()

	store, mr := newTestStore(t)
	ctx := context.Background()

	meta := &TokenMetadata{UserID: "github|42", Scopes: scopes.New("openid")}
	require.NoError(t, store.PutAccessToken(ctx, "access", meta, AccessTokenTTL))
	require.NoError(t, store.PutRefreshToken(ctx, "refresh", meta, RefreshTokenTTL))

	assert.Equal(t, AccessTokenTTL, mr.TTL("token:access:access"))
	assert.Equal(t, RefreshTokenTTL, mr.TTL("token:refresh:refresh"))

	got, err := store.GetAccessToken(ctx, "access")
	require.NoError(t, err)
	assert.Equal(t, meta, got)

	got, err = GetJSON[TokenMetadata](ctx, store.KV(), RefreshTokenKey("refresh"))
	require.NoError(t, err)
	assert.Equal(t, meta, got)

	_, err = store.GetAccessToken(ctx, "refresh")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.DeleteTokens(ctx, "access", "refresh"))
	assert.False(t, mr.Exists("token:access:access"))
	assert.False(t, mr.Exists("token:refresh:refresh"))
	_, err = store.GetAccessToken(ctx, "access")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ConnectionTokens(t *testing.T) {
	t.Parallel()

	store, mr := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetConnectionTokens(ctx, "github|42")
	require.ErrorIs(t, err, ErrNotFound)

	tokens := &ConnectionTokens{AccessToken: "gho_x", ExpiresIn: 3600}
	require.NoError(t, store.PutConnectionTokens(ctx, "github|42", tokens))
	assert.Equal(t, ConnectionTokensTTL, mr.TTL("connection:github|42:tokens"))

	got, err := store.GetConnectionTokens(ctx, "github|42")
	require.NoError(t, err)
	assert.Equal(t, tokens, got)
}
