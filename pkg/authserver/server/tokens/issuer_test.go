// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package tokens

import (
	"context"
	"crypto/rsa"
	"errors"
	"strings"
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/stacklok/edgeauth/pkg/authserver/identity"
	"github.com/stacklok/edgeauth/pkg/authserver/scopes"
	servercrypto "github.com/stacklok/edgeauth/pkg/authserver/server/crypto"
	"github.com/stacklok/edgeauth/pkg/authserver/server/keys"
	"github.com/stacklok/edgeauth/pkg/authserver/storage"
)

const testIssuer = "https://auth.example.com"

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	issuer   *Issuer
	manager  *keys.Manager
	store    *storage.Store
	recorder *tracetest.SpanRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := func() time.Time { return testNow }
	kv := storage.NewMemoryKV(storage.WithClock(clock))
	t.Cleanup(func() { _ = kv.Close() })

	cfg := keys.DefaultConfig()
	cfg.KeyBits = servercrypto.MinRSAKeyBits
	manager, err := keys.NewManager(kv, cfg, keys.WithClock(clock))
	require.NoError(t, err)
	_, err = manager.Rotate(context.Background())
	require.NoError(t, err)

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	store := storage.NewStore(kv)
	issuer, err := NewIssuer(testIssuer, manager, store, WithClock(clock), WithTracerProvider(tp))
	require.NoError(t, err)

	return &fixture{issuer: issuer, manager: manager, store: store, recorder: recorder}
}

func testUser() *identity.User {
	return &identity.User{
		ID:            "github|42",
		Email:         identity.Ptr("octo@example.com"),
		EmailVerified: identity.Ptr(true),
		Username:      identity.Ptr("octocat"),
		Picture:       identity.Ptr("https://avatars.example.com/42"),
	}
}

func TestNewIssuer_Validation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	tests := []struct {
		name    string
		issuer  string
		keys    SigningKeySource
		store   *storage.Store
		wantErr string
	}{
		{name: "missing issuer", keys: f.manager, store: f.store, wantErr: "issuer is required"},
		{name: "missing keys", issuer: testIssuer, store: f.store, wantErr: "key source is required"},
		{name: "missing store", issuer: testIssuer, keys: f.manager, wantErr: "store is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewIssuer(tt.issuer, tt.keys, tt.store)
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestIssuer_Issue(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	user := testUser()

	code, err := f.issuer.Issue(ctx, Grant{
		User:        user,
		ClientID:    "client-1",
		RedirectURI: "https://app.example.com/cb",
		Scopes:      scopes.New("openid", "email"),
	})
	require.NoError(t, err)
	assert.Len(t, code, servercrypto.AuthCodeLength)

	flow, err := f.store.TakeCodeFlow(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, "client-1", flow.ClientID)
	assert.Equal(t, "https://app.example.com/cb", flow.RedirectURI)

	resp := flow.Response
	assert.Len(t, resp.AccessToken, servercrypto.AccessTokenLength)
	assert.Len(t, resp.RefreshToken, servercrypto.RefreshTokenLength)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, int64(604800), resp.ExpiresIn)
	assert.Equal(t, "email openid", resp.Scope)

	meta, err := f.store.GetAccessToken(ctx, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, meta.UserID)
	assert.True(t, meta.Scopes.Contains("email"))

	meta, err = storage.GetJSON[storage.TokenMetadata](ctx, f.store.KV(), storage.RefreshTokenKey(resp.RefreshToken))
	require.NoError(t, err)
	assert.Equal(t, user.ID, meta.UserID)

	claims := &IDTokenClaims{}
	_, err = f.manager.Verify(ctx, resp.IDToken, claims)
	require.NoError(t, err)
	assert.Equal(t, servercrypto.HalfHash(resp.AccessToken), claims.AccessTokenHash)
	assert.Equal(t, servercrypto.HalfHash(code), claims.CodeHash)

	spans := f.recorder.Ended()
	require.NotEmpty(t, spans)
	names := make([]string, 0, len(spans))
	for _, s := range spans {
		names = append(names, s.Name())
	}
	assert.Contains(t, names, "tokens.Issue")
	assert.Contains(t, names, "tokens.SignIDToken")
}

func TestIssuer_IssueRejectsIncompleteGrant(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := f.issuer.Issue(context.Background(), Grant{ClientID: "c"})
	require.ErrorContains(t, err, "user is required")

	_, err = f.issuer.Issue(context.Background(), Grant{User: testUser()})
	require.ErrorContains(t, err, "client_id is required")
}

func TestIssuer_SignIDTokenClaims(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	raw, err := f.issuer.SignIDToken(ctx, testUser(), "client-1", "access", "code")
	require.NoError(t, err)

	jwks, err := f.manager.JWKS(ctx)
	require.NoError(t, err)
	require.Len(t, jwks.Keys, 1)
	pub, ok := jwks.Keys[0].Key.(*rsa.PublicKey)
	require.True(t, ok)

	// Parse with an independent JWT library to check interoperability.
	parsed, err := gojwt.Parse(raw, func(tok *gojwt.Token) (any, error) {
		if tok.Header["kid"] != jwks.Keys[0].KeyID {
			return nil, errors.New("unexpected kid")
		}
		return pub, nil
	},
		gojwt.WithValidMethods([]string{"RS256"}),
		gojwt.WithTimeFunc(func() time.Time { return testNow }),
		gojwt.WithIssuer(testIssuer),
		gojwt.WithAudience("client-1"),
		gojwt.WithSubject("github|42"),
	)
	require.NoError(t, err)
	assert.Equal(t, "JWT", parsed.Header["typ"])

	mc, ok := parsed.Claims.(gojwt.MapClaims)
	require.True(t, ok)
	assert.Equal(t, float64(testNow.Unix()), mc["iat"])
	assert.Equal(t, float64(testNow.Add(36000*time.Second).Unix()), mc["exp"])
	assert.Equal(t, "octo@example.com", mc["email"])
	assert.Equal(t, true, mc["email_verified"])
	assert.Equal(t, "octocat", mc["preferred_username"])
	assert.Equal(t, servercrypto.HalfHash("access"), mc["at_hash"])
	assert.Equal(t, servercrypto.HalfHash("code"), mc["c_hash"])

	for _, absent := range []string{"name", "nickname", "family_name", "given_name", "phone_number", "phone_number_verified"} {
		assert.NotContains(t, mc, absent)
	}
}

func TestIssuer_SignIDTokenWithoutHashes(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	raw, err := f.issuer.SignIDToken(context.Background(), testUser(), "client-1", "", "")
	require.NoError(t, err)

	claims := &IDTokenClaims{}
	_, err = f.manager.Verify(context.Background(), raw, claims)
	require.NoError(t, err)
	assert.Empty(t, claims.AccessTokenHash)
	assert.Empty(t, claims.CodeHash)
}

type noKeys struct{}

func (noKeys) SigningKey(context.Context) (*keys.SigningKeyData, error) {
	return nil, keys.ErrNoSigningKey
}

func TestIssuer_IssueWithoutSigningKey(t *testing.T) {
	t.Parallel()

	kv := storage.NewMemoryKV()
	t.Cleanup(func() { _ = kv.Close() })
	issuer, err := NewIssuer(testIssuer, noKeys{}, storage.NewStore(kv))
	require.NoError(t, err)

	_, err = issuer.Issue(context.Background(), Grant{User: testUser(), ClientID: "c"})
	require.ErrorIs(t, err, keys.ErrNoSigningKey)
	assert.Zero(t, kv.Len(), "no token may outlive a failed issue")
}

// failingCodeKV rejects writes of authorization code flows.
type failingCodeKV struct {
	storage.KV
}

func (kv *failingCodeKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if strings.HasPrefix(key, storage.CodeKey("")) {
		return errors.New("kv unavailable")
	}
	return kv.KV.Set(ctx, key, value, ttl)
}

func TestIssuer_IssueRollsBackTokensWhenCodeFlowFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	inner := storage.NewMemoryKV()
	t.Cleanup(func() { _ = inner.Close() })
	issuer, err := NewIssuer(testIssuer, f.manager, storage.NewStore(&failingCodeKV{KV: inner}))
	require.NoError(t, err)

	_, err = issuer.Issue(ctx, Grant{User: testUser(), ClientID: "c", Scopes: scopes.New("openid")})
	require.ErrorContains(t, err, "failed to store code flow")
	assert.Zero(t, inner.Len())
}
