// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-jose/go-jose/v4"
	envmocks "github.com/stacklok/toolhive-core/env/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	servercrypto "github.com/stacklok/edgeauth/pkg/authserver/server/crypto"
	flowstore "github.com/stacklok/edgeauth/pkg/authserver/storage"
	"github.com/stacklok/edgeauth/pkg/authserver/upstream"
	"github.com/stacklok/edgeauth/pkg/storage/sqlite"
)

func testServerConfig() *Config {
	cfg := DefaultConfig()
	cfg.Domain = "http://localhost:8080"
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.Database.DSN = sqlite.InMemoryDSN
	cfg.Keys.KeyBits = servercrypto.MinRSAKeyBits
	cfg.Providers = map[string]upstream.ProviderConfig{
		"github": {ClientID: "gh-id", ClientSecret: "gh-secret"},
	}
	return cfg
}

func newTestServer(t *testing.T, cfg *Config, opts ...Option) *Server {
	t.Helper()
	opts = append([]Option{WithLogger(slog.New(slog.DiscardHandler))}, opts...)
	srv, err := New(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func serve(t *testing.T, h http.Handler, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNew_ServesFederatedFlow(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	envReader := envmocks.NewMockReader(ctrl)
	envReader.EXPECT().Getenv("GITHUB_CLIENT_ID").Return("env-client-id").AnyTimes()
	envReader.EXPECT().Getenv("GITHUB_CLIENT_SECRET").Return("env-secret").AnyTimes()

	cfg := testServerConfig()
	cfg.Providers = map[string]upstream.ProviderConfig{"github": {}}
	srv := newTestServer(t, cfg, WithEnvReader(envReader))
	h := srv.Handler()

	rec := serve(t, h, http.MethodGet, "/healthz", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = serve(t, h, http.MethodGet, "/jwks", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var jwks jose.JSONWebKeySet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jwks))
	assert.Len(t, jwks.Keys, 1)

	rec = serve(t, h, http.MethodGet, "/.well-known/openid-configuration", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var discovery map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &discovery))
	assert.Equal(t, cfg.Domain, discovery["issuer"])

	body := `{"name":"demo","redirect_uri":"https://app.example.com/cb","scopes":["openid","profile"]}`
	rec = serve(t, h, http.MethodPost, "/application", bytes.NewBufferString(body), "application/json")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var app struct {
		ClientID string `json:"client_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &app))
	require.NotEmpty(t, app.ClientID)

	q := url.Values{
		"connection":    {"github"},
		"client_id":     {app.ClientID},
		"response_type": {"code"},
		"scope":         {"openid"},
	}
	rec = serve(t, h, http.MethodGet, "/oauth/authorize?"+q.Encode(), nil, "")
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "github.com", loc.Host)
	assert.Equal(t, "/login/oauth/authorize", loc.Path)
	assert.Equal(t, "env-client-id", loc.Query().Get("client_id"))
	assert.Equal(t, "http://localhost:8080/oauth/callback", loc.Query().Get("redirect_uri"))
	assert.Equal(t, "S256", loc.Query().Get("code_challenge_method"))
	assert.NotEmpty(t, loc.Query().Get("state"))
}

func TestNew_RedisStorage(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)

	cfg := testServerConfig()
	cfg.Storage = flowstore.Config{
		Type: flowstore.TypeRedis,
		Redis: flowstore.RedisConfig{
			Addrs:     []string{mr.Addr()},
			KeyPrefix: "edgeauth:",
		},
	}
	srv := newTestServer(t, cfg)

	assert.True(t, mr.Exists("edgeauth:"+flowstore.SigningKeySlot))
	assert.False(t, mr.Exists("edgeauth:"+flowstore.RotationLockKey))

	key, err := srv.Keys().SigningKey(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, key.KeyID)

	rec := serve(t, srv.Handler(), http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	mr.Close()
	rec = serve(t, srv.Handler(), http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestNew_KeepsExistingSigningKey(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	cfg := testServerConfig()
	cfg.Storage = flowstore.Config{
		Type:  flowstore.TypeRedis,
		Redis: flowstore.RedisConfig{Addrs: []string{mr.Addr()}},
	}

	first := newTestServer(t, cfg)
	firstKey, err := first.Keys().SigningKey(context.Background())
	require.NoError(t, err)

	second := newTestServer(t, cfg)
	secondKey, err := second.Keys().SigningKey(context.Background())
	require.NoError(t, err)

	assert.Equal(t, firstKey.KeyID, secondKey.KeyID)
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		cfg    func() *Config
		errMsg string
	}{
		{name: "nil config", cfg: func() *Config { return nil }, errMsg: "config is required"},
		{name: "invalid config", cfg: func() *Config {
			c := testServerConfig()
			c.Domain = ""
			return c
		}, errMsg: "invalid config"},
		{name: "unreachable redis", cfg: func() *Config {
			c := testServerConfig()
			c.Storage = flowstore.Config{
				Type: flowstore.TypeRedis,
				Redis: flowstore.RedisConfig{
					Addrs:       []string{"127.0.0.1:1"},
					DialTimeout: 100 * time.Millisecond,
				},
			}
			return c
		}, errMsg: "failed to open flow store"},
		{name: "unknown provider without endpoints", cfg: func() *Config {
			c := testServerConfig()
			c.Providers = map[string]upstream.ProviderConfig{
				"acme": {ClientID: "id", ClientSecret: "secret"},
			}
			return c
		}, errMsg: `connector "acme"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv, err := New(context.Background(), tt.cfg(), WithLogger(slog.New(slog.DiscardHandler)))
			require.Error(t, err)
			assert.Nil(t, srv)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestServer_ServeAndShutdown(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, testServerConfig())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	base := "http://" + ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}

	_, err = http.Get(base + "/healthz")
	assert.Error(t, err)
}

func TestServer_RunListenError(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	cfg := testServerConfig()
	cfg.ListenAddr = ln.Addr().String()
	srv := newTestServer(t, cfg)

	err = srv.Run(context.Background())
	require.ErrorContains(t, err, "failed to listen on")
}
