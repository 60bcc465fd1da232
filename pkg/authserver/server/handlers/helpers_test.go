// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/edgeauth/pkg/authserver/identity"
	"github.com/stacklok/edgeauth/pkg/authserver/scopes"
	servercrypto "github.com/stacklok/edgeauth/pkg/authserver/server/crypto"
	"github.com/stacklok/edgeauth/pkg/authserver/server/keys"
	"github.com/stacklok/edgeauth/pkg/authserver/server/tokens"
	flowstore "github.com/stacklok/edgeauth/pkg/authserver/storage"
	"github.com/stacklok/edgeauth/pkg/authserver/upstream"
	upstreammocks "github.com/stacklok/edgeauth/pkg/authserver/upstream/mocks"
	storemocks "github.com/stacklok/edgeauth/pkg/storage/mocks"
	"github.com/stacklok/edgeauth/pkg/telemetry"
)

const (
	testDomain      = "https://auth.example.com"
	testClientID    = "client-123"
	testSecret      = "secret-xyz"
	testRedirectURI = "https://app.example.com/cb"
	testConnection  = "github"
)

// testEnv wires a Handler to mocked stores and connector, a miniredis-backed
// flow store and a real key manager.
type testEnv struct {
	handler *Handler
	router  http.Handler
	conn    *upstreammocks.MockConnector
	apps    *storemocks.MockApplicationStore
	users   *storemocks.MockUserStore
	flows   *flowstore.Store
	mr      *miniredis.Miniredis
	keys    *keys.Manager
	metrics *telemetry.Metrics
}

func newTestEnv(t *testing.T, opts ...func(*Params)) *testEnv {
	t.Helper()
	ctx := context.Background()

	ctrl := gomock.NewController(t)
	conn := upstreammocks.NewMockConnector(ctrl)
	conn.EXPECT().Name().Return(testConnection).AnyTimes()
	conn.EXPECT().Kind().Return(upstream.KindOAuth2).AnyTimes()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	kv := flowstore.NewRedisKVWithClient(client, "")
	flows := flowstore.NewStore(kv)

	keyConfig := keys.DefaultConfig()
	keyConfig.KeyBits = servercrypto.MinRSAKeyBits
	manager, err := keys.NewManager(kv, keyConfig)
	require.NoError(t, err)
	_, err = manager.Rotate(ctx)
	require.NoError(t, err)

	issuer, err := tokens.NewIssuer(testDomain, manager, flows)
	require.NoError(t, err)

	env := &testEnv{
		conn:    conn,
		apps:    storemocks.NewMockApplicationStore(ctrl),
		users:   storemocks.NewMockUserStore(ctrl),
		flows:   flows,
		mr:      mr,
		keys:    manager,
		metrics: telemetry.NewMetrics(),
	}

	params := Params{
		Domain:       testDomain,
		Connectors:   upstream.NewStaticRegistry(conn),
		Applications: env.apps,
		Users:        env.users,
		Flows:        flows,
		Issuer:       issuer,
		Keys:         manager,
		Metrics:      env.metrics,
		Logger:       slog.New(slog.DiscardHandler),
		HealthChecks: []Pinger{kv},
	}
	for _, opt := range opts {
		opt(&params)
	}

	env.handler, err = NewHandler(params)
	require.NoError(t, err)
	env.router = env.handler.Routes()
	return env
}

func testApplication() *identity.Application {
	return &identity.Application{
		ClientID:     testClientID,
		ClientSecret: testSecret,
		RedirectURI:  testRedirectURI,
		Name:         "Test App",
		Scopes:       scopes.New("openid", "profile"),
	}
}

func (e *testEnv) get(target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func (e *testEnv) postForm(target string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", formContentType)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// keysWithPrefix lists the miniredis keys starting with prefix.
func (e *testEnv) keysWithPrefix(prefix string) []string {
	var out []string
	for _, k := range e.mr.Keys() {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out
}

func requireProtocolError(t *testing.T, rec *httptest.ResponseRecorder, wantError, wantDescription string) {
	t.Helper()
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body protocolErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, wantError, body.Error)
	if wantDescription != "" {
		assert.Equal(t, wantDescription, body.Description)
	}
}

func requireTextError(t *testing.T, rec *httptest.ResponseRecorder, wantCode int, wantBody string) {
	t.Helper()
	require.Equal(t, wantCode, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, wantBody, strings.TrimSpace(string(body)))
}
