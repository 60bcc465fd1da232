// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOIDCDiscoveryHandler(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.get("/.well-known/openid-configuration")

	require.Equal(t, http.StatusOK, rec.Code)
	var doc OIDCDiscoveryDocument
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, testDomain, doc.Issuer)
	assert.Equal(t, testDomain+"/oauth/authorize", doc.AuthorizationEndpoint)
	assert.Equal(t, testDomain+"/oauth/token", doc.TokenEndpoint)
	assert.Equal(t, testDomain+"/jwks", doc.JWKSURI)
	assert.Equal(t, testDomain+"/users", doc.UserinfoEndpoint)
	assert.Equal(t, []string{"code"}, doc.ResponseTypesSupported)
	assert.Equal(t, []string{"RS256"}, doc.IDTokenSigningAlgValuesSupported)
	assert.Equal(t, []string{"client_secret_post"}, doc.TokenEndpointAuthMethodsSupported)
	assert.Equal(t, []string{"S256"}, doc.CodeChallengeMethodsSupported)
	assert.Contains(t, doc.ScopesSupported, "read:user_idp_tokens")
	assert.Contains(t, doc.ClaimsSupported, "c_hash")
}

func TestDiscoveryDocument_TrimsTrailingSlash(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(p *Params) { p.Domain = testDomain + "/" })

	assert.Equal(t, testDomain+"/jwks", env.handler.DiscoveryDocument().JWKSURI)
}

func TestJWKSHandler(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.get("/jwks")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=3600", rec.Header().Get("Cache-Control"))

	var set jose.JSONWebKeySet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &set))
	require.Len(t, set.Keys, 1)
	assert.True(t, set.Keys[0].IsPublic())
	assert.Equal(t, "sig", set.Keys[0].Use)
	assert.Equal(t, "RS256", set.Keys[0].Algorithm)
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("down") }

func TestHealthHandler(t *testing.T) {
	t.Parallel()

	healthy := newTestEnv(t)
	rec := healthy.get("/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	unhealthy := newTestEnv(t, func(p *Params) { p.HealthChecks = append(p.HealthChecks, failingPinger{}) })
	rec = unhealthy.get("/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	_ = env.get("/oauth/authorize")
	rec := env.get("/metrics")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `edgeauth_authorize_requests_total{connection="",outcome="picker"} 1`)
}

func TestNewHandler_RequiresDependencies(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	tests := []struct {
		name    string
		mutate  func(*Params)
		wantErr string
	}{
		{name: "domain", mutate: func(p *Params) { p.Domain = "" }, wantErr: "domain is required"},
		{name: "connectors", mutate: func(p *Params) { p.Connectors = nil }, wantErr: "connectors are required"},
		{name: "applications", mutate: func(p *Params) { p.Applications = nil }, wantErr: "application store is required"},
		{name: "users", mutate: func(p *Params) { p.Users = nil }, wantErr: "user store is required"},
		{name: "flows", mutate: func(p *Params) { p.Flows = nil }, wantErr: "flow store is required"},
		{name: "issuer", mutate: func(p *Params) { p.Issuer = nil }, wantErr: "token issuer is required"},
		{name: "keys", mutate: func(p *Params) { p.Keys = nil }, wantErr: "key set is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := Params{
				Domain:       testDomain,
				Connectors:   env.handler.connectors,
				Applications: env.apps,
				Users:        env.users,
				Flows:        env.flows,
				Issuer:       env.handler.issuer,
				Keys:         env.keys,
			}
			tt.mutate(&p)
			_, err := NewHandler(p)
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}
