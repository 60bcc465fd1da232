// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/stacklok/edgeauth/pkg/authserver/scopes"
	servercrypto "github.com/stacklok/edgeauth/pkg/authserver/server/crypto"
	"github.com/stacklok/edgeauth/pkg/authserver/server/keys"
	"github.com/stacklok/edgeauth/pkg/authserver/server/tokens"
)

// DefaultJWKSCacheMaxAge is the Cache-Control max-age for the JWKS endpoint (1 hour).
// Keys are demoted before eviction, so a cached set stays valid for one rotation.
const DefaultJWKSCacheMaxAge = 3600

// healthTimeout bounds each dependency ping.
const healthTimeout = 2 * time.Second

// OIDCDiscoveryDocument is the OpenID Provider Metadata served at
// /.well-known/openid-configuration.
type OIDCDiscoveryDocument struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	JWKSURI                           string   `json:"jwks_uri"`
	UserinfoEndpoint                  string   `json:"userinfo_endpoint"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	SubjectTypesSupported             []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported  []string `json:"id_token_signing_alg_values_supported"`
	ScopesSupported                   []string `json:"scopes_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
	ClaimsSupported                   []string `json:"claims_supported"`
}

// DiscoveryDocument returns the metadata for the handler's domain.
func (h *Handler) DiscoveryDocument() OIDCDiscoveryDocument {
	return OIDCDiscoveryDocument{
		Issuer:                            h.domain,
		AuthorizationEndpoint:             h.domain + "/oauth/authorize",
		TokenEndpoint:                     h.domain + "/oauth/token",
		JWKSURI:                           h.domain + "/jwks",
		UserinfoEndpoint:                  h.domain + "/users",
		ResponseTypesSupported:            []string{"code"},
		SubjectTypesSupported:             []string{"public"},
		IDTokenSigningAlgValuesSupported:  []string{keys.Algorithm},
		ScopesSupported:                   []string{"openid", "profile", "email", scopes.ReadUserIDPTokens},
		TokenEndpointAuthMethodsSupported: []string{"client_secret_post"},
		GrantTypesSupported:               []string{"authorization_code"},
		CodeChallengeMethodsSupported:     []string{servercrypto.PKCEChallengeMethodS256},
		ClaimsSupported:                   tokens.ClaimsSupported,
	}
}

// OIDCDiscoveryHandler handles GET /.well-known/openid-configuration requests.
func (h *Handler) OIDCDiscoveryHandler(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", DefaultJWKSCacheMaxAge))
	writeJSON(w, http.StatusOK, h.DiscoveryDocument())
	return nil
}

// JWKSHandler handles GET /jwks requests.
// It returns the public keys used for verifying ID tokens.
func (h *Handler) JWKSHandler(w http.ResponseWriter, req *http.Request) error {
	jwks, err := h.keys.JWKS(req.Context())
	if err != nil {
		return fmt.Errorf("failed to load JWKS: %w", err)
	}

	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", DefaultJWKSCacheMaxAge))
	writeJSON(w, http.StatusOK, jwks)
	return nil
}

// HealthHandler handles GET /healthz requests.
func (h *Handler) HealthHandler(w http.ResponseWriter, req *http.Request) {
	for _, p := range h.healthChecks {
		if err := ping(req.Context(), p); err != nil {
			h.logger.WarnContext(req.Context(), "health check failed", "error", err)
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func ping(ctx context.Context, p Pinger) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	return p.Ping(ctx)
}
