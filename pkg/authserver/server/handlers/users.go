// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stacklok/edgeauth/pkg/authserver/scopes"
	flowstore "github.com/stacklok/edgeauth/pkg/authserver/storage"
)

// UserTokensHandler handles GET /users requests.
// It returns the provider tokens stored for the user owning the bearer token,
// which must carry the read:user_idp_tokens scope.
func (h *Handler) UserTokensHandler(w http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()

	token, ok := bearerToken(req)
	if !ok {
		return ErrInvalidAccessToken
	}

	meta, err := h.flows.GetAccessToken(ctx, token)
	if errors.Is(err, flowstore.ErrNotFound) {
		return ErrInvalidAccessToken
	}
	if err != nil {
		return fmt.Errorf("failed to load access token: %w", err)
	}
	if !meta.Scopes.Contains(scopes.ReadUserIDPTokens) {
		return ErrMissingPermission
	}

	connTokens, err := h.flows.GetConnectionTokens(ctx, meta.UserID)
	if errors.Is(err, flowstore.ErrNotFound) {
		return ErrTokensNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load connection tokens: %w", err)
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, connTokens)
	return nil
}

// bearerToken extracts the token of an "Authorization: Bearer" header.
func bearerToken(req *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(req.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
