// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"fmt"
	"net/http"
)

// refreshResponse is the provider token set returned by /oauth/refresh.
type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
}

// RefreshHandler handles POST /oauth/refresh requests.
// It forwards a provider refresh token to the provider's refresh grant and
// returns the provider's new tokens. Local tokens are not touched.
func (h *Handler) RefreshHandler(w http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()

	form, err := parseForm(w, req)
	if err != nil {
		return err
	}

	connection, refreshToken := form.Get("connection"), form.Get("refresh_token")
	if connection == "" || refreshToken == "" {
		return errInvalidRequest("connection and refresh_token are required")
	}

	conn, err := h.connectors.Get(connection)
	if err != nil {
		return err
	}

	refreshCtx, span := h.tracer.Start(ctx, "upstream.RefreshTokens")
	refreshed, err := conn.RefreshTokens(refreshCtx, refreshToken)
	endSpan(span, err)
	if err != nil {
		return fmt.Errorf("failed to refresh provider tokens: %w", err)
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, refreshResponse{
		AccessToken:  refreshed.AccessToken,
		TokenType:    refreshed.TokenType,
		RefreshToken: refreshed.RefreshToken,
		ExpiresIn:    refreshed.ExpiresIn,
		IDToken:      refreshed.IDToken,
	})
	return nil
}
