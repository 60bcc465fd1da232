// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"

	servercrypto "github.com/stacklok/edgeauth/pkg/authserver/server/crypto"
	flowstore "github.com/stacklok/edgeauth/pkg/authserver/storage"
	"github.com/stacklok/edgeauth/pkg/storage"
)

// maxFormBodySize bounds form-encoded request bodies (64KB).
const maxFormBodySize = 64 * 1024

const formContentType = "application/x-www-form-urlencoded"

// TokenHandler handles POST /oauth/token requests.
// It redeems an authorization code for the token response prepared at
// callback time. Codes are consumed before the binding checks, so a code
// presented with the wrong client or redirect_uri is burnt.
func (h *Handler) TokenHandler(w http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()

	form, err := parseForm(w, req)
	if err != nil {
		return err
	}

	if form.Get("grant_type") != "authorization_code" {
		return errUnsupportedGrantType("expected grant_type authorization_code")
	}

	clientID := form.Get("client_id")
	app, err := h.apps.GetApplication(ctx, clientID)
	if errors.Is(err, storage.ErrNotFound) {
		return errInvalidClient("invalid client credentials")
	}
	if err != nil {
		return fmt.Errorf("failed to load application: %w", err)
	}
	if !servercrypto.SecureCompare(app.ClientSecret, form.Get("client_secret")) {
		return errInvalidClient("invalid client credentials")
	}

	flow, err := h.flows.TakeCodeFlow(ctx, form.Get("code"))
	if errors.Is(err, flowstore.ErrNotFound) {
		return errInvalidGrant("invalid code")
	}
	if err != nil {
		return fmt.Errorf("failed to load code flow: %w", err)
	}

	if flow.ClientID != clientID {
		return errInvalidGrant("client_id does not belong to this flow")
	}
	if flow.RedirectURI != form.Get("redirect_uri") {
		return errInvalidGrant("redirect_uri does not belong to this flow")
	}

	h.metrics.ObserveCodeRedeemed()
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	writeJSON(w, http.StatusOK, flow.Response)
	return nil
}

// parseForm requires a form-encoded body and returns its values.
func parseForm(w http.ResponseWriter, req *http.Request) (url.Values, error) {
	mediaType, _, err := mime.ParseMediaType(req.Header.Get("Content-Type"))
	if err != nil || mediaType != formContentType {
		return nil, errInvalidRequest("content type must be " + formContentType)
	}

	req.Body = http.MaxBytesReader(w, req.Body, maxFormBodySize)
	if err := req.ParseForm(); err != nil {
		return nil, errInvalidRequest("malformed form body")
	}
	return req.PostForm, nil
}
