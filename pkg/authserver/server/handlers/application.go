// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/stacklok/edgeauth/pkg/authserver/identity"
	"github.com/stacklok/edgeauth/pkg/authserver/scopes"
	servercrypto "github.com/stacklok/edgeauth/pkg/authserver/server/crypto"
)

// maxApplicationBodySize bounds registration bodies (64KB).
const maxApplicationBodySize = 64 * 1024

// CreateApplicationRequest is the body of POST /application.
type CreateApplicationRequest struct {
	Name        string   `json:"name"`
	Description *string  `json:"description,omitempty"`
	RedirectURI string   `json:"redirect_uri"`
	Scopes      []string `json:"scopes"`
}

// CreateApplicationResponse carries the generated credentials. The secret is
// only ever shown here.
type CreateApplicationResponse struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// Validate checks the registration request.
func (r *CreateApplicationRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if r.RedirectURI == "" {
		return fmt.Errorf("redirect_uri is required")
	}
	u, err := url.Parse(r.RedirectURI)
	if err != nil || !u.IsAbs() || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("redirect_uri must be an absolute http or https URL")
	}
	if u.Fragment != "" {
		return fmt.Errorf("redirect_uri must not contain a fragment")
	}
	for _, s := range r.Scopes {
		if s == "" || strings.ContainsAny(s, " \t\r\n") {
			return fmt.Errorf("invalid scope %q", s)
		}
	}
	return nil
}

// NewApplication builds an application with fresh credentials.
func NewApplication(r *CreateApplicationRequest) (*identity.Application, error) {
	clientID, err := servercrypto.RandomAlphanumeric(servercrypto.ClientIDLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate client_id: %w", err)
	}
	secret, err := servercrypto.RandomAlphanumeric(servercrypto.ClientSecretLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate client_secret: %w", err)
	}
	return &identity.Application{
		ClientID:     clientID,
		ClientSecret: secret,
		RedirectURI:  r.RedirectURI,
		Name:         strings.TrimSpace(r.Name),
		Description:  r.Description,
		Scopes:       scopes.New(r.Scopes...),
	}, nil
}

// CreateApplicationHandler handles POST /application requests.
func (h *Handler) CreateApplicationHandler(w http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()

	if !h.limiter.Allow() {
		return ErrRateLimited
	}

	req.Body = http.MaxBytesReader(w, req.Body, maxApplicationBodySize)
	if !strings.HasPrefix(req.Header.Get("Content-Type"), "application/json") {
		return errInvalidRequest("Content-Type must be application/json")
	}

	var body CreateApplicationRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return errInvalidRequest("invalid JSON request body")
	}
	if err := body.Validate(); err != nil {
		return errInvalidRequest(err.Error())
	}

	app, err := NewApplication(&body)
	if err != nil {
		return err
	}
	if err := h.apps.CreateApplication(ctx, app); err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	h.logger.InfoContext(ctx, "registered application",
		"client_id", app.ClientID,
		"name", app.Name,
	)

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusCreated, CreateApplicationResponse{
		ClientID:     app.ClientID,
		ClientSecret: app.ClientSecret,
	})
	return nil
}
