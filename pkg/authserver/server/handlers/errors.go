// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ory/fosite"
	"github.com/stacklok/toolhive-core/httperr"

	"github.com/stacklok/edgeauth/pkg/authserver/upstream"
)

// Domain errors. They are written as plain text with their status code.
var (
	// ErrInvalidConnection is returned for an unknown connection name.
	ErrInvalidConnection = upstream.ErrUnknownConnection

	// ErrInvalidAccessToken is returned when the bearer token is missing or unknown.
	ErrInvalidAccessToken = httperr.WithCode(errors.New("invalid access token"), http.StatusBadRequest)

	// ErrMissingPermission is returned when the bearer token lacks a required scope.
	ErrMissingPermission = httperr.WithCode(errors.New("missing permission"), http.StatusBadRequest)

	// ErrTokensNotFound is returned when no provider tokens are stored for the user.
	ErrTokensNotFound = httperr.WithCode(errors.New("tokens not found"), http.StatusNotFound)

	// ErrRateLimited is returned when registration is over its rate.
	ErrRateLimited = httperr.WithCode(errors.New("too many requests"), http.StatusTooManyRequests)
)

var domainErrors = []error{
	ErrInvalidConnection,
	ErrInvalidAccessToken,
	ErrMissingPermission,
	ErrTokensNotFound,
	ErrRateLimited,
}

// handlerFunc is an HTTP handler that returns its error instead of writing it.
type handlerFunc func(http.ResponseWriter, *http.Request) error

// handle adapts fn to http.HandlerFunc, writing any returned error.
func (h *Handler) handle(fn handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			h.writeError(w, r, err)
		}
	}
}

// protocolErrorBody is the RFC 6749 Section 5.2 error response.
type protocolErrorBody struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// writeError writes err in one of three shapes:
//   - protocol errors as RFC 6749 JSON with their code
//   - domain errors as plain text with their code
//   - anything else as a bare 500; the detail is only logged
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var rfcErr *fosite.RFC6749Error
	if errors.As(err, &rfcErr) {
		h.logger.DebugContext(r.Context(), "protocol error",
			"error", rfcErr.ErrorField,
			"description", rfcErr.DescriptionField,
		)
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, rfcErr.CodeField, protocolErrorBody{
			Error:       rfcErr.ErrorField,
			Description: rfcErr.DescriptionField,
		})
		return
	}

	for _, domainErr := range domainErrors {
		if errors.Is(err, domainErr) {
			http.Error(w, domainErr.Error(), httperr.Code(domainErr))
			return
		}
	}

	h.logger.ErrorContext(r.Context(), "request failed",
		"path", r.URL.Path,
		"error", err,
	)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

// protocolError copies the error code of base and sets a description. Every
// protocol error is a 400, including invalid_client.
func protocolError(base *fosite.RFC6749Error, description string) *fosite.RFC6749Error {
	return &fosite.RFC6749Error{
		ErrorField:       base.ErrorField,
		DescriptionField: description,
		CodeField:        http.StatusBadRequest,
	}
}

func errInvalidRequest(description string) error {
	return protocolError(fosite.ErrInvalidRequest, description)
}

func errInvalidClient(description string) error {
	return protocolError(fosite.ErrInvalidClient, description)
}

func errInvalidGrant(description string) error {
	return protocolError(fosite.ErrInvalidGrant, description)
}

func errInvalidScope(description string) error {
	return protocolError(fosite.ErrInvalidScope, description)
}

func errUnsupportedGrantType(description string) error {
	return protocolError(fosite.ErrUnsupportedGrantType, description)
}

// writeJSON writes v with the given status. Encoding errors after the header
// is written cannot be reported to the client.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
