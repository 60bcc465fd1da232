// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"cmp"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/stacklok/edgeauth/pkg/authserver/scopes"
	flowstore "github.com/stacklok/edgeauth/pkg/authserver/storage"
	"github.com/stacklok/edgeauth/pkg/storage"
	"github.com/stacklok/edgeauth/pkg/telemetry"
)

// AuthorizeHandler handles GET /oauth/authorize requests.
// Without a connection it renders the provider picker. Otherwise it validates
// the client's request, saves the pending flow and redirects to the provider.
func (h *Handler) AuthorizeHandler(w http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()
	q := req.URL.Query()

	connection := q.Get("connection")
	if connection == "" {
		h.metrics.ObserveAuthorize("", telemetry.OutcomePicker)
		return h.renderPicker(w, req)
	}

	outcome := telemetry.OutcomeRejected
	defer func() { h.metrics.ObserveAuthorize(connection, outcome) }()

	if q.Get("response_type") != "code" {
		return errInvalidRequest("response_type must be code")
	}

	conn, err := h.connectors.Get(connection)
	if err != nil {
		return err
	}

	clientID := q.Get("client_id")
	app, err := h.apps.GetApplication(ctx, clientID)
	if errors.Is(err, storage.ErrNotFound) {
		return errInvalidClient("unable to find client")
	}
	if err != nil {
		outcome = telemetry.OutcomeError
		return fmt.Errorf("failed to load application: %w", err)
	}

	redirectURI := cmp.Or(q.Get("redirect_uri"), app.RedirectURI)
	if app.RedirectURI != "" && redirectURI != app.RedirectURI {
		return errInvalidRequest("redirect_uri does not match the registered redirect_uri")
	}

	requested := scopes.Parse(q.Get("scope"))
	if ok, disallowed := scopes.Validate(requested, app.Scopes); !ok {
		h.logger.DebugContext(ctx, "rejected scopes", "client_id", clientID, "disallowed", disallowed)
		return errInvalidScope("requested scopes contain more than the allowed scopes")
	}

	authReq, err := conn.BuildAuthorizationRequest(ctx, requested.Sorted())
	if err != nil {
		outcome = telemetry.OutcomeError
		return fmt.Errorf("failed to build authorization request: %w", err)
	}

	pending := &flowstore.AuthorizeState{
		FlowID:       uuid.NewString(),
		Kind:         flowstore.FlowKind(conn.Kind()),
		Connection:   conn.Name(),
		PKCEVerifier: authReq.PKCEVerifier,
		Nonce:        authReq.Nonce,
		Scopes:       requested,
		ClientID:     clientID,
		RedirectURI:  redirectURI,
		State:        q.Get("state"),
		CreatedAt:    h.now(),
	}
	if err := h.flows.PutAuthorizeState(ctx, authReq.State, pending); err != nil {
		outcome = telemetry.OutcomeError
		return fmt.Errorf("failed to store authorize state: %w", err)
	}

	h.logger.DebugContext(ctx, "redirecting to provider",
		"flow_id", pending.FlowID,
		"connection", pending.Connection,
		"client_id", clientID,
	)
	outcome = telemetry.OutcomeRedirect
	http.Redirect(w, req, authReq.URL, http.StatusFound)
	return nil
}
