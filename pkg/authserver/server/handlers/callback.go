// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/edgeauth/pkg/authserver/identity"
	flowstore "github.com/stacklok/edgeauth/pkg/authserver/storage"
	"github.com/stacklok/edgeauth/pkg/authserver/server/tokens"
	"github.com/stacklok/edgeauth/pkg/authserver/upstream"
)

// defaultProviderTokenLifetime is stored when the provider omits expires_in.
const defaultProviderTokenLifetime = int64(7 * 24 * time.Hour / time.Second)

// CallbackHandler handles GET /oauth/callback requests from the provider.
// It consumes the pending flow, exchanges the code, records the user and
// their provider tokens, mints the local tokens and redirects back to the
// client with a single-use code.
func (h *Handler) CallbackHandler(w http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()
	q := req.URL.Query()

	if providerErr := q.Get("error"); providerErr != "" {
		return errInvalidRequest(cmp.Or(q.Get("error_description"), providerErr))
	}

	// Checked before the state is consumed so a malformed redirect does not
	// burn the pending flow.
	code := q.Get("code")
	if code == "" {
		return errInvalidRequest("code is required")
	}

	pending, err := h.flows.TakeAuthorizeState(ctx, q.Get("state"))
	if errors.Is(err, flowstore.ErrNotFound) {
		return errInvalidGrant("could not find flow for the given state")
	}
	if err != nil {
		return fmt.Errorf("failed to load authorize state: %w", err)
	}

	conn, err := h.connectors.Get(pending.Connection)
	if err != nil {
		return err
	}
	if flowstore.FlowKind(conn.Kind()) != pending.Kind {
		return errInvalidRequest("invalid flow")
	}

	redirect, err := url.Parse(pending.RedirectURI)
	if err != nil || pending.RedirectURI == "" {
		return errInvalidRequest("redirect_uri is malformed")
	}

	start := time.Now()
	defer func() { h.metrics.ObserveCallback(conn.Name(), time.Since(start)) }()

	user, providerTokens, err := h.federate(ctx, conn, code, pending)
	if err != nil {
		return err
	}

	user.LastLogin = identity.Ptr(h.now().UTC().Format(time.RFC3339))
	user.LastIP = identity.StringOrNil(remoteIP(req))
	if err := h.users.UpsertUser(ctx, user); err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}

	connTokens := &flowstore.ConnectionTokens{
		AccessToken:  providerTokens.AccessToken,
		RefreshToken: providerTokens.RefreshToken,
		ExpiresIn:    cmp.Or(providerTokens.ExpiresIn, defaultProviderTokenLifetime),
	}
	if err := h.flows.PutConnectionTokens(ctx, user.ID, connTokens); err != nil {
		return fmt.Errorf("failed to store connection tokens: %w", err)
	}

	localCode, err := h.issuer.Issue(ctx, tokens.Grant{
		User:        user,
		ClientID:    pending.ClientID,
		RedirectURI: pending.RedirectURI,
		Scopes:      pending.Scopes,
	})
	if err != nil {
		return fmt.Errorf("failed to issue tokens: %w", err)
	}
	h.metrics.ObserveTokensIssued(conn.Name())

	params := redirect.Query()
	params.Set("code", localCode)
	params.Set("state", pending.State)
	redirect.RawQuery = params.Encode()

	h.logger.DebugContext(ctx, "flow completed",
		"flow_id", pending.FlowID,
		"connection", conn.Name(),
		"user_id", user.ID,
	)
	http.Redirect(w, req, redirect.String(), http.StatusTemporaryRedirect)
	return nil
}

// federate exchanges the provider code and fetches the user's profile.
func (h *Handler) federate(
	ctx context.Context,
	conn upstream.Connector,
	code string,
	pending *flowstore.AuthorizeState,
) (*identity.User, *upstream.Tokens, error) {
	attrs := trace.WithAttributes(
		attribute.String("connection", conn.Name()),
		attribute.String("flow_id", pending.FlowID),
	)

	exchangeCtx, span := h.tracer.Start(ctx, "upstream.ExchangeCode", trace.WithSpanKind(trace.SpanKindClient), attrs)
	providerTokens, err := conn.ExchangeCode(exchangeCtx, code, pending.PKCEVerifier, pending.Nonce)
	endSpan(span, err)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	profileCtx, span := h.tracer.Start(ctx, "upstream.FetchProfile", trace.WithSpanKind(trace.SpanKindClient), attrs)
	user, err := conn.FetchProfile(profileCtx, providerTokens)
	endSpan(span, err)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch profile: %w", err)
	}
	return user, providerTokens, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func remoteIP(req *http.Request) string {
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}
