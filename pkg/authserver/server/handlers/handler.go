// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-jose/go-jose/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	flowstore "github.com/stacklok/edgeauth/pkg/authserver/storage"
	"github.com/stacklok/edgeauth/pkg/authserver/server/tokens"
	"github.com/stacklok/edgeauth/pkg/authserver/upstream"
	"github.com/stacklok/edgeauth/pkg/storage"
	"github.com/stacklok/edgeauth/pkg/telemetry"
)

const instrumentationName = "github.com/stacklok/edgeauth/pkg/authserver/server/handlers"

// Default registration rate: one application per second with a burst of five.
const (
	DefaultRegistrationRate  = rate.Limit(1)
	DefaultRegistrationBurst = 5
)

// Connectors resolves connection names to upstream connectors.
type Connectors interface {
	Get(name string) (upstream.Connector, error)
	Entries() []upstream.CatalogEntry
}

// KeySet publishes the public signing keys.
type KeySet interface {
	JWKS(ctx context.Context) (*jose.JSONWebKeySet, error)
}

// Pinger is a dependency checked by /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Params are the dependencies of a Handler.
type Params struct {
	// Domain is the public base URL, used as issuer and to build endpoint URLs.
	Domain string

	Connectors   Connectors
	Applications storage.ApplicationStore
	Users        storage.UserStore
	Flows        *flowstore.Store
	Issuer       *tokens.Issuer
	Keys         KeySet

	// Metrics defaults to a fresh registry when nil.
	Metrics *telemetry.Metrics
	// Logger defaults to slog.Default when nil.
	Logger *slog.Logger
	// TracerProvider defaults to the global provider when nil.
	TracerProvider trace.TracerProvider

	// RegistrationRate limits POST /application. Zero selects the default.
	RegistrationRate  rate.Limit
	RegistrationBurst int

	// HealthChecks are pinged by /healthz.
	HealthChecks []Pinger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Handler provides HTTP handlers for the authorization server endpoints.
type Handler struct {
	domain         string
	connectors     Connectors
	apps           storage.ApplicationStore
	users          storage.UserStore
	flows          *flowstore.Store
	issuer         *tokens.Issuer
	keys           KeySet
	metrics        *telemetry.Metrics
	logger         *slog.Logger
	tracerProvider trace.TracerProvider
	tracer         trace.Tracer
	limiter        *rate.Limiter
	healthChecks   []Pinger
	now            func() time.Time
}

// NewHandler creates a Handler with the given dependencies.
func NewHandler(p Params) (*Handler, error) {
	switch {
	case p.Domain == "":
		return nil, errors.New("domain is required")
	case p.Connectors == nil:
		return nil, errors.New("connectors are required")
	case p.Applications == nil:
		return nil, errors.New("application store is required")
	case p.Users == nil:
		return nil, errors.New("user store is required")
	case p.Flows == nil:
		return nil, errors.New("flow store is required")
	case p.Issuer == nil:
		return nil, errors.New("token issuer is required")
	case p.Keys == nil:
		return nil, errors.New("key set is required")
	}

	h := &Handler{
		domain:         strings.TrimSuffix(p.Domain, "/"),
		connectors:     p.Connectors,
		apps:           p.Applications,
		users:          p.Users,
		flows:          p.Flows,
		issuer:         p.Issuer,
		keys:           p.Keys,
		metrics:        p.Metrics,
		logger:         p.Logger,
		tracerProvider: p.TracerProvider,
		healthChecks:   p.HealthChecks,
		now:            p.Now,
	}
	if h.metrics == nil {
		h.metrics = telemetry.NewMetrics()
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.tracerProvider == nil {
		h.tracerProvider = otel.GetTracerProvider()
	}
	h.tracer = h.tracerProvider.Tracer(instrumentationName)
	if h.now == nil {
		h.now = time.Now
	}

	limit, burst := p.RegistrationRate, p.RegistrationBurst
	if limit == 0 {
		limit = DefaultRegistrationRate
	}
	if burst <= 0 {
		burst = DefaultRegistrationBurst
	}
	h.limiter = rate.NewLimiter(limit, burst)

	return h, nil
}

// Routes returns a router with every endpoint and the standard middleware stack.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		telemetry.RequestLogger(h.logger),
		telemetry.TracingMiddleware(h.tracerProvider),
	)
	h.OAuthRoutes(r)
	h.APIRoutes(r)
	h.WellKnownRoutes(r)
	h.OperationalRoutes(r)
	return r
}

// OAuthRoutes registers the authorization code flow endpoints.
func (h *Handler) OAuthRoutes(r chi.Router) {
	r.Get("/oauth/authorize", h.handle(h.AuthorizeHandler))
	r.Get(upstream.CallbackPath, h.handle(h.CallbackHandler))
	r.Post("/oauth/token", h.handle(h.TokenHandler))
	r.Post("/oauth/refresh", h.handle(h.RefreshHandler))
}

// APIRoutes registers application registration and the token lookup API.
func (h *Handler) APIRoutes(r chi.Router) {
	r.Post("/application", h.handle(h.CreateApplicationHandler))
	r.Get("/users", h.handle(h.UserTokensHandler))
}

// WellKnownRoutes registers discovery and the JWKS.
func (h *Handler) WellKnownRoutes(r chi.Router) {
	r.Get("/.well-known/openid-configuration", h.handle(h.OIDCDiscoveryHandler))
	r.Get("/jwks", h.handle(h.JWKSHandler))
}

// OperationalRoutes registers health and metrics.
func (h *Handler) OperationalRoutes(r chi.Router) {
	r.Get("/healthz", h.HealthHandler)
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
}
