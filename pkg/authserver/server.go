// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/stacklok/toolhive-core/env"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/stacklok/edgeauth/pkg/authserver/server/handlers"
	"github.com/stacklok/edgeauth/pkg/authserver/server/keys"
	"github.com/stacklok/edgeauth/pkg/authserver/server/tokens"
	flowstore "github.com/stacklok/edgeauth/pkg/authserver/storage"
	"github.com/stacklok/edgeauth/pkg/authserver/upstream"
	"github.com/stacklok/edgeauth/pkg/networking"
	"github.com/stacklok/edgeauth/pkg/storage/sqlite"
	"github.com/stacklok/edgeauth/pkg/telemetry"
	"github.com/stacklok/edgeauth/pkg/versions"
)

const readHeaderTimeout = 10 * time.Second

// Server owns every long-lived resource of a running edgeauth instance.
type Server struct {
	config    *Config
	logger    *slog.Logger
	kv        flowstore.KV
	db        *sqlite.DB
	keys      *keys.Manager
	metrics   *telemetry.Metrics
	telemetry *telemetry.Provider
	handler   http.Handler
}

// Option configures New.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	envReader  env.Reader
	httpClient *http.Client
}

// WithLogger sets the logger used by the server and its components.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithEnvReader sets where provider client credentials are read from.
func WithEnvReader(r env.Reader) Option {
	return func(o *options) {
		o.envReader = r
	}
}

// WithHTTPClient sets the client used for every upstream provider call.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// New validates cfg, opens the stores, makes sure a signing key exists and
// builds the HTTP handler. Call Close to release the stores.
func New(ctx context.Context, cfg *Config, opts ...Option) (_ *Server, retErr error) {
	o := &options{
		logger:    slog.Default(),
		envReader: &env.OSReader{},
	}
	for _, opt := range opts {
		opt(o)
	}

	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Server{config: cfg, logger: o.logger, metrics: telemetry.NewMetrics()}
	defer func() {
		if retErr != nil {
			_ = s.Close()
		}
	}()

	var err error
	telemetryConfig := cfg.Telemetry
	telemetryConfig.ServiceVersion = cmp.Or(telemetryConfig.ServiceVersion, versions.GetVersionInfo().Version)
	if s.telemetry, err = telemetry.NewProvider(ctx, telemetryConfig); err != nil {
		return nil, fmt.Errorf("failed to create telemetry provider: %w", err)
	}
	tp := s.telemetry.TracerProvider()

	kv, err := flowstore.New(ctx, &cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open flow store: %w", err)
	}
	s.kv = kv
	if s.db, err = sqlite.Open(ctx, cfg.Database.DSN); err != nil {
		return nil, err
	}

	s.keys, err = keys.NewManager(s.kv, cfg.Keys, keys.WithLogger(o.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create key manager: %w", err)
	}
	outcome, err := s.keys.Rotate(ctx)
	s.metrics.ObserveKeyRotation(string(outcome))
	if err != nil {
		return nil, fmt.Errorf("failed to ensure signing key: %w", err)
	}

	catalog, err := upstream.BuiltinCatalog()
	if err != nil {
		return nil, err
	}
	httpClient := o.httpClient
	if httpClient == nil {
		httpClient, err = networking.NewHTTPClientBuilder().
			WithTimeout(cfg.Upstream.Timeout).
			WithCABundle(cfg.Upstream.CABundle).
			WithInsecureHTTP(cfg.Upstream.AllowInsecureHTTP).
			WithUserAgent(versions.UserAgent()).
			WithTracerProvider(tp).
			Build()
		if err != nil {
			return nil, fmt.Errorf("failed to create upstream http client: %w", err)
		}
	}
	registry, err := upstream.NewRegistry(catalog, cfg.Domain, cfg.Providers, o.envReader,
		upstream.WithLogger(o.logger), upstream.WithHTTPClient(httpClient))
	if err != nil {
		return nil, err
	}

	flows := flowstore.NewStore(s.kv)
	issuer, err := tokens.NewIssuer(cfg.Domain, s.keys, flows, tokens.WithTracerProvider(tp))
	if err != nil {
		return nil, fmt.Errorf("failed to create token issuer: %w", err)
	}

	h, err := handlers.NewHandler(handlers.Params{
		Domain:            cfg.Domain,
		Connectors:        registry,
		Applications:      sqlite.NewApplicationStore(s.db),
		Users:             sqlite.NewUserStore(s.db),
		Flows:             flows,
		Issuer:            issuer,
		Keys:              s.keys,
		Metrics:           s.metrics,
		Logger:            o.logger,
		TracerProvider:    tp,
		RegistrationRate:  rate.Limit(cfg.Registration.Rate),
		RegistrationBurst: cfg.Registration.Burst,
		HealthChecks:      []handlers.Pinger{s.kv, s.db},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create handler: %w", err)
	}
	s.handler = h.Routes()

	o.logger.Debug("edgeauth server initialized",
		"domain", cfg.Domain,
		"storage", cfg.Storage.Type,
		"providers", len(cfg.Providers),
	)
	return s, nil
}

// Handler returns the HTTP handler serving every endpoint.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Keys returns the signing key manager.
func (s *Server) Keys() *keys.Manager {
	return s.keys
}

// Run serves HTTP on the configured address and rotates signing keys until
// ctx is done, then shuts the HTTP server down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("edgeauth listening", "addr", ln.Addr().String(), "domain", s.config.Domain)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		scheduler := keys.NewScheduler(s.keys, func(o keys.RotationOutcome) {
			s.metrics.ObserveKeyRotation(string(o))
		})
		return scheduler.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down edgeauth")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down http server: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// Close flushes traces and releases the stores.
func (s *Server) Close() error {
	var errs []error
	if s.telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		errs = append(errs, s.telemetry.Shutdown(ctx))
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	if s.kv != nil {
		errs = append(errs, s.kv.Close())
	}
	return errors.Join(errs...)
}
