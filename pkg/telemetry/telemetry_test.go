// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "negative sampling", mutate: func(c *Config) { c.SamplingRate = -0.1 }, wantErr: "sampling_rate"},
		{name: "sampling above one", mutate: func(c *Config) { c.SamplingRate = 1.5 }, wantErr: "sampling_rate"},
		{
			name: "endpoint without service name",
			mutate: func(c *Config) {
				c.Endpoint = "localhost:4318"
				c.ServiceName = ""
			},
			wantErr: "service_name",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestNewTracerProviderWithShutdown_NoEndpoint(t *testing.T) {
	t.Parallel()

	tp, shutdown, err := NewTracerProviderWithShutdown(context.Background(), DefaultConfig())
	require.NoError(t, err)
	assert.Nil(t, shutdown)
	assert.IsType(t, tracenoop.NewTracerProvider(), tp)
}

func TestNewTracerProviderWithShutdown_WithEndpoint(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Endpoint = "127.0.0.1:4318"
	cfg.Insecure = true
	cfg.Headers = map[string]string{"x-api-key": "secret"}

	tp, shutdown, err := NewTracerProviderWithShutdown(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.IsType(t, &sdktrace.TracerProvider{}, tp)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = shutdown(ctx)
}

func TestMetrics_Observe(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	m.ObserveAuthorize("github", OutcomeRedirect)
	m.ObserveAuthorize("github", OutcomeRedirect)
	m.ObserveAuthorize("google", OutcomeRejected)
	m.ObserveTokensIssued("github")
	m.ObserveCodeRedeemed()
	m.ObserveKeyRotation("rotated")
	m.ObserveCallback("github", 150*time.Millisecond)

	assert.InDelta(t, 2, testutil.ToFloat64(m.authorizeResults.WithLabelValues("github", OutcomeRedirect)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.authorizeResults.WithLabelValues("google", OutcomeRejected)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.tokensIssued.WithLabelValues("github")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.tokensRedeemed), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.keyRotations.WithLabelValues("rotated")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.callbackDuration))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `edgeauth_authorize_requests_total{connection="github",outcome="redirect"} 2`)
	assert.Contains(t, body, "edgeauth_callback_duration_seconds_bucket")
	assert.Contains(t, body, "go_goroutines")
}

func TestRequestLogger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		path      string
		status    int
		wantLevel string
	}{
		{name: "success", path: "/oauth/authorize", status: http.StatusFound, wantLevel: "INFO"},
		{name: "client error", path: "/oauth/token", status: http.StatusBadRequest, wantLevel: "WARN"},
		{name: "server error", path: "/oauth/callback", status: http.StatusInternalServerError, wantLevel: "ERROR"},
		{name: "health", path: "/healthz", status: http.StatusOK, wantLevel: "DEBUG"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
			h := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))

			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

			var entry map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
			assert.Equal(t, tt.wantLevel, entry["level"])
			assert.Equal(t, tt.path, entry["path"])
			assert.InDelta(t, float64(tt.status), entry["status"], 0)
		})
	}
}

func TestRequestLogger_ImplicitOK(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	h := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/jwks", nil))

	assert.True(t, strings.Contains(buf.String(), "status=200"), buf.String())
}

func TestTracingMiddleware_RecordsServerSpan(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	h := TracingMiddleware(tp)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /healthz", spans[0].Name())
}
