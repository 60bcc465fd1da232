// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "edgeauth"

// Authorize outcomes recorded by Metrics.ObserveAuthorize.
const (
	OutcomeRedirect = "redirect"
	OutcomePicker   = "picker"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Metrics holds the server's Prometheus collectors in a private registry.
type Metrics struct {
	registry *prometheus.Registry

	authorizeResults *prometheus.CounterVec
	tokensIssued     *prometheus.CounterVec
	tokensRedeemed   prometheus.Counter
	keyRotations     *prometheus.CounterVec
	callbackDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers the collectors, including the Go runtime
// and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		authorizeResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authorize_requests_total",
			Help:      "Authorization requests by connection and outcome.",
		}, []string{"connection", "outcome"}),
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_issued_total",
			Help:      "Local token sets minted at callback time, by connection.",
		}, []string{"connection"}),
		tokensRedeemed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "codes_redeemed_total",
			Help:      "Authorization codes exchanged at the token endpoint.",
		}),
		keyRotations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "key_rotations_total",
			Help:      "Signing key rotation attempts by outcome.",
		}, []string{"outcome"}),
		callbackDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "callback_duration_seconds",
			Help:      "Latency of the provider callback, including code exchange and profile fetch.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"connection"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.authorizeResults,
		m.tokensIssued,
		m.tokensRedeemed,
		m.keyRotations,
		m.callbackDuration,
	)
	return m
}

// Registry returns the registry the collectors are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveAuthorize counts one authorization request.
func (m *Metrics) ObserveAuthorize(connection, outcome string) {
	m.authorizeResults.WithLabelValues(connection, outcome).Inc()
}

// ObserveTokensIssued counts one minted token set.
func (m *Metrics) ObserveTokensIssued(connection string) {
	m.tokensIssued.WithLabelValues(connection).Inc()
}

// ObserveCodeRedeemed counts one successful code exchange.
func (m *Metrics) ObserveCodeRedeemed() {
	m.tokensRedeemed.Inc()
}

// ObserveKeyRotation counts one rotation attempt.
func (m *Metrics) ObserveKeyRotation(outcome string) {
	m.keyRotations.WithLabelValues(outcome).Inc()
}

// ObserveCallback records the duration of one callback.
func (m *Metrics) ObserveCallback(connection string, d time.Duration) {
	m.callbackDuration.WithLabelValues(connection).Observe(d.Seconds())
}
