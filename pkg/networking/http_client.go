// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package networking builds the HTTP clients used to talk to upstream identity providers.
package networking

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

// Defaults for outgoing provider requests.
const (
	HTTPTimeout                  = 30 * time.Second
	DefaultTLSHandshakeTimeout   = 10 * time.Second
	DefaultResponseHeaderTimeout = 10 * time.Second
)

// ErrInsecureScheme is returned for plain http requests unless the client
// was built WithInsecureHTTP.
var ErrInsecureScheme = errors.New("only https URLs are allowed")

// ValidatingTransport refuses requests that are not https.
type ValidatingTransport struct {
	Transport http.RoundTripper
}

// RoundTrip validates the request URL prior to forwarding.
func (t *ValidatingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL == nil || req.URL.Host == "" {
		return nil, fmt.Errorf("the supplied URL %v is malformed", req.URL)
	}
	if req.URL.Scheme != "https" {
		return nil, fmt.Errorf("%w: %s", ErrInsecureScheme, req.URL.Redacted())
	}
	return t.Transport.RoundTrip(req)
}

// userAgentTransport sets the User-Agent of requests that do not carry one.
type userAgentTransport struct {
	transport http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.transport.RoundTrip(req)
	}
	newReq := req.Clone(req.Context())
	newReq.Header.Set("User-Agent", t.userAgent)
	return t.transport.RoundTrip(newReq)
}

// HTTPClientBuilder provides a fluent interface for building HTTP clients.
type HTTPClientBuilder struct {
	clientTimeout         time.Duration
	tlsHandshakeTimeout   time.Duration
	responseHeaderTimeout time.Duration
	caCertPath            string
	userAgent             string
	allowInsecure         bool
	tracerProvider        trace.TracerProvider
}

// NewHTTPClientBuilder returns a builder with the default timeouts.
func NewHTTPClientBuilder() *HTTPClientBuilder {
	return &HTTPClientBuilder{
		clientTimeout:         HTTPTimeout,
		tlsHandshakeTimeout:   DefaultTLSHandshakeTimeout,
		responseHeaderTimeout: DefaultResponseHeaderTimeout,
	}
}

// WithTimeout sets the overall request timeout. Zero keeps the default.
func (b *HTTPClientBuilder) WithTimeout(timeout time.Duration) *HTTPClientBuilder {
	if timeout > 0 {
		b.clientTimeout = timeout
	}
	return b
}

// WithCABundle replaces the system roots with the PEM certificates in the
// file at path.
func (b *HTTPClientBuilder) WithCABundle(path string) *HTTPClientBuilder {
	b.caCertPath = path
	return b
}

// WithUserAgent sets the User-Agent of requests that do not set one.
func (b *HTTPClientBuilder) WithUserAgent(userAgent string) *HTTPClientBuilder {
	b.userAgent = userAgent
	return b
}

// WithInsecureHTTP allows plain http URLs. Only meant for local development.
func (b *HTTPClientBuilder) WithInsecureHTTP(allow bool) *HTTPClientBuilder {
	b.allowInsecure = allow
	return b
}

// WithTracerProvider creates a client span for every request.
func (b *HTTPClientBuilder) WithTracerProvider(tp trace.TracerProvider) *HTTPClientBuilder {
	b.tracerProvider = tp
	return b
}

// Build creates the configured HTTP client.
func (b *HTTPClientBuilder) Build() (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSHandshakeTimeout = b.tlsHandshakeTimeout
	transport.ResponseHeaderTimeout = b.responseHeaderTimeout
	transport.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}

	if b.caCertPath != "" {
		caCert, err := os.ReadFile(b.caCertPath) // #nosec G304 - path comes from server configuration
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate bundle: %w", err)
		}
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate bundle")
		}
		transport.TLSClientConfig.RootCAs = caCertPool
	}

	var rt http.RoundTripper = transport
	if !b.allowInsecure {
		rt = &ValidatingTransport{Transport: rt}
	}
	if b.userAgent != "" {
		rt = &userAgentTransport{transport: rt, userAgent: b.userAgent}
	}
	if b.tracerProvider != nil {
		rt = otelhttp.NewTransport(rt, otelhttp.WithTracerProvider(b.tracerProvider))
	}

	return &http.Client{
		Transport: rt,
		Timeout:   b.clientTimeout,
	}, nil
}
