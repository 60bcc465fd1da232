// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Config holds the configuration for OpenTelemetry tracing.
type Config struct {
	// Endpoint is the OTLP/HTTP collector endpoint (e.g. "localhost:4318").
	// Tracing is disabled when it is empty.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ServiceName is the service.name resource attribute
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`

	// ServiceVersion is the service.version resource attribute
	ServiceVersion string `mapstructure:"service_version" yaml:"service_version"`

	// SamplingRate is the trace sampling rate (0.0-1.0)
	SamplingRate float64 `mapstructure:"sampling_rate" yaml:"sampling_rate"`

	// Headers are sent with every OTLP export request
	Headers map[string]string `mapstructure:"headers" yaml:"headers"`

	// Insecure uses plain HTTP for the OTLP endpoint
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`
}

// DefaultConfig returns a configuration with tracing disabled.
func DefaultConfig() Config {
	return Config{
		ServiceName:  "edgeauth",
		SamplingRate: 0.05,
		Headers:      make(map[string]string),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return fmt.Errorf("sampling_rate must be between 0 and 1, got %v", c.SamplingRate)
	}
	if c.Endpoint != "" && c.ServiceName == "" {
		return errors.New("service_name is required when an OTLP endpoint is configured")
	}
	return nil
}

// Provider owns the process tracer provider.
type Provider struct {
	tracerProvider trace.TracerProvider
	shutdown       func(context.Context) error
}

// NewProvider builds the tracer provider described by config and installs it
// as the global OpenTelemetry provider together with the W3C propagators.
func NewProvider(ctx context.Context, config Config) (*Provider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	tp, shutdown, err := NewTracerProviderWithShutdown(ctx, config)
	if err != nil {
		return nil, err
	}

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Provider{tracerProvider: tp, shutdown: shutdown}, nil
}

// TracerProvider returns the configured tracer provider.
func (p *Provider) TracerProvider() trace.TracerProvider {
	return p.tracerProvider
}

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.shutdown != nil {
		return p.shutdown(ctx)
	}
	return nil
}
