// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package telemetry provides the observability plumbing of the authorization
// server: OpenTelemetry tracing exported over OTLP/HTTP, Prometheus metrics,
// and the HTTP middleware that ties request handling to both.
package telemetry
