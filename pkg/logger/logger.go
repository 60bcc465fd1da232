// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package logger holds the process-wide logger used by the edgeauth CLI.
//
// This is a thin shim over toolhive-core/logging. Server components take a
// *slog.Logger explicitly; use [Get] to obtain the configured logger for
// injection.
package logger

import (
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/spf13/viper"

	"github.com/stacklok/toolhive-core/env"
	"github.com/stacklok/toolhive-core/logging"
)

// FormatEnvVar selects the output format: "text" (default) or "json".
const FormatEnvVar = "EDGEAUTH_LOG_FORMAT"

// singleton is the package-level logger created by Initialize.
var singleton atomic.Pointer[slog.Logger]

func init() {
	singleton.Store(logging.New())
}

// Get returns the underlying *slog.Logger for injection into structs.
func Get() *slog.Logger {
	return singleton.Load()
}

// Set replaces the singleton logger. This is intended for tests that need to
// capture log output; production code should use [Initialize] instead.
func Set(l *slog.Logger) {
	singleton.Store(l)
}

// Debugw logs a message at debug level with additional key-value pairs.
func Debugw(msg string, keysAndValues ...any) {
	Get().Debug(msg, keysAndValues...)
}

// Infof logs a formatted message at info level.
func Infof(msg string, args ...any) {
	Get().Info(fmt.Sprintf(msg, args...))
}

// Infow logs a message at info level with additional key-value pairs.
func Infow(msg string, keysAndValues ...any) {
	Get().Info(msg, keysAndValues...)
}

// Warnw logs a message at warning level with additional key-value pairs.
func Warnw(msg string, keysAndValues ...any) {
	Get().Warn(msg, keysAndValues...)
}

// Errorw logs a message at error level with additional key-value pairs.
func Errorw(msg string, keysAndValues ...any) {
	Get().Error(msg, keysAndValues...)
}

// Initialize configures the singleton from the environment and the "debug"
// viper key.
func Initialize() {
	InitializeWithEnv(&env.OSReader{})
}

// InitializeWithEnv configures the singleton with a custom environment reader.
func InitializeWithEnv(envReader env.Reader) {
	singleton.Store(New(envReader, viper.GetBool("debug")))
}

// New builds a logger without touching the singleton.
func New(envReader env.Reader, debug bool) *slog.Logger {
	var opts []logging.Option

	if textFormatWithEnv(envReader) {
		opts = append(opts, logging.WithFormat(logging.FormatText))
	}
	if debug {
		opts = append(opts, logging.WithLevel(slog.LevelDebug))
	}

	return logging.New(opts...)
}

func textFormatWithEnv(envReader env.Reader) bool {
	// anything other than an explicit "json" keeps the human readable format
	return !strings.EqualFold(strings.TrimSpace(envReader.Getenv(FormatEnvVar)), "json")
}
