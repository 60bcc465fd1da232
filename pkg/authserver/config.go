// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/stacklok/edgeauth/pkg/authserver/server/handlers"
	"github.com/stacklok/edgeauth/pkg/authserver/server/keys"
	flowstore "github.com/stacklok/edgeauth/pkg/authserver/storage"
	"github.com/stacklok/edgeauth/pkg/authserver/upstream"
	"github.com/stacklok/edgeauth/pkg/telemetry"
)

// Defaults for Config.
const (
	DefaultListenAddr      = ":8080"
	DefaultDatabaseDSN     = "file:edgeauth.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"
	DefaultShutdownTimeout = 30 * time.Second
)

// EnvPrefix is the prefix of environment variables that override config keys,
// e.g. EDGEAUTH_DOMAIN or EDGEAUTH_STORAGE_REDIS_PASSWORD.
const EnvPrefix = "EDGEAUTH"

// Config is the configuration of the edgeauth server.
type Config struct {
	// Domain is the public base URL of this server. It is the issuer of every
	// ID token and the base of the provider callback URL.
	Domain string `mapstructure:"domain" yaml:"domain"`

	// ListenAddr is the address the HTTP server binds to.
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`

	// ShutdownTimeout bounds graceful shutdown of in-flight requests.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	// Storage selects the key-value backend for flows, tokens and signing keys.
	Storage flowstore.Config `mapstructure:"storage" yaml:"storage"`

	Database DatabaseConfig `mapstructure:"database" yaml:"database"`

	Keys keys.Config `mapstructure:"keys" yaml:"keys"`

	// Providers enables upstream connections by name. Names found in the
	// built-in catalog only need client credentials.
	Providers map[string]upstream.ProviderConfig `mapstructure:"providers" yaml:"providers"`

	// Upstream configures the HTTP client used for provider requests.
	Upstream UpstreamClientConfig `mapstructure:"upstream" yaml:"upstream"`

	Registration RegistrationConfig `mapstructure:"registration" yaml:"registration"`

	Telemetry telemetry.Config `mapstructure:"telemetry" yaml:"telemetry"`
}

// DatabaseConfig configures the relational store for users and applications.
type DatabaseConfig struct {
	// DSN is a modernc.org/sqlite data source name.
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

// UpstreamClientConfig configures outgoing requests to identity providers.
type UpstreamClientConfig struct {
	// Timeout bounds every provider request. Zero selects networking.HTTPTimeout.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`

	// CABundle is a PEM file that replaces the system trust store.
	CABundle string `mapstructure:"ca_bundle" yaml:"ca_bundle"`

	// AllowInsecureHTTP permits plain http provider endpoints, e.g. a local
	// development IdP.
	AllowInsecureHTTP bool `mapstructure:"allow_insecure_http" yaml:"allow_insecure_http"`
}

// RegistrationConfig limits POST /application.
type RegistrationConfig struct {
	// Rate is the number of registrations allowed per second.
	Rate float64 `mapstructure:"rate" yaml:"rate"`

	// Burst is the number of registrations allowed at once.
	Burst int `mapstructure:"burst" yaml:"burst"`
}

// DefaultConfig returns a configuration with every optional field defaulted.
// Domain and Providers must still be set.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:      DefaultListenAddr,
		ShutdownTimeout: DefaultShutdownTimeout,
		Storage:         *flowstore.DefaultConfig(),
		Database:        DatabaseConfig{DSN: DefaultDatabaseDSN},
		Keys:            keys.DefaultConfig(),
		Registration: RegistrationConfig{
			Rate:  float64(handlers.DefaultRegistrationRate),
			Burst: handlers.DefaultRegistrationBurst,
		},
		Telemetry: telemetry.DefaultConfig(),
	}
}

// Validate checks that the Config is complete and consistent.
func (c *Config) Validate() error {
	if err := validateDomain(c.Domain); err != nil {
		return fmt.Errorf("domain: %w", err)
	}
	if c.ListenAddr == "" {
		return errors.New("listen_addr is required")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("shutdown_timeout must be positive")
	}

	switch c.Storage.Type {
	case flowstore.TypeMemory:
	case flowstore.TypeRedis:
		if len(c.Storage.Redis.Addrs) == 0 {
			return errors.New("storage: redis requires at least one address")
		}
	default:
		return fmt.Errorf("storage: unknown type %q (must be %q or %q)",
			c.Storage.Type, flowstore.TypeMemory, flowstore.TypeRedis)
	}

	if c.Database.DSN == "" {
		return errors.New("database: dsn is required")
	}
	if err := c.Keys.Validate(); err != nil {
		return fmt.Errorf("keys: %w", err)
	}

	if len(c.Providers) == 0 {
		return errors.New("at least one provider is required")
	}
	for name := range c.Providers {
		if name == "" || strings.ContainsAny(name, " /?#&") {
			return fmt.Errorf("provider name %q is not a valid connection name", name)
		}
	}

	if c.Upstream.Timeout < 0 {
		return errors.New("upstream: timeout must not be negative")
	}

	if c.Registration.Rate < 0 {
		return errors.New("registration: rate must not be negative")
	}
	if c.Registration.Burst < 0 {
		return errors.New("registration: burst must not be negative")
	}

	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	return nil
}

// validateDomain checks that domain can serve as an OIDC issuer: an absolute
// https URL without query or fragment. Plain http is allowed for loopback hosts.
func validateDomain(domain string) error {
	if domain == "" {
		return errors.New("domain is required")
	}
	u, err := url.Parse(domain)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme == "" {
		return errors.New("scheme is required")
	}
	if u.Host == "" {
		return errors.New("host is required")
	}
	if u.RawQuery != "" {
		return errors.New("must not contain query")
	}
	if u.Fragment != "" {
		return errors.New("must not contain fragment")
	}
	if strings.HasSuffix(domain, "/") {
		return errors.New("must not have trailing slash")
	}

	switch u.Scheme {
	case "https":
		return nil
	case "http":
		if isLoopback(u.Hostname()) {
			return nil
		}
		return errors.New("http scheme is only allowed for localhost")
	default:
		return fmt.Errorf("scheme must be https, got %q", u.Scheme)
	}
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// SetDefaults registers the defaults of every scalar key with v so that they
// can be overridden by EDGEAUTH_* environment variables.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("domain", "")
	v.SetDefault("listen_addr", d.ListenAddr)
	v.SetDefault("shutdown_timeout", d.ShutdownTimeout)
	v.SetDefault("storage.type", string(d.Storage.Type))
	v.SetDefault("storage.redis.addrs", []string{})
	v.SetDefault("storage.redis.master_name", "")
	v.SetDefault("storage.redis.username", "")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.key_prefix", "")
	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("keys.key_bits", d.Keys.KeyBits)
	v.SetDefault("keys.min_age", d.Keys.MinAge)
	v.SetDefault("keys.rotation_interval", d.Keys.RotationInterval)
	v.SetDefault("keys.lock_ttl", d.Keys.LockTTL)
	v.SetDefault("upstream.timeout", d.Upstream.Timeout)
	v.SetDefault("upstream.ca_bundle", "")
	v.SetDefault("upstream.allow_insecure_http", false)
	v.SetDefault("registration.rate", d.Registration.Rate)
	v.SetDefault("registration.burst", d.Registration.Burst)
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.service_name", d.Telemetry.ServiceName)
	v.SetDefault("telemetry.service_version", "")
	v.SetDefault("telemetry.sampling_rate", d.Telemetry.SamplingRate)
	v.SetDefault("telemetry.insecure", false)
}

// LoadConfig reads the optional YAML file at path, applies EDGEAUTH_*
// environment overrides and validates the result.
func LoadConfig(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
