// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/stacklok/toolhive-core/env"
)

// CallbackPath is the path of the provider callback on this server.
const CallbackPath = "/oauth/callback"

// ProviderConfig enables a connector and overrides its catalog entry.
// Providers missing from the catalog must set Kind and its endpoints.
type ProviderConfig struct {
	Scopes       []string `mapstructure:"scopes" yaml:"scopes,omitempty"`
	ClientID     string   `mapstructure:"client_id" yaml:"client_id,omitempty"`
	ClientSecret string   `mapstructure:"client_secret" yaml:"client_secret,omitempty"`
	Kind         Kind     `mapstructure:"kind" yaml:"kind,omitempty"`
	DisplayName  string   `mapstructure:"display_name" yaml:"display_name,omitempty"`
	AuthURL      string   `mapstructure:"auth_url" yaml:"auth_url,omitempty"`
	TokenURL     string   `mapstructure:"token_url" yaml:"token_url,omitempty"`
	Issuer       string   `mapstructure:"issuer" yaml:"issuer,omitempty"`
	APIBaseURL   string   `mapstructure:"api_base_url" yaml:"api_base_url,omitempty"`
	Profile      string   `mapstructure:"profile" yaml:"profile,omitempty"`
}

// Registry resolves connection names to connectors.
type Registry struct {
	connectors map[string]Connector
	entries    []CatalogEntry
}

// NewRegistry builds a connector for every enabled provider. Client
// credentials fall back to <NAME>_CLIENT_ID and <NAME>_CLIENT_SECRET read
// through envReader. The callback URL of every connector is domain+CallbackPath.
func NewRegistry(
	catalog *Catalog,
	domain string,
	providers map[string]ProviderConfig,
	envReader env.Reader,
	opts ...Option,
) (*Registry, error) {
	r := &Registry{connectors: make(map[string]Connector, len(providers))}
	redirectURL := strings.TrimSuffix(domain, "/") + CallbackPath

	for name, pc := range providers {
		entry, _ := catalog.Lookup(name)
		entry = mergeEntry(name, entry, pc)

		cfg := &Config{
			Name:         name,
			Kind:         entry.Kind,
			ClientID:     cmp.Or(pc.ClientID, envReader.Getenv(envVarName(name, "CLIENT_ID"))),
			ClientSecret: cmp.Or(pc.ClientSecret, envReader.Getenv(envVarName(name, "CLIENT_SECRET"))),
			RedirectURL:  redirectURL,
			Scopes:       entry.Scopes,
			AuthURL:      entry.AuthURL,
			TokenURL:     entry.TokenURL,
			Issuer:       entry.Issuer,
			Profile:      entry.Profile,
			APIBaseURL:   entry.APIBaseURL,
		}

		conn, err := NewConnector(cfg, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create connector %q: %w", name, err)
		}
		r.connectors[name] = conn
		r.entries = append(r.entries, entry)
	}

	slices.SortFunc(r.entries, func(a, b CatalogEntry) int { return strings.Compare(a.Name, b.Name) })
	return r, nil
}

// NewStaticRegistry wraps already-built connectors.
func NewStaticRegistry(connectors ...Connector) *Registry {
	r := &Registry{connectors: make(map[string]Connector, len(connectors))}
	for _, c := range connectors {
		r.connectors[c.Name()] = c
		r.entries = append(r.entries, CatalogEntry{Name: c.Name(), Kind: c.Kind(), DisplayName: c.Name()})
	}
	slices.SortFunc(r.entries, func(a, b CatalogEntry) int { return strings.Compare(a.Name, b.Name) })
	return r
}

// NewConnector creates the connector matching cfg.Kind.
func NewConnector(cfg *Config, opts ...Option) (Connector, error) {
	switch cfg.Kind {
	case KindOAuth2:
		return NewOAuth2Connector(cfg, opts...)
	case KindOIDC:
		return NewOIDCConnector(cfg, opts...)
	default:
		return nil, fmt.Errorf("unknown connector kind %q (must be %q or %q)", cfg.Kind, KindOAuth2, KindOIDC)
	}
}

// Get returns the connector registered under name, or ErrUnknownConnection.
func (r *Registry) Get(name string) (Connector, error) {
	conn, ok := r.connectors[name]
	if !ok {
		return nil, ErrUnknownConnection
	}
	return conn, nil
}

// Entries returns the enabled providers ordered by name.
func (r *Registry) Entries() []CatalogEntry {
	return slices.Clone(r.entries)
}

// mergeEntry applies the non-empty fields of pc over entry.
func mergeEntry(name string, entry CatalogEntry, pc ProviderConfig) CatalogEntry {
	entry.Name = name
	entry.Kind = cmp.Or(pc.Kind, entry.Kind)
	entry.DisplayName = cmp.Or(pc.DisplayName, entry.DisplayName, name)
	entry.AuthURL = cmp.Or(pc.AuthURL, entry.AuthURL)
	entry.TokenURL = cmp.Or(pc.TokenURL, entry.TokenURL)
	entry.Issuer = cmp.Or(pc.Issuer, entry.Issuer)
	entry.APIBaseURL = cmp.Or(pc.APIBaseURL, entry.APIBaseURL)
	entry.Profile = cmp.Or(pc.Profile, entry.Profile)
	if len(pc.Scopes) > 0 {
		entry.Scopes = pc.Scopes
	}
	return entry
}

// envVarName returns e.g. GITHUB_CLIENT_ID for ("github", "CLIENT_ID").
func envVarName(provider, suffix string) string {
	return strings.ToUpper(strings.ReplaceAll(provider, "-", "_")) + "_" + suffix
}
