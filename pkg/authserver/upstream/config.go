// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Config contains the resolved configuration of a single connector.
type Config struct {
	// Name is the connection name, e.g. "github".
	Name string

	// Kind selects between OAuth2Connector and OIDCConnector.
	Kind Kind

	// ClientID and ClientSecret are the credentials registered with the provider.
	ClientID     string
	ClientSecret string

	// RedirectURL is the callback URL registered with the provider.
	RedirectURL string

	// Scopes are the scopes requested from the provider.
	Scopes []string

	// AuthURL and TokenURL are required for OAuth2 connectors.
	AuthURL  string
	TokenURL string

	// Issuer is required for OIDC connectors.
	Issuer string

	// Profile names the ProfileAdapter of an OAuth2 connector.
	Profile string

	// APIBaseURL is the base URL used by the profile adapter.
	APIBaseURL string
}

// Validate checks that Config has all required fields for its kind.
func (c *Config) Validate() error {
	if c.Name == "" {
		return errors.New("name is required")
	}
	if c.ClientID == "" {
		return fmt.Errorf("client_id is required for connector %q", c.Name)
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("client_secret is required for connector %q", c.Name)
	}
	if err := validateURL("redirect_url", c.RedirectURL); err != nil {
		return err
	}

	switch c.Kind {
	case KindOAuth2:
		if err := validateURL("auth_url", c.AuthURL); err != nil {
			return err
		}
		if err := validateURL("token_url", c.TokenURL); err != nil {
			return err
		}
		if c.Profile == "" {
			return fmt.Errorf("profile is required for oauth2 connector %q", c.Name)
		}
	case KindOIDC:
		if err := validateURL("issuer", c.Issuer); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown connector kind %q (must be %q or %q)", c.Kind, KindOAuth2, KindOIDC)
	}
	return nil
}

func validateURL(field, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s must be a valid URL: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https scheme", field)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL", field)
	}
	return nil
}

// Option configures a connector.
type Option func(*connectorOptions)

type connectorOptions struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// WithHTTPClient sets the HTTP client used for every provider request.
func WithHTTPClient(client *http.Client) Option {
	return func(o *connectorOptions) {
		o.httpClient = client
	}
}

// WithLogger sets a custom logger for the connector.
func WithLogger(logger *slog.Logger) Option {
	return func(o *connectorOptions) {
		o.logger = logger
	}
}

func newConnectorOptions(opts []Option) *connectorOptions {
	o := &connectorOptions{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 10 * time.Second,
			},
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
