// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/stacklok/edgeauth/pkg/authserver/identity"
	"github.com/stacklok/edgeauth/pkg/networking"
	"github.com/stacklok/edgeauth/pkg/versions"
)

// userAgent is sent on profile requests; GitHub rejects requests without one.
var userAgent = versions.UserAgent()

// ProfileAdapter maps a provider-specific profile API onto identity.User.
// The returned user's ID is the provider's raw external id; the connector
// adds the connection prefix.
type ProfileAdapter interface {
	FetchProfile(ctx context.Context, client *http.Client, apiBaseURL, accessToken string) (*identity.User, error)
}

// ProfileAdapterFunc adapts a function to ProfileAdapter.
type ProfileAdapterFunc func(ctx context.Context, client *http.Client, apiBaseURL, accessToken string) (*identity.User, error)

// FetchProfile calls f.
func (f ProfileAdapterFunc) FetchProfile(
	ctx context.Context, client *http.Client, apiBaseURL, accessToken string,
) (*identity.User, error) {
	return f(ctx, client, apiBaseURL, accessToken)
}

var profileAdapters = map[string]ProfileAdapter{
	"github":  ProfileAdapterFunc(fetchGitHubProfile),
	"discord": ProfileAdapterFunc(fetchDiscordProfile),
}

// LookupProfileAdapter returns the adapter registered under name.
func LookupProfileAdapter(name string) (ProfileAdapter, error) {
	adapter, ok := profileAdapters[name]
	if !ok {
		return nil, fmt.Errorf("unknown profile adapter %q", name)
	}
	return adapter, nil
}

// getJSON performs an authenticated GET and returns the validated JSON body.
func getJSON(ctx context.Context, client *http.Client, endpoint, authorization string) (gjson.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to create profile request: %w", err)
	}
	req.Header.Set("Authorization", authorization)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("profile request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to read profile response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, fmt.Errorf("profile request failed: %w",
			networking.NewHTTPError(resp.StatusCode, req.URL.Redacted(), bodyPreview(body)))
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("profile response from %s is not valid JSON", req.URL.Path)
	}
	return gjson.ParseBytes(body), nil
}

// bodyPreview returns the start of an error response body for logs.
func bodyPreview(body []byte) string {
	const maxPreview = 200
	if len(body) > maxPreview {
		body = body[:maxPreview]
	}
	return strings.TrimSpace(string(body))
}

// joinURL appends path to a base URL without doubling the slash.
func joinURL(base, path string) string {
	return strings.TrimSuffix(base, "/") + path
}

// optString returns the string value of r, or nil when it is absent or null.
func optString(r gjson.Result) *string {
	if !r.Exists() || r.Type == gjson.Null {
		return nil
	}
	return identity.Ptr(r.String())
}

// optBool returns the boolean value of r, or nil when it is absent or null.
func optBool(r gjson.Result) *bool {
	if r.Type != gjson.True && r.Type != gjson.False {
		return nil
	}
	return identity.Ptr(r.Bool())
}

// userFromOIDCClaims maps standard OIDC claims (from userinfo or the ID token)
// onto a user. The sub claim becomes the external id.
func userFromOIDCClaims(connection string, raw []byte) (*identity.User, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: claims are not valid JSON", ErrProfileFetch)
	}
	claims := gjson.ParseBytes(raw)

	sub := claims.Get("sub").String()
	if sub == "" {
		return nil, fmt.Errorf("%w: claims missing sub", ErrProfileFetch)
	}

	user := identity.NewUser(connection, sub)
	user.Email = optString(claims.Get("email"))
	user.EmailVerified = optBool(claims.Get("email_verified"))
	user.FamilyName = optString(claims.Get("family_name"))
	user.GivenName = optString(claims.Get("given_name"))
	user.Username = optString(claims.Get("preferred_username"))
	user.Name = optString(claims.Get("name"))
	user.Nickname = optString(claims.Get("nickname"))
	user.Picture = optString(claims.Get("picture"))
	user.PhoneNumber = optString(claims.Get("phone_number"))
	user.PhoneVerified = optBool(claims.Get("phone_number_verified"))
	user.UpdatedAt = optString(claims.Get("updated_at"))
	return user, nil
}
