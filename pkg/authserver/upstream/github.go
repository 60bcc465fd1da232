// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"context"
	"errors"
	"net/http"

	"github.com/stacklok/edgeauth/pkg/authserver/identity"
)

// fetchGitHubProfile reads /user and /user/emails. The chosen email is the
// primary one, otherwise the first listed.
func fetchGitHubProfile(ctx context.Context, client *http.Client, apiBaseURL, accessToken string) (*identity.User, error) {
	authorization := "token " + accessToken

	profile, err := getJSON(ctx, client, joinURL(apiBaseURL, "/user"), authorization)
	if err != nil {
		return nil, err
	}

	id := profile.Get("id")
	if !id.Exists() {
		return nil, errors.New("github profile missing id")
	}

	emails, err := getJSON(ctx, client, joinURL(apiBaseURL, "/user/emails"), authorization)
	if err != nil {
		return nil, err
	}

	user := &identity.User{
		ID:        id.String(),
		Username:  optString(profile.Get("login")),
		Picture:   optString(profile.Get("avatar_url")),
		Name:      optString(profile.Get("name")),
		CreatedAt: optString(profile.Get("created_at")),
		UpdatedAt: optString(profile.Get("updated_at")),
	}

	email := emails.Get("#(primary==true)")
	if !email.Exists() {
		email = emails.Get("0")
	}
	if email.Exists() {
		user.Email = optString(email.Get("email"))
		user.EmailVerified = optBool(email.Get("verified"))
	}

	return user, nil
}
