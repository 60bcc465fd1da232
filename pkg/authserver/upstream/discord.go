// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stacklok/edgeauth/pkg/authserver/identity"
)

const discordCDN = "https://cdn.discordapp.com"

func fetchDiscordProfile(ctx context.Context, client *http.Client, apiBaseURL, accessToken string) (*identity.User, error) {
	profile, err := getJSON(ctx, client, joinURL(apiBaseURL, "/users/@me"), "Bearer "+accessToken)
	if err != nil {
		return nil, err
	}

	id := profile.Get("id").String()
	if id == "" {
		return nil, errors.New("discord profile missing id")
	}

	user := &identity.User{
		ID:            id,
		Username:      optString(profile.Get("username")),
		Name:          optString(profile.Get("global_name")),
		Email:         optString(profile.Get("email")),
		EmailVerified: optBool(profile.Get("verified")),
	}
	if avatar := profile.Get("avatar").String(); avatar != "" {
		user.Picture = identity.Ptr(discordAvatarURL(id, avatar))
	}
	return user, nil
}

// discordAvatarURL returns the CDN URL of an avatar hash. Animated avatars
// have an "a_" prefix and are served as gif.
func discordAvatarURL(userID, avatar string) string {
	ext := "png"
	if strings.HasPrefix(avatar, "a_") {
		ext = "gif"
	}
	return fmt.Sprintf("%s/avatars/%s/%s.%s", discordCDN, userID, avatar, ext)
}
