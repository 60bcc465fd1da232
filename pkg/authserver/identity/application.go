// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package identity

import "github.com/stacklok/edgeauth/pkg/authserver/scopes"

// Application is a client registered to run the authorization code flow.
type Application struct {
	ClientID     string     `json:"client_id"`
	ClientSecret string     `json:"-"`
	RedirectURI  string     `json:"redirect_uri"`
	Name         string     `json:"name"`
	Description  *string    `json:"description,omitempty"`
	Scopes       scopes.Set `json:"scopes"`
}
