// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package tokens

import (
	"github.com/go-jose/go-jose/v4/jwt"

	"github.com/stacklok/edgeauth/pkg/authserver/identity"
)

// IDTokenClaims is the payload of an issued ID token. Optional profile claims
// are omitted when the user has no value for them.
type IDTokenClaims struct {
	jwt.Claims

	AccessTokenHash string `json:"at_hash,omitempty"`
	CodeHash        string `json:"c_hash,omitempty"`

	Email               *string `json:"email,omitempty"`
	EmailVerified       *bool   `json:"email_verified,omitempty"`
	FamilyName          *string `json:"family_name,omitempty"`
	GivenName           *string `json:"given_name,omitempty"`
	PreferredUsername   *string `json:"preferred_username,omitempty"`
	Name                *string `json:"name,omitempty"`
	Nickname            *string `json:"nickname,omitempty"`
	Picture             *string `json:"picture,omitempty"`
	PhoneNumber         *string `json:"phone_number,omitempty"`
	PhoneNumberVerified *bool   `json:"phone_number_verified,omitempty"`
}

// NewIDTokenClaims maps the user's profile onto ID token claims. Registered
// claims other than sub are left for the caller.
func NewIDTokenClaims(u *identity.User) *IDTokenClaims {
	return &IDTokenClaims{
		Claims:              jwt.Claims{Subject: u.ID},
		Email:               u.Email,
		EmailVerified:       u.EmailVerified,
		FamilyName:          u.FamilyName,
		GivenName:           u.GivenName,
		PreferredUsername:   u.Username,
		Name:                u.Name,
		Nickname:            u.Nickname,
		Picture:             u.Picture,
		PhoneNumber:         u.PhoneNumber,
		PhoneNumberVerified: u.PhoneVerified,
	}
}

// ClaimsSupported lists the claims an ID token can carry, for discovery.
var ClaimsSupported = []string{
	"aud", "exp", "iat", "iss", "sub", "at_hash", "c_hash",
	"email", "email_verified", "family_name", "given_name", "preferred_username",
	"name", "nickname", "picture", "phone_number", "phone_number_verified",
}
