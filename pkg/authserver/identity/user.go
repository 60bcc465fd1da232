// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package identity holds the records edgeauth persists about people and the
// client applications they sign in to.
package identity

import (
	"errors"
	"strings"
)

// idSeparator joins the provider name and the provider's own user id.
const idSeparator = "|"

// ErrInvalidUserID is returned when a user id is not of the form provider|external_id.
var ErrInvalidUserID = errors.New("user id must be of the form provider|external_id")

// User is the normalized profile of a federated user.
//
// Only ID is mandatory. Every optional field is a pointer so that "absent"
// survives the trip through the relational store and into ID token claims.
type User struct {
	ID string `json:"id"`

	Email         *string `json:"email,omitempty"`
	EmailVerified *bool   `json:"email_verified,omitempty"`

	FamilyName *string `json:"family_name,omitempty"`
	GivenName  *string `json:"given_name,omitempty"`
	Username   *string `json:"username,omitempty"`
	Name       *string `json:"name,omitempty"`
	Nickname   *string `json:"nickname,omitempty"`
	Picture    *string `json:"picture,omitempty"`

	CreatedAt *string `json:"created_at,omitempty"`
	UpdatedAt *string `json:"updated_at,omitempty"`

	Blocked           *bool   `json:"blocked,omitempty"`
	LastIP            *string `json:"last_ip,omitempty"`
	LastLogin         *string `json:"last_login,omitempty"`
	LastPasswordReset *string `json:"last_password_reset,omitempty"`
	LoginsCount       *int64  `json:"logins_count,omitempty"`

	Multifactor   *string `json:"multifactor,omitempty"`
	PhoneNumber   *string `json:"phone_number,omitempty"`
	PhoneVerified *bool   `json:"phone_verified,omitempty"`
}

// NewUser returns a User with only its id set.
func NewUser(provider, externalID string) *User {
	return &User{ID: UserID(provider, externalID)}
}

// UserID builds the globally unique user id for an account at a provider.
func UserID(provider, externalID string) string {
	return provider + idSeparator + externalID
}

// SplitUserID returns the provider and external id encoded in a user id.
func SplitUserID(id string) (provider, externalID string, err error) {
	provider, externalID, ok := strings.Cut(id, idSeparator)
	if !ok || provider == "" || externalID == "" {
		return "", "", ErrInvalidUserID
	}
	return provider, externalID, nil
}

// Provider returns the provider prefix of the user's id.
func (u *User) Provider() string {
	provider, _, _ := strings.Cut(u.ID, idSeparator)
	return provider
}

// Ptr returns a pointer to v. It keeps optional profile fields terse to fill in.
func Ptr[T any](v T) *T {
	return &v
}

// StringOrNil returns nil for the empty string and a pointer to s otherwise.
// Provider payloads use "" and null interchangeably; both mean absent.
func StringOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
