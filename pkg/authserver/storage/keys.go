// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

// Key layout of the ephemeral store.
const (
	// SigningKeySlot holds the current RSA signing key.
	SigningKeySlot = "rsa"
	// PreviousSigningKeySlot holds the key demoted by the last rotation.
	PreviousSigningKeySlot = "rsa:old"
	// RotationLockKey guards against concurrent rotations.
	RotationLockKey = "rsa:lock"
)

// StateKey returns the key of the AuthorizeState for a CSRF token.
func StateKey(csrf string) string { return "state:" + csrf }

// CodeKey returns the key of the CodeFlowState for an authorization code.
func CodeKey(code string) string { return "code:" + code }

// AccessTokenKey returns the key of the TokenMetadata for an access token.
func AccessTokenKey(token string) string { return "token:access:" + token }

// RefreshTokenKey returns the key of the TokenMetadata for a refresh token.
func RefreshTokenKey(token string) string { return "token:refresh:" + token }

// ConnectionTokensKey returns the key of a user's stored provider tokens.
func ConnectionTokensKey(userID string) string { return "connection:" + userID + ":tokens" }
