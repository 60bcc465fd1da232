// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package crypto holds the small cryptographic helpers shared by the
// authorization flow: PKCE, random token material, OIDC hash claims and
// RSA key encoding.
package crypto

import (
	"crypto/subtle"

	"golang.org/x/oauth2"
)

// PKCEChallengeMethodS256 is the PKCE challenge method using SHA-256 (RFC 7636).
const PKCEChallengeMethodS256 = "S256"

// GeneratePKCEVerifier returns a fresh 43-character code_verifier
// (RFC 7636 section 4.1). It panics if crypto/rand fails.
func GeneratePKCEVerifier() string {
	return oauth2.GenerateVerifier()
}

// ComputePKCEChallenge returns the S256 code_challenge of verifier.
func ComputePKCEChallenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

// PKCEAuthCodeOptions returns the authorization URL parameters that carry
// the S256 challenge of verifier.
func PKCEAuthCodeOptions(verifier string) []oauth2.AuthCodeOption {
	return []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_challenge", ComputePKCEChallenge(verifier)),
		oauth2.SetAuthURLParam("code_challenge_method", PKCEChallengeMethodS256),
	}
}

// SecureCompare compares two secrets in constant time.
func SecureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
