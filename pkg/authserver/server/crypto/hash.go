// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package crypto

import (
	"crypto/sha256"
	"encoding/base64"
)

// HalfHash computes the at_hash / c_hash value for RS256-signed ID tokens
// (OIDC Core Section 3.3.2.11): the base64url encoding of the left-most half
// of the SHA-256 digest of the ASCII value.
func HalfHash(value string) string {
	sum := sha256.Sum256([]byte(value))
	return base64.RawURLEncoding.EncodeToString(sum[:len(sum)/2])
}
