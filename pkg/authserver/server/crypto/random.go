// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package crypto

import (
	"crypto/rand"
	"fmt"
)

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Lengths of the random values minted by the server.
const (
	AccessTokenLength   = 32
	RefreshTokenLength  = 64
	AuthCodeLength      = 16
	KeyIDLength         = 16
	ClientIDLength      = 32
	ClientSecretLength  = 64
	maxAlphanumericByte = 255 - (256 % len(alphanumeric))
)

// RandomAlphanumeric returns n characters drawn uniformly from [A-Za-z0-9].
func RandomAlphanumeric(n int) (string, error) {
	out := make([]byte, 0, n)
	buf := make([]byte, n+n/4+1)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			// Rejection sampling keeps the distribution uniform.
			if int(b) > maxAlphanumericByte {
				continue
			}
			out = append(out, alphanumeric[int(b)%len(alphanumeric)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}

// MustRandomAlphanumeric is RandomAlphanumeric for callers that cannot recover
// from an exhausted entropy source.
func MustRandomAlphanumeric(n int) string {
	s, err := RandomAlphanumeric(n)
	if err != nil {
		panic(err)
	}
	return s
}
