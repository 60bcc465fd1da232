// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package keys manages the RSA keys that sign ID tokens.
//
// Keys live in two slots of the ephemeral store: the current key, used for
// signing, and the previous key, kept only so that tokens signed before the
// last rotation still verify. A key is therefore evicted only after it has
// been demoted once, and the JWKS never holds more than two keys.
package keys

import (
	"crypto/rsa"
	"errors"
	"time"
)

// Algorithm is the JWS algorithm of every signing key.
const Algorithm = "RS256"

var (
	// ErrNoSigningKey is returned when the current slot is empty.
	ErrNoSigningKey = errors.New("no signing key available")

	// ErrUnknownKey is returned when a token's kid is not in the JWKS.
	ErrUnknownKey = errors.New("token signed by unknown key")
)

// SigningKeyData represents a signing key with its metadata.
// This contains private key material and should not be exposed externally.
type SigningKeyData struct {
	// KeyID is the random kid of the key.
	KeyID string

	// Key is the private key used for signing.
	Key *rsa.PrivateKey

	// CreatedAt is when this key was generated.
	CreatedAt time.Time
}

// storedKey is the JSON form of a key slot.
type storedKey struct {
	KeyID     string    `json:"kid"`
	CreatedAt time.Time `json:"created_at"`
	PEM       string    `json:"pem"`
}

// RotationOutcome describes what a call to Rotate did.
type RotationOutcome string

const (
	// RotationCreated means the store had no key and one was generated.
	RotationCreated RotationOutcome = "created"
	// RotationRotated means the current key was demoted and replaced.
	RotationRotated RotationOutcome = "rotated"
	// RotationNotDue means the current key is younger than the minimum age.
	RotationNotDue RotationOutcome = "not_due"
	// RotationLocked means another rotation holds the lock.
	RotationLocked RotationOutcome = "locked"
	// RotationFailed means the rotation returned an error.
	RotationFailed RotationOutcome = "failed"
)
