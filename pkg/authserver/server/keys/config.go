// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package keys

import (
	"fmt"
	"time"

	servercrypto "github.com/stacklok/edgeauth/pkg/authserver/server/crypto"
)

// Defaults for Config.
const (
	DefaultKeyBits          = 4096
	DefaultMinAge           = time.Hour
	DefaultRotationInterval = time.Hour
	DefaultLockTTL          = 30 * time.Second
)

// Config holds the key rotation settings.
// The caller is responsible for populating this from their own config source.
type Config struct {
	// KeyBits is the RSA modulus size of generated keys.
	KeyBits int `mapstructure:"key_bits" yaml:"key_bits"`

	// MinAge is how old the current key must be before Rotate replaces it.
	MinAge time.Duration `mapstructure:"min_age" yaml:"min_age"`

	// RotationInterval is how often the scheduler calls Rotate.
	RotationInterval time.Duration `mapstructure:"rotation_interval" yaml:"rotation_interval"`

	// LockTTL bounds how long a crashed rotation can block the next one.
	LockTTL time.Duration `mapstructure:"lock_ttl" yaml:"lock_ttl"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		KeyBits:          DefaultKeyBits,
		MinAge:           DefaultMinAge,
		RotationInterval: DefaultRotationInterval,
		LockTTL:          DefaultLockTTL,
	}
}

// Validate checks the settings.
func (c Config) Validate() error {
	if c.KeyBits < servercrypto.MinRSAKeyBits {
		return fmt.Errorf("key_bits must be at least %d, got %d", servercrypto.MinRSAKeyBits, c.KeyBits)
	}
	if c.MinAge < 0 {
		return fmt.Errorf("min_age must not be negative")
	}
	if c.RotationInterval <= 0 {
		return fmt.Errorf("rotation_interval must be positive")
	}
	if c.LockTTL <= 0 {
		return fmt.Errorf("lock_ttl must be positive")
	}
	return nil
}
