// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"fmt"
	"time"
)

// Type defines the type of storage backend.
type Type string

const (
	// TypeMemory keeps entries in process memory. Suitable for a single instance.
	TypeMemory Type = "memory"

	// TypeRedis keeps entries in Redis, shared between instances.
	TypeRedis Type = "redis"

	// DefaultCleanupInterval is how often the in-memory backend drops expired entries.
	DefaultCleanupInterval = 5 * time.Minute
)

// Config configures the storage backend.
type Config struct {
	// Type specifies the storage backend type. Defaults to memory.
	Type Type `mapstructure:"type" yaml:"type"`

	// Redis configures the Redis backend when Type is redis.
	Redis RedisConfig `mapstructure:"redis" yaml:"redis"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Type: TypeMemory,
	}
}

// New opens the backend described by cfg.
func New(ctx context.Context, cfg *Config) (KV, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	switch cfg.Type {
	case "", TypeMemory:
		return NewMemoryKV(), nil
	case TypeRedis:
		return NewRedisKV(ctx, cfg.Redis)
	default:
		return nil, fmt.Errorf("unknown storage type %q (must be %q or %q)", cfg.Type, TypeMemory, TypeRedis)
	}
}
