// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// PutJSON stores v as JSON under key.
func PutJSON[T any](ctx context.Context, kv KV, key string, v *T, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	if err := kv.Set(ctx, key, data, ttl); err != nil {
		return fmt.Errorf("failed to store value: %w", err)
	}
	return nil
}

// GetJSON loads the JSON value stored under key.
func GetJSON[T any](ctx context.Context, kv KV, key string) (*T, error) {
	data, err := kv.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return decode[T](data)
}

// TakeJSON atomically loads and removes the JSON value stored under key.
func TakeJSON[T any](ctx context.Context, kv KV, key string) (*T, error) {
	data, err := kv.GetDel(ctx, key)
	if err != nil {
		return nil, err
	}
	return decode[T](data)
}

func decode[T any](data []byte) (*T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal value: %w", err)
	}
	return &v, nil
}
