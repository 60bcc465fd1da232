// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backend pairs a KV with a way to move its clock forward.
type backend struct {
	kv      KV
	advance func(time.Duration)
}

func newRedisBackend(t *testing.T) backend {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return backend{
		kv:      NewRedisKVWithClient(client, "test:"),
		advance: mr.FastForward,
	}
}

func newMemoryBackend(t *testing.T) backend {
	t.Helper()
	var mu sync.Mutex
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	kv := NewMemoryKV(WithClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}))
	t.Cleanup(func() { _ = kv.Close() })
	return backend{
		kv: kv,
		advance: func(d time.Duration) {
			mu.Lock()
			defer mu.Unlock()
			now = now.Add(d)
		},
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, b backend)) {
	t.Helper()
	backends := map[string]func(*testing.T) backend{
		"redis":  newRedisBackend,
		"memory": newMemoryBackend,
	}
	for name, newBackend := range backends {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			fn(t, newBackend(t))
		})
	}
}

func TestKV_SetGet(t *testing.T) {
	t.Parallel()

	forEachBackend(t, func(t *testing.T, b backend) {
		ctx := context.Background()

		_, err := b.kv.Get(ctx, "missing")
		require.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, b.kv.Set(ctx, "k", []byte("v1"), 0))
		got, err := b.kv.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), got)

		require.NoError(t, b.kv.Set(ctx, "k", []byte("v2"), 0))
		got, err = b.kv.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), got)

		require.NoError(t, b.kv.Del(ctx, "k"))
		require.NoError(t, b.kv.Del(ctx, "k"))
		_, err = b.kv.Get(ctx, "k")
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestKV_TTL(t *testing.T) {
	t.Parallel()

	forEachBackend(t, func(t *testing.T, b backend) {
		ctx := context.Background()

		require.NoError(t, b.kv.Set(ctx, "short", []byte("x"), time.Minute))
		require.NoError(t, b.kv.Set(ctx, "forever", []byte("y"), 0))

		b.advance(59 * time.Second)
		_, err := b.kv.Get(ctx, "short")
		require.NoError(t, err)

		b.advance(2 * time.Second)
		_, err = b.kv.Get(ctx, "short")
		require.ErrorIs(t, err, ErrNotFound)

		b.advance(365 * 24 * time.Hour)
		_, err = b.kv.Get(ctx, "forever")
		require.NoError(t, err)
	})
}

func TestKV_GetDel(t *testing.T) {
	t.Parallel()

	forEachBackend(t, func(t *testing.T, b backend) {
		ctx := context.Background()

		require.NoError(t, b.kv.Set(ctx, "once", []byte("v"), time.Minute))

		got, err := b.kv.GetDel(ctx, "once")
		require.NoError(t, err)
		assert.Equal(t, []byte("v"), got)

		_, err = b.kv.GetDel(ctx, "once")
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestKV_GetDelConcurrent(t *testing.T) {
	t.Parallel()

	forEachBackend(t, func(t *testing.T, b backend) {
		ctx := context.Background()
		require.NoError(t, b.kv.Set(ctx, "race", []byte("v"), time.Minute))

		var winners atomic.Int32
		var wg sync.WaitGroup
		for range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := b.kv.GetDel(ctx, "race"); err == nil {
					winners.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), winners.Load())
	})
}

func TestKV_SetNX(t *testing.T) {
	t.Parallel()

	forEachBackend(t, func(t *testing.T, b backend) {
		ctx := context.Background()

		ok, err := b.kv.SetNX(ctx, "lock", []byte("a"), 30*time.Second)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = b.kv.SetNX(ctx, "lock", []byte("b"), 30*time.Second)
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := b.kv.Get(ctx, "lock")
		require.NoError(t, err)
		assert.Equal(t, []byte("a"), got)

		b.advance(31 * time.Second)
		ok, err = b.kv.SetNX(ctx, "lock", []byte("c"), 30*time.Second)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestKV_DelIfEqual(t *testing.T) {
	t.Parallel()

	forEachBackend(t, func(t *testing.T, b backend) {
		ctx := context.Background()

		deleted, err := b.kv.DelIfEqual(ctx, "lock", []byte("a"))
		require.NoError(t, err)
		assert.False(t, deleted, "absent key")

		require.NoError(t, b.kv.Set(ctx, "lock", []byte("b"), 30*time.Second))

		deleted, err = b.kv.DelIfEqual(ctx, "lock", []byte("a"))
		require.NoError(t, err)
		assert.False(t, deleted)
		got, err := b.kv.Get(ctx, "lock")
		require.NoError(t, err)
		assert.Equal(t, []byte("b"), got)

		deleted, err = b.kv.DelIfEqual(ctx, "lock", []byte("b"))
		require.NoError(t, err)
		assert.True(t, deleted)
		_, err = b.kv.Get(ctx, "lock")
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestRedisKV_KeyPrefix(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	kv := NewRedisKVWithClient(client, "edgeauth:")

	require.NoError(t, kv.Set(context.Background(), StateKey("abc"), []byte("{}"), AuthorizeStateTTL))

	assert.True(t, mr.Exists("edgeauth:state:abc"))
	assert.Equal(t, AuthorizeStateTTL, mr.TTL("edgeauth:state:abc"))
}

func TestNewRedisKV_RequiresAddress(t *testing.T) {
	t.Parallel()

	_, err := NewRedisKV(context.Background(), RedisConfig{})
	require.Error(t, err)
}

func TestNewRedisKV_Connects(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	kv, err := NewRedisKV(context.Background(), RedisConfig{Addrs: []string{mr.Addr()}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	require.NoError(t, kv.Ping(context.Background()))
}

func TestNew_UnknownType(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), &Config{Type: "etcd"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown storage type")
}
