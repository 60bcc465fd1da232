// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/edgeauth/pkg/authserver/identity"
	"github.com/stacklok/edgeauth/pkg/authserver/scopes"
	"github.com/stacklok/edgeauth/pkg/storage"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s", filepath.Join(t.TempDir(), "edgeauth.db"))
	db, err := Open(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpen_AppliesMigrations(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	version, err := db.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)
	require.NoError(t, db.Ping(context.Background()))
}

func TestOpen_Reopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dsn := "file:" + filepath.Join(t.TempDir(), "edgeauth.db")

	db, err := Open(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, NewApplicationStore(db).CreateApplication(ctx, &identity.Application{
		ClientID: "c1", ClientSecret: "s1", RedirectURI: "https://app.example/cb", Name: "one",
	}))
	require.NoError(t, db.Close())

	db, err = Open(ctx, dsn)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	app, err := NewApplicationStore(db).GetApplication(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "one", app.Name)
}

func TestApplicationStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewApplicationStore(openTestDB(t))

	desc := "the second app"
	apps := []*identity.Application{
		{
			ClientID:     "client-b",
			ClientSecret: "secret-b",
			RedirectURI:  "https://b.example/callback",
			Name:         "bravo",
			Description:  &desc,
			Scopes:       scopes.New(scopes.ReadUserIDPTokens),
		},
		{
			ClientID:     "client-a",
			ClientSecret: "secret-a",
			RedirectURI:  "https://a.example/callback",
			Name:         "alpha",
			Scopes:       scopes.New(),
		},
	}
	for _, app := range apps {
		require.NoError(t, store.CreateApplication(ctx, app))
	}

	t.Run("get", func(t *testing.T) {
		t.Parallel()
		got, err := store.GetApplication(ctx, "client-b")
		require.NoError(t, err)
		assert.Equal(t, "secret-b", got.ClientSecret)
		assert.Equal(t, "https://b.example/callback", got.RedirectURI)
		require.NotNil(t, got.Description)
		assert.Equal(t, desc, *got.Description)
		assert.True(t, got.Scopes.Contains(scopes.ReadUserIDPTokens))
	})

	t.Run("missing description stays nil", func(t *testing.T) {
		t.Parallel()
		got, err := store.GetApplication(ctx, "client-a")
		require.NoError(t, err)
		assert.Nil(t, got.Description)
		assert.Empty(t, got.Scopes)
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()
		_, err := store.GetApplication(ctx, "nope")
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("duplicate client id", func(t *testing.T) {
		t.Parallel()
		err := store.CreateApplication(ctx, &identity.Application{
			ClientID: "client-a", ClientSecret: "x", RedirectURI: "https://x.example", Name: "dup",
		})
		require.ErrorIs(t, err, storage.ErrAlreadyExists)
	})

	t.Run("list ordered by name", func(t *testing.T) {
		t.Parallel()
		got, err := store.ListApplications(ctx)
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(got), 2)
		assert.Equal(t, "alpha", got[0].Name)
		assert.Equal(t, "bravo", got[1].Name)
	})
}

func TestApplicationStore_NilApplication(t *testing.T) {
	t.Parallel()

	store := NewApplicationStore(openTestDB(t))
	require.Error(t, store.CreateApplication(context.Background(), nil))
}

func TestUserStore_Upsert(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewUserStore(openTestDB(t))

	first := identity.NewUser("github", "42")
	first.Email = identity.Ptr("old@example.com")
	first.EmailVerified = identity.Ptr(true)
	first.Username = identity.Ptr("octo")
	first.Picture = identity.Ptr("https://avatars.example/42")
	first.LoginsCount = identity.Ptr(int64(3))
	require.NoError(t, store.UpsertUser(ctx, first))

	second := identity.NewUser("github", "42")
	second.Email = identity.Ptr("new@example.com")
	second.EmailVerified = identity.Ptr(false)
	second.Name = identity.Ptr("Octo Cat")
	require.NoError(t, store.UpsertUser(ctx, second))

	got, err := store.GetUser(ctx, "github|42")
	require.NoError(t, err)
	if diff := cmp.Diff(second, got); diff != "" {
		t.Errorf("user mismatch (-want +got):\n%s", diff)
	}

	n, err := store.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUserStore_Errors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewUserStore(openTestDB(t))

	_, err := store.GetUser(ctx, "discord|1")
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.Error(t, store.UpsertUser(ctx, nil))
	require.Error(t, store.UpsertUser(ctx, &identity.User{}))
}
