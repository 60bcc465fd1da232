// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/stacklok/edgeauth/pkg/authserver/identity"
	"github.com/stacklok/edgeauth/pkg/storage"
)

// UserStore implements storage.UserStore using SQLite.
type UserStore struct {
	db *sql.DB
}

var _ storage.UserStore = (*UserStore)(nil)

// NewUserStore creates a new SQLite-backed UserStore.
func NewUserStore(db *DB) *UserStore {
	return &UserStore{db: db.DB()}
}

// userColumns lists every users column; id comes first.
var userColumns = []string{
	"id", "email", "email_verified", "family_name", "given_name", "username", "name",
	"nickname", "picture", "created_at", "updated_at", "blocked", "last_ip", "last_login",
	"last_password_reset", "logins_count", "multifactor", "phone_number", "phone_verified",
}

var upsertUserQuery = buildUpsertUserQuery()

func buildUpsertUserQuery() string {
	updates := make([]string, 0, len(userColumns)-1)
	for _, col := range userColumns[1:] {
		updates = append(updates, col+" = excluded."+col)
	}
	return fmt.Sprintf(`INSERT INTO users (%s) VALUES (%s) ON CONFLICT(id) DO UPDATE SET %s`,
		strings.Join(userColumns, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(userColumns)), ", "),
		strings.Join(updates, ", "),
	)
}

// UpsertUser inserts the user or overwrites every column of the existing row.
// Absent optional fields are written as NULL, so the last login always wins.
func (s *UserStore) UpsertUser(ctx context.Context, u *identity.User) error {
	if u == nil || u.ID == "" {
		return errors.New("user id is required")
	}

	_, err := s.db.ExecContext(ctx, upsertUserQuery,
		u.ID, value(u.Email), value(u.EmailVerified), value(u.FamilyName), value(u.GivenName),
		value(u.Username), value(u.Name), value(u.Nickname), value(u.Picture), value(u.CreatedAt),
		value(u.UpdatedAt), value(u.Blocked), value(u.LastIP), value(u.LastLogin),
		value(u.LastPasswordReset), value(u.LoginsCount), value(u.Multifactor),
		value(u.PhoneNumber), value(u.PhoneVerified),
	)
	if err != nil {
		return fmt.Errorf("upserting user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by id.
func (s *UserStore) GetUser(ctx context.Context, id string) (*identity.User, error) {
	var (
		u                                                   identity.User
		email, familyName, givenName, username, name        sql.Null[string]
		nickname, picture, createdAt, updatedAt, lastIP     sql.Null[string]
		lastLogin, lastPasswordReset, multifactor, phoneNum sql.Null[string]
		emailVerified, blocked, phoneVerified               sql.Null[bool]
		loginsCount                                         sql.Null[int64]
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT `+strings.Join(userColumns, ", ")+` FROM users WHERE id = ?`, id,
	).Scan(
		&u.ID, &email, &emailVerified, &familyName, &givenName, &username, &name,
		&nickname, &picture, &createdAt, &updatedAt, &blocked, &lastIP, &lastLogin,
		&lastPasswordReset, &loginsCount, &multifactor, &phoneNum, &phoneVerified,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	u.Email = nullable(email)
	u.EmailVerified = nullable(emailVerified)
	u.FamilyName = nullable(familyName)
	u.GivenName = nullable(givenName)
	u.Username = nullable(username)
	u.Name = nullable(name)
	u.Nickname = nullable(nickname)
	u.Picture = nullable(picture)
	u.CreatedAt = nullable(createdAt)
	u.UpdatedAt = nullable(updatedAt)
	u.Blocked = nullable(blocked)
	u.LastIP = nullable(lastIP)
	u.LastLogin = nullable(lastLogin)
	u.LastPasswordReset = nullable(lastPasswordReset)
	u.LoginsCount = nullable(loginsCount)
	u.Multifactor = nullable(multifactor)
	u.PhoneNumber = nullable(phoneNum)
	u.PhoneVerified = nullable(phoneVerified)

	return &u, nil
}

// CountUsers returns the number of stored users.
func (s *UserStore) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return n, nil
}
