// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/stacklok/edgeauth/pkg/authserver/identity"
	"github.com/stacklok/edgeauth/pkg/authserver/scopes"
	"github.com/stacklok/edgeauth/pkg/storage"
)

// ApplicationStore implements storage.ApplicationStore using SQLite.
type ApplicationStore struct {
	db *sql.DB
}

var _ storage.ApplicationStore = (*ApplicationStore)(nil)

// NewApplicationStore creates a new SQLite-backed ApplicationStore.
func NewApplicationStore(db *DB) *ApplicationStore {
	return &ApplicationStore{db: db.DB()}
}

const applicationColumns = `client_id, client_secret, redirect_uri, name, description, scopes`

// CreateApplication stores a new application.
func (s *ApplicationStore) CreateApplication(ctx context.Context, app *identity.Application) error {
	if app == nil {
		return errors.New("application cannot be nil")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO applications (`+applicationColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		app.ClientID, app.ClientSecret, app.RedirectURI, app.Name, value(app.Description), app.Scopes.String(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("application %q: %w", app.ClientID, storage.ErrAlreadyExists)
		}
		return fmt.Errorf("inserting application: %w", err)
	}
	return nil
}

// GetApplication retrieves an application by client id.
func (s *ApplicationStore) GetApplication(ctx context.Context, clientID string) (*identity.Application, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE client_id = ?`, clientID)

	app, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying application: %w", err)
	}
	return app, nil
}

// ListApplications returns all applications ordered by name.
func (s *ApplicationStore) ListApplications(ctx context.Context) ([]*identity.Application, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+applicationColumns+` FROM applications ORDER BY name, client_id`)
	if err != nil {
		return nil, fmt.Errorf("listing applications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var apps []*identity.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning application: %w", err)
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating applications: %w", err)
	}
	return apps, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApplication(row rowScanner) (*identity.Application, error) {
	var (
		app         identity.Application
		description sql.Null[string]
		rawScopes   string
	)
	if err := row.Scan(&app.ClientID, &app.ClientSecret, &app.RedirectURI, &app.Name, &description, &rawScopes); err != nil {
		return nil, err
	}
	app.Description = nullable(description)
	app.Scopes = scopes.Parse(rawScopes)
	return &app, nil
}
