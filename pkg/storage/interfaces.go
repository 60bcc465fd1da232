// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package storage provides the durable storage interfaces for edgeauth:
// registered applications and federated users.
package storage

import (
	"context"

	"github.com/stacklok/edgeauth/pkg/authserver/identity"
)

//go:generate mockgen -destination=mocks/mock_stores.go -package=mocks -source=interfaces.go ApplicationStore,UserStore

// ApplicationStore defines the interface for managing registered client applications.
type ApplicationStore interface {
	// CreateApplication stores a new application. It returns ErrAlreadyExists
	// if the client id is taken.
	CreateApplication(ctx context.Context, app *identity.Application) error
	// GetApplication retrieves an application by client id, or ErrNotFound.
	GetApplication(ctx context.Context, clientID string) (*identity.Application, error)
	// ListApplications returns all applications ordered by name.
	ListApplications(ctx context.Context) ([]*identity.Application, error)
}

// UserStore defines the interface for managing federated users.
type UserStore interface {
	// UpsertUser inserts the user or, if the id exists, overwrites every column.
	UpsertUser(ctx context.Context, user *identity.User) error
	// GetUser retrieves a user by id, or ErrNotFound.
	GetUser(ctx context.Context, id string) (*identity.User, error)
}
