// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package keys

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"

	servercrypto "github.com/stacklok/edgeauth/pkg/authserver/server/crypto"
	"github.com/stacklok/edgeauth/pkg/authserver/storage"
)

// Manager generates, rotates and serves the signing keys kept in a storage.KV.
// Every read goes to the store, so replicas sharing a store agree on the keys.
type Manager struct {
	kv     storage.KV
	config Config
	now    func() time.Time
	logger *slog.Logger

	// parsed caches decoded private keys by kid; PEM decoding is not free.
	mu     sync.Mutex
	parsed map[string]*rsa.PrivateKey
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the time source used for key ages.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a Manager over kv.
func NewManager(kv storage.KV, config Config, opts ...Option) (*Manager, error) {
	if kv == nil {
		return nil, errors.New("kv store is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid key config: %w", err)
	}

	m := &Manager{
		kv:     kv,
		config: config,
		now:    time.Now,
		logger: slog.Default(),
		parsed: make(map[string]*rsa.PrivateKey),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Rotate advances the key slots:
//   - with no current key, a key is generated;
//   - with a current key younger than MinAge, nothing happens;
//   - otherwise the current key is demoted to the previous slot (evicting the
//     key held there) and a new current key is generated.
//
// If another rotation holds the lock, Rotate does nothing and returns RotationLocked.
func (m *Manager) Rotate(ctx context.Context) (RotationOutcome, error) {
	// The lease holds a per-call token so that only its owner releases it.
	token, err := servercrypto.RandomAlphanumeric(servercrypto.KeyIDLength)
	if err != nil {
		return RotationFailed, fmt.Errorf("failed to generate rotation lock token: %w", err)
	}
	acquired, err := m.kv.SetNX(ctx, storage.RotationLockKey, []byte(token), m.config.LockTTL)
	if err != nil {
		return RotationFailed, fmt.Errorf("failed to acquire rotation lock: %w", err)
	}
	if !acquired {
		m.logger.Debug("key rotation already in progress")
		return RotationLocked, nil
	}
	defer func() {
		released, err := m.kv.DelIfEqual(context.WithoutCancel(ctx), storage.RotationLockKey, []byte(token))
		switch {
		case err != nil:
			m.logger.Warn("failed to release rotation lock", "error", err)
		case !released:
			m.logger.Warn("rotation lock expired before rotation finished", "lock_ttl", m.config.LockTTL)
		}
	}()

	current, err := m.load(ctx, storage.SigningKeySlot)
	if errors.Is(err, storage.ErrNotFound) {
		key, err := m.generate(ctx)
		if err != nil {
			return RotationFailed, err
		}
		m.logger.Info("generated signing key", "kid", key.KeyID)
		return RotationCreated, nil
	}
	if err != nil {
		return RotationFailed, err
	}

	if age := m.now().Sub(current.CreatedAt); age < m.config.MinAge {
		m.logger.Debug("signing key not due for rotation", "kid", current.KeyID, "age", age)
		return RotationNotDue, nil
	}

	// The old slot is written first so that a concurrent verifier always
	// finds the demoted key in one of the two slots.
	if err := m.put(ctx, storage.PreviousSigningKeySlot, current); err != nil {
		return RotationFailed, err
	}
	key, err := m.generate(ctx)
	if err != nil {
		return RotationFailed, err
	}

	m.logger.Info("rotated signing key", "kid", key.KeyID, "previous_kid", current.KeyID)
	return RotationRotated, nil
}

// SigningKey returns the current key, or ErrNoSigningKey.
func (m *Manager) SigningKey(ctx context.Context) (*SigningKeyData, error) {
	stored, err := m.load(ctx, storage.SigningKeySlot)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoSigningKey
	}
	if err != nil {
		return nil, err
	}
	return m.decode(stored)
}

// PublicKeys returns the current key and then the previous key, skipping a
// previous key whose kid equals the current one.
func (m *Manager) PublicKeys(ctx context.Context) ([]*SigningKeyData, error) {
	current, err := m.SigningKey(ctx)
	if err != nil {
		return nil, err
	}
	keys := []*SigningKeyData{current}

	previous, err := m.load(ctx, storage.PreviousSigningKeySlot)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return keys, nil
	case err != nil:
		return nil, err
	case previous.KeyID == current.KeyID:
		return keys, nil
	}

	prev, err := m.decode(previous)
	if err != nil {
		return nil, err
	}
	return append(keys, prev), nil
}

// JWKS returns the public JSON Web Key Set.
func (m *Manager) JWKS(ctx context.Context) (*jose.JSONWebKeySet, error) {
	keys, err := m.PublicKeys(ctx)
	if err != nil {
		return nil, err
	}

	set := &jose.JSONWebKeySet{Keys: make([]jose.JSONWebKey, 0, len(keys))}
	for _, k := range keys {
		set.Keys = append(set.Keys, jose.JSONWebKey{
			Key:       &k.Key.PublicKey,
			KeyID:     k.KeyID,
			Algorithm: Algorithm,
			Use:       "sig",
		})
	}
	return set, nil
}

// Verify checks the signature of a compact JWS against the current JWKS and
// decodes its claims into dest. Tokens whose kid has been evicted fail with
// ErrUnknownKey. Expiry is checked against the manager's clock.
func (m *Manager) Verify(ctx context.Context, raw string, dest ...any) (*jwt.Claims, error) {
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.RS256})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if len(tok.Headers) != 1 {
		return nil, errors.New("token must have exactly one signature")
	}

	jwks, err := m.JWKS(ctx)
	if err != nil {
		return nil, err
	}
	matches := jwks.Key(tok.Headers[0].KeyID)
	if len(matches) == 0 {
		return nil, ErrUnknownKey
	}

	var claims jwt.Claims
	if err := tok.Claims(matches[0].Key, append([]any{&claims}, dest...)...); err != nil {
		return nil, fmt.Errorf("failed to verify token: %w", err)
	}
	if err := claims.ValidateWithLeeway(jwt.Expected{Time: m.now()}, 0); err != nil {
		return nil, fmt.Errorf("invalid token claims: %w", err)
	}
	return &claims, nil
}

// generate creates a new key and writes it to the current slot.
func (m *Manager) generate(ctx context.Context) (*SigningKeyData, error) {
	key, err := servercrypto.GenerateRSAKey(m.config.KeyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	kid, err := servercrypto.RandomAlphanumeric(servercrypto.KeyIDLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key id: %w", err)
	}

	data := &SigningKeyData{KeyID: kid, Key: key, CreatedAt: m.now().UTC()}
	stored := &storedKey{
		KeyID:     kid,
		CreatedAt: data.CreatedAt,
		PEM:       servercrypto.EncodeRSAPrivateKeyPEM(key),
	}
	if err := m.put(ctx, storage.SigningKeySlot, stored); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.parsed[kid] = key
	m.mu.Unlock()
	return data, nil
}

func (m *Manager) load(ctx context.Context, slot string) (*storedKey, error) {
	raw, err := m.kv.Get(ctx, slot)
	if err != nil {
		return nil, err
	}
	var stored storedKey
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("failed to decode key slot %q: %w", slot, err)
	}
	return &stored, nil
}

func (m *Manager) put(ctx context.Context, slot string, key *storedKey) error {
	raw, err := json.Marshal(key)
	if err != nil {
		return fmt.Errorf("failed to encode key: %w", err)
	}
	if err := m.kv.Set(ctx, slot, raw, 0); err != nil {
		return fmt.Errorf("failed to write key slot %q: %w", slot, err)
	}
	return nil
}

// decode returns the parsed private key of a slot, using the cache by kid.
func (m *Manager) decode(stored *storedKey) (*SigningKeyData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key, ok := m.parsed[stored.KeyID]
	if !ok {
		var err error
		key, err = servercrypto.ParseRSAPrivateKeyPEM(stored.PEM)
		if err != nil {
			return nil, fmt.Errorf("failed to parse signing key %q: %w", stored.KeyID, err)
		}
		// Only the two slots are ever live; drop stale entries.
		if len(m.parsed) >= 4 {
			clear(m.parsed)
		}
		m.parsed[stored.KeyID] = key
	}
	return &SigningKeyData{KeyID: stored.KeyID, Key: key, CreatedAt: stored.CreatedAt}, nil
}
