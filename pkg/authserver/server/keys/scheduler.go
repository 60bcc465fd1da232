// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package keys

import (
	"context"
	"time"
)

// RotationObserver is told the outcome of every scheduled rotation.
type RotationObserver func(RotationOutcome)

// Scheduler runs Manager.Rotate once at start and then on every tick.
type Scheduler struct {
	manager  *Manager
	interval time.Duration
	observe  RotationObserver
}

// NewScheduler creates a scheduler using the manager's rotation interval.
// observe may be nil.
func NewScheduler(manager *Manager, observe RotationObserver) *Scheduler {
	if observe == nil {
		observe = func(RotationOutcome) {}
	}
	return &Scheduler{
		manager:  manager,
		interval: manager.config.RotationInterval,
		observe:  observe,
	}
}

// Run blocks until ctx is done. Rotation errors are logged, not returned, so
// one failing store round trip does not stop the server.
func (s *Scheduler) Run(ctx context.Context) error {
	s.rotate(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.rotate(ctx)
		}
	}
}

func (s *Scheduler) rotate(ctx context.Context) {
	outcome, err := s.manager.Rotate(ctx)
	if err != nil {
		s.manager.logger.Error("signing key rotation failed", "error", err)
	}
	s.observe(outcome)
}
