// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package checkpoint

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/trackersync/internal/clock"
	"github.com/tomtom215/trackersync/internal/metrics"
	"github.com/tomtom215/trackersync/internal/models"
)

// Manager drives checkpoint state transitions on top of a Store.
type Manager struct {
	store Store
	clock clock.Clock
}

// NewManager creates a Manager. A nil clock uses the wall clock.
func NewManager(store Store, clk clock.Clock) *Manager {
	if clk == nil {
		clk = clock.Real()
	}
	return &Manager{store: store, clock: clk}
}

// Store returns the underlying store.
func (m *Manager) Store() Store { return m.store }

// Begin creates an active checkpoint for projectKey within runID.
func (m *Manager) Begin(ctx context.Context, runID, projectKey string, kind models.CheckpointKind, progress models.CheckpointProgress) (*models.Checkpoint, error) {
	now := m.clock.Now().UTC()
	cp := &models.Checkpoint{
		ID:         uuid.NewString(),
		RunID:      runID,
		ProjectKey: projectKey,
		Kind:       kind,
		Status:     models.CheckpointActive,
		Progress:   progress,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err := m.store.Create(ctx, cp)
	metrics.RecordCheckpointWrite("create", err)
	if err != nil {
		return nil, fmt.Errorf("create checkpoint for %s: %w", projectKey, err)
	}
	return cp, nil
}

// Progress applies fn to an active checkpoint's progress payload.
func (m *Manager) Progress(ctx context.Context, id string, fn func(p *models.CheckpointProgress)) (*models.Checkpoint, error) {
	cp, err := m.store.Update(ctx, id, func(cp *models.Checkpoint) error {
		if cp.Status != models.CheckpointActive {
			return fmt.Errorf("%w: %s checkpoint cannot record progress", ErrInvalidTransition, cp.Status)
		}
		fn(&cp.Progress)
		cp.UpdatedAt = m.clock.Now().UTC()
		return nil
	})
	metrics.RecordCheckpointWrite("progress", err)
	return cp, err
}

// MarkProjectStored records that the project row has been persisted.
func (m *Manager) MarkProjectStored(ctx context.Context, id string) error {
	_, err := m.Progress(ctx, id, func(p *models.CheckpointProgress) { p.ProjectStored = true })
	return err
}

// Advance records processed/total counts and the last processed key.
func (m *Manager) Advance(ctx context.Context, id string, processed, total int, lastKey string) error {
	_, err := m.Progress(ctx, id, func(p *models.CheckpointProgress) {
		p.EntitiesProcessed = processed
		p.EntitiesTotal = total
		if lastKey != "" {
			p.LastEntityKey = lastKey
		}
	})
	return err
}

// Complete finalizes an active checkpoint as completed.
func (m *Manager) Complete(ctx context.Context, id string) error {
	return m.finish(ctx, id, models.CheckpointCompleted, "")
}

// Fail finalizes an active checkpoint as failed with cause embedded.
func (m *Manager) Fail(ctx context.Context, id string, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return m.finish(ctx, id, models.CheckpointFailed, msg)
}

func (m *Manager) finish(ctx context.Context, id string, status models.CheckpointStatus, errMsg string) error {
	_, err := m.store.Update(ctx, id, func(cp *models.Checkpoint) error {
		if cp.Status != models.CheckpointActive {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cp.Status, status)
		}
		now := m.clock.Now().UTC()
		cp.Status = status
		cp.Error = errMsg
		cp.UpdatedAt = now
		cp.CompletedAt = &now
		return nil
	})
	metrics.RecordCheckpointWrite(string(status), err)
	return err
}

// LatestActivity returns the most recent checkpoint update for runID.
// ok is false when the run has no checkpoints.
func LatestActivity(ctx context.Context, store Store, runID string) (at time.Time, ok bool, err error) {
	cps, err := store.ListByRun(ctx, runID)
	if err != nil {
		return time.Time{}, false, err
	}
	for _, cp := range cps {
		if cp.UpdatedAt.After(at) {
			at = cp.UpdatedAt
			ok = true
		}
	}
	return at, ok, nil
}
