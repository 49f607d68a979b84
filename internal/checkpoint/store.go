// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

/*
Package checkpoint persists per-project sync progress so an interrupted run
can be resumed.

Each checkpoint moves through active -> completed or active -> failed. A
checkpoint is written when a project starts, updated after every processed
batch, and finalized when the project loop exits. Every update is its own
atomic read-modify-write in the Store; no lock is held between writes.

AnalyzeResume inspects the checkpoints of a run and decides how a recovery
run should proceed. Purge removes checkpoints belonging to terminal runs once
they are older than the retention window.
*/
package checkpoint

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/tomtom215/trackersync/internal/models"
)

var (
	// ErrNotFound is returned when no checkpoint has the requested ID.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrInvalidTransition is returned when a finalized checkpoint is modified.
	ErrInvalidTransition = errors.New("invalid checkpoint transition")
)

// UpdateFunc mutates a checkpoint inside an atomic update.
type UpdateFunc func(cp *models.Checkpoint) error

// Store is the checkpoint persistence contract.
type Store interface {
	Create(ctx context.Context, cp *models.Checkpoint) error
	// Update applies fn atomically and returns the stored result.
	Update(ctx context.Context, id string, fn UpdateFunc) (*models.Checkpoint, error)
	Get(ctx context.Context, id string) (*models.Checkpoint, error)
	// ListByRun returns a run's checkpoints ordered by creation time.
	ListByRun(ctx context.Context, runID string) ([]*models.Checkpoint, error)
	List(ctx context.Context) ([]*models.Checkpoint, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu          sync.RWMutex
	checkpoints map[string]*models.Checkpoint
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{checkpoints: make(map[string]*models.Checkpoint)}
}

func (s *MemoryStore) Create(_ context.Context, cp *models.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.checkpoints[cp.ID]; exists {
		return errors.New("checkpoint " + cp.ID + " already exists")
	}
	s.checkpoints[cp.ID] = cloneCheckpoint(cp)
	return nil
}

func (s *MemoryStore) Update(_ context.Context, id string, fn UpdateFunc) (*models.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.checkpoints[id]
	if !ok {
		return nil, ErrNotFound
	}
	next := cloneCheckpoint(current)
	if err := fn(next); err != nil {
		return nil, err
	}
	s.checkpoints[id] = next
	return cloneCheckpoint(next), nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.checkpoints[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneCheckpoint(cp), nil
}

func (s *MemoryStore) ListByRun(_ context.Context, runID string) ([]*models.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Checkpoint
	for _, cp := range s.checkpoints {
		if cp.RunID == runID {
			out = append(out, cloneCheckpoint(cp))
		}
	}
	sortByCreated(out)
	return out, nil
}

func (s *MemoryStore) List(_ context.Context) ([]*models.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Checkpoint, 0, len(s.checkpoints))
	for _, cp := range s.checkpoints {
		out = append(out, cloneCheckpoint(cp))
	}
	sortByCreated(out)
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.checkpoints, id)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func cloneCheckpoint(cp *models.Checkpoint) *models.Checkpoint {
	out := *cp
	if cp.Progress.Extra != nil {
		out.Progress.Extra = make(map[string]string, len(cp.Progress.Extra))
		for k, v := range cp.Progress.Extra {
			out.Progress.Extra[k] = v
		}
	}
	if cp.Progress.Since != nil {
		since := *cp.Progress.Since
		out.Progress.Since = &since
	}
	if cp.CompletedAt != nil {
		at := *cp.CompletedAt
		out.CompletedAt = &at
	}
	return &out
}

func sortByCreated(cps []*models.Checkpoint) {
	sort.SliceStable(cps, func(i, j int) bool {
		if cps[i].CreatedAt.Equal(cps[j].CreatedAt) {
			return cps[i].ID < cps[j].ID
		}
		return cps[i].CreatedAt.Before(cps[j].CreatedAt)
	})
}

var _ Store = (*MemoryStore)(nil)
