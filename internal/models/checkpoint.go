// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package models

import "time"

// CheckpointKind distinguishes per-project checkpoints from the cross-cutting
// recovery checkpoint.
type CheckpointKind string

const (
	CheckpointProjectSync CheckpointKind = "project_sync"
	CheckpointRecovery    CheckpointKind = "recovery"
)

// CheckpointStatus is the state of a checkpoint. Transitions are
// active -> completed and active -> failed.
type CheckpointStatus string

const (
	CheckpointActive    CheckpointStatus = "active"
	CheckpointCompleted CheckpointStatus = "completed"
	CheckpointFailed    CheckpointStatus = "failed"
)

// Valid reports whether s is a known status.
func (s CheckpointStatus) Valid() bool {
	switch s {
	case CheckpointActive, CheckpointCompleted, CheckpointFailed:
		return true
	}
	return false
}

// CheckpointProgress is the progress payload stored with a checkpoint.
// EntitiesProcessed doubles as the pagination offset to resume from.
type CheckpointProgress struct {
	ProjectStored     bool              `json:"project_stored"`
	EntitiesProcessed int               `json:"entities_processed"`
	EntitiesTotal     int               `json:"entities_total"`
	LastEntityKey     string            `json:"last_entity_key,omitempty"`
	Since             *time.Time        `json:"since,omitempty"`
	Extra             map[string]string `json:"extra,omitempty"`
}

// Checkpoint is a durable progress marker for one project within one run.
type Checkpoint struct {
	ID          string             `json:"id"`
	RunID       string             `json:"run_id"`
	ProjectKey  string             `json:"project_key"`
	Kind        CheckpointKind     `json:"kind"`
	Status      CheckpointStatus   `json:"status"`
	Progress    CheckpointProgress `json:"progress"`
	Error       string             `json:"error,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
}
