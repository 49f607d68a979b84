// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package models

import (
	"time"
)

// RunStatus is the lifecycle state of a SyncRun.
type RunStatus string

const (
	RunPending    RunStatus = "pending"
	RunInProgress RunStatus = "in_progress"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// SyncKind describes what triggered a run.
type SyncKind string

const (
	KindManual      SyncKind = "manual"
	KindScheduled   SyncKind = "scheduled"
	KindIncremental SyncKind = "incremental"
	KindRecovery    SyncKind = "recovery"
)

// Scope describes which projects a run covers and over which time window.
// An empty ProjectKeys means "all configured projects".
type Scope struct {
	ProjectKeys      []string   `json:"project_keys,omitempty" validate:"omitempty,dive,required,max=64"`
	Kind             SyncKind   `json:"kind" validate:"omitempty,oneof=manual scheduled incremental recovery"`
	Since            *time.Time `json:"since,omitempty"`
	Until            *time.Time `json:"until,omitempty"`
	ForceFullSync    bool       `json:"force_full_sync,omitempty"`
	OnlyWithWorklogs bool       `json:"only_with_worklogs,omitempty"`
	ResumedFrom      string     `json:"resumed_from,omitempty"`
}

// EntityCounts holds one counter per synchronized entity type.
type EntityCounts struct {
	Projects int `json:"projects"`
	Issues   int `json:"issues"`
	Worklogs int `json:"worklogs"`
	Users    int `json:"users"`
}

// Sum returns the total across all entity types.
func (c EntityCounts) Sum() int {
	return c.Projects + c.Issues + c.Worklogs + c.Users
}

// Add accumulates other into c.
func (c *EntityCounts) Add(other EntityCounts) {
	c.Projects += other.Projects
	c.Issues += other.Issues
	c.Worklogs += other.Worklogs
	c.Users += other.Users
}

// Increment bumps the counter for the given entity type.
func (c *EntityCounts) Increment(t EntityType, n int) {
	switch t {
	case EntityProject:
		c.Projects += n
	case EntityIssue:
		c.Issues += n
	case EntityWorklog:
		c.Worklogs += n
	case EntityUser:
		c.Users += n
	}
}

// SyncRun is one execution of the synchronization engine.
// Writes are owned by the orchestrator; once Status is terminal only the
// run log may grow.
type SyncRun struct {
	ID              string            `json:"id"`
	Status          RunStatus         `json:"status"`
	Scope           Scope             `json:"scope"`
	CreatedAt       time.Time         `json:"created_at"`
	StartedAt       *time.Time        `json:"started_at,omitempty"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
	UpdatedAt       time.Time         `json:"updated_at"`
	Totals          EntityCounts      `json:"totals"`
	Processed       EntityCounts      `json:"processed"`
	Created         int               `json:"created"`
	Updated         int               `json:"updated"`
	Unchanged       int               `json:"unchanged"`
	ErrorCount      int               `json:"error_count"`
	ErrorDetails    string            `json:"error_details,omitempty"`
	LastOperation   string            `json:"last_operation,omitempty"`
	Progress        float64           `json:"progress"`
	CancelRequested bool              `json:"cancel_requested,omitempty"`
	FailedProjects  []string          `json:"failed_projects,omitempty"`
	Validation      *ValidationResult `json:"validation,omitempty"`
}

// Duration returns how long the run took, or has taken so far.
func (r *SyncRun) Duration(now time.Time) time.Duration {
	if r.StartedAt == nil {
		return 0
	}
	if r.CompletedAt != nil {
		return r.CompletedAt.Sub(*r.StartedAt)
	}
	return now.Sub(*r.StartedAt)
}

// Severity of a run log entry or validation finding.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// SyncLogEntry is an append-only audit record attached to a run.
type SyncLogEntry struct {
	ID          string                 `json:"id"`
	RunID       string                 `json:"run_id"`
	Timestamp   time.Time              `json:"timestamp"`
	Severity    Severity               `json:"severity"`
	Message     string                 `json:"message"`
	Context     map[string]interface{} `json:"context,omitempty"`
	EntityType  EntityType             `json:"entity_type,omitempty"`
	EntityID    string                 `json:"entity_id,omitempty"`
	Operation   string                 `json:"operation,omitempty"`
	Category    string                 `json:"category,omitempty"`
	Remediation []string               `json:"remediation,omitempty"`
}

// ProjectSyncStatus is the durable last-known-good pointer for one project.
type ProjectSyncStatus struct {
	ProjectKey     string     `json:"project_key"`
	LastSyncAt     *time.Time `json:"last_sync_at,omitempty"`
	LastSuccessAt  *time.Time `json:"last_success_at,omitempty"`
	LastStatus     RunStatus  `json:"last_status,omitempty"`
	LastRunID      string     `json:"last_run_id,omitempty"`
	IssuesSynced   int        `json:"issues_synced"`
	WorklogsSynced int        `json:"worklogs_synced"`
	LastError      string     `json:"last_error,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// ProgressEvent is published to observers while a run is executing.
type ProgressEvent struct {
	RunID               string       `json:"run_id"`
	Operation           string       `json:"operation"`
	Percentage          float64      `json:"percentage"`
	Processed           EntityCounts `json:"processed"`
	Totals              EntityCounts `json:"totals"`
	Throughput          float64      `json:"throughput_per_second"`
	EstimatedCompletion *time.Time   `json:"estimated_completion,omitempty"`
	Timestamp           time.Time    `json:"timestamp"`
}
