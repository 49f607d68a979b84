// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

/*
Package storage defines the persistence contracts the sync engine consumes
and an in-memory implementation.

Entities are upserted by remote identifier. Runs and project statuses are
changed only through atomic read-modify-write callbacks (UpdateRun,
UpdateProjectStatus), so concurrent runs never overwrite each other's
changes. The DuckDB implementation lives in internal/database.
*/
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/trackersync/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// EntityRepository persists synchronized records.
type EntityRepository interface {
	// FindByRemoteID returns the stored record or ErrNotFound.
	FindByRemoteID(ctx context.Context, entity models.EntityType, remoteID string) (models.Record, error)
	// Upsert inserts or replaces a record keyed by its remote identifier.
	Upsert(ctx context.Context, record models.Record) error
	// CountIssues and CountWorklogs count rows for a project. An empty key counts everything.
	CountIssues(ctx context.Context, projectKey string) (int, error)
	CountWorklogs(ctx context.Context, projectKey string) (int, error)
	// IssueKeys returns the project's issue keys in ascending order.
	IssueKeys(ctx context.Context, projectKey string) ([]string, error)
}

// IntegrityQueries are the local-only checks run by the validation engine.
// Each returns the remote identifiers (or keys) of offending rows.
type IntegrityQueries interface {
	// OrphanedWorklogs lists worklogs whose issue is not stored.
	OrphanedWorklogs(ctx context.Context) ([]string, error)
	// IssuesWithoutProject lists issues whose project is not stored.
	IssuesWithoutProject(ctx context.Context) ([]string, error)
	// ImplausibleWorklogs lists worklogs with a non-positive duration, a
	// duration above maxSeconds, or a start after now.
	ImplausibleWorklogs(ctx context.Context, maxSeconds int64, now time.Time) ([]string, error)
	// DuplicateIssueKeys lists issue keys carried by more than one remote record.
	DuplicateIssueKeys(ctx context.Context) ([]string, error)
}

// RunFilter narrows ListRuns.
type RunFilter struct {
	Statuses []models.RunStatus
	Limit    int
}

// RunRepository persists sync runs and their append-only logs.
type RunRepository interface {
	CreateRun(ctx context.Context, run *models.SyncRun) error
	GetRun(ctx context.Context, id string) (*models.SyncRun, error)
	// UpdateRun applies fn atomically and returns the stored result.
	UpdateRun(ctx context.Context, id string, fn func(run *models.SyncRun) error) (*models.SyncRun, error)
	// ListRuns returns runs newest first.
	ListRuns(ctx context.Context, filter RunFilter) ([]*models.SyncRun, error)
	AppendLog(ctx context.Context, entry *models.SyncLogEntry) error
	ListLogs(ctx context.Context, runID string) ([]*models.SyncLogEntry, error)
}

// StatusRepository persists the per-project "last known good" pointer.
type StatusRepository interface {
	GetProjectStatus(ctx context.Context, projectKey string) (*models.ProjectSyncStatus, error)
	// UpdateProjectStatus applies fn atomically, creating the row if needed.
	UpdateProjectStatus(ctx context.Context, projectKey string, fn func(s *models.ProjectSyncStatus) error) (*models.ProjectSyncStatus, error)
	ListProjectStatuses(ctx context.Context) ([]*models.ProjectSyncStatus, error)
}

// Store bundles every repository.
type Store interface {
	EntityRepository
	IntegrityQueries
	RunRepository
	StatusRepository
	Close() error
}

// CloneRun returns a copy of run that shares no mutable state with it.
func CloneRun(run *models.SyncRun) *models.SyncRun {
	out := *run
	out.Scope.ProjectKeys = append([]string(nil), run.Scope.ProjectKeys...)
	out.FailedProjects = append([]string(nil), run.FailedProjects...)
	if run.Validation != nil {
		v := *run.Validation
		v.Projects = append([]models.ProjectValidation(nil), run.Validation.Projects...)
		v.Findings = append([]models.Finding(nil), run.Validation.Findings...)
		out.Validation = &v
	}
	return &out
}
