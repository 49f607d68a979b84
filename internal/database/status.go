// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/trackersync/internal/models"
	"github.com/tomtom215/trackersync/internal/storage"
)

const selectStatus = `SELECT project_key, last_sync_at, last_success_at, COALESCE(last_status, ''),
	COALESCE(last_run_id, ''), issues_synced, worklogs_synced, COALESCE(last_error, ''), updated_at
	FROM project_sync_status`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStatus(row rowScanner) (*models.ProjectSyncStatus, error) {
	var st models.ProjectSyncStatus
	var lastSync, lastSuccess sql.NullTime
	var status string
	if err := row.Scan(&st.ProjectKey, &lastSync, &lastSuccess, &status, &st.LastRunID,
		&st.IssuesSynced, &st.WorklogsSynced, &st.LastError, &st.UpdatedAt); err != nil {
		return nil, err
	}
	st.LastSyncAt = timePtrOf(lastSync)
	st.LastSuccessAt = timePtrOf(lastSuccess)
	st.LastStatus = models.RunStatus(status)
	st.UpdatedAt = st.UpdatedAt.UTC()
	return &st, nil
}

// GetProjectStatus returns the stored status or storage.ErrNotFound.
func (db *DB) GetProjectStatus(ctx context.Context, projectKey string) (st *models.ProjectSyncStatus, err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("select", "project_sync_status", start, err) }()

	st, err = scanStatus(db.conn.QueryRowContext(ctx, selectStatus+` WHERE project_key = ?`, projectKey))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load status for %s: %w", projectKey, err)
	}
	return st, nil
}

// UpdateProjectStatus applies fn to the project's status, creating it if missing.
func (db *DB) UpdateProjectStatus(ctx context.Context, projectKey string, fn func(s *models.ProjectSyncStatus) error) (*models.ProjectSyncStatus, error) {
	unlock := db.lockRow("status:" + projectKey)
	defer unlock()

	next, err := db.GetProjectStatus(ctx, projectKey)
	if errors.Is(err, storage.ErrNotFound) {
		next, err = &models.ProjectSyncStatus{ProjectKey: projectKey}, nil
	}
	if err != nil {
		return nil, err
	}
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ProjectKey = projectKey
	if next.UpdatedAt.IsZero() {
		next.UpdatedAt = time.Now().UTC()
	}

	ctx, cancel := ensureContext(ctx)
	defer cancel()
	start := time.Now()
	err = retryOnConflict(ctx, func() error {
		_, execErr := db.conn.ExecContext(ctx, `
			INSERT INTO project_sync_status (project_key, last_sync_at, last_success_at, last_status, last_run_id,
				issues_synced, worklogs_synced, last_error, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (project_key) DO UPDATE SET
				last_sync_at = EXCLUDED.last_sync_at, last_success_at = EXCLUDED.last_success_at,
				last_status = EXCLUDED.last_status, last_run_id = EXCLUDED.last_run_id,
				issues_synced = EXCLUDED.issues_synced, worklogs_synced = EXCLUDED.worklogs_synced,
				last_error = EXCLUDED.last_error, updated_at = EXCLUDED.updated_at`,
			projectKey, nullTimePtr(next.LastSyncAt), nullTimePtr(next.LastSuccessAt), string(next.LastStatus),
			next.LastRunID, next.IssuesSynced, next.WorklogsSynced, next.LastError, next.UpdatedAt.UTC())
		return execErr
	})
	observe("upsert", "project_sync_status", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to store status for %s: %w", projectKey, err)
	}
	return next, nil
}

// ListProjectStatuses returns every project status ordered by key.
func (db *DB) ListProjectStatuses(ctx context.Context) (out []*models.ProjectSyncStatus, err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("select", "project_sync_status", start, err) }()

	rows, err := db.conn.QueryContext(ctx, selectStatus+` ORDER BY project_key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list project statuses: %w", err)
	}
	defer closeWithLog(rows, "status rows")

	for rows.Next() {
		st, scanErr := scanStatus(rows)
		if scanErr != nil {
			err = fmt.Errorf("failed to scan project status: %w", scanErr)
			return nil, err
		}
		out = append(out, st)
	}
	err = rows.Err()
	return out, err
}
