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
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/trackersync/internal/models"
	"github.com/tomtom215/trackersync/internal/storage"
)

// CreateRun inserts a new run.
func (db *DB) CreateRun(ctx context.Context, run *models.SyncRun) (err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("insert", "sync_runs", start, err) }()

	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to encode run %s: %w", run.ID, err)
	}
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO sync_runs (id, status, kind, created_at, updated_at, payload) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Status), string(run.Scope.Kind), run.CreatedAt.UTC(), run.UpdatedAt.UTC(), string(payload))
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun loads a run by ID.
func (db *DB) GetRun(ctx context.Context, id string) (run *models.SyncRun, err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("select", "sync_runs", start, err) }()

	return getRun(ctx, db.conn, id)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func getRun(ctx context.Context, q queryRower, id string) (*models.SyncRun, error) {
	var payload string
	err := q.QueryRowContext(ctx, `SELECT payload FROM sync_runs WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", id, err)
	}
	var run models.SyncRun
	if err := json.Unmarshal([]byte(payload), &run); err != nil {
		return nil, fmt.Errorf("failed to decode run %s: %w", id, err)
	}
	return &run, nil
}

// UpdateRun applies fn to the stored run inside a transaction.
func (db *DB) UpdateRun(ctx context.Context, id string, fn func(run *models.SyncRun) error) (out *models.SyncRun, err error) {
	unlock := db.lockRow("run:" + id)
	defer unlock()

	ctx, cancel := ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("update", "sync_runs", start, err) }()

	err = retryOnConflict(ctx, func() error {
		var txErr error
		out, txErr = db.updateRunTx(ctx, id, fn)
		return txErr
	})
	return out, err
}

func (db *DB) updateRunTx(ctx context.Context, id string, fn func(run *models.SyncRun) error) (*models.SyncRun, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	run, err := getRun(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(run); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(run)
	if err != nil {
		return nil, fmt.Errorf("failed to encode run %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE sync_runs SET status = ?, kind = ?, updated_at = ?, payload = ? WHERE id = ?`,
		string(run.Status), string(run.Scope.Kind), run.UpdatedAt.UTC(), string(payload), id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns runs newest first.
func (db *DB) ListRuns(ctx context.Context, filter storage.RunFilter) (runs []*models.SyncRun, err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("select", "sync_runs", start, err) }()

	query := `SELECT payload FROM sync_runs`
	var args []interface{}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		query += ` WHERE status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, filter.Limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer closeWithLog(rows, "run rows")

	for rows.Next() {
		var payload string
		if err = rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		var run models.SyncRun
		if err = json.Unmarshal([]byte(payload), &run); err != nil {
			return nil, fmt.Errorf("failed to decode run: %w", err)
		}
		runs = append(runs, &run)
	}
	err = rows.Err()
	return runs, err
}

// AppendLog appends an entry to a run's log.
func (db *DB) AppendLog(ctx context.Context, entry *models.SyncLogEntry) (err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("insert", "sync_log_entries", start, err) }()

	id := entry.ID
	if id == "" {
		id = uuid.NewString()
	}
	var contextJSON, remediationJSON interface{}
	if len(entry.Context) > 0 {
		b, marshalErr := json.Marshal(entry.Context)
		if marshalErr != nil {
			return fmt.Errorf("failed to encode log context: %w", marshalErr)
		}
		contextJSON = string(b)
	}
	if len(entry.Remediation) > 0 {
		b, marshalErr := json.Marshal(entry.Remediation)
		if marshalErr != nil {
			return fmt.Errorf("failed to encode remediation: %w", marshalErr)
		}
		remediationJSON = string(b)
	}

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO sync_log_entries (id, run_id, ts, severity, message, entity_type, entity_id, operation, category, context, remediation)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, entry.RunID, entry.Timestamp.UTC(), string(entry.Severity), entry.Message,
		string(entry.EntityType), entry.EntityID, entry.Operation, entry.Category, contextJSON, remediationJSON)
	if err != nil {
		return fmt.Errorf("failed to append log for run %s: %w", entry.RunID, err)
	}
	return nil
}

// ListLogs returns a run's log in insertion order.
func (db *DB) ListLogs(ctx context.Context, runID string) (entries []*models.SyncLogEntry, err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("select", "sync_log_entries", start, err) }()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, run_id, ts, severity, message, COALESCE(entity_type, ''), COALESCE(entity_id, ''),
			COALESCE(operation, ''), COALESCE(category, ''), context, remediation
		FROM sync_log_entries WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list logs for run %s: %w", runID, err)
	}
	defer closeWithLog(rows, "log rows")

	for rows.Next() {
		var e models.SyncLogEntry
		var severity, entityType string
		var contextJSON, remediationJSON sql.NullString
		if err = rows.Scan(&e.ID, &e.RunID, &e.Timestamp, &severity, &e.Message, &entityType, &e.EntityID,
			&e.Operation, &e.Category, &contextJSON, &remediationJSON); err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		e.Timestamp = e.Timestamp.UTC()
		e.Severity = models.Severity(severity)
		e.EntityType = models.EntityType(entityType)
		if contextJSON.Valid {
			if err = json.Unmarshal([]byte(contextJSON.String), &e.Context); err != nil {
				return nil, fmt.Errorf("failed to decode log context: %w", err)
			}
		}
		if remediationJSON.Valid {
			if err = json.Unmarshal([]byte(remediationJSON.String), &e.Remediation); err != nil {
				return nil, fmt.Errorf("failed to decode remediation: %w", err)
			}
		}
		entries = append(entries, &e)
	}
	err = rows.Err()
	return entries, err
}
