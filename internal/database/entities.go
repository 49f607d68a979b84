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

// entityTable maps an entity type to its table.
func entityTable(entity models.EntityType) (string, error) {
	switch entity {
	case models.EntityProject:
		return "projects", nil
	case models.EntityIssue:
		return "issues", nil
	case models.EntityWorklog:
		return "worklogs", nil
	case models.EntityUser:
		return "tracker_users", nil
	default:
		return "", fmt.Errorf("unknown entity type %q", entity)
	}
}

const (
	selectProject = `SELECT id, remote_id, project_key, name, COALESCE(description, ''),
		COALESCE(lead_account_id, ''), COALESCE(project_type, ''), synced_at
		FROM projects WHERE remote_id = ?`
	selectIssue = `SELECT id, remote_id, issue_key, project_key, summary, COALESCE(description, ''),
		status, COALESCE(issue_type, ''), COALESCE(priority, ''), COALESCE(assignee_id, ''),
		COALESCE(reporter_id, ''), time_spent_seconds, remote_created, remote_updated, synced_at
		FROM issues WHERE remote_id = ?`
	selectWorklog = `SELECT id, remote_id, issue_key, author_account_id, COALESCE(author_name, ''),
		COALESCE(comment, ''), started, time_spent_seconds, COALESCE(resource_type, ''),
		remote_updated, synced_at
		FROM worklogs WHERE remote_id = ?`
	selectUser = `SELECT id, remote_id, display_name, COALESCE(email_address, ''), active,
		COALESCE(time_zone, ''), synced_at
		FROM tracker_users WHERE remote_id = ?`
)

// FindByRemoteID returns the stored record or storage.ErrNotFound.
func (db *DB) FindByRemoteID(ctx context.Context, entity models.EntityType, remoteID string) (rec models.Record, err error) {
	table, err := entityTable(entity)
	if err != nil {
		return nil, err
	}
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("select", table, start, err) }()

	switch entity {
	case models.EntityProject:
		var p models.Project
		var synced sql.NullTime
		err = db.conn.QueryRowContext(ctx, selectProject, remoteID).Scan(
			&p.ID, &p.RemoteID, &p.Key, &p.Name, &p.Description, &p.LeadAccountID, &p.ProjectType, &synced)
		p.SyncedAt = timeOf(synced)
		rec = &p
	case models.EntityIssue:
		var i models.Issue
		var created, updated, synced sql.NullTime
		err = db.conn.QueryRowContext(ctx, selectIssue, remoteID).Scan(
			&i.ID, &i.RemoteID, &i.Key, &i.ProjectKey, &i.Summary, &i.Description, &i.Status,
			&i.IssueType, &i.Priority, &i.AssigneeID, &i.ReporterID, &i.TimeSpentSeconds,
			&created, &updated, &synced)
		i.RemoteCreated, i.RemoteUpdated, i.SyncedAt = timeOf(created), timeOf(updated), timeOf(synced)
		rec = &i
	case models.EntityWorklog:
		var w models.Worklog
		var started, updated, synced sql.NullTime
		err = db.conn.QueryRowContext(ctx, selectWorklog, remoteID).Scan(
			&w.ID, &w.RemoteID, &w.IssueKey, &w.AuthorAccountID, &w.AuthorName, &w.Comment,
			&started, &w.TimeSpentSeconds, &w.ResourceType, &updated, &synced)
		w.Started, w.RemoteUpdated, w.SyncedAt = timeOf(started), timeOf(updated), timeOf(synced)
		rec = &w
	case models.EntityUser:
		var u models.User
		var synced sql.NullTime
		err = db.conn.QueryRowContext(ctx, selectUser, remoteID).Scan(
			&u.ID, &u.RemoteID, &u.DisplayName, &u.EmailAddress, &u.Active, &u.TimeZone, &synced)
		u.SyncedAt = timeOf(synced)
		rec = &u
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s %s: %w", entity, remoteID, err)
	}
	return rec, nil
}

// Upsert inserts or replaces a record keyed by its remote identifier.
func (db *DB) Upsert(ctx context.Context, record models.Record) (err error) {
	table, err := entityTable(record.Entity())
	if err != nil {
		return err
	}
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("upsert", table, start, err) }()

	var query string
	var args []interface{}
	switch r := record.(type) {
	case *models.Project:
		query = `INSERT INTO projects (remote_id, id, project_key, name, description, lead_account_id, project_type, synced_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (remote_id) DO UPDATE SET
				id = EXCLUDED.id, project_key = EXCLUDED.project_key, name = EXCLUDED.name,
				description = EXCLUDED.description, lead_account_id = EXCLUDED.lead_account_id,
				project_type = EXCLUDED.project_type, synced_at = EXCLUDED.synced_at`
		args = []interface{}{r.RemoteID, r.ID, r.Key, r.Name, r.Description, r.LeadAccountID, r.ProjectType, nullTime(r.SyncedAt)}
	case *models.Issue:
		query = `INSERT INTO issues (remote_id, id, issue_key, project_key, summary, description, status, issue_type,
				priority, assignee_id, reporter_id, time_spent_seconds, remote_created, remote_updated, synced_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (remote_id) DO UPDATE SET
				id = EXCLUDED.id, issue_key = EXCLUDED.issue_key, project_key = EXCLUDED.project_key,
				summary = EXCLUDED.summary, description = EXCLUDED.description, status = EXCLUDED.status,
				issue_type = EXCLUDED.issue_type, priority = EXCLUDED.priority,
				assignee_id = EXCLUDED.assignee_id, reporter_id = EXCLUDED.reporter_id,
				time_spent_seconds = EXCLUDED.time_spent_seconds, remote_created = EXCLUDED.remote_created,
				remote_updated = EXCLUDED.remote_updated, synced_at = EXCLUDED.synced_at`
		args = []interface{}{r.RemoteID, r.ID, r.Key, r.ProjectKey, r.Summary, r.Description, r.Status, r.IssueType,
			r.Priority, r.AssigneeID, r.ReporterID, r.TimeSpentSeconds,
			nullTime(r.RemoteCreated), nullTime(r.RemoteUpdated), nullTime(r.SyncedAt)}
	case *models.Worklog:
		query = `INSERT INTO worklogs (remote_id, id, issue_key, author_account_id, author_name, comment, started,
				time_spent_seconds, resource_type, remote_updated, synced_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (remote_id) DO UPDATE SET
				id = EXCLUDED.id, issue_key = EXCLUDED.issue_key, author_account_id = EXCLUDED.author_account_id,
				author_name = EXCLUDED.author_name, comment = EXCLUDED.comment, started = EXCLUDED.started,
				time_spent_seconds = EXCLUDED.time_spent_seconds, resource_type = EXCLUDED.resource_type,
				remote_updated = EXCLUDED.remote_updated, synced_at = EXCLUDED.synced_at`
		args = []interface{}{r.RemoteID, r.ID, r.IssueKey, r.AuthorAccountID, r.AuthorName, r.Comment, nullTime(r.Started),
			r.TimeSpentSeconds, r.ResourceType, nullTime(r.RemoteUpdated), nullTime(r.SyncedAt)}
	case *models.User:
		query = `INSERT INTO tracker_users (remote_id, id, display_name, email_address, active, time_zone, synced_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (remote_id) DO UPDATE SET
				id = EXCLUDED.id, display_name = EXCLUDED.display_name, email_address = EXCLUDED.email_address,
				active = EXCLUDED.active, time_zone = EXCLUDED.time_zone, synced_at = EXCLUDED.synced_at`
		args = []interface{}{r.RemoteID, r.ID, r.DisplayName, r.EmailAddress, r.Active, r.TimeZone, nullTime(r.SyncedAt)}
	default:
		return fmt.Errorf("unsupported record type %T", record)
	}

	err = retryOnConflict(ctx, func() error {
		_, execErr := db.conn.ExecContext(ctx, query, args...)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("failed to upsert %s %s: %w", record.Entity(), record.RemoteIdentifier(), err)
	}
	return nil
}

// CountIssues counts stored issues for a project, or all issues when projectKey is empty.
func (db *DB) CountIssues(ctx context.Context, projectKey string) (int, error) {
	if projectKey == "" {
		return db.count(ctx, "issues", `SELECT COUNT(*) FROM issues`)
	}
	return db.count(ctx, "issues", `SELECT COUNT(*) FROM issues WHERE project_key = ?`, projectKey)
}

// CountWorklogs counts stored worklogs whose issue belongs to the project.
func (db *DB) CountWorklogs(ctx context.Context, projectKey string) (int, error) {
	if projectKey == "" {
		return db.count(ctx, "worklogs", `SELECT COUNT(*) FROM worklogs`)
	}
	query := `SELECT COUNT(*) FROM worklogs w
		WHERE w.issue_key IN (SELECT issue_key FROM issues WHERE project_key = ?)`
	return db.count(ctx, "worklogs", query, projectKey)
}

func (db *DB) count(ctx context.Context, table, query string, args ...interface{}) (n int, err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("count", table, start, err) }()

	if err = db.conn.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

// IssueKeys returns the project's issue keys in ascending order.
func (db *DB) IssueKeys(ctx context.Context, projectKey string) ([]string, error) {
	if projectKey == "" {
		return db.queryStrings(ctx, "issues", `SELECT issue_key FROM issues ORDER BY issue_key`)
	}
	return db.queryStrings(ctx, "issues",
		`SELECT issue_key FROM issues WHERE project_key = ? ORDER BY issue_key`, projectKey)
}

// queryStrings runs a single-column query and collects the results.
func (db *DB) queryStrings(ctx context.Context, table, query string, args ...interface{}) (out []string, err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("select", table, start, err) }()

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer closeWithLog(rows, "rows")

	for rows.Next() {
		var s string
		if err = rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table, err)
		}
		out = append(out, s)
	}
	err = rows.Err()
	return out, err
}

// nullTime stores the zero time as NULL and everything else in UTC.
func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func nullTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return nullTime(*t)
}

func timeOf(nt sql.NullTime) time.Time {
	if !nt.Valid {
		return time.Time{}
	}
	return nt.Time.UTC()
}

func timePtrOf(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
