// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package database

import (
	"context"
	"time"
)

// OrphanedWorklogs lists worklogs whose issue is not stored.
func (db *DB) OrphanedWorklogs(ctx context.Context) ([]string, error) {
	return db.queryStrings(ctx, "worklogs", `
		SELECT w.remote_id FROM worklogs w
		LEFT JOIN issues i ON i.issue_key = w.issue_key
		WHERE i.remote_id IS NULL
		ORDER BY w.remote_id`)
}

// IssuesWithoutProject lists issues whose project is not stored.
func (db *DB) IssuesWithoutProject(ctx context.Context) ([]string, error) {
	return db.queryStrings(ctx, "issues", `
		SELECT i.remote_id FROM issues i
		LEFT JOIN projects p ON p.project_key = i.project_key
		WHERE p.remote_id IS NULL
		ORDER BY i.remote_id`)
}

// ImplausibleWorklogs lists worklogs with a non-positive or oversized duration
// or a start in the future.
func (db *DB) ImplausibleWorklogs(ctx context.Context, maxSeconds int64, now time.Time) ([]string, error) {
	return db.queryStrings(ctx, "worklogs", `
		SELECT remote_id FROM worklogs
		WHERE time_spent_seconds <= 0 OR time_spent_seconds > ? OR started > ?
		ORDER BY remote_id`, maxSeconds, now.UTC())
}

// DuplicateIssueKeys lists issue keys carried by more than one remote record.
func (db *DB) DuplicateIssueKeys(ctx context.Context) ([]string, error) {
	return db.queryStrings(ctx, "issues", `
		SELECT issue_key FROM issues
		GROUP BY issue_key HAVING COUNT(*) > 1
		ORDER BY issue_key`)
}
