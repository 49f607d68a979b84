// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates the core database tables
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range getTableCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}
	return nil
}

// getTableCreationQueries returns the table creation SQL statements.
//
// Entity tables carry no secondary indexes: DuckDB rejects ON CONFLICT
// updates that touch indexed columns, and the analytic scans the validation
// engine runs do not benefit from ART indexes.
func getTableCreationQueries() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS projects (
			remote_id TEXT PRIMARY KEY,
			id TEXT NOT NULL,
			project_key TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT,
			lead_account_id TEXT,
			project_type TEXT,
			synced_at TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS issues (
			remote_id TEXT PRIMARY KEY,
			id TEXT NOT NULL,
			issue_key TEXT NOT NULL,
			project_key TEXT NOT NULL,
			summary TEXT NOT NULL,
			description TEXT,
			status TEXT NOT NULL,
			issue_type TEXT,
			priority TEXT,
			assignee_id TEXT,
			reporter_id TEXT,
			time_spent_seconds BIGINT NOT NULL DEFAULT 0,
			remote_created TIMESTAMP,
			remote_updated TIMESTAMP,
			synced_at TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS worklogs (
			remote_id TEXT PRIMARY KEY,
			id TEXT NOT NULL,
			issue_key TEXT NOT NULL,
			author_account_id TEXT NOT NULL,
			author_name TEXT,
			comment TEXT,
			started TIMESTAMP,
			time_spent_seconds BIGINT NOT NULL DEFAULT 0,
			resource_type TEXT,
			remote_updated TIMESTAMP,
			synced_at TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS tracker_users (
			remote_id TEXT PRIMARY KEY,
			id TEXT NOT NULL,
			display_name TEXT NOT NULL,
			email_address TEXT,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			time_zone TEXT,
			synced_at TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS sync_runs (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			kind TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			payload TEXT NOT NULL
		);`,
		`CREATE SEQUENCE IF NOT EXISTS sync_log_seq START 1;`,
		`CREATE TABLE IF NOT EXISTS sync_log_entries (
			seq BIGINT PRIMARY KEY DEFAULT nextval('sync_log_seq'),
			id TEXT NOT NULL,
			run_id TEXT NOT NULL,
			ts TIMESTAMP NOT NULL,
			severity TEXT NOT NULL,
			message TEXT NOT NULL,
			entity_type TEXT,
			entity_id TEXT,
			operation TEXT,
			category TEXT,
			context TEXT,
			remediation TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS project_sync_status (
			project_key TEXT PRIMARY KEY,
			last_sync_at TIMESTAMP,
			last_success_at TIMESTAMP,
			last_status TEXT,
			last_run_id TEXT,
			issues_synced INTEGER NOT NULL DEFAULT 0,
			worklogs_synced INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			updated_at TIMESTAMP NOT NULL
		);`,
	}
}
