// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

/*
Package database implements storage.Store on DuckDB.

Synchronized entities live in one table per type keyed by the tracker's
remote identifier and are written with INSERT ... ON CONFLICT DO UPDATE, so
replaying a page after a crash converges on the same rows. Sync runs are
stored as a JSON payload next to the columns used for filtering. Run and
project-status updates are serialized per row and retried on DuckDB
transaction conflicts.

Schema changes go through the versioned migration table in migrations.go.
*/
package database
