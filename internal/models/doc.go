// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

/*
Package models defines the data structures shared by the synchronization engine.

Key Components:

  - SyncRun: one execution of the engine, with scope, counters and terminal status
  - SyncLogEntry: append-only audit record attached to a run
  - Checkpoint: per-project progress marker used to resume interrupted runs
  - ProjectSyncStatus: durable last-known-good pointer per project
  - Project, Issue, Worklog, User: synchronized entity records
  - ValidationResult: post-run comparison of local and remote state

Entity records carry two identifiers. RemoteID is assigned by the tracker and
is the upsert key; ID is a local UUID that survives every re-sync. Remote data
always overwrites local data on conflict.

Thread Safety:

Models are plain values with no internal synchronization. Callers that share a
model across goroutines must copy it or guard it themselves.
*/
package models
