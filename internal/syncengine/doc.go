// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

/*
Package syncengine runs sync runs: it pulls projects, issues, worklogs and
users from the tracker, reconciles them into local storage, and records
progress so an interrupted run can be resumed.

Run Lifecycle:

	pending -> in_progress -> completed
	                       -> failed

A run is failed only when a precondition fails (no resolvable scope, the
tracker is unreachable), when a critical resource error occurs, or when it
is canceled. Per-project failures are logged against the run, counted in
ErrorCount and FailedProjects, and the run continues with the next project.

Per-Project Loop:

 1. Check the run's cancel flag
 2. Open an active checkpoint
 3. Store the project row unless a resumed checkpoint says it is stored
 4. Page through issues from the resume offset
 5. For every issue: fetch worklogs, resolve their authors, classify, upsert
 6. Advance the checkpoint and publish progress after every page
 7. Complete the checkpoint and update the project's sync status

Records whose reconciliation yields an empty change set are not written,
so a second run over unchanged remote data performs no writes.

Recovery:

Resume analyzes a run's checkpoints and starts a new run of kind recovery
that references the analyzed run through Scope.ResumedFrom. The analyzed
run is left untouched.

Thread Safety:

An Orchestrator holds no per-run mutable state and may execute several
runs concurrently. Cross-run state lives in the checkpoint store and in
project sync statuses, both updated through atomic read-modify-write
callbacks.
*/
package syncengine
