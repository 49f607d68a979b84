// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

/*
Package api exposes the operational HTTP surface of the sync engine.

Routes (chi):

	GET  /api/v1/health            overall health, tracker and database reachability
	GET  /api/v1/health/live       liveness probe
	GET  /api/v1/health/ready      readiness probe
	GET  /api/v1/runs              recent runs, optional ?status=&limit=
	POST /api/v1/runs              create and start a run (?wait=true blocks)
	GET  /api/v1/runs/stale        runs without checkpoint activity
	GET  /api/v1/runs/{id}         run status and progress
	GET  /api/v1/runs/{id}/logs    run log entries
	POST /api/v1/runs/{id}/cancel  request cancellation
	GET  /api/v1/runs/{id}/resume  recovery plan for a run
	POST /api/v1/runs/{id}/resume  start a recovery run
	GET  /api/v1/projects/status   last sync state per project
	GET  /api/v1/ws                progress stream over WebSocket
	GET  /metrics                  Prometheus scrape endpoint

Runs started over HTTP execute on a context owned by the Handler, not the
request, so a client disconnect does not abort them. Handler.Shutdown
cancels that context and waits for in-flight runs to record their final
status.

All JSON responses use the models.APIResponse envelope.
*/
package api
