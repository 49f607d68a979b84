// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

/*
Package main is the entry point for the Trackersync server.

Trackersync mirrors projects, issues, worklogs and users from a remote issue
tracker into a local DuckDB database. Runs are incremental, checkpointed in
BadgerDB and resumable after a partial failure.

# Application Architecture

The server runs under a Suture v4 supervisor tree:

	RootSupervisor ("trackersync")
	├── MessagingSupervisor ("messaging-layer")
	│   ├── WebSocket Hub (progress and run status)
	│   └── Progress bridge (NATS only)
	├── SyncSupervisor ("sync-layer")
	│   ├── Scheduler (cron sync and checkpoint purge)
	│   └── Request consumer (NATS only)
	└── APISupervisor ("api-layer")
	    └── HTTP Server (runs, recovery, health, metrics, /ws)

Component initialization order:

 1. Configuration: Koanf v2 with environment variables and config files
 2. Logging: zerolog with JSON/console output modes
 3. Stores: DuckDB entities and run log, BadgerDB checkpoints, memory or Redis cache
 4. Tracker client: rate limiter, retries, circuit breaker, detail cache
 5. Messaging: NATS via Watermill when NATS_ENABLED=true
 6. Orchestrator, scheduler and HTTP API
 7. Supervisor Tree

# Configuration

	Priority: Environment variables > Config file > Defaults

	TRACKER_BASE_URL=https://tracker.example.com
	TRACKER_CREDENTIAL=<token>
	SYNC_PROJECTS=ALPHA,BRAVO
	SYNC_SCHEDULE=@every 30m
	DUCKDB_PATH=/data/trackersync.duckdb
	CHECKPOINT_PATH=/data/checkpoints
	CACHE_BACKEND=memory          # memory or redis
	NATS_ENABLED=false
	HTTP_PORT=8480

# Signal Handling

On SIGINT or SIGTERM the HTTP server stops accepting requests, runs started
through the API are canceled and drained, the scheduler stops, and the
stores are closed. Interrupted runs keep their checkpoints and can be
resumed with POST /api/v1/runs/{id}/resume or syncctl resume.
*/
package main
