// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

/*
Package metrics provides Prometheus metrics collection and export for observability.

All collectors are registered with the default registry through promauto and are
exposed at /metrics by the operational API.

# Available Metrics

Tracker client:
  - tracker_requests_total{resource,status_code}
  - tracker_request_duration_seconds{resource}
  - tracker_rate_limit_wait_seconds
  - tracker_retries_total{reason}
  - circuit_breaker_state{name} (0=closed, 1=half-open, 2=open)

Sync engine:
  - sync_runs_total{kind,status}
  - sync_run_duration_seconds
  - sync_active_runs
  - sync_records_processed_total{entity,outcome}
  - sync_project_failures_total{category}
  - classifier_decisions_total{category,source}
  - checkpoint_writes_total{operation,result}
  - validation_completeness_score
  - progress_events_dropped_total

Storage and transport:
  - duckdb_query_duration_seconds{operation,table}
  - cache_lookups_total{backend,result}
  - websocket_connections_active
  - trigger_messages_total{source,result}

# Example Alerts

  - alert: SyncProjectsFailing
    expr: rate(sync_project_failures_total[1h]) > 0
    for: 2h

  - alert: TrackerCircuitOpen
    expr: circuit_breaker_state{name="tracker-api"} == 2
    for: 5m
*/
package metrics
