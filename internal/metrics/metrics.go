// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table", "error_type"},
	)

	// Operational HTTP surface
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of operational API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of operational API requests in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Number of operational API requests in flight",
		},
	)

	// Tracker API client
	TrackerRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_requests_total",
			Help: "Total number of requests sent to the issue tracker",
		},
		[]string{"resource", "status_code"},
	)

	TrackerRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tracker_request_duration_seconds",
			Help:    "Duration of issue tracker requests in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"resource"},
	)

	TrackerRateLimitWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tracker_rate_limit_wait_seconds",
			Help:    "Time spent waiting on the client-side request budget",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2, 5},
		},
	)

	TrackerRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_retries_total",
			Help: "Total number of retried tracker requests",
		},
		[]string{"reason"}, // rate_limited, server_error, network
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Sync Metrics
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_runs_total",
			Help: "Total number of finished sync runs",
		},
		[]string{"kind", "status"},
	)

	SyncRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sync_run_duration_seconds",
			Help:    "Duration of sync runs in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 900, 1800, 3600},
		},
	)

	SyncActiveRuns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_active_runs",
			Help: "Number of sync runs currently executing",
		},
	)

	SyncRecordsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_records_processed_total",
			Help: "Total number of records processed by entity type and outcome",
		},
		[]string{"entity", "outcome"}, // outcome: created, updated, unchanged, rejected
	)

	SyncProjectFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_project_failures_total",
			Help: "Total number of per-project failures by error category",
		},
		[]string{"category"},
	)

	SyncLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_last_success_timestamp",
			Help: "Unix timestamp of the last completed sync run",
		},
	)

	ClassifierDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classifier_decisions_total",
			Help: "Total number of worklog classifications by category and match source",
		},
		[]string{"category", "source"},
	)

	// Checkpoint Metrics
	CheckpointWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkpoint_writes_total",
			Help: "Total number of checkpoint writes",
		},
		[]string{"operation", "result"},
	)

	CheckpointsPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "checkpoints_purged_total",
			Help: "Total number of checkpoints removed by retention maintenance",
		},
	)

	// Validation Metrics
	ValidationCompleteness = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "validation_completeness_score",
			Help: "Completeness score (0-100) of the most recent validation",
		},
	)

	ValidationDiscrepancy = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "validation_discrepancy_percent",
			Help:    "Aggregate local vs remote discrepancy per validated run",
			Buckets: []float64{0, 0.5, 1, 2, 5, 10, 25, 50, 100},
		},
	)

	// Progress Metrics
	ProgressEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "progress_events_published_total",
			Help: "Total number of progress events delivered by publisher",
		},
		[]string{"publisher", "result"},
	)

	ProgressEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "progress_events_dropped_total",
			Help: "Total number of progress events dropped because the reporter buffer was full",
		},
	)

	// Cache Metrics
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_lookups_total",
			Help: "Total number of cache lookups by backend and result",
		},
		[]string{"backend", "result"},
	)

	// WebSocket Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Number of active WebSocket connections",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent",
		},
	)

	WSErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_errors_total",
			Help: "Total number of WebSocket errors",
		},
		[]string{"error_type"},
	)

	// Trigger Metrics
	TriggerMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trigger_messages_total",
			Help: "Total number of sync requests received by the trigger consumer",
		},
		[]string{"source", "result"},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)
)

// RecordDBQuery records a database query metric
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		errorType := err.Error()
		// Truncate long error messages
		if len(errorType) > 50 {
			errorType = errorType[:50]
		}
		DBQueryErrors.WithLabelValues(operation, table, errorType).Inc()
	}
}

// RecordAPIRequest records an operational API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordTrackerRequest records one HTTP exchange with the issue tracker.
// statusCode 0 means the request failed before a response arrived.
func RecordTrackerRequest(resource string, statusCode int, duration time.Duration) {
	code := "error"
	if statusCode > 0 {
		code = strconv.Itoa(statusCode)
	}
	TrackerRequestsTotal.WithLabelValues(resource, code).Inc()
	TrackerRequestDuration.WithLabelValues(resource).Observe(duration.Seconds())
}

// RecordRateLimitWait records time spent blocked on the request budget.
func RecordRateLimitWait(wait time.Duration) {
	TrackerRateLimitWait.Observe(wait.Seconds())
}

// RecordRetry records a retried tracker request.
func RecordRetry(reason string) {
	TrackerRetries.WithLabelValues(reason).Inc()
}

// RecordSyncRun records a finished run.
func RecordSyncRun(kind, status string, duration time.Duration) {
	SyncRunsTotal.WithLabelValues(kind, status).Inc()
	SyncRunDuration.Observe(duration.Seconds())
	if status == "completed" {
		SyncLastSuccess.Set(float64(time.Now().Unix()))
	}
}

// RecordEntityOutcome records the result of reconciling one entity.
func RecordEntityOutcome(entity, outcome string) {
	SyncRecordsProcessed.WithLabelValues(entity, outcome).Inc()
}

// RecordProjectFailure records a project whose loop aborted.
func RecordProjectFailure(category string) {
	SyncProjectFailures.WithLabelValues(category).Inc()
}

// RecordClassification records a classifier decision.
func RecordClassification(category, source string) {
	ClassifierDecisions.WithLabelValues(category, source).Inc()
}

// RecordCheckpointWrite records a checkpoint store write.
func RecordCheckpointWrite(operation string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	CheckpointWrites.WithLabelValues(operation, result).Inc()
}

// RecordValidation records the outcome of a validation pass.
func RecordValidation(completeness, discrepancyPct float64) {
	ValidationCompleteness.Set(completeness)
	ValidationDiscrepancy.Observe(discrepancyPct)
}

// RecordProgressPublish records delivery of a progress event to one publisher.
func RecordProgressPublish(publisher string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	ProgressEventsPublished.WithLabelValues(publisher, result).Inc()
}

// RecordCacheLookup records a cache hit or miss.
func RecordCacheLookup(backend string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookups.WithLabelValues(backend, result).Inc()
}
