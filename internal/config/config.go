// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package config

import "time"

// Config holds all application configuration
type Config struct {
	Tracker    TrackerConfig    `koanf:"tracker"`
	Sync       SyncConfig       `koanf:"sync"`
	Validation ValidationConfig `koanf:"validation"`
	Classifier ClassifierConfig `koanf:"classifier"`
	Database   DatabaseConfig   `koanf:"database"`
	Checkpoint CheckpointConfig `koanf:"checkpoint"`
	Cache      CacheConfig      `koanf:"cache"`
	NATS       NATSConfig       `koanf:"nats"`
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// TrackerConfig configures the remote issue tracker client.
type TrackerConfig struct {
	BaseURL    string `koanf:"base_url"`
	Credential string `koanf:"credential"`

	// APIVersion selects the REST generation (2 or 3).
	APIVersion        int           `koanf:"api_version"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	BurstEvery        int           `koanf:"burst_every"`
	BurstPause        time.Duration `koanf:"burst_pause"`
	MaxRetries        int           `koanf:"max_retries"`
	RetryBaseDelay    time.Duration `koanf:"retry_base_delay"`
	DefaultRetryAfter time.Duration `koanf:"default_retry_after"`
	RequestTimeout    time.Duration `koanf:"request_timeout"`
	PageSize          int           `koanf:"page_size"`
	MaxPages          int           `koanf:"max_pages"`

	// TimeZone is the IANA zone JQL dates are rendered in. Empty reads the
	// credential's profile zone from the tracker.
	TimeZone string `koanf:"time_zone"`

	// Circuit breaker
	BreakerEnabled      bool          `koanf:"breaker_enabled"`
	BreakerMinRequests  uint32        `koanf:"breaker_min_requests"`
	BreakerFailureRatio float64       `koanf:"breaker_failure_ratio"`
	BreakerTimeout      time.Duration `koanf:"breaker_timeout"`
}

// SyncConfig configures the orchestrator and its triggers.
type SyncConfig struct {
	// Projects is the default scope when a run names none.
	Projects []string `koanf:"projects"`

	// Schedule is a cron expression for scheduled runs. Empty disables scheduling.
	Schedule            string        `koanf:"schedule"`
	OnlyWithWorklogs    bool          `koanf:"only_with_worklogs"`
	StalenessWindow     time.Duration `koanf:"staleness_window"`
	CheckpointRetention time.Duration `koanf:"checkpoint_retention"`
	PurgeSchedule       string        `koanf:"purge_schedule"`
	ProgressBuffer      int           `koanf:"progress_buffer"`

	// SinceOverlap is subtracted from the last successful sync time when
	// building an incremental window.
	SinceOverlap time.Duration `koanf:"since_overlap"`
}

// ValidationConfig configures post-run validation.
type ValidationConfig struct {
	Enabled            bool    `koanf:"enabled"`
	ThresholdPct       float64 `koanf:"threshold_pct"`
	SampleSize         int     `koanf:"sample_size"`
	KeyComparisonLimit int     `koanf:"key_comparison_limit"`
	MaxWorklogSeconds  int64   `koanf:"max_worklog_seconds"`

	// Completeness score penalties.
	DiscrepancyWeight float64 `koanf:"discrepancy_weight"`
	DiscrepancyCap    float64 `koanf:"discrepancy_cap"`
	ErrorPenalty      float64 `koanf:"error_penalty"`
	WarningPenalty    float64 `koanf:"warning_penalty"`
}

// ClassifierConfig configures worklog resource classification.
type ClassifierConfig struct {
	DefaultCategory string        `koanf:"default_category"`
	MaxMeeting      time.Duration `koanf:"max_meeting"`
	WorkdayStart    int           `koanf:"workday_start"`
	WorkdayEnd      int           `koanf:"workday_end"`
}

// DatabaseConfig configures the DuckDB entity store.
type DatabaseConfig struct {
	Path                   string `koanf:"path"`
	MaxMemory              string `koanf:"max_memory"`
	Threads                int    `koanf:"threads"`
	PreserveInsertionOrder bool   `koanf:"preserve_insertion_order"`
}

// CheckpointConfig configures the BadgerDB checkpoint store.
type CheckpointConfig struct {
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"in_memory"`
}

// CacheConfig configures the read-through cache for tracker lookups.
type CacheConfig struct {
	Backend       string        `koanf:"backend"`
	TTL           time.Duration `koanf:"ttl"`
	RedisAddr     string        `koanf:"redis_addr"`
	RedisPassword string        `koanf:"redis_password"`
	RedisDB       int           `koanf:"redis_db"`
}

// NATSConfig configures the progress publisher and the sync request trigger.
type NATSConfig struct {
	Enabled       bool   `koanf:"enabled"`
	URL           string `koanf:"url"`
	RequestTopic  string `koanf:"request_topic"`
	ProgressTopic string `koanf:"progress_topic"`
	QueueGroup    string `koanf:"queue_group"`
}

// ServerConfig configures the operational HTTP surface.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_requests"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// LoggingConfig configures zerolog output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}
