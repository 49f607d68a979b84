// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/trackersync/config.yaml",
	"/etc/trackersync/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Tracker: TrackerConfig{
			APIVersion:          3,
			RequestsPerSecond:   10,
			BurstEvery:          100,
			BurstPause:          2 * time.Second,
			MaxRetries:          3,
			RetryBaseDelay:      time.Second,
			DefaultRetryAfter:   60 * time.Second,
			RequestTimeout:      30 * time.Second,
			PageSize:            50,
			MaxPages:            10000,
			BreakerEnabled:      true,
			BreakerMinRequests:  10,
			BreakerFailureRatio: 0.6,
			BreakerTimeout:      2 * time.Minute,
		},
		Sync: SyncConfig{
			StalenessWindow:     15 * time.Minute,
			SinceOverlap:        5 * time.Minute,
			CheckpointRetention: 7 * 24 * time.Hour,
			PurgeSchedule:       "@daily",
			ProgressBuffer:      64,
		},
		Validation: ValidationConfig{
			Enabled:            true,
			ThresholdPct:       5,
			SampleSize:         20,
			KeyComparisonLimit: 5000,
			MaxWorklogSeconds:  86400,
			DiscrepancyWeight:  2,
			DiscrepancyCap:     50,
			ErrorPenalty:       10,
			WarningPenalty:     2,
		},
		Classifier: ClassifierConfig{
			DefaultCategory: "developer",
			MaxMeeting:      90 * time.Minute,
			WorkdayStart:    8,
			WorkdayEnd:      18,
		},
		Database: DatabaseConfig{
			Path:                   "/data/trackersync.duckdb",
			MaxMemory:              "1GB",
			Threads:                0, // 0 = use runtime.NumCPU()
			PreserveInsertionOrder: true,
		},
		Checkpoint: CheckpointConfig{
			Path: "/data/checkpoints",
		},
		Cache: CacheConfig{
			Backend: "memory",
			TTL:     10 * time.Minute,
		},
		NATS: NATSConfig{
			Enabled:       false,
			URL:           "nats://127.0.0.1:4222",
			RequestTopic:  "sync.requests",
			ProgressTopic: "sync.progress",
			QueueGroup:    "trackersync",
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8480,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Default returns the built-in configuration without file or environment overrides.
func Default() *Config {
	return defaultConfig()
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in sensible defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any setting
func LoadWithKoanf() (*Config, error) {
	return Load(findConfigFile())
}

// Load is LoadWithKoanf with an explicit config file. An empty path skips the file layer.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"sync.projects",
	"server.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
// Env vars come in as strings, but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to koanf paths.
var envMappings = map[string]string{
	"tracker_base_url":            "tracker.base_url",
	"tracker_credential":          "tracker.credential",
	"tracker_api_version":         "tracker.api_version",
	"tracker_requests_per_second": "tracker.requests_per_second",
	"tracker_burst_every":         "tracker.burst_every",
	"tracker_burst_pause":         "tracker.burst_pause",
	"tracker_max_retries":         "tracker.max_retries",
	"tracker_retry_base_delay":    "tracker.retry_base_delay",
	"tracker_default_retry_after": "tracker.default_retry_after",
	"tracker_request_timeout":     "tracker.request_timeout",
	"tracker_page_size":           "tracker.page_size",
	"tracker_max_pages":           "tracker.max_pages",
	"tracker_breaker_enabled":     "tracker.breaker_enabled",
	"tracker_time_zone":           "tracker.time_zone",

	"sync_projects":             "sync.projects",
	"sync_schedule":             "sync.schedule",
	"sync_only_with_worklogs":   "sync.only_with_worklogs",
	"sync_staleness_window":     "sync.staleness_window",
	"sync_since_overlap":        "sync.since_overlap",
	"sync_checkpoint_retention": "sync.checkpoint_retention",
	"sync_purge_schedule":       "sync.purge_schedule",

	"validation_enabled":       "validation.enabled",
	"validation_threshold_pct": "validation.threshold_pct",
	"validation_sample_size":   "validation.sample_size",

	"classifier_default_category": "classifier.default_category",

	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",
	"duckdb_threads":    "database.threads",

	"checkpoint_path":      "checkpoint.path",
	"checkpoint_in_memory": "checkpoint.in_memory",

	"cache_backend":  "cache.backend",
	"cache_ttl":      "cache.ttl",
	"redis_addr":     "cache.redis_addr",
	"redis_password": "cache.redis_password",
	"redis_db":       "cache.redis_db",

	"nats_enabled":        "nats.enabled",
	"nats_url":            "nats.url",
	"nats_request_topic":  "nats.request_topic",
	"nats_progress_topic": "nats.progress_topic",
	"nats_queue_group":    "nats.queue_group",

	"http_host":             "server.host",
	"http_port":             "server.port",
	"http_timeout":          "server.timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",
	"cors_origins":          "server.cors_origins",
	"rate_limit_requests":   "server.rate_limit_requests",
	"rate_limit_window":     "server.rate_limit_window",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - TRACKER_BASE_URL -> tracker.base_url
//   - SYNC_PROJECTS -> sync.projects
//   - DUCKDB_PATH -> database.path
//   - HTTP_PORT -> server.port
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	// For unmapped keys, return empty string to skip them
	return ""
}
