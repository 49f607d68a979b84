// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Validate checks that required configuration is present and valid
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateTracker,
		c.validateSync,
		c.validateValidation,
		c.validateCache,
		c.validateNATS,
		c.validateServer,
		c.validateLogging,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

// validateTracker validates the tracker connection settings
func (c *Config) validateTracker() error {
	if c.Tracker.BaseURL == "" {
		return fmt.Errorf("TRACKER_BASE_URL is required")
	}
	if err := validateHTTPURL(c.Tracker.BaseURL); err != nil {
		return fmt.Errorf("TRACKER_BASE_URL is invalid: %w", err)
	}
	if c.Tracker.APIVersion != 2 && c.Tracker.APIVersion != 3 {
		return fmt.Errorf("TRACKER_API_VERSION must be 2 or 3, got %d", c.Tracker.APIVersion)
	}
	if c.Tracker.RequestsPerSecond < 0 {
		return fmt.Errorf("TRACKER_REQUESTS_PER_SECOND must be non-negative")
	}
	if c.Tracker.MaxRetries < 0 || c.Tracker.MaxRetries > 10 {
		return fmt.Errorf("TRACKER_MAX_RETRIES must be between 0 and 10, got %d", c.Tracker.MaxRetries)
	}
	if c.Tracker.PageSize < 1 || c.Tracker.PageSize > 1000 {
		return fmt.Errorf("TRACKER_PAGE_SIZE must be between 1 and 1000, got %d", c.Tracker.PageSize)
	}
	if c.Tracker.MaxPages < 1 {
		return fmt.Errorf("TRACKER_MAX_PAGES must be positive")
	}
	if c.Tracker.BreakerFailureRatio <= 0 || c.Tracker.BreakerFailureRatio > 1 {
		return fmt.Errorf("tracker.breaker_failure_ratio must be in (0, 1]")
	}
	if c.Tracker.TimeZone != "" {
		if _, err := time.LoadLocation(c.Tracker.TimeZone); err != nil {
			return fmt.Errorf("TRACKER_TIME_ZONE is invalid: %w", err)
		}
	}
	return nil
}

// validateSync validates orchestrator and scheduling settings
func (c *Config) validateSync() error {
	for _, key := range c.Sync.Projects {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("SYNC_PROJECTS contains an empty project key")
		}
	}
	if c.Sync.Schedule != "" {
		if _, err := cron.ParseStandard(c.Sync.Schedule); err != nil {
			return fmt.Errorf("SYNC_SCHEDULE is invalid: %w", err)
		}
	}
	if c.Sync.PurgeSchedule != "" {
		if _, err := cron.ParseStandard(c.Sync.PurgeSchedule); err != nil {
			return fmt.Errorf("SYNC_PURGE_SCHEDULE is invalid: %w", err)
		}
	}
	if c.Sync.StalenessWindow <= 0 {
		return fmt.Errorf("SYNC_STALENESS_WINDOW must be positive")
	}
	if c.Sync.SinceOverlap < 0 {
		return fmt.Errorf("SYNC_SINCE_OVERLAP must be non-negative")
	}
	if c.Sync.CheckpointRetention <= 0 {
		return fmt.Errorf("SYNC_CHECKPOINT_RETENTION must be positive")
	}
	return nil
}

// validateValidation validates the validation engine thresholds
func (c *Config) validateValidation() error {
	v := c.Validation
	if v.ThresholdPct < 0 || v.ThresholdPct > 100 {
		return fmt.Errorf("VALIDATION_THRESHOLD_PCT must be between 0 and 100, got %v", v.ThresholdPct)
	}
	if v.SampleSize < 0 {
		return fmt.Errorf("VALIDATION_SAMPLE_SIZE must be non-negative")
	}
	if v.MaxWorklogSeconds <= 0 {
		return fmt.Errorf("validation.max_worklog_seconds must be positive")
	}
	return nil
}

// validateCache validates the cache backend selection
func (c *Config) validateCache() error {
	switch c.Cache.Backend {
	case "memory", "":
		return nil
	case "redis":
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required when CACHE_BACKEND=redis")
		}
		return nil
	default:
		return fmt.Errorf("CACHE_BACKEND must be memory or redis, got %q", c.Cache.Backend)
	}
}

// validateNATS validates NATS configuration (only if enabled)
func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		return nil
	}
	if err := validateNATSURL(c.NATS.URL); err != nil {
		return fmt.Errorf("NATS_URL is invalid: %w", err)
	}
	if c.NATS.RequestTopic == "" || c.NATS.ProgressTopic == "" {
		return fmt.Errorf("NATS topics must not be empty")
	}
	return nil
}

// validateServer validates the HTTP server settings
func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.RateLimitReqs < 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be non-negative")
	}
	return nil
}

// validateLogging validates the log level and format
func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled", "":
	default:
		return fmt.Errorf("LOG_LEVEL %q is not a valid level", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console", "":
		return nil
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
}

// validateHTTPURL validates that rawURL is an absolute http(s) URL
func validateHTTPURL(rawURL string) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got: %s", parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}

// validateNATSURL validates that the NATS URL is properly formatted
// Supports: nats://, tls://, and ws:// schemes with IP addresses/hostnames and optional ports
func validateNATSURL(rawURL string) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}

	validSchemes := map[string]bool{"nats": true, "tls": true, "ws": true, "wss": true}
	if !validSchemes[parsedURL.Scheme] {
		return fmt.Errorf("scheme must be nats, tls, ws, or wss, got: %s", parsedURL.Scheme)
	}

	if parsedURL.Host == "" {
		return fmt.Errorf("host is required (e.g., localhost:4222, nats.example.com)")
	}

	return nil
}
