// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package cache

import (
	"context"
	"fmt"
	"time"
)

// Store is the cache collaborator used by the tracker client.
type Store interface {
	// Get returns the cached value. Backend failures are reported as misses.
	Get(ctx context.Context, key string) ([]byte, bool)

	// Put stores value under key for ttl. A zero ttl uses the backend default.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Invalidate removes every key starting with prefix and returns how many were removed.
	Invalidate(ctx context.Context, prefix string) (int, error)
}

// Backend selects a Store implementation.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendRedis  Backend = "redis"
)

// Config holds configuration for creating a Store.
type Config struct {
	Backend       Backend
	TTL           time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string
}

// New creates a Store for the configured backend.
func New(ctx context.Context, cfg Config) (Store, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}

	switch cfg.Backend {
	case BackendRedis:
		return NewRedis(ctx, cfg)
	case BackendMemory, "":
		return NewMemory(cfg.TTL), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// ProjectKey builds a cache key scoped to a project.
func ProjectKey(projectKey, suffix string) string {
	return ProjectPrefix(projectKey) + suffix
}

// ProjectPrefix is the invalidation prefix covering every key of a project.
func ProjectPrefix(projectKey string) string {
	return "project:" + projectKey + ":"
}

// UserKey builds the cache key for a user lookup.
func UserKey(accountID string) string {
	return "user:" + accountID
}
