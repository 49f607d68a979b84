// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/trackersync/internal/metrics"
)

// Entry represents a cached item with expiration
type Entry struct {
	Data      []byte
	ExpiresAt time.Time
}

// Stats tracks cache performance counters.
type Stats struct {
	Hits        int64
	Misses      int64
	Evictions   int64
	TotalKeys   int64
	LastCleanup time.Time
}

// Memory is a thread-safe in-memory Store with TTL expiration.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
	ttl     time.Duration
	now     func() time.Time

	statsMu sync.Mutex
	stats   Stats

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemory creates a Memory store and starts its cleanup loop. Call Close to
// stop the loop.
func NewMemory(ttl time.Duration) *Memory {
	m := newMemory(ttl, time.Now)
	go m.cleanupLoop(5 * time.Minute)
	return m
}

func newMemory(ttl time.Duration, now func() time.Time) *Memory {
	return &Memory{
		entries: make(map[string]Entry),
		ttl:     ttl,
		now:     now,
		stats:   Stats{LastCleanup: now()},
		stop:    make(chan struct{}),
	}
}

// Get implements Store. Expired entries are removed on access.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.RLock()
	entry, exists := m.entries[key]
	m.mu.RUnlock()

	if !exists {
		m.record(false, 0)
		return nil, false
	}

	if m.now().After(entry.ExpiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		m.record(false, 1)
		return nil, false
	}

	m.record(true, 0)
	return entry.Data, true
}

// Put implements Store.
func (m *Memory) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = m.ttl
	}
	data := make([]byte, len(value))
	copy(data, value)

	m.mu.Lock()
	m.entries[key] = Entry{Data: data, ExpiresAt: m.now().Add(ttl)}
	total := len(m.entries)
	m.mu.Unlock()

	m.statsMu.Lock()
	m.stats.TotalKeys = int64(total)
	m.statsMu.Unlock()
	return nil
}

// Invalidate implements Store.
func (m *Memory) Invalidate(_ context.Context, prefix string) (int, error) {
	m.mu.Lock()
	removed := 0
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
			removed++
		}
	}
	total := len(m.entries)
	m.mu.Unlock()

	m.statsMu.Lock()
	m.stats.Evictions += int64(removed)
	m.stats.TotalKeys = int64(total)
	m.statsMu.Unlock()
	return removed, nil
}

// GetStats returns a snapshot of the counters.
func (m *Memory) GetStats() Stats {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	return m.stats
}

// HitRate returns the cache hit rate as a percentage
func (m *Memory) HitRate() float64 {
	stats := m.GetStats()
	total := stats.Hits + stats.Misses
	if total == 0 {
		return 0.0
	}
	return float64(stats.Hits) / float64(total) * 100.0
}

// Close stops the cleanup loop.
func (m *Memory) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *Memory) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanup()
		case <-m.stop:
			return
		}
	}
}

// cleanup removes all expired entries
func (m *Memory) cleanup() {
	now := m.now()
	m.mu.Lock()
	evictions := int64(0)
	for key, entry := range m.entries {
		if now.After(entry.ExpiresAt) {
			delete(m.entries, key)
			evictions++
		}
	}
	total := len(m.entries)
	m.mu.Unlock()

	m.statsMu.Lock()
	m.stats.Evictions += evictions
	m.stats.TotalKeys = int64(total)
	m.stats.LastCleanup = now
	m.statsMu.Unlock()
}

func (m *Memory) record(hit bool, evicted int64) {
	m.statsMu.Lock()
	if hit {
		m.stats.Hits++
	} else {
		m.stats.Misses++
	}
	m.stats.Evictions += evicted
	m.statsMu.Unlock()
	metrics.RecordCacheLookup(string(BackendMemory), hit)
}

var _ Store = (*Memory)(nil)
