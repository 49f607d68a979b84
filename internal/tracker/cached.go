// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package tracker

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/trackersync/internal/cache"
	"github.com/tomtom215/trackersync/internal/logging"
	"github.com/tomtom215/trackersync/internal/models"
)

// CachedClient memoizes project and user detail lookups. Issue and worklog
// data changes too often to cache and always goes to the tracker.
type CachedClient struct {
	Client
	store cache.Store
	ttl   time.Duration
}

// NewCachedClient wraps client with store. A nil store disables caching.
func NewCachedClient(client Client, store cache.Store, ttl time.Duration) *CachedClient {
	return &CachedClient{Client: client, store: store, ttl: ttl}
}

// FetchDetail implements Client.
func (c *CachedClient) FetchDetail(ctx context.Context, resource Resource, id string) (models.Record, error) {
	key, ok := detailKey(resource, id)
	if !ok || c.store == nil {
		return c.Client.FetchDetail(ctx, resource, id)
	}

	if raw, hit := c.store.Get(ctx, key); hit {
		if record, err := decodeRecord(resource, raw); err == nil {
			return record, nil
		}
		logging.Ctx(ctx).Debug().Str("key", key).Msg("Discarding undecodable cache entry")
	}

	record, err := c.Client.FetchDetail(ctx, resource, id)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(record); err == nil {
		if err := c.store.Put(ctx, key, raw, c.ttl); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("Cache write failed")
		}
	}
	return record, nil
}

// InvalidateProject drops every cached entry for projectKey.
func (c *CachedClient) InvalidateProject(ctx context.Context, projectKey string) (int, error) {
	if c.store == nil {
		return 0, nil
	}
	return c.store.Invalidate(ctx, cache.ProjectPrefix(projectKey))
}

func detailKey(resource Resource, id string) (string, bool) {
	switch resource {
	case ResourceProjects:
		return cache.ProjectKey(id, "detail"), true
	case ResourceUsers:
		return cache.UserKey(id), true
	default:
		return "", false
	}
}

func decodeRecord(resource Resource, raw []byte) (models.Record, error) {
	switch resource {
	case ResourceProjects:
		var p models.Project
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return &p, nil
	default:
		var u models.User
		if err := json.Unmarshal(raw, &u); err != nil {
			return nil, err
		}
		return &u, nil
	}
}
