// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

// Package app assembles the stores, the tracker client and the orchestrator
// from configuration for the server and the operator CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tomtom215/trackersync/internal/cache"
	"github.com/tomtom215/trackersync/internal/checkpoint"
	"github.com/tomtom215/trackersync/internal/classifier"
	"github.com/tomtom215/trackersync/internal/config"
	"github.com/tomtom215/trackersync/internal/database"
	"github.com/tomtom215/trackersync/internal/logging"
	"github.com/tomtom215/trackersync/internal/models"
	"github.com/tomtom215/trackersync/internal/progress"
	"github.com/tomtom215/trackersync/internal/syncengine"
	"github.com/tomtom215/trackersync/internal/tracker"
	"github.com/tomtom215/trackersync/internal/validation"
	ws "github.com/tomtom215/trackersync/internal/websocket"
)

// Components holds the stores and clients shared by every entry point.
type Components struct {
	DB          *database.DB
	Checkpoints *checkpoint.BadgerStore
	Cache       cache.Store
	Client      *tracker.CachedClient
}

// Open opens the database, the checkpoint store, the cache and
// the tracker client. On error everything opened so far is closed again.
func Open(ctx context.Context, cfg *config.Config) (_ *Components, err error) {
	c := &Components{}
	defer func() {
		if err != nil {
			if cerr := c.Close(); cerr != nil {
				logging.Error().Err(cerr).Msg("Error closing partially opened components")
			}
		}
	}()

	c.DB, err = database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	c.Checkpoints, err = checkpoint.OpenBadger(cfg.Checkpoint.Path, cfg.Checkpoint.InMemory)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}

	c.Cache, err = cache.New(ctx, cache.Config{
		Backend:       cache.Backend(cfg.Cache.Backend),
		TTL:           cfg.Cache.TTL,
		RedisAddr:     cfg.Cache.RedisAddr,
		RedisPassword: cfg.Cache.RedisPassword,
		RedisDB:       cfg.Cache.RedisDB,
		KeyPrefix:     "trackersync:",
	})
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	c.Client, err = NewTrackerClient(cfg.Tracker, c.Cache, cfg.Cache.TTL)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Close releases every opened component and joins their errors.
func (c *Components) Close() error {
	var errs []error
	switch closer := c.Cache.(type) {
	case io.Closer:
		errs = append(errs, closer.Close())
	case interface{ Close() }:
		closer.Close()
	}
	if c.Checkpoints != nil {
		errs = append(errs, c.Checkpoints.Close())
	}
	if c.DB != nil {
		errs = append(errs, c.DB.Close())
	}
	return errors.Join(errs...)
}

// NewTrackerClient layers the cache over the circuit breaker over the
// rate-limited HTTP client, so cache hits never count against the breaker.
func NewTrackerClient(cfg config.TrackerConfig, store cache.Store, ttl time.Duration) (*tracker.CachedClient, error) {
	loc, err := tracker.LoadLocation(cfg.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("create tracker client: %w", err)
	}
	httpClient, err := tracker.NewHTTPClient(tracker.Options{
		BaseURL:           cfg.BaseURL,
		Credential:        cfg.Credential,
		APIVersion:        tracker.APIVersion(cfg.APIVersion),
		RequestsPerSecond: cfg.RequestsPerSecond,
		BurstEvery:        cfg.BurstEvery,
		BurstPause:        cfg.BurstPause,
		MaxRetries:        cfg.MaxRetries,
		RetryBaseDelay:    cfg.RetryBaseDelay,
		DefaultRetryAfter: cfg.DefaultRetryAfter,
		RequestTimeout:    cfg.RequestTimeout,
		PageSize:          cfg.PageSize,
		Location:          loc,
	})
	if err != nil {
		return nil, fmt.Errorf("create tracker client: %w", err)
	}

	var client tracker.Client = httpClient
	if cfg.BreakerEnabled {
		settings := tracker.DefaultBreakerSettings()
		if cfg.BreakerMinRequests > 0 {
			settings.MinRequests = cfg.BreakerMinRequests
		}
		if cfg.BreakerFailureRatio > 0 {
			settings.FailureRatio = cfg.BreakerFailureRatio
		}
		if cfg.BreakerTimeout > 0 {
			settings.Timeout = cfg.BreakerTimeout
		}
		client = tracker.NewCircuitBreakerClient(client, settings)
	}
	return tracker.NewCachedClient(client, store, ttl), nil
}

// NewClassifier builds the worklog classifier from configuration.
func NewClassifier(cfg config.ClassifierConfig) *classifier.Classifier {
	opts := []classifier.Option{}
	if cfg.DefaultCategory != "" {
		opts = append(opts, classifier.WithDefault(classifier.Category(cfg.DefaultCategory)))
	}
	if cfg.MaxMeeting > 0 {
		opts = append(opts, classifier.WithMeetingWindow(cfg.MaxMeeting, cfg.WorkdayStart, cfg.WorkdayEnd))
	}
	return classifier.New(classifier.DefaultRules(), opts...)
}

// NewOrchestrator builds the orchestrator over c. hub may be nil, in which
// case run status changes are not broadcast.
func NewOrchestrator(cfg *config.Config, c *Components, publisher progress.Publisher, hub *ws.Hub) *syncengine.Orchestrator {
	deps := syncengine.Deps{
		Store:       c.DB,
		Client:      c.Client,
		Checkpoints: c.Checkpoints,
		Classifier:  NewClassifier(cfg.Classifier),
		Cache:       c.Client,
		Publisher:   publisher,
	}
	if cfg.Validation.Enabled {
		deps.Validator = validation.New(c.DB, c.Client, cfg.Validation)
	}
	if hub != nil {
		deps.OnStatus = func(run *models.SyncRun) { hub.BroadcastRunStatus(run) }
	}

	return syncengine.New(deps, syncengine.Options{
		Projects:        cfg.Sync.Projects,
		PageSize:        cfg.Tracker.PageSize,
		MaxPages:        cfg.Tracker.MaxPages,
		StalenessWindow: cfg.Sync.StalenessWindow,
		ProgressBuffer:  cfg.Sync.ProgressBuffer,
		SinceOverlap:    cfg.Sync.SinceOverlap,
	})
}
