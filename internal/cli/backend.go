// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

// Package cli implements the syncctl operator commands.
//
// Every command runs against a Backend: either the stores opened in-process
// from configuration, or a running server's HTTP API when --server is set.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tomtom215/trackersync/internal/app"
	"github.com/tomtom215/trackersync/internal/checkpoint"
	"github.com/tomtom215/trackersync/internal/config"
	"github.com/tomtom215/trackersync/internal/models"
	"github.com/tomtom215/trackersync/internal/storage"
	"github.com/tomtom215/trackersync/internal/syncengine"
)

// ErrLocalOnly is returned by operations the HTTP API does not expose.
var ErrLocalOnly = errors.New("operation is only available without --server")

// Backend is what the commands operate on.
type Backend interface {
	Run(ctx context.Context, scope models.Scope) (*models.SyncRun, error)
	Resume(ctx context.Context, runID string) (*models.SyncRun, *checkpoint.Plan, error)
	ResumePlan(ctx context.Context, runID string) (*checkpoint.Plan, error)
	Status(ctx context.Context, runID string) (*models.SyncRun, error)
	Logs(ctx context.Context, runID string) ([]*models.SyncLogEntry, error)
	Cancel(ctx context.Context, runID string) (*models.SyncRun, error)
	ListRuns(ctx context.Context, filter storage.RunFilter) ([]*models.SyncRun, error)
	ListStale(ctx context.Context, window time.Duration) ([]syncengine.StaleRun, error)
	PurgeCheckpoints(ctx context.Context, retention time.Duration) (int, error)
	Close() error
}

// localBackend drives an in-process orchestrator over the configured stores.
type localBackend struct {
	*syncengine.Orchestrator
	comps *app.Components
}

func openLocal(ctx context.Context, configPath string, progressOut io.Writer) (*localBackend, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	comps, err := app.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &localBackend{
		Orchestrator: app.NewOrchestrator(cfg, comps, &progressPrinter{w: progressOut}, nil),
		comps:        comps,
	}, nil
}

func (b *localBackend) Close() error {
	return b.comps.Close()
}

var (
	_ Backend = (*localBackend)(nil)
	_ Backend = (*remoteBackend)(nil)
)
