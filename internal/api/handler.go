// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package api

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/trackersync/internal/checkpoint"
	"github.com/tomtom215/trackersync/internal/logging"
	"github.com/tomtom215/trackersync/internal/models"
	"github.com/tomtom215/trackersync/internal/storage"
	"github.com/tomtom215/trackersync/internal/syncengine"
	ws "github.com/tomtom215/trackersync/internal/websocket"
)

// Engine is the part of the sync orchestrator the handlers drive.
type Engine interface {
	CreateRun(ctx context.Context, scope models.Scope) (*models.SyncRun, error)
	Execute(ctx context.Context, runID string) (*models.SyncRun, error)
	PrepareResume(ctx context.Context, runID string) (*models.SyncRun, *checkpoint.Plan, error)
	ExecuteResume(ctx context.Context, runID string, plan *checkpoint.Plan) (*models.SyncRun, error)
	ResumePlan(ctx context.Context, runID string) (*checkpoint.Plan, error)
	Status(ctx context.Context, runID string) (*models.SyncRun, error)
	Logs(ctx context.Context, runID string) ([]*models.SyncLogEntry, error)
	Cancel(ctx context.Context, runID string) (*models.SyncRun, error)
	ListRuns(ctx context.Context, filter storage.RunFilter) ([]*models.SyncRun, error)
	ListStale(ctx context.Context, window time.Duration) ([]syncengine.StaleRun, error)
	ProjectStatuses(ctx context.Context) ([]*models.ProjectSyncStatus, error)
}

// Pinger is anything whose reachability the health endpoints report.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HandlerDeps are the collaborators of a Handler. Database, Tracker and Hub
// are optional.
type HandlerDeps struct {
	Engine   Engine
	Database Pinger
	Tracker  Pinger
	Hub      *ws.Hub
	Version  string

	// PingTimeout bounds each health probe. Defaults to 2s.
	PingTimeout time.Duration
}

// Handler contains dependencies for API handlers
//
// Handler methods are split across files:
//   - handler.go: Handler struct, constructor, run dispatch (this file)
//   - handlers_runs.go: run lifecycle endpoints
//   - handlers_health.go: health probes
type Handler struct {
	engine      Engine
	db          Pinger
	tracker     Pinger
	hub         *ws.Hub
	version     string
	pingTimeout time.Duration
	startTime   time.Time

	// baseCtx owns every run started over HTTP.
	baseCtx context.Context
	cancel  context.CancelFunc

	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

// NewHandler creates a Handler. Call Shutdown to stop the runs it started.
func NewHandler(deps HandlerDeps) *Handler {
	timeout := deps.PingTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Handler{
		engine:      deps.Engine,
		db:          deps.Database,
		tracker:     deps.Tracker,
		hub:         deps.Hub,
		version:     version,
		pingTimeout: timeout,
		startTime:   time.Now(),
		baseCtx:     ctx,
		cancel:      cancel,
	}
}

// launch runs fn on a goroutine whose context keeps reqCtx's values (for
// log correlation) but is canceled by Shutdown instead of by the client.
// The returned channel is closed when fn returns.
func (h *Handler) launch(reqCtx context.Context, fn func(ctx context.Context)) (<-chan struct{}, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return nil, ErrShuttingDown
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(reqCtx))
	stop := context.AfterFunc(h.baseCtx, cancel)
	done := make(chan struct{})

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer close(done)
		defer cancel()
		defer stop()
		fn(ctx)
	}()
	return done, nil
}

// Shutdown cancels runs started over HTTP and waits for them to record
// their final status, or for ctx to expire.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	h.mu.Unlock()
	h.cancel()

	waited := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		return nil
	case <-ctx.Done():
		logging.Warn().Msg("Shutdown deadline reached with sync runs still finishing")
		return ctx.Err()
	}
}
