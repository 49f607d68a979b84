// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/trackersync/internal/api"
	"github.com/tomtom215/trackersync/internal/app"
	"github.com/tomtom215/trackersync/internal/config"
	"github.com/tomtom215/trackersync/internal/logging"
	"github.com/tomtom215/trackersync/internal/progress"
	"github.com/tomtom215/trackersync/internal/supervisor"
	"github.com/tomtom215/trackersync/internal/supervisor/services"
	"github.com/tomtom215/trackersync/internal/trigger"
	ws "github.com/tomtom215/trackersync/internal/websocket"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Load configuration using Koanf v2 (defaults -> config file -> env)
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().Str("version", version).Msg("Starting Trackersync with supervisor tree")
	logging.Info().
		Str("tracker_url", cfg.Tracker.BaseURL).
		Str("credential", logging.Redact(cfg.Tracker.Credential)).
		Strs("projects", cfg.Sync.Projects).
		Str("db_path", cfg.Database.Path).
		Str("checkpoint_path", cfg.Checkpoint.Path).
		Str("cache_backend", cfg.Cache.Backend).
		Msg("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logging.Error().Err(err).Msg("Trackersync stopped with error")
		stop()
		os.Exit(1)
	}
	logging.Info().Msg("Application stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config) error {
	comps, err := app.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := comps.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing stores")
		}
	}()
	logging.Info().Msg("Database, checkpoint store and cache initialized")

	pingCtx, cancelPing := context.WithTimeout(ctx, 10*time.Second)
	if err := comps.Client.Ping(pingCtx); err != nil {
		logging.Warn().Err(err).Msg("Tracker not reachable at startup (runs will retry)")
	} else {
		logging.Info().Msg("Connected to tracker successfully")
	}
	cancelPing()

	msg, err := app.OpenMessaging(cfg.NATS)
	if err != nil {
		return err
	}
	defer func() {
		if err := msg.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing messaging")
		}
	}()

	hub := ws.NewHub()
	var publisher progress.Publisher = progress.NewHubPublisher(hub)
	var requestPublisher message.Publisher
	if msg != nil {
		publisher = msg.ProgressPublisher()
		requestPublisher = msg.Publisher
	}
	orch := app.NewOrchestrator(cfg, comps, publisher, hub)

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}

	tree.AddMessagingService(services.NewHubService(hub))
	if msg != nil {
		msg.AddServices(tree, hub, orch)
	}

	scheduler, err := trigger.NewScheduler(trigger.SchedulerConfig{
		SyncSchedule:     cfg.Sync.Schedule,
		OnlyWithWorklogs: cfg.Sync.OnlyWithWorklogs,
		PurgeSchedule:    cfg.Sync.PurgeSchedule,
		Retention:        cfg.Sync.CheckpointRetention,
		RequestTopic:     cfg.NATS.RequestTopic,
	}, orch, requestPublisher)
	if err != nil {
		return err
	}
	tree.AddSyncService(scheduler)
	logging.Info().Int("jobs", scheduler.Jobs()).Msg("Scheduler added to supervisor tree")

	handler := api.NewHandler(api.HandlerDeps{
		Engine:   orch,
		Database: comps.DB,
		Tracker:  comps.Client,
		Hub:      hub,
		Version:  version,
	})
	router := api.NewRouter(handler, api.ChiMiddlewareConfigFrom(cfg.Server))

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.SetupChi(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       60 * time.Second,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout, handler.Shutdown))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	// ServeBackground delivers exactly one result when the root stops.
	var serveErr error
	select {
	case <-ctx.Done():
		logging.Info().Msg("Received shutdown signal, waiting for supervisor to finish...")
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			serveErr = fmt.Errorf("supervisor tree: %w", err)
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}
	return serveErr
}
