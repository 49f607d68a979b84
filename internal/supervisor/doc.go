// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

/*
Package supervisor provides process supervision for trackersync using suture v4.

# Overview

Long-running services are organized into three layers for failure isolation:

	RootSupervisor ("trackersync")
	├── MessagingSupervisor ("messaging-layer")
	│   ├── HubService (WebSocket progress fan-out)
	│   └── websocket.Bridge (if NATS_ENABLED)
	├── SyncSupervisor ("sync-layer")
	│   ├── trigger request consumer (if NATS_ENABLED)
	│   └── trigger.Scheduler (if a sync or purge schedule is set)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

A crashed bus consumer is restarted with backoff without touching the HTTP
server, and the HTTP layer keeps reporting run status while the sync layer
recovers.

Supervisor events are logged through sutureslog into the zerolog-backed
slog handler from the logging package.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddMessagingService(services.NewHubService(hub))
	tree.AddAPIService(services.NewHTTPServerService(srv, 10*time.Second, handler.Shutdown))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
	    return err
	}
*/
package supervisor
