// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

/*
Package progress publishes coarse-grained run progress to observers.

A Reporter is created per run and owns a buffered queue drained by one
goroutine, so Report never blocks the orchestrator: when the queue is full
the event is dropped and counted. Publisher failures are logged and never
propagate back into the run.

Publishers:

	HubPublisher        websocket broadcast (single instance)
	WatermillPublisher  message bus topic, JSON-encoded models.ProgressEvent
	Multi               fan-out to several publishers
*/
package progress
