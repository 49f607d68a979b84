// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package services

import (
	"context"
	"errors"

	"github.com/thejerf/suture/v4"
)

// ContextHub is a fan-out hub that runs until its context ends.
type ContextHub interface {
	RunWithContext(ctx context.Context) error
}

// HubService runs the WebSocket progress hub.
type HubService struct {
	hub ContextHub
}

// NewHubService wraps hub.
func NewHubService(hub ContextHub) *HubService {
	return &HubService{hub: hub}
}

// Serve implements suture.Service. A hub that returns on its own while the
// tree is still running is restarted; one that stops because of the
// shutdown is not.
func (w *HubService) Serve(ctx context.Context) error {
	err := w.hub.RunWithContext(ctx)
	if ctx.Err() != nil && (err == nil || errors.Is(err, context.Canceled)) {
		return suture.ErrDoNotRestart
	}
	if err == nil {
		return errors.New("websocket hub stopped unexpectedly")
	}
	return err
}

func (w *HubService) String() string {
	return "websocket-hub"
}
