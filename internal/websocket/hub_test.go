// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package websocket

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/trackersync/internal/logging"
	"github.com/tomtom215/trackersync/internal/models"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "error", Format: "console", Output: io.Discard})
}

// setupHub starts a hub bound to the test's lifetime.
func setupHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.RunWithContext(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub, cancel
}

func createTestClient(hub *Hub) *Client {
	return &Client{id: clientIDCounter.Add(1), hub: hub, send: make(chan Message, sendBuffer)}
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for hub.GetClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("client count = %d, want %d", hub.GetClientCount(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case msg, ok := <-c.send:
		if !ok {
			t.Fatal("client channel closed")
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

func TestHub_BroadcastProgress(t *testing.T) {
	hub, _ := setupHub(t)
	a, b := createTestClient(hub), createTestClient(hub)
	hub.Register <- a
	hub.Register <- b
	waitForClients(t, hub, 2)

	event := &models.ProgressEvent{RunID: "run-1", Operation: "OPS: issues 50/73", Percentage: 68.5}
	if !hub.BroadcastProgress(event) {
		t.Fatal("BroadcastProgress dropped the message")
	}

	for _, c := range []*Client{a, b} {
		msg := receive(t, c)
		if msg.Type != MessageTypeSyncProgress {
			t.Errorf("Type = %q, want %q", msg.Type, MessageTypeSyncProgress)
		}
		if got := msg.Data.(*models.ProgressEvent); got.RunID != "run-1" {
			t.Errorf("RunID = %q", got.RunID)
		}
	}
}

func TestHub_UnregisterClosesChannel(t *testing.T) {
	hub, _ := setupHub(t)
	c := createTestClient(hub)
	hub.Register <- c
	waitForClients(t, hub, 1)

	hub.Unregister <- c
	waitForClients(t, hub, 0)
	if _, ok := <-c.send; ok {
		t.Error("send channel should be closed after unregister")
	}
}

func TestHub_SlowClientDropped(t *testing.T) {
	hub, _ := setupHub(t)
	slow := &Client{id: clientIDCounter.Add(1), hub: hub, send: make(chan Message)}
	fast := createTestClient(hub)
	hub.Register <- slow
	hub.Register <- fast
	waitForClients(t, hub, 2)

	hub.BroadcastRunStatus(&models.SyncRun{ID: "r", Status: models.RunCompleted})
	receive(t, fast)
	waitForClients(t, hub, 1)
}

func TestHub_BroadcastRaw(t *testing.T) {
	hub, _ := setupHub(t)
	c := createTestClient(hub)
	hub.Register <- c
	waitForClients(t, hub, 1)

	payload, _ := json.Marshal(models.ProgressEvent{RunID: "remote-run", Percentage: 10})
	if err := hub.BroadcastRaw(payload); err != nil {
		t.Fatalf("BroadcastRaw: %v", err)
	}
	if got := receive(t, c).Data.(*models.ProgressEvent); got.RunID != "remote-run" {
		t.Errorf("RunID = %q", got.RunID)
	}
	if err := hub.BroadcastRaw([]byte("{not json")); err == nil {
		t.Error("BroadcastRaw accepted malformed payload")
	}
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.RunWithContext(ctx) }()

	c := createTestClient(hub)
	hub.Register <- c
	waitForClients(t, hub, 1)
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("RunWithContext = %v, want context.Canceled", err)
	}
	if hub.GetClientCount() != 0 {
		t.Errorf("clients remaining after shutdown: %d", hub.GetClientCount())
	}
}

func TestHub_BroadcastQueueFull(t *testing.T) {
	hub := NewHub() // not running, so nothing drains the queue
	for i := 0; i < cap(hub.broadcast); i++ {
		if !hub.BroadcastProgress(&models.ProgressEvent{}) {
			t.Fatalf("message %d dropped before queue was full", i)
		}
	}
	if hub.BroadcastProgress(&models.ProgressEvent{}) {
		t.Error("expected drop when queue is full")
	}
}
