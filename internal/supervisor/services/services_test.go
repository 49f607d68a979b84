// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package services

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/trackersync/internal/logging"
)

func init() {
	logging.Init(logging.Config{Level: "error", Format: "console", Output: io.Discard})
}

// fakeServer blocks in ListenAndServe until Shutdown.
type fakeServer struct {
	listenErr   error
	shutdownErr error

	mu       sync.Mutex
	calls    []string
	stopped  chan struct{}
	stopOnce sync.Once
}

func newFakeServer() *fakeServer {
	return &fakeServer{stopped: make(chan struct{})}
}

func (s *fakeServer) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *fakeServer) ListenAndServe() error {
	if s.listenErr != nil {
		return s.listenErr
	}
	<-s.stopped
	return http.ErrServerClosed
}

func (s *fakeServer) Shutdown(context.Context) error {
	s.record("shutdown")
	s.stopOnce.Do(func() { close(s.stopped) })
	return s.shutdownErr
}

func TestHTTPServerService_ShutdownThenDrain(t *testing.T) {
	server := newFakeServer()
	svc := NewHTTPServerService(server, time.Second, func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("drain context has no deadline")
		}
		server.record("drain")
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Serve = %v, want context.Canceled", err)
	}
	server.mu.Lock()
	defer server.mu.Unlock()
	if len(server.calls) != 2 || server.calls[0] != "shutdown" || server.calls[1] != "drain" {
		t.Errorf("calls = %v, want [shutdown drain]", server.calls)
	}
}

func TestHTTPServerService_ListenFailure(t *testing.T) {
	server := newFakeServer()
	server.listenErr = errors.New("address already in use")

	err := NewHTTPServerService(server, 0).Serve(context.Background())
	if err == nil || !errors.Is(err, server.listenErr) {
		t.Errorf("Serve = %v, want wrapped listen error", err)
	}
}

func TestHTTPServerService_ReportsDrainFailure(t *testing.T) {
	server := newFakeServer()
	drainErr := errors.New("runs still finishing")
	svc := NewHTTPServerService(server, time.Second, func(context.Context) error { return drainErr })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := svc.Serve(ctx); !errors.Is(err, drainErr) {
		t.Errorf("Serve = %v, want drain error", err)
	}
	if svc.String() != "http-server" {
		t.Errorf("String() = %q", svc.String())
	}
}

type stubHub struct{ err error }

func (h stubHub) RunWithContext(ctx context.Context) error {
	if h.err != nil {
		return h.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestHubService(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewHubService(stubHub{}).Serve(ctx); !errors.Is(err, suture.ErrDoNotRestart) {
		t.Errorf("shutdown Serve = %v, want ErrDoNotRestart", err)
	}

	crash := errors.New("broadcast channel closed")
	if err := NewHubService(stubHub{err: crash}).Serve(context.Background()); !errors.Is(err, crash) {
		t.Errorf("crash Serve = %v, want %v", err, crash)
	}
}
