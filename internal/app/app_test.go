// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/trackersync/internal/classifier"
	"github.com/tomtom215/trackersync/internal/config"
	"github.com/tomtom215/trackersync/internal/logging"
	"github.com/tomtom215/trackersync/internal/models"
	"github.com/tomtom215/trackersync/internal/supervisor"
	"github.com/tomtom215/trackersync/internal/trigger"
	ws "github.com/tomtom215/trackersync/internal/websocket"
)

func TestMain(m *testing.M) {
	logging.Init(logging.Config{Level: "error", Format: "console", Output: io.Discard})
	os.Exit(m.Run())
}

func serverInfo(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/rest/api/3/serverInfo":
			fmt.Fprint(w, `{"version":"9.12.0","deploymentType":"Server"}`)
		case "/rest/api/3/myself":
			fmt.Fprint(w, `{"accountId":"svc","timeZone":"Europe/Berlin"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewTrackerClient(t *testing.T) {
	var hits atomic.Int32
	srv := serverInfo(t, &hits)

	cfg := config.Default().Tracker
	cfg.BaseURL = srv.URL
	cfg.Credential = "token"

	client, err := NewTrackerClient(cfg, nil, time.Minute)
	if err != nil {
		t.Fatalf("NewTrackerClient: %v", err)
	}
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	// Server info plus the one-time profile zone lookup.
	if hits.Load() != 2 {
		t.Errorf("server hits = %d, want 2", hits.Load())
	}

	cfg.TimeZone = "UTC"
	pinned, err := NewTrackerClient(cfg, nil, time.Minute)
	if err != nil {
		t.Fatalf("NewTrackerClient: %v", err)
	}
	if err := pinned.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if hits.Load() != 3 {
		t.Errorf("a configured zone should skip the profile lookup, hits = %d", hits.Load())
	}

	cfg.TimeZone = "Nowhere/Special"
	if _, err := NewTrackerClient(cfg, nil, time.Minute); err == nil {
		t.Error("expected error for unknown time zone")
	}

	cfg.TimeZone = ""
	cfg.BaseURL = "://bad"
	if _, err := NewTrackerClient(cfg, nil, time.Minute); err == nil {
		t.Error("expected error for invalid base URL")
	}
}

func TestNewClassifier(t *testing.T) {
	c := NewClassifier(config.ClassifierConfig{DefaultCategory: "qa"})
	d := c.Classify(classifier.Input{Comment: "misc"})
	if d.Category != classifier.QA || d.Source != classifier.SourceDefault {
		t.Errorf("fallback decision = %+v, want qa/default", d)
	}

	d = NewClassifier(config.ClassifierConfig{}).Classify(classifier.Input{DisplayName: "Dana (DevOps)"})
	if d.Category != classifier.DevOps {
		t.Errorf("profile decision = %+v, want devops", d)
	}
}

func TestOpen_InMemoryStores(t *testing.T) {
	var hits atomic.Int32
	srv := serverInfo(t, &hits)

	cfg := config.Default()
	cfg.Tracker.BaseURL = srv.URL
	cfg.Database.Path = ":memory:"
	cfg.Database.Threads = 2
	cfg.Checkpoint.InMemory = true
	cfg.Checkpoint.Path = ""
	cfg.Cache.Backend = "memory"
	cfg.Sync.Projects = []string{"ALPHA"}

	ctx := context.Background()
	comps, err := Open(ctx, cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := comps.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})

	if err := comps.DB.Ping(ctx); err != nil {
		t.Fatalf("database ping: %v", err)
	}

	orch := NewOrchestrator(cfg, comps, nil, nil)
	run, err := orch.CreateRun(ctx, models.Scope{})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	got, err := orch.Status(ctx, run.ID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if got.Status != models.RunPending || got.Scope.Kind != models.KindManual {
		t.Errorf("stored run = %s/%s, want pending/manual", got.Status, got.Scope.Kind)
	}
}

func TestOpen_UnknownCacheBackendClosesStores(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Path = ":memory:"
	cfg.Database.Threads = 2
	cfg.Checkpoint.InMemory = true
	cfg.Checkpoint.Path = ""
	cfg.Cache.Backend = "memcached"

	if _, err := Open(context.Background(), cfg); err == nil {
		t.Fatal("expected error for unknown cache backend")
	}
}

func TestOpenMessaging_Disabled(t *testing.T) {
	m, err := OpenMessaging(config.NATSConfig{Enabled: false})
	if err != nil {
		t.Fatalf("OpenMessaging: %v", err)
	}
	if m != nil {
		t.Fatal("expected nil messaging when NATS is disabled")
	}
	if err := m.Close(); err != nil {
		t.Errorf("nil Close: %v", err)
	}
}

type countingRunner struct {
	ran chan string
}

func (r *countingRunner) CreateRun(_ context.Context, scope models.Scope) (*models.SyncRun, error) {
	return &models.SyncRun{ID: "run-1", Status: models.RunPending, Scope: scope}, nil
}

func (r *countingRunner) Execute(_ context.Context, runID string) (*models.SyncRun, error) {
	select {
	case r.ran <- runID:
	default:
	}
	return &models.SyncRun{ID: runID, Status: models.RunCompleted}, nil
}

func (r *countingRunner) PurgeCheckpoints(context.Context, time.Duration) (int, error) {
	return 0, nil
}

func TestMessaging_InMemoryRequestReachesRunner(t *testing.T) {
	m := NewInMemoryMessaging("sync.progress", "sync.requests")
	t.Cleanup(func() { _ = m.Close() })

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		t.Fatalf("NewSupervisorTree: %v", err)
	}
	runner := &countingRunner{ran: make(chan string, 1)}
	m.AddServices(tree, ws.NewHub(), runner)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)
	t.Cleanup(func() {
		cancel()
		<-errCh
	})

	// The in-memory bus drops messages published before the consumer subscribes.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for {
		msg, err := trigger.NewRequestMessage(ctx, trigger.Request{
			Scope:       models.Scope{ProjectKeys: []string{"ALPHA"}},
			RequestedBy: "test",
		})
		if err != nil {
			t.Fatalf("NewRequestMessage: %v", err)
		}
		if err := m.Publisher.Publish("sync.requests", msg); err != nil {
			t.Fatalf("Publish: %v", err)
		}

		select {
		case id := <-runner.ran:
			if id != "run-1" {
				t.Errorf("executed %q, want run-1", id)
			}
			return
		case <-tick.C:
		case <-deadline:
			t.Fatal("request never reached the runner")
		}
	}
}
