// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package syncengine

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/trackersync/internal/checkpoint"
	"github.com/tomtom215/trackersync/internal/models"
	"github.com/tomtom215/trackersync/internal/storage"
	"github.com/tomtom215/trackersync/internal/syncerr"
	"github.com/tomtom215/trackersync/internal/tracker"
)

func createRun(t *testing.T, h *harness, id string, status models.RunStatus, keys ...string) *models.SyncRun {
	t.Helper()
	now := h.clk.Now().UTC()
	run := &models.SyncRun{
		ID:        id,
		Status:    status,
		Scope:     models.Scope{ProjectKeys: keys, Kind: models.KindManual},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.store.CreateRun(context.Background(), run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	return run
}

func TestResume_ContinuesFromCheckpointOffset(t *testing.T) {
	h := newHarness(t, Options{PageSize: 20}, false)
	h.seedProject("OPS", 100, 0)
	ctx := context.Background()

	orig := createRun(t, h, "orig", models.RunFailed, "OPS")
	m := checkpoint.NewManager(h.cps, h.clk)
	cp, err := m.Begin(ctx, "orig", "OPS", models.CheckpointProjectSync, models.CheckpointProgress{})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.MarkProjectStored(ctx, cp.ID); err != nil {
		t.Fatal(err)
	}
	if err := m.Advance(ctx, cp.ID, 40, 100, "OPS-40"); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var offsets []int
	h.fake.Fail = func(resource tracker.Resource, _ tracker.Query, offset int) error {
		if resource == tracker.ResourceIssues {
			mu.Lock()
			offsets = append(offsets, offset)
			mu.Unlock()
		}
		return nil
	}

	run, plan, err := h.orch.Resume(ctx, "orig")
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	checkStatus(t, run, models.RunCompleted)

	if plan.Strategy != checkpoint.StrategyPartialResume {
		t.Errorf("strategy = %s", plan.Strategy)
	}
	if run.Scope.Kind != models.KindRecovery || run.Scope.ResumedFrom != "orig" || run.ID == "orig" {
		t.Errorf("recovery run scope = %+v (id %s)", run.Scope, run.ID)
	}

	mu.Lock()
	first := offsets[0]
	mu.Unlock()
	if first != 40 {
		t.Errorf("first issue page offset = %d, want 40", first)
	}

	// Project creation is not replayed.
	if _, err := h.store.FindByRemoteID(ctx, models.EntityProject, "p-OPS"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("project row should not be written on resume, got err=%v", err)
	}
	if _, err := h.store.FindByRemoteID(ctx, models.EntityIssue, "i-OPS-41"); err != nil {
		t.Errorf("entity 41 should be fetched: %v", err)
	}
	if _, err := h.store.FindByRemoteID(ctx, models.EntityIssue, "i-OPS-40"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("entity 40 should not be refetched, got err=%v", err)
	}
	if run.Processed.Issues != 60 || run.Totals.Issues != 60 {
		t.Errorf("processed=%+v totals=%+v", run.Processed, run.Totals)
	}

	after, _ := h.store.GetRun(ctx, "orig")
	if !reflect.DeepEqual(after, orig) {
		t.Errorf("analyzed run was modified:\n got %+v\nwant %+v", after, orig)
	}
}

func TestResume_AfterPartialFailure(t *testing.T) {
	h := newHarness(t, Options{PageSize: 10}, false)
	for _, key := range []string{"ALPHA", "BRAVO", "CHARLIE"} {
		h.seedProject(key, 4, 1)
	}
	h.fake.Fail = func(resource tracker.Resource, q tracker.Query, _ int) error {
		if resource == tracker.ResourceIssues && q.ProjectKey == "BRAVO" {
			return syncerr.Exhausted("GET search", 4, syncerr.FromStatus("GET search", 503, ""))
		}
		return nil
	}
	ctx := context.Background()

	first, err := h.orch.Run(ctx, models.Scope{ProjectKeys: []string{"ALPHA", "BRAVO", "CHARLIE"}})
	if err != nil {
		t.Fatal(err)
	}
	checkStatus(t, first, models.RunCompleted)

	h.fake.Fail = nil
	plan, err := h.orch.ResumePlan(ctx, first.ID)
	if err != nil {
		t.Fatalf("ResumePlan: %v", err)
	}
	retry, ok := plan.Retry("BRAVO")
	if !ok || !retry.SkipProjectCreation || retry.ResumeOffset != 0 {
		t.Fatalf("BRAVO resume point = %+v (ok=%v)", retry, ok)
	}
	if !reflect.DeepEqual(plan.CompletedProjects, []string{"ALPHA", "CHARLIE"}) {
		t.Errorf("completed = %v", plan.CompletedProjects)
	}

	recovery, _, err := h.orch.Resume(ctx, first.ID)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	checkStatus(t, recovery, models.RunCompleted)
	if !reflect.DeepEqual(recovery.Scope.ProjectKeys, []string{"BRAVO"}) {
		t.Errorf("recovery scope = %v", recovery.Scope.ProjectKeys)
	}
	if n, _ := h.store.CountIssues(ctx, "BRAVO"); n != 4 {
		t.Errorf("BRAVO issues = %d, want 4", n)
	}
	if recovery.ErrorCount != 0 {
		t.Errorf("recovery ErrorCount = %d", recovery.ErrorCount)
	}
}

func TestResume_Strategies(t *testing.T) {
	ctx := context.Background()

	t.Run("full restart without checkpoints", func(t *testing.T) {
		h := newHarness(t, Options{PageSize: 10}, false)
		h.seedProject("OPS", 3, 0)
		createRun(t, h, "orig", models.RunFailed, "OPS")

		run, plan, err := h.orch.Resume(ctx, "orig")
		if err != nil {
			t.Fatalf("Resume: %v", err)
		}
		if plan.Strategy != checkpoint.StrategyFullRestart {
			t.Errorf("strategy = %s", plan.Strategy)
		}
		checkStatus(t, run, models.RunCompleted)
		if run.Processed.Issues != 3 {
			t.Errorf("processed issues = %d", run.Processed.Issues)
		}
	})

	t.Run("already completed", func(t *testing.T) {
		h := newHarness(t, Options{PageSize: 10}, false)
		h.seedProject("OPS", 1, 0)
		run, err := h.orch.Run(ctx, models.Scope{ProjectKeys: []string{"OPS"}})
		if err != nil {
			t.Fatal(err)
		}
		if _, _, err := h.orch.Resume(ctx, run.ID); !errors.Is(err, ErrNothingToResume) {
			t.Errorf("expected ErrNothingToResume, got %v", err)
		}
	})

	t.Run("inconsistent checkpoints", func(t *testing.T) {
		h := newHarness(t, Options{}, false)
		createRun(t, h, "orig", models.RunFailed, "OPS")
		m := checkpoint.NewManager(h.cps, h.clk)
		cp, _ := m.Begin(ctx, "orig", "OPS", models.CheckpointProjectSync, models.CheckpointProgress{})
		_ = m.Advance(ctx, cp.ID, 150, 100, "")

		_, plan, err := h.orch.Resume(ctx, "orig")
		if !errors.Is(err, ErrManualReview) {
			t.Errorf("expected ErrManualReview, got %v", err)
		}
		if plan == nil || len(plan.Problems) == 0 {
			t.Errorf("plan should explain the problem: %+v", plan)
		}
	})

	t.Run("unknown run", func(t *testing.T) {
		h := newHarness(t, Options{}, false)
		if _, _, err := h.orch.Resume(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestRun_ContextCanceledMidProjectLeavesCheckpointActive(t *testing.T) {
	h := newHarness(t, Options{PageSize: 10}, false)
	h.seedProject("OPS", 30, 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.fake.Fail = func(resource tracker.Resource, _ tracker.Query, offset int) error {
		if resource == tracker.ResourceIssues && offset == 10 {
			cancel()
			return context.Canceled
		}
		return nil
	}

	run, err := h.orch.Run(ctx, models.Scope{ProjectKeys: []string{"OPS"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	checkStatus(t, run, models.RunFailed)
	if !strings.Contains(run.ErrorDetails, syncerr.ErrCanceled.Error()) {
		t.Errorf("ErrorDetails = %q", run.ErrorDetails)
	}

	cp := h.checkpointsFor(t, run.ID)["OPS"]
	if cp == nil || cp.Status != models.CheckpointActive {
		t.Fatalf("checkpoint should stay active, got %+v", cp)
	}
	if cp.Progress.EntitiesProcessed != 10 {
		t.Errorf("checkpoint processed = %d, want 10", cp.Progress.EntitiesProcessed)
	}

	h.fake.Fail = nil
	plan, err := h.orch.ResumePlan(context.Background(), run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if r, ok := plan.Retry("OPS"); !ok || r.ResumeOffset != 10 {
		t.Errorf("resume point = %+v", r)
	}
}

func TestCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("pending run fails immediately", func(t *testing.T) {
		h := newHarness(t, Options{}, false)
		run, err := h.orch.CreateRun(ctx, models.Scope{ProjectKeys: []string{"OPS"}})
		if err != nil {
			t.Fatal(err)
		}
		canceled, err := h.orch.Cancel(ctx, run.ID)
		if err != nil {
			t.Fatalf("Cancel: %v", err)
		}
		checkStatus(t, canceled, models.RunFailed)
		if !canceled.CancelRequested {
			t.Error("CancelRequested not set")
		}
		if _, err := h.orch.Execute(ctx, run.ID); !errors.Is(err, ErrRunNotPending) {
			t.Errorf("expected ErrRunNotPending, got %v", err)
		}
	})

	t.Run("terminal run", func(t *testing.T) {
		h := newHarness(t, Options{}, false)
		createRun(t, h, "done", models.RunCompleted, "OPS")
		if _, err := h.orch.Cancel(ctx, "done"); !errors.Is(err, ErrRunTerminal) {
			t.Errorf("expected ErrRunTerminal, got %v", err)
		}
	})

	t.Run("between projects", func(t *testing.T) {
		h := newHarness(t, Options{PageSize: 10}, false)
		h.seedProject("ALPHA", 3, 0)
		h.seedProject("BRAVO", 3, 0)

		var once sync.Once
		h.fake.Fail = func(resource tracker.Resource, q tracker.Query, _ int) error {
			if resource == tracker.ResourceIssues && q.ProjectKey == "ALPHA" {
				once.Do(func() {
					runs, _ := h.store.ListRuns(ctx, storage.RunFilter{Statuses: []models.RunStatus{models.RunInProgress}})
					for _, r := range runs {
						if _, err := h.orch.Cancel(ctx, r.ID); err != nil {
							t.Errorf("Cancel: %v", err)
						}
					}
				})
			}
			return nil
		}

		run, err := h.orch.Run(ctx, models.Scope{ProjectKeys: []string{"ALPHA", "BRAVO"}})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		checkStatus(t, run, models.RunFailed)
		if !strings.Contains(run.ErrorDetails, "canceled") {
			t.Errorf("ErrorDetails = %q", run.ErrorDetails)
		}

		cps := h.checkpointsFor(t, run.ID)
		if cps["ALPHA"] == nil || cps["ALPHA"].Status != models.CheckpointCompleted {
			t.Errorf("ALPHA should finish before the cancel is honored: %+v", cps["ALPHA"])
		}
		if _, started := cps["BRAVO"]; started {
			t.Error("BRAVO should not start after cancel")
		}
	})
}

func TestListStale(t *testing.T) {
	h := newHarness(t, Options{StalenessWindow: 15 * time.Minute}, false)
	ctx := context.Background()
	m := checkpoint.NewManager(h.cps, h.clk)

	createRun(t, h, "stuck", models.RunInProgress, "OPS")
	if _, err := m.Begin(ctx, "stuck", "OPS", models.CheckpointProjectSync, models.CheckpointProgress{}); err != nil {
		t.Fatal(err)
	}
	createRun(t, h, "queued", models.RunPending, "OPS")
	createRun(t, h, "finished", models.RunCompleted, "OPS")

	h.clk.Advance(20 * time.Minute)
	createRun(t, h, "busy", models.RunInProgress, "OPS")
	if _, err := m.Begin(ctx, "busy", "OPS", models.CheckpointProjectSync, models.CheckpointProgress{}); err != nil {
		t.Fatal(err)
	}

	stale, err := h.orch.ListStale(ctx, 0)
	if err != nil {
		t.Fatalf("ListStale: %v", err)
	}
	var ids []string
	for _, s := range stale {
		ids = append(ids, s.Run.ID)
		if s.IdleSeconds != (20 * time.Minute).Seconds() {
			t.Errorf("%s idle = %v", s.Run.ID, s.IdleSeconds)
		}
	}
	sort.Strings(ids)
	if !reflect.DeepEqual(ids, []string{"queued", "stuck"}) {
		t.Errorf("stale runs = %v", ids)
	}

	stale, err = h.orch.ListStale(ctx, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if len(stale) != 0 {
		t.Errorf("expected no stale runs with a 1h window, got %d", len(stale))
	}
}

func TestPurgeCheckpoints(t *testing.T) {
	h := newHarness(t, Options{}, false)
	ctx := context.Background()
	m := checkpoint.NewManager(h.cps, h.clk)

	createRun(t, h, "old-done", models.RunCompleted, "OPS")
	createRun(t, h, "old-running", models.RunInProgress, "OPS")
	for _, id := range []string{"old-done", "old-running"} {
		if _, err := m.Begin(ctx, id, "OPS", models.CheckpointProjectSync, models.CheckpointProgress{}); err != nil {
			t.Fatal(err)
		}
	}

	h.clk.Advance(8 * 24 * time.Hour)
	n, err := h.orch.PurgeCheckpoints(ctx, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("PurgeCheckpoints: %v", err)
	}
	if n != 1 {
		t.Errorf("purged = %d, want 1", n)
	}
	if cps := h.checkpointsFor(t, "old-running"); len(cps) != 1 {
		t.Error("checkpoints of running runs must survive purge")
	}
}
