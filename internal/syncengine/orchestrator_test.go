// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package syncengine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/trackersync/internal/checkpoint"
	"github.com/tomtom215/trackersync/internal/clock"
	"github.com/tomtom215/trackersync/internal/config"
	"github.com/tomtom215/trackersync/internal/logging"
	"github.com/tomtom215/trackersync/internal/models"
	"github.com/tomtom215/trackersync/internal/storage"
	"github.com/tomtom215/trackersync/internal/syncerr"
	"github.com/tomtom215/trackersync/internal/tracker"
	"github.com/tomtom215/trackersync/internal/tracker/trackertest"
	"github.com/tomtom215/trackersync/internal/validation"
)

var t0 = time.Date(2026, 4, 6, 9, 0, 0, 0, time.UTC)

func init() {
	logging.Init(logging.Config{Level: "error", Format: "console", Output: io.Discard})
}

// recordingPublisher captures progress events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []models.ProgressEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e *models.ProgressEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *e)
	return nil
}

func (p *recordingPublisher) Name() string { return "recording" }

func (p *recordingPublisher) Events() []models.ProgressEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.ProgressEvent(nil), p.events...)
}

type harness struct {
	fake  *trackertest.Fake
	store *storage.MemoryStore
	cps   *checkpoint.MemoryStore
	clk   *clock.Fake
	pub   *recordingPublisher
	orch  *Orchestrator

	mu       sync.Mutex
	statuses []models.RunStatus
}

func newHarness(t *testing.T, opts Options, withValidation bool) *harness {
	t.Helper()
	h := &harness{
		fake:  trackertest.New(),
		store: storage.NewMemoryStore(),
		cps:   checkpoint.NewMemoryStore(),
		clk:   clock.NewFake(t0),
		pub:   &recordingPublisher{},
	}
	deps := Deps{
		Store:       h.store,
		Client:      h.fake,
		Checkpoints: h.cps,
		Publisher:   h.pub,
		Clock:       h.clk,
		OnStatus: func(run *models.SyncRun) {
			h.mu.Lock()
			h.statuses = append(h.statuses, run.Status)
			h.mu.Unlock()
		},
	}
	if withValidation {
		deps.Validator = validation.New(h.store, h.fake, config.ValidationConfig{
			ThresholdPct:      5,
			MaxWorklogSeconds: 86400,
			DiscrepancyWeight: 2,
			DiscrepancyCap:    50,
			ErrorPenalty:      10,
			WarningPenalty:    2,
		}, validation.WithClock(h.clk))
	}
	h.orch = New(deps, opts)
	return h
}

// seedProject registers a project with n issues, each carrying worklogs
// worklogs authored by one of two users.
func (h *harness) seedProject(key string, n, worklogs int) {
	h.fake.AddProject(models.Project{RemoteID: "p-" + key, Key: key, Name: key + " project"})
	h.fake.AddUser(models.User{RemoteID: "u-dev", DisplayName: "Dana Developer", EmailAddress: "dana@example.com", Active: true})
	h.fake.AddUser(models.User{RemoteID: "u-qa", DisplayName: "Quinn QA Tester", EmailAddress: "quinn@example.com", Active: true})

	for i := 1; i <= n; i++ {
		issueKey := fmt.Sprintf("%s-%d", key, i)
		h.fake.AddIssue(models.Issue{
			RemoteID:         fmt.Sprintf("i-%s-%d", key, i),
			Key:              issueKey,
			ProjectKey:       key,
			Summary:          "Issue " + issueKey,
			Status:           "Open",
			TimeSpentSeconds: int64(worklogs * 1800),
			RemoteCreated:    t0.Add(-48 * time.Hour),
			RemoteUpdated:    t0.Add(-time.Duration(n-i+1) * time.Minute),
		})
		for j := 0; j < worklogs; j++ {
			author := "u-dev"
			if j%2 == 1 {
				author = "u-qa"
			}
			h.fake.AddWorklog(models.Worklog{
				RemoteID:         fmt.Sprintf("w-%s-%d-%d", key, i, j),
				IssueKey:         issueKey,
				AuthorAccountID:  author,
				Comment:          "worked on it",
				Started:          t0.Add(-time.Duration(j+1) * time.Hour),
				TimeSpentSeconds: 1800,
				RemoteUpdated:    t0.Add(-time.Hour),
			})
		}
	}
}

func (h *harness) checkpointsFor(t *testing.T, runID string) map[string]*models.Checkpoint {
	t.Helper()
	cps, err := h.cps.ListByRun(context.Background(), runID)
	if err != nil {
		t.Fatalf("ListByRun: %v", err)
	}
	out := make(map[string]*models.Checkpoint)
	for _, cp := range cps {
		out[cp.ProjectKey] = cp
	}
	return out
}

func checkStatus(t *testing.T, run *models.SyncRun, want models.RunStatus) {
	t.Helper()
	if run == nil {
		t.Fatal("run is nil")
	}
	if run.Status != want {
		t.Fatalf("run status = %s, want %s (error: %s)", run.Status, want, run.ErrorDetails)
	}
}

func TestRun_PaginatesToCompletion(t *testing.T) {
	h := newHarness(t, Options{PageSize: 25}, false)
	h.seedProject("OPS", 73, 0)

	run, err := h.orch.Run(context.Background(), models.Scope{ProjectKeys: []string{"OPS"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	checkStatus(t, run, models.RunCompleted)

	if got := h.fake.Calls(tracker.ResourceIssues); got != 3 {
		t.Errorf("issue page requests = %d, want 3", got)
	}
	// 73 issues plus the project row.
	if got := h.store.Upserts(); got != 74 {
		t.Errorf("upserts = %d, want 74", got)
	}
	if run.Created != 74 || run.Processed.Issues != 73 || run.Totals.Issues != 73 {
		t.Errorf("created=%d processed=%+v totals=%+v", run.Created, run.Processed, run.Totals)
	}
	if run.Progress != 100 || run.CompletedAt == nil || run.StartedAt == nil {
		t.Errorf("unexpected completion fields: progress=%v started=%v completed=%v", run.Progress, run.StartedAt, run.CompletedAt)
	}

	cp := h.checkpointsFor(t, run.ID)["OPS"]
	if cp == nil || cp.Status != models.CheckpointCompleted {
		t.Fatalf("expected completed checkpoint, got %+v", cp)
	}
	if !cp.Progress.ProjectStored || cp.Progress.EntitiesProcessed != 73 || cp.Progress.EntitiesTotal != 73 {
		t.Errorf("checkpoint progress = %+v", cp.Progress)
	}

	h.mu.Lock()
	statuses := append([]models.RunStatus(nil), h.statuses...)
	h.mu.Unlock()
	if !reflect.DeepEqual(statuses, []models.RunStatus{models.RunInProgress, models.RunCompleted}) {
		t.Errorf("status notifications = %v", statuses)
	}
}

func TestRun_StoresWorklogsUsersAndClassification(t *testing.T) {
	h := newHarness(t, Options{PageSize: 10}, false)
	h.seedProject("OPS", 3, 2)
	ctx := context.Background()

	run, err := h.orch.Run(ctx, models.Scope{ProjectKeys: []string{"OPS"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	checkStatus(t, run, models.RunCompleted)

	if run.Processed.Worklogs != 6 || run.Processed.Users != 2 {
		t.Errorf("processed = %+v", run.Processed)
	}
	if n, _ := h.store.CountWorklogs(ctx, "OPS"); n != 6 {
		t.Errorf("stored worklogs = %d, want 6", n)
	}

	rec, err := h.store.FindByRemoteID(ctx, models.EntityWorklog, "w-OPS-1-1")
	if err != nil {
		t.Fatalf("FindByRemoteID: %v", err)
	}
	if wl := rec.(*models.Worklog); wl.ResourceType == "" {
		t.Error("worklog was not classified")
	}
	if _, err := h.store.FindByRemoteID(ctx, models.EntityUser, "u-qa"); err != nil {
		t.Errorf("worklog author not stored: %v", err)
	}

	status, err := h.store.GetProjectStatus(ctx, "OPS")
	if err != nil {
		t.Fatalf("GetProjectStatus: %v", err)
	}
	if status.LastStatus != models.RunCompleted || status.LastSuccessAt == nil || status.IssuesSynced != 3 || status.WorklogsSynced != 6 {
		t.Errorf("project status = %+v", status)
	}

	events := h.pub.Events()
	if len(events) == 0 {
		t.Fatal("no progress events published")
	}
	last := events[len(events)-1]
	if last.RunID != run.ID || last.Processed.Issues != 3 {
		t.Errorf("last progress event = %+v", last)
	}
}

func TestRun_Idempotent(t *testing.T) {
	h := newHarness(t, Options{PageSize: 10}, false)
	h.seedProject("OPS", 12, 2)
	ctx := context.Background()
	scope := models.Scope{ProjectKeys: []string{"OPS"}, ForceFullSync: true}

	first, err := h.orch.Run(ctx, scope)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	checkStatus(t, first, models.RunCompleted)
	upserts := h.store.Upserts()
	issues, _ := h.store.CountIssues(ctx, "OPS")
	worklogs, _ := h.store.CountWorklogs(ctx, "OPS")

	h.clk.Advance(time.Hour)
	second, err := h.orch.Run(ctx, scope)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	checkStatus(t, second, models.RunCompleted)

	if got := h.store.Upserts(); got != upserts {
		t.Errorf("second run wrote %d records", got-upserts)
	}
	if second.Created != 0 || second.Updated != 0 {
		t.Errorf("second run created=%d updated=%d", second.Created, second.Updated)
	}
	// 1 project + 12 issues + 24 worklogs + 2 users
	if second.Unchanged != 39 {
		t.Errorf("second run unchanged = %d, want 39", second.Unchanged)
	}
	if n, _ := h.store.CountIssues(ctx, "OPS"); n != issues {
		t.Errorf("issue count changed: %d -> %d", issues, n)
	}
	if n, _ := h.store.CountWorklogs(ctx, "OPS"); n != worklogs {
		t.Errorf("worklog count changed: %d -> %d", worklogs, n)
	}
}

func TestRun_RemoteChangeOverwritesLocal(t *testing.T) {
	h := newHarness(t, Options{PageSize: 10}, false)
	h.seedProject("OPS", 2, 0)
	ctx := context.Background()
	scope := models.Scope{ProjectKeys: []string{"OPS"}, ForceFullSync: true}

	if _, err := h.orch.Run(ctx, scope); err != nil {
		t.Fatalf("Run: %v", err)
	}

	h.fake.UpdateIssue(models.Issue{
		RemoteID:      "i-OPS-2",
		Key:           "OPS-2",
		ProjectKey:    "OPS",
		Summary:       "Renamed upstream",
		Status:        "Done",
		RemoteCreated: t0.Add(-48 * time.Hour),
		RemoteUpdated: t0.Add(time.Minute),
	})
	h.clk.Advance(time.Hour)

	run, err := h.orch.Run(ctx, scope)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Updated != 1 {
		t.Errorf("updated = %d, want 1", run.Updated)
	}
	rec, _ := h.store.FindByRemoteID(ctx, models.EntityIssue, "i-OPS-2")
	if issue := rec.(*models.Issue); issue.Summary != "Renamed upstream" || issue.Status != "Done" {
		t.Errorf("local issue not overwritten: %+v", issue)
	}
}

func TestRun_PartialFailureIsolation(t *testing.T) {
	h := newHarness(t, Options{PageSize: 10}, false)
	for _, key := range []string{"ALPHA", "BRAVO", "CHARLIE"} {
		h.seedProject(key, 5, 1)
	}
	h.fake.Fail = func(resource tracker.Resource, q tracker.Query, _ int) error {
		if resource == tracker.ResourceIssues && q.ProjectKey == "BRAVO" {
			return syncerr.FromStatus("GET search", 403, "")
		}
		return nil
	}
	ctx := context.Background()

	run, err := h.orch.Run(ctx, models.Scope{ProjectKeys: []string{"ALPHA", "BRAVO", "CHARLIE"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	checkStatus(t, run, models.RunCompleted)

	if run.ErrorCount < 1 {
		t.Errorf("ErrorCount = %d, want >= 1", run.ErrorCount)
	}
	if !reflect.DeepEqual(run.FailedProjects, []string{"BRAVO"}) {
		t.Errorf("FailedProjects = %v", run.FailedProjects)
	}
	for _, key := range []string{"ALPHA", "CHARLIE"} {
		if n, _ := h.store.CountIssues(ctx, key); n != 5 {
			t.Errorf("%s issues = %d, want 5", key, n)
		}
	}

	cps := h.checkpointsFor(t, run.ID)
	want := map[string]models.CheckpointStatus{
		"ALPHA":   models.CheckpointCompleted,
		"BRAVO":   models.CheckpointFailed,
		"CHARLIE": models.CheckpointCompleted,
	}
	for key, status := range want {
		if cps[key] == nil || cps[key].Status != status {
			t.Errorf("checkpoint %s = %+v, want %s", key, cps[key], status)
		}
	}
	if !strings.Contains(cps["BRAVO"].Error, "403") {
		t.Errorf("failed checkpoint should embed the error, got %q", cps["BRAVO"].Error)
	}

	status, _ := h.store.GetProjectStatus(ctx, "BRAVO")
	if status == nil || status.LastStatus != models.RunFailed || status.LastError == "" {
		t.Errorf("BRAVO status = %+v", status)
	}

	logs, err := h.orch.Logs(ctx, run.ID)
	if err != nil {
		t.Fatalf("Logs: %v", err)
	}
	var found bool
	for _, entry := range logs {
		if entry.EntityID == "BRAVO" {
			found = true
			if entry.Category != string(syncerr.CategoryPermanent) || len(entry.Remediation) == 0 {
				t.Errorf("log entry not classified: %+v", entry)
			}
		}
	}
	if !found {
		t.Error("no log entry recorded for the failed project")
	}
}

func TestRun_CriticalErrorFailsRun(t *testing.T) {
	h := newHarness(t, Options{PageSize: 10}, false)
	h.seedProject("ALPHA", 2, 0)
	h.seedProject("BRAVO", 2, 0)
	h.fake.Fail = func(resource tracker.Resource, q tracker.Query, _ int) error {
		if resource == tracker.ResourceIssues && q.ProjectKey == "ALPHA" {
			return syncerr.Resource("store", errors.New("no space left on device"))
		}
		return nil
	}

	run, err := h.orch.Run(context.Background(), models.Scope{ProjectKeys: []string{"ALPHA", "BRAVO"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	checkStatus(t, run, models.RunFailed)
	if _, ok := h.checkpointsFor(t, run.ID)["BRAVO"]; ok {
		t.Error("BRAVO should not start after a critical failure")
	}
}

func TestRun_EntityErrorsAreSkipped(t *testing.T) {
	h := newHarness(t, Options{PageSize: 10}, false)
	h.seedProject("OPS", 2, 0)
	// Missing summary and status.
	h.fake.AddIssue(models.Issue{RemoteID: "i-bad", Key: "OPS-3", ProjectKey: "OPS", RemoteUpdated: t0.Add(-time.Second)})
	ctx := context.Background()

	run, err := h.orch.Run(ctx, models.Scope{ProjectKeys: []string{"OPS"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	checkStatus(t, run, models.RunCompleted)
	if run.ErrorCount != 1 || len(run.FailedProjects) != 0 {
		t.Errorf("ErrorCount=%d FailedProjects=%v", run.ErrorCount, run.FailedProjects)
	}
	if n, _ := h.store.CountIssues(ctx, "OPS"); n != 2 {
		t.Errorf("stored issues = %d, want 2", n)
	}
}

func TestRun_Preconditions(t *testing.T) {
	t.Run("no scope", func(t *testing.T) {
		h := newHarness(t, Options{}, false)
		run, err := h.orch.Run(context.Background(), models.Scope{})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		checkStatus(t, run, models.RunFailed)
		if !strings.Contains(run.ErrorDetails, syncerr.ErrNoScope.Error()) {
			t.Errorf("ErrorDetails = %q", run.ErrorDetails)
		}
	})

	t.Run("configured scope", func(t *testing.T) {
		h := newHarness(t, Options{Projects: []string{"OPS", "OPS"}}, false)
		h.seedProject("OPS", 1, 0)
		run, err := h.orch.Run(context.Background(), models.Scope{})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		checkStatus(t, run, models.RunCompleted)
		if !reflect.DeepEqual(run.Scope.ProjectKeys, []string{"OPS"}) {
			t.Errorf("resolved scope = %v", run.Scope.ProjectKeys)
		}
	})

	t.Run("tracker unreachable", func(t *testing.T) {
		h := newHarness(t, Options{}, false)
		h.fake.PingErr = syncerr.FromStatus("GET myself", 401, "")
		run, err := h.orch.Run(context.Background(), models.Scope{ProjectKeys: []string{"OPS"}})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		checkStatus(t, run, models.RunFailed)
		if h.fake.Calls(tracker.ResourceIssues) != 0 {
			t.Error("no work should start when the tracker is unreachable")
		}
	})

	t.Run("execute twice", func(t *testing.T) {
		h := newHarness(t, Options{}, false)
		h.seedProject("OPS", 1, 0)
		run, err := h.orch.Run(context.Background(), models.Scope{ProjectKeys: []string{"OPS"}})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if _, err := h.orch.Execute(context.Background(), run.ID); !errors.Is(err, ErrRunNotPending) {
			t.Errorf("expected ErrRunNotPending, got %v", err)
		}
	})
}

func TestRun_IncrementalSince(t *testing.T) {
	h := newHarness(t, Options{PageSize: 10}, false)
	h.seedProject("OPS", 4, 0)
	ctx := context.Background()

	var mu sync.Mutex
	var seen []*time.Time
	h.fake.Fail = func(resource tracker.Resource, q tracker.Query, _ int) error {
		if resource == tracker.ResourceIssues && !q.CountOnly {
			mu.Lock()
			seen = append(seen, q.Since)
			mu.Unlock()
		}
		return nil
	}

	if _, err := h.orch.Run(ctx, models.Scope{ProjectKeys: []string{"OPS"}}); err != nil {
		t.Fatal(err)
	}
	h.clk.Advance(time.Hour)
	second, err := h.orch.Run(ctx, models.Scope{ProjectKeys: []string{"OPS"}})
	if err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Fatalf("expected 2 issue queries, got %d", len(seen))
	}
	if seen[0] != nil {
		t.Errorf("first run should fetch full history, got since=%v", seen[0])
	}
	if seen[1] == nil || !seen[1].Equal(t0) {
		t.Errorf("second run since = %v, want %v", seen[1], t0)
	}
	if second.Processed.Issues != 0 {
		t.Errorf("nothing changed remotely, processed %d issues", second.Processed.Issues)
	}
}

func TestRun_IncrementalSinceOverlap(t *testing.T) {
	h := newHarness(t, Options{PageSize: 10, SinceOverlap: 5 * time.Minute}, false)
	h.seedProject("OPS", 2, 0)
	ctx := context.Background()

	var mu sync.Mutex
	var seen []*time.Time
	h.fake.Fail = func(resource tracker.Resource, q tracker.Query, _ int) error {
		if resource == tracker.ResourceIssues && !q.CountOnly {
			mu.Lock()
			seen = append(seen, q.Since)
			mu.Unlock()
		}
		return nil
	}

	if _, err := h.orch.Run(ctx, models.Scope{ProjectKeys: []string{"OPS"}}); err != nil {
		t.Fatal(err)
	}
	h.clk.Advance(time.Hour)
	if _, err := h.orch.Run(ctx, models.Scope{ProjectKeys: []string{"OPS"}}); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Fatalf("expected 2 issue queries, got %d", len(seen))
	}
	want := t0.Add(-5 * time.Minute)
	if seen[1] == nil || !seen[1].Equal(want) {
		t.Errorf("second run since = %v, want %v", seen[1], want)
	}

	status, err := h.store.GetProjectStatus(ctx, "OPS")
	if err != nil {
		t.Fatal(err)
	}
	if !status.LastSuccessAt.Equal(t0.Add(time.Hour)) {
		t.Errorf("last success = %v, want the second run's start", status.LastSuccessAt)
	}
}

func TestEffectiveSince(t *testing.T) {
	explicit := t0.Add(-72 * time.Hour)
	last := t0.Add(-time.Hour)
	overlapped := last.Add(-5 * time.Minute)
	status := &models.ProjectSyncStatus{LastSuccessAt: &last}

	tests := []struct {
		name    string
		scope   models.Scope
		status  *models.ProjectSyncStatus
		overlap time.Duration
		want    *time.Time
	}{
		{"explicit window wins", models.Scope{Since: &explicit}, status, 0, &explicit},
		{"explicit window ignores overlap", models.Scope{Since: &explicit}, status, 5 * time.Minute, &explicit},
		{"last success", models.Scope{}, status, 0, &last},
		{"last success minus overlap", models.Scope{}, status, 5 * time.Minute, &overlapped},
		{"forced full sync", models.Scope{ForceFullSync: true}, status, 5 * time.Minute, nil},
		{"never synced", models.Scope{}, nil, 5 * time.Minute, nil},
		{"status without success", models.Scope{}, &models.ProjectSyncStatus{}, 5 * time.Minute, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := effectiveSince(tt.scope, tt.status, tt.overlap)
			if (got == nil) != (tt.want == nil) || (got != nil && !got.Equal(*tt.want)) {
				t.Errorf("effectiveSince = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRun_AttachesValidation(t *testing.T) {
	h := newHarness(t, Options{PageSize: 10}, true)
	h.seedProject("OPS", 7, 1)

	run, err := h.orch.Run(context.Background(), models.Scope{ProjectKeys: []string{"OPS"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	checkStatus(t, run, models.RunCompleted)
	if run.Validation == nil {
		t.Fatal("validation result not attached")
	}
	if !run.Validation.Valid || run.Validation.CompletenessScore != 100 {
		t.Errorf("validation = %+v", run.Validation)
	}
	if pv := run.Validation.Projects[0]; pv.LocalIssues != 7 || pv.RemoteIssues != 7 {
		t.Errorf("project validation = %+v", pv)
	}
}
