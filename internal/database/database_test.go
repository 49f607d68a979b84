// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package database

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/trackersync/internal/config"
	"github.com/tomtom215/trackersync/internal/models"
	"github.com/tomtom215/trackersync/internal/storage"
)

// testDBSemaphore limits concurrent database creation to prevent resource exhaustion in CI.
// Too many concurrent DuckDB CGO calls can hang under load.
var testDBSemaphore = make(chan struct{}, 1)

// setupTestDB creates a new in-memory test database with timeout protection.
// The semaphore is held for the whole test and released via t.Cleanup.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() {
		<-testDBSemaphore
	})

	cfg := &config.DatabaseConfig{
		Path:      ":memory:",
		MaxMemory: "512MB",
		Threads:   2,
	}

	type result struct {
		db  *DB
		err error
	}
	resultCh := make(chan result, 1)
	go func() {
		db, err := New(cfg)
		resultCh <- result{db: db, err: err}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			t.Fatalf("Failed to create test database: %v", res.err)
		}
		t.Cleanup(func() {
			if err := res.db.Close(); err != nil {
				t.Errorf("Close: %v", err)
			}
		})
		return res.db
	case <-time.After(120 * time.Second):
		t.Fatal("Timeout creating test database")
		return nil
	}
}

var base = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func TestDB_UpsertAndFind(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	issue := &models.Issue{
		ID: "local-1", RemoteID: "10001", Key: "OPS-1", ProjectKey: "OPS",
		Summary: "Fix login", Status: "Open", TimeSpentSeconds: 3600,
		RemoteCreated: base.Add(-48 * time.Hour), RemoteUpdated: base.In(time.FixedZone("CET", 3600)),
		SyncedAt: base,
	}
	if err := db.Upsert(ctx, issue); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := db.FindByRemoteID(ctx, models.EntityIssue, "10001")
	if err != nil {
		t.Fatalf("FindByRemoteID: %v", err)
	}
	stored := got.(*models.Issue)
	if stored.Summary != "Fix login" || stored.ID != "local-1" {
		t.Errorf("stored issue = %+v", stored)
	}
	if !stored.RemoteUpdated.Equal(base) {
		t.Errorf("RemoteUpdated = %v, want %v", stored.RemoteUpdated, base)
	}
	if stored.RemoteUpdated.Location() != time.UTC {
		t.Errorf("RemoteUpdated location = %v, want UTC", stored.RemoteUpdated.Location())
	}

	// Remote wins on a second upsert of the same remote ID.
	issue.Summary = "Fix login on Safari"
	issue.Status = "Done"
	if err := db.Upsert(ctx, issue); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}
	got, _ = db.FindByRemoteID(ctx, models.EntityIssue, "10001")
	if s := got.(*models.Issue); s.Summary != "Fix login on Safari" || s.Status != "Done" {
		t.Errorf("after update = %+v", s)
	}
	if n, _ := db.CountIssues(ctx, "OPS"); n != 1 {
		t.Errorf("CountIssues = %d, want 1", n)
	}

	if _, err := db.FindByRemoteID(ctx, models.EntityUser, "nobody"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("missing user err = %v, want ErrNotFound", err)
	}
}

func TestDB_IntegrityQueries(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	records := []models.Record{
		&models.Project{ID: "a", RemoteID: "p1", Key: "OPS", Name: "Ops"},
		&models.Issue{ID: "b", RemoteID: "i1", Key: "OPS-1", ProjectKey: "OPS", Summary: "a", Status: "Open"},
		&models.Issue{ID: "c", RemoteID: "i2", Key: "OPS-1", ProjectKey: "OPS", Summary: "dup", Status: "Open"},
		&models.Issue{ID: "d", RemoteID: "i3", Key: "WEB-1", ProjectKey: "WEB", Summary: "b", Status: "Open"},
		&models.Worklog{ID: "e", RemoteID: "w1", IssueKey: "OPS-1", AuthorAccountID: "u", TimeSpentSeconds: 3600, Started: base.Add(-time.Hour)},
		&models.Worklog{ID: "f", RemoteID: "w2", IssueKey: "GONE-9", AuthorAccountID: "u", TimeSpentSeconds: 60, Started: base.Add(-time.Hour)},
		&models.Worklog{ID: "g", RemoteID: "w3", IssueKey: "OPS-1", AuthorAccountID: "u", TimeSpentSeconds: 90000, Started: base.Add(-time.Hour)},
		&models.Worklog{ID: "h", RemoteID: "w4", IssueKey: "OPS-1", AuthorAccountID: "u", TimeSpentSeconds: 60, Started: base.Add(time.Hour)},
		&models.User{ID: "i", RemoteID: "u", DisplayName: "Ada", Active: true},
	}
	for _, r := range records {
		if err := db.Upsert(ctx, r); err != nil {
			t.Fatalf("Upsert %s: %v", r.RemoteIdentifier(), err)
		}
	}

	if n, _ := db.CountWorklogs(ctx, "OPS"); n != 3 {
		t.Errorf("CountWorklogs(OPS) = %d, want 3", n)
	}
	if n, _ := db.CountWorklogs(ctx, ""); n != 4 {
		t.Errorf("CountWorklogs() = %d, want 4", n)
	}
	keys, err := db.IssueKeys(ctx, "OPS")
	if err != nil || !reflect.DeepEqual(keys, []string{"OPS-1", "OPS-1"}) {
		t.Errorf("IssueKeys = %v, %v", keys, err)
	}

	checks := []struct {
		name string
		fn   func() ([]string, error)
		want []string
	}{
		{"orphaned", func() ([]string, error) { return db.OrphanedWorklogs(ctx) }, []string{"w2"}},
		{"without project", func() ([]string, error) { return db.IssuesWithoutProject(ctx) }, []string{"i3"}},
		{"implausible", func() ([]string, error) { return db.ImplausibleWorklogs(ctx, 86400, base) }, []string{"w3", "w4"}},
		{"duplicates", func() ([]string, error) { return db.DuplicateIssueKeys(ctx) }, []string{"OPS-1"}},
	}
	for _, c := range checks {
		got, err := c.fn()
		if err != nil {
			t.Fatalf("%s: %v", c.name, err)
		}
		if !reflect.DeepEqual(got, c.want) {
			t.Errorf("%s = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestDB_RunLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	older := &models.SyncRun{ID: "run-1", Status: models.RunCompleted, CreatedAt: base, UpdatedAt: base,
		Scope: models.Scope{Kind: models.KindManual, ProjectKeys: []string{"OPS"}}}
	newer := &models.SyncRun{ID: "run-2", Status: models.RunPending, CreatedAt: base.Add(time.Minute), UpdatedAt: base,
		Scope: models.Scope{Kind: models.KindScheduled}}
	for _, r := range []*models.SyncRun{older, newer} {
		if err := db.CreateRun(ctx, r); err != nil {
			t.Fatalf("CreateRun: %v", err)
		}
	}

	updated, err := db.UpdateRun(ctx, "run-2", func(r *models.SyncRun) error {
		r.Status = models.RunInProgress
		r.Processed.Issues = 12
		r.FailedProjects = append(r.FailedProjects, "WEB")
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}
	if updated.Status != models.RunInProgress {
		t.Errorf("Status = %s", updated.Status)
	}

	got, err := db.GetRun(ctx, "run-2")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Processed.Issues != 12 || len(got.FailedProjects) != 1 {
		t.Errorf("stored run = %+v", got)
	}

	// A failing callback leaves the row untouched.
	boom := errors.New("boom")
	if _, err := db.UpdateRun(ctx, "run-2", func(r *models.SyncRun) error {
		r.Status = models.RunFailed
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("UpdateRun err = %v, want boom", err)
	}
	if got, _ := db.GetRun(ctx, "run-2"); got.Status != models.RunInProgress {
		t.Errorf("status after failed update = %s", got.Status)
	}

	all, err := db.ListRuns(ctx, storage.RunFilter{})
	if err != nil || len(all) != 2 || all[0].ID != "run-2" {
		t.Fatalf("ListRuns = %v, %v", all, err)
	}
	active, _ := db.ListRuns(ctx, storage.RunFilter{Statuses: []models.RunStatus{models.RunInProgress, models.RunPending}})
	if len(active) != 1 || active[0].ID != "run-2" {
		t.Errorf("ListRuns(active) = %v", active)
	}

	if _, err := db.GetRun(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetRun(missing) = %v", err)
	}
}

func TestDB_ConcurrentRunUpdates(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	if err := db.CreateRun(ctx, &models.SyncRun{ID: "r", Status: models.RunInProgress, CreatedAt: base, UpdatedAt: base}); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := db.UpdateRun(ctx, "r", func(r *models.SyncRun) error {
				r.Processed.Worklogs++
				return nil
			}); err != nil {
				t.Errorf("UpdateRun: %v", err)
			}
		}()
	}
	wg.Wait()

	got, _ := db.GetRun(ctx, "r")
	if got.Processed.Worklogs != 8 {
		t.Errorf("Processed.Worklogs = %d, want 8", got.Processed.Worklogs)
	}
}

func TestDB_LogsAndStatus(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	entries := []*models.SyncLogEntry{
		{RunID: "r", Timestamp: base, Severity: models.SeverityInfo, Message: "started"},
		{RunID: "r", Timestamp: base, Severity: models.SeverityError, Message: "project WEB failed",
			Category: "permission", Remediation: []string{"Check the credential"}, Context: map[string]interface{}{"project": "WEB"}},
	}
	for _, e := range entries {
		if err := db.AppendLog(ctx, e); err != nil {
			t.Fatalf("AppendLog: %v", err)
		}
	}
	logs, err := db.ListLogs(ctx, "r")
	if err != nil || len(logs) != 2 {
		t.Fatalf("ListLogs = %v, %v", logs, err)
	}
	if logs[1].Category != "permission" || logs[1].Remediation[0] != "Check the credential" || logs[1].Context["project"] != "WEB" {
		t.Errorf("second entry = %+v", logs[1])
	}

	when := base.Add(time.Hour)
	if _, err := db.UpdateProjectStatus(ctx, "OPS", func(s *models.ProjectSyncStatus) error {
		s.LastSuccessAt = &when
		s.LastStatus = models.RunCompleted
		s.IssuesSynced = 10
		s.UpdatedAt = when
		return nil
	}); err != nil {
		t.Fatalf("UpdateProjectStatus: %v", err)
	}
	if _, err := db.UpdateProjectStatus(ctx, "OPS", func(s *models.ProjectSyncStatus) error {
		s.IssuesSynced += 5
		return nil
	}); err != nil {
		t.Fatalf("UpdateProjectStatus: %v", err)
	}
	st, err := db.GetProjectStatus(ctx, "OPS")
	if err != nil {
		t.Fatalf("GetProjectStatus: %v", err)
	}
	if st.IssuesSynced != 15 || st.LastSuccessAt == nil || !st.LastSuccessAt.Equal(when) {
		t.Errorf("status = %+v", st)
	}
	all, _ := db.ListProjectStatuses(ctx)
	if len(all) != 1 {
		t.Errorf("ListProjectStatuses = %d rows", len(all))
	}
}

func TestDB_MigrationsRecorded(t *testing.T) {
	db := setupTestDB(t)
	v, err := db.GetSchemaVersion(context.Background())
	if err != nil {
		t.Fatalf("GetSchemaVersion: %v", err)
	}
	migrations := getMigrations()
	if want := migrations[len(migrations)-1].Version; v != want {
		t.Errorf("schema version = %d, want %d", v, want)
	}
}
