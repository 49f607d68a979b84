// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/trackersync/internal/models"
)

// MemoryStore implements Store in process memory. It is used by tests and
// by syncctl dry runs.
type MemoryStore struct {
	mu       sync.RWMutex
	projects map[string]models.Project // remote ID -> project
	issues   map[string]models.Issue
	worklogs map[string]models.Worklog
	users    map[string]models.User
	runs     map[string]*models.SyncRun
	logs     map[string][]*models.SyncLogEntry
	statuses map[string]*models.ProjectSyncStatus

	upserts int
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects: make(map[string]models.Project),
		issues:   make(map[string]models.Issue),
		worklogs: make(map[string]models.Worklog),
		users:    make(map[string]models.User),
		runs:     make(map[string]*models.SyncRun),
		logs:     make(map[string][]*models.SyncLogEntry),
		statuses: make(map[string]*models.ProjectSyncStatus),
	}
}

// Upserts returns how many Upsert calls have been applied.
func (s *MemoryStore) Upserts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.upserts
}

func (s *MemoryStore) FindByRemoteID(_ context.Context, entity models.EntityType, remoteID string) (models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch entity {
	case models.EntityProject:
		if p, ok := s.projects[remoteID]; ok {
			return &p, nil
		}
	case models.EntityIssue:
		if i, ok := s.issues[remoteID]; ok {
			return &i, nil
		}
	case models.EntityWorklog:
		if w, ok := s.worklogs[remoteID]; ok {
			return &w, nil
		}
	case models.EntityUser:
		if u, ok := s.users[remoteID]; ok {
			return &u, nil
		}
	default:
		return nil, fmt.Errorf("unknown entity type %q", entity)
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) Upsert(_ context.Context, record models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch r := record.(type) {
	case *models.Project:
		s.projects[r.RemoteID] = *r
	case *models.Issue:
		s.issues[r.RemoteID] = *r
	case *models.Worklog:
		s.worklogs[r.RemoteID] = *r
	case *models.User:
		s.users[r.RemoteID] = *r
	default:
		return fmt.Errorf("unsupported record type %T", record)
	}
	s.upserts++
	return nil
}

func (s *MemoryStore) CountIssues(_ context.Context, projectKey string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, i := range s.issues {
		if projectKey == "" || i.ProjectKey == projectKey {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) CountWorklogs(_ context.Context, projectKey string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if projectKey == "" {
		return len(s.worklogs), nil
	}
	keys := s.issueKeySetLocked(projectKey)
	n := 0
	for _, w := range s.worklogs {
		if keys[w.IssueKey] {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) IssueKeys(_ context.Context, projectKey string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for _, i := range s.issues {
		if projectKey == "" || i.ProjectKey == projectKey {
			keys = append(keys, i.Key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryStore) issueKeySetLocked(projectKey string) map[string]bool {
	keys := make(map[string]bool)
	for _, i := range s.issues {
		if projectKey == "" || i.ProjectKey == projectKey {
			keys[i.Key] = true
		}
	}
	return keys
}

func (s *MemoryStore) OrphanedWorklogs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := s.issueKeySetLocked("")
	var out []string
	for id, w := range s.worklogs {
		if !keys[w.IssueKey] {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) IssuesWithoutProject(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	projects := make(map[string]bool, len(s.projects))
	for _, p := range s.projects {
		projects[p.Key] = true
	}
	var out []string
	for id, i := range s.issues {
		if !projects[i.ProjectKey] {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) ImplausibleWorklogs(_ context.Context, maxSeconds int64, now time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for id, w := range s.worklogs {
		if w.TimeSpentSeconds <= 0 || w.TimeSpentSeconds > maxSeconds || w.Started.After(now) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) DuplicateIssueKeys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]int)
	for _, i := range s.issues {
		seen[i.Key]++
	}
	var out []string
	for key, n := range seen {
		if n > 1 {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) CreateRun(_ context.Context, run *models.SyncRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	s.runs[run.ID] = CloneRun(run)
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (*models.SyncRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return CloneRun(run), nil
}

func (s *MemoryStore) UpdateRun(_ context.Context, id string, fn func(run *models.SyncRun) error) (*models.SyncRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	next := CloneRun(run)
	if err := fn(next); err != nil {
		return nil, err
	}
	s.runs[id] = next
	return CloneRun(next), nil
}

func (s *MemoryStore) ListRuns(_ context.Context, filter RunFilter) ([]*models.SyncRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := make(map[models.RunStatus]bool, len(filter.Statuses))
	for _, st := range filter.Statuses {
		want[st] = true
	}
	var out []*models.SyncRun
	for _, run := range s.runs {
		if len(want) > 0 && !want[run.Status] {
			continue
		}
		out = append(out, CloneRun(run))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) AppendLog(_ context.Context, entry *models.SyncLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *entry
	s.logs[entry.RunID] = append(s.logs[entry.RunID], &cp)
	return nil
}

func (s *MemoryStore) ListLogs(_ context.Context, runID string) ([]*models.SyncLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.SyncLogEntry, 0, len(s.logs[runID]))
	for _, e := range s.logs[runID] {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) GetProjectStatus(_ context.Context, projectKey string) (*models.ProjectSyncStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.statuses[projectKey]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *st
	return &cp, nil
}

func (s *MemoryStore) UpdateProjectStatus(_ context.Context, projectKey string, fn func(st *models.ProjectSyncStatus) error) (*models.ProjectSyncStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := models.ProjectSyncStatus{ProjectKey: projectKey}
	if st, ok := s.statuses[projectKey]; ok {
		next = *st
	}
	if err := fn(&next); err != nil {
		return nil, err
	}
	next.ProjectKey = projectKey
	s.statuses[projectKey] = &next
	out := next
	return &out, nil
}

func (s *MemoryStore) ListProjectStatuses(_ context.Context) ([]*models.ProjectSyncStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.ProjectSyncStatus, 0, len(s.statuses))
	for _, st := range s.statuses {
		cp := *st
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProjectKey < out[j].ProjectKey })
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
