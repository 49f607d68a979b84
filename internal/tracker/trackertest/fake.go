// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

// Package trackertest provides an in-memory tracker.Client for tests.
package trackertest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tomtom215/trackersync/internal/models"
	"github.com/tomtom215/trackersync/internal/syncerr"
	"github.com/tomtom215/trackersync/internal/tracker"
)

// FailFunc may inject an error before a request is served. Returning nil
// lets the request through.
type FailFunc func(resource tracker.Resource, q tracker.Query, offset int) error

// Fake serves projects, issues, worklogs and users from memory. Records are
// copied on the way out so callers may mutate what they receive.
type Fake struct {
	mu       sync.Mutex
	projects map[string]*models.Project
	issues   map[string][]*models.Issue
	worklogs map[string][]*models.Worklog
	users    map[string]*models.User
	calls    map[tracker.Resource]int

	// PingErr is returned by Ping when set.
	PingErr error
	// Fail is consulted before every FetchPage.
	Fail FailFunc
	// PageSize is used when a query does not set one.
	PageSize int
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		projects: make(map[string]*models.Project),
		issues:   make(map[string][]*models.Issue),
		worklogs: make(map[string][]*models.Worklog),
		users:    make(map[string]*models.User),
		calls:    make(map[tracker.Resource]int),
		PageSize: 50,
	}
}

// AddProject registers a project.
func (f *Fake) AddProject(p models.Project) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.projects[p.Key] = &p
}

// AddIssue appends an issue to its project.
func (f *Fake) AddIssue(i models.Issue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issues[i.ProjectKey] = append(f.issues[i.ProjectKey], &i)
}

// UpdateIssue replaces the issue with the same key.
func (f *Fake) UpdateIssue(i models.Issue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for idx, existing := range f.issues[i.ProjectKey] {
		if existing.Key == i.Key {
			f.issues[i.ProjectKey][idx] = &i
			return
		}
	}
}

// AddWorklog appends a worklog to its issue.
func (f *Fake) AddWorklog(w models.Worklog) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.worklogs[w.IssueKey] = append(f.worklogs[w.IssueKey], &w)
}

// AddUser registers a user.
func (f *Fake) AddUser(u models.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.RemoteID] = &u
}

// Calls returns how many FetchPage calls hit resource.
func (f *Fake) Calls(resource tracker.Resource) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[resource]
}

// Ping implements tracker.Client.
func (f *Fake) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.PingErr
}

// FetchDetail implements tracker.Client.
func (f *Fake) FetchDetail(ctx context.Context, resource tracker.Resource, id string) (models.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	switch resource {
	case tracker.ResourceProjects:
		if p, ok := f.projects[id]; ok {
			cp := *p
			return &cp, nil
		}
	case tracker.ResourceUsers:
		if u, ok := f.users[id]; ok {
			cp := *u
			return &cp, nil
		}
	case tracker.ResourceIssues:
		for _, list := range f.issues {
			for _, i := range list {
				if i.Key == id {
					cp := *i
					return &cp, nil
				}
			}
		}
	default:
		return nil, tracker.ErrUnsupported
	}
	return nil, syncerr.FromStatus(fmt.Sprintf("GET %s/%s", resource, id), 404, "not found")
}

// FetchPage implements tracker.Client.
func (f *Fake) FetchPage(ctx context.Context, resource tracker.Resource, q tracker.Query, pageToken string) (*tracker.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	offset, err := tracker.ParseOffsetToken(pageToken)
	if err != nil {
		return nil, syncerr.Permanent(string(resource), err)
	}

	f.mu.Lock()
	f.calls[resource]++
	fail := f.Fail
	f.mu.Unlock()

	if fail != nil {
		if err := fail(resource, q, offset); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var all []models.Record
	switch resource {
	case tracker.ResourceProjects:
		keys := make([]string, 0, len(f.projects))
		for k := range f.projects {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			cp := *f.projects[k]
			all = append(all, &cp)
		}
	case tracker.ResourceIssues:
		for _, i := range f.issues[q.ProjectKey] {
			if q.Since != nil && i.RemoteUpdated.Before(*q.Since) {
				continue
			}
			if q.Until != nil && i.RemoteUpdated.After(*q.Until) {
				continue
			}
			if q.OnlyWithWorklogs && i.TimeSpentSeconds <= 0 {
				continue
			}
			cp := *i
			all = append(all, &cp)
		}
	case tracker.ResourceWorklogs:
		if q.IssueKey == "" {
			return nil, syncerr.Permanent("worklogs", fmt.Errorf("issue key is required"))
		}
		for _, w := range f.worklogs[q.IssueKey] {
			cp := *w
			all = append(all, &cp)
		}
	default:
		return nil, tracker.ErrUnsupported
	}

	size := q.PageSize
	if size <= 0 {
		size = f.PageSize
	}
	if q.CountOnly {
		return &tracker.Page{StartAt: offset, PageSize: 0, Total: len(all)}, nil
	}

	end := offset + size
	if end > len(all) {
		end = len(all)
	}
	var records []models.Record
	if offset < len(all) {
		records = all[offset:end]
	}
	page := &tracker.Page{Records: records, StartAt: offset, PageSize: size, Total: len(all)}
	if end < len(all) {
		page.NextPageToken = tracker.OffsetToken(end)
	}
	return page, nil
}

var _ tracker.Client = (*Fake)(nil)
