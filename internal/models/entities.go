// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/trackersync/internal/syncerr"
)

// EntityType names a synchronized record type.
type EntityType string

const (
	EntityProject EntityType = "project"
	EntityIssue   EntityType = "issue"
	EntityWorklog EntityType = "worklog"
	EntityUser    EntityType = "user"
)

// Record is implemented by every synchronized entity.
//
// Fields tagged `sync:"name"` are compared during conflict resolution;
// untagged fields (local ID, bookkeeping timestamps) are never diffed.
type Record interface {
	RemoteIdentifier() string
	Entity() EntityType
	LocalID() string
	SetLocalID(id string)
	// Validate rejects records missing a mandatory field.
	Validate() error
}

// Project is a remote tracker project.
type Project struct {
	ID            string    `json:"id"`
	RemoteID      string    `json:"remote_id" sync:"remote_id"`
	Key           string    `json:"key" sync:"key"`
	Name          string    `json:"name" sync:"name"`
	Description   string    `json:"description,omitempty" sync:"description"`
	LeadAccountID string    `json:"lead_account_id,omitempty" sync:"lead_account_id"`
	ProjectType   string    `json:"project_type,omitempty" sync:"project_type"`
	SyncedAt      time.Time `json:"synced_at"`
}

// Issue is a remote tracker issue.
type Issue struct {
	ID               string    `json:"id"`
	RemoteID         string    `json:"remote_id" sync:"remote_id"`
	Key              string    `json:"key" sync:"key"`
	ProjectKey       string    `json:"project_key" sync:"project_key"`
	Summary          string    `json:"summary" sync:"summary"`
	Description      string    `json:"description,omitempty" sync:"description"`
	Status           string    `json:"status" sync:"status"`
	IssueType        string    `json:"issue_type,omitempty" sync:"issue_type"`
	Priority         string    `json:"priority,omitempty" sync:"priority"`
	AssigneeID       string    `json:"assignee_id,omitempty" sync:"assignee_id"`
	ReporterID       string    `json:"reporter_id,omitempty" sync:"reporter_id"`
	TimeSpentSeconds int64     `json:"time_spent_seconds" sync:"time_spent_seconds"`
	RemoteCreated    time.Time `json:"remote_created" sync:"remote_created"`
	RemoteUpdated    time.Time `json:"remote_updated" sync:"remote_updated"`
	SyncedAt         time.Time `json:"synced_at"`
}

// Worklog is time logged against an issue. ResourceType is derived locally by
// the classifier and is overwritten on every sync.
type Worklog struct {
	ID               string    `json:"id"`
	RemoteID         string    `json:"remote_id" sync:"remote_id"`
	IssueKey         string    `json:"issue_key" sync:"issue_key"`
	AuthorAccountID  string    `json:"author_account_id" sync:"author_account_id"`
	AuthorName       string    `json:"author_name,omitempty" sync:"author_name"`
	Comment          string    `json:"comment,omitempty" sync:"comment"`
	Started          time.Time `json:"started" sync:"started"`
	TimeSpentSeconds int64     `json:"time_spent_seconds" sync:"time_spent_seconds"`
	ResourceType     string    `json:"resource_type,omitempty" sync:"resource_type"`
	RemoteUpdated    time.Time `json:"remote_updated" sync:"remote_updated"`
	SyncedAt         time.Time `json:"synced_at"`
}

// User is a tracker account referenced by worklogs.
type User struct {
	ID           string    `json:"id"`
	RemoteID     string    `json:"remote_id" sync:"remote_id"`
	DisplayName  string    `json:"display_name" sync:"display_name"`
	EmailAddress string    `json:"email_address,omitempty" sync:"email_address"`
	Active       bool      `json:"active" sync:"active"`
	TimeZone     string    `json:"time_zone,omitempty" sync:"time_zone"`
	SyncedAt     time.Time `json:"synced_at"`
}

func (p *Project) RemoteIdentifier() string { return p.RemoteID }
func (p *Project) Entity() EntityType       { return EntityProject }
func (p *Project) LocalID() string          { return p.ID }
func (p *Project) SetLocalID(id string)     { p.ID = id }

// Validate implements Record.
func (p *Project) Validate() error {
	return requireFields(EntityProject, p.RemoteID,
		"remote_id", p.RemoteID, "key", p.Key, "name", p.Name)
}

func (i *Issue) RemoteIdentifier() string { return i.RemoteID }
func (i *Issue) Entity() EntityType       { return EntityIssue }
func (i *Issue) LocalID() string          { return i.ID }
func (i *Issue) SetLocalID(id string)     { i.ID = id }

// Validate implements Record.
func (i *Issue) Validate() error {
	return requireFields(EntityIssue, i.RemoteID,
		"remote_id", i.RemoteID, "key", i.Key, "summary", i.Summary, "status", i.Status)
}

func (w *Worklog) RemoteIdentifier() string { return w.RemoteID }
func (w *Worklog) Entity() EntityType       { return EntityWorklog }
func (w *Worklog) LocalID() string          { return w.ID }
func (w *Worklog) SetLocalID(id string)     { w.ID = id }

// Validate implements Record. Non-positive durations and future start times
// are data-quality findings, not rejections.
func (w *Worklog) Validate() error {
	return requireFields(EntityWorklog, w.RemoteID,
		"remote_id", w.RemoteID, "issue_key", w.IssueKey, "author_account_id", w.AuthorAccountID)
}

func (u *User) RemoteIdentifier() string { return u.RemoteID }
func (u *User) Entity() EntityType       { return EntityUser }
func (u *User) LocalID() string          { return u.ID }
func (u *User) SetLocalID(id string)     { u.ID = id }

// Validate implements Record.
func (u *User) Validate() error {
	return requireFields(EntityUser, u.RemoteID,
		"remote_id", u.RemoteID, "display_name", u.DisplayName)
}

// requireFields takes name/value pairs and reports every empty value.
func requireFields(entity EntityType, id string, pairs ...string) error {
	var missing []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			missing = append(missing, pairs[i])
		}
	}
	if len(missing) == 0 {
		return nil
	}
	if id == "" {
		id = "<unknown>"
	}
	return fmt.Errorf("%s %s: %w: %s", entity, id, syncerr.ErrMissingField, strings.Join(missing, ", "))
}

var (
	_ Record = (*Project)(nil)
	_ Record = (*Issue)(nil)
	_ Record = (*Worklog)(nil)
	_ Record = (*User)(nil)
)
