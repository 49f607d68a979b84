// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

/*
Package reconcile merges freshly fetched remote records into local state.

The remote tracker is the only authority: for every field tagged
`sync:"name"` the merged record carries the remote value. The returned
ChangeSet lists what differed and is used for logging and for skipping
no-op writes; it never changes the outcome of the merge.

A remote record that fails its own validation (missing key, summary or
status) is rejected before anything is merged.
*/
package reconcile

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/trackersync/internal/models"
)

// FieldChange is one differing field.
type FieldChange struct {
	Field       string      `json:"field"`
	LocalValue  interface{} `json:"local_value"`
	RemoteValue interface{} `json:"remote_value"`
}

// ChangeSet describes how a merge changed local state.
type ChangeSet struct {
	Entity   models.EntityType `json:"entity"`
	RemoteID string            `json:"remote_id"`
	Created  bool              `json:"created"`
	Changes  []FieldChange     `json:"changes,omitempty"`
}

// Empty reports whether the merge was a no-op.
func (c ChangeSet) Empty() bool {
	return !c.Created && len(c.Changes) == 0
}

// Fields returns the changed field names.
func (c ChangeSet) Fields() []string {
	names := make([]string, len(c.Changes))
	for i, ch := range c.Changes {
		names[i] = ch.Field
	}
	return names
}

// String renders the change set for log lines.
func (c ChangeSet) String() string {
	switch {
	case c.Created:
		return fmt.Sprintf("%s %s created", c.Entity, c.RemoteID)
	case len(c.Changes) == 0:
		return fmt.Sprintf("%s %s unchanged", c.Entity, c.RemoteID)
	default:
		return fmt.Sprintf("%s %s changed: %s", c.Entity, c.RemoteID, strings.Join(c.Fields(), ", "))
	}
}

// Reconcile merges remote into existing. existing may be nil when no local
// record carries remote's identifier. The merged record is remote itself with
// the local ID carried over (or a fresh one assigned).
func Reconcile[T any, P interface {
	*T
	models.Record
}](existing, remote P) (P, ChangeSet, error) {
	var zero P
	if remote == nil {
		return zero, ChangeSet{}, fmt.Errorf("reconcile: nil remote record")
	}
	if err := remote.Validate(); err != nil {
		return zero, ChangeSet{}, err
	}

	cs := ChangeSet{Entity: remote.Entity(), RemoteID: remote.RemoteIdentifier()}

	if existing == nil {
		cs.Created = true
		if remote.LocalID() == "" {
			remote.SetLocalID(uuid.NewString())
		}
		return remote, cs, nil
	}

	if existing.RemoteIdentifier() != remote.RemoteIdentifier() {
		return zero, cs, fmt.Errorf("reconcile %s: remote id mismatch (local %q, remote %q)",
			remote.Entity(), existing.RemoteIdentifier(), remote.RemoteIdentifier())
	}

	cs.Changes = Diff[T](existing, remote)
	remote.SetLocalID(existing.LocalID())
	return remote, cs, nil
}

type syncField struct {
	name  string
	index int
}

var fieldCache sync.Map // reflect.Type -> []syncField

func syncFields(t reflect.Type) []syncField {
	if cached, ok := fieldCache.Load(t); ok {
		return cached.([]syncField)
	}
	var fields []syncField
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("sync")
		if tag == "" || tag == "-" {
			continue
		}
		fields = append(fields, syncField{name: tag, index: i})
	}
	fieldCache.Store(t, fields)
	return fields
}

var timeType = reflect.TypeOf(time.Time{})

// Diff compares every sync-tagged field of two records of the same type.
// Times are compared by instant, not by location.
func Diff[T any](local, remote *T) []FieldChange {
	lv := reflect.ValueOf(local).Elem()
	rv := reflect.ValueOf(remote).Elem()

	var changes []FieldChange
	for _, f := range syncFields(lv.Type()) {
		l := lv.Field(f.index)
		r := rv.Field(f.index)
		if equalField(l, r) {
			continue
		}
		changes = append(changes, FieldChange{
			Field:       f.name,
			LocalValue:  l.Interface(),
			RemoteValue: r.Interface(),
		})
	}
	return changes
}

func equalField(l, r reflect.Value) bool {
	if l.Type() == timeType {
		return l.Interface().(time.Time).Equal(r.Interface().(time.Time))
	}
	return reflect.DeepEqual(l.Interface(), r.Interface())
}
