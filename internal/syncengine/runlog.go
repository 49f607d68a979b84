// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package syncengine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/trackersync/internal/logging"
	"github.com/tomtom215/trackersync/internal/metrics"
	"github.com/tomtom215/trackersync/internal/models"
	"github.com/tomtom215/trackersync/internal/reconcile"
	"github.com/tomtom215/trackersync/internal/storage"
	"github.com/tomtom215/trackersync/internal/syncerr"
)

type outcome string

const (
	outcomeCreated   outcome = "created"
	outcomeUpdated   outcome = "updated"
	outcomeUnchanged outcome = "unchanged"
	outcomeRejected  outcome = "rejected"
)

// persist reconciles remote against the stored record with the same remote
// identifier and writes the merge. Nothing is written when the change set
// is empty.
func persist[T any, P interface {
	*T
	models.Record
}](ctx context.Context, repo storage.EntityRepository, remote P, now time.Time) (outcome, error) {
	entity := string(remote.Entity())

	var local P
	existing, err := repo.FindByRemoteID(ctx, remote.Entity(), remote.RemoteIdentifier())
	switch {
	case err == nil:
		typed, ok := existing.(P)
		if !ok {
			return "", fmt.Errorf("stored %s %s has type %T", entity, remote.RemoteIdentifier(), existing)
		}
		local = typed
	case !errors.Is(err, storage.ErrNotFound):
		return "", fmt.Errorf("load %s %s: %w", entity, remote.RemoteIdentifier(), err)
	}

	merged, changes, err := reconcile.Reconcile[T, P](local, remote)
	if err != nil {
		metrics.RecordEntityOutcome(entity, string(outcomeRejected))
		return "", syncerr.Permanent("reconcile "+entity, err)
	}
	if changes.Empty() {
		metrics.RecordEntityOutcome(entity, string(outcomeUnchanged))
		return outcomeUnchanged, nil
	}

	stampSynced(merged, now)
	if err := repo.Upsert(ctx, merged); err != nil {
		return "", fmt.Errorf("store %s %s: %w", entity, remote.RemoteIdentifier(), err)
	}

	out := outcomeUpdated
	if changes.Created {
		out = outcomeCreated
	} else {
		logging.Ctx(ctx).Debug().Strs("fields", changes.Fields()).Msg(changes.String())
	}
	metrics.RecordEntityOutcome(entity, string(out))
	return out, nil
}

func stampSynced(record models.Record, now time.Time) {
	switch r := record.(type) {
	case *models.Project:
		r.SyncedAt = now
	case *models.Issue:
		r.SyncedAt = now
	case *models.Worklog:
		r.SyncedAt = now
	case *models.User:
		r.SyncedAt = now
	}
}

// logError appends a classified error with remediation to the run log.
func (o *Orchestrator) logError(ctx context.Context, runID string, entity models.EntityType, entityID, operation string, err error) {
	classified := syncerr.Classify(err)

	fields := map[string]interface{}{
		"retryable": classified.Retryable,
		"severity":  string(classified.Severity),
	}
	if classified.StatusCode != 0 {
		fields["status_code"] = classified.StatusCode
	}
	if classified.Op != "" {
		fields["op"] = classified.Op
	}

	o.appendLog(ctx, &models.SyncLogEntry{
		RunID:       runID,
		Severity:    logSeverity(classified.Severity),
		Message:     err.Error(),
		Context:     fields,
		EntityType:  entity,
		EntityID:    entityID,
		Operation:   operation,
		Category:    string(classified.Category),
		Remediation: classified.Remediation,
	})
}

func (o *Orchestrator) appendLog(ctx context.Context, entry *models.SyncLogEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = o.clock.Now().UTC()
	}
	if err := o.store.AppendLog(context.WithoutCancel(ctx), entry); err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("message", entry.Message).Msg("Failed to append run log entry")
	}
}

func logSeverity(s syncerr.Severity) models.Severity {
	switch s {
	case syncerr.SeverityInfo:
		return models.SeverityInfo
	case syncerr.SeverityWarning:
		return models.SeverityWarning
	default:
		return models.SeverityError
	}
}
