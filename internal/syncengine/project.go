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

	"github.com/tomtom215/trackersync/internal/checkpoint"
	"github.com/tomtom215/trackersync/internal/classifier"
	"github.com/tomtom215/trackersync/internal/logging"
	"github.com/tomtom215/trackersync/internal/models"
	"github.com/tomtom215/trackersync/internal/progress"
	"github.com/tomtom215/trackersync/internal/storage"
	"github.com/tomtom215/trackersync/internal/syncerr"
	"github.com/tomtom215/trackersync/internal/tracker"
)

// execution is the state of one run while it executes. It is owned by a
// single goroutine.
type execution struct {
	o        *Orchestrator
	runID    string
	scope    models.Scope
	reporter *progress.Reporter
	session  *classifier.Session

	// users caches author lookups for the run; a nil entry marks a failed lookup.
	users map[string]*models.User

	pending batch
	project models.EntityCounts
}

// batch accumulates counters between two run updates.
type batch struct {
	totals    models.EntityCounts
	processed models.EntityCounts
	created   int
	updated   int
	unchanged int
	errors    int
}

func (b *batch) record(entity models.EntityType, out outcome) {
	b.processed.Increment(entity, 1)
	switch out {
	case outcomeCreated:
		b.created++
	case outcomeUpdated:
		b.updated++
	default:
		b.unchanged++
	}
}

func (ex *execution) syncProject(ctx context.Context, key string, resume *checkpoint.ProjectResume) error {
	o := ex.o
	ctx = logging.ContextWithProject(ctx, key)
	log := logging.Ctx(ctx)
	projectStarted := o.clock.Now().UTC()
	ex.project = models.EntityCounts{}

	status, err := o.store.GetProjectStatus(ctx, key)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("read sync status: %w", err)
	}
	since := effectiveSince(ex.scope, status, o.opts.SinceOverlap)

	offset, skipProject := 0, false
	if resume != nil {
		offset = resume.ResumeOffset
		skipProject = resume.SkipProjectCreation
		if resume.Since != nil {
			since = resume.Since
		}
	}

	cp, err := o.checkpoints.Begin(ctx, ex.runID, key, models.CheckpointProjectSync, models.CheckpointProgress{
		ProjectStored:     skipProject,
		EntitiesProcessed: offset,
		Since:             since,
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("checkpoint_id", cp.ID).
		Int("resume_offset", offset).
		Bool("skip_project", skipProject).
		Interface("since", since).
		Msg("Project sync started")

	if err := ex.projectLoop(ctx, cp.ID, key, since, offset, skipProject); err != nil {
		if ferr := ex.flush(context.WithoutCancel(ctx), "project "+key+" aborted"); ferr != nil {
			log.Error().Err(ferr).Msg("Failed to record partial project progress")
		}
		if ctx.Err() == nil {
			if ferr := o.checkpoints.Fail(ctx, cp.ID, err); ferr != nil {
				log.Error().Err(ferr).Msg("Failed to mark checkpoint failed")
			}
		}
		return err
	}

	if err := o.checkpoints.Complete(ctx, cp.ID); err != nil {
		return err
	}

	now := o.clock.Now().UTC()
	_, err = o.store.UpdateProjectStatus(ctx, key, func(s *models.ProjectSyncStatus) error {
		s.LastSyncAt = &now
		// A bounded window says nothing about records changed after it.
		if ex.scope.Until == nil {
			s.LastSuccessAt = &projectStarted
		}
		s.LastStatus = models.RunCompleted
		s.LastRunID = ex.runID
		s.IssuesSynced = ex.project.Issues
		s.WorklogsSynced = ex.project.Worklogs
		s.LastError = ""
		s.UpdatedAt = now
		return nil
	})
	if err != nil {
		return fmt.Errorf("update sync status: %w", err)
	}

	log.Info().
		Int("issues", ex.project.Issues).
		Int("worklogs", ex.project.Worklogs).
		Int("users", ex.project.Users).
		Dur("duration", now.Sub(projectStarted)).
		Msg("Project sync completed")
	return nil
}

func (ex *execution) projectLoop(ctx context.Context, cpID, key string, since *time.Time, offset int, skipProject bool) error {
	o := ex.o

	if !skipProject {
		record, err := o.client.FetchDetail(ctx, tracker.ResourceProjects, key)
		if err != nil {
			return err
		}
		project, ok := record.(*models.Project)
		if !ok {
			return syncerr.Permanent("fetch project "+key, fmt.Errorf("unexpected record type %T", record))
		}
		out, err := persist(ctx, o.store, project, o.clock.Now().UTC())
		if err != nil {
			return err
		}
		ex.pending.record(models.EntityProject, out)
		if err := o.checkpoints.MarkProjectStored(ctx, cpID); err != nil {
			return err
		}
		if err := ex.flush(ctx, "project "+key); err != nil {
			return err
		}
	}

	q := tracker.Query{
		ProjectKey:       key,
		Since:            since,
		Until:            ex.scope.Until,
		OnlyWithWorklogs: ex.scope.OnlyWithWorklogs,
		PageSize:         o.opts.PageSize,
	}
	counted := false

	return tracker.Paginate(ctx, o.client, tracker.ResourceIssues, q, offset, o.opts.MaxPages, func(page *tracker.Page, pageOffset int) error {
		if !counted {
			if remaining := page.Total - offset; remaining > 0 {
				ex.pending.totals.Issues += remaining
			}
			counted = true
		}

		lastKey := ""
		for _, record := range page.Records {
			issue, ok := record.(*models.Issue)
			if !ok {
				ex.entityFailed(ctx, models.EntityIssue, record.RemoteIdentifier(),
					syncerr.Permanent("decode issue", fmt.Errorf("unexpected record type %T", record)))
				continue
			}
			if err := ex.syncIssue(ctx, issue); err != nil {
				return err
			}
			lastKey = issue.Key
		}

		processed := pageOffset + len(page.Records)
		total := page.Total
		if processed > total {
			total = processed
		}
		if err := o.checkpoints.Advance(ctx, cpID, processed, total, lastKey); err != nil {
			return err
		}
		return ex.flush(ctx, fmt.Sprintf("issues %s %d/%d", key, processed, total))
	})
}

// syncIssue stores one issue with its worklogs. Reconciliation errors are
// recorded and swallowed; fetch and critical errors abort the project.
func (ex *execution) syncIssue(ctx context.Context, issue *models.Issue) error {
	o := ex.o

	out, err := persist(ctx, o.store, issue, o.clock.Now().UTC())
	if err != nil {
		if syncerr.IsCritical(err) {
			return err
		}
		ex.entityFailed(ctx, models.EntityIssue, issue.Key, err)
		return nil
	}
	ex.pending.record(models.EntityIssue, out)

	q := tracker.Query{IssueKey: issue.Key, PageSize: o.opts.PageSize}
	counted := false
	return tracker.Paginate(ctx, o.client, tracker.ResourceWorklogs, q, 0, o.opts.MaxPages, func(page *tracker.Page, _ int) error {
		if !counted {
			ex.pending.totals.Worklogs += page.Total
			counted = true
		}
		for _, record := range page.Records {
			worklog, ok := record.(*models.Worklog)
			if !ok {
				ex.entityFailed(ctx, models.EntityWorklog, record.RemoteIdentifier(),
					syncerr.Permanent("decode worklog", fmt.Errorf("unexpected record type %T", record)))
				continue
			}
			if err := ex.syncWorklog(ctx, worklog); err != nil {
				return err
			}
		}
		return nil
	})
}

func (ex *execution) syncWorklog(ctx context.Context, w *models.Worklog) error {
	o := ex.o

	user, err := ex.resolveUser(ctx, w.AuthorAccountID)
	if err != nil {
		return err
	}

	in := classifier.Input{
		AuthorID:    w.AuthorAccountID,
		DisplayName: w.AuthorName,
		Comment:     w.Comment,
		Started:     w.Started,
		Duration:    time.Duration(w.TimeSpentSeconds) * time.Second,
	}
	if user != nil {
		in.DisplayName = user.DisplayName
		in.Email = user.EmailAddress
		if user.TimeZone != "" {
			if loc, err := time.LoadLocation(user.TimeZone); err == nil {
				in.Started = w.Started.In(loc)
			}
		}
	}
	w.ResourceType = string(ex.session.Classify(in).Category)

	out, err := persist(ctx, o.store, w, o.clock.Now().UTC())
	if err != nil {
		if syncerr.IsCritical(err) {
			return err
		}
		ex.entityFailed(ctx, models.EntityWorklog, w.RemoteID, err)
		return nil
	}
	ex.pending.record(models.EntityWorklog, out)
	return nil
}

// resolveUser fetches and stores a worklog author once per run. Lookup
// failures are recorded and the worklog is classified without a profile.
func (ex *execution) resolveUser(ctx context.Context, accountID string) (*models.User, error) {
	if accountID == "" {
		return nil, nil
	}
	if user, seen := ex.users[accountID]; seen {
		return user, nil
	}
	o := ex.o
	ex.users[accountID] = nil
	ex.pending.totals.Users++

	record, err := o.client.FetchDetail(ctx, tracker.ResourceUsers, accountID)
	if err != nil {
		if syncerr.IsCritical(err) || ctx.Err() != nil {
			return nil, err
		}
		ex.entityFailed(ctx, models.EntityUser, accountID, err)
		return nil, nil
	}
	user, ok := record.(*models.User)
	if !ok {
		ex.entityFailed(ctx, models.EntityUser, accountID,
			syncerr.Permanent("decode user", fmt.Errorf("unexpected record type %T", record)))
		return nil, nil
	}

	out, err := persist(ctx, o.store, user, o.clock.Now().UTC())
	if err != nil {
		if syncerr.IsCritical(err) {
			return nil, err
		}
		ex.entityFailed(ctx, models.EntityUser, accountID, err)
		return user, nil
	}
	ex.pending.record(models.EntityUser, out)
	ex.users[accountID] = user
	return user, nil
}

func (ex *execution) entityFailed(ctx context.Context, entity models.EntityType, id string, err error) {
	ex.pending.errors++
	ex.pending.processed.Increment(entity, 1)
	logging.Ctx(ctx).Warn().Err(err).
		Str("entity_type", string(entity)).
		Str("entity_id", id).
		Msg("Entity skipped")
	ex.o.logError(ctx, ex.runID, entity, id, "reconcile", err)
}

// flush applies the pending batch to the run and publishes progress.
func (ex *execution) flush(ctx context.Context, operation string) error {
	b := ex.pending
	ex.pending = batch{}
	ex.project.Add(b.processed)

	now := ex.o.clock.Now().UTC()
	run, err := ex.o.store.UpdateRun(ctx, ex.runID, func(r *models.SyncRun) error {
		r.Totals.Add(b.totals)
		r.Processed.Add(b.processed)
		r.Created += b.created
		r.Updated += b.updated
		r.Unchanged += b.unchanged
		r.ErrorCount += b.errors
		r.LastOperation = operation
		r.Progress = progress.Percentage(r.Processed, r.Totals)
		r.UpdatedAt = now
		return nil
	})
	if err != nil {
		return fmt.Errorf("update run progress: %w", err)
	}
	ex.reporter.Report(operation, run.Totals, b.processed)
	return nil
}
