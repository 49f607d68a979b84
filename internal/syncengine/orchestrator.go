// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package syncengine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/trackersync/internal/checkpoint"
	"github.com/tomtom215/trackersync/internal/classifier"
	"github.com/tomtom215/trackersync/internal/clock"
	"github.com/tomtom215/trackersync/internal/logging"
	"github.com/tomtom215/trackersync/internal/metrics"
	"github.com/tomtom215/trackersync/internal/models"
	"github.com/tomtom215/trackersync/internal/progress"
	"github.com/tomtom215/trackersync/internal/storage"
	"github.com/tomtom215/trackersync/internal/syncerr"
	"github.com/tomtom215/trackersync/internal/tracker"
)

// Validator checks a run after all of its projects were processed.
type Validator interface {
	Validate(ctx context.Context, run *models.SyncRun) (*models.ValidationResult, error)
}

// CacheInvalidator drops cached tracker data for a project.
type CacheInvalidator interface {
	InvalidateProject(ctx context.Context, projectKey string) (int, error)
}

// Deps are the collaborators of an Orchestrator. Validator, Cache,
// Publisher, OnStatus and Clock are optional.
type Deps struct {
	Store       storage.Store
	Client      tracker.Client
	Checkpoints checkpoint.Store
	Classifier  *classifier.Classifier
	Validator   Validator
	Cache       CacheInvalidator
	Publisher   progress.Publisher
	// OnStatus is called whenever a run changes status.
	OnStatus func(run *models.SyncRun)
	Clock    clock.Clock
}

// Options tunes an Orchestrator.
type Options struct {
	// Projects is the scope used when a run names no project keys.
	Projects        []string
	PageSize        int
	MaxPages        int
	StalenessWindow time.Duration
	ProgressBuffer  int
	// SinceOverlap widens incremental windows backwards to cover remote
	// clock skew and minute-precision date filters.
	SinceOverlap time.Duration
}

// Orchestrator executes sync runs.
type Orchestrator struct {
	store       storage.Store
	client      tracker.Client
	cpStore     checkpoint.Store
	checkpoints *checkpoint.Manager
	classifier  *classifier.Classifier
	validator   Validator
	cache       CacheInvalidator
	publisher   progress.Publisher
	onStatus    func(run *models.SyncRun)
	clock       clock.Clock
	opts        Options

	mu     sync.Mutex
	active map[string]struct{}
}

// New creates an Orchestrator.
func New(deps Deps, opts Options) *Orchestrator {
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}
	cls := deps.Classifier
	if cls == nil {
		cls = classifier.New(nil)
	}
	pub := deps.Publisher
	if pub == nil {
		pub = progress.Nop{}
	}
	if opts.StalenessWindow <= 0 {
		opts.StalenessWindow = 15 * time.Minute
	}

	return &Orchestrator{
		store:       deps.Store,
		client:      deps.Client,
		cpStore:     deps.Checkpoints,
		checkpoints: checkpoint.NewManager(deps.Checkpoints, clk),
		classifier:  cls,
		validator:   deps.Validator,
		cache:       deps.Cache,
		publisher:   pub,
		onStatus:    deps.OnStatus,
		clock:       clk,
		opts:        opts,
		active:      make(map[string]struct{}),
	}
}

// CreateRun records a pending run for scope without executing it.
func (o *Orchestrator) CreateRun(ctx context.Context, scope models.Scope) (*models.SyncRun, error) {
	if scope.Kind == "" {
		scope.Kind = models.KindManual
	}
	scope.ProjectKeys = dedupe(scope.ProjectKeys)

	now := o.clock.Now().UTC()
	run := &models.SyncRun{
		ID:        uuid.NewString(),
		Status:    models.RunPending,
		Scope:     scope,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	return run, nil
}

// Run creates a run for scope and executes it. The returned run is
// terminal; inspect Status and ErrorCount for the outcome. An error is
// returned only when the run record itself cannot be read or written.
func (o *Orchestrator) Run(ctx context.Context, scope models.Scope) (*models.SyncRun, error) {
	run, err := o.CreateRun(ctx, scope)
	if err != nil {
		return nil, err
	}
	return o.Execute(ctx, run.ID)
}

// Execute drives a pending run to a terminal status.
func (o *Orchestrator) Execute(ctx context.Context, runID string) (*models.SyncRun, error) {
	return o.execute(ctx, runID, nil)
}

func (o *Orchestrator) execute(ctx context.Context, runID string, plan *checkpoint.Plan) (*models.SyncRun, error) {
	started := o.clock.Now().UTC()
	run, err := o.store.UpdateRun(ctx, runID, func(r *models.SyncRun) error {
		if r.Status != models.RunPending {
			return fmt.Errorf("%w: run %s is %s", ErrRunNotPending, r.ID, r.Status)
		}
		r.Status = models.RunInProgress
		r.StartedAt = &started
		r.UpdatedAt = started
		r.LastOperation = "starting"
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.active[runID] = struct{}{}
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.active, runID)
		o.mu.Unlock()
	}()

	ctx = logging.ContextWithRunID(ctx, runID)
	log := logging.Ctx(ctx)
	log.Info().
		Str("kind", string(run.Scope.Kind)).
		Strs("projects", run.Scope.ProjectKeys).
		Str("resumed_from", run.Scope.ResumedFrom).
		Msg("Sync run started")
	o.notify(run)

	keys := run.Scope.ProjectKeys
	if len(keys) == 0 {
		keys = dedupe(o.opts.Projects)
	}
	if len(keys) == 0 {
		return o.finish(ctx, runID, syncerr.ErrNoScope)
	}
	run, err = o.store.UpdateRun(ctx, runID, func(r *models.SyncRun) error {
		r.Scope.ProjectKeys = keys
		r.Totals.Projects = len(keys)
		return nil
	})
	if err != nil {
		return o.finish(ctx, runID, err)
	}

	if err := o.client.Ping(ctx); err != nil {
		return o.finish(ctx, runID, fmt.Errorf("tracker unreachable: %w", err))
	}

	ex := &execution{
		o:        o,
		runID:    runID,
		scope:    run.Scope,
		reporter: progress.NewReporter(runID, o.publisher, o.clock, o.opts.ProgressBuffer),
		session:  o.classifier.NewSession(),
		users:    make(map[string]*models.User),
	}
	defer ex.reporter.Close()

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return o.finish(ctx, runID, fmt.Errorf("%w: %w", syncerr.ErrCanceled, err))
		}
		canceled, err := o.cancelRequested(ctx, runID)
		if err != nil {
			return o.finish(ctx, runID, err)
		}
		if canceled {
			return o.finish(ctx, runID, fmt.Errorf("%w before project %s", syncerr.ErrCanceled, key))
		}

		var resume *checkpoint.ProjectResume
		if plan != nil {
			if r, ok := plan.Retry(key); ok {
				resume = &r
			}
		}

		err = ex.syncProject(ctx, key, resume)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			// Abandoned mid-project: the checkpoint stays active for resume.
			return o.finish(ctx, runID, fmt.Errorf("%w during project %s: %w", syncerr.ErrCanceled, key, err))
		}
		o.projectFailed(ctx, runID, key, err)
		if syncerr.IsCritical(err) {
			return o.finish(ctx, runID, err)
		}
	}

	o.validate(ctx, runID)
	o.invalidateCache(ctx, keys)
	return o.finish(ctx, runID, nil)
}

// Resume analyzes runID's checkpoints and executes a recovery run that
// retries only what did not complete. The analyzed run is not modified.
func (o *Orchestrator) Resume(ctx context.Context, runID string) (*models.SyncRun, *checkpoint.Plan, error) {
	run, plan, err := o.PrepareResume(ctx, runID)
	if err != nil {
		return nil, plan, err
	}
	run, err = o.ExecuteResume(ctx, run.ID, plan)
	return run, plan, err
}

// PrepareResume records the pending recovery run Resume would execute.
func (o *Orchestrator) PrepareResume(ctx context.Context, runID string) (*models.SyncRun, *checkpoint.Plan, error) {
	if o.isActive(runID) {
		return nil, nil, fmt.Errorf("%w: %s", ErrRunActive, runID)
	}
	orig, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	plan, err := checkpoint.AnalyzeResume(ctx, o.cpStore, runID, orig.Scope.ProjectKeys)
	if err != nil {
		return nil, nil, err
	}

	switch plan.Strategy {
	case checkpoint.StrategyAlreadyCompleted:
		return nil, plan, fmt.Errorf("%w: %s", ErrNothingToResume, runID)
	case checkpoint.StrategyManualReview:
		return nil, plan, fmt.Errorf("%w: %s", ErrManualReview, runID)
	}

	scope := orig.Scope
	scope.ProjectKeys = append([]string(nil), orig.Scope.ProjectKeys...)
	scope.Kind = models.KindRecovery
	scope.ResumedFrom = orig.ID

	if plan.Strategy == checkpoint.StrategyPartialResume {
		scope.ProjectKeys = scope.ProjectKeys[:0]
		for _, r := range plan.ProjectsToRetry {
			scope.ProjectKeys = append(scope.ProjectKeys, r.ProjectKey)
		}
	}

	run, err := o.CreateRun(ctx, scope)
	if err != nil {
		return nil, plan, err
	}
	logging.Ctx(ctx).Info().
		Str("run_id", run.ID).
		Str("resumed_from", runID).
		Str("strategy", string(plan.Strategy)).
		Int("projects", len(scope.ProjectKeys)).
		Msg("Recovery run created")
	return run, plan, nil
}

// ExecuteResume drives a recovery run created by PrepareResume. A partial
// resume plan restarts each project from its checkpoint offset; a full
// restart plan or nil syncs every project from the beginning.
func (o *Orchestrator) ExecuteResume(ctx context.Context, runID string, plan *checkpoint.Plan) (*models.SyncRun, error) {
	if plan != nil && plan.Strategy != checkpoint.StrategyPartialResume {
		plan = nil
	}
	return o.execute(ctx, runID, plan)
}

// ResumePlan reports how Resume would recover runID without executing anything.
func (o *Orchestrator) ResumePlan(ctx context.Context, runID string) (*checkpoint.Plan, error) {
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	return checkpoint.AnalyzeResume(ctx, o.cpStore, runID, run.Scope.ProjectKeys)
}

// Status returns the current state of a run.
func (o *Orchestrator) Status(ctx context.Context, runID string) (*models.SyncRun, error) {
	return o.store.GetRun(ctx, runID)
}

// ListRuns returns runs newest first.
func (o *Orchestrator) ListRuns(ctx context.Context, filter storage.RunFilter) ([]*models.SyncRun, error) {
	return o.store.ListRuns(ctx, filter)
}

// ProjectStatuses returns the last known sync state of every project.
func (o *Orchestrator) ProjectStatuses(ctx context.Context) ([]*models.ProjectSyncStatus, error) {
	return o.store.ListProjectStatuses(ctx)
}

// Logs returns a run's log entries in append order.
func (o *Orchestrator) Logs(ctx context.Context, runID string) ([]*models.SyncLogEntry, error) {
	if _, err := o.store.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	return o.store.ListLogs(ctx, runID)
}

// Cancel asks a run to stop before its next project. A pending run is
// failed immediately.
func (o *Orchestrator) Cancel(ctx context.Context, runID string) (*models.SyncRun, error) {
	now := o.clock.Now().UTC()
	run, err := o.store.UpdateRun(ctx, runID, func(r *models.SyncRun) error {
		if r.Status.Terminal() {
			return fmt.Errorf("%w: run %s is %s", ErrRunTerminal, r.ID, r.Status)
		}
		r.CancelRequested = true
		r.UpdatedAt = now
		if r.Status == models.RunPending {
			r.Status = models.RunFailed
			r.CompletedAt = &now
			r.ErrorDetails = syncerr.ErrCanceled.Error()
			r.LastOperation = "canceled"
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if run.Status == models.RunFailed {
		o.appendLog(ctx, &models.SyncLogEntry{
			RunID:     runID,
			Severity:  models.SeverityWarning,
			Message:   "Run canceled before it started",
			Operation: "cancel",
		})
		metrics.RecordSyncRun(string(run.Scope.Kind), string(run.Status), 0)
		o.notify(run)
	}
	logging.Ctx(ctx).Info().Str("run_id", runID).Str("status", string(run.Status)).Msg("Sync run cancel requested")
	return run, nil
}

// StaleRun is a non-terminal run whose checkpoints stopped moving.
type StaleRun struct {
	Run          *models.SyncRun `json:"run"`
	LastActivity time.Time       `json:"last_activity"`
	IdleSeconds  float64         `json:"idle_seconds"`
}

// ListStale returns pending and in-progress runs with no checkpoint update
// within window. A zero window uses the configured staleness window. Runs
// without checkpoints are judged by their own last update.
func (o *Orchestrator) ListStale(ctx context.Context, window time.Duration) ([]StaleRun, error) {
	if window <= 0 {
		window = o.opts.StalenessWindow
	}
	runs, err := o.store.ListRuns(ctx, storage.RunFilter{
		Statuses: []models.RunStatus{models.RunPending, models.RunInProgress},
	})
	if err != nil {
		return nil, err
	}

	now := o.clock.Now().UTC()
	var stale []StaleRun
	for _, run := range runs {
		last, ok, err := checkpoint.LatestActivity(ctx, o.cpStore, run.ID)
		if err != nil {
			return nil, fmt.Errorf("checkpoint activity for %s: %w", run.ID, err)
		}
		if !ok {
			last = run.UpdatedAt
		}
		idle := now.Sub(last)
		if idle > window {
			stale = append(stale, StaleRun{Run: run, LastActivity: last, IdleSeconds: idle.Seconds()})
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].LastActivity.Before(stale[j].LastActivity) })
	return stale, nil
}

// PurgeCheckpoints removes checkpoints of terminal runs older than retention.
func (o *Orchestrator) PurgeCheckpoints(ctx context.Context, retention time.Duration) (int, error) {
	status := func(ctx context.Context, runID string) (models.RunStatus, bool, error) {
		run, err := o.store.GetRun(ctx, runID)
		if errors.Is(err, storage.ErrNotFound) {
			return "", false, nil
		}
		if err != nil {
			return "", false, err
		}
		return run.Status, true, nil
	}
	n, err := checkpoint.Purge(ctx, o.cpStore, status, retention, o.clock.Now().UTC())
	if err != nil {
		return n, err
	}
	logging.Ctx(ctx).Info().Int("purged", n).Dur("retention", retention).Msg("Checkpoints purged")
	return n, nil
}

func (o *Orchestrator) isActive(runID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.active[runID]
	return ok
}

func (o *Orchestrator) cancelRequested(ctx context.Context, runID string) (bool, error) {
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return false, err
	}
	return run.CancelRequested, nil
}

// projectFailed records a project whose loop aborted against the run and
// the project's sync status.
func (o *Orchestrator) projectFailed(ctx context.Context, runID, key string, cause error) {
	classified := syncerr.Classify(cause)
	metrics.RecordProjectFailure(string(classified.Category))

	logging.Ctx(ctx).Error().Err(cause).
		Str("project_key", key).
		Str("category", string(classified.Category)).
		Msg("Project sync failed")

	o.logError(ctx, runID, models.EntityProject, key, "sync_project", cause)

	if _, err := o.store.UpdateRun(ctx, runID, func(r *models.SyncRun) error {
		r.ErrorCount++
		r.FailedProjects = append(r.FailedProjects, key)
		r.UpdatedAt = o.clock.Now().UTC()
		return nil
	}); err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Failed to record project failure on run")
	}

	now := o.clock.Now().UTC()
	if _, err := o.store.UpdateProjectStatus(ctx, key, func(s *models.ProjectSyncStatus) error {
		s.LastSyncAt = &now
		s.LastStatus = models.RunFailed
		s.LastRunID = runID
		s.LastError = cause.Error()
		s.UpdatedAt = now
		return nil
	}); err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("project_key", key).Msg("Failed to update project sync status")
	}
}

func (o *Orchestrator) validate(ctx context.Context, runID string) {
	if o.validator == nil {
		return
	}
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Validation skipped")
		return
	}
	result, err := o.validator.Validate(ctx, run)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Validation failed")
		o.logError(ctx, runID, "", "", "validate", syncerr.DataQuality("validate", err))
		return
	}

	if _, err := o.store.UpdateRun(ctx, runID, func(r *models.SyncRun) error {
		r.Validation = result
		r.LastOperation = "validated"
		return nil
	}); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Failed to attach validation result")
	}

	if !result.Valid || result.Errors > 0 {
		o.appendLog(ctx, &models.SyncLogEntry{
			RunID:     runID,
			Severity:  models.SeverityWarning,
			Message:   fmt.Sprintf("Validation reported %d errors and %d warnings (completeness %.1f)", result.Errors, result.Warnings, result.CompletenessScore),
			Operation: "validate",
			Category:  string(syncerr.CategoryDataQuality),
			Context: map[string]interface{}{
				"valid":                     result.Valid,
				"aggregate_discrepancy_pct": result.AggregateDiscrepancyPct,
			},
			Remediation: syncerr.DataQuality("validate", nil).Remediation,
		})
	}
}

func (o *Orchestrator) invalidateCache(ctx context.Context, keys []string) {
	if o.cache == nil {
		return
	}
	for _, key := range keys {
		n, err := o.cache.InvalidateProject(ctx, key)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("project_key", key).Msg("Cache invalidation failed")
			continue
		}
		logging.Ctx(ctx).Debug().Str("project_key", key).Int("entries", n).Msg("Cache invalidated")
	}
}

// finish moves a run to its terminal status. cause nil completes the run.
func (o *Orchestrator) finish(ctx context.Context, runID string, cause error) (*models.SyncRun, error) {
	ctx = context.WithoutCancel(ctx)
	now := o.clock.Now().UTC()

	run, err := o.store.UpdateRun(ctx, runID, func(r *models.SyncRun) error {
		r.CompletedAt = &now
		r.UpdatedAt = now
		if cause != nil {
			r.Status = models.RunFailed
			r.ErrorDetails = cause.Error()
			r.ErrorCount++
			r.LastOperation = "failed"
			return nil
		}
		r.Status = models.RunCompleted
		r.Progress = 100
		r.LastOperation = "completed"
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("finalize run %s: %w", runID, err)
	}

	if cause != nil {
		o.logError(ctx, runID, "", "", "run", cause)
	}
	metrics.RecordSyncRun(string(run.Scope.Kind), string(run.Status), run.Duration(now))
	o.notify(run)

	event := logging.Ctx(ctx).Info()
	if run.Status == models.RunFailed {
		event = logging.Ctx(ctx).Warn().Str("error", run.ErrorDetails)
	}
	event.
		Str("status", string(run.Status)).
		Int("created", run.Created).
		Int("updated", run.Updated).
		Int("unchanged", run.Unchanged).
		Int("errors", run.ErrorCount).
		Strs("failed_projects", run.FailedProjects).
		Dur("duration", run.Duration(now)).
		Msg("Sync run finished")
	return run, nil
}

func (o *Orchestrator) notify(run *models.SyncRun) {
	if o.onStatus != nil && run != nil {
		o.onStatus(storage.CloneRun(run))
	}
}

// effectiveSince picks the lower bound of an incremental fetch: the explicit
// window start, else the last successful sync minus overlap unless a full
// sync is forced. Explicit windows are taken as given.
func effectiveSince(scope models.Scope, status *models.ProjectSyncStatus, overlap time.Duration) *time.Time {
	if scope.Since != nil {
		return scope.Since
	}
	if scope.ForceFullSync || status == nil || status.LastSuccessAt == nil {
		return nil
	}
	since := status.LastSuccessAt.Add(-overlap)
	return &since
}

func dedupe(keys []string) []string {
	if len(keys) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
