// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

/*
Package validation compares locally stored tracker data with the remote
tracker after a sync run and scores the result.

For every project in a run's scope the engine:

  - counts local issues and worklogs
  - asks the tracker for the remote issue total with a count-only query
  - samples a bounded number of remote issues to estimate worklog density
  - diffs issue keys when the remote total is small enough to list

It then runs local-only integrity checks (orphans, missing parents,
implausible worklogs, duplicate keys) and derives a 0-100 completeness
score. Findings never fail the run that produced them.
*/
package validation

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/tomtom215/trackersync/internal/clock"
	"github.com/tomtom215/trackersync/internal/config"
	"github.com/tomtom215/trackersync/internal/logging"
	"github.com/tomtom215/trackersync/internal/metrics"
	"github.com/tomtom215/trackersync/internal/models"
	"github.com/tomtom215/trackersync/internal/storage"
	"github.com/tomtom215/trackersync/internal/tracker"
)

// Check names used in findings.
const (
	CheckCount           = "record_count"
	CheckMissingRecords  = "missing_records"
	CheckExtraRecords    = "extra_records"
	CheckWorklogDensity  = "worklog_density"
	CheckOrphanWorklogs  = "orphaned_worklogs"
	CheckMissingProject  = "issues_without_project"
	CheckImplausible     = "implausible_worklogs"
	CheckDuplicateKeys   = "duplicate_issue_keys"
	CheckRemoteUnreached = "remote_unreachable"
)

// maxFindingIDs bounds how many identifiers a single finding carries.
const maxFindingIDs = 50

// Store is the storage the engine reads from.
type Store interface {
	storage.EntityRepository
	storage.IntegrityQueries
}

// Engine validates completed runs. It holds no per-run state and may be
// shared by concurrent runs.
type Engine struct {
	store  Store
	client tracker.Client
	cfg    config.ValidationConfig
	clock  clock.Clock

	randMu sync.Mutex
	rand   *rand.Rand
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the wall clock.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithSeed makes issue sampling deterministic.
func WithSeed(seed int64) Option {
	return func(e *Engine) { e.rand = rand.New(rand.NewSource(seed)) } //nolint:gosec // sampling, not security
}

// New creates an Engine.
func New(store Store, client tracker.Client, cfg config.ValidationConfig, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		client: client,
		cfg:    cfg,
		clock:  clock.Real(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rand == nil {
		e.rand = rand.New(rand.NewSource(e.clock.Now().UnixNano())) //nolint:gosec // sampling, not security
	}
	return e
}

// Validate checks every project in run's scope. Remote failures for one
// project become error findings; only context cancellation aborts.
func (e *Engine) Validate(ctx context.Context, run *models.SyncRun) (*models.ValidationResult, error) {
	log := logging.Ctx(ctx).With().Str("component", "validation").Logger()

	result := &models.ValidationResult{
		RunID:       run.ID,
		ValidatedAt: e.clock.Now().UTC(),
		Threshold:   e.cfg.ThresholdPct,
	}

	for _, key := range run.Scope.ProjectKeys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pv, findings := e.validateProject(ctx, key, run.Scope)
		result.Projects = append(result.Projects, pv)
		result.Findings = append(result.Findings, findings...)
		if pv.Error == "" {
			result.AggregateLocal += pv.LocalIssues
			result.AggregateRemote += pv.RemoteIssues
		}
	}

	integrity, err := e.integrityFindings(ctx)
	if err != nil {
		return nil, err
	}
	result.Findings = append(result.Findings, integrity...)

	result.AggregateDiscrepancyPct = DiscrepancyPct(result.AggregateLocal, result.AggregateRemote)
	result.Valid = result.AggregateDiscrepancyPct <= e.cfg.ThresholdPct
	for _, pv := range result.Projects {
		if !pv.Valid {
			result.Valid = false
		}
	}

	for _, f := range result.Findings {
		switch f.Severity {
		case models.SeverityError:
			result.Errors++
		case models.SeverityWarning:
			result.Warnings++
		}
	}
	result.CompletenessScore = e.Score(result.AggregateDiscrepancyPct, result.Errors, result.Warnings)
	metrics.RecordValidation(result.CompletenessScore, result.AggregateDiscrepancyPct)

	log.Info().
		Str("run_id", run.ID).
		Bool("valid", result.Valid).
		Float64("discrepancy_pct", result.AggregateDiscrepancyPct).
		Float64("completeness", result.CompletenessScore).
		Int("errors", result.Errors).
		Int("warnings", result.Warnings).
		Msg("Validation finished")

	return result, nil
}

func (e *Engine) validateProject(ctx context.Context, key string, scope models.Scope) (models.ProjectValidation, []models.Finding) {
	pv := models.ProjectValidation{ProjectKey: key}
	var findings []models.Finding

	var err error
	if pv.LocalIssues, err = e.store.CountIssues(ctx, key); err != nil {
		return failed(pv, CheckCount, fmt.Errorf("count local issues: %w", err))
	}
	if pv.LocalWorklogs, err = e.store.CountWorklogs(ctx, key); err != nil {
		return failed(pv, CheckCount, fmt.Errorf("count local worklogs: %w", err))
	}

	// Compare against the whole remote project: local state accumulates
	// across incremental windows.
	q := tracker.Query{ProjectKey: key, OnlyWithWorklogs: scope.OnlyWithWorklogs}
	if pv.RemoteIssues, err = tracker.Count(ctx, e.client, tracker.ResourceIssues, q); err != nil {
		return failed(pv, CheckRemoteUnreached, fmt.Errorf("count remote issues: %w", err))
	}

	pv.Discrepancy = abs(pv.LocalIssues - pv.RemoteIssues)
	pv.DiscrepancyPct = DiscrepancyPct(pv.LocalIssues, pv.RemoteIssues)
	pv.Valid = pv.DiscrepancyPct <= e.cfg.ThresholdPct
	if !pv.Valid {
		findings = append(findings, models.Finding{
			Check:      CheckCount,
			Severity:   models.SeverityError,
			ProjectKey: key,
			EntityType: models.EntityIssue,
			Message: fmt.Sprintf("%d local vs %d remote issues (%.2f%% > %.2f%%)",
				pv.LocalIssues, pv.RemoteIssues, pv.DiscrepancyPct, e.cfg.ThresholdPct),
			Count: pv.Discrepancy,
		})
	}

	if f, ok := e.sampleDensity(ctx, &pv, q); ok {
		findings = append(findings, f)
	}

	if e.cfg.KeyComparisonLimit > 0 && pv.RemoteIssues <= e.cfg.KeyComparisonLimit {
		diff, err := e.diffKeys(ctx, &pv, q)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("project", key).Msg("Issue key comparison skipped")
		} else {
			findings = append(findings, diff...)
		}
	}

	return pv, findings
}

// sampleDensity fetches up to SampleSize random remote issues, counts their
// worklogs, and extrapolates the expected remote worklog total.
func (e *Engine) sampleDensity(ctx context.Context, pv *models.ProjectValidation, q tracker.Query) (models.Finding, bool) {
	if e.cfg.SampleSize <= 0 || pv.RemoteIssues == 0 {
		return models.Finding{}, false
	}

	offsets := e.sampleOffsets(pv.RemoteIssues, e.cfg.SampleSize)
	sampled, worklogs := 0, 0
	for _, offset := range offsets {
		sq := q
		sq.PageSize = 1
		page, err := e.client.FetchPage(ctx, tracker.ResourceIssues, sq, tracker.OffsetToken(offset))
		if err != nil || len(page.Records) == 0 {
			continue
		}
		issue, ok := page.Records[0].(*models.Issue)
		if !ok {
			continue
		}
		n, err := tracker.Count(ctx, e.client, tracker.ResourceWorklogs, tracker.Query{IssueKey: issue.Key})
		if err != nil {
			continue
		}
		sampled++
		worklogs += n
	}
	if sampled == 0 {
		return models.Finding{}, false
	}

	pv.WorklogDensity = float64(worklogs) / float64(sampled)
	pv.EstimatedWorklog = int(math.Round(pv.WorklogDensity * float64(pv.RemoteIssues)))

	pct := DiscrepancyPct(pv.LocalWorklogs, pv.EstimatedWorklog)
	if pct <= e.cfg.ThresholdPct {
		return models.Finding{}, false
	}
	return models.Finding{
		Check:      CheckWorklogDensity,
		Severity:   models.SeverityWarning,
		ProjectKey: pv.ProjectKey,
		EntityType: models.EntityWorklog,
		Message: fmt.Sprintf("%d local worklogs vs ~%d estimated from %d sampled issues (%.2f per issue)",
			pv.LocalWorklogs, pv.EstimatedWorklog, sampled, pv.WorklogDensity),
		Count: abs(pv.LocalWorklogs - pv.EstimatedWorklog),
	}, true
}

// sampleOffsets picks min(n, total) distinct offsets in [0, total), sorted.
func (e *Engine) sampleOffsets(total, n int) []int {
	e.randMu.Lock()
	defer e.randMu.Unlock()

	if n >= total {
		out := make([]int, total)
		for i := range out {
			out[i] = i
		}
		return out
	}
	// Floyd's algorithm: n draws, no allocation proportional to total.
	picked := make(map[int]struct{}, n)
	out := make([]int, 0, n)
	for j := total - n; j < total; j++ {
		v := e.rand.Intn(j + 1)
		if _, dup := picked[v]; dup {
			v = j
		}
		picked[v] = struct{}{}
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

func (e *Engine) diffKeys(ctx context.Context, pv *models.ProjectValidation, q tracker.Query) ([]models.Finding, error) {
	local, err := e.store.IssueKeys(ctx, pv.ProjectKey)
	if err != nil {
		return nil, err
	}
	localSet := make(map[string]bool, len(local))
	for _, k := range local {
		localSet[k] = true
	}

	remoteSet := make(map[string]bool, pv.RemoteIssues)
	err = tracker.Paginate(ctx, e.client, tracker.ResourceIssues, q, 0, 0, func(page *tracker.Page, _ int) error {
		for _, r := range page.Records {
			if issue, ok := r.(*models.Issue); ok {
				remoteSet[issue.Key] = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for k := range remoteSet {
		if !localSet[k] {
			pv.MissingKeys = append(pv.MissingKeys, k)
		}
	}
	for _, k := range local {
		if !remoteSet[k] {
			pv.ExtraKeys = append(pv.ExtraKeys, k)
		}
	}
	sort.Strings(pv.MissingKeys)

	var findings []models.Finding
	if len(pv.MissingKeys) > 0 {
		findings = append(findings, models.Finding{
			Check:      CheckMissingRecords,
			Severity:   models.SeverityError,
			ProjectKey: pv.ProjectKey,
			EntityType: models.EntityIssue,
			Message:    fmt.Sprintf("%d remote issues are not stored locally", len(pv.MissingKeys)),
			Count:      len(pv.MissingKeys),
			EntityIDs:  truncate(pv.MissingKeys),
		})
	}
	if len(pv.ExtraKeys) > 0 {
		findings = append(findings, models.Finding{
			Check:      CheckExtraRecords,
			Severity:   models.SeverityWarning,
			ProjectKey: pv.ProjectKey,
			EntityType: models.EntityIssue,
			Message:    fmt.Sprintf("%d local issues no longer match the remote project", len(pv.ExtraKeys)),
			Count:      len(pv.ExtraKeys),
			EntityIDs:  truncate(pv.ExtraKeys),
		})
	}
	return findings, nil
}

func (e *Engine) integrityFindings(ctx context.Context) ([]models.Finding, error) {
	checks := []struct {
		name     string
		entity   models.EntityType
		severity models.Severity
		message  string
		query    func(context.Context) ([]string, error)
	}{
		{CheckOrphanWorklogs, models.EntityWorklog, models.SeverityError,
			"worklogs reference an issue that is not stored", e.store.OrphanedWorklogs},
		{CheckMissingProject, models.EntityIssue, models.SeverityError,
			"issues reference a project that is not stored", e.store.IssuesWithoutProject},
		{CheckImplausible, models.EntityWorklog, models.SeverityWarning,
			"worklogs have a non-positive or over-long duration or a future start",
			func(ctx context.Context) ([]string, error) {
				return e.store.ImplausibleWorklogs(ctx, e.maxWorklogSeconds(), e.clock.Now().UTC())
			}},
		{CheckDuplicateKeys, models.EntityIssue, models.SeverityError,
			"issue keys are carried by more than one remote record", e.store.DuplicateIssueKeys},
	}

	var findings []models.Finding
	for _, c := range checks {
		ids, err := c.query(ctx)
		if err != nil {
			return nil, fmt.Errorf("integrity check %s: %w", c.name, err)
		}
		if len(ids) == 0 {
			continue
		}
		findings = append(findings, models.Finding{
			Check:      c.name,
			Severity:   c.severity,
			EntityType: c.entity,
			Message:    fmt.Sprintf("%d %s", len(ids), c.message),
			Count:      len(ids),
			EntityIDs:  truncate(ids),
		})
	}
	return findings, nil
}

func (e *Engine) maxWorklogSeconds() int64 {
	if e.cfg.MaxWorklogSeconds > 0 {
		return e.cfg.MaxWorklogSeconds
	}
	return 24 * 60 * 60
}

// Score derives the completeness score from the aggregate discrepancy and
// the number of error and warning findings.
func (e *Engine) Score(discrepancyPct float64, errors, warnings int) float64 {
	penalty := discrepancyPct * e.cfg.DiscrepancyWeight
	if e.cfg.DiscrepancyCap > 0 && penalty > e.cfg.DiscrepancyCap {
		penalty = e.cfg.DiscrepancyCap
	}
	score := 100 - penalty - float64(errors)*e.cfg.ErrorPenalty - float64(warnings)*e.cfg.WarningPenalty
	return math.Max(0, math.Min(100, score))
}

// DiscrepancyPct is |local-remote| as a percentage of remote. With no remote
// records it is 0 when local is also empty and 100 otherwise.
func DiscrepancyPct(local, remote int) float64 {
	if remote == 0 {
		if local == 0 {
			return 0
		}
		return 100
	}
	// Scale before dividing so a discrepancy equal to a whole-percent
	// threshold is not pushed above it by rounding.
	return float64(abs(local-remote)) * 100 / float64(remote)
}

func failed(pv models.ProjectValidation, check string, err error) (models.ProjectValidation, []models.Finding) {
	pv.Error = err.Error()
	pv.Valid = false
	return pv, []models.Finding{{
		Check:      check,
		Severity:   models.SeverityError,
		ProjectKey: pv.ProjectKey,
		Message:    err.Error(),
	}}
}

func truncate(ids []string) []string {
	if len(ids) <= maxFindingIDs {
		return ids
	}
	return ids[:maxFindingIDs]
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
