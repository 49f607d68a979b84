// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/trackersync/internal/checkpoint"
	"github.com/tomtom215/trackersync/internal/models"
	"github.com/tomtom215/trackersync/internal/syncengine"
)

// progressPrinter writes one line per progress event.
type progressPrinter struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *progressPrinter) Publish(_ context.Context, e *models.ProgressEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	eta := "-"
	if e.EstimatedCompletion != nil {
		eta = e.EstimatedCompletion.Local().Format(time.Kitchen)
	}
	_, err := fmt.Fprintf(p.w, "[%5.1f%%] %-40s %6.1f/s  eta %s\n", e.Percentage, e.Operation, e.Throughput, eta)
	return err
}

func (p *progressPrinter) Name() string { return "cli" }

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printRun(w io.Writer, run *models.SyncRun) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Run:\t%s\n", run.ID)
	fmt.Fprintf(tw, "Status:\t%s (%s)\n", run.Status, run.Scope.Kind)
	if len(run.Scope.ProjectKeys) > 0 {
		fmt.Fprintf(tw, "Projects:\t%s\n", strings.Join(run.Scope.ProjectKeys, ", "))
	}
	if run.Scope.ResumedFrom != "" {
		fmt.Fprintf(tw, "Resumed from:\t%s\n", run.Scope.ResumedFrom)
	}
	fmt.Fprintf(tw, "Progress:\t%.1f%%  issues %d/%d  worklogs %d/%d  users %d/%d\n",
		run.Progress,
		run.Processed.Issues, run.Totals.Issues,
		run.Processed.Worklogs, run.Totals.Worklogs,
		run.Processed.Users, run.Totals.Users)
	fmt.Fprintf(tw, "Changes:\tcreated %d  updated %d  unchanged %d  errors %d\n",
		run.Created, run.Updated, run.Unchanged, run.ErrorCount)
	if d := run.Duration(time.Now()); d > 0 {
		fmt.Fprintf(tw, "Duration:\t%s\n", d.Round(time.Millisecond))
	}
	if run.CancelRequested {
		fmt.Fprintf(tw, "Cancel:\trequested\n")
	}
	if len(run.FailedProjects) > 0 {
		fmt.Fprintf(tw, "Failed projects:\t%s\n", strings.Join(run.FailedProjects, ", "))
	}
	if run.ErrorDetails != "" {
		fmt.Fprintf(tw, "Error:\t%s\n", run.ErrorDetails)
	}
	if v := run.Validation; v != nil {
		fmt.Fprintf(tw, "Validation:\tvalid=%t  completeness %.1f  discrepancy %.2f%% (threshold %.2f%%)  errors %d  warnings %d\n",
			v.Valid, v.CompletenessScore, v.AggregateDiscrepancyPct, v.Threshold, v.Errors, v.Warnings)
	}
	_ = tw.Flush()
}

func printPlan(w io.Writer, plan *checkpoint.Plan) {
	if plan == nil {
		return
	}
	fmt.Fprintf(w, "Resume plan for %s: %s (can resume: %t)\n", plan.RunID, plan.Strategy, plan.CanResume)
	list := func(label string, keys []string) {
		if len(keys) > 0 {
			fmt.Fprintf(w, "  %s: %s\n", label, strings.Join(keys, ", "))
		}
	}
	list("completed", plan.CompletedProjects)
	list("failed", plan.FailedProjects)
	list("interrupted", plan.InterruptedProjects)
	list("not started", plan.NotStartedProjects)
	for _, r := range plan.ProjectsToRetry {
		fmt.Fprintf(w, "  retry %s from offset %d (skip project: %t)\n", r.ProjectKey, r.ResumeOffset, r.SkipProjectCreation)
	}
	for _, p := range plan.Problems {
		fmt.Fprintf(w, "  problem: %s\n", p)
	}
}

func printLogs(w io.Writer, entries []*models.SyncLogEntry) {
	for _, e := range entries {
		fmt.Fprintf(w, "%s %-7s %s", e.Timestamp.Format(time.RFC3339), e.Severity, e.Message)
		if e.EntityType != "" {
			fmt.Fprintf(w, " [%s %s]", e.EntityType, e.EntityID)
		}
		fmt.Fprintln(w)
		for _, step := range e.Remediation {
			fmt.Fprintf(w, "    - %s\n", step)
		}
	}
}

func printRuns(w io.Writer, runs []*models.SyncRun) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tKIND\tPROGRESS\tERRORS\tCREATED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.1f%%\t%d\t%s\n",
			r.ID, r.Status, r.Scope.Kind, r.Progress, r.ErrorCount, r.CreatedAt.Format(time.RFC3339))
	}
	_ = tw.Flush()
}

func printStale(w io.Writer, stale []syncengine.StaleRun) {
	if len(stale) == 0 {
		fmt.Fprintln(w, "No stale runs")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tLAST ACTIVITY\tIDLE")
	for _, s := range stale {
		idle := time.Duration(s.IdleSeconds * float64(time.Second)).Round(time.Second)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Run.ID, s.Run.Status, s.LastActivity.Format(time.RFC3339), idle)
	}
	_ = tw.Flush()
}
