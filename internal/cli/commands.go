// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/trackersync/internal/checkpoint"
	"github.com/tomtom215/trackersync/internal/models"
	"github.com/tomtom215/trackersync/internal/storage"
)

// ErrRunFailed is returned after printing a run that ended in failure, so
// the process exits non-zero.
var ErrRunFailed = errors.New("sync run failed")

// parseTime accepts RFC 3339 timestamps and plain dates (UTC midnight).
func parseTime(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid time %q (use RFC 3339 or YYYY-MM-DD)", raw)
}

func reportRun(cmd *cobra.Command, opts *Options, run *models.SyncRun, plan *checkpoint.Plan) error {
	out := cmd.OutOrStdout()
	if opts.json() {
		if plan != nil {
			if err := writeJSON(out, resumeBody{Run: run, Plan: plan}); err != nil {
				return err
			}
		} else if err := writeJSON(out, run); err != nil {
			return err
		}
	} else {
		printPlan(out, plan)
		if run != nil {
			printRun(out, run)
		}
	}
	if run != nil && run.Status == models.RunFailed {
		return fmt.Errorf("%w: %s", ErrRunFailed, run.ID)
	}
	return nil
}

// RunCmd returns the run command.
func RunCmd(opts *Options) *cobra.Command {
	var (
		projects         []string
		since, until     string
		onlyWithWorklogs bool
		full             bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a sync run and wait for it to finish",
		Long: `Start a manual sync run over the given projects, or over the configured
projects when none are given, and wait for the final state.

Without --since each project continues from its last successful sync.
--full ignores that pointer and synchronizes everything in the window.`,
		Example: `  syncctl run --project ALPHA --project BRAVO
  syncctl run --since 2026-01-01 --until 2026-02-01 --only-with-worklogs
  syncctl --server http://localhost:8480 run --full`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sinceT, err := parseTime(since)
			if err != nil {
				return err
			}
			untilT, err := parseTime(until)
			if err != nil {
				return err
			}
			if sinceT != nil && untilT != nil && !untilT.After(*sinceT) {
				return errors.New("--until must be after --since")
			}

			scope := models.Scope{
				ProjectKeys:      projects,
				Kind:             models.KindManual,
				Since:            sinceT,
				Until:            untilT,
				ForceFullSync:    full,
				OnlyWithWorklogs: onlyWithWorklogs,
			}
			return opts.withBackend(cmd, func(b Backend) error {
				run, err := b.Run(cmd.Context(), scope)
				if err != nil {
					return err
				}
				return reportRun(cmd, opts, run, nil)
			})
		},
	}

	cmd.Flags().StringSliceVarP(&projects, "project", "p", nil, "project key to sync (repeatable or comma separated)")
	cmd.Flags().StringVar(&since, "since", "", "only records updated at or after this time")
	cmd.Flags().StringVar(&until, "until", "", "only records updated before this time")
	cmd.Flags().BoolVar(&onlyWithWorklogs, "only-with-worklogs", false, "skip issues without worklogs")
	cmd.Flags().BoolVar(&full, "full", false, "ignore the last successful sync pointer")
	return cmd
}

// ResumeCmd returns the resume command.
func ResumeCmd(opts *Options) *cobra.Command {
	var planOnly bool

	cmd := &cobra.Command{
		Use:   "resume <run-id>",
		Short: "Recover an interrupted or failed run",
		Long: `Analyze the checkpoints of a run and start a recovery run that continues
where it stopped. Completed projects are skipped and interrupted projects
continue from their last recorded offset.

--plan shows the analysis without starting anything.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withBackend(cmd, func(b Backend) error {
				if planOnly {
					plan, err := b.ResumePlan(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					if opts.json() {
						return writeJSON(cmd.OutOrStdout(), plan)
					}
					printPlan(cmd.OutOrStdout(), plan)
					return nil
				}

				run, plan, err := b.Resume(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return reportRun(cmd, opts, run, plan)
			})
		},
	}

	cmd.Flags().BoolVar(&planOnly, "plan", false, "only show the resume plan")
	return cmd
}

// StatusCmd returns the status command.
func StatusCmd(opts *Options) *cobra.Command {
	var showLogs bool

	cmd := &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show a run and optionally its log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withBackend(cmd, func(b Backend) error {
				run, err := b.Status(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				var entries []*models.SyncLogEntry
				if showLogs {
					if entries, err = b.Logs(cmd.Context(), args[0]); err != nil {
						return err
					}
				}

				out := cmd.OutOrStdout()
				if opts.json() {
					if showLogs {
						return writeJSON(out, map[string]interface{}{"run": run, "logs": entries})
					}
					return writeJSON(out, run)
				}
				printRun(out, run)
				if showLogs {
					fmt.Fprintln(out)
					printLogs(out, entries)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&showLogs, "logs", "l", false, "include the run log")
	return cmd
}

// CancelCmd returns the cancel command.
func CancelCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <run-id>",
		Short: "Request cancellation of a run",
		Long: `Mark a run for cancellation. An executing run stops before its next
project and a pending run is failed immediately.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withBackend(cmd, func(b Backend) error {
				run, err := b.Cancel(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if opts.json() {
					return writeJSON(cmd.OutOrStdout(), run)
				}
				printRun(cmd.OutOrStdout(), run)
				return nil
			})
		},
	}
}

// RunsCmd returns the runs command.
func RunsCmd(opts *Options) *cobra.Command {
	var (
		statuses []string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := storage.RunFilter{Limit: limit}
			for _, s := range statuses {
				status := models.RunStatus(s)
				switch status {
				case models.RunPending, models.RunInProgress, models.RunCompleted, models.RunFailed:
				default:
					return fmt.Errorf("unknown run status %q", s)
				}
				filter.Statuses = append(filter.Statuses, status)
			}

			return opts.withBackend(cmd, func(b Backend) error {
				runs, err := b.ListRuns(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if opts.json() {
					return writeJSON(cmd.OutOrStdout(), runs)
				}
				printRuns(cmd.OutOrStdout(), runs)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&statuses, "status", nil, "filter by status: pending, in_progress, completed, failed")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs")
	return cmd
}

// StaleCmd returns the stale command.
func StaleCmd(opts *Options) *cobra.Command {
	var window time.Duration

	cmd := &cobra.Command{
		Use:   "stale",
		Short: "List runs whose checkpoints stopped advancing",
		Long: `List pending and in-progress runs with no checkpoint activity within the
window. These are candidates for cancel followed by resume.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if window < 0 {
				return errors.New("--window must not be negative")
			}
			return opts.withBackend(cmd, func(b Backend) error {
				stale, err := b.ListStale(cmd.Context(), window)
				if err != nil {
					return err
				}
				if opts.json() {
					return writeJSON(cmd.OutOrStdout(), stale)
				}
				printStale(cmd.OutOrStdout(), stale)
				return nil
			})
		},
	}

	cmd.Flags().DurationVarP(&window, "window", "w", 0, "idle window (default: configured staleness window)")
	return cmd
}

// PurgeCmd returns the purge command.
func PurgeCmd(opts *Options) *cobra.Command {
	var retention time.Duration

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete checkpoints of finished runs",
		Long: `Delete checkpoints that belong to completed or failed runs and are older
than the retention. Checkpoints of unfinished runs are kept so that they
stay resumable. Only available without --server.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if retention <= 0 {
				return errors.New("--retention must be positive")
			}
			return opts.withBackend(cmd, func(b Backend) error {
				n, err := b.PurgeCheckpoints(cmd.Context(), retention)
				if err != nil {
					return err
				}
				if opts.json() {
					return writeJSON(cmd.OutOrStdout(), map[string]int{"purged": n})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Purged %d checkpoints older than %s\n", n, retention)
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&retention, "retention", 7*24*time.Hour, "minimum checkpoint age")
	return cmd
}
