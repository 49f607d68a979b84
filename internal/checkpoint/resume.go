// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package checkpoint

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/tomtom215/trackersync/internal/models"
)

// Strategy is the recovery approach chosen for a run.
type Strategy string

const (
	StrategyFullRestart      Strategy = "full_restart"
	StrategyPartialResume    Strategy = "partial_resume"
	StrategyAlreadyCompleted Strategy = "already_completed"
	StrategyManualReview     Strategy = "manual_review_required"
)

// ProjectResume is the resume point for one project.
type ProjectResume struct {
	ProjectKey          string                  `json:"project_key"`
	CheckpointID        string                  `json:"checkpoint_id,omitempty"`
	Status              models.CheckpointStatus `json:"status,omitempty"`
	SkipProjectCreation bool                    `json:"skip_project_creation"`
	// ResumeOffset is the number of issues already processed; fetching
	// restarts at this zero-based offset.
	ResumeOffset  int        `json:"resume_offset"`
	EntitiesTotal int        `json:"entities_total,omitempty"`
	Since         *time.Time `json:"since,omitempty"`
	LastEntityKey string     `json:"last_entity_key,omitempty"`
	Error         string     `json:"error,omitempty"`
}

// Plan is the result of AnalyzeResume.
type Plan struct {
	RunID               string          `json:"run_id"`
	CanResume           bool            `json:"can_resume"`
	Strategy            Strategy        `json:"strategy"`
	ProjectsToRetry     []ProjectResume `json:"projects_to_retry,omitempty"`
	CompletedProjects   []string        `json:"completed_projects,omitempty"`
	FailedProjects      []string        `json:"failed_projects,omitempty"`
	InterruptedProjects []string        `json:"interrupted_projects,omitempty"`
	NotStartedProjects  []string        `json:"not_started_projects,omitempty"`
	Problems            []string        `json:"problems,omitempty"`
}

// Retry returns the resume point for projectKey, if it is to be retried.
func (p *Plan) Retry(projectKey string) (ProjectResume, bool) {
	for _, r := range p.ProjectsToRetry {
		if r.ProjectKey == projectKey {
			return r, true
		}
	}
	return ProjectResume{}, false
}

// AnalyzeResume inspects runID's checkpoints and picks a recovery strategy.
// scope lists the run's project keys; keys without any checkpoint are
// retried from scratch when other projects already made progress.
//
// For each project only the most recently created checkpoint counts.
func AnalyzeResume(ctx context.Context, store Store, runID string, scope []string) (*Plan, error) {
	cps, err := store.ListByRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("analyze resume for run %s: %w", runID, err)
	}

	plan := &Plan{RunID: runID}

	latest := make(map[string]*models.Checkpoint)
	for _, cp := range cps {
		if cp.Kind == models.CheckpointRecovery {
			continue
		}
		if problem := inconsistency(cp, runID); problem != "" {
			plan.Problems = append(plan.Problems, problem)
			continue
		}
		// cps is ordered by creation time, so later entries win.
		latest[cp.ProjectKey] = cp
	}

	if len(plan.Problems) > 0 {
		plan.Strategy = StrategyManualReview
		return plan, nil
	}
	if len(latest) == 0 {
		plan.Strategy = StrategyFullRestart
		return plan, nil
	}

	keys := make([]string, 0, len(latest))
	for k := range latest {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		cp := latest[key]
		switch cp.Status {
		case models.CheckpointCompleted:
			plan.CompletedProjects = append(plan.CompletedProjects, key)
			continue
		case models.CheckpointFailed:
			plan.FailedProjects = append(plan.FailedProjects, key)
		case models.CheckpointActive:
			plan.InterruptedProjects = append(plan.InterruptedProjects, key)
		}
		plan.ProjectsToRetry = append(plan.ProjectsToRetry, ProjectResume{
			ProjectKey:          key,
			CheckpointID:        cp.ID,
			Status:              cp.Status,
			SkipProjectCreation: cp.Progress.ProjectStored,
			ResumeOffset:        cp.Progress.EntitiesProcessed,
			EntitiesTotal:       cp.Progress.EntitiesTotal,
			Since:               cp.Progress.Since,
			LastEntityKey:       cp.Progress.LastEntityKey,
			Error:               cp.Error,
		})
	}

	for _, key := range scope {
		if _, seen := latest[key]; seen {
			continue
		}
		plan.NotStartedProjects = append(plan.NotStartedProjects, key)
		plan.ProjectsToRetry = append(plan.ProjectsToRetry, ProjectResume{ProjectKey: key})
	}

	if len(plan.ProjectsToRetry) == 0 {
		plan.Strategy = StrategyAlreadyCompleted
		return plan, nil
	}
	plan.Strategy = StrategyPartialResume
	plan.CanResume = true
	return plan, nil
}

// inconsistency describes why cp cannot be trusted, or returns "".
func inconsistency(cp *models.Checkpoint, runID string) string {
	switch {
	case cp.RunID != runID:
		return fmt.Sprintf("checkpoint %s belongs to run %s", cp.ID, cp.RunID)
	case !cp.Status.Valid():
		return fmt.Sprintf("checkpoint %s has unknown status %q", cp.ID, cp.Status)
	case cp.ProjectKey == "":
		return fmt.Sprintf("checkpoint %s has no project", cp.ID)
	case cp.Progress.EntitiesProcessed < 0:
		return fmt.Sprintf("checkpoint %s has negative progress", cp.ID)
	case cp.Progress.EntitiesTotal > 0 && cp.Progress.EntitiesProcessed > cp.Progress.EntitiesTotal:
		return fmt.Sprintf("checkpoint %s processed %d of %d entities", cp.ID, cp.Progress.EntitiesProcessed, cp.Progress.EntitiesTotal)
	case cp.Status == models.CheckpointCompleted && cp.CompletedAt == nil:
		return fmt.Sprintf("checkpoint %s is completed without a completion time", cp.ID)
	}
	return ""
}
