// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package models

import "time"

// Finding is one validation or integrity observation.
type Finding struct {
	Check      string     `json:"check"`
	Severity   Severity   `json:"severity"`
	ProjectKey string     `json:"project_key,omitempty"`
	EntityType EntityType `json:"entity_type,omitempty"`
	Message    string     `json:"message"`
	Count      int        `json:"count"`
	EntityIDs  []string   `json:"entity_ids,omitempty"`
}

// ProjectValidation compares local and remote state for one project.
type ProjectValidation struct {
	ProjectKey       string   `json:"project_key"`
	LocalIssues      int      `json:"local_issues"`
	RemoteIssues     int      `json:"remote_issues"`
	LocalWorklogs    int      `json:"local_worklogs"`
	EstimatedWorklog int      `json:"estimated_remote_worklogs"`
	WorklogDensity   float64  `json:"worklog_density"`
	Discrepancy      int      `json:"discrepancy"`
	DiscrepancyPct   float64  `json:"discrepancy_pct"`
	Valid            bool     `json:"valid"`
	MissingKeys      []string `json:"missing_keys,omitempty"`
	ExtraKeys        []string `json:"extra_keys,omitempty"`
	Error            string   `json:"error,omitempty"`
}

// ValidationResult is attached to a SyncRun after its projects are processed.
type ValidationResult struct {
	RunID                   string              `json:"run_id"`
	ValidatedAt             time.Time           `json:"validated_at"`
	Threshold               float64             `json:"threshold_pct"`
	Projects                []ProjectValidation `json:"projects"`
	AggregateLocal          int                 `json:"aggregate_local"`
	AggregateRemote         int                 `json:"aggregate_remote"`
	AggregateDiscrepancyPct float64             `json:"aggregate_discrepancy_pct"`
	Valid                   bool                `json:"valid"`
	Findings                []Finding           `json:"findings,omitempty"`
	Errors                  int                 `json:"errors"`
	Warnings                int                 `json:"warnings"`
	CompletenessScore       float64             `json:"completeness_score"`
}
