// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/trackersync/internal/checkpoint"
	"github.com/tomtom215/trackersync/internal/logging"
	"github.com/tomtom215/trackersync/internal/models"
	"github.com/tomtom215/trackersync/internal/storage"
)

const (
	defaultRunListLimit = 50
	maxRunListLimit     = 500
)

// resumeResponse is returned by both resume endpoints. Run is nil for the plan preview.
type resumeResponse struct {
	Run  *models.SyncRun  `json:"run,omitempty"`
	Plan *checkpoint.Plan `json:"plan"`
}

// ListRuns handles GET /api/v1/runs?status=pending,in_progress&limit=20.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	filter := storage.RunFilter{Limit: getIntParam(r, "limit", defaultRunListLimit)}
	if filter.Limit < 1 || filter.Limit > maxRunListLimit {
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be between 1 and 500", nil)
		return
	}
	for _, s := range parseCommaSeparated(r.URL.Query().Get("status")) {
		status := models.RunStatus(s)
		switch status {
		case models.RunPending, models.RunInProgress, models.RunCompleted, models.RunFailed:
			filter.Statuses = append(filter.Statuses, status)
		default:
			respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "unknown run status "+sanitizeLogValue(s), nil)
			return
		}
	}

	runs, err := h.engine.ListRuns(r.Context(), filter)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	if runs == nil {
		runs = []*models.SyncRun{}
	}
	respondData(w, r, http.StatusOK, runs)
}

// CreateRun handles POST /api/v1/runs. The body is a scope; an empty body
// syncs every configured project. The run executes in the background and
// the pending run is returned with 202, unless ?wait=true is given, in
// which case the terminal run is returned with 200.
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var scope models.Scope
	if err := decodeJSON(r, &scope); err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_JSON", "Request body is not a valid scope", err)
		return
	}
	if apiErr := validateRequest(&scope); apiErr != nil {
		respondJSON(w, r, http.StatusBadRequest, &models.APIResponse{Status: "error", Error: apiErr})
		return
	}
	if scope.Kind == models.KindRecovery || scope.ResumedFrom != "" {
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "recovery runs are started through the resume endpoint", nil)
		return
	}

	run, err := h.engine.CreateRun(r.Context(), scope)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	logging.Ctx(r.Context()).Info().
		Str("run_id", run.ID).
		Str("kind", string(run.Scope.Kind)).
		Strs("projects", run.Scope.ProjectKeys).
		Msg("Sync run requested over HTTP")

	runID := run.ID
	h.dispatch(w, r, run, func(ctx context.Context) (*models.SyncRun, error) {
		return h.engine.Execute(ctx, runID)
	}, func(run *models.SyncRun) interface{} { return run })
}

// GetRun handles GET /api/v1/runs/{id}.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.engine.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, run)
}

// RunLogs handles GET /api/v1/runs/{id}/logs.
func (h *Handler) RunLogs(w http.ResponseWriter, r *http.Request) {
	entries, err := h.engine.Logs(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	if entries == nil {
		entries = []*models.SyncLogEntry{}
	}
	respondData(w, r, http.StatusOK, entries)
}

// CancelRun handles POST /api/v1/runs/{id}/cancel. An in-progress run stops
// before its next project; a pending run fails immediately.
func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.engine.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, run)
}

// ResumePlan handles GET /api/v1/runs/{id}/resume.
func (h *Handler) ResumePlan(w http.ResponseWriter, r *http.Request) {
	plan, err := h.engine.ResumePlan(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, resumeResponse{Plan: plan})
}

// ResumeRun handles POST /api/v1/runs/{id}/resume. It records a recovery
// run and executes it like CreateRun does.
func (h *Handler) ResumeRun(w http.ResponseWriter, r *http.Request) {
	run, plan, err := h.engine.PrepareResume(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondEngineError(w, r, err)
		return
	}

	runID := run.ID
	h.dispatch(w, r, run, func(ctx context.Context) (*models.SyncRun, error) {
		return h.engine.ExecuteResume(ctx, runID, plan)
	}, func(run *models.SyncRun) interface{} { return resumeResponse{Run: run, Plan: plan} })
}

// StaleRuns handles GET /api/v1/runs/stale?window=30m. Without a window the
// engine's configured staleness window applies.
func (h *Handler) StaleRuns(w http.ResponseWriter, r *http.Request) {
	var window time.Duration
	if raw := r.URL.Query().Get("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "window must be a positive duration such as 30m", nil)
			return
		}
		window = d
	}

	stale, err := h.engine.ListStale(r.Context(), window)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	if stale == nil {
		respondData(w, r, http.StatusOK, []interface{}{})
		return
	}
	respondData(w, r, http.StatusOK, stale)
}

// ProjectStatuses handles GET /api/v1/projects/status.
func (h *Handler) ProjectStatuses(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.engine.ProjectStatuses(r.Context())
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	if statuses == nil {
		statuses = []*models.ProjectSyncStatus{}
	}
	respondData(w, r, http.StatusOK, statuses)
}

// dispatch starts exec in the background. With ?wait=true it waits for the
// terminal run, falling back to 202 if the client goes away first.
func (h *Handler) dispatch(
	w http.ResponseWriter,
	r *http.Request,
	pending *models.SyncRun,
	exec func(ctx context.Context) (*models.SyncRun, error),
	body func(run *models.SyncRun) interface{},
) {
	var (
		final   *models.SyncRun
		execErr error
	)
	done, err := h.launch(r.Context(), func(ctx context.Context) {
		final, execErr = exec(ctx)
		if execErr != nil {
			logging.Ctx(ctx).Error().Err(execErr).Str("run_id", pending.ID).Msg("Sync run execution failed")
		}
	})
	if err != nil {
		respondEngineError(w, r, err)
		return
	}

	if !getBoolParam(r, "wait") {
		respondData(w, r, http.StatusAccepted, body(pending))
		return
	}

	select {
	case <-done:
		if execErr != nil {
			respondEngineError(w, r, execErr)
			return
		}
		respondData(w, r, http.StatusOK, body(final))
	case <-r.Context().Done():
		respondData(w, r, http.StatusAccepted, body(pending))
	}
}
