// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/trackersync/internal/models"
)

// SchemaVersioner is implemented by databases that report their applied
// migration version.
type SchemaVersioner interface {
	GetSchemaVersion(ctx context.Context) (int, error)
}

func (h *Handler) ping(ctx context.Context, p Pinger) bool {
	if p == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, h.pingTimeout)
	defer cancel()
	return p.Ping(ctx) == nil
}

func (h *Handler) healthStatus(ctx context.Context) models.HealthStatus {
	dbConnected := h.db == nil || h.ping(ctx, h.db)
	trackerReachable := h.tracker != nil && h.ping(ctx, h.tracker)

	// The tracker being down degrades the service but runs still record
	// their failure, so only the database decides readiness.
	status := "healthy"
	switch {
	case !dbConnected:
		status = "unhealthy"
	case !trackerReachable:
		status = "degraded"
	}

	var schema int
	if sv, ok := h.db.(SchemaVersioner); ok && dbConnected {
		ctx, cancel := context.WithTimeout(ctx, h.pingTimeout)
		v, err := sv.GetSchemaVersion(ctx)
		cancel()
		if err == nil {
			schema = v
		}
	}

	clients := 0
	if h.hub != nil {
		clients = h.hub.GetClientCount()
	}

	return models.HealthStatus{
		Status:            status,
		Version:           h.version,
		DatabaseConnected: dbConnected,
		SchemaVersion:     schema,
		TrackerReachable:  trackerReachable,
		ActiveClients:     clients,
		Uptime:            time.Since(h.startTime).Seconds(),
	}
}

// Health handles GET /api/v1/health. It always answers 200; inspect status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondData(w, r, http.StatusOK, h.healthStatus(r.Context()))
}

// HealthLive returns 200 OK if the process is alive, regardless of dependencies.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondData(w, r, http.StatusOK, map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

// HealthReady returns 503 while the run store is unreachable or the server is shutting down.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	closing := h.closing
	h.mu.Unlock()

	health := h.healthStatus(r.Context())
	if closing || !health.DatabaseConnected {
		respondJSON(w, r, http.StatusServiceUnavailable, &models.APIResponse{
			Status: "error",
			Data:   health,
			Error:  &models.APIError{Code: "NOT_READY", Message: "Service is not ready"},
		})
		return
	}
	respondData(w, r, http.StatusOK, map[string]interface{}{"ready": true})
}
