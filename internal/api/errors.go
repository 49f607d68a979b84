// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/tomtom215/trackersync/internal/storage"
	"github.com/tomtom215/trackersync/internal/syncengine"
)

// ErrShuttingDown is returned for run requests received after Shutdown.
var ErrShuttingDown = errors.New("server is shutting down")

// errorMapping ties an engine error to an HTTP status and API error code.
type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{storage.ErrNotFound, http.StatusNotFound, "RUN_NOT_FOUND"},
	{syncengine.ErrRunTerminal, http.StatusConflict, "RUN_TERMINAL"},
	{syncengine.ErrRunNotPending, http.StatusConflict, "RUN_NOT_PENDING"},
	{syncengine.ErrRunActive, http.StatusConflict, "RUN_ACTIVE"},
	{syncengine.ErrNothingToResume, http.StatusConflict, "NOTHING_TO_RESUME"},
	{syncengine.ErrManualReview, http.StatusUnprocessableEntity, "MANUAL_REVIEW_REQUIRED"},
	{ErrShuttingDown, http.StatusServiceUnavailable, "SHUTTING_DOWN"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "TIMEOUT"},
}

// respondEngineError maps err to a status code and writes the error envelope.
func respondEngineError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			respondError(w, r, m.status, m.code, err.Error(), nil)
			return
		}
	}
	respondError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error", err)
}
