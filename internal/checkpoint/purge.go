// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package checkpoint

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/trackersync/internal/logging"
	"github.com/tomtom215/trackersync/internal/metrics"
	"github.com/tomtom215/trackersync/internal/models"
)

// RunStatusFunc reports a run's status. found is false for unknown runs.
type RunStatusFunc func(ctx context.Context, runID string) (status models.RunStatus, found bool, err error)

// Purge deletes checkpoints of terminal runs last updated before
// now-retention. Checkpoints of unknown runs are treated as terminal.
// Checkpoints of runs still pending or in progress are never removed.
func Purge(ctx context.Context, store Store, runStatus RunStatusFunc, retention time.Duration, now time.Time) (int, error) {
	cps, err := store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("purge checkpoints: %w", err)
	}

	cutoff := now.Add(-retention)
	statuses := make(map[string]bool) // run ID -> terminal
	purged := 0

	for _, cp := range cps {
		if err := ctx.Err(); err != nil {
			return purged, err
		}
		if !cp.UpdatedAt.Before(cutoff) {
			continue
		}

		terminal, cached := statuses[cp.RunID]
		if !cached {
			status, found, err := runStatus(ctx, cp.RunID)
			if err != nil {
				return purged, fmt.Errorf("purge checkpoints: run %s: %w", cp.RunID, err)
			}
			terminal = !found || status.Terminal()
			statuses[cp.RunID] = terminal
		}
		if !terminal {
			continue
		}

		if err := store.Delete(ctx, cp.ID); err != nil {
			return purged, fmt.Errorf("purge checkpoint %s: %w", cp.ID, err)
		}
		purged++
	}

	if purged > 0 {
		metrics.CheckpointsPurged.Add(float64(purged))
		logging.Info().Int("purged", purged).Dur("retention", retention).Msg("Purged expired checkpoints")
	}
	return purged, nil
}
