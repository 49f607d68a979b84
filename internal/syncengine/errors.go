// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package syncengine

import "errors"

var (
	// ErrRunTerminal is returned when a completed or failed run is asked to change.
	ErrRunTerminal = errors.New("sync run already finished")
	// ErrRunNotPending is returned when Execute is called for a run that already started.
	ErrRunNotPending = errors.New("sync run is not pending")
	// ErrRunActive is returned when a run still executing in this process is resumed.
	ErrRunActive = errors.New("sync run is still executing")
	// ErrNothingToResume is returned when every project of a run already completed.
	ErrNothingToResume = errors.New("sync run has nothing to resume")
	// ErrManualReview is returned when a run's checkpoints are inconsistent.
	ErrManualReview = errors.New("sync run checkpoints require manual review")
)
