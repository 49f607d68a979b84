// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package progress

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/trackersync/internal/clock"
	"github.com/tomtom215/trackersync/internal/logging"
	"github.com/tomtom215/trackersync/internal/metrics"
	"github.com/tomtom215/trackersync/internal/models"
)

// DefaultBuffer is the queue depth used when NewReporter is given zero.
const DefaultBuffer = 64

// publishTimeout bounds a single publisher call.
const publishTimeout = 5 * time.Second

// Reporter publishes progress for one run.
type Reporter struct {
	runID string
	pub   Publisher
	clk   clock.Clock
	log   zerolog.Logger

	queue chan models.ProgressEvent
	done  chan struct{}

	mu        sync.Mutex
	startedAt time.Time
	processed models.EntityCounts
	closed    bool
	dropped   int
}

// NewReporter starts a reporter for runID. Close must be called when the run ends.
func NewReporter(runID string, pub Publisher, clk clock.Clock, buffer int) *Reporter {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if clk == nil {
		clk = clock.Real()
	}
	if pub == nil {
		pub = Nop{}
	}
	r := &Reporter{
		runID:     runID,
		pub:       pub,
		clk:       clk,
		log:       logging.WithComponent("progress").With().Str("run_id", runID).Logger(),
		queue:     make(chan models.ProgressEvent, buffer),
		done:      make(chan struct{}),
		startedAt: clk.Now(),
	}
	go r.drain()
	return r
}

// Report folds deltas into the processed counts, computes percentage and
// ETA against totals, and queues the event. It never blocks.
func (r *Reporter) Report(operation string, totals, deltas models.EntityCounts) models.ProgressEvent {
	now := r.clk.Now()

	r.mu.Lock()
	r.processed.Add(deltas)
	event := models.ProgressEvent{
		RunID:      r.runID,
		Operation:  operation,
		Processed:  r.processed,
		Totals:     totals,
		Percentage: Percentage(r.processed, totals),
		Timestamp:  now,
	}
	elapsed := now.Sub(r.startedAt)
	event.Throughput = Throughput(r.processed.Sum(), elapsed)
	event.EstimatedCompletion = EstimateCompletion(r.processed.Sum(), totals.Sum(), elapsed, now)
	closed := r.closed
	r.mu.Unlock()

	if closed {
		return event
	}

	select {
	case r.queue <- event:
	default:
		r.mu.Lock()
		r.dropped++
		r.mu.Unlock()
		metrics.ProgressEventsDropped.Inc()
		r.log.Warn().Str("operation", operation).Msg("progress queue full, dropping event")
	}
	return event
}

// Processed returns the counts accumulated so far.
func (r *Reporter) Processed() models.EntityCounts {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.processed
}

// Dropped returns how many events were discarded because the queue was full.
func (r *Reporter) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Close stops accepting events and waits for queued ones to be published.
func (r *Reporter) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()
	<-r.done
}

func (r *Reporter) drain() {
	defer close(r.done)
	for event := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		err := r.pub.Publish(ctx, &event)
		cancel()
		metrics.RecordProgressPublish(r.pub.Name(), err)
		if err != nil {
			r.log.Warn().Err(err).Str("publisher", r.pub.Name()).Msg("failed to publish progress")
		}
	}
}

// Percentage is processed over totals as 0-100. Zero totals report zero.
func Percentage(processed, totals models.EntityCounts) float64 {
	total := totals.Sum()
	if total <= 0 {
		return 0
	}
	pct := float64(processed.Sum()) / float64(total) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

// Throughput is items per second over elapsed.
func Throughput(processed int, elapsed time.Duration) float64 {
	if processed <= 0 || elapsed <= 0 {
		return 0
	}
	return float64(processed) / elapsed.Seconds()
}

// EstimateCompletion projects the finish time from observed throughput.
// It returns nil when nothing has been measured yet.
func EstimateCompletion(processed, total int, elapsed time.Duration, now time.Time) *time.Time {
	rate := Throughput(processed, elapsed)
	if rate == 0 {
		return nil
	}
	remaining := total - processed
	if remaining < 0 {
		remaining = 0
	}
	eta := now.Add(time.Duration(float64(remaining) / rate * float64(time.Second)))
	return &eta
}
