// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package trigger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/robfig/cron/v3"

	"github.com/tomtom215/trackersync/internal/logging"
	"github.com/tomtom215/trackersync/internal/models"
)

// SchedulerConfig configures the cron jobs. Empty specs disable a job.
type SchedulerConfig struct {
	// SyncSchedule starts a scheduled run over the configured projects.
	SyncSchedule     string
	OnlyWithWorklogs bool

	// PurgeSchedule removes checkpoints older than Retention.
	PurgeSchedule string
	Retention     time.Duration

	// RequestTopic receives scheduled requests when a publisher is set.
	RequestTopic string
}

// Scheduler runs the sync and purge cron jobs.
//
// With a publisher, a scheduled sync is published as a request so that
// exactly one consumer in the queue group executes it. Without one the
// scheduler executes the run itself.
type Scheduler struct {
	cfg       SchedulerConfig
	runner    Runner
	publisher message.Publisher
	cron      *cron.Cron

	mu  sync.Mutex
	ctx context.Context
}

// NewScheduler validates the cron specs and registers the jobs.
func NewScheduler(cfg SchedulerConfig, runner Runner, publisher message.Publisher) (*Scheduler, error) {
	if publisher != nil && cfg.RequestTopic == "" {
		return nil, errors.New("scheduler: request topic required with a publisher")
	}

	logger := logging.NewCronAdapter("scheduler")
	s := &Scheduler{
		cfg:       cfg,
		runner:    runner,
		publisher: publisher,
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		ctx: context.Background(),
	}

	if cfg.SyncSchedule != "" {
		if _, err := s.cron.AddFunc(cfg.SyncSchedule, func() { s.TriggerSync(s.context()) }); err != nil {
			return nil, fmt.Errorf("sync schedule %q: %w", cfg.SyncSchedule, err)
		}
	}
	if cfg.PurgeSchedule != "" {
		if cfg.Retention <= 0 {
			return nil, errors.New("scheduler: purge schedule requires a positive retention")
		}
		if _, err := s.cron.AddFunc(cfg.PurgeSchedule, func() { s.Purge(s.context()) }); err != nil {
			return nil, fmt.Errorf("purge schedule %q: %w", cfg.PurgeSchedule, err)
		}
	}
	return s, nil
}

// Jobs returns the number of registered cron jobs.
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// Serve runs the cron loop until ctx is canceled, then waits for running
// jobs to return.
func (s *Scheduler) Serve(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	logging.Info().Int("jobs", s.Jobs()).Msg("Scheduler started")

	<-ctx.Done()
	<-s.cron.Stop().Done()
	logging.Info().Msg("Scheduler stopped")
	return ctx.Err()
}

// String names the service in supervisor logs.
func (s *Scheduler) String() string {
	return "scheduler"
}

// TriggerSync starts one scheduled run.
func (s *Scheduler) TriggerSync(ctx context.Context) {
	ctx = logging.ContextWithNewCorrelationID(ctx)
	log := logging.Ctx(ctx)
	scope := models.Scope{Kind: models.KindScheduled, OnlyWithWorklogs: s.cfg.OnlyWithWorklogs}

	if s.publisher != nil {
		msg, err := NewRequestMessage(ctx, Request{Scope: scope, RequestedBy: "scheduler"})
		if err == nil {
			err = s.publisher.Publish(s.cfg.RequestTopic, msg)
		}
		if err != nil {
			log.Error().Err(err).Str("topic", s.cfg.RequestTopic).Msg("Failed to publish scheduled sync request")
			return
		}
		log.Info().Str("message_id", msg.UUID).Msg("Scheduled sync requested")
		return
	}

	run, err := s.runner.CreateRun(ctx, scope)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create scheduled run")
		return
	}
	run, err = s.runner.Execute(ctx, run.ID)
	if err != nil {
		log.Error().Err(err).Msg("Scheduled run failed to execute")
		return
	}
	log.Info().Str("run_id", run.ID).Str("status", string(run.Status)).Msg("Scheduled run finished")
}

// Purge removes expired checkpoints.
func (s *Scheduler) Purge(ctx context.Context) {
	n, err := s.runner.PurgeCheckpoints(ctx, s.cfg.Retention)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Int("purged", n).Msg("Checkpoint purge failed")
	}
}
