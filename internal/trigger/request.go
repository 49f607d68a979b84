// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

// Package trigger starts sync runs from outside the HTTP API: sync request
// messages on the bus and cron schedules.
package trigger

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/tomtom215/trackersync/internal/bus"
	"github.com/tomtom215/trackersync/internal/logging"
	"github.com/tomtom215/trackersync/internal/models"
)

// Runner is the part of the orchestrator triggers drive.
type Runner interface {
	CreateRun(ctx context.Context, scope models.Scope) (*models.SyncRun, error)
	Execute(ctx context.Context, runID string) (*models.SyncRun, error)
	PurgeCheckpoints(ctx context.Context, retention time.Duration) (int, error)
}

// Request is the payload of a sync request message.
type Request struct {
	Scope       models.Scope `json:"scope"`
	RequestedBy string       `json:"requested_by,omitempty"`
}

// metadataCorrelationID carries the requester's correlation ID across the bus.
const metadataCorrelationID = "correlation_id"

// NewRequestMessage encodes req as a bus message. The correlation ID of ctx,
// if any, travels in the message metadata.
func NewRequestMessage(ctx context.Context, req Request) (*message.Message, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode sync request: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if id := logging.CorrelationIDFromContext(ctx); id != "" {
		msg.Metadata.Set(metadataCorrelationID, id)
	}
	return msg, nil
}

// RequestHandler executes one sync run per message. Runs execute inline,
// so a consumer processes requests one at a time.
//
// Undecodable and recovery requests are logged and acked; redelivery would
// not fix them. Only a failure to record the run nacks the message.
func RequestHandler(runner Runner) bus.HandlerFunc {
	return func(ctx context.Context, msg *message.Message) error {
		if id := msg.Metadata.Get(metadataCorrelationID); id != "" {
			ctx = logging.ContextWithCorrelationID(ctx, id)
		} else {
			ctx = logging.ContextWithNewCorrelationID(ctx)
		}
		log := logging.Ctx(ctx)

		var req Request
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			log.Warn().Err(err).Str("message_id", msg.UUID).Msg("Dropping undecodable sync request")
			return nil
		}
		if req.Scope.Kind == models.KindRecovery || req.Scope.ResumedFrom != "" {
			log.Warn().Str("message_id", msg.UUID).Msg("Dropping recovery sync request; resume runs explicitly")
			return nil
		}

		run, err := runner.CreateRun(ctx, req.Scope)
		if err != nil {
			return fmt.Errorf("create run for message %s: %w", msg.UUID, err)
		}
		log.Info().
			Str("run_id", run.ID).
			Str("message_id", msg.UUID).
			Str("requested_by", req.RequestedBy).
			Strs("projects", run.Scope.ProjectKeys).
			Msg("Sync requested over bus")

		if _, err := runner.Execute(ctx, run.ID); err != nil {
			log.Error().Err(err).Str("run_id", run.ID).Msg("Sync run execution failed")
		}
		return nil
	}
}

// NewRequestConsumer wires RequestHandler to topic as a supervised service.
func NewRequestConsumer(subscriber message.Subscriber, topic string, runner Runner) *bus.Consumer {
	return bus.NewConsumer("sync-request-consumer", subscriber, topic,
		RequestHandler(runner), logging.NewWatermillAdapter("sync-requests"))
}
