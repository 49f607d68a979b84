// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package app

import (
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/trackersync/internal/bus"
	"github.com/tomtom215/trackersync/internal/config"
	"github.com/tomtom215/trackersync/internal/logging"
	"github.com/tomtom215/trackersync/internal/progress"
	"github.com/tomtom215/trackersync/internal/supervisor"
	"github.com/tomtom215/trackersync/internal/trigger"
	ws "github.com/tomtom215/trackersync/internal/websocket"
)

// Messaging holds the Watermill publisher and subscribers used when sync
// requests and progress events travel over a message bus.
//
// Progress is consumed by every instance so that each local hub sees every
// run. Requests are consumed through the queue group so that exactly one
// instance executes each request.
type Messaging struct {
	Publisher   message.Publisher
	ProgressSub message.Subscriber
	RequestSub  message.Subscriber

	progressTopic string
	requestTopic  string
	closers       []func() error
}

// OpenMessaging connects to NATS. It returns nil when NATS is disabled.
func OpenMessaging(cfg config.NATSConfig) (_ *Messaging, err error) {
	if !cfg.Enabled {
		logging.Info().Msg("NATS disabled, progress is delivered to the local hub only")
		return nil, nil
	}

	m := &Messaging{progressTopic: cfg.ProgressTopic, requestTopic: cfg.RequestTopic}
	defer func() {
		if err != nil {
			if cerr := m.Close(); cerr != nil {
				logging.Error().Err(cerr).Msg("Error closing partially opened messaging")
			}
		}
	}()

	busCfg := bus.DefaultConfig(cfg.URL, cfg.QueueGroup)
	logger := logging.NewWatermillAdapter("bus")

	if m.Publisher, err = bus.NewNATSPublisher(busCfg, logger); err != nil {
		return nil, fmt.Errorf("nats publisher: %w", err)
	}
	m.closers = append(m.closers, m.Publisher.Close)

	if m.ProgressSub, err = bus.NewNATSSubscriber(busCfg, logger, false); err != nil {
		return nil, fmt.Errorf("nats progress subscriber: %w", err)
	}
	m.closers = append(m.closers, m.ProgressSub.Close)

	if m.RequestSub, err = bus.NewNATSSubscriber(busCfg, logger, true); err != nil {
		return nil, fmt.Errorf("nats request subscriber: %w", err)
	}
	m.closers = append(m.closers, m.RequestSub.Close)

	logging.Info().
		Str("url", cfg.URL).
		Str("queue_group", cfg.QueueGroup).
		Str("request_topic", cfg.RequestTopic).
		Str("progress_topic", cfg.ProgressTopic).
		Msg("NATS messaging initialized")
	return m, nil
}

// NewInMemoryMessaging wires every role to one process-local Go channel bus.
func NewInMemoryMessaging(progressTopic, requestTopic string) *Messaging {
	ch := bus.NewInMemory(logging.NewWatermillAdapter("bus"))
	return &Messaging{
		Publisher:     ch,
		ProgressSub:   ch,
		RequestSub:    ch,
		progressTopic: progressTopic,
		requestTopic:  requestTopic,
		closers:       []func() error{ch.Close},
	}
}

// ProgressPublisher publishes progress events onto the progress topic.
func (m *Messaging) ProgressPublisher() progress.Publisher {
	return progress.NewWatermillPublisher(m.Publisher, m.progressTopic)
}

// AddServices registers the bus-to-hub bridge and the request consumer.
func (m *Messaging) AddServices(tree *supervisor.SupervisorTree, hub *ws.Hub, runner trigger.Runner) {
	tree.AddMessagingService(ws.NewBridge(hub, m.ProgressSub, m.progressTopic))
	tree.AddSyncService(trigger.NewRequestConsumer(m.RequestSub, m.requestTopic, runner))
	logging.Info().Msg("Progress bridge and request consumer added to supervisor tree")
}

// Close closes the subscribers and the publisher. A nil Messaging is a no-op.
func (m *Messaging) Close() error {
	if m == nil {
		return nil
	}
	var errs []error
	for i := len(m.closers) - 1; i >= 0; i-- {
		errs = append(errs, m.closers[i]())
	}
	m.closers = nil
	return errors.Join(errs...)
}
