// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

// Package bus builds the Watermill publishers and subscribers used for
// progress events and sync requests.
//
// With NATS disabled, NewInMemory provides a process-local Go channel bus
// with the same interfaces, so the rest of the service is wired identically.
package bus

import (
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	natsgo "github.com/nats-io/nats.go"
)

// Config holds NATS connection settings.
type Config struct {
	URL             string
	QueueGroup      string
	MaxReconnects   int
	ReconnectWait   time.Duration
	ReconnectBuffer int
	AckWaitTimeout  time.Duration
	CloseTimeout    time.Duration
}

// DefaultConfig returns production defaults for url.
func DefaultConfig(url, queueGroup string) Config {
	return Config{
		URL:             url,
		QueueGroup:      queueGroup,
		MaxReconnects:   -1, // Unlimited
		ReconnectWait:   2 * time.Second,
		ReconnectBuffer: 8 * 1024 * 1024,
		AckWaitTimeout:  30 * time.Second,
		CloseTimeout:    10 * time.Second,
	}
}

// natsOptions configures reconnection handling and routes connection events
// to the Watermill logger.
func natsOptions(cfg Config, logger watermill.LoggerAdapter) []natsgo.Option {
	return []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.ReconnectBufSize(cfg.ReconnectBuffer),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}
}

// NewNATSPublisher creates a core NATS publisher. Progress events and sync
// requests are ephemeral, so JetStream persistence is disabled.
func NewNATSPublisher(cfg Config, logger watermill.LoggerAdapter) (message.Publisher, error) {
	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOptions(cfg, logger),
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}
	return pub, nil
}

// NewNATSSubscriber creates a core NATS subscriber. With queue set, instances
// sharing cfg.QueueGroup split the messages; otherwise every instance
// receives every message.
func NewNATSSubscriber(cfg Config, logger watermill.LoggerAdapter, queue bool) (message.Subscriber, error) {
	group := ""
	if queue {
		group = cfg.QueueGroup
	}
	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              cfg.URL,
		QueueGroupPrefix: group,
		SubscribersCount: 1,
		AckWaitTimeout:   cfg.AckWaitTimeout,
		CloseTimeout:     cfg.CloseTimeout,
		NatsOptions:      natsOptions(cfg, logger),
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream:        wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill subscriber: %w", err)
	}
	return sub, nil
}

// NewInMemory returns a process-local pub/sub.
func NewInMemory(logger watermill.LoggerAdapter) *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, logger)
}
