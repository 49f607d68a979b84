// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package bus

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// HandlerFunc processes one message. A returned error nacks it.
type HandlerFunc func(ctx context.Context, msg *message.Message) error

// Consumer runs a HandlerFunc over a topic as a supervised service.
type Consumer struct {
	name       string
	subscriber message.Subscriber
	topic      string
	handler    HandlerFunc
	logger     watermill.LoggerAdapter
}

// NewConsumer creates a consumer for topic.
func NewConsumer(name string, subscriber message.Subscriber, topic string, handler HandlerFunc, logger watermill.LoggerAdapter) *Consumer {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &Consumer{name: name, subscriber: subscriber, topic: topic, handler: handler, logger: logger}
}

// Serve processes messages until ctx is canceled.
// Messages are acked on success and nacked on error. Handlers receive ctx,
// not the message context, so a shutdown reaches in-flight work.
func (c *Consumer) Serve(ctx context.Context) error {
	messages, err := c.subscriber.Subscribe(ctx, c.topic)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", c.topic, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return fmt.Errorf("subscription to %s closed", c.topic)
			}
			if err := c.handler(ctx, msg); err != nil {
				c.logger.Error("message handling failed", err, watermill.LogFields{
					"topic":      c.topic,
					"message_id": msg.UUID,
				})
				msg.Nack()
				continue
			}
			msg.Ack()
		}
	}
}

// String names the service in supervisor logs.
func (c *Consumer) String() string {
	return c.name
}
