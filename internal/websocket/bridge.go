// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package websocket

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/trackersync/internal/logging"
)

// Bridge forwards progress events from the message bus to the hub.
type Bridge struct {
	hub        *Hub
	subscriber message.Subscriber
	topic      string
}

// NewBridge creates a bus-to-websocket bridge for topic.
func NewBridge(hub *Hub, subscriber message.Subscriber, topic string) *Bridge {
	return &Bridge{hub: hub, subscriber: subscriber, topic: topic}
}

// Serve consumes the topic until ctx is canceled. Malformed messages are
// acked and dropped so they never block the stream.
func (b *Bridge) Serve(ctx context.Context) error {
	messages, err := b.subscriber.Subscribe(ctx, b.topic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", b.topic, err)
	}
	logging.Info().Str("topic", b.topic).Msg("progress bridge started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return fmt.Errorf("subscription to %s closed", b.topic)
			}
			if err := b.hub.BroadcastRaw(msg.Payload); err != nil {
				logging.Warn().Err(err).Str("message_id", msg.UUID).Msg("dropping malformed progress event")
			}
			msg.Ack()
		}
	}
}

// String names the service in supervisor logs.
func (b *Bridge) String() string {
	return "progress-bridge"
}
