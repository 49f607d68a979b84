// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package progress

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/trackersync/internal/models"
	"github.com/tomtom215/trackersync/internal/websocket"
)

// Publisher delivers progress events to an observer channel.
type Publisher interface {
	Publish(ctx context.Context, event *models.ProgressEvent) error
	Name() string
}

// ErrDropped is returned when an observer channel refused an event.
var ErrDropped = errors.New("progress event dropped")

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, *models.ProgressEvent) error { return nil }
func (Nop) Name() string                                         { return "nop" }

// HubPublisher broadcasts events to websocket observers.
type HubPublisher struct {
	hub *websocket.Hub
}

// NewHubPublisher wraps hub.
func NewHubPublisher(hub *websocket.Hub) *HubPublisher {
	return &HubPublisher{hub: hub}
}

func (p *HubPublisher) Publish(_ context.Context, event *models.ProgressEvent) error {
	if !p.hub.BroadcastProgress(event) {
		return ErrDropped
	}
	return nil
}

func (p *HubPublisher) Name() string { return "websocket" }

// WatermillPublisher publishes JSON events to a message bus topic.
type WatermillPublisher struct {
	pub   message.Publisher
	topic string
}

// NewWatermillPublisher publishes to topic on pub.
func NewWatermillPublisher(pub message.Publisher, topic string) *WatermillPublisher {
	return &WatermillPublisher{pub: pub, topic: topic}
}

func (p *WatermillPublisher) Publish(ctx context.Context, event *models.ProgressEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode progress event: %w", err)
	}
	msg := message.NewMessage(uuid.NewString(), payload)
	msg.Metadata.Set("run_id", event.RunID)
	msg.SetContext(ctx)
	if err := p.pub.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", p.topic, err)
	}
	return nil
}

func (p *WatermillPublisher) Name() string { return "watermill" }

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, event *models.ProgressEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Name() string { return "multi" }
