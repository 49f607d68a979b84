// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package bus

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("nats://localhost:4222", "trackersync")
	if cfg.MaxReconnects != -1 {
		t.Errorf("MaxReconnects = %d, want unlimited", cfg.MaxReconnects)
	}
	if cfg.QueueGroup != "trackersync" {
		t.Errorf("QueueGroup = %q", cfg.QueueGroup)
	}
}

func TestConsumer_AcksAndNacks(t *testing.T) {
	bus := NewInMemory(watermill.NopLogger{})
	defer bus.Close()

	var handled atomic.Int32
	failFirst := atomic.Bool{}
	failFirst.Store(true)
	consumer := NewConsumer("test-consumer", bus, "sync.requests", func(_ context.Context, msg *message.Message) error {
		handled.Add(1)
		if failFirst.CompareAndSwap(true, false) {
			return errors.New("transient")
		}
		return nil
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Serve(ctx) }()

	// Wait for the subscription before publishing.
	deadline := time.Now().Add(time.Second)
	for handled.Load() == 0 && time.Now().Before(deadline) {
		_ = bus.Publish("sync.requests", message.NewMessage(watermill.NewUUID(), []byte(`{}`)))
		time.Sleep(20 * time.Millisecond)
	}

	// The nacked message is redelivered, so the handler runs at least twice.
	for handled.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if handled.Load() < 2 {
		t.Errorf("handled = %d, want redelivery after nack", handled.Load())
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve = %v, want context.Canceled", err)
	}
	if consumer.String() != "test-consumer" {
		t.Errorf("String() = %q", consumer.String())
	}
}
