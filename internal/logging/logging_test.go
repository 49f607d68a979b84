// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

func captureGlobal(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := Logger()
	prevLevel := zerolog.GlobalLevel()
	SetLogger(NewTestLogger(&buf))
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	t.Cleanup(func() {
		SetLogger(prev)
		zerolog.SetGlobalLevel(prevLevel)
	})
	return &buf
}

func TestInit(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Timestamp: true, Output: &buf})
	t.Cleanup(func() { Init(DefaultConfig()) })

	Info().Msg("test message")

	output := buf.String()
	if !strings.Contains(output, "test message") {
		t.Errorf("expected output to contain 'test message', got: %s", output)
	}
	if !strings.Contains(output, `"level":"info"`) {
		t.Errorf("expected output to contain level, got: %s", output)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARNING", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.expected {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestCtx_AddsRunFields(t *testing.T) {
	buf := captureGlobal(t)

	ctx := ContextWithCorrelationID(context.Background(), "abcd1234")
	ctx = ContextWithRunID(ctx, "run-1")
	ctx = ContextWithProject(ctx, "OPS")
	Ctx(ctx).Info().Msg("page stored")

	out := buf.String()
	for _, want := range []string{`"correlation_id":"abcd1234"`, `"run_id":"run-1"`, `"project_key":"OPS"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in %s", want, out)
		}
	}
	if RunIDFromContext(ctx) != "run-1" {
		t.Error("RunIDFromContext did not round trip")
	}
}

func TestGenerateCorrelationID(t *testing.T) {
	a, b := GenerateCorrelationID(), GenerateCorrelationID()
	if len(a) != 8 || a == b {
		t.Errorf("unexpected correlation IDs %q %q", a, b)
	}
}

func TestRedact(t *testing.T) {
	if Redact("") != "" {
		t.Error("empty secret should stay empty")
	}
	if Redact("short") != "****" {
		t.Error("short secrets must be fully masked")
	}
	if got := Redact("abcdefghijkl"); got != "****ijkl" {
		t.Errorf("Redact() = %q", got)
	}
}

func TestSlogHandler(t *testing.T) {
	buf := captureGlobal(t)

	logger := slog.New(NewSlogHandler()).With("service", "http").WithGroup("req")
	logger.Warn("restarting", "attempt", 2)

	out := buf.String()
	if !strings.Contains(out, `"level":"warn"`) || !strings.Contains(out, `"req.attempt":2`) {
		t.Errorf("unexpected slog output: %s", out)
	}
	if !strings.Contains(out, `"service":"http"`) {
		t.Errorf("expected pre-set attr in output: %s", out)
	}
}

func TestWatermillAdapter(t *testing.T) {
	buf := captureGlobal(t)

	adapter := NewWatermillAdapter("trigger").With(watermill.LogFields{"topic": "sync.requests"})
	adapter.Error("handler failed", errors.New("boom"), watermill.LogFields{"uuid": "m1"})

	out := buf.String()
	for _, want := range []string{`"component":"trigger"`, `"topic":"sync.requests"`, `"error":"boom"`, `"uuid":"m1"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in %s", want, out)
		}
	}
}
