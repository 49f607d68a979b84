// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package syncerr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"syscall"
	"testing"
)

func TestFromStatus(t *testing.T) {
	tests := []struct {
		status    int
		category  Category
		retryable bool
	}{
		{http.StatusTooManyRequests, CategoryTransient, true},
		{http.StatusBadGateway, CategoryTransient, true},
		{http.StatusServiceUnavailable, CategoryTransient, true},
		{http.StatusUnauthorized, CategoryPermanent, false},
		{http.StatusForbidden, CategoryPermanent, false},
		{http.StatusNotFound, CategoryPermanent, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			err := FromStatus("fetch", tt.status, "")
			if err == nil {
				t.Fatal("expected error")
			}
			if err.Category != tt.category {
				t.Errorf("category: expected %s, got %s", tt.category, err.Category)
			}
			if err.Retryable != tt.retryable {
				t.Errorf("retryable: expected %v, got %v", tt.retryable, err.Retryable)
			}
			if len(err.Remediation) == 0 {
				t.Error("expected remediation suggestions")
			}
		})
	}

	if FromStatus("fetch", http.StatusOK, "") != nil {
		t.Error("2xx should not produce an error")
	}
}

func TestClassify(t *testing.T) {
	if Classify(nil) != nil {
		t.Error("Classify(nil) should be nil")
	}

	resource := Classify(fmt.Errorf("write checkpoint: %w", syscall.ENOSPC))
	if resource.Category != CategoryResource || !IsCritical(resource) {
		t.Errorf("ENOSPC should be a critical resource error, got %+v", resource)
	}

	deadline := Classify(context.DeadlineExceeded)
	if !deadline.Retryable {
		t.Error("deadline exceeded should be retryable")
	}

	missing := Classify(fmt.Errorf("issue 10001: %w: summary", ErrMissingField))
	if missing.Category != CategoryPermanent {
		t.Errorf("missing field should be permanent, got %s", missing.Category)
	}

	original := Permanent("op", errors.New("boom"))
	if Classify(fmt.Errorf("wrapped: %w", original)) != original {
		t.Error("classified errors should be returned unchanged")
	}
}

func TestExhausted(t *testing.T) {
	last := FromStatus("search", http.StatusTooManyRequests, "slow down")
	err := Exhausted("search", 4, last)

	if !errors.Is(err, ErrRetriesExhausted) {
		t.Error("expected ErrRetriesExhausted in chain")
	}
	if err.Retryable {
		t.Error("exhausted errors must not be retryable")
	}
	if err.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected status 429 carried over, got %d", err.StatusCode)
	}
	if !strings.Contains(err.Error(), "after 4 attempts") {
		t.Errorf("unexpected message: %s", err.Error())
	}
}
