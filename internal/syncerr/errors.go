// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

// Package syncerr defines the error taxonomy used by the synchronization engine.
//
// Every error that reaches a run log is classified into a Category with a
// Severity and a retryable flag, and carries human-readable remediation
// suggestions so operators are not left with raw exception text.
//
//	err := syncerr.Classify(fetchErr)
//	if err.Retryable {
//	    // back off and try again
//	}
package syncerr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// Category groups errors by how the engine reacts to them.
type Category string

const (
	// CategoryTransient covers timeouts, 5xx and 429 responses. Retried with backoff.
	CategoryTransient Category = "transient"
	// CategoryPermanent covers 401/403/404 and malformed mandatory data. Never retried.
	CategoryPermanent Category = "permanent"
	// CategoryResource covers memory or storage exhaustion. Terminates the run.
	CategoryResource Category = "resource"
	// CategoryDataQuality covers validation discrepancies and integrity findings.
	CategoryDataQuality Category = "data_quality"
)

// Severity mirrors log severities plus a critical level for run-terminating errors.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Sentinel errors.
var (
	// ErrRetriesExhausted is wrapped when a transient failure outlives the retry budget.
	ErrRetriesExhausted = errors.New("retries exhausted")
	// ErrPaginationLimit is returned when pagination exceeds the configured page ceiling.
	ErrPaginationLimit = errors.New("pagination iteration limit reached")
	// ErrCanceled is returned when a run is canceled between projects.
	ErrCanceled = errors.New("sync run canceled")
	// ErrNoScope is returned when no project keys can be resolved for a run.
	ErrNoScope = errors.New("no projects in sync scope")
	// ErrMissingField is wrapped when a remote record lacks a mandatory field.
	ErrMissingField = errors.New("missing required field")
)

// Error is a classified error.
type Error struct {
	Category    Category
	Severity    Severity
	Retryable   bool
	Op          string
	StatusCode  int
	Remediation []string
	Err         error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, "HTTP %d: ", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	} else {
		b.WriteString(string(e.Category))
		b.WriteString(" error")
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// Transient builds a retryable error.
func Transient(op string, err error) *Error {
	return &Error{
		Category:    CategoryTransient,
		Severity:    SeverityWarning,
		Retryable:   true,
		Op:          op,
		Err:         err,
		Remediation: remediationFor(CategoryTransient, 0),
	}
}

// Permanent builds a non-retryable error.
func Permanent(op string, err error) *Error {
	return &Error{
		Category:    CategoryPermanent,
		Severity:    SeverityError,
		Op:          op,
		Err:         err,
		Remediation: remediationFor(CategoryPermanent, 0),
	}
}

// Resource builds a critical, run-terminating error.
func Resource(op string, err error) *Error {
	return &Error{
		Category:    CategoryResource,
		Severity:    SeverityCritical,
		Op:          op,
		Err:         err,
		Remediation: remediationFor(CategoryResource, 0),
	}
}

// DataQuality builds a data-quality finding. Findings never block the run that produced them.
func DataQuality(op string, err error) *Error {
	return &Error{
		Category:    CategoryDataQuality,
		Severity:    SeverityWarning,
		Op:          op,
		Err:         err,
		Remediation: remediationFor(CategoryDataQuality, 0),
	}
}

// FromStatus classifies an HTTP response status. Returns nil for 2xx/3xx.
func FromStatus(op string, status int, body string) *Error {
	if status < 400 {
		return nil
	}
	msg := http.StatusText(status)
	if body != "" {
		msg = body
	}
	cause := errors.New(msg)

	var e *Error
	switch {
	case status == http.StatusTooManyRequests || status >= 500:
		e = Transient(op, cause)
	default:
		e = Permanent(op, cause)
	}
	e.StatusCode = status
	e.Remediation = remediationFor(e.Category, status)
	return e
}

// Exhausted marks a transient error as terminal after the retry budget ran out.
func Exhausted(op string, attempts int, last error) *Error {
	status := 0
	var prev *Error
	if errors.As(last, &prev) {
		status = prev.StatusCode
	}
	return &Error{
		Category:    CategoryTransient,
		Severity:    SeverityError,
		Op:          op,
		StatusCode:  status,
		Err:         fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, last),
		Remediation: remediationFor(CategoryTransient, status),
	}
}

// Classify converts any error into a classified *Error. Already classified
// errors are returned as-is; nil yields nil.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	switch {
	case errors.Is(err, ErrCanceled), errors.Is(err, context.Canceled):
		return &Error{Category: CategoryPermanent, Severity: SeverityWarning, Err: err,
			Remediation: []string{"Run was canceled; resume it to continue from the last checkpoint"}}
	case errors.Is(err, context.DeadlineExceeded):
		return Transient("", err)
	case errors.Is(err, syscall.ENOSPC), errors.Is(err, syscall.ENOMEM), isExhaustionMessage(err):
		return Resource("", err)
	case errors.Is(err, ErrMissingField):
		return Permanent("", err)
	case errors.Is(err, ErrNoScope):
		e := Permanent("", err)
		e.Remediation = []string{"Pass project keys explicitly or configure sync.projects"}
		return e
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient("", err)
	}

	return &Error{Category: CategoryPermanent, Severity: SeverityError, Err: err,
		Remediation: []string{"Inspect the error context and the run log for the failing entity"}}
}

// IsRetryable reports whether err is classified as retryable.
func IsRetryable(err error) bool {
	c := Classify(err)
	return c != nil && c.Retryable
}

// IsCritical reports whether err should terminate the whole run.
func IsCritical(err error) bool {
	c := Classify(err)
	return c != nil && (c.Category == CategoryResource || c.Severity == SeverityCritical)
}

func isExhaustionMessage(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no space left on device") ||
		strings.Contains(msg, "out of memory") ||
		strings.Contains(msg, "disk quota exceeded")
}

func remediationFor(c Category, status int) []string {
	switch status {
	case http.StatusUnauthorized:
		return []string{"Verify the tracker credential is valid and not expired"}
	case http.StatusForbidden:
		return []string{"Grant the integration account browse permission on the project"}
	case http.StatusNotFound:
		return []string{"Check that the project or issue key still exists in the tracker"}
	case http.StatusTooManyRequests:
		return []string{
			"Lower tracker.requests_per_second or raise tracker.burst_pause",
			"Schedule syncs outside peak hours",
		}
	}
	if status >= 500 {
		return []string{"The tracker is failing server-side; retry later or check its status page"}
	}

	switch c {
	case CategoryTransient:
		return []string{"Check network connectivity to the tracker", "Resume the run once the tracker is reachable"}
	case CategoryResource:
		return []string{"Free disk space or memory on the sync host", "Resume the run after resources are available"}
	case CategoryDataQuality:
		return []string{"Review the validation findings", "Run a forced full sync for affected projects"}
	default:
		return []string{"Correct the offending record or configuration and re-run the sync"}
	}
}
