// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

/*
Package tracker is the rate-limited client for the remote issue tracker API.

A single Client interface covers every resource the engine reads. HTTPClient is
the one concrete implementation; API version differences (request shape of the
search endpoint, path prefix) are handled inside it. Decorators add circuit
breaking (CircuitBreakerClient) and detail memoization (CachedClient).

Every request passes through a RateLimiter, which spaces requests to the
configured requests-per-second ceiling and injects an extra pause every N
requests. Retries follow this policy:

  - 429: wait max(Retry-After or the fallback, base * 2^attempt)
  - 5xx and network failures: wait base * 2^attempt
  - 401/403/404 and other 4xx: fail immediately, never retried
  - retries exhausted: syncerr.ErrRetriesExhausted

Wire responses are converted into models records on receipt; nothing outside
this package sees tracker DTOs.
*/
package tracker

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/tomtom215/trackersync/internal/models"
)

// Resource selects the remote collection a request targets.
type Resource string

const (
	ResourceProjects Resource = "projects"
	ResourceIssues   Resource = "issues"
	ResourceWorklogs Resource = "worklogs"
	ResourceUsers    Resource = "users"
)

// ErrUnsupported is returned for resource/operation combinations the tracker does not offer.
var ErrUnsupported = errors.New("operation not supported for resource")

// Query filters a paginated fetch.
type Query struct {
	// ProjectKey scopes issue searches.
	ProjectKey string
	// IssueKey selects the parent issue for worklog listings.
	IssueKey string
	// Since and Until bound the remote "updated" timestamp.
	Since *time.Time
	Until *time.Time
	// Location is the zone Since and Until are rendered in. Nil lets the
	// client use the tracker's profile zone.
	Location *time.Location
	// OnlyWithWorklogs restricts issue searches to issues with logged time.
	OnlyWithWorklogs bool
	// Fields limits the returned issue fields. Empty means the default set.
	Fields []string
	// PageSize is the requested page length. Zero uses the client default.
	PageSize int
	// CountOnly asks for the total without any records.
	CountOnly bool
}

// Page is one page of a paginated response.
type Page struct {
	Records       []models.Record
	StartAt       int
	PageSize      int
	Total         int
	NextPageToken string
}

// Client is the contract the sync engine consumes.
type Client interface {
	// FetchPage returns one page. pageToken is the opaque token returned in the
	// previous Page, or "" for the first page.
	FetchPage(ctx context.Context, resource Resource, q Query, pageToken string) (*Page, error)

	// FetchDetail returns a single record by remote key or identifier.
	FetchDetail(ctx context.Context, resource Resource, id string) (models.Record, error)

	// Ping verifies connectivity and credentials.
	Ping(ctx context.Context) error
}

// OffsetToken encodes a pagination offset as a page token.
func OffsetToken(offset int) string {
	if offset <= 0 {
		return ""
	}
	return strconv.Itoa(offset)
}

// ParseOffsetToken decodes a page token produced by OffsetToken.
func ParseOffsetToken(token string) (int, error) {
	if token == "" {
		return 0, nil
	}
	offset, err := strconv.Atoi(token)
	if err != nil || offset < 0 {
		return 0, errors.New("invalid page token " + strconv.Quote(token))
	}
	return offset, nil
}
