// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package tracker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/trackersync/internal/clock"
	"github.com/tomtom215/trackersync/internal/logging"
	"github.com/tomtom215/trackersync/internal/metrics"
	"github.com/tomtom215/trackersync/internal/models"
	"github.com/tomtom215/trackersync/internal/syncerr"
)

// maxErrorBodySize limits how much of an error response body is read.
const maxErrorBodySize = 64 * 1024

// readBodyForError reads at most maxErrorBodySize bytes for error reporting.
func readBodyForError(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return "(failed to read response body)"
	}
	if len(body) == maxErrorBodySize {
		return string(body) + "\n... (truncated)"
	}
	return string(body)
}

// Options configures an HTTPClient.
type Options struct {
	BaseURL    string
	Credential string
	APIVersion APIVersion

	RequestsPerSecond float64
	BurstEvery        int
	BurstPause        time.Duration

	MaxRetries        int
	RetryBaseDelay    time.Duration
	DefaultRetryAfter time.Duration
	RequestTimeout    time.Duration
	PageSize          int

	// Location renders JQL date literals. Nil reads the credential's
	// profile zone from the tracker on first use.
	Location *time.Location

	Clock      clock.Clock
	HTTPClient *http.Client
	Limiter    *RateLimiter
}

func (o *Options) applyDefaults() {
	if !o.APIVersion.valid() {
		o.APIVersion = APIv3
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = time.Second
	}
	if o.DefaultRetryAfter <= 0 {
		o.DefaultRetryAfter = 60 * time.Second
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 30 * time.Second
	}
	if o.PageSize <= 0 {
		o.PageSize = 50
	}
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
}

// HTTPClient talks to the tracker REST API.
//
// Thread Safety: safe for concurrent use; all callers share one RateLimiter.
type HTTPClient struct {
	baseURL    string
	credential string
	version    APIVersion
	http       *http.Client
	limiter    *RateLimiter
	clock      clock.Clock

	maxRetries        int
	retryBaseDelay    time.Duration
	defaultRetryAfter time.Duration
	pageSize          int

	zoneMu sync.Mutex
	zone   *time.Location
}

// NewHTTPClient creates a tracker client from opts.
func NewHTTPClient(opts Options) (*HTTPClient, error) {
	opts.applyDefaults()

	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid tracker base URL %q", opts.BaseURL)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.RequestTimeout}
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = NewRateLimiter(opts.RequestsPerSecond, opts.BurstEvery, opts.BurstPause, opts.Clock)
	}

	return &HTTPClient{
		baseURL:           base.String(),
		credential:        opts.Credential,
		version:           opts.APIVersion,
		http:              httpClient,
		limiter:           limiter,
		clock:             opts.Clock,
		maxRetries:        opts.MaxRetries,
		retryBaseDelay:    opts.RetryBaseDelay,
		defaultRetryAfter: opts.DefaultRetryAfter,
		pageSize:          opts.PageSize,
		zone:              opts.Location,
	}, nil
}

// PageSize returns the default page length.
func (c *HTTPClient) PageSize() int { return c.pageSize }

// Ping verifies connectivity and credentials against the server-info endpoint.
func (c *HTTPClient) Ping(ctx context.Context) error {
	var info serverInfoResponse
	if err := c.do(ctx, "server_info", http.MethodGet, c.version.prefix()+"/serverInfo", nil, nil, &info); err != nil {
		return fmt.Errorf("failed to ping tracker: %w", err)
	}
	logging.Ctx(ctx).Debug().Str("version", info.Version).Str("deployment", info.DeploymentType).Msg("Tracker reachable")
	if _, err := c.Location(ctx); err != nil {
		return fmt.Errorf("failed to ping tracker: %w", err)
	}
	return nil
}

// FetchPage implements Client.
func (c *HTTPClient) FetchPage(ctx context.Context, resource Resource, q Query, pageToken string) (*Page, error) {
	offset, err := ParseOffsetToken(pageToken)
	if err != nil {
		return nil, syncerr.Permanent(string(resource), err)
	}
	size := q.PageSize
	if size <= 0 {
		size = c.pageSize
	}
	if q.CountOnly {
		size = 0
	}

	switch resource {
	case ResourceIssues:
		return c.searchIssues(ctx, q, offset, size)
	case ResourceWorklogs:
		return c.listWorklogs(ctx, q, offset, size)
	case ResourceProjects:
		return c.searchProjects(ctx, offset, size)
	default:
		return nil, syncerr.Permanent(string(resource), fmt.Errorf("fetch page: %w", ErrUnsupported))
	}
}

// FetchDetail implements Client.
func (c *HTTPClient) FetchDetail(ctx context.Context, resource Resource, id string) (models.Record, error) {
	if id == "" {
		return nil, syncerr.Permanent(string(resource), errors.New("empty identifier"))
	}
	prefix := c.version.prefix()

	switch resource {
	case ResourceProjects:
		var dto projectDTO
		if err := c.do(ctx, string(resource), http.MethodGet, prefix+"/project/"+url.PathEscape(id), nil, nil, &dto); err != nil {
			return nil, err
		}
		return mapProject(&dto), nil
	case ResourceIssues:
		params := url.Values{"fields": {strings.Join(defaultIssueFields, ",")}}
		var dto issueDTO
		if err := c.do(ctx, string(resource), http.MethodGet, prefix+"/issue/"+url.PathEscape(id), params, nil, &dto); err != nil {
			return nil, err
		}
		return mapIssue(&dto), nil
	case ResourceUsers:
		params := url.Values{"accountId": {id}}
		if c.version == APIv2 {
			params = url.Values{"username": {id}}
		}
		var dto userDTO
		if err := c.do(ctx, string(resource), http.MethodGet, prefix+"/user", params, nil, &dto); err != nil {
			return nil, err
		}
		return mapUser(&dto), nil
	default:
		return nil, syncerr.Permanent(string(resource), fmt.Errorf("fetch detail: %w", ErrUnsupported))
	}
}

func (c *HTTPClient) searchIssues(ctx context.Context, q Query, offset, size int) (*Page, error) {
	fields := q.Fields
	if len(fields) == 0 {
		fields = defaultIssueFields
	}
	if q.Location == nil && (q.Since != nil || q.Until != nil) {
		loc, err := c.Location(ctx)
		if err != nil {
			return nil, err
		}
		q.Location = loc
	}
	jql := BuildJQL(q)
	path := c.version.prefix() + "/search"

	var resp searchResponse
	var err error
	if c.version == APIv2 {
		params := url.Values{
			"jql":        {jql},
			"startAt":    {strconv.Itoa(offset)},
			"maxResults": {strconv.Itoa(size)},
			"fields":     {strings.Join(fields, ",")},
		}
		err = c.do(ctx, string(ResourceIssues), http.MethodGet, path, params, nil, &resp)
	} else {
		body := searchRequest{JQL: jql, StartAt: offset, MaxResults: size, Fields: fields}
		err = c.do(ctx, string(ResourceIssues), http.MethodPost, path, nil, body, &resp)
	}
	if err != nil {
		return nil, err
	}

	records := make([]models.Record, 0, len(resp.Issues))
	for i := range resp.Issues {
		records = append(records, mapIssue(&resp.Issues[i]))
	}
	return newPage(records, offset, size, resp.Total), nil
}

func (c *HTTPClient) listWorklogs(ctx context.Context, q Query, offset, size int) (*Page, error) {
	if q.IssueKey == "" {
		return nil, syncerr.Permanent(string(ResourceWorklogs), errors.New("worklog listing requires an issue key"))
	}
	params := url.Values{
		"startAt":    {strconv.Itoa(offset)},
		"maxResults": {strconv.Itoa(size)},
	}

	var resp worklogPageResponse
	path := c.version.prefix() + "/issue/" + url.PathEscape(q.IssueKey) + "/worklog"
	if err := c.do(ctx, string(ResourceWorklogs), http.MethodGet, path, params, nil, &resp); err != nil {
		return nil, err
	}

	records := make([]models.Record, 0, len(resp.Worklogs))
	for i := range resp.Worklogs {
		records = append(records, mapWorklog(&resp.Worklogs[i], q.IssueKey))
	}
	return newPage(records, offset, size, resp.Total), nil
}

func (c *HTTPClient) searchProjects(ctx context.Context, offset, size int) (*Page, error) {
	params := url.Values{
		"startAt":    {strconv.Itoa(offset)},
		"maxResults": {strconv.Itoa(size)},
	}
	var resp projectSearchResponse
	if err := c.do(ctx, string(ResourceProjects), http.MethodGet, c.version.prefix()+"/project/search", params, nil, &resp); err != nil {
		return nil, err
	}

	records := make([]models.Record, 0, len(resp.Values))
	for i := range resp.Values {
		records = append(records, mapProject(&resp.Values[i]))
	}
	return newPage(records, offset, size, resp.Total), nil
}

func newPage(records []models.Record, offset, size, total int) *Page {
	page := &Page{Records: records, StartAt: offset, PageSize: size, Total: total}
	next := offset + len(records)
	if size > 0 && len(records) == size && next < total {
		page.NextPageToken = OffsetToken(next)
	}
	return page
}

// do sends one logical request, retrying transient failures.
func (c *HTTPClient) do(ctx context.Context, resource, method, path string, params url.Values, body, out interface{}) error {
	op := method + " " + path

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return syncerr.Permanent(op, fmt.Errorf("encode request: %w", err))
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		delay, reason, err := c.attempt(ctx, resource, method, path, params, payload, out, attempt)
		if err == nil {
			return nil
		}
		var classified *syncerr.Error
		if !errors.As(err, &classified) || !classified.Retryable {
			return err
		}
		lastErr = err

		if attempt == c.maxRetries {
			break
		}

		logging.Ctx(ctx).Warn().
			Err(err).
			Str("operation", op).
			Int("attempt", attempt+1).
			Dur("backoff", delay).
			Msg("Tracker request failed, retrying")
		metrics.RecordRetry(reason)

		if err := c.clock.Sleep(ctx, delay); err != nil {
			return err
		}
	}

	return syncerr.Exhausted(op, c.maxRetries+1, lastErr)
}

// attempt performs a single HTTP exchange. On a retryable failure it returns
// the delay to wait before the next attempt.
func (c *HTTPClient) attempt(ctx context.Context, resource, method, path string, params url.Values, payload []byte, out interface{}, attempt int) (time.Duration, string, error) {
	op := method + " " + path
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	var bodyReader io.Reader = http.NoBody
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return 0, "", syncerr.Permanent(op, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.credential != "" {
		req.Header.Set("Authorization", authorizationHeader(c.credential))
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordTrackerRequest(resource, 0, time.Since(start))
		if ctx.Err() != nil {
			return 0, "", ctx.Err()
		}
		return c.backoff(attempt), "network", syncerr.Transient(op, fmt.Errorf("HTTP request failed: %w", err))
	}
	defer resp.Body.Close()
	metrics.RecordTrackerRequest(resource, resp.StatusCode, time.Since(start))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return 0, "", nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return 0, "", syncerr.Permanent(op, fmt.Errorf("failed to decode response: %w", err))
		}
		return 0, "", nil

	case resp.StatusCode == http.StatusTooManyRequests:
		wait := parseRetryAfter(resp.Header.Get("Retry-After"), c.clock.Now(), c.defaultRetryAfter)
		if b := c.backoff(attempt); b > wait {
			wait = b
		}
		return wait, "rate_limited", syncerr.FromStatus(op, resp.StatusCode, readBodyForError(resp.Body))

	case resp.StatusCode >= 500:
		return c.backoff(attempt), "server_error", syncerr.FromStatus(op, resp.StatusCode, readBodyForError(resp.Body))

	default:
		return 0, "", syncerr.FromStatus(op, resp.StatusCode, readBodyForError(resp.Body))
	}
}

// backoff returns base * 2^attempt.
func (c *HTTPClient) backoff(attempt int) time.Duration {
	if attempt > 16 {
		attempt = 16
	}
	return c.retryBaseDelay * time.Duration(1<<uint(attempt))
}

// parseRetryAfter reads an RFC 9110 Retry-After value (delta seconds or an
// HTTP date), returning fallback when the header is absent or unparseable.
func parseRetryAfter(value string, now time.Time, fallback time.Duration) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
		return 0
	}
	return fallback
}

// authorizationHeader passes the credential through unchanged when it already
// names a scheme, and treats a bare token as a bearer token.
func authorizationHeader(credential string) string {
	if strings.ContainsRune(credential, ' ') {
		return credential
	}
	return "Bearer " + credential
}

var _ Client = (*HTTPClient)(nil)
