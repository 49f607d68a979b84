// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/trackersync/internal/checkpoint"
	"github.com/tomtom215/trackersync/internal/models"
	"github.com/tomtom215/trackersync/internal/storage"
	"github.com/tomtom215/trackersync/internal/syncengine"
)

const maxResponseBytes = 8 << 20

// RemoteError is an error envelope returned by the server.
type RemoteError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s (HTTP %d)", e.Code, e.Message, e.StatusCode)
}

type envelope struct {
	Status string           `json:"status"`
	Data   json.RawMessage  `json:"data"`
	Error  *models.APIError `json:"error"`
}

type resumeBody struct {
	Run  *models.SyncRun  `json:"run"`
	Plan *checkpoint.Plan `json:"plan"`
}

// remoteBackend calls a running server's HTTP API. Runs and recoveries
// are requested with wait=true so that commands report the final state.
type remoteBackend struct {
	baseURL string
	http    *http.Client
}

func newRemote(server string, client *http.Client) (*remoteBackend, error) {
	u, err := url.Parse(strings.TrimRight(server, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q", server)
	}
	if client == nil {
		client = &http.Client{}
	}
	return &remoteBackend{baseURL: u.String() + "/api/v1", http: client}, nil
}

func (b *remoteBackend) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	target := b.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &RemoteError{StatusCode: resp.StatusCode, Code: "INVALID_RESPONSE", Message: strings.TrimSpace(string(raw))}
	}
	if resp.StatusCode >= http.StatusBadRequest || env.Error != nil {
		rerr := &RemoteError{StatusCode: resp.StatusCode, Code: "HTTP_ERROR", Message: http.StatusText(resp.StatusCode)}
		if env.Error != nil {
			rerr.Code, rerr.Message = env.Error.Code, env.Error.Message
		}
		return rerr
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (b *remoteBackend) Run(ctx context.Context, scope models.Scope) (*models.SyncRun, error) {
	var run models.SyncRun
	if err := b.do(ctx, http.MethodPost, "/runs", url.Values{"wait": {"true"}}, scope, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (b *remoteBackend) Resume(ctx context.Context, runID string) (*models.SyncRun, *checkpoint.Plan, error) {
	var out resumeBody
	if err := b.do(ctx, http.MethodPost, "/runs/"+url.PathEscape(runID)+"/resume", url.Values{"wait": {"true"}}, nil, &out); err != nil {
		return nil, nil, err
	}
	return out.Run, out.Plan, nil
}

func (b *remoteBackend) ResumePlan(ctx context.Context, runID string) (*checkpoint.Plan, error) {
	var out resumeBody
	if err := b.do(ctx, http.MethodGet, "/runs/"+url.PathEscape(runID)+"/resume", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Plan, nil
}

func (b *remoteBackend) Status(ctx context.Context, runID string) (*models.SyncRun, error) {
	var run models.SyncRun
	if err := b.do(ctx, http.MethodGet, "/runs/"+url.PathEscape(runID), nil, nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (b *remoteBackend) Logs(ctx context.Context, runID string) ([]*models.SyncLogEntry, error) {
	var entries []*models.SyncLogEntry
	if err := b.do(ctx, http.MethodGet, "/runs/"+url.PathEscape(runID)+"/logs", nil, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (b *remoteBackend) Cancel(ctx context.Context, runID string) (*models.SyncRun, error) {
	var run models.SyncRun
	if err := b.do(ctx, http.MethodPost, "/runs/"+url.PathEscape(runID)+"/cancel", nil, nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (b *remoteBackend) ListRuns(ctx context.Context, filter storage.RunFilter) ([]*models.SyncRun, error) {
	q := url.Values{}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		q.Set("status", strings.Join(statuses, ","))
	}
	var runs []*models.SyncRun
	if err := b.do(ctx, http.MethodGet, "/runs", q, nil, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

func (b *remoteBackend) ListStale(ctx context.Context, window time.Duration) ([]syncengine.StaleRun, error) {
	q := url.Values{}
	if window > 0 {
		q.Set("window", window.String())
	}
	var stale []syncengine.StaleRun
	if err := b.do(ctx, http.MethodGet, "/runs/stale", q, nil, &stale); err != nil {
		return nil, err
	}
	return stale, nil
}

func (b *remoteBackend) PurgeCheckpoints(context.Context, time.Duration) (int, error) {
	return 0, ErrLocalOnly
}

func (b *remoteBackend) Close() error {
	b.http.CloseIdleConnections()
	return nil
}
