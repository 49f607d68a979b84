// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package tracker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/trackersync/internal/clock"
	"github.com/tomtom215/trackersync/internal/models"
	"github.com/tomtom215/trackersync/internal/syncerr"
)

func checkIntEqual(t *testing.T, fieldName string, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("%s: expected %d, got %d", fieldName, want, got)
	}
}

func checkStringEqual(t *testing.T, fieldName, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: expected %q, got %q", fieldName, want, got)
	}
}

func newTestClient(t *testing.T, serverURL string, version APIVersion, maxRetries int) (*HTTPClient, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(epoch)
	client, err := NewHTTPClient(Options{
		BaseURL:           serverURL,
		Credential:        "token-123",
		APIVersion:        version,
		MaxRetries:        maxRetries,
		RetryBaseDelay:    time.Second,
		DefaultRetryAfter: 60 * time.Second,
		PageSize:          25,
		Location:          time.UTC,
		Clock:             clk,
	})
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}
	return client, clk
}

func TestNewHTTPClient_InvalidURL(t *testing.T) {
	if _, err := NewHTTPClient(Options{BaseURL: "not a url"}); err == nil {
		t.Error("expected error for invalid base URL")
	}
}

func TestHTTPClient_RetryAfterBackoff(t *testing.T) {
	var calls atomic.Int32
	retryAfter := []string{"5", "10", "20", "40"}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		w.Header().Set("Retry-After", retryAfter[n-1])
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, clk := newTestClient(t, server.URL, APIv2, 3)
	_, err := client.FetchDetail(context.Background(), ResourceProjects, "OPS")

	if !errors.Is(err, syncerr.ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}
	checkIntEqual(t, "attempts", int(calls.Load()), 4)

	sleeps := clk.Sleeps()
	want := []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second}
	if len(sleeps) != len(want) {
		t.Fatalf("expected %d sleeps, got %v", len(want), sleeps)
	}
	for i := range want {
		if sleeps[i] < want[i] {
			t.Errorf("sleep %d: expected at least %v, got %v", i, want[i], sleeps[i])
		}
	}
}

func TestHTTPClient_RetryAfterFallback(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"id":"10","key":"OPS","name":"Operations"}`))
	}))
	defer server.Close()

	client, clk := newTestClient(t, server.URL, APIv3, 3)
	record, err := client.FetchDetail(context.Background(), ResourceProjects, "OPS")
	if err != nil {
		t.Fatalf("FetchDetail: %v", err)
	}
	checkStringEqual(t, "project key", record.(*models.Project).Key, "OPS")

	if sleeps := clk.Sleeps(); len(sleeps) != 1 || sleeps[0] != 60*time.Second {
		t.Errorf("expected a single 60s fallback wait, got %v", sleeps)
	}
}

func TestHTTPClient_PermanentErrorsNotRetried(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound} {
		t.Run(strconv.Itoa(status), func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				http.Error(w, "nope", status)
			}))
			defer server.Close()

			client, clk := newTestClient(t, server.URL, APIv3, 5)
			_, err := client.FetchDetail(context.Background(), ResourceProjects, "OPS")

			var classified *syncerr.Error
			if !errors.As(err, &classified) {
				t.Fatalf("expected classified error, got %v", err)
			}
			if classified.Retryable || classified.Category != syncerr.CategoryPermanent {
				t.Errorf("expected permanent error, got %+v", classified)
			}
			checkIntEqual(t, "status", classified.StatusCode, status)
			checkIntEqual(t, "attempts", int(calls.Load()), 1)
			checkIntEqual(t, "sleeps", len(clk.Sleeps()), 0)
		})
	}
}

func TestHTTPClient_ServerErrorExponentialBackoff(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"version":"9.0","deploymentType":"Cloud"}`))
	}))
	defer server.Close()

	client, clk := newTestClient(t, server.URL, APIv3, 5)
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	got := clk.Sleeps()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("backoff sequence = %v, want %v", got, want)
	}
}

func TestHTTPClient_NetworkErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client, _ := newTestClient(t, url, APIv3, 1)
	err := client.Ping(context.Background())
	if !errors.Is(err, syncerr.ErrRetriesExhausted) {
		t.Errorf("expected exhausted transient error, got %v", err)
	}
}

func TestHTTPClient_SearchRequestShape(t *testing.T) {
	since := time.Date(2026, 2, 1, 8, 30, 0, 0, time.UTC)

	t.Run("v2 uses GET query parameters", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet || r.URL.Path != "/rest/api/2/search" {
				t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			}
			jql := r.URL.Query().Get("jql")
			if !strings.Contains(jql, `project = "OPS"`) || !strings.Contains(jql, `updated >= "2026/02/01 08:30"`) {
				t.Errorf("unexpected jql %q", jql)
			}
			checkStringEqual(t, "startAt", r.URL.Query().Get("startAt"), "25")
			checkStringEqual(t, "authorization", r.Header.Get("Authorization"), "Bearer token-123")
			_, _ = w.Write([]byte(`{"startAt":25,"maxResults":25,"total":26,"issues":[
				{"id":"100","key":"OPS-26","fields":{"summary":"Fix login","description":"plain text","status":{"name":"Done"},"timespent":3600,"updated":"2026-02-02T10:00:00.000+0000"}}]}`))
		}))
		defer server.Close()

		client, _ := newTestClient(t, server.URL, APIv2, 0)
		page, err := client.FetchPage(context.Background(), ResourceIssues, Query{ProjectKey: "OPS", Since: &since}, OffsetToken(25))
		if err != nil {
			t.Fatalf("FetchPage: %v", err)
		}
		checkIntEqual(t, "records", len(page.Records), 1)
		checkIntEqual(t, "total", page.Total, 26)
		checkStringEqual(t, "next token", page.NextPageToken, "")

		issue := page.Records[0].(*models.Issue)
		checkStringEqual(t, "project key", issue.ProjectKey, "OPS")
		checkStringEqual(t, "description", issue.Description, "plain text")
		if issue.TimeSpentSeconds != 3600 {
			t.Errorf("time spent = %d", issue.TimeSpentSeconds)
		}
	})

	t.Run("v3 uses POST body and rich text", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || r.URL.Path != "/rest/api/3/search" {
				t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			}
			var body searchRequest
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			checkIntEqual(t, "maxResults", body.MaxResults, 0)
			if !strings.Contains(body.JQL, "timespent > 0") {
				t.Errorf("expected worklog filter in %q", body.JQL)
			}
			_, _ = w.Write([]byte(`{"startAt":0,"maxResults":0,"total":412,"issues":[]}`))
		}))
		defer server.Close()

		client, _ := newTestClient(t, server.URL, APIv3, 0)
		total, err := Count(context.Background(), client, ResourceIssues, Query{ProjectKey: "OPS", OnlyWithWorklogs: true})
		if err != nil {
			t.Fatalf("Count: %v", err)
		}
		checkIntEqual(t, "total", total, 412)
	})
}

func TestHTTPClient_Worklogs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		checkStringEqual(t, "path", r.URL.Path, "/rest/api/3/issue/OPS-1/worklog")
		_, _ = w.Write([]byte(`{"startAt":0,"maxResults":25,"total":1,"worklogs":[{
			"id":"9001","issueId":"100",
			"author":{"accountId":"acc-1","displayName":"Alice PM"},
			"comment":{"type":"doc","content":[{"type":"paragraph","content":[{"type":"text","text":"Sprint planning"}]}]},
			"started":"2026-02-02T09:00:00.000+0100","timeSpentSeconds":1800}]}`))
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL, APIv3, 0)
	page, err := client.FetchPage(context.Background(), ResourceWorklogs, Query{IssueKey: "OPS-1"}, "")
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	wl := page.Records[0].(*models.Worklog)
	checkStringEqual(t, "comment", wl.Comment, "Sprint planning")
	checkStringEqual(t, "author", wl.AuthorAccountID, "acc-1")
	checkStringEqual(t, "issue", wl.IssueKey, "OPS-1")
	if !wl.Started.Equal(time.Date(2026, 2, 2, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("started = %v", wl.Started)
	}
}

func TestPaginate_OffsetAndTotal(t *testing.T) {
	const total = 73
	var requests atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		start, _ := strconv.Atoi(r.URL.Query().Get("startAt"))
		size, _ := strconv.Atoi(r.URL.Query().Get("maxResults"))
		end := start + size
		if end > total {
			end = total
		}
		issues := make([]map[string]interface{}, 0, end-start)
		for i := start; i < end; i++ {
			issues = append(issues, map[string]interface{}{
				"id":     strconv.Itoa(1000 + i),
				"key":    fmt.Sprintf("OPS-%d", i+1),
				"fields": map[string]interface{}{"summary": "s", "status": map[string]string{"name": "Open"}},
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"startAt": start, "maxResults": size, "total": total, "issues": issues,
		})
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL, APIv2, 0)

	var pages, records int
	err := Paginate(context.Background(), client, ResourceIssues, Query{ProjectKey: "OPS", PageSize: 25}, 0, 0,
		func(page *Page, offset int) error {
			pages++
			records += len(page.Records)
			return nil
		})
	if err != nil {
		t.Fatalf("Paginate: %v", err)
	}
	checkIntEqual(t, "pages", pages, 3)
	checkIntEqual(t, "records", records, total)
	checkIntEqual(t, "requests", int(requests.Load()), 3)

	// Resuming from offset 40 fetches only the remainder.
	requests.Store(0)
	var firstOffset = -1
	records = 0
	err = Paginate(context.Background(), client, ResourceIssues, Query{ProjectKey: "OPS", PageSize: 25}, 40, 0,
		func(page *Page, offset int) error {
			if firstOffset < 0 {
				firstOffset = offset
			}
			records += len(page.Records)
			return nil
		})
	if err != nil {
		t.Fatalf("Paginate resume: %v", err)
	}
	checkIntEqual(t, "first offset", firstOffset, 40)
	checkIntEqual(t, "resumed records", records, total-40)
}

type loopingClient struct{}

func (loopingClient) Ping(context.Context) error { return nil }
func (loopingClient) FetchDetail(context.Context, Resource, string) (models.Record, error) {
	return nil, ErrUnsupported
}
func (loopingClient) FetchPage(_ context.Context, _ Resource, q Query, _ string) (*Page, error) {
	// Always claims more data: a pathological tracker.
	return &Page{Records: []models.Record{&models.Issue{}}, PageSize: 1, Total: 1 << 30}, nil
}

func TestPaginate_IterationCeiling(t *testing.T) {
	err := Paginate(context.Background(), loopingClient{}, ResourceIssues, Query{PageSize: 1}, 0, 5,
		func(*Page, int) error { return nil })
	if !errors.Is(err, syncerr.ErrPaginationLimit) {
		t.Errorf("expected ErrPaginationLimit, got %v", err)
	}
}

func TestBuildJQL(t *testing.T) {
	since := time.Date(2026, 1, 15, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	got := BuildJQL(Query{ProjectKey: `A"B`, Since: &since, OnlyWithWorklogs: true})
	want := `project = "A\"B" AND updated >= "2026/01/15 11:00" AND timespent > 0 ORDER BY updated ASC, key ASC`
	checkStringEqual(t, "jql", got, want)
}

func TestBuildJQL_ProfileZone(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	since := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	until := time.Date(2026, 1, 16, 3, 30, 0, 0, time.UTC)

	got := BuildJQL(Query{ProjectKey: "OPS", Since: &since, Until: &until, Location: est})
	want := `project = "OPS" AND updated >= "2026/01/15 07:00" AND updated <= "2026/01/15 22:30" ORDER BY updated ASC, key ASC`
	checkStringEqual(t, "jql", got, want)
}

func TestHTTPClient_ProfileTimeZone(t *testing.T) {
	var profileHits atomic.Int32
	var jqls []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rest/api/3/myself":
			profileHits.Add(1)
			_, _ = w.Write([]byte(`{"accountId":"acc-1","timeZone":"America/New_York"}`))
		case "/rest/api/3/search":
			var body searchRequest
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode body: %v", err)
			}
			jqls = append(jqls, body.JQL)
			_, _ = w.Write([]byte(`{"startAt":0,"maxResults":25,"total":0,"issues":[]}`))
		default:
			t.Errorf("unexpected request %s", r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client, err := NewHTTPClient(Options{BaseURL: server.URL, APIVersion: APIv3, Clock: clock.NewFake(epoch)})
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}

	// 2026-07-01 is daylight time in New York: UTC-4.
	since := time.Date(2026, 7, 1, 14, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		if _, err := client.FetchPage(context.Background(), ResourceIssues, Query{ProjectKey: "OPS", Since: &since}, ""); err != nil {
			t.Fatalf("FetchPage: %v", err)
		}
	}

	checkIntEqual(t, "profile lookups", int(profileHits.Load()), 1)
	for _, jql := range jqls {
		if !strings.Contains(jql, `updated >= "2026/07/01 10:00"`) {
			t.Errorf("expected since in profile zone, got %q", jql)
		}
	}
}

func TestHTTPClient_ProfileTimeZoneFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"accountId":"acc-1","timeZone":"Not/AZone"}`))
	}))
	defer server.Close()

	client, err := NewHTTPClient(Options{BaseURL: server.URL, APIVersion: APIv3, Clock: clock.NewFake(epoch)})
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}
	loc, err := client.Location(context.Background())
	if err != nil {
		t.Fatalf("Location: %v", err)
	}
	if loc != time.UTC {
		t.Errorf("location = %v, want UTC", loc)
	}
}

func TestLoadLocation(t *testing.T) {
	if loc, err := LoadLocation(""); err != nil || loc != nil {
		t.Errorf("LoadLocation(\"\") = %v, %v; want nil, nil", loc, err)
	}
	if loc, err := LoadLocation("Europe/Berlin"); err != nil || loc.String() != "Europe/Berlin" {
		t.Errorf("LoadLocation(Europe/Berlin) = %v, %v", loc, err)
	}
	if _, err := LoadLocation("Mars/Olympus"); err == nil {
		t.Error("expected error for unknown zone")
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", time.Minute},
		{"7", 7 * time.Second},
		{"garbage", time.Minute},
		{now.Add(30 * time.Second).Format(http.TimeFormat), 30 * time.Second},
	}
	for _, tt := range tests {
		if got := parseRetryAfter(tt.value, now, time.Minute); got != tt.want {
			t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}
