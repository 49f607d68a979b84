// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package tracker

import (
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Wire shapes of the tracker REST API. Unexported: mapper.go converts them to
// models records immediately on receipt.

type searchResponse struct {
	StartAt    int        `json:"startAt"`
	MaxResults int        `json:"maxResults"`
	Total      int        `json:"total"`
	Issues     []issueDTO `json:"issues"`
}

type issueDTO struct {
	ID     string         `json:"id"`
	Key    string         `json:"key"`
	Fields issueFieldsDTO `json:"fields"`
}

type issueFieldsDTO struct {
	Summary     string          `json:"summary"`
	Description json.RawMessage `json:"description"`
	Status      *namedDTO       `json:"status"`
	IssueType   *namedDTO       `json:"issuetype"`
	Priority    *namedDTO       `json:"priority"`
	Assignee    *userDTO        `json:"assignee"`
	Reporter    *userDTO        `json:"reporter"`
	Project     *projectDTO     `json:"project"`
	TimeSpent   *int64          `json:"timespent"`
	Created     trackerTime     `json:"created"`
	Updated     trackerTime     `json:"updated"`
}

type namedDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type userDTO struct {
	AccountID    string `json:"accountId"`
	Name         string `json:"name"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
	Active       bool   `json:"active"`
	TimeZone     string `json:"timeZone"`
}

// id returns the account identifier, falling back to the legacy username
// used by self-hosted deployments.
func (u *userDTO) id() string {
	if u == nil {
		return ""
	}
	if u.AccountID != "" {
		return u.AccountID
	}
	return u.Name
}

type projectDTO struct {
	ID             string   `json:"id"`
	Key            string   `json:"key"`
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Lead           *userDTO `json:"lead"`
	ProjectTypeKey string   `json:"projectTypeKey"`
}

type projectSearchResponse struct {
	StartAt    int          `json:"startAt"`
	MaxResults int          `json:"maxResults"`
	Total      int          `json:"total"`
	IsLast     bool         `json:"isLast"`
	Values     []projectDTO `json:"values"`
}

type worklogPageResponse struct {
	StartAt    int          `json:"startAt"`
	MaxResults int          `json:"maxResults"`
	Total      int          `json:"total"`
	Worklogs   []worklogDTO `json:"worklogs"`
}

type worklogDTO struct {
	ID               string          `json:"id"`
	IssueID          string          `json:"issueId"`
	Author           *userDTO        `json:"author"`
	Comment          json.RawMessage `json:"comment"`
	Started          trackerTime     `json:"started"`
	TimeSpentSeconds int64           `json:"timeSpentSeconds"`
	Updated          trackerTime     `json:"updated"`
}

type serverInfoResponse struct {
	Version        string `json:"version"`
	DeploymentType string `json:"deploymentType"`
	BaseURL        string `json:"baseUrl"`
}

type searchRequest struct {
	JQL        string   `json:"jql"`
	StartAt    int      `json:"startAt"`
	MaxResults int      `json:"maxResults"`
	Fields     []string `json:"fields,omitempty"`
}

// trackerTime accepts the timestamp layouts the tracker emits.
type trackerTime struct {
	time.Time
}

var trackerTimeLayouts = []string{
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
	time.RFC3339Nano,
	time.RFC3339,
}

func (t *trackerTime) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	var lastErr error
	for _, layout := range trackerTimeLayouts {
		parsed, err := time.Parse(layout, s)
		if err == nil {
			t.Time = parsed.UTC()
			return nil
		}
		lastErr = err
	}
	return lastErr
}
