// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package tracker

import (
	"fmt"
	"strings"
	"time"
)

// jqlTimeLayout is the minute-precision format accepted in JQL date clauses.
const jqlTimeLayout = "2006/01/02 15:04"

// defaultIssueFields is requested when Query.Fields is empty.
var defaultIssueFields = []string{
	"summary", "description", "status", "issuetype", "priority",
	"assignee", "reporter", "project", "timespent", "created", "updated",
}

// BuildJQL renders the issue search filter for q. Results are always ordered
// by remote update time so incremental windows advance monotonically.
//
// Date literals carry no zone: the tracker reads them in the searching
// user's profile zone, so they are rendered in q.Location (UTC when nil).
func BuildJQL(q Query) string {
	loc := q.Location
	if loc == nil {
		loc = time.UTC
	}
	var clauses []string
	if q.ProjectKey != "" {
		clauses = append(clauses, fmt.Sprintf("project = %s", quoteJQL(q.ProjectKey)))
	}
	if q.Since != nil {
		clauses = append(clauses, fmt.Sprintf(`updated >= "%s"`, q.Since.In(loc).Format(jqlTimeLayout)))
	}
	if q.Until != nil {
		clauses = append(clauses, fmt.Sprintf(`updated <= "%s"`, q.Until.In(loc).Format(jqlTimeLayout)))
	}
	if q.OnlyWithWorklogs {
		clauses = append(clauses, "timespent > 0")
	}
	return strings.Join(clauses, " AND ") + " ORDER BY updated ASC, key ASC"
}

func quoteJQL(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}

// APIVersion selects the tracker REST API generation.
type APIVersion int

const (
	// APIv2 sends searches as GET with query parameters and returns plain-text bodies.
	APIv2 APIVersion = 2
	// APIv3 sends searches as POST with a JSON body and returns rich-text documents.
	APIv3 APIVersion = 3
)

func (v APIVersion) prefix() string {
	return fmt.Sprintf("/rest/api/%d", v)
}

func (v APIVersion) valid() bool {
	return v == APIv2 || v == APIv3
}
