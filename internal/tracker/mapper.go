// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package tracker

import (
	"strings"

	"github.com/tomtom215/trackersync/internal/models"
	"github.com/tomtom215/trackersync/internal/richtext"
)

func mapProject(p *projectDTO) *models.Project {
	project := &models.Project{
		RemoteID:    p.ID,
		Key:         p.Key,
		Name:        p.Name,
		Description: strings.TrimSpace(p.Description),
		ProjectType: p.ProjectTypeKey,
	}
	if p.Lead != nil {
		project.LeadAccountID = p.Lead.id()
	}
	return project
}

func mapIssue(i *issueDTO) *models.Issue {
	f := &i.Fields
	issue := &models.Issue{
		RemoteID:      i.ID,
		Key:           i.Key,
		Summary:       f.Summary,
		Description:   richtext.Flatten(f.Description),
		AssigneeID:    f.Assignee.id(),
		ReporterID:    f.Reporter.id(),
		RemoteCreated: f.Created.Time,
		RemoteUpdated: f.Updated.Time,
	}
	if f.Status != nil {
		issue.Status = f.Status.Name
	}
	if f.IssueType != nil {
		issue.IssueType = f.IssueType.Name
	}
	if f.Priority != nil {
		issue.Priority = f.Priority.Name
	}
	if f.TimeSpent != nil {
		issue.TimeSpentSeconds = *f.TimeSpent
	}
	if f.Project != nil {
		issue.ProjectKey = f.Project.Key
	} else if idx := strings.LastIndex(i.Key, "-"); idx > 0 {
		issue.ProjectKey = i.Key[:idx]
	}
	return issue
}

func mapWorklog(w *worklogDTO, issueKey string) *models.Worklog {
	worklog := &models.Worklog{
		RemoteID:         w.ID,
		IssueKey:         issueKey,
		AuthorAccountID:  w.Author.id(),
		Comment:          richtext.Flatten(w.Comment),
		Started:          w.Started.Time,
		TimeSpentSeconds: w.TimeSpentSeconds,
		RemoteUpdated:    w.Updated.Time,
	}
	if w.Author != nil {
		worklog.AuthorName = w.Author.DisplayName
	}
	return worklog
}

func mapUser(u *userDTO) *models.User {
	return &models.User{
		RemoteID:     u.id(),
		DisplayName:  u.DisplayName,
		EmailAddress: u.EmailAddress,
		Active:       u.Active,
		TimeZone:     u.TimeZone,
	}
}
