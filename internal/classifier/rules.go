// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package classifier

import (
	"regexp"
	"sort"
	"strings"
)

// Category is a worklog resource type.
type Category string

const (
	ProjectManager  Category = "project_manager"
	TeamLead        Category = "team_lead"
	Designer        Category = "designer"
	QA              Category = "qa"
	DevOps          Category = "devops"
	BusinessAnalyst Category = "business_analyst"
	Developer       Category = "developer"
)

// Rule maps a keyword set to a category. Lower Priority wins.
type Rule struct {
	Category Category `json:"category" koanf:"category"`
	Priority int      `json:"priority" koanf:"priority"`
	Keywords []string `json:"keywords" koanf:"keywords"`

	pattern *regexp.Regexp
}

// DefaultRules returns the built-in category table.
func DefaultRules() []Rule {
	return []Rule{
		{Category: ProjectManager, Priority: 1, Keywords: []string{
			"project manager", "program manager", "product owner", "scrum master",
			"pm", "pmo", "roadmap", "stakeholder", "sprint planning", "status report",
		}},
		{Category: TeamLead, Priority: 2, Keywords: []string{
			"team lead", "tech lead", "technical lead", "lead engineer", "lead developer",
			"engineering manager", "mentoring", "one on one",
		}},
		{Category: Designer, Priority: 3, Keywords: []string{
			"designer", "ux", "ui", "figma", "sketch", "wireframe", "wireframes", "mockup", "mockups", "prototype",
		}},
		{Category: QA, Priority: 4, Keywords: []string{
			"qa", "tester", "testing", "test case", "test cases", "quality assurance", "regression", "bug bash",
		}},
		{Category: DevOps, Priority: 5, Keywords: []string{
			"devops", "sre", "deploy", "deployment", "infrastructure", "kubernetes", "k8s",
			"ci/cd", "pipeline", "terraform", "on-call", "monitoring",
		}},
		{Category: BusinessAnalyst, Priority: 6, Keywords: []string{
			"business analyst", "ba", "requirements", "user stories", "user story", "process mapping", "gap analysis",
		}},
		{Category: Developer, Priority: 7, Keywords: []string{
			"developer", "engineer", "programmer", "implement", "implementation", "refactor",
			"refactoring", "bugfix", "coding", "code review",
		}},
	}
}

// compile builds a word-boundary pattern for the rule. Longer keywords are
// tried first so "test case" wins over "test".
func (r *Rule) compile() {
	kws := make([]string, 0, len(r.Keywords))
	for _, kw := range r.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			kws = append(kws, regexp.QuoteMeta(kw))
		}
	}
	if len(kws) == 0 {
		return
	}
	sort.Slice(kws, func(i, j int) bool { return len(kws[i]) > len(kws[j]) })
	r.pattern = regexp.MustCompile(`(?:^|[^\p{L}\p{N}])(` + strings.Join(kws, "|") + `)(?:$|[^\p{L}\p{N}])`)
}

// match returns the keyword found in text, which must already be lowercased.
func (r *Rule) match(text string) (string, bool) {
	if r.pattern == nil || text == "" {
		return "", false
	}
	m := r.pattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

var (
	seniorityTerms = regexp.MustCompile(`\b(senior|sr|principal|staff|head|chief|director|lead)\b`)

	domainTerms = []struct {
		category Category
		pattern  *regexp.Regexp
	}{
		{ProjectManager, regexp.MustCompile(`\b(project|program|delivery|product)\b`)},
		{Designer, regexp.MustCompile(`\b(design|creative|visual|interaction)\b`)},
		{QA, regexp.MustCompile(`\b(quality|test|verification)\b`)},
		{DevOps, regexp.MustCompile(`\b(platform|operations|ops|infra|reliability|cloud)\b`)},
		{BusinessAnalyst, regexp.MustCompile(`\b(business|analysis|analytics)\b`)},
		{TeamLead, regexp.MustCompile(`\b(engineering|software|backend|frontend|development)\b`)},
	}

	meetingTerms = regexp.MustCompile(`\b(meeting|meetings|call|standup|stand-up|sync|catch-up|retro|retrospective|kickoff|kick-off|1:1|workshop)\b`)
)
