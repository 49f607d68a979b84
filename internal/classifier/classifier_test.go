// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package classifier

import (
	"testing"
	"time"
)

func checkDecision(t *testing.T, name string, got Decision, wantCat Category, wantSource Source) {
	t.Helper()
	if got.Category != wantCat || got.Source != wantSource {
		t.Errorf("%s: expected %s/%s, got %s/%s (keyword %q)", name, wantCat, wantSource, got.Category, got.Source, got.Keyword)
	}
}

func TestClassify_Table(t *testing.T) {
	c := New(nil)
	tests := []struct {
		name       string
		in         Input
		wantCat    Category
		wantSource Source
	}{
		{
			name:       "profile keyword",
			in:         Input{DisplayName: "Dana (QA)", Comment: "fixed flaky job"},
			wantCat:    QA,
			wantSource: SourceProfile,
		},
		{
			name:       "email local part",
			in:         Input{DisplayName: "Jane Doe", Email: "jane.pm@example.com"},
			wantCat:    ProjectManager,
			wantSource: SourceProfile,
		},
		{
			name:       "comment keyword",
			in:         Input{DisplayName: "Sam Rivera", Comment: "Updated terraform modules"},
			wantCat:    DevOps,
			wantSource: SourceComment,
		},
		{
			name:       "comment beats weaker profile",
			in:         Input{DisplayName: "Pat Developer", Comment: "roadmap review"},
			wantCat:    ProjectManager,
			wantSource: SourceComment,
		},
		{
			name:       "rich text comment is flattened",
			in:         Input{DisplayName: "Kim", Comment: `{"type":"doc","content":[{"type":"paragraph","content":[{"type":"text","text":"Figma mockups"}]}]}`},
			wantCat:    Designer,
			wantSource: SourceComment,
		},
		{
			name:       "keyword needs word boundary",
			in:         Input{DisplayName: "Tim Quality", Comment: "ubiquitous"},
			wantCat:    Developer,
			wantSource: SourceDefault,
		},
		{
			name:       "seniority plus domain",
			in:         Input{DisplayName: "Head of Platform"},
			wantCat:    DevOps,
			wantSource: SourceHeuristic,
		},
		{
			name: "meeting shaped entry",
			in: Input{
				DisplayName: "Alex",
				Comment:     "weekly sync with client",
				Started:     time.Date(2026, 2, 3, 10, 30, 0, 0, time.UTC),
				Duration:    30 * time.Minute,
			},
			wantCat:    ProjectManager,
			wantSource: SourceHeuristic,
		},
		{
			name: "long meeting is not managerial",
			in: Input{
				DisplayName: "Alex",
				Comment:     "workshop",
				Started:     time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC),
				Duration:    4 * time.Hour,
			},
			wantCat:    Developer,
			wantSource: SourceDefault,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkDecision(t, tt.name, c.Classify(tt.in), tt.wantCat, tt.wantSource)
		})
	}
}

// A profile match and a comment match of equal effective priority resolve
// to the profile.
func TestClassify_ProfileWinsTie(t *testing.T) {
	c := New(nil)
	// team_lead from profile has priority 2; project_manager from a comment
	// is 1+1 = 2.
	got := c.Classify(Input{DisplayName: "Robin, Tech Lead", Comment: "stakeholder update"})
	checkDecision(t, "tie", got, TeamLead, SourceProfile)
	if got.Priority != 2 {
		t.Errorf("expected priority 2, got %d", got.Priority)
	}
}

func TestClassify_Deterministic(t *testing.T) {
	c := New(nil)
	in := Input{DisplayName: "Lee Designer", Email: "lee@corp", Comment: "regression testing and deploy"}
	first := c.Classify(in)
	for i := 0; i < 50; i++ {
		if got := c.Classify(in); got != first {
			t.Fatalf("classification changed on iteration %d: %+v vs %+v", i, got, first)
		}
	}
}

func TestSession_MemoizesPerAuthor(t *testing.T) {
	s := New(nil).NewSession()

	first := s.Classify(Input{AuthorID: "acc-1", DisplayName: "Morgan", Comment: "QA regression pass"})
	checkDecision(t, "first", first, QA, SourceComment)

	second := s.Classify(Input{AuthorID: "acc-1", DisplayName: "Morgan", Comment: "kubernetes upgrade"})
	if second != first {
		t.Errorf("expected memoized decision %+v, got %+v", first, second)
	}

	other := s.Classify(Input{AuthorID: "acc-2", DisplayName: "Riley", Comment: "kubernetes upgrade"})
	checkDecision(t, "other author", other, DevOps, SourceComment)

	if s.Size() != 2 {
		t.Errorf("expected 2 memoized authors, got %d", s.Size())
	}

	// A fresh session forgets.
	fresh := New(nil).NewSession().Classify(Input{AuthorID: "acc-1", DisplayName: "Morgan", Comment: "kubernetes upgrade"})
	checkDecision(t, "fresh", fresh, DevOps, SourceComment)
}

func TestNew_CustomRulesAndDefault(t *testing.T) {
	c := New([]Rule{
		{Category: "support", Priority: 1, Keywords: []string{"ticket", "customer"}},
	}, WithDefault("general"))

	checkDecision(t, "custom", c.Classify(Input{Comment: "Customer escalation"}), "support", SourceComment)
	checkDecision(t, "fallback", c.Classify(Input{Comment: "misc"}), "general", SourceDefault)
}
