// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

/*
Package classifier assigns a resource type to imported worklogs.

Classification scans the author's profile text, then the worklog comment,
against a priority-ordered keyword table. Comment matches are one priority
step weaker than profile matches, and profile wins a tie. Without a keyword
match, seniority/domain combinations and meeting-shaped time entries are
tried before falling back to the default category.

A Session memoizes the first decision for each author for the lifetime of
one sync run; later worklogs by the same author reuse it regardless of
their comment.
*/
package classifier

import (
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/tomtom215/trackersync/internal/metrics"
	"github.com/tomtom215/trackersync/internal/richtext"
)

// Source records which signal produced a decision.
type Source string

const (
	SourceProfile   Source = "profile"
	SourceComment   Source = "comment"
	SourceHeuristic Source = "heuristic"
	SourceDefault   Source = "default"
	SourceMemo      Source = "memo"
)

// Input is the context available for one worklog.
type Input struct {
	AuthorID    string
	DisplayName string
	Email       string
	// Comment may be plain text or a structured rich-text document.
	Comment  string
	Started  time.Time
	Duration time.Duration
}

// Decision is the outcome of a classification.
type Decision struct {
	Category Category `json:"category"`
	Source   Source   `json:"source"`
	Priority int      `json:"priority"`
	Keyword  string   `json:"keyword,omitempty"`
}

// Classifier holds the compiled rule table. It is immutable and safe to
// share across runs.
type Classifier struct {
	rules    []Rule
	fallback Category
	// Meeting heuristic bounds.
	maxMeeting time.Duration
	dayStart   int
	dayEnd     int
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithDefault sets the category used when nothing matches.
func WithDefault(c Category) Option {
	return func(cl *Classifier) { cl.fallback = c }
}

// WithMeetingWindow sets the longest entry and the local working hours
// considered for the meeting heuristic.
func WithMeetingWindow(maxDuration time.Duration, startHour, endHour int) Option {
	return func(cl *Classifier) {
		cl.maxMeeting = maxDuration
		cl.dayStart = startHour
		cl.dayEnd = endHour
	}
}

// New compiles rules. A nil or empty rule set uses DefaultRules.
func New(rules []Rule, opts ...Option) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	compiled := make([]Rule, len(rules))
	copy(compiled, rules)
	for i := range compiled {
		compiled[i].compile()
	}
	sort.SliceStable(compiled, func(i, j int) bool { return compiled[i].Priority < compiled[j].Priority })

	c := &Classifier{
		rules:      compiled,
		fallback:   Developer,
		maxMeeting: 90 * time.Minute,
		dayStart:   8,
		dayEnd:     18,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify returns a decision for in without memoization.
func (c *Classifier) Classify(in Input) Decision {
	profile := profileText(in.DisplayName, in.Email)
	comment := strings.ToLower(flattenComment(in.Comment))

	best, found := Decision{}, false
	for i := range c.rules {
		r := &c.rules[i]
		if kw, ok := r.match(profile); ok {
			d := Decision{Category: r.Category, Source: SourceProfile, Priority: r.Priority, Keyword: kw}
			if !found || better(d, best) {
				best, found = d, true
			}
		}
		if kw, ok := r.match(comment); ok {
			d := Decision{Category: r.Category, Source: SourceComment, Priority: r.Priority + 1, Keyword: kw}
			if !found || better(d, best) {
				best, found = d, true
			}
		}
	}
	if found {
		return best
	}

	if d, ok := c.heuristic(profile, comment, in); ok {
		return d
	}
	return Decision{Category: c.fallback, Source: SourceDefault, Priority: c.priorityOf(c.fallback)}
}

func better(a, b Decision) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.Source == SourceProfile && b.Source != SourceProfile
}

func (c *Classifier) heuristic(profile, comment string, in Input) (Decision, bool) {
	text := profile + " " + comment
	if seniorityTerms.MatchString(text) {
		for _, dt := range domainTerms {
			if m := dt.pattern.FindString(text); m != "" {
				return Decision{Category: dt.category, Source: SourceHeuristic, Priority: c.priorityOf(dt.category), Keyword: m}, true
			}
		}
	}

	if c.looksLikeMeeting(comment, in) {
		return Decision{Category: ProjectManager, Source: SourceHeuristic, Priority: c.priorityOf(ProjectManager), Keyword: "meeting"}, true
	}
	return Decision{}, false
}

// looksLikeMeeting matches short entries on a half-hour boundary within
// working hours whose comment mentions a meeting.
func (c *Classifier) looksLikeMeeting(comment string, in Input) bool {
	if in.Started.IsZero() || in.Duration <= 0 || in.Duration > c.maxMeeting {
		return false
	}
	if in.Started.Minute()%30 != 0 || in.Started.Second() != 0 {
		return false
	}
	if h := in.Started.Hour(); h < c.dayStart || h >= c.dayEnd {
		return false
	}
	return meetingTerms.MatchString(comment)
}

func (c *Classifier) priorityOf(cat Category) int {
	for _, r := range c.rules {
		if r.Category == cat {
			return r.Priority
		}
	}
	return len(c.rules) + 1
}

// Session is a per-run classifier with an author memo.
type Session struct {
	c    *Classifier
	mu   sync.Mutex
	memo map[string]Decision
}

// NewSession starts a memo scope, normally one per sync run.
func (c *Classifier) NewSession() *Session {
	return &Session{c: c, memo: make(map[string]Decision)}
}

// Classify returns the memoized decision for in.AuthorID, classifying on
// first sight. Inputs without an author are never memoized.
func (s *Session) Classify(in Input) Decision {
	key := in.AuthorID
	if key != "" {
		s.mu.Lock()
		d, ok := s.memo[key]
		s.mu.Unlock()
		if ok {
			metrics.RecordClassification(string(d.Category), string(SourceMemo))
			return d
		}
	}

	d := s.c.Classify(in)
	metrics.RecordClassification(string(d.Category), string(d.Source))

	if key != "" {
		s.mu.Lock()
		if prev, ok := s.memo[key]; ok {
			d = prev
		} else {
			s.memo[key] = d
		}
		s.mu.Unlock()
	}
	return d
}

// Size returns the number of memoized authors.
func (s *Session) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.memo)
}

// profileText joins display name and email, splitting the email local part
// on separators so "jane.pm@corp" yields "jane pm".
func profileText(name, email string) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(name))
	if email != "" {
		local, _, _ := strings.Cut(strings.ToLower(email), "@")
		b.WriteByte(' ')
		b.WriteString(strings.Map(func(r rune) rune {
			if r == '.' || r == '_' || r == '-' || r == '+' {
				return ' '
			}
			return r
		}, local))
	}
	return strings.TrimSpace(b.String())
}

func flattenComment(comment string) string {
	trimmed := strings.TrimLeftFunc(comment, unicode.IsSpace)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, `"`) {
		return richtext.Flatten([]byte(trimmed))
	}
	return comment
}
