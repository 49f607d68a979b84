// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

// Package richtext converts tracker rich-text payloads into plain text.
//
// Newer tracker API versions return descriptions and worklog comments as
// document trees (`{"type":"doc","content":[...]}`); older versions return
// plain strings. Flatten accepts either shape.
package richtext

import (
	"strings"

	"github.com/goccy/go-json"
)

type node struct {
	Type    string          `json:"type"`
	Text    string          `json:"text,omitempty"`
	Content []node          `json:"content,omitempty"`
	Attrs   json.RawMessage `json:"attrs,omitempty"`
}

// blockTypes end with a line break when rendered.
var blockTypes = map[string]bool{
	"paragraph":   true,
	"heading":     true,
	"listItem":    true,
	"blockquote":  true,
	"codeBlock":   true,
	"tableRow":    true,
	"rule":        true,
	"panel":       true,
	"mediaSingle": true,
}

// Flatten returns the plain text of a rich-text payload. Invalid JSON is
// returned as-is so callers never lose the raw content.
func Flatten(raw []byte) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return ""
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal([]byte(trimmed), &s); err != nil {
			return trimmed
		}
		return s
	case '{':
		var root node
		if err := json.Unmarshal([]byte(trimmed), &root); err != nil {
			return trimmed
		}
		var b strings.Builder
		walk(&b, root)
		return strings.TrimSpace(collapseBlankLines(b.String()))
	default:
		return trimmed
	}
}

func walk(b *strings.Builder, n node) {
	switch n.Type {
	case "text":
		b.WriteString(n.Text)
		return
	case "hardBreak":
		b.WriteByte('\n')
		return
	case "mention", "emoji":
		if text := attrText(n.Attrs); text != "" {
			b.WriteString(text)
		}
		return
	}

	for _, child := range n.Content {
		walk(b, child)
		if child.Type == "tableCell" || child.Type == "tableHeader" {
			b.WriteByte(' ')
		}
	}
	if blockTypes[n.Type] {
		b.WriteByte('\n')
	}
}

func attrText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var attrs struct {
		Text      string `json:"text"`
		ShortName string `json:"shortName"`
	}
	if err := json.Unmarshal(raw, &attrs); err != nil {
		return ""
	}
	if attrs.Text != "" {
		return attrs.Text
	}
	return attrs.ShortName
}

func collapseBlankLines(s string) string {
	for strings.Contains(s, "\n\n\n") {
		s = strings.ReplaceAll(s, "\n\n\n", "\n\n")
	}
	return s
}
