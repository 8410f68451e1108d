// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logline

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/AleutianAI/logtrace/services/logtrace/template"
)

const (
	// DefaultUnmatchedSamples is how many unmatched messages a report keeps.
	DefaultUnmatchedSamples = 100

	maxSampleRunes   = 200
	summaryTopN      = 10
	summarySampleMax = 20
)

// Result is the outcome of matching one log line.
type Result struct {
	LineNumber int
	Line       Line
	Matches    []template.LogMatch
}

// Matched reports whether the line matched any template.
func (r Result) Matched() bool {
	return len(r.Matches) > 0
}

// Report accumulates statistics over a matching run.
//
// Thread Safety: Not safe for concurrent use.
type Report struct {
	RunID        string
	TotalLines   int
	MatchedLines int

	templateUsage map[string]int
	patterns      map[string]string
	levels        map[string]int
	samples       []string
	maxSamples    int
}

// NewReport creates a report keeping up to maxSamples unmatched messages.
func NewReport(maxSamples int) *Report {
	if maxSamples < 0 {
		maxSamples = 0
	}
	return &Report{
		RunID:         uuid.NewString(),
		templateUsage: make(map[string]int),
		patterns:      make(map[string]string),
		levels:        make(map[string]int),
		maxSamples:    maxSamples,
	}
}

// Add records one line. Only the best match counts toward template usage.
func (r *Report) Add(res Result) {
	r.TotalLines++
	if res.Line.Level != "" {
		r.levels[strings.ToLower(res.Line.Level)]++
	}
	if res.Matched() {
		r.MatchedLines++
		if t := res.Matches[0].Template; t != nil {
			r.templateUsage[t.ID]++
			r.patterns[t.ID] = t.Pattern
		}
		return
	}
	if len(r.samples) < r.maxSamples {
		r.samples = append(r.samples, truncate(res.Line.Message, maxSampleRunes))
	}
}

// TemplateCount is the usage of one template.
type TemplateCount struct {
	TemplateID string `json:"template_id"`
	Pattern    string `json:"pattern"`
	Count      int    `json:"count"`
}

// Summary is a snapshot of a report.
type Summary struct {
	RunID               string          `json:"run_id"`
	TotalLines          int             `json:"total_lines"`
	MatchedLines        int             `json:"matched_lines"`
	UnmatchedLines      int             `json:"unmatched_lines"`
	MatchRate           float64         `json:"match_rate"`
	UniqueTemplatesUsed int             `json:"unique_templates_used"`
	LevelDistribution   map[string]int  `json:"level_distribution"`
	TopTemplates        []TemplateCount `json:"top_templates"`
	UnmatchedSamples    []string        `json:"unmatched_samples"`
}

// Summary returns the current statistics. MatchRate is a percentage.
func (r *Report) Summary() Summary {
	s := Summary{
		RunID:               r.RunID,
		TotalLines:          r.TotalLines,
		MatchedLines:        r.MatchedLines,
		UnmatchedLines:      r.TotalLines - r.MatchedLines,
		UniqueTemplatesUsed: len(r.templateUsage),
		LevelDistribution:   make(map[string]int, len(r.levels)),
		TopTemplates:        []TemplateCount{},
		UnmatchedSamples:    []string{},
	}
	if r.TotalLines > 0 {
		s.MatchRate = float64(r.MatchedLines) / float64(r.TotalLines) * 100
	}
	for k, v := range r.levels {
		s.LevelDistribution[k] = v
	}

	for id, n := range r.templateUsage {
		s.TopTemplates = append(s.TopTemplates, TemplateCount{TemplateID: id, Pattern: r.patterns[id], Count: n})
	}
	sort.Slice(s.TopTemplates, func(i, j int) bool {
		a, b := s.TopTemplates[i], s.TopTemplates[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.TemplateID < b.TemplateID
	})
	if len(s.TopTemplates) > summaryTopN {
		s.TopTemplates = s.TopTemplates[:summaryTopN]
	}

	n := len(r.samples)
	if n > summarySampleMax {
		n = summarySampleMax
	}
	s.UnmatchedSamples = append(s.UnmatchedSamples, r.samples[:n]...)
	return s
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
