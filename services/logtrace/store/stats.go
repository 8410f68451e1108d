// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"path/filepath"
	"sort"

	"github.com/AleutianAI/logtrace/services/logtrace/template"
)

// statsTopN is how many patterns and files TemplateStats ranks.
const statsTopN = 10

// Ranked is a value with its occurrence count.
type Ranked struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// TemplateStats describes a template set.
type TemplateStats struct {
	Total             int            `json:"total_templates"`
	UniqueFiles       int            `json:"unique_files"`
	UniquePatterns    int            `json:"unique_patterns"`
	LevelDistribution map[string]int `json:"level_distribution"`

	// Complexity is measured in literal tokens per pattern.
	AvgComplexity float64 `json:"avg_complexity"`
	MinComplexity int     `json:"min_complexity"`
	MaxComplexity int     `json:"max_complexity"`

	TopPatterns []Ranked `json:"top_patterns"`

	// TopFiles is keyed by base file name.
	TopFiles []Ranked `json:"top_files"`
}

// ComputeStats summarizes templates. Rankings are ordered by count
// descending, then by value.
func ComputeStats(templates []template.LogTemplate) TemplateStats {
	s := TemplateStats{
		Total:             len(templates),
		LevelDistribution: make(map[string]int),
		TopPatterns:       []Ranked{},
		TopFiles:          []Ranked{},
	}
	if len(templates) == 0 {
		return s
	}

	files := make(map[string]struct{})
	patterns := make(map[string]int)
	basenames := make(map[string]int)
	sum := 0
	s.MinComplexity = templates[0].StaticTokenCount
	for _, t := range templates {
		files[t.Location.FilePath] = struct{}{}
		patterns[t.Pattern]++
		basenames[filepath.Base(t.Location.FilePath)]++
		s.LevelDistribution[t.Level.String()]++

		sum += t.StaticTokenCount
		s.MinComplexity = min(s.MinComplexity, t.StaticTokenCount)
		s.MaxComplexity = max(s.MaxComplexity, t.StaticTokenCount)
	}
	s.UniqueFiles = len(files)
	s.UniquePatterns = len(patterns)
	s.AvgComplexity = float64(sum) / float64(len(templates))
	s.TopPatterns = rank(patterns, statsTopN)
	s.TopFiles = rank(basenames, statsTopN)
	return s
}

func rank(counts map[string]int, n int) []Ranked {
	out := make([]Ranked, 0, len(counts))
	for v, c := range counts {
		out = append(out, Ranked{Value: v, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
