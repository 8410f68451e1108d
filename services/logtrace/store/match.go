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
	"math"
	"strconv"

	"github.com/AleutianAI/logtrace/services/logtrace/template"
)

// Confidence is a match confidence serialized with three decimals.
type Confidence float64

// MarshalJSON renders the value as a fixed-point number.
func (c Confidence) MarshalJSON() ([]byte, error) {
	v := float64(c)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = 0
	}
	return []byte(strconv.FormatFloat(v, 'f', 3, 64)), nil
}

// Rounded returns the value rounded to three decimals.
func (c Confidence) Rounded() float64 {
	return math.Round(float64(c)*1000) / 1000
}

// MatchRecord is the serialized form of one template match.
type MatchRecord struct {
	TemplateID     string                  `json:"template_id"`
	Confidence     Confidence              `json:"confidence"`
	CapturedValues []string                `json:"captured_values"`
	Pattern        string                  `json:"pattern"`
	Level          template.Level          `json:"level"`
	Location       template.SourceLocation `json:"location"`
}

// NewMatchRecord converts a match for serialization.
func NewMatchRecord(m template.LogMatch) MatchRecord {
	rec := MatchRecord{
		Confidence:     Confidence(m.Confidence),
		CapturedValues: m.CapturedValues,
	}
	if rec.CapturedValues == nil {
		rec.CapturedValues = []string{}
	}
	if m.Template != nil {
		rec.TemplateID = m.Template.ID
		rec.Pattern = m.Template.Pattern
		rec.Level = m.Template.Level
		rec.Location = m.Template.Location
	}
	return rec
}

// NewMatchRecords converts matches in order.
func NewMatchRecords(matches []template.LogMatch) []MatchRecord {
	out := make([]MatchRecord, len(matches))
	for i, m := range matches {
		out[i] = NewMatchRecord(m)
	}
	return out
}
