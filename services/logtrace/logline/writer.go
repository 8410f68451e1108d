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
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/AleutianAI/logtrace/services/logtrace/store"
)

// Output formats.
const (
	FormatCSV     = "csv"
	FormatJSONL   = "jsonl"
	FormatSummary = "summary"
)

// Formats lists the supported output formats.
var Formats = []string{FormatCSV, FormatJSONL, FormatSummary}

// ResultWriter renders match results.
type ResultWriter interface {
	// Write renders one line result.
	Write(Result) error

	// Finish renders trailing output and flushes.
	Finish(report *Report) error
}

// NewWriter returns the writer for format. input names the log source in
// the summary header.
func NewWriter(format string, w io.Writer, input string) (ResultWriter, error) {
	switch format {
	case FormatCSV:
		return newCSVWriter(w), nil
	case FormatJSONL:
		return &jsonlWriter{buf: bufio.NewWriter(w)}, nil
	case FormatSummary:
		return &summaryWriter{w: w, input: input}, nil
	}
	return nil, fmt.Errorf("unknown output format %q (want one of %s)", format, strings.Join(Formats, ", "))
}

// =============================================================================
// CSV
// =============================================================================

var csvHeader = []string{
	"line_number", "timestamp", "level", "logger", "message",
	"template_id", "confidence", "pattern", "extracted_values",
	"source_file", "source_line",
}

type csvWriter struct {
	w      *csv.Writer
	header bool
}

func newCSVWriter(w io.Writer) *csvWriter {
	return &csvWriter{w: csv.NewWriter(w)}
}

// Write emits one row per match, or one row with empty match columns.
func (c *csvWriter) Write(res Result) error {
	if !c.header {
		if err := c.w.Write(csvHeader); err != nil {
			return err
		}
		c.header = true
	}
	prefix := []string{
		strconv.Itoa(res.LineNumber),
		res.Line.Timestamp, res.Line.Level, res.Line.Logger, res.Line.Message,
	}
	if !res.Matched() {
		return c.w.Write(append(prefix, "", "", "", "", "", ""))
	}
	for _, m := range res.Matches {
		rec := store.NewMatchRecord(m)
		row := append(append([]string{}, prefix...),
			rec.TemplateID,
			strconv.FormatFloat(float64(rec.Confidence), 'f', 3, 64),
			rec.Pattern,
			strings.Join(rec.CapturedValues, " | "),
			rec.Location.FilePath,
			strconv.Itoa(rec.Location.LineNumber),
		)
		if err := c.w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func (c *csvWriter) Finish(*Report) error {
	if !c.header {
		if err := c.w.Write(csvHeader); err != nil {
			return err
		}
	}
	c.w.Flush()
	return c.w.Error()
}

// =============================================================================
// JSONL
// =============================================================================

// LineRecord is the JSONL form of one line result.
type LineRecord struct {
	LineNumber int                 `json:"line_number"`
	Timestamp  *string             `json:"timestamp"`
	Level      *string             `json:"level"`
	Logger     *string             `json:"logger"`
	Message    string              `json:"message"`
	Matches    []store.MatchRecord `json:"matches"`
}

// NewLineRecord converts a result; absent line parts become null.
func NewLineRecord(res Result) LineRecord {
	return LineRecord{
		LineNumber: res.LineNumber,
		Timestamp:  nullable(res.Line.Timestamp),
		Level:      nullable(res.Line.Level),
		Logger:     nullable(res.Line.Logger),
		Message:    res.Line.Message,
		Matches:    store.NewMatchRecords(res.Matches),
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

type jsonlWriter struct {
	buf *bufio.Writer
}

func (j *jsonlWriter) Write(res Result) error {
	enc := json.NewEncoder(j.buf)
	enc.SetEscapeHTML(false)
	return enc.Encode(NewLineRecord(res))
}

func (j *jsonlWriter) Finish(*Report) error {
	return j.buf.Flush()
}

// =============================================================================
// Summary
// =============================================================================

type summaryWriter struct {
	w     io.Writer
	input string
}

func (s *summaryWriter) Write(Result) error { return nil }

func (s *summaryWriter) Finish(report *Report) error {
	if report == nil {
		report = NewReport(0)
	}
	return WriteSummary(s.w, report.Summary(), s.input)
}

// WriteSummary renders a human-readable summary with tables for the level
// distribution and the most used templates.
func WriteSummary(w io.Writer, s Summary, input string) error {
	b := bufio.NewWriter(w)
	fmt.Fprintln(b, "LOG TEMPLATE MATCHING SUMMARY REPORT")
	fmt.Fprintln(b, strings.Repeat("=", 50))
	fmt.Fprintln(b)
	if input != "" {
		fmt.Fprintf(b, "Input file: %s\n", input)
	}
	fmt.Fprintf(b, "Run: %s\n", s.RunID)
	fmt.Fprintf(b, "Total lines processed: %d\n", s.TotalLines)
	fmt.Fprintf(b, "Matched lines: %d\n", s.MatchedLines)
	fmt.Fprintf(b, "Unmatched lines: %d\n", s.UnmatchedLines)
	fmt.Fprintf(b, "Match rate: %.1f%%\n", s.MatchRate)
	fmt.Fprintf(b, "Unique templates used: %d\n\n", s.UniqueTemplatesUsed)

	if len(s.LevelDistribution) > 0 {
		fmt.Fprintln(b, "LOG LEVEL DISTRIBUTION:")
		levels := make([]string, 0, len(s.LevelDistribution))
		for l := range s.LevelDistribution {
			levels = append(levels, l)
		}
		sort.Strings(levels)
		table := newTable(b, []string{"Level", "Lines", "Share"})
		for _, l := range levels {
			n := s.LevelDistribution[l]
			share := 0.0
			if s.TotalLines > 0 {
				share = float64(n) / float64(s.TotalLines) * 100
			}
			table.Append([]string{l, strconv.Itoa(n), fmt.Sprintf("%.1f%%", share)})
		}
		table.Render()
		fmt.Fprintln(b)
	}

	if len(s.TopTemplates) > 0 {
		fmt.Fprintln(b, "TOP TEMPLATES BY USAGE:")
		table := newTable(b, []string{"#", "Count", "Template", "Pattern"})
		for i, t := range s.TopTemplates {
			table.Append([]string{strconv.Itoa(i + 1), strconv.Itoa(t.Count), t.TemplateID, truncate(t.Pattern, 60)})
		}
		table.Render()
		fmt.Fprintln(b)
	}

	if len(s.UnmatchedSamples) > 0 {
		fmt.Fprintln(b, "SAMPLE UNMATCHED LINES:")
		fmt.Fprintln(b, strings.Repeat("-", 25))
		for i, sample := range s.UnmatchedSamples {
			fmt.Fprintf(b, "%2d. %s\n", i+1, sample)
		}
	}
	return b.Flush()
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	return table
}
