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
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/AleutianAI/logtrace/services/logtrace/matcher"
	"github.com/AleutianAI/logtrace/services/logtrace/template"
)

func TestParse_Formats(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Line
	}{
		{
			name: "iso timestamp with thread and logger",
			raw:  "2023-10-15T14:30:00.123Z INFO [main] com.example.UserService - User bob logged in",
			want: Line{Timestamp: "2023-10-15T14:30:00.123Z", Level: "INFO", Thread: "main", Logger: "com.example.UserService", Message: "User bob logged in"},
		},
		{
			name: "iso timestamp without logger keeps the first word",
			raw:  "2023-10-15T14:30:00Z WARN Disk almost full",
			want: Line{Timestamp: "2023-10-15T14:30:00Z", Level: "WARN", Message: "Disk almost full"},
		},
		{
			name: "standard format",
			raw:  "2023-10-15 14:30:00.123 ERROR [pool-1] com.example.Pay: Payment 42 failed",
			want: Line{Timestamp: "2023-10-15 14:30:00.123", Level: "ERROR", Thread: "pool-1", Logger: "com.example.Pay", Message: "Payment 42 failed"},
		},
		{
			name: "log4j format",
			raw:  "DEBUG 2023-10-15 14:30:00,123 [main] com.example.Cache - Cache miss for users",
			want: Line{Timestamp: "2023-10-15 14:30:00,123", Level: "DEBUG", Thread: "main", Logger: "com.example.Cache", Message: "Cache miss for users"},
		},
		{
			name: "simple format",
			raw:  "WARNING: low memory",
			want: Line{Level: "WARNING", Message: "low memory"},
		},
		{
			name: "a colon after an ordinary word is message text",
			raw:  "Note: nothing to do",
			want: Line{Message: "Note: nothing to do"},
		},
		{
			name: "fallback",
			raw:  "   plain message  ",
			want: Line{Message: "plain message"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.raw)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := Parse("   \t ")
	assert.False(t, ok)
}

func TestLevelHint(t *testing.T) {
	assert.Equal(t, template.LevelWarn, LevelHint("WARNING"))
	assert.Equal(t, template.LevelError, LevelHint("severe"))
	assert.Equal(t, template.LevelInfo, LevelHint("Info"))
	assert.Equal(t, template.LevelUnknown, LevelHint(""))
	assert.Equal(t, template.LevelUnknown, LevelHint("VERBOSE"))
}

func testMatcher() *matcher.Matcher {
	loc := func(line int) template.SourceLocation {
		return template.NewLocation("src/UserService.java", "UserService", "login", line)
	}
	return matcher.Build([]template.LogTemplate{
		template.New(loc(10), "User <*> logged in", template.LevelInfo, 0),
		template.New(loc(11), "User <*> logged in from <*>", template.LevelInfo, 0),
		template.New(loc(12), "User <*> from <*>", template.LevelInfo, 0),
		template.New(loc(20), "Payment <*> failed", template.LevelError, 0),
		template.New(loc(30), "<*>", template.LevelDebug, 0),
	})
}

func newTestSession(t *testing.T, opts Options) *Session {
	t.Helper()
	s, err := NewSession(testMatcher(), opts, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return s
}

const sampleLog = `2023-10-15T14:30:00Z INFO [main] app.Users - User bob logged in from office
2023-10-15T14:30:01Z ERROR [main] app.Pay - Payment 42 failed

2023-10-15T14:30:02Z INFO [main] app.Users - Something unexpected happened
INFO: User alice logged in
`

func TestSession_Run(t *testing.T) {
	s := newTestSession(t, Options{})
	var results []Result
	report, err := s.Run(context.Background(), strings.NewReader(sampleLog), func(r Result) error {
		results = append(results, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, 1, results[0].LineNumber)
	assert.Equal(t, "User <*> logged in from <*>", results[0].Matches[0].Template.Pattern)
	assert.Equal(t, []string{"bob", "office"}, results[0].Matches[0].CapturedValues)

	assert.Equal(t, 2, results[1].LineNumber)
	require.Len(t, results[1].Matches, 1, "the level hint excludes the debug catch-all")
	assert.Equal(t, "Payment <*> failed", results[1].Matches[0].Template.Pattern)

	assert.Equal(t, 4, results[2].LineNumber, "blank lines keep their number")
	assert.False(t, results[2].Matched())

	assert.Equal(t, 5, results[3].LineNumber)
	assert.Equal(t, "User <*> logged in", results[3].Matches[0].Template.Pattern)

	assert.Equal(t, 4, report.TotalLines)
	assert.Equal(t, 3, report.MatchedLines)
	sum := report.Summary()
	assert.InDelta(t, 75.0, sum.MatchRate, 1e-9)
	assert.Equal(t, 3, sum.UniqueTemplatesUsed)
	assert.Equal(t, map[string]int{"info": 3, "error": 1}, sum.LevelDistribution)
	assert.Equal(t, []string{"Something unexpected happened"}, sum.UnmatchedSamples)
	assert.NotEmpty(t, sum.RunID)
}

func TestSession_ThresholdBestOnlyAndLevels(t *testing.T) {
	line := "2023-10-15T14:30:00Z INFO [main] app.Users - User bob logged in from office"

	all := newTestSession(t, Options{})
	res, ok := all.MatchLine(line)
	require.True(t, ok)
	require.Len(t, res.Matches, 2)
	assert.Equal(t, "User <*> from <*>", res.Matches[1].Template.Pattern)

	best := newTestSession(t, Options{BestOnly: true})
	res, _ = best.MatchLine(line)
	assert.Len(t, res.Matches, 1)

	strict := newTestSession(t, Options{Threshold: 0.9})
	res, _ = strict.MatchLine(line)
	assert.False(t, res.Matched(), "4/6+0.1 is below 0.9")

	errorsOnly := newTestSession(t, Options{Levels: ParseLevels(" error , WARN ")})
	_, ok = errorsOnly.MatchLine(line)
	assert.False(t, ok, "info lines are filtered out")
	_, ok = errorsOnly.MatchLine("plain line without level")
	assert.False(t, ok)
	res, ok = errorsOnly.MatchLine("ERROR: Payment 7 failed")
	require.True(t, ok)
	assert.True(t, res.Matched())

	_, err := NewSession(testMatcher(), Options{Threshold: 1.5}, nil)
	assert.ErrorIs(t, err, ErrInvalidThreshold)
}

func TestSession_SampleLinesAndEmitError(t *testing.T) {
	s := newTestSession(t, Options{SampleLines: 2})
	report, err := s.Run(context.Background(), strings.NewReader(sampleLog), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, report.TotalLines)

	boom := errors.New("boom")
	s = newTestSession(t, Options{})
	report, err = s.Run(context.Background(), strings.NewReader(sampleLog), func(Result) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, report.TotalLines)
}

func TestSession_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestSession(t, Options{}).Run(ctx, strings.NewReader(sampleLog), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
	})
	return exporter
}

func TestSession_RunSpan(t *testing.T) {
	exporter := setupTestTracer(t)
	_, err := newTestSession(t, Options{BestOnly: true}).Run(context.Background(), strings.NewReader(sampleLog), nil)
	require.NoError(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "logline.Run", spans[0].Name)
	attrs := make(map[attribute.Key]attribute.Value)
	for _, kv := range spans[0].Attributes {
		attrs[kv.Key] = kv.Value
	}
	assert.True(t, attrs["match.best_only"].AsBool())
	assert.EqualValues(t, 4, attrs["match.lines"].AsInt64())
	assert.EqualValues(t, 3, attrs["match.matched"].AsInt64())
}

func TestReport_SamplesBounded(t *testing.T) {
	r := NewReport(3)
	for i := 0; i < 10; i++ {
		r.Add(Result{Line: Line{Message: fmt.Sprintf("miss %d %s", i, strings.Repeat("x", 300))}})
	}
	sum := r.Summary()
	require.Len(t, sum.UnmatchedSamples, 3)
	assert.Len(t, []rune(sum.UnmatchedSamples[0]), 200)
	assert.Zero(t, sum.MatchedLines)
	assert.Empty(t, sum.TopTemplates)
}

func runFormat(t *testing.T, format string) string {
	t.Helper()
	var out bytes.Buffer
	w, err := NewWriter(format, &out, "server.log")
	require.NoError(t, err)
	report, err := newTestSession(t, Options{}).Run(context.Background(), strings.NewReader(sampleLog), w.Write)
	require.NoError(t, err)
	require.NoError(t, w.Finish(report))
	return out.String()
}

func TestWriter_CSV(t *testing.T) {
	rows, err := csv.NewReader(strings.NewReader(runFormat(t, FormatCSV))).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, csvHeader, rows[0])
	// line 1 has two matches, lines 2, 4 and 5 one row each
	require.Len(t, rows, 6)

	first := rows[1]
	assert.Equal(t, "1", first[0])
	assert.Equal(t, "User bob logged in from office", first[4])
	assert.Equal(t, "0.767", first[6])
	assert.Equal(t, "bob | office", first[8])
	assert.Equal(t, "src/UserService.java", first[9])
	assert.Equal(t, "11", first[10])

	unmatched := rows[4]
	assert.Equal(t, "4", unmatched[0])
	assert.Equal(t, []string{"", "", "", "", "", ""}, unmatched[5:])
}

func TestWriter_JSONL(t *testing.T) {
	lines := strings.Split(strings.TrimSpace(runFormat(t, FormatJSONL)), "\n")
	require.Len(t, lines, 4)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.EqualValues(t, 1, rec["line_number"])
	assert.Equal(t, "app.Users", rec["logger"])
	matches := rec["matches"].([]any)
	require.Len(t, matches, 2)
	assert.Equal(t, "User <*> logged in from <*>", matches[0].(map[string]any)["pattern"])

	rec = map[string]any{}
	require.NoError(t, json.Unmarshal([]byte(lines[3]), &rec))
	assert.Nil(t, rec["timestamp"])
	assert.Nil(t, rec["logger"])
	assert.Equal(t, "INFO", rec["level"])

	rec = map[string]any{}
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &rec))
	assert.Empty(t, rec["matches"])
}

func TestWriter_Summary(t *testing.T) {
	out := runFormat(t, FormatSummary)
	assert.Contains(t, out, "LOG TEMPLATE MATCHING SUMMARY REPORT")
	assert.Contains(t, out, "Input file: server.log")
	assert.Contains(t, out, "Total lines processed: 4")
	assert.Contains(t, out, "Match rate: 75.0%")
	assert.Contains(t, out, "Payment <*> failed")
	assert.Contains(t, out, "Something unexpected happened")
}

func TestNewWriter_UnknownFormat(t *testing.T) {
	_, err := NewWriter("xml", io.Discard, "")
	assert.Error(t, err)
}
