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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/logtrace/services/logtrace/matcher"
	"github.com/AleutianAI/logtrace/services/logtrace/template"
)

var tracer = otel.Tracer("logtrace.logline")

// maxLineBytes bounds a single input line (1MB).
const maxLineBytes = 1024 * 1024

// ErrInvalidThreshold indicates a threshold outside [0, 1].
var ErrInvalidThreshold = errors.New("threshold must be between 0.0 and 1.0")

// Options controls a matching session.
type Options struct {
	// Threshold drops matches with lower confidence.
	Threshold float64

	// BestOnly keeps only the top-ranked match of each line.
	BestOnly bool

	// Levels, when non-empty, keeps only lines whose level is listed
	// (case-insensitive). Lines without a level are dropped.
	Levels []string

	// SampleLines stops after this many input lines; 0 reads everything.
	SampleLines int

	// UnmatchedSamples bounds the unmatched messages kept by the report.
	UnmatchedSamples int
}

// ParseLevels splits a comma-separated level filter such as "ERROR,WARN".
func ParseLevels(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Session matches log lines against one template trie.
//
// Thread Safety:
//
//	MatchLine is safe for concurrent use. Run is not reentrant on the same
//	report but several Runs may proceed in parallel.
type Session struct {
	matcher *matcher.Matcher
	opts    Options
	levels  map[string]struct{}
	logger  *slog.Logger
}

// NewSession creates a session over m.
func NewSession(m *matcher.Matcher, opts Options, logger *slog.Logger) (*Session, error) {
	if opts.Threshold < 0 || opts.Threshold > 1 {
		return nil, fmt.Errorf("%w: got %g", ErrInvalidThreshold, opts.Threshold)
	}
	if opts.UnmatchedSamples == 0 {
		opts.UnmatchedSamples = DefaultUnmatchedSamples
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{matcher: m, opts: opts, logger: logger}
	if len(opts.Levels) > 0 {
		s.levels = make(map[string]struct{}, len(opts.Levels))
		for _, l := range opts.Levels {
			s.levels[strings.ToUpper(l)] = struct{}{}
		}
	}
	return s, nil
}

// MatchLine parses and matches one raw line.
//
// Outputs:
//
//	Result - The parsed line and its matches.
//	bool - False when the line is blank or filtered out by level.
func (s *Session) MatchLine(raw string) (Result, bool) {
	line, ok := Parse(raw)
	if !ok {
		return Result{}, false
	}
	if s.levels != nil {
		if _, keep := s.levels[strings.ToUpper(line.Level)]; !keep {
			return Result{}, false
		}
	}
	return Result{Line: line, Matches: s.match(line)}, true
}

func (s *Session) match(line Line) []template.LogMatch {
	hint := ""
	if l := LevelHint(line.Level); l != template.LevelUnknown {
		hint = string(l)
	}
	matches := s.matcher.Match(line.Message, hint)
	kept := matches[:0]
	for _, m := range matches {
		if m.Confidence >= s.opts.Threshold {
			kept = append(kept, m)
		}
	}
	if s.opts.BestOnly && len(kept) > 1 {
		kept = kept[:1]
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}

// Run matches every line of in, handing each result to emit.
//
// Description:
//
//	Lines are numbered from 1 in input order, counting blank and filtered
//	lines. Invalid UTF-8 is dropped from lines. Reading stops at EOF, after
//	SampleLines lines, on an emit error, or when ctx is canceled.
//
// Outputs:
//
//	*Report - Statistics of the lines processed so far. Never nil.
//	error - Read, emit or context errors.
func (s *Session) Run(ctx context.Context, in io.Reader, emit func(Result) error) (*Report, error) {
	ctx, span := tracer.Start(ctx, "logline.Run", trace.WithAttributes(
		attribute.Float64("match.threshold", s.opts.Threshold),
		attribute.Bool("match.best_only", s.opts.BestOnly),
	))
	defer span.End()

	report := NewReport(s.opts.UnmatchedSamples)
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	n := 0
	for scanner.Scan() {
		n++
		if s.opts.SampleLines > 0 && n > s.opts.SampleLines {
			break
		}
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				span.SetStatus(codes.Error, err.Error())
				return report, err
			}
		}
		res, ok := s.MatchLine(scanner.Text())
		if !ok {
			continue
		}
		res.LineNumber = n
		report.Add(res)
		if emit != nil {
			if err := emit(res); err != nil {
				span.SetStatus(codes.Error, err.Error())
				return report, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return report, fmt.Errorf("reading log lines: %w", err)
	}

	span.SetAttributes(
		attribute.Int("match.lines", report.TotalLines),
		attribute.Int("match.matched", report.MatchedLines),
	)
	s.logger.Debug("matching run finished",
		slog.String("run_id", report.RunID),
		slog.Int("lines", report.TotalLines),
		slog.Int("matched", report.MatchedLines),
	)
	return report, ctx.Err()
}
