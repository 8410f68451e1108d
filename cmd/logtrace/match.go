// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/logtrace/services/logtrace/logline"
	"github.com/AleutianAI/logtrace/services/logtrace/matcher"
	"github.com/AleutianAI/logtrace/services/logtrace/store"
)

type matchFlags struct {
	templates   string
	in          string
	out         string
	format      string
	threshold   float64
	bestOnly    bool
	levelFilter string
	sampleLines int
}

func newMatchCmd(a *app) *cobra.Command {
	f := &matchFlags{}
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Match log lines against extracted templates",
		Long: `Parse each log line, match its message against the template trie and
report the source location of every consistent template.

Examples:
  logtrace match --templates t.ndjson --in app.log --out matches.csv
  logtrace match --templates t.ndjson --in app.log --format jsonl --best-only
  logtrace match --templates t.ndjson --in - --format summary --level-filter ERROR,WARN`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMatch(cmd, a, f)
		},
	}
	cmd.Flags().StringVar(&f.templates, "templates", "", "NDJSON templates file")
	cmd.Flags().StringVar(&f.in, "in", "", "log file to match, - for stdin")
	cmd.Flags().StringVar(&f.out, "out", "-", "output file, - for stdout")
	cmd.Flags().StringVar(&f.format, "format", logline.FormatCSV, "output format: "+strings.Join(logline.Formats, ", "))
	cmd.Flags().Float64Var(&f.threshold, "threshold", 0, "minimum confidence (0.0-1.0)")
	cmd.Flags().BoolVar(&f.bestOnly, "best-only", false, "keep only the best match per line")
	cmd.Flags().StringVar(&f.levelFilter, "level-filter", "", "comma-separated levels to keep, e.g. ERROR,WARN")
	cmd.Flags().IntVar(&f.sampleLines, "sample-lines", 0, "process at most this many lines (0 = all)")
	_ = cmd.MarkFlagRequired("templates")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}

func runMatch(cmd *cobra.Command, a *app, f *matchFlags) error {
	opts := logline.Options{
		Threshold:        a.cfg.Matching.Threshold,
		BestOnly:         a.cfg.Matching.BestOnly || f.bestOnly,
		Levels:           logline.ParseLevels(f.levelFilter),
		SampleLines:      f.sampleLines,
		UnmatchedSamples: a.cfg.Matching.UnmatchedSamples,
	}
	if cmd.Flags().Changed("threshold") {
		opts.Threshold = f.threshold
	}

	templates, err := store.ReadTemplatesFile(f.templates, a.logger)
	if err != nil {
		return err
	}
	if len(templates) == 0 {
		return fmt.Errorf("no templates loaded from %s", f.templates)
	}
	m := matcher.Build(templates, matcher.WithMaxWildcardSpan(a.cfg.Matching.MaxWildcardSpan))
	session, err := logline.NewSession(m, opts, a.logger)
	if err != nil {
		return err
	}

	in, closeIn, err := openInput(cmd, f.in)
	if err != nil {
		return err
	}
	defer closeIn()

	out, closeOut, err := openOutput(cmd, f.out)
	if err != nil {
		return err
	}
	w, err := logline.NewWriter(f.format, out, f.in)
	if err != nil {
		closeOut()
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, runErr := session.Run(ctx, in, w.Write)
	if err := w.Finish(report); err != nil && runErr == nil {
		runErr = err
	}
	if err := closeOut(); err != nil && runErr == nil {
		runErr = fmt.Errorf("closing output: %w", err)
	}
	if runErr != nil {
		return runErr
	}

	sum := report.Summary()
	a.logger.Info("matching complete",
		slog.Int("templates", m.Size()),
		slog.Int("lines", sum.TotalLines),
		slog.Int("matched", sum.MatchedLines),
		slog.String("match_rate", fmt.Sprintf("%.1f%%", sum.MatchRate)),
	)
	return nil
}

func openInput(cmd *cobra.Command, path string) (io.Reader, func(), error) {
	if path == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	return file, func() { file.Close() }, nil
}

func openOutput(cmd *cobra.Command, path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("creating output file: %w", err)
	}
	return file, file.Close, nil
}
