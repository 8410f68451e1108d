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
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/logtrace/services/logtrace/config"
	"github.com/AleutianAI/logtrace/services/logtrace/extractor"
	"github.com/AleutianAI/logtrace/services/logtrace/rules"
	"github.com/AleutianAI/logtrace/services/logtrace/slicer"
	"github.com/AleutianAI/logtrace/services/logtrace/store"
	"github.com/AleutianAI/logtrace/services/logtrace/template"
)

type extractFlags struct {
	src         string
	out         string
	include     []string
	exclude     []string
	cacheDir    string
	noCache     bool
	workers     int
	maxVariants int
	fastSlice   bool
}

func newExtractCmd(a *app) *cobra.Command {
	f := &extractFlags{}
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract log templates from a Java source tree",
		Long: `Walk a source tree, find every logging call and write one template per
message variant as newline-delimited JSON.

Examples:
  logtrace extract --src ./service --out templates.ndjson
  logtrace extract --src . --out t.ndjson --exclude "*/generated/*" --workers 8`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExtract(cmd, a, f)
		},
	}
	cmd.Flags().StringVar(&f.src, "src", "", "source directory or file")
	cmd.Flags().StringVar(&f.out, "out", "", "output NDJSON file")
	cmd.Flags().StringSliceVar(&f.include, "include", []string{"*.java"}, "file globs to include")
	cmd.Flags().StringSliceVar(&f.exclude, "exclude", nil, "additional globs to exclude")
	cmd.Flags().StringVar(&f.cacheDir, "cache-dir", store.DefaultCacheDir, "incremental cache directory")
	cmd.Flags().BoolVar(&f.noCache, "no-cache", false, "disable the incremental cache")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "parallel workers (0 = one per CPU)")
	cmd.Flags().IntVar(&f.maxVariants, "max-variants", extractor.DefaultMaxBranchVariants, "maximum branch variants per call site")
	cmd.Flags().BoolVar(&f.fastSlice, "fast-slice", false, "use the sequential slicer, which ignores branches")
	_ = cmd.MarkFlagRequired("src")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

// extractConfig applies the flags the user set over the loaded config.
func extractConfig(cmd *cobra.Command, base *config.Config, f *extractFlags) (*config.Config, error) {
	cfg := *base
	flags := cmd.Flags()
	if flags.Changed("include") {
		cfg.Extraction.Include = f.include
	}
	if flags.Changed("exclude") {
		cfg.Extraction.Exclude = append(append([]string(nil), cfg.Extraction.Exclude...), f.exclude...)
	}
	if flags.Changed("cache-dir") {
		cfg.Cache.Dir = f.cacheDir
	}
	if f.noCache {
		cfg.Cache.Enabled = false
	}
	if flags.Changed("workers") {
		cfg.Extraction.Workers = f.workers
	}
	if flags.Changed("max-variants") {
		cfg.Extraction.MaxBranchVariants = f.maxVariants
	}
	if f.fastSlice {
		cfg.Extraction.SliceMode = slicer.ModeSequential.String()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// newExtractor wires the rule engine, slicer and extractor from cfg.
func newExtractor(cfg *config.Config, logger *slog.Logger) *extractor.Extractor {
	engine := rules.NewEngine(rules.WithOptions(cfg.RuleOptions()))
	sl := slicer.New(engine,
		slicer.WithMode(cfg.SliceMode()),
		slicer.WithMaxResolveDepth(cfg.Extraction.MaxResolveDepth),
		slicer.WithLogger(logger),
	)
	return extractor.New(engine,
		extractor.WithSlicer(sl),
		extractor.WithMaxBranchVariants(cfg.Extraction.MaxBranchVariants),
		extractor.WithMaxFileSize(cfg.Extraction.MaxFileSize),
		extractor.WithLogger(logger),
	)
}

func runExtract(cmd *cobra.Command, a *app, f *extractFlags) error {
	cfg, err := extractConfig(cmd, a.cfg, f)
	if err != nil {
		return err
	}
	if _, err := os.Stat(f.src); err != nil {
		a.logger.Warn("source path not found, no templates will be extracted", slog.String("src", f.src))
	}

	var cache *store.Cache
	if cfg.Cache.Enabled {
		cache, err = store.OpenCache(cfg.Cache.Dir, a.logger)
		if err != nil {
			a.logger.Warn("extraction cache unavailable, continuing without it",
				slog.String("dir", cfg.Cache.Dir),
				slog.String("error", err.Error()),
			)
			cache = nil
		} else {
			defer func() {
				if err := cache.Close(); err != nil {
					a.logger.Warn("closing extraction cache", slog.String("error", err.Error()))
				}
			}()
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	x := newExtractor(cfg, a.logger)
	res, err := x.ExtractRepository(ctx, f.src, extractor.RepositoryOptions{
		Include: cfg.Extraction.Include,
		Exclude: cfg.Extraction.Exclude,
		Workers: cfg.Extraction.Workers,
		Cache:   cache,
	})
	if err != nil {
		return fmt.Errorf("extracting %s: %w", f.src, err)
	}
	if err := store.WriteTemplatesFile(f.out, res.Templates); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Extracted %d templates from %d files (%d cached, %d failed) in %s\n",
		len(res.Templates), res.Files, res.Cached, res.Failed, res.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Unique locations: %d\n", uniqueLocations(res.Templates))
	fmt.Fprintf(w, "Unique patterns: %d\n", store.ComputeStats(res.Templates).UniquePatterns)
	fmt.Fprintf(w, "Templates written to %s\n", f.out)
	return nil
}

func uniqueLocations(ts []template.LogTemplate) int {
	seen := make(map[string]struct{}, len(ts))
	for _, t := range ts {
		seen[t.Location.Key()] = struct{}{}
	}
	return len(seen)
}
