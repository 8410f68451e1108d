// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/logtrace/services/logtrace/ast"
	"github.com/AleutianAI/logtrace/services/logtrace/store"
	"github.com/AleutianAI/logtrace/services/logtrace/template"
)

// RepositoryOptions configures ExtractRepository.
type RepositoryOptions struct {
	// Include and Exclude are shell globs; see Walker.
	Include []string
	Exclude []string

	// Workers is the pool size. Zero uses GOMAXPROCS.
	Workers int

	// Cache, when set, reuses templates of files whose content is unchanged.
	Cache *store.Cache
}

// RepositoryResult is the outcome of a repository extraction.
type RepositoryResult struct {
	Templates []template.LogTemplate
	Files     int
	Cached    int
	Failed    int
	Duration  time.Duration
}

// ExtractRepository extracts every selected source file under root.
//
// Description:
//
//	Files are listed by the walker, then distributed to a fixed pool of
//	workers, each owning one parser. A file that cannot be read or parsed
//	is logged and skipped. Templates are concatenated in walk order
//	whatever the completion order. With a cache, unchanged files reuse
//	their stored templates and, after a complete run, entries for files no
//	longer present are pruned.
//
// Inputs:
//
//	ctx - Cancellation abandons the remaining files.
//	root - Directory (or single file) to extract.
//	opts - Globs, pool size and cache.
//
// Outputs:
//
//	*RepositoryResult - Never nil. Partial when ctx is canceled.
//	error - Invalid globs, an unreadable root, or the context error.
//
// Thread Safety:
//
//	Safe for concurrent use.
func (x *Extractor) ExtractRepository(ctx context.Context, root string, opts RepositoryOptions) (*RepositoryResult, error) {
	start := time.Now()
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	ctx, span := startRepositorySpan(ctx, root, workers)
	defer span.End()

	result := &RepositoryResult{}
	walker, err := NewWalker(opts.Include, opts.Exclude)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return result, fmt.Errorf("compiling file patterns: %w", err)
	}
	files, err := walker.Walk(ctx, root)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return result, fmt.Errorf("walking %s: %w", root, err)
	}
	result.Files = len(files)
	if workers > len(files) {
		workers = len(files)
	}

	perFile := make([]fileOutcome, len(files))
	jobs := make(chan int)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)
		for i := range files {
			select {
			case jobs <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			parser := x.newParser()
			defer parser.Close()
			for i := range jobs {
				if err := gctx.Err(); err != nil {
					return err
				}
				perFile[i] = x.processFile(gctx, parser, files[i], opts.Cache)
			}
			return nil
		})
	}

	runErr := g.Wait()
	for _, o := range perFile {
		switch o.status {
		case statusCached:
			result.Cached++
		case statusFailed:
			result.Failed++
		}
		result.Templates = append(result.Templates, o.templates...)
	}
	result.Duration = time.Since(start)
	recordRepository(result.Duration)
	span.SetAttributes(
		attribute.Int("extract.files", result.Files),
		attribute.Int("extract.templates", len(result.Templates)),
	)

	if runErr != nil {
		span.SetStatus(codes.Error, runErr.Error())
		return result, runErr
	}

	if opts.Cache != nil {
		keep := make(map[string]struct{}, len(files))
		for _, f := range files {
			keep[f] = struct{}{}
		}
		if removed, err := opts.Cache.Prune(ctx, keep); err != nil {
			x.logger.Warn("cache prune failed", slog.String("error", err.Error()))
		} else if removed > 0 {
			x.logger.Debug("pruned stale cache entries", slog.Int("removed", removed))
		}
	}

	x.logger.Info("repository extracted",
		slog.String("root", root),
		slog.Int("files", result.Files),
		slog.Int("cached", result.Cached),
		slog.Int("failed", result.Failed),
		slog.Int("templates", len(result.Templates)),
		slog.Duration("duration", result.Duration),
	)
	return result, nil
}

type fileOutcome struct {
	status    string
	templates []template.LogTemplate
}

// processFile extracts one file, going through the cache when present.
func (x *Extractor) processFile(ctx context.Context, parser *ast.JavaParser, path string, cache *store.Cache) fileOutcome {
	content, err := os.ReadFile(path)
	if err != nil {
		x.logger.Warn("skipping unreadable file",
			slog.String("file", path),
			slog.String("error", err.Error()),
		)
		recordFile(statusFailed, 0)
		return fileOutcome{status: statusFailed}
	}

	hash := ast.HashContent(content)
	if cache != nil {
		cached, ok, err := cache.Get(ctx, path, hash, x.fingerprint)
		if err != nil {
			x.logger.Warn("cache lookup failed",
				slog.String("file", path),
				slog.String("error", err.Error()),
			)
		} else if ok {
			recordFile(statusCached, len(cached))
			return fileOutcome{status: statusCached, templates: cached}
		}
	}

	templates, err := x.extract(ctx, parser, content, path)
	if err != nil {
		x.logger.Warn("skipping file",
			slog.String("file", path),
			slog.String("error", err.Error()),
		)
		recordFile(statusFailed, 0)
		return fileOutcome{status: statusFailed}
	}

	if cache != nil {
		if err := cache.Put(ctx, path, hash, x.fingerprint, templates); err != nil {
			x.logger.Warn("cache store failed",
				slog.String("file", path),
				slog.String("error", err.Error()),
			)
		}
	}
	recordFile(statusExtracted, len(templates))
	return fileOutcome{status: statusExtracted, templates: templates}
}
