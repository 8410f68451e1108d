// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package server exposes template matching over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/logtrace/services/logtrace/matcher"
	"github.com/AleutianAI/logtrace/services/logtrace/store"
	"github.com/AleutianAI/logtrace/services/logtrace/template"
)

var tracer = otel.Tracer("logtrace.server")

// ErrNotLoaded is returned when no template set has been loaded yet.
var ErrNotLoaded = errors.New("templates not loaded")

// Snapshot is one immutable generation of the loaded templates.
type Snapshot struct {
	Matcher    *matcher.Matcher
	Stats      store.TemplateStats
	Source     string
	LoadedAt   time.Time
	Generation int
}

// Index holds the current template trie and swaps it on reload.
//
// Description:
//
//	Readers take the current Snapshot and keep using it for the whole
//	request; a reload builds a new trie off-lock and publishes it in one
//	step. A failed reload keeps the previous generation.
//
// Thread Safety: Safe for concurrent use.
type Index struct {
	path    string
	opts    []matcher.Option
	logger  *slog.Logger
	loadMu  sync.Mutex
	mu      sync.RWMutex
	current *Snapshot
}

// NewIndex creates an index over the NDJSON templates file at path. Nothing
// is read until Load.
func NewIndex(path string, logger *slog.Logger, opts ...matcher.Option) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{path: path, opts: opts, logger: logger}
}

// Path returns the templates file path.
func (i *Index) Path() string {
	return i.path
}

// Current returns the loaded snapshot, or nil before the first Load.
func (i *Index) Current() *Snapshot {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.current
}

// Load reads the templates file and publishes a new generation.
func (i *Index) Load(ctx context.Context) error {
	_, span := tracer.Start(ctx, "server.Index.Load", trace.WithAttributes(
		attribute.String("templates.path", i.path),
	))
	defer span.End()

	i.loadMu.Lock()
	defer i.loadMu.Unlock()

	templates, err := store.ReadTemplatesFile(i.path, i.logger)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		recordReload(false)
		return fmt.Errorf("loading templates: %w", err)
	}
	i.Swap(templates)
	recordReload(true)
	span.SetAttributes(attribute.Int("templates.count", len(templates)))
	return nil
}

// Swap publishes templates as the next generation.
func (i *Index) Swap(templates []template.LogTemplate) *Snapshot {
	next := &Snapshot{
		Matcher:  matcher.Build(templates, i.opts...),
		Stats:    store.ComputeStats(templates),
		Source:   i.path,
		LoadedAt: time.Now(),
	}

	i.mu.Lock()
	if i.current != nil {
		next.Generation = i.current.Generation + 1
	}
	i.current = next
	i.mu.Unlock()

	templatesLoaded.Set(float64(len(templates)))
	i.logger.Info("templates loaded",
		slog.String("path", i.path),
		slog.Int("templates", len(templates)),
		slog.Int("generation", next.Generation),
	)
	return next
}
