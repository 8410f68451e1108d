// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultReloadDelay coalesces the bursts of events one file write produces.
const DefaultReloadDelay = 200 * time.Millisecond

// Watch reloads the index whenever its templates file changes.
//
// Description:
//
//	The parent directory is watched so that files replaced by rename, as
//	editors and WriteTemplatesFile do, keep being tracked. Events for other
//	files are ignored. Reloads run delay after the last event; a failed
//	reload is logged and the previous generation stays in service.
//
// Outputs:
//
//	error - Watcher setup errors. Nil once ctx is canceled.
func (i *Index) Watch(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		delay = DefaultReloadDelay
	}
	abs, err := filepath.Abs(i.path)
	if err != nil {
		return fmt.Errorf("resolving templates path: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	timer := time.NewTimer(delay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(delay)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			i.logger.Warn("template watcher error", slog.String("error", err.Error()))
		case <-timer.C:
			if err := i.Load(ctx); err != nil {
				i.logger.Warn("template reload failed, keeping previous generation",
					slog.String("path", i.path),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
