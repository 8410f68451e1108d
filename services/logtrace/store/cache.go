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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/logtrace/services/logtrace/template"
)

// DefaultCacheDir is the cache directory created under the working directory.
const DefaultCacheDir = ".logtemplates_cache"

// cacheSchemaVersion is bumped when the extraction output for unchanged
// sources may differ, invalidating every entry.
const cacheSchemaVersion = "2"

// Key prefixes for the template cache.
const (
	keyPrefixFile = "logtrace:file:"
)

// CacheEntry is the cached extraction result of one source file.
type CacheEntry struct {
	// Path is the source path the templates were extracted from.
	Path string `json:"path"`

	// ContentHash is the SHA-256 of the source bytes.
	ContentHash string `json:"content_hash"`

	// SchemaVersion guards against entries written by incompatible builds.
	SchemaVersion string `json:"schema_version"`

	// Fingerprint identifies the extraction settings that produced the
	// templates.
	Fingerprint string `json:"fingerprint"`

	// UpdatedAtMilli is when the entry was written (Unix milliseconds UTC).
	UpdatedAtMilli int64 `json:"updated_at_milli"`

	Templates []template.LogTemplate `json:"templates"`
}

// Cache stores per-file extraction results keyed by source path.
//
// Description:
//
//	A file whose content hash matches its entry reuses the stored templates.
//	Entries are replaced as a whole on every Put, never merged, so a file
//	re-extracted after a change cannot accumulate stale templates.
//
// Thread Safety:
//
//	Safe for concurrent use. BadgerDB handles its own concurrency control.
type Cache struct {
	db     *badger.DB
	owned  bool
	logger *slog.Logger
}

// OpenCache opens or creates the on-disk cache in dir.
func OpenCache(dir string, logger *slog.Logger) (*Cache, error) {
	if dir == "" {
		return nil, fmt.Errorf("cache directory must not be empty")
	}
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening template cache %s: %w", dir, err)
	}
	c, err := NewCache(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	c.owned = true
	return c, nil
}

// NewCache wraps an opened BadgerDB. The caller keeps ownership of db.
func NewCache(db *badger.DB, logger *slog.Logger) (*Cache, error) {
	if db == nil {
		return nil, fmt.Errorf("badger db must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{db: db, logger: logger}, nil
}

// Close closes the database when the cache opened it.
func (c *Cache) Close() error {
	if c == nil || !c.owned {
		return nil
	}
	return c.db.Close()
}

// Get returns the cached templates of path when its hash and the
// extraction fingerprint are unchanged.
//
// Outputs:
//
//	[]template.LogTemplate - The cached templates, possibly empty.
//	bool - True on a hit. A missing entry, a different hash or
//	  fingerprint, a stale schema, or an unreadable entry are all misses.
//	error - Non-nil only on context cancellation or database failure.
func (c *Cache) Get(ctx context.Context, path, contentHash, fingerprint string) ([]template.LogTemplate, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	var entry CacheEntry
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(fileKey(path))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		return nil, false, nil
	case err != nil:
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
			c.logger.Warn("ignoring corrupt cache entry", slog.String("path", path), slog.Any("error", err))
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading cache entry for %s: %w", path, err)
	}
	if entry.ContentHash != contentHash || entry.SchemaVersion != cacheSchemaVersion ||
		entry.Fingerprint != fingerprint {
		return nil, false, nil
	}
	return entry.Templates, true, nil
}

// Put replaces the entry of path. fingerprint is the one later passed to Get.
func (c *Cache) Put(ctx context.Context, path, contentHash, fingerprint string, templates []template.LogTemplate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if templates == nil {
		templates = []template.LogTemplate{}
	}
	raw, err := json.Marshal(CacheEntry{
		Path:           path,
		ContentHash:    contentHash,
		SchemaVersion:  cacheSchemaVersion,
		Fingerprint:    fingerprint,
		UpdatedAtMilli: time.Now().UnixMilli(),
		Templates:      templates,
	})
	if err != nil {
		return fmt.Errorf("marshaling cache entry: %w", err)
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(fileKey(path), raw)
	})
	if err != nil {
		return fmt.Errorf("writing cache entry for %s: %w", path, err)
	}
	return nil
}

// Prune deletes entries whose path is not in keep and returns how many
// were removed.
func (c *Cache) Prune(ctx context.Context, keep map[string]struct{}) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var stale [][]byte
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefixFile)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(opts.Prefix); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			if _, ok := keep[string(key[len(keyPrefixFile):])]; !ok {
				stale = append(stale, key)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scanning cache: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	wb := c.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range stale {
		if err := wb.Delete(key); err != nil {
			return 0, fmt.Errorf("pruning cache: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("pruning cache: %w", err)
	}
	c.logger.Debug("pruned template cache", slog.Int("removed", len(stale)))
	return len(stale), nil
}

// Len returns the number of cached files.
func (c *Cache) Len() (int, error) {
	n := 0
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefixFile)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(opts.Prefix); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("counting cache entries: %w", err)
	}
	return n, nil
}

func fileKey(path string) []byte {
	return []byte(keyPrefixFile + path)
}
