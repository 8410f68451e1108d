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
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/logtrace/services/logtrace/rules"
	"github.com/AleutianAI/logtrace/services/logtrace/slicer"
	"github.com/AleutianAI/logtrace/services/logtrace/store"
)

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func javaClass(name, message string) string {
	return "class " + name + " {\n  void run(String id) {\n    log.info(\"" + message + " {}\", id);\n  }\n}\n"
}

// sampleRepo lays out a small project with files that must be skipped.
func sampleRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "src/main/java/App.java", javaClass("App", "App started"))
	writeFile(t, root, "src/main/java/Util.java", javaClass("Util", "Util loaded"))
	writeFile(t, root, "src/test/java/AppTest.java", javaClass("AppTest", "test only"))
	writeFile(t, root, "target/generated/Gen.java", javaClass("Gen", "generated"))
	writeFile(t, root, "examples/Demo.java", javaClass("Demo", "demo"))
	writeFile(t, root, "README.md", "# sample\n")
	return root
}

func newTestCache(t *testing.T) *store.Cache {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	c, err := store.NewCache(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return c
}

func TestWalker_DefaultExcludes(t *testing.T) {
	root := sampleRepo(t)
	w, err := NewWalker(nil, nil)
	require.NoError(t, err)

	files, err := w.Walk(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "src", "main", "java", "App.java"),
		filepath.Join(root, "src", "main", "java", "Util.java"),
	}, files)
}

func TestWalker_Patterns(t *testing.T) {
	tests := []struct {
		name    string
		include []string
		exclude []string
		path    string
		want    bool
	}{
		{"java selected", nil, nil, "src/A.java", true},
		{"non java ignored", nil, nil, "src/A.kt", false},
		{"top level test dir", nil, nil, "test/A.java", false},
		{"nested build dir", nil, nil, "mod/build/A.java", false},
		{"user exclude", nil, []string{"*/legacy/*"}, "src/legacy/A.java", false},
		{"question mark", []string{"*/?.java"}, nil, "src/A.java", true},
		{"question mark needs one char", []string{"*/?.java"}, nil, "src/AB.java", false},
		{"negated class", []string{"/[!X]*.java"}, nil, "Xy.java", false},
		{"negated class admits others", []string{"/[!X]*.java"}, nil, "Yy.java", true},
		{"character class", []string{"*/[AB]*.java"}, nil, "src/Bx.java", true},
		{"testing substring is not a dir", nil, nil, "src/Testing.java", true},
		{"alternatives", []string{"*/{App,Util}.java"}, nil, "src/Util.java", true},
		{"alternatives reject others", []string{"*/{App,Util}.java"}, nil, "src/Other.java", false},
		{"star crosses directories", []string{"/src/*.java"}, nil, "src/main/deep/A.java", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := NewWalker(tt.include, tt.exclude)
			require.NoError(t, err)
			assert.Equal(t, tt.want, w.Selects(tt.path))
		})
	}
}

func TestWalker_MissingRootAndSingleFile(t *testing.T) {
	w, err := NewWalker(nil, nil)
	require.NoError(t, err)

	files, err := w.Walk(context.Background(), filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, files)

	path := writeFile(t, t.TempDir(), "One.java", javaClass("One", "one"))
	files, err = w.Walk(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{path}, files)
}

func TestExtractRepository(t *testing.T) {
	root := sampleRepo(t)
	x := newTestExtractor()

	res, err := x.ExtractRepository(context.Background(), root, RepositoryOptions{Workers: 4})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Files)
	assert.Zero(t, res.Failed)
	assert.Equal(t, []string{"App started <*>", "Util loaded <*>"}, patterns(res.Templates))
	assert.Equal(t, filepath.Join(root, "src", "main", "java", "App.java"), res.Templates[0].Location.FilePath)
}

func TestExtractRepository_WalkOrderIndependentOfWorkers(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"A", "B", "C", "D", "E", "F", "G", "H"} {
		writeFile(t, root, "src/"+name+".java", javaClass(name, "event "+name))
	}
	x := newTestExtractor()

	serial, err := x.ExtractRepository(context.Background(), root, RepositoryOptions{Workers: 1})
	require.NoError(t, err)
	parallel, err := x.ExtractRepository(context.Background(), root, RepositoryOptions{Workers: 8})
	require.NoError(t, err)
	require.Len(t, serial.Templates, 8)
	assert.Equal(t, serial.Templates, parallel.Templates)
}

func TestExtractRepository_MissingRoot(t *testing.T) {
	res, err := newTestExtractor().ExtractRepository(context.Background(), filepath.Join(t.TempDir(), "absent"), RepositoryOptions{})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Empty(t, res.Templates)
	assert.Zero(t, res.Files)
}

func TestExtractRepository_SkipsBadFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/Good.java", javaClass("Good", "good"))
	writeFile(t, root, "src/Bad.java", string([]byte{0xff, 0xfe, 0x00}))

	res, err := newTestExtractor().ExtractRepository(context.Background(), root, RepositoryOptions{Workers: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Files)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, []string{"good <*>"}, patterns(res.Templates))
}

func TestExtractRepository_Cache(t *testing.T) {
	root := sampleRepo(t)
	cache := newTestCache(t)
	x := newTestExtractor()
	opts := RepositoryOptions{Workers: 2, Cache: cache}

	first, err := x.ExtractRepository(context.Background(), root, opts)
	require.NoError(t, err)
	assert.Zero(t, first.Cached)

	second, err := x.ExtractRepository(context.Background(), root, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Cached)
	assert.Equal(t, first.Templates, second.Templates)

	writeFile(t, root, "src/main/java/Util.java", javaClass("Util", "Util reloaded"))
	require.NoError(t, os.Remove(filepath.Join(root, "src", "main", "java", "App.java")))

	third, err := x.ExtractRepository(context.Background(), root, opts)
	require.NoError(t, err)
	assert.Zero(t, third.Cached, "a changed file is re-extracted")
	assert.Equal(t, []string{"Util reloaded <*>"}, patterns(third.Templates))

	n, err := cache.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n, "entries of removed files are pruned")
}

func TestExtractRepository_CacheKeyedByConfig(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/PaymentService.java", paymentService)
	cache := newTestCache(t)
	opts := RepositoryOptions{Workers: 1, Cache: cache}

	defaults := newTestExtractor()
	warm, err := defaults.ExtractRepository(context.Background(), root, opts)
	require.NoError(t, err)
	require.Len(t, warm.Templates, 2)

	tests := []struct {
		name   string
		x      *Extractor
		want   int
		cached int
	}{
		{"same config hits", newTestExtractor(), 2, 1},
		{"variant bound", newTestExtractor(WithMaxBranchVariants(1)), 1, 0},
		{"slice mode", newTestExtractor(WithSlicer(slicer.New(rules.NewEngine(), slicer.WithMode(slicer.ModeSequential)))), 1, 0},
		{"rule options", New(rules.NewEngine(rules.WithMaxVariants(8)), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))), 2, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.cached == 0 {
				assert.NotEqual(t, defaults.Fingerprint(), tt.x.Fingerprint())
			}
			res, err := tt.x.ExtractRepository(context.Background(), root, opts)
			require.NoError(t, err)
			assert.Len(t, res.Templates, tt.want)
			assert.Equal(t, tt.cached, res.Cached)

			// restore the default entry for the next case
			_, err = defaults.ExtractRepository(context.Background(), root, opts)
			require.NoError(t, err)
		})
	}
}

func TestExtractRepository_Canceled(t *testing.T) {
	root := sampleRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := newTestExtractor().ExtractRepository(ctx, root, RepositoryOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Empty(t, res.Templates)
}

func TestExtractRepository_BadGlob(t *testing.T) {
	_, err := newTestExtractor().ExtractRepository(context.Background(), t.TempDir(), RepositoryOptions{Include: []string{"*/[abc.java"}})
	assert.ErrorIs(t, err, errBadGlob)

	_, err = NewWalker(nil, []string{"*/[legacy/*"})
	assert.ErrorIs(t, err, errBadGlob)
}
