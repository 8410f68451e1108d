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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// DefaultIncludes selects Java sources.
var DefaultIncludes = []string{"*.java"}

// DefaultExcludes skips build output, VCS metadata, dependencies, tests and
// sample code.
var DefaultExcludes = []string{
	"*/target/*", "*/build/*", "*/bin/*", "*/out/*",
	"*/.git/*", "*/.svn/*", "*/.hg/*",
	"*/node_modules/*", "*/__pycache__/*",
	"*/test/*", "*/tests/*", "*/testing/*",
	"*/example/*", "*/examples/*", "*/sample/*", "*/samples/*",
}

// Walker lists source files under a root.
//
// Description:
//
//	Patterns are shell globs matched against the slash-separated path
//	relative to the root, with a leading "/". A "*" matches any run of
//	characters including "/", "?" matches one character, "[...]" a class
//	("[!...]" negates) and "{a,b}" either alternative. A file is kept when it matches an include pattern
//	and no exclude pattern. Directories matching an exclude pattern are not
//	entered.
//
// Thread Safety:
//
//	Walker is immutable after construction and safe for concurrent use.
type Walker struct {
	include []glob.Glob
	exclude []glob.Glob
}

// NewWalker compiles include and exclude globs. Empty include selects
// DefaultIncludes; exclude patterns are added to DefaultExcludes.
func NewWalker(include, exclude []string) (*Walker, error) {
	if len(include) == 0 {
		include = DefaultIncludes
	}
	w := &Walker{}
	for _, p := range include {
		g, err := compileGlob(p)
		if err != nil {
			return nil, err
		}
		w.include = append(w.include, g)
	}
	for _, p := range append(append([]string{}, DefaultExcludes...), exclude...) {
		g, err := compileGlob(p)
		if err != nil {
			return nil, err
		}
		w.exclude = append(w.exclude, g)
	}
	return w, nil
}

// Walk returns the selected files under root in lexical order.
//
// A missing root yields no files and no error.
func (w *Walker) Walk(ctx context.Context, root string) ([]string, error) {
	info, err := os.Stat(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		if w.Selects(filepath.Base(root)) {
			return []string{root}, nil
		}
		return nil, nil
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil || rel == "." {
			return nil
		}
		if d.IsDir() {
			if w.excluded("/" + filepath.ToSlash(rel) + "/") {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && w.Selects(rel) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// Selects reports whether the root-relative file path is selected.
func (w *Walker) Selects(rel string) bool {
	p := "/" + strings.TrimPrefix(filepath.ToSlash(rel), "/")
	if w.excluded(p) {
		return false
	}
	for _, g := range w.include {
		if g.Match(p) {
			return true
		}
	}
	return false
}

func (w *Walker) excluded(p string) bool {
	for _, g := range w.exclude {
		if g.Match(p) {
			return true
		}
	}
	return false
}

var errBadGlob = errors.New("invalid glob")

// compileGlob compiles a shell glob without separators, so "*" also
// matches "/".
func compileGlob(pattern string) (glob.Glob, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", errBadGlob, pattern, err)
	}
	return g, nil
}
