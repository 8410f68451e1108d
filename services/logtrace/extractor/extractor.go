// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package extractor turns Java sources into log templates.
//
// A file is parsed once, its syntax tree is traversed with the enclosing
// type and method tracked, and every logging call goes through the rule
// engine and, when the message is held in a variable, the slicer. The
// resulting templates of each call site are bounded by the branch-variant
// limiter. ExtractRepository runs files on a fixed worker pool.
package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/AleutianAI/logtrace/services/logtrace/ast"
	"github.com/AleutianAI/logtrace/services/logtrace/rules"
	"github.com/AleutianAI/logtrace/services/logtrace/slicer"
	"github.com/AleutianAI/logtrace/services/logtrace/template"
)

// DefaultMaxBranchVariants bounds templates kept per call site.
const DefaultMaxBranchVariants = 16

// Option configures an Extractor.
type Option func(*Extractor)

// WithMaxBranchVariants sets the per-site template bound. Values below 1
// are ignored.
func WithMaxBranchVariants(n int) Option {
	return func(x *Extractor) {
		if n > 0 {
			x.maxVariants = n
		}
	}
}

// WithSlicer replaces the default structured slicer.
func WithSlicer(s *slicer.Slicer) Option {
	return func(x *Extractor) {
		if s != nil {
			x.slicer = s
		}
	}
}

// WithMaxFileSize bounds the size of parsed files.
func WithMaxFileSize(bytes int64) Option {
	return func(x *Extractor) {
		if bytes > 0 {
			x.maxFileSize = bytes
		}
	}
}

// WithLogger sets the logger for skipped files.
func WithLogger(logger *slog.Logger) Option {
	return func(x *Extractor) {
		if logger != nil {
			x.logger = logger
		}
	}
}

// Extractor extracts log templates from Java source.
//
// Thread Safety:
//
//	Extractor is immutable after construction and safe for concurrent use.
//	Each call creates or receives its own tree-sitter parser.
type Extractor struct {
	engine      *rules.Engine
	slicer      *slicer.Slicer
	maxVariants int
	maxFileSize int64
	logger      *slog.Logger
	fingerprint string
}

// New creates an Extractor around engine.
func New(engine *rules.Engine, opts ...Option) *Extractor {
	if engine == nil {
		engine = rules.NewEngine()
	}
	x := &Extractor{
		engine:      engine,
		maxVariants: DefaultMaxBranchVariants,
		maxFileSize: ast.DefaultMaxFileSize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(x)
	}
	if x.slicer == nil {
		x.slicer = slicer.New(engine, slicer.WithLogger(x.logger))
	}
	x.fingerprint = fingerprint(x)
	return x
}

// MaxBranchVariants returns the per-site template bound.
func (x *Extractor) MaxBranchVariants() int {
	return x.maxVariants
}

// Fingerprint identifies every setting that shapes extraction output.
// Cached templates are reused only under an equal fingerprint.
func (x *Extractor) Fingerprint() string {
	return x.fingerprint
}

func fingerprint(x *Extractor) string {
	settings := fmt.Sprintf("variants=%d slice=%s depth=%d rules=%+v",
		x.maxVariants, x.slicer.Mode(), x.slicer.MaxResolveDepth(), x.engine.Options())
	return ast.HashContent([]byte(settings))[:16]
}

func (x *Extractor) newParser() *ast.JavaParser {
	return ast.NewJavaParser(ast.WithJavaMaxFileSize(x.maxFileSize))
}

// ExtractFile reads and extracts the Java file at path.
func (x *Extractor) ExtractFile(ctx context.Context, path string) ([]template.LogTemplate, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return x.ExtractSource(ctx, content, path)
}

// ExtractSource extracts templates from Java source content.
//
// Description:
//
//	path is recorded in every template location and feeds the template id,
//	so extracting the same content under the same path always yields the
//	same templates in the same order.
//
// Outputs:
//
//	[]template.LogTemplate - Templates in source order, limited per site.
//	error - Parse failures: size limit, invalid UTF-8, or cancellation.
func (x *Extractor) ExtractSource(ctx context.Context, content []byte, path string) ([]template.LogTemplate, error) {
	parser := x.newParser()
	defer parser.Close()
	return x.extract(ctx, parser, content, path)
}

func (x *Extractor) extract(ctx context.Context, parser *ast.JavaParser, content []byte, path string) ([]template.LogTemplate, error) {
	res, err := parser.Parse(ctx, content, path)
	if err != nil {
		return nil, err
	}
	defer res.Close()

	var out []template.LogTemplate
	x.traverse(res.Root, res.Source, template.ExtractionContext{FilePath: path}, func(site rules.Site) {
		out = append(out, x.templatesAt(site)...)
	})
	return LimitVariants(out, x.maxVariants), nil
}

type frame struct {
	node *sitter.Node
	ctx  template.ExtractionContext
}

// traverse visits the tree in source order, tracking the enclosing type and
// method, and reports every logging call.
func (x *Extractor) traverse(root *sitter.Node, src []byte, ctx template.ExtractionContext, emit func(rules.Site)) {
	stack := []frame{{node: root, ctx: ctx}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n, c := f.node, f.ctx

		switch n.Type() {
		case ast.NodeClassDeclaration, ast.NodeInterfaceDeclaration, ast.NodeEnumDeclaration,
			ast.NodeRecordDeclaration, "annotation_type_declaration":
			c = c.WithClass(ast.FieldText(n, "name", src)).WithMethod("")
		case ast.NodeClassBody:
			if p := n.Parent(); p != nil && p.Type() == ast.NodeObjectCreation {
				c = c.WithMethod("")
			}
		case ast.NodeMethodDeclaration, ast.NodeConstructorDeclaration, ast.NodeCompactConstructor:
			c = c.WithMethod(ast.FieldText(n, "name", src))
		case ast.NodeMethodInvocation:
			if x.engine.IsLoggingCall(n, src) {
				emit(rules.Site{Node: n, Source: src, Context: c.WithLine(ast.Line(n))})
			}
		}

		for i := int(n.NamedChildCount()) - 1; i >= 0; i-- {
			if child := n.NamedChild(i); child != nil && !ast.IsComment(child) {
				stack = append(stack, frame{node: child, ctx: c})
			}
		}
	}
}

// templatesAt extracts the templates of one logging call.
func (x *Extractor) templatesAt(site rules.Site) []template.LogTemplate {
	patterns := x.patternsAt(site)
	if len(patterns) == 0 {
		return nil
	}
	loc := site.Context.Location()
	level := x.engine.Level(site)
	out := make([]template.LogTemplate, 0, len(patterns))
	for i, p := range patterns {
		out = append(out, template.New(loc, p, level, i))
	}
	return out
}

// patternsAt runs the rules. An indirect message is sliced; a message whose
// identifiers resolve to more literal text than the rules saw is replaced
// by the resolved variants.
func (x *Extractor) patternsAt(site rules.Site) []string {
	var direct []string
	indirect := false
	for _, p := range x.engine.Extract(site) {
		if p == rules.IndirectMarker {
			indirect = true
			continue
		}
		direct = append(direct, p)
	}

	if len(direct) == 0 {
		if !indirect {
			return nil
		}
		if v := x.engine.MessageVariable(site); v != "" {
			res := x.slicer.Slice(site.Node, site.Source, v)
			return x.finish(site, res.Patterns)
		}
		return nil
	}

	// Identifiers in the message may be locals or constants with known text.
	msg := ast.Unwrap(x.engine.MessageArgument(site.Node, site.Source))
	if msg != nil && !isLiteral(msg) && hasWildcard(direct) {
		resolved := x.finish(site, x.slicer.ResolveExpression(msg, site.Source))
		if maxLiterals(resolved) > maxLiterals(direct) {
			return resolved
		}
	}
	return unique(direct)
}

func isLiteral(n *sitter.Node) bool {
	switch n.Type() {
	case ast.NodeStringLiteral, ast.NodeTextBlock:
		return true
	}
	return false
}

func (x *Extractor) finish(site rules.Site, patterns []string) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, x.engine.FinishPattern(site, p))
	}
	return unique(out)
}

func hasWildcard(patterns []string) bool {
	for _, p := range patterns {
		if template.CountLiteralTokens(p) < len(template.Tokenize(p)) || strings.Contains(p, template.Placeholder) {
			return true
		}
	}
	return false
}

func maxLiterals(patterns []string) int {
	best := 0
	for _, p := range patterns {
		if n := template.CountLiteralTokens(p); n > best {
			best = n
		}
	}
	return best
}

// unique normalizes patterns, dropping empty and repeated ones.
func unique(patterns []string) []string {
	seen := make(map[string]struct{}, len(patterns))
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = template.NormalizePattern(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
