// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ast wraps tree-sitter Java parsing and the node helpers used by
// template extraction.
package ast

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"
	"go.opentelemetry.io/otel/attribute"
)

const (
	// DefaultMaxFileSize is the largest source file accepted (10MB).
	DefaultMaxFileSize int64 = 10 * 1024 * 1024

	// WarnFileSize is the size above which a warning is logged (1MB).
	WarnFileSize = 1024 * 1024
)

var (
	// ErrFileTooLarge indicates the content exceeds the parser's size limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrInvalidContent indicates the content is not valid UTF-8.
	ErrInvalidContent = errors.New("invalid content")
)

// JavaParserOption configures a JavaParser instance.
type JavaParserOption func(*JavaParser)

// WithJavaMaxFileSize sets the maximum file size the parser will accept.
//
// Parameters:
//   - bytes: Maximum file size in bytes. Must be positive.
//
// Example:
//
//	parser := NewJavaParser(WithJavaMaxFileSize(5 * 1024 * 1024)) // 5MB limit
func WithJavaMaxFileSize(bytes int64) JavaParserOption {
	return func(p *JavaParser) {
		if bytes > 0 {
			p.maxFileSize = bytes
		}
	}
}

// JavaParser parses Java source into tree-sitter syntax trees.
//
// Description:
//
//	JavaParser owns one tree-sitter parser which is reused across Parse calls.
//	Construct one JavaParser per worker goroutine and share it across that
//	worker's files.
//
// Thread Safety:
//
//	JavaParser is NOT safe for concurrent use. Trees it returns are
//	independent of the parser and may be read from any goroutine.
//
// Example:
//
//	parser := NewJavaParser()
//	defer parser.Close()
//	result, err := parser.Parse(ctx, src, "src/UserService.java")
//	if err != nil {
//	    return err
//	}
//	defer result.Close()
type JavaParser struct {
	maxFileSize int64
	parser      *sitter.Parser
}

// NewJavaParser creates a new JavaParser with the given options.
//
// Inputs:
//   - opts: Optional configuration functions (WithJavaMaxFileSize)
//
// Outputs:
//   - *JavaParser: Configured parser instance, never nil
func NewJavaParser(opts ...JavaParserOption) *JavaParser {
	p := &JavaParser{
		maxFileSize: DefaultMaxFileSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.parser = sitter.NewParser()
	p.parser.SetLanguage(java.GetLanguage())
	return p
}

// Close releases the underlying tree-sitter parser.
func (p *JavaParser) Close() {
	if p.parser != nil {
		p.parser.Close()
		p.parser = nil
	}
}

// ParseResult is a parsed Java file.
//
// Root and every node reached from it borrow Tree; call Close when done.
type ParseResult struct {
	FilePath  string
	Source    []byte
	Hash      string
	Tree      *sitter.Tree
	Root      *sitter.Node
	HasErrors bool
}

// Close releases the syntax tree.
func (r *ParseResult) Close() {
	if r != nil && r.Tree != nil {
		r.Tree.Close()
		r.Tree = nil
	}
}

// Parse builds a syntax tree for Java source code.
//
// Description:
//
//	Parse validates the content, runs tree-sitter, and returns the tree with
//	the source bytes and a content hash. The parser is error-tolerant: files
//	with syntax errors still produce a tree with HasErrors set.
//
// Inputs:
//   - ctx: Context for cancellation. Checked before and after parsing.
//   - content: Raw Java source bytes. Must be valid UTF-8.
//   - filePath: Path used for reporting and template locations.
//
// Outputs:
//   - *ParseResult: The parsed tree. Never nil on success.
//   - error: ErrFileTooLarge, ErrInvalidContent, or a context error.
//
// Thread Safety:
//
//	Not safe for concurrent use on the same JavaParser.
func (p *JavaParser) Parse(ctx context.Context, content []byte, filePath string) (*ParseResult, error) {
	ctx, span := startParseSpan(ctx, "java", filePath, len(content))
	defer span.End()

	start := time.Now()

	if err := ctx.Err(); err != nil {
		recordParseMetrics("java", time.Since(start), false)
		return nil, fmt.Errorf("parse canceled before start: %w", err)
	}

	if int64(len(content)) > p.maxFileSize {
		recordParseMetrics("java", time.Since(start), false)
		return nil, fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, len(content), p.maxFileSize)
	}

	if len(content) > WarnFileSize {
		slog.Warn("parsing large file",
			slog.String("file", filePath),
			slog.Int("size_bytes", len(content)))
	}

	if !utf8.Valid(content) {
		recordParseMetrics("java", time.Since(start), false)
		return nil, fmt.Errorf("%w: content is not valid UTF-8", ErrInvalidContent)
	}

	if p.parser == nil {
		return nil, errors.New("parser is closed")
	}

	tree, err := p.parser.ParseCtx(ctx, nil, content)
	if err != nil {
		recordParseMetrics("java", time.Since(start), false)
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}

	if err := ctx.Err(); err != nil {
		tree.Close()
		recordParseMetrics("java", time.Since(start), false)
		return nil, fmt.Errorf("parse canceled after tree-sitter: %w", err)
	}

	root := tree.RootNode()
	result := &ParseResult{
		FilePath:  filePath,
		Source:    content,
		Hash:      HashContent(content),
		Tree:      tree,
		Root:      root,
		HasErrors: root.HasError(),
	}

	if result.HasErrors {
		slog.Debug("java source contains syntax errors",
			slog.String("file", filePath))
	}

	span.SetAttributes(
		attribute.Bool("parse.has_errors", result.HasErrors),
		attribute.Int("parse.root_children", int(root.NamedChildCount())),
	)
	recordParseMetrics("java", time.Since(start), true)

	return result, nil
}

// HashContent returns the hex SHA-256 of content.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
