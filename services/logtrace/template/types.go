// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package template defines the log template data model shared by extraction
// and matching: levels, source locations, templates, matches, and the
// placeholder-aware pattern tokenizer.
package template

import (
	"fmt"
	"strconv"
	"strings"
)

// =============================================================================
// Log Level
// =============================================================================

// Level is the log level tag of a template.
type Level string

const (
	LevelTrace   Level = "trace"
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarn    Level = "warn"
	LevelError   Level = "error"
	LevelFatal   Level = "fatal"
	LevelUnknown Level = "unknown"
)

// AllLevels lists every level in severity order, unknown last.
var AllLevels = []Level{LevelTrace, LevelDebug, LevelInfo, LevelWarn, LevelError, LevelFatal, LevelUnknown}

// ParseLevel maps a case-insensitive level name to a Level.
//
// Unrecognized names map to LevelUnknown.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	default:
		return LevelUnknown
	}
}

// String returns the level name.
func (l Level) String() string {
	if l == "" {
		return string(LevelUnknown)
	}
	return string(l)
}

// Valid reports whether l is one of the known levels.
func (l Level) Valid() bool {
	for _, known := range AllLevels {
		if l == known {
			return true
		}
	}
	return false
}

// UnmarshalText implements encoding.TextUnmarshaler.
//
// Records with a level outside the known set are rejected so that readers
// can skip them as malformed.
func (l *Level) UnmarshalText(text []byte) error {
	parsed := Level(strings.ToLower(string(text)))
	if !parsed.Valid() {
		return fmt.Errorf("unknown log level %q", string(text))
	}
	*l = parsed
	return nil
}

// =============================================================================
// Source Location
// =============================================================================

// SourceLocation identifies a logging call site.
//
// ClassName and MethodName are nil when the call is not nested in a type or
// method. Two templates with equal Key() are variants of the same site.
type SourceLocation struct {
	FilePath   string  `json:"file_path"`
	ClassName  *string `json:"class_name"`
	MethodName *string `json:"method_name"`
	LineNumber int     `json:"line_number"`
}

// NewLocation builds a SourceLocation, treating empty names as absent.
func NewLocation(filePath, className, methodName string, line int) SourceLocation {
	loc := SourceLocation{FilePath: filePath, LineNumber: line}
	if className != "" {
		c := className
		loc.ClassName = &c
	}
	if methodName != "" {
		m := methodName
		loc.MethodName = &m
	}
	return loc
}

// Class returns the enclosing type name or "".
func (l SourceLocation) Class() string {
	if l.ClassName == nil {
		return ""
	}
	return *l.ClassName
}

// Method returns the enclosing method name or "".
func (l SourceLocation) Method() string {
	if l.MethodName == nil {
		return ""
	}
	return *l.MethodName
}

// Key returns the grouping identity (file, type, method, line) of the site.
func (l SourceLocation) Key() string {
	var b strings.Builder
	b.WriteString(l.FilePath)
	b.WriteByte(0)
	b.WriteString(l.Class())
	b.WriteByte(0)
	b.WriteString(l.Method())
	b.WriteByte(0)
	b.WriteString(strconv.Itoa(l.LineNumber))
	return b.String()
}

// String renders the location as file:line with the qualified method when known.
func (l SourceLocation) String() string {
	site := fmt.Sprintf("%s:%d", l.FilePath, l.LineNumber)
	switch {
	case l.ClassName != nil && l.MethodName != nil:
		return fmt.Sprintf("%s (%s.%s)", site, *l.ClassName, *l.MethodName)
	case l.MethodName != nil:
		return fmt.Sprintf("%s (%s)", site, *l.MethodName)
	case l.ClassName != nil:
		return fmt.Sprintf("%s (%s)", site, *l.ClassName)
	}
	return site
}

// =============================================================================
// Log Template
// =============================================================================

// LogTemplate is an immutable log message pattern tied to its call site.
//
// Description:
//
//	Pattern holds literal tokens interspersed with Placeholder. StaticTokenCount
//	is always CountLiteralTokens(Pattern) and ID is always
//	ID(Location.FilePath, Location.LineNumber, Pattern, BranchVariant), so a
//	template built by New carries no hidden state.
//
// Thread Safety: Immutable after construction; safe for concurrent use.
type LogTemplate struct {
	ID               string         `json:"template_id"`
	Pattern          string         `json:"pattern"`
	StaticTokenCount int            `json:"static_token_count"`
	Location         SourceLocation `json:"location"`
	Level            Level          `json:"level"`
	BranchVariant    int            `json:"branch_variant"`
}

// New creates a template from a call-site location and a raw pattern.
//
// The pattern is normalized before the literal count and id are derived.
func New(loc SourceLocation, pattern string, level Level, variant int) LogTemplate {
	pattern = NormalizePattern(pattern)
	if !level.Valid() {
		level = LevelUnknown
	}
	return LogTemplate{
		ID:               ID(loc.FilePath, loc.LineNumber, pattern, variant),
		Pattern:          pattern,
		StaticTokenCount: CountLiteralTokens(pattern),
		Location:         loc,
		Level:            level,
		BranchVariant:    variant,
	}
}

// Tokens returns the pattern tokens.
func (t LogTemplate) Tokens() []string {
	return Tokenize(t.Pattern)
}

// =============================================================================
// Log Match
// =============================================================================

// LogMatch pairs a template with a log line it matched.
//
// CapturedValues are in placeholder order; Confidence is in [0, 1].
type LogMatch struct {
	Template       *LogTemplate
	Confidence     float64
	CapturedValues []string
}

// =============================================================================
// Extraction Context
// =============================================================================

// ExtractionContext carries the enclosing file, type, method and line
// through tree traversal.
//
// It is a value type: the With methods return modified copies, so every
// recursive descent owns its own context.
type ExtractionContext struct {
	FilePath    string
	ClassName   string
	MethodName  string
	CurrentLine int
}

// WithClass returns a copy scoped to the named type.
func (c ExtractionContext) WithClass(name string) ExtractionContext {
	c.ClassName = name
	return c
}

// WithMethod returns a copy scoped to the named method.
func (c ExtractionContext) WithMethod(name string) ExtractionContext {
	c.MethodName = name
	return c
}

// WithLine returns a copy positioned at the 1-based line.
func (c ExtractionContext) WithLine(line int) ExtractionContext {
	c.CurrentLine = line
	return c
}

// Location converts the context to the SourceLocation of its current line.
func (c ExtractionContext) Location() SourceLocation {
	return NewLocation(c.FilePath, c.ClassName, c.MethodName, c.CurrentLine)
}
