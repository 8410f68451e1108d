// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rules recognizes how a log message is built at a call site and
// turns it into template patterns.
package rules

import (
	"fmt"
	"log/slog"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/AleutianAI/logtrace/services/logtrace/ast"
	"github.com/AleutianAI/logtrace/services/logtrace/template"
)

// IndirectMarker is returned by the parameterized-message rule when the
// message is held in a variable and must be recovered by slicing.
const IndirectMarker = "<!INDIRECT!>"

// Kind tags a rule variant.
type Kind int

const (
	KindParameterized Kind = iota
	KindExplicitFormat
	KindLiteralConcat
	KindFluentBuilder
)

// String returns the rule name.
func (k Kind) String() string {
	switch k {
	case KindParameterized:
		return "parameterized"
	case KindExplicitFormat:
		return "explicit_format"
	case KindLiteralConcat:
		return "literal_concat"
	case KindFluentBuilder:
		return "fluent_builder"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Kinds lists the rules in evaluation order.
var Kinds = []Kind{KindParameterized, KindExplicitFormat, KindLiteralConcat, KindFluentBuilder}

// Site is a node handed to the rules together with its source and context.
//
// Node is either a logging call or a standalone message expression.
type Site struct {
	Node    *sitter.Node
	Source  []byte
	Context template.ExtractionContext
}

// Engine evaluates the fixed rule list against call sites.
//
// Description:
//
//	Every rule whose CanHandle accepts the site runs, and the pattern lists
//	are unioned in rule order with duplicates dropped. A rule that panics on
//	an unexpected node shape is treated as not applying.
//
// Thread Safety:
//
//	Engine is immutable after construction and safe for concurrent use.
type Engine struct {
	opts   Options
	logger *slog.Logger
}

// NewEngine creates an Engine with DefaultOptions adjusted by opts.
func NewEngine(opts ...Option) *Engine {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Engine{opts: o, logger: slog.Default()}
}

// Options returns a copy of the engine's configuration.
func (e *Engine) Options() Options {
	return e.opts
}

// Extract runs every applicable rule and unions the results.
//
// Patterns are normalized and empty ones dropped. The result may contain
// IndirectMarker.
func (e *Engine) Extract(site Site) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, kind := range Kinds {
		if !e.CanHandle(kind, site) {
			continue
		}
		for _, p := range e.ExtractWith(kind, site) {
			if p != IndirectMarker {
				p = template.NormalizePattern(p)
			}
			if p == "" {
				continue
			}
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}

// CanHandle reports whether rule kind applies to site.
func (e *Engine) CanHandle(kind Kind, site Site) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Debug("rule check panicked",
				slog.String("rule", kind.String()),
				slog.String("file", site.Context.FilePath),
				slog.Any("panic", r))
			ok = false
		}
	}()
	if site.Node == nil {
		return false
	}
	switch kind {
	case KindParameterized:
		return e.IsLoggingCall(site.Node, site.Source) && len(ast.Arguments(site.Node)) > 0
	case KindExplicitFormat:
		return e.canHandleFormat(site)
	case KindLiteralConcat:
		return e.canHandleConcat(site)
	case KindFluentBuilder:
		return e.canHandleBuilder(site)
	}
	return false
}

// ExtractWith runs a single rule. It never panics.
func (e *Engine) ExtractWith(kind Kind, site Site) (patterns []string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Debug("rule extraction panicked",
				slog.String("rule", kind.String()),
				slog.String("file", site.Context.FilePath),
				slog.Any("panic", r))
			patterns = nil
		}
	}()
	if site.Node == nil {
		return nil
	}
	switch kind {
	case KindParameterized:
		return e.extractParameterized(site)
	case KindExplicitFormat:
		return e.extractFormat(site)
	case KindLiteralConcat:
		return e.extractConcat(site)
	case KindFluentBuilder:
		return e.extractBuilder(site)
	}
	return nil
}

// IsLoggingCall reports whether n invokes a logging method on a logger.
func (e *Engine) IsLoggingCall(n *sitter.Node, src []byte) bool {
	if n == nil || n.Type() != ast.NodeMethodInvocation {
		return false
	}
	obj := n.ChildByFieldName("object")
	name := n.ChildByFieldName("name")
	if obj == nil || name == nil {
		return false
	}
	return e.opts.isLogger(ast.Text(obj, src)) && e.opts.isLoggingMethod(ast.Text(name, src))
}

// Level derives the level of a logging call from its method name, or from
// its Level argument for log(Level.X, ...) and printf(Level.X, ...).
func (e *Engine) Level(site Site) template.Level {
	if site.Node == nil || site.Node.Type() != ast.NodeMethodInvocation {
		return template.LevelUnknown
	}
	name := strings.ToLower(ast.FieldText(site.Node, "name", site.Source))
	if name == "log" || name == "printf" {
		args := ast.Arguments(site.Node)
		if len(args) > 0 && isLevelArg(args[0], site.Source) {
			return e.canonicalLevel(levelName(args[0], site.Source))
		}
		return template.LevelUnknown
	}
	return e.canonicalLevel(name)
}

func (e *Engine) canonicalLevel(name string) template.Level {
	name = strings.ToLower(name)
	if alias, ok := e.opts.LevelAliases[name]; ok {
		name = alias
	}
	return template.ParseLevel(name)
}

// MessageArgument returns the message expression of a logging call.
func (e *Engine) MessageArgument(call *sitter.Node, src []byte) *sitter.Node {
	args := ast.Arguments(call)
	if len(args) == 0 {
		return nil
	}
	name := ast.FieldText(call, "name", src)
	switch {
	case (name == "log" || name == "printf") && isLevelArg(args[0], src) && len(args) >= 2:
		return args[1]
	case name == "log" && len(args) >= 4:
		return args[3]
	case len(args) >= 2 && isMarkerArg(args[0], src) && isStringLiteral(args[1]):
		return args[1]
	}
	return args[0]
}

// MessageVariable returns the variable name behind an indirect message,
// or "" when the message is not a variable reference.
func (e *Engine) MessageVariable(site Site) string {
	msg := ast.Unwrap(e.MessageArgument(site.Node, site.Source))
	return indirectName(msg, site.Source)
}

// FinishPattern applies the call's placeholder syntax to a pattern
// recovered by slicing the message variable.
func (e *Engine) FinishPattern(site Site, pattern string) string {
	if site.Node == nil || !e.IsLoggingCall(site.Node, site.Source) {
		return pattern
	}
	return template.NormalizePattern(e.anchorStyle(site)(pattern))
}

// anchorStyle returns the placeholder substitution of a logging call.
func (e *Engine) anchorStyle(site Site) func(string) string {
	name := ast.FieldText(site.Node, "name", site.Source)
	args := ast.Arguments(site.Node)
	leveled := len(args) > 0 && isLevelArg(args[0], site.Source)
	switch {
	case name == "printf":
		return PrintfPattern
	case name == "log" && leveled:
		return func(s string) string { return MessageFormatPattern(AnchorPattern(s)) }
	}
	return AnchorPattern
}

// indirectName returns the variable a message expression refers to.
func indirectName(n *sitter.Node, src []byte) string {
	if n == nil {
		return ""
	}
	switch n.Type() {
	case ast.NodeIdentifier:
		return ast.Text(n, src)
	case ast.NodeFieldAccess:
		return ast.FieldText(n, "field", src)
	case ast.NodeMethodInvocation:
		if ast.FieldText(n, "name", src) == "toString" && len(ast.Arguments(n)) == 0 {
			return indirectName(ast.Unwrap(n.ChildByFieldName("object")), src)
		}
	}
	return ""
}

func isStringLiteral(n *sitter.Node) bool {
	n = ast.Unwrap(n)
	return n != nil && (n.Type() == ast.NodeStringLiteral || n.Type() == ast.NodeTextBlock)
}

// isLevelArg matches Level.INFO, java.util.logging.Level.WARNING and the like.
func isLevelArg(n *sitter.Node, src []byte) bool {
	if n == nil || n.Type() != ast.NodeFieldAccess {
		return false
	}
	obj := ast.FieldText(n, "object", src)
	return obj == "Level" || strings.HasSuffix(obj, ".Level")
}

func levelName(n *sitter.Node, src []byte) string {
	return ast.FieldText(n, "field", src)
}

// isMarkerArg reports whether n is an SLF4J or Log4j marker: a variable
// or constant named like one, a Marker construction, or a getMarker call.
func isMarkerArg(n *sitter.Node, src []byte) bool {
	n = ast.Unwrap(n)
	if n == nil {
		return false
	}
	switch n.Type() {
	case ast.NodeIdentifier:
		return isMarkerName(ast.Text(n, src))
	case ast.NodeFieldAccess:
		return isMarkerName(ast.FieldText(n, "field", src))
	case ast.NodeMethodInvocation:
		return ast.FieldText(n, "name", src) == "getMarker"
	case ast.NodeObjectCreation, "cast_expression":
		return strings.HasSuffix(ast.FieldText(n, "type", src), "Marker")
	}
	return false
}

func isMarkerName(name string) bool {
	return strings.EqualFold(name, "marker") ||
		strings.HasSuffix(name, "Marker") || strings.HasSuffix(name, "_MARKER")
}
