// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rules

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/AleutianAI/logtrace/services/logtrace/ast"
	"github.com/AleutianAI/logtrace/services/logtrace/template"
)

// =============================================================================
// Parameterized message: log.info("User {} logged in", user)
// =============================================================================

func (e *Engine) extractParameterized(site Site) []string {
	msg := ast.Unwrap(e.MessageArgument(site.Node, site.Source))
	if msg == nil {
		return nil
	}
	if indirectName(msg, site.Source) != "" {
		return []string{IndirectMarker}
	}

	style := e.anchorStyle(site)
	variants := e.Converter(site.Source, nil).Convert(msg)
	out := make([]string, 0, len(variants))
	for _, v := range variants {
		out = append(out, style(v))
	}
	return out
}

// =============================================================================
// Explicit format: String.format("%s has %d items", name, n)
// =============================================================================

// formatSite returns the format string literal and its style when site is a
// formatting call with a literal format argument.
func (e *Engine) formatSite(site Site) (*sitter.Node, FormatStyle, bool) {
	n := ast.Unwrap(site.Node)
	if n == nil || n.Type() != ast.NodeMethodInvocation || e.IsLoggingCall(n, site.Source) {
		return nil, "", false
	}
	name := ast.FieldText(n, "name", site.Source)
	obj := n.ChildByFieldName("object")
	if obj == nil {
		return nil, "", false
	}

	if name == "formatted" {
		recv := ast.Unwrap(obj)
		return recv, StylePrintf, isStringLiteral(recv)
	}

	fc, ok := e.opts.formatCall(ast.Text(obj, site.Source), name)
	if !ok {
		return nil, "", false
	}
	args := ast.Arguments(n)
	idx := formatArgIndex(args, site.Source)
	if idx < 0 {
		return nil, "", false
	}
	lit := ast.Unwrap(args[idx])
	return lit, fc.Style, isStringLiteral(lit)
}

func (e *Engine) canHandleFormat(site Site) bool {
	_, _, ok := e.formatSite(site)
	return ok
}

func (e *Engine) extractFormat(site Site) []string {
	lit, style, ok := e.formatSite(site)
	if !ok {
		return nil
	}
	format, ok := ast.StringValue(lit, site.Source)
	if !ok {
		return nil
	}
	return []string{applyStyle(style, format)}
}

// =============================================================================
// Literal concatenation: "User " + name + " logged in"
// =============================================================================

func (e *Engine) canHandleConcat(site Site) bool {
	n := ast.Unwrap(site.Node)
	if n == nil || n.Type() != ast.NodeBinaryExpression || ast.FieldText(n, "operator", site.Source) != "+" {
		return false
	}
	for _, op := range flattenConcat(n) {
		if isStringLiteral(op) {
			return true
		}
	}
	return false
}

// extractConcat keeps literal fragments, replaces every other operand with
// the placeholder, and joins the fragments with single spaces.
func (e *Engine) extractConcat(site Site) []string {
	ops := flattenConcat(ast.Unwrap(site.Node))
	parts := make([]string, 0, len(ops))
	for _, op := range ops {
		if v, ok := literalValue(op, site.Source); ok {
			if strings.TrimSpace(v) != "" {
				parts = append(parts, v)
			}
			continue
		}
		parts = append(parts, template.Placeholder)
	}
	if len(parts) == 0 {
		return nil
	}
	return []string{template.CollapsePlaceholders(strings.Join(parts, " "))}
}

// =============================================================================
// Fluent builder: new StringBuilder().append("x=").append(x).toString()
// =============================================================================

func (e *Engine) canHandleBuilder(site Site) bool {
	n := ast.Unwrap(site.Node)
	if n == nil || n.Type() != ast.NodeMethodInvocation {
		return false
	}
	root, _ := builderChain(n, site.Source)
	return root != nil && root.Type() == ast.NodeObjectCreation &&
		e.opts.isBuilderType(ast.FieldText(root, "type", site.Source))
}

func (e *Engine) extractBuilder(site Site) []string {
	root, appends := builderChain(ast.Unwrap(site.Node), site.Source)
	if root == nil {
		return nil
	}
	var b strings.Builder
	if init := builderInitialArg(root, site.Source); init != nil {
		if v, ok := literalValue(init, site.Source); ok {
			b.WriteString(v)
		} else {
			b.WriteString(template.Placeholder)
		}
	}
	for _, arg := range appends {
		if v, ok := literalValue(arg, site.Source); ok {
			b.WriteString(v)
		} else {
			b.WriteString(template.Placeholder)
		}
	}
	if b.Len() == 0 {
		return nil
	}
	return []string{template.CollapsePlaceholders(b.String())}
}

// literalValue returns the text of a string, character or number literal.
func literalValue(n *sitter.Node, src []byte) (string, bool) {
	n = ast.Unwrap(n)
	if n == nil {
		return "", false
	}
	if v, ok := ast.StringValue(n, src); ok {
		return v, true
	}
	if ast.IsNumericLiteral(n.Type()) {
		return ast.Text(n, src), true
	}
	return "", false
}
