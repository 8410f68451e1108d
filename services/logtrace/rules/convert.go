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

// Resolver returns the pattern variants an identifier may hold at its use.
//
// ok is false when nothing is known, in which case the converter emits the
// placeholder.
type Resolver func(ident *sitter.Node) (variants []string, ok bool)

// Converter turns a string-valued expression into pattern variants.
//
// Description:
//
//	Literals are kept verbatim and every value unknown at extraction time
//	becomes the placeholder. Concatenation joins operands exactly as the
//	runtime would. Ternaries yield one variant per branch. Nested format
//	calls and builder chains are expanded. Identifiers go through the
//	optional Resolver.
//
// Thread Safety: A Converter is used by one goroutine at a time.
type Converter struct {
	opts    *Options
	src     []byte
	resolve Resolver
}

// Converter returns an expression converter over src.
func (e *Engine) Converter(src []byte, resolve Resolver) *Converter {
	return &Converter{opts: &e.opts, src: src, resolve: resolve}
}

// Convert returns the pattern variants of n. The result is never empty.
func (c *Converter) Convert(n *sitter.Node) []string {
	out := c.convert(n, 0)
	for i := range out {
		out[i] = template.CollapsePlaceholders(out[i])
	}
	return dedupe(out)
}

func (c *Converter) convert(n *sitter.Node, depth int) []string {
	if n == nil || depth > maxConvertDepth {
		return []string{template.Placeholder}
	}
	n = ast.Unwrap(n)

	switch n.Type() {
	case ast.NodeStringLiteral, ast.NodeTextBlock, ast.NodeCharacterLiteral:
		if v, ok := ast.StringValue(n, c.src); ok {
			return []string{v}
		}
	case "true", "false":
		return []string{n.Type()}
	case ast.NodeNullLiteral:
		return []string{"null"}
	case ast.NodeBinaryExpression:
		if c.isConcat(n) {
			return c.concat(flattenConcat(n), depth)
		}
	case ast.NodeTernaryExpression:
		var out []string
		out = append(out, c.convert(n.ChildByFieldName("consequence"), depth+1)...)
		out = append(out, c.convert(n.ChildByFieldName("alternative"), depth+1)...)
		return c.limit(dedupe(out))
	case ast.NodeCastExpression:
		return c.convert(n.ChildByFieldName("value"), depth+1)
	case ast.NodeMethodInvocation:
		return c.call(n, depth)
	case ast.NodeObjectCreation:
		if c.opts.isBuilderType(ast.FieldText(n, "type", c.src)) {
			if init := builderInitialArg(n, c.src); init != nil {
				return c.convert(init, depth+1)
			}
			return []string{""}
		}
	case ast.NodeIdentifier:
		if c.resolve != nil {
			if v, ok := c.resolve(n); ok && len(v) > 0 {
				return c.limit(v)
			}
		}
	default:
		if ast.IsNumericLiteral(n.Type()) {
			return []string{ast.Text(n, c.src)}
		}
	}
	return []string{template.Placeholder}
}

// call converts a method invocation used as a string value.
func (c *Converter) call(n *sitter.Node, depth int) []string {
	name := ast.FieldText(n, "name", c.src)
	obj := n.ChildByFieldName("object")
	args := ast.Arguments(n)

	if fc, ok := c.opts.formatCall(ast.Text(obj, c.src), name); ok && obj != nil {
		return c.format(args, fc.Style, depth)
	}

	switch name {
	case "formatted":
		if obj != nil {
			return c.styled(c.convert(obj, depth+1), StylePrintf)
		}
	case "append", "toString":
		if c.isBuilderChain(n) {
			return c.builder(n, depth)
		}
		if name == "toString" && obj != nil && len(args) == 0 {
			return c.convert(obj, depth+1)
		}
	case "concat":
		if obj != nil && len(args) == 1 {
			return c.cross(c.convert(obj, depth+1), c.convert(args[0], depth+1))
		}
	case "valueOf":
		if ast.Text(obj, c.src) == "String" && len(args) == 1 {
			return c.convert(args[0], depth+1)
		}
	}
	return []string{template.Placeholder}
}

// format converts a formatting call's arguments to pattern variants.
func (c *Converter) format(args []*sitter.Node, style FormatStyle, depth int) []string {
	idx := formatArgIndex(args, c.src)
	if idx < 0 {
		return []string{template.Placeholder}
	}
	return c.styled(c.convert(args[idx], depth+1), style)
}

func (c *Converter) styled(variants []string, style FormatStyle) []string {
	out := make([]string, len(variants))
	for i, v := range variants {
		out[i] = applyStyle(style, v)
	}
	return out
}

// builder converts an append/toString chain into pattern variants.
func (c *Converter) builder(n *sitter.Node, depth int) []string {
	root, appends := builderChain(n, c.src)
	acc := []string{""}
	switch {
	case root == nil:
		acc = []string{template.Placeholder}
	case root.Type() == ast.NodeObjectCreation:
		if init := builderInitialArg(root, c.src); init != nil {
			acc = c.convert(init, depth+1)
		}
	default:
		acc = c.convert(root, depth+1)
	}
	for _, arg := range appends {
		acc = c.cross(acc, c.convert(arg, depth+1))
	}
	return acc
}

func (c *Converter) concat(operands []*sitter.Node, depth int) []string {
	acc := []string{""}
	for _, op := range operands {
		acc = c.cross(acc, c.convert(op, depth+1))
	}
	return acc
}

// cross joins every prefix with every suffix, bounded by MaxVariants.
func (c *Converter) cross(prefixes, suffixes []string) []string {
	out := make([]string, 0, len(prefixes)*len(suffixes))
	for _, p := range prefixes {
		for _, s := range suffixes {
			out = append(out, p+s)
			if len(out) >= c.opts.MaxVariants {
				return dedupe(out)
			}
		}
	}
	return dedupe(out)
}

func (c *Converter) limit(v []string) []string {
	if len(v) > c.opts.MaxVariants {
		return v[:c.opts.MaxVariants]
	}
	return v
}

// isConcat reports whether a "+" chain is string concatenation.
//
// Without type information a chain counts as concatenation when one of its
// operands is evidently a string.
func (c *Converter) isConcat(n *sitter.Node) bool {
	if ast.FieldText(n, "operator", c.src) != "+" {
		return false
	}
	for _, op := range flattenConcat(n) {
		if c.isStringish(op) {
			return true
		}
	}
	return false
}

func (c *Converter) isStringish(n *sitter.Node) bool {
	n = ast.Unwrap(n)
	if n == nil {
		return false
	}
	switch n.Type() {
	case ast.NodeStringLiteral, ast.NodeTextBlock:
		return true
	case ast.NodeTernaryExpression:
		return c.isStringish(n.ChildByFieldName("consequence")) || c.isStringish(n.ChildByFieldName("alternative"))
	case ast.NodeMethodInvocation:
		name := ast.FieldText(n, "name", c.src)
		if _, ok := c.opts.formatCall(ast.FieldText(n, "object", c.src), name); ok {
			return true
		}
		switch name {
		case "toString", "formatted", "concat", "valueOf":
			return true
		}
	case ast.NodeIdentifier:
		if c.resolve != nil {
			if v, ok := c.resolve(n); ok {
				for _, p := range v {
					if template.CountLiteralTokens(p) > 0 {
						return true
					}
				}
			}
		}
	case ast.NodeBinaryExpression:
		return c.isConcat(n)
	}
	return false
}

// isBuilderChain reports whether n is an append/toString chain rooted at
// a builder construction or a variable.
func (c *Converter) isBuilderChain(n *sitter.Node) bool {
	root, appends := builderChain(n, c.src)
	if root == nil {
		return false
	}
	if root.Type() == ast.NodeObjectCreation {
		return c.opts.isBuilderType(ast.FieldText(root, "type", c.src))
	}
	return len(appends) > 0
}

// flattenConcat returns the operands of a left-associative "+" chain.
func flattenConcat(n *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	var walk func(*sitter.Node)
	walk = func(cur *sitter.Node) {
		if cur != nil && cur.Type() == ast.NodeBinaryExpression && cur.ChildByFieldName("operator") != nil &&
			cur.ChildByFieldName("operator").Type() == "+" {
			walk(cur.ChildByFieldName("left"))
			walk(cur.ChildByFieldName("right"))
			return
		}
		out = append(out, cur)
	}
	walk(n)
	return out
}

// builderChain splits a fluent chain into its root receiver and the
// arguments of its append calls in source order.
func builderChain(n *sitter.Node, src []byte) (*sitter.Node, []*sitter.Node) {
	var appends []*sitter.Node
	cur := ast.Unwrap(n)
	for cur != nil && cur.Type() == ast.NodeMethodInvocation {
		switch ast.FieldText(cur, "name", src) {
		case "append":
			args := ast.Arguments(cur)
			if len(args) != 1 {
				return nil, nil
			}
			appends = append(appends, args[0])
		case "toString":
		default:
			return nil, nil
		}
		cur = ast.Unwrap(cur.ChildByFieldName("object"))
	}
	if cur == nil {
		return nil, nil
	}
	for i, j := 0, len(appends)-1; i < j; i, j = i+1, j-1 {
		appends[i], appends[j] = appends[j], appends[i]
	}
	return cur, appends
}

// builderInitialArg returns the string argument of new StringBuilder(...),
// ignoring a capacity argument.
func builderInitialArg(creation *sitter.Node, src []byte) *sitter.Node {
	args := ast.Arguments(creation)
	if len(args) != 1 || ast.IsNumericLiteral(args[0].Type()) {
		return nil
	}
	return args[0]
}

// formatArgIndex locates the format string of a formatting call, skipping
// a leading Locale argument.
func formatArgIndex(args []*sitter.Node, src []byte) int {
	if len(args) == 0 {
		return -1
	}
	if len(args) >= 2 && isLocale(args[0], src) {
		return 1
	}
	return 0
}

func isLocale(n *sitter.Node, src []byte) bool {
	text := ast.Text(n, src)
	return strings.HasPrefix(text, "Locale.") || strings.EqualFold(text, "locale") ||
		(n.Type() == ast.NodeObjectCreation && strings.Contains(ast.FieldText(n, "type", src), "Locale"))
}

func dedupe(in []string) []string {
	if len(in) < 2 {
		return in
	}
	seen := make(map[string]struct{}, len(in))
	out := in[:0:0]
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
