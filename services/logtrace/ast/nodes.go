// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// Java node types referenced across the extraction packages.
const (
	NodeProgram                 = "program"
	NodeClassDeclaration        = "class_declaration"
	NodeInterfaceDeclaration    = "interface_declaration"
	NodeEnumDeclaration         = "enum_declaration"
	NodeRecordDeclaration       = "record_declaration"
	NodeMethodDeclaration       = "method_declaration"
	NodeConstructorDeclaration  = "constructor_declaration"
	NodeCompactConstructor      = "compact_constructor_declaration"
	NodeStaticInitializer       = "static_initializer"
	NodeLambdaExpression        = "lambda_expression"
	NodeFieldDeclaration        = "field_declaration"
	NodeLocalVariableDecl       = "local_variable_declaration"
	NodeVariableDeclarator      = "variable_declarator"
	NodeFormalParameter         = "formal_parameter"
	NodeSpreadParameter         = "spread_parameter"
	NodeCatchFormalParameter    = "catch_formal_parameter"
	NodeMethodInvocation        = "method_invocation"
	NodeObjectCreation          = "object_creation_expression"
	NodeBinaryExpression        = "binary_expression"
	NodeTernaryExpression       = "ternary_expression"
	NodeParenthesizedExpression = "parenthesized_expression"
	NodeCastExpression          = "cast_expression"
	NodeAssignmentExpression    = "assignment_expression"
	NodeUpdateExpression        = "update_expression"
	NodeFieldAccess             = "field_access"
	NodeIdentifier              = "identifier"
	NodeStringLiteral           = "string_literal"
	NodeCharacterLiteral        = "character_literal"
	NodeTextBlock               = "text_block"
	NodeNullLiteral             = "null_literal"
	NodeExpressionStatement     = "expression_statement"
	NodeBlock                   = "block"
	NodeIfStatement             = "if_statement"
	NodeWhileStatement          = "while_statement"
	NodeDoStatement             = "do_statement"
	NodeForStatement            = "for_statement"
	NodeEnhancedForStatement    = "enhanced_for_statement"
	NodeTryStatement            = "try_statement"
	NodeTryWithResources        = "try_with_resources_statement"
	NodeCatchClause             = "catch_clause"
	NodeFinallyClause           = "finally_clause"
	NodeSwitchExpression        = "switch_expression"
	NodeSwitchStatement         = "switch_statement"
	NodeSwitchBlock             = "switch_block"
	NodeSwitchGroup             = "switch_block_statement_group"
	NodeSwitchRule              = "switch_rule"
	NodeReturnStatement         = "return_statement"
	NodeThrowStatement          = "throw_statement"
	NodeBreakStatement          = "break_statement"
	NodeContinueStatement       = "continue_statement"
	NodeYieldStatement          = "yield_statement"
	NodeLabeledStatement        = "labeled_statement"
	NodeSynchronizedStatement   = "synchronized_statement"
	NodeLineComment             = "line_comment"
	NodeBlockComment            = "block_comment"
	NodeClassBody               = "class_body"
	NodeModifiers               = "modifiers"
	NodeThis                    = "this"
)

// Text returns the verbatim source text of n.
func Text(n *sitter.Node, src []byte) string {
	if n == nil {
		return ""
	}
	start, end := n.StartByte(), n.EndByte()
	if int(end) > len(src) || start > end {
		return ""
	}
	return string(src[start:end])
}

// Line returns the 1-based start line of n.
func Line(n *sitter.Node) int {
	if n == nil {
		return 0
	}
	return int(n.StartPoint().Row) + 1
}

// FieldText returns the text of the named field child, or "".
func FieldText(n *sitter.Node, field string, src []byte) string {
	if n == nil {
		return ""
	}
	return Text(n.ChildByFieldName(field), src)
}

// IsComment reports whether n is a line or block comment.
func IsComment(n *sitter.Node) bool {
	if n == nil {
		return false
	}
	t := n.Type()
	return t == NodeLineComment || t == NodeBlockComment
}

// NamedChildren returns the named children of n, comments excluded.
func NamedChildren(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	count := int(n.NamedChildCount())
	out := make([]*sitter.Node, 0, count)
	for i := 0; i < count; i++ {
		child := n.NamedChild(i)
		if child == nil || IsComment(child) {
			continue
		}
		out = append(out, child)
	}
	return out
}

// Arguments returns the argument expressions of a call or object creation.
func Arguments(call *sitter.Node) []*sitter.Node {
	if call == nil {
		return nil
	}
	return NamedChildren(call.ChildByFieldName("arguments"))
}

// Same reports whether a and b denote the same node of one tree.
func Same(a, b *sitter.Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}

// Contains reports whether inner lies within outer's byte range.
func Contains(outer, inner *sitter.Node) bool {
	if outer == nil || inner == nil {
		return false
	}
	return outer.StartByte() <= inner.StartByte() && inner.EndByte() <= outer.EndByte()
}

// Unwrap strips enclosing parentheses.
func Unwrap(n *sitter.Node) *sitter.Node {
	for n != nil && n.Type() == NodeParenthesizedExpression {
		inner := NamedChildren(n)
		if len(inner) != 1 {
			return n
		}
		n = inner[0]
	}
	return n
}

// Enclosing returns the nearest strict ancestor of n whose type is in types.
func Enclosing(n *sitter.Node, types ...string) *sitter.Node {
	if n == nil {
		return nil
	}
	for cur := n.Parent(); cur != nil; cur = cur.Parent() {
		for _, t := range types {
			if cur.Type() == t {
				return cur
			}
		}
	}
	return nil
}

// Walk visits n and its descendants in pre-order.
//
// visit returns false to skip the children of the current node. Traversal
// uses an explicit stack so deeply nested sources cannot exhaust the
// goroutine stack.
func Walk(n *sitter.Node, visit func(*sitter.Node) bool) {
	if n == nil {
		return
	}
	stack := []*sitter.Node{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !visit(cur) {
			continue
		}
		for i := int(cur.NamedChildCount()) - 1; i >= 0; i-- {
			if child := cur.NamedChild(i); child != nil {
				stack = append(stack, child)
			}
		}
	}
}

// IsNumericLiteral reports whether the node type is a Java number literal.
func IsNumericLiteral(nodeType string) bool {
	switch nodeType {
	case "decimal_integer_literal", "hex_integer_literal", "octal_integer_literal",
		"binary_integer_literal", "decimal_floating_point_literal", "hex_floating_point_literal":
		return true
	}
	return false
}

// IsConstantLiteral reports whether n is a literal other than a string.
func IsConstantLiteral(n *sitter.Node) bool {
	if n == nil {
		return false
	}
	switch n.Type() {
	case "true", "false", "null_literal", NodeCharacterLiteral:
		return true
	}
	return IsNumericLiteral(n.Type())
}

// StringValue returns the runtime value of a string or character literal.
//
// Text blocks have their delimiters, opening line break and incidental
// indentation removed before escapes are processed.
func StringValue(n *sitter.Node, src []byte) (string, bool) {
	if n == nil {
		return "", false
	}
	raw := Text(n, src)
	switch n.Type() {
	case NodeStringLiteral, NodeTextBlock:
		if strings.HasPrefix(raw, `"""`) && strings.HasSuffix(raw, `"""`) && len(raw) >= 6 {
			return UnescapeJava(stripTextBlock(raw[3 : len(raw)-3])), true
		}
		if len(raw) >= 2 && raw[0] == '"' && raw[len(raw)-1] == '"' {
			return UnescapeJava(raw[1 : len(raw)-1]), true
		}
	case NodeCharacterLiteral:
		if len(raw) >= 2 && raw[0] == '\'' && raw[len(raw)-1] == '\'' {
			return UnescapeJava(raw[1 : len(raw)-1]), true
		}
	}
	return "", false
}

func stripTextBlock(body string) string {
	if i := strings.IndexByte(body, '\n'); i >= 0 && strings.TrimSpace(body[:i]) == "" {
		body = body[i+1:]
	}
	lines := strings.Split(body, "\n")
	indent := -1
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		n := len(line) - len(strings.TrimLeft(line, " \t"))
		if indent < 0 || n < indent {
			indent = n
		}
	}
	if indent > 0 {
		for i, line := range lines {
			if len(line) >= indent {
				lines[i] = line[indent:]
			} else {
				lines[i] = strings.TrimLeft(line, " \t")
			}
		}
	}
	return strings.Join(lines, "\n")
}

// UnescapeJava resolves Java string escape sequences.
//
// Unknown escapes are kept verbatim.
func UnescapeJava(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		next := s[i+1]
		switch next {
		case 'b':
			b.WriteByte('\b')
		case 't':
			b.WriteByte('\t')
		case 'n':
			b.WriteByte('\n')
		case 'f':
			b.WriteByte('\f')
		case 'r':
			b.WriteByte('\r')
		case 's':
			b.WriteByte(' ')
		case '"', '\'', '\\':
			b.WriteByte(next)
		case '\n':
			// line continuation inside text blocks
		case 'u':
			j := i + 1
			for j < len(s) && s[j] == 'u' {
				j++
			}
			if j+4 <= len(s) {
				if r, err := strconv.ParseUint(s[j:j+4], 16, 32); err == nil {
					b.WriteRune(rune(r))
					i = j + 3
					continue
				}
			}
			b.WriteByte('\\')
			b.WriteByte(next)
		default:
			if next >= '0' && next <= '7' {
				j := i + 1
				limit := i + 3
				if next <= '3' {
					limit = i + 4
				}
				for j < len(s) && j < limit && s[j] >= '0' && s[j] <= '7' {
					j++
				}
				v, _ := strconv.ParseUint(s[i+1:j], 8, 32)
				b.WriteRune(rune(v))
				i = j - 1
				continue
			}
			b.WriteByte('\\')
			b.WriteByte(next)
		}
		i++
	}
	return b.String()
}
