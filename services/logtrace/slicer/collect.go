// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package slicer

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/AleutianAI/logtrace/services/logtrace/ast"
)

// isStatement reports whether a node type is collected as a slice statement.
func isStatement(nodeType string) bool {
	switch nodeType {
	case ast.NodeExpressionStatement, ast.NodeLocalVariableDecl,
		ast.NodeReturnStatement, ast.NodeThrowStatement, ast.NodeYieldStatement,
		ast.NodeBreakStatement, ast.NodeContinueStatement,
		ast.NodeIfStatement, ast.NodeWhileStatement, ast.NodeDoStatement,
		ast.NodeForStatement, ast.NodeEnhancedForStatement,
		ast.NodeTryStatement, ast.NodeTryWithResources, ast.NodeCatchClause,
		ast.NodeSwitchExpression, ast.NodeSwitchStatement, ast.NodeSynchronizedStatement,
		"assert_statement", "explicit_constructor_invocation":
		return true
	}
	return false
}

// Scope returns the innermost method, constructor, block-bodied lambda or
// initializer enclosing n, or nil.
func Scope(n *sitter.Node) *sitter.Node {
	for cur := n; cur != nil; cur = cur.Parent() {
		switch cur.Type() {
		case ast.NodeMethodDeclaration, ast.NodeConstructorDeclaration,
			ast.NodeCompactConstructor, ast.NodeStaticInitializer:
			return cur
		case ast.NodeLambdaExpression:
			if body := cur.ChildByFieldName("body"); body != nil && body.Type() == ast.NodeBlock {
				return cur
			}
		case ast.NodeBlock:
			if p := cur.Parent(); p != nil && p.Type() == ast.NodeClassBody {
				return cur
			}
		case ast.NodeClassBody:
			return nil
		}
	}
	return nil
}

// scopeBody returns the statement container of a scope.
func scopeBody(scope *sitter.Node) *sitter.Node {
	if scope == nil {
		return nil
	}
	switch scope.Type() {
	case ast.NodeStaticInitializer:
		for _, c := range ast.NamedChildren(scope) {
			if c.Type() == ast.NodeBlock {
				return c
			}
		}
		return nil
	case ast.NodeBlock:
		return scope
	}
	return scope.ChildByFieldName("body")
}

// parameterNames returns the declared parameter names of a scope.
func parameterNames(scope *sitter.Node, src []byte) []string {
	if scope == nil {
		return nil
	}
	params := scope.ChildByFieldName("parameters")
	if params == nil {
		return nil
	}
	if params.Type() == ast.NodeIdentifier {
		return []string{ast.Text(params, src)}
	}
	var names []string
	for _, p := range ast.NamedChildren(params) {
		switch p.Type() {
		case ast.NodeIdentifier:
			names = append(names, ast.Text(p, src))
		case ast.NodeFormalParameter:
			if name := ast.FieldText(p, "name", src); name != "" {
				names = append(names, name)
			}
		case ast.NodeSpreadParameter:
			for _, c := range ast.NamedChildren(p) {
				if c.Type() == ast.NodeVariableDeclarator {
					names = append(names, ast.FieldText(c, "name", src))
				}
			}
		}
	}
	return names
}

// collectStatements gathers statements of body in pre-order without
// entering nested lambdas or class bodies.
func collectStatements(body *sitter.Node, src []byte) []*SliceNode {
	var stmts []*SliceNode
	ast.Walk(body, func(n *sitter.Node) bool {
		switch n.Type() {
		case ast.NodeLambdaExpression, ast.NodeClassBody:
			return false
		}
		if isStatement(n.Type()) {
			stmts = append(stmts, &SliceNode{
				Index: len(stmts),
				Line:  ast.Line(n),
				Node:  n,
				Uses:  usesOf(n, src),
			})
		}
		return true
	})
	return stmts
}

// usesOf returns the variable names read by the statement's own
// expressions. Compound statements contribute only their header.
func usesOf(n *sitter.Node, src []byte) []string {
	var regions []*sitter.Node
	switch n.Type() {
	case ast.NodeIfStatement, ast.NodeWhileStatement, ast.NodeDoStatement,
		ast.NodeSwitchExpression, ast.NodeSwitchStatement:
		regions = append(regions, n.ChildByFieldName("condition"))
	case ast.NodeForStatement:
		regions = append(regions, n.ChildByFieldName("condition"), n.ChildByFieldName("update"))
	case ast.NodeEnhancedForStatement:
		regions = append(regions, n.ChildByFieldName("value"))
	case ast.NodeTryWithResources:
		regions = append(regions, n.ChildByFieldName("resources"))
	case ast.NodeSynchronizedStatement:
		if kids := ast.NamedChildren(n); len(kids) > 0 {
			regions = append(regions, kids[0])
		}
	case ast.NodeTryStatement, ast.NodeCatchClause:
	case ast.NodeExpressionStatement:
		if sw := switchStatement(n); sw != nil {
			regions = append(regions, sw.ChildByFieldName("condition"))
		} else {
			regions = append(regions, n)
		}
	default:
		regions = append(regions, n)
	}

	seen := make(map[string]struct{})
	var names []string
	for _, region := range regions {
		ast.Walk(region, func(c *sitter.Node) bool {
			if c.Type() == ast.NodeClassBody {
				return false
			}
			if c.Type() == ast.NodeIdentifier && isUse(c, src) {
				name := ast.Text(c, src)
				if _, ok := seen[name]; !ok {
					seen[name] = struct{}{}
					names = append(names, name)
				}
			}
			return true
		})
	}
	return names
}

// isUse reports whether an identifier reads a variable rather than naming
// a method, field, declared variable, or plain assignment target.
func isUse(id *sitter.Node, src []byte) bool {
	p := id.Parent()
	if p == nil {
		return true
	}
	switch p.Type() {
	case ast.NodeMethodInvocation:
		return !ast.Same(p.ChildByFieldName("name"), id)
	case ast.NodeFieldAccess:
		return !ast.Same(p.ChildByFieldName("field"), id)
	case ast.NodeVariableDeclarator, ast.NodeFormalParameter, ast.NodeCatchFormalParameter,
		ast.NodeEnhancedForStatement, "resource":
		return !ast.Same(p.ChildByFieldName("name"), id)
	case ast.NodeAssignmentExpression:
		if ast.Same(p.ChildByFieldName("left"), id) {
			return ast.FieldText(p, "operator", src) != "="
		}
	case "labeled_statement", ast.NodeBreakStatement, ast.NodeContinueStatement, "method_reference":
		return false
	}
	return true
}

// definitionsOf returns the definitions a statement makes. types holds the
// declared types of the scope, see declaredTypes.
func definitionsOf(st *SliceNode, src []byte, types map[string]string) []*Variable {
	n := st.Node
	line := st.Line
	var defs []*Variable
	add := func(name string, kind DefKind, value *sitter.Node) *Variable {
		if name == "" {
			return nil
		}
		if v := ast.Unwrap(value); v != nil && v.Type() == ast.NodeNullLiteral {
			value = nil
		}
		d := &Variable{Name: name, Line: line, Kind: kind, Stmt: st.Index, Value: value}
		defs = append(defs, d)
		return d
	}
	// mutations records the assignments and updates inside an expression.
	mutations := func(root *sitter.Node) {
		ast.Walk(root, func(c *sitter.Node) bool {
			switch c.Type() {
			case ast.NodeLambdaExpression, ast.NodeClassBody, ast.NodeSwitchExpression:
				return false
			case ast.NodeAssignmentExpression:
				name := assignedName(c.ChildByFieldName("left"), src)
				right := c.ChildByFieldName("right")
				switch op := ast.FieldText(c, "operator", src); {
				case op == "=":
					add(name, DefAssignment, right)
				case op == "+=" && appendsString(name, right, types, src):
					if d := add(name, DefAssignment, right); d != nil {
						d.Extends = d.Value != nil
					}
				default:
					add(name, DefUpdate, nil)
				}
			case ast.NodeUpdateExpression:
				if kids := ast.NamedChildren(c); len(kids) > 0 {
					add(assignedName(kids[0], src), DefUpdate, nil)
				}
			}
			return true
		})
	}

	switch n.Type() {
	case ast.NodeLocalVariableDecl:
		for _, c := range ast.NamedChildren(n) {
			if c.Type() == ast.NodeVariableDeclarator {
				value := c.ChildByFieldName("value")
				add(ast.FieldText(c, "name", src), DefDeclaration, value)
				mutations(value)
			}
		}
	case ast.NodeEnhancedForStatement:
		add(ast.FieldText(n, "name", src), DefDeclaration, nil)
	case ast.NodeForStatement:
		// the update clause, applied at the end of every iteration
		for _, u := range forUpdates(n) {
			mutations(u)
		}
	case ast.NodeCatchClause:
		for _, c := range ast.NamedChildren(n) {
			if c.Type() == ast.NodeCatchFormalParameter {
				add(ast.FieldText(c, "name", src), DefDeclaration, nil)
			}
		}
	case ast.NodeTryWithResources:
		ast.Walk(n.ChildByFieldName("resources"), func(c *sitter.Node) bool {
			if c.Type() == "resource" {
				add(ast.FieldText(c, "name", src), DefDeclaration, c.ChildByFieldName("value"))
				return false
			}
			return true
		})
	case ast.NodeExpressionStatement:
		if switchStatement(n) != nil {
			return nil
		}
		mutations(n)
		if expr := firstExpression(n); expr != nil && expr.Type() == ast.NodeMethodInvocation {
			if root := appendRoot(expr, src); root != "" {
				if d := add(root, DefAssignment, expr); d != nil {
					d.Appends = true
				}
			}
		}
	}
	return defs
}

// forUpdates returns the update expressions of a for statement: the named
// children between the last header semicolon and the closing parenthesis.
func forUpdates(n *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		switch {
		case c.Type() == ";":
			out = out[:0]
		case c.Type() == ")":
			return out
		case c.IsNamed() && !ast.IsComment(c):
			out = append(out, c)
		}
	}
	return nil
}

// declaredTypes maps variable names to their declared type text. Locals
// and parameters of scope come first, then the fields of the enclosing
// types, innermost first; the first declaration of a name wins.
func declaredTypes(scope *sitter.Node, src []byte) map[string]string {
	types := make(map[string]string)
	declare := func(name string, typ *sitter.Node) {
		if name == "" || typ == nil {
			return
		}
		if _, ok := types[name]; !ok {
			types[name] = ast.Text(typ, src)
		}
	}
	declarators := func(decl *sitter.Node) {
		typ := decl.ChildByFieldName("type")
		for _, c := range ast.NamedChildren(decl) {
			if c.Type() == ast.NodeVariableDeclarator {
				declare(ast.FieldText(c, "name", src), typ)
			}
		}
	}

	ast.Walk(scope, func(c *sitter.Node) bool {
		switch c.Type() {
		case ast.NodeClassBody:
			return false
		case ast.NodeLocalVariableDecl:
			declarators(c)
		case ast.NodeFormalParameter, ast.NodeEnhancedForStatement:
			declare(ast.FieldText(c, "name", src), c.ChildByFieldName("type"))
		}
		return true
	})
	for body := typeBody(scope); body != nil; body = typeBody(body.Parent()) {
		for _, m := range ast.NamedChildren(body) {
			if m.Type() == ast.NodeFieldDeclaration {
				declarators(m)
			}
		}
	}
	return types
}

// appendsString reports whether "name += right" appends text rather than
// adding numbers. The declared type decides when it is known; otherwise
// the right-hand side must be string valued.
func appendsString(name string, right *sitter.Node, types map[string]string, src []byte) bool {
	if typ, ok := types[name]; ok && typ != "var" {
		return typ == "String" || typ == "java.lang.String"
	}
	return isStringValued(right, src)
}

// isStringValued reports whether an expression is recognizably a String.
func isStringValued(n *sitter.Node, src []byte) bool {
	n = ast.Unwrap(n)
	if n == nil {
		return false
	}
	switch n.Type() {
	case ast.NodeStringLiteral, ast.NodeTextBlock:
		return true
	case ast.NodeBinaryExpression:
		return ast.FieldText(n, "operator", src) == "+" &&
			(isStringValued(n.ChildByFieldName("left"), src) || isStringValued(n.ChildByFieldName("right"), src))
	case ast.NodeTernaryExpression:
		return isStringValued(n.ChildByFieldName("consequence"), src) ||
			isStringValued(n.ChildByFieldName("alternative"), src)
	case ast.NodeMethodInvocation:
		switch ast.FieldText(n, "name", src) {
		case "toString", "format", "formatted", "substring", "trim", "strip",
			"toUpperCase", "toLowerCase", "getMessage", "repeat", "join":
			return true
		case "valueOf":
			return ast.FieldText(n, "object", src) == "String"
		}
	}
	return false
}

// switchStatement returns the switch of a statement that consists of a
// switch alone.
func switchStatement(stmt *sitter.Node) *sitter.Node {
	if expr := firstExpression(stmt); expr != nil && stmt.Type() == ast.NodeExpressionStatement &&
		expr.Type() == ast.NodeSwitchExpression {
		return expr
	}
	return nil
}

func firstExpression(stmt *sitter.Node) *sitter.Node {
	kids := ast.NamedChildren(stmt)
	if len(kids) == 0 {
		return nil
	}
	return kids[0]
}

// assignedName returns the variable written by an assignment target:
// a plain identifier or a this-qualified field.
func assignedName(left *sitter.Node, src []byte) string {
	left = ast.Unwrap(left)
	if left == nil {
		return ""
	}
	switch left.Type() {
	case ast.NodeIdentifier:
		return ast.Text(left, src)
	case ast.NodeFieldAccess:
		if obj := left.ChildByFieldName("object"); obj != nil && obj.Type() == ast.NodeThis {
			return ast.FieldText(left, "field", src)
		}
	}
	return ""
}

// appendRoot returns the variable mutated by a statement-level append
// chain such as sb.append("x").append(y).
func appendRoot(call *sitter.Node, src []byte) string {
	cur := call
	sawAppend := false
	for cur != nil && cur.Type() == ast.NodeMethodInvocation {
		if ast.FieldText(cur, "name", src) != "append" {
			return ""
		}
		sawAppend = true
		cur = ast.Unwrap(cur.ChildByFieldName("object"))
	}
	if !sawAppend || cur == nil || cur.Type() != ast.NodeIdentifier {
		return ""
	}
	return ast.Text(cur, src)
}
