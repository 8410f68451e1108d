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
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/AleutianAI/logtrace/services/logtrace/ast"
)

// maxLoopIterations bounds the fixpoint iteration of one loop.
const maxLoopIterations = 16

// jumpFrame collects the states leaving a loop or switch through break
// or continue.
type jumpFrame struct {
	loop      bool
	breaks    []ReachingDefinitions
	continues []ReachingDefinitions
}

// computeSequential propagates definitions through the statements in
// textual order, ignoring branch and loop structure.
func (a *analysis) computeSequential(entry ReachingDefinitions) {
	state := entry
	deferred := make(map[int][]*Variable)
	for i, st := range a.stmts {
		a.in[i] = state.clone()
		defs := st.Defs
		// for updates run after the init declaration that precedes them
		if j, ok := a.forInit(st); ok && j > i {
			deferred[j] = append(deferred[j], defs...)
			defs = nil
		}
		state = state.install(defs).install(deferred[i])
	}
}

// forInit returns the statement index of a for statement's init
// declaration.
func (a *analysis) forInit(st *SliceNode) (int, bool) {
	if st.Node.Type() != ast.NodeForStatement || len(st.Defs) == 0 {
		return 0, false
	}
	init := st.Node.ChildByFieldName("init")
	if init == nil {
		return 0, false
	}
	j, ok := a.index[key(init)]
	return j, ok
}

// computeStructured propagates definitions along the syntax structure:
// branches merge, loops iterate to a fixpoint, and return or throw end a
// path.
func (a *analysis) computeStructured(entry ReachingDefinitions, body *sitter.Node) {
	a.flow(body, entry)
}

func (a *analysis) record(n *sitter.Node, state ReachingDefinitions) *SliceNode {
	idx, ok := a.index[key(n)]
	if !ok {
		return nil
	}
	a.in[idx] = merge(a.in[idx], state)
	return a.stmts[idx]
}

func (a *analysis) flow(n *sitter.Node, in ReachingDefinitions) ReachingDefinitions {
	if n == nil || in == nil {
		return in
	}

	switch n.Type() {
	case ast.NodeBlock, "constructor_body":
		return a.flowSequence(ast.NamedChildren(n), in)

	case ast.NodeExpressionStatement, ast.NodeLocalVariableDecl, "assert_statement",
		"explicit_constructor_invocation":
		if sw := switchStatement(n); sw != nil {
			a.record(n, in)
			return a.flow(sw, in)
		}
		st := a.record(n, in)
		if st == nil {
			return in
		}
		return in.install(st.Defs)

	case ast.NodeReturnStatement, ast.NodeThrowStatement, ast.NodeYieldStatement:
		a.record(n, in)
		return nil

	case ast.NodeBreakStatement:
		a.record(n, in)
		if f := a.frame(false); f != nil {
			f.breaks = append(f.breaks, in)
		}
		return nil

	case ast.NodeContinueStatement:
		a.record(n, in)
		if f := a.frame(true); f != nil {
			f.continues = append(f.continues, in)
		}
		return nil

	case ast.NodeIfStatement:
		a.record(n, in)
		thenOut := a.flow(n.ChildByFieldName("consequence"), in)
		elseOut := in
		if alt := n.ChildByFieldName("alternative"); alt != nil {
			elseOut = a.flow(alt, in)
		}
		return merge(thenOut, elseOut)

	case ast.NodeWhileStatement:
		a.record(n, in)
		return a.flowLoop(in, nil, nil, func(head ReachingDefinitions) ReachingDefinitions {
			return a.flow(n.ChildByFieldName("body"), head)
		}, true)

	case ast.NodeForStatement:
		st := a.record(n, in)
		state := in
		if init := n.ChildByFieldName("init"); init != nil && init.Type() == ast.NodeLocalVariableDecl {
			state = a.flow(init, state)
		}
		var updates []*Variable
		if st != nil {
			updates = st.Defs
		}
		return a.flowLoop(state, nil, updates, func(head ReachingDefinitions) ReachingDefinitions {
			return a.flow(n.ChildByFieldName("body"), head)
		}, true)

	case ast.NodeEnhancedForStatement:
		st := a.record(n, in)
		var defs []*Variable
		if st != nil {
			defs = st.Defs
		}
		return a.flowLoop(in, defs, nil, func(head ReachingDefinitions) ReachingDefinitions {
			return a.flow(n.ChildByFieldName("body"), head)
		}, true)

	case ast.NodeDoStatement:
		a.record(n, in)
		return a.flowLoop(in, nil, nil, func(head ReachingDefinitions) ReachingDefinitions {
			return a.flow(n.ChildByFieldName("body"), head)
		}, false)

	case ast.NodeTryStatement, ast.NodeTryWithResources:
		return a.flowTry(n, in)

	case ast.NodeSwitchExpression, ast.NodeSwitchStatement:
		a.record(n, in)
		return a.flowSwitch(n.ChildByFieldName("body"), in)

	case ast.NodeLabeledStatement, ast.NodeSynchronizedStatement:
		if n.Type() == ast.NodeSynchronizedStatement {
			a.record(n, in)
		}
		kids := ast.NamedChildren(n)
		if len(kids) == 0 {
			return in
		}
		return a.flow(kids[len(kids)-1], in)
	}
	return in
}

func (a *analysis) flowSequence(nodes []*sitter.Node, in ReachingDefinitions) ReachingDefinitions {
	state := in
	for _, child := range nodes {
		if state == nil {
			break
		}
		state = a.flow(child, state)
	}
	return state
}

// flowLoop iterates a loop body to a fixpoint. entryDefs are installed at
// the start of every iteration and latch at its end, continues included.
// A pre-tested loop may run zero times.
func (a *analysis) flowLoop(in ReachingDefinitions, entryDefs, latch []*Variable,
	body func(ReachingDefinitions) ReachingDefinitions, preTested bool) ReachingDefinitions {

	head := in
	var frame *jumpFrame
	var bodyOut ReachingDefinitions
	for i := 0; i < maxLoopIterations; i++ {
		frame = &jumpFrame{loop: true}
		a.frames = append(a.frames, frame)
		bodyOut = body(head.install(entryDefs))
		a.frames = a.frames[:len(a.frames)-1]

		back := []ReachingDefinitions{in, bodyOut.install(latch)}
		for _, c := range frame.continues {
			back = append(back, c.install(latch))
		}
		next := merge(back...)
		if next.equal(head) {
			break
		}
		head = next
	}

	exits := append([]ReachingDefinitions{}, frame.breaks...)
	if preTested {
		exits = append(exits, head)
	} else {
		exits = append(exits, bodyOut)
		exits = append(exits, frame.continues...)
	}
	return merge(exits...)
}

func (a *analysis) flowTry(n *sitter.Node, in ReachingDefinitions) ReachingDefinitions {
	st := a.record(n, in)
	state := in
	if st != nil {
		state = state.install(st.Defs)
	}

	bodyOut := a.flow(n.ChildByFieldName("body"), state)
	out := bodyOut
	var finally *sitter.Node
	for _, c := range ast.NamedChildren(n) {
		switch c.Type() {
		case ast.NodeCatchClause:
			// an exception may leave the body at any point
			catchIn := merge(state, bodyOut)
			cst := a.record(c, catchIn)
			if cst != nil {
				catchIn = catchIn.install(cst.Defs)
			}
			out = merge(out, a.flow(c.ChildByFieldName("body"), catchIn))
		case ast.NodeFinallyClause:
			finally = c
		}
	}

	if finally == nil {
		return out
	}
	var block *sitter.Node
	for _, c := range ast.NamedChildren(finally) {
		if c.Type() == ast.NodeBlock {
			block = c
		}
	}
	if out == nil {
		a.flow(block, merge(state, bodyOut))
		return nil
	}
	return a.flow(block, out)
}

// flowSwitch handles both fallthrough groups and arrow rules.
func (a *analysis) flowSwitch(body *sitter.Node, in ReachingDefinitions) ReachingDefinitions {
	if body == nil {
		return in
	}
	frame := &jumpFrame{}
	a.frames = append(a.frames, frame)
	defer func() { a.frames = a.frames[:len(a.frames)-1] }()

	var outs []ReachingDefinitions
	var fall ReachingDefinitions
	hasDefault := false
	for _, c := range ast.NamedChildren(body) {
		switch c.Type() {
		case ast.NodeSwitchGroup:
			var stmts []*sitter.Node
			for _, s := range ast.NamedChildren(c) {
				if s.Type() == "switch_label" {
					if strings.Contains(ast.Text(s, a.src), "default") {
						hasDefault = true
					}
					continue
				}
				stmts = append(stmts, s)
			}
			fall = a.flowSequence(stmts, merge(in, fall))
		case ast.NodeSwitchRule:
			kids := ast.NamedChildren(c)
			for _, s := range kids {
				if s.Type() == "switch_label" && strings.Contains(ast.Text(s, a.src), "default") {
					hasDefault = true
				}
			}
			if len(kids) > 0 {
				outs = append(outs, a.flow(kids[len(kids)-1], in))
			}
		}
	}
	outs = append(outs, fall)
	outs = append(outs, frame.breaks...)
	if !hasDefault {
		outs = append(outs, in)
	}
	return merge(outs...)
}

// frame returns the innermost loop frame, or the innermost frame of any
// kind when loopOnly is false.
func (a *analysis) frame(loopOnly bool) *jumpFrame {
	for i := len(a.frames) - 1; i >= 0; i-- {
		if !loopOnly || a.frames[i].loop {
			return a.frames[i]
		}
	}
	return nil
}
