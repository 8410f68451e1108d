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
	"sort"

	sitter "github.com/smacker/go-tree-sitter"
)

// DefKind classifies how a variable received its value.
type DefKind int

const (
	DefDeclaration DefKind = iota
	DefAssignment
	DefParameter

	// DefUpdate is an increment, decrement or arithmetic compound
	// assignment. Its value is never known statically.
	DefUpdate
	DefUnknown
)

// String returns the kind name.
func (k DefKind) String() string {
	switch k {
	case DefDeclaration:
		return "declaration"
	case DefAssignment:
		return "assignment"
	case DefParameter:
		return "parameter"
	case DefUpdate:
		return "update"
	}
	return "unknown"
}

// Variable is one definition of a variable inside the slicing scope.
type Variable struct {
	Name string
	Line int
	Kind DefKind

	// Stmt is the index of the defining statement, -1 for parameters.
	Stmt int

	// Value is the assigned expression, nil when unknown (loop variables,
	// catch parameters, declarations without initializer, null).
	Value *sitter.Node

	// Extends marks a string "+=": the new value is the previous value
	// followed by Value.
	Extends bool

	// Appends marks a statement-level append chain on a builder. Value is
	// the chain, rooted at the builder itself.
	Appends bool

	id int
}

// accumulates reports whether the definition builds on the variable's
// previous value.
func (v *Variable) accumulates() bool {
	return v.Extends || v.Appends
}

// SliceNode is a statement collected from the scope body.
type SliceNode struct {
	Index int
	Line  int
	Node  *sitter.Node
	Uses  []string
	Defs  []*Variable
}

// Defines reports whether the statement defines name.
func (s *SliceNode) Defines(name string) bool {
	for _, d := range s.Defs {
		if d.Name == name {
			return true
		}
	}
	return false
}

// ReachingDefinitions maps a variable name to the ids of the definitions
// that may reach a program point. A nil value marks an unreachable point.
type ReachingDefinitions map[string][]int

func (r ReachingDefinitions) clone() ReachingDefinitions {
	if r == nil {
		return nil
	}
	out := make(ReachingDefinitions, len(r))
	for k, v := range r {
		out[k] = append([]int(nil), v...)
	}
	return out
}

// merge unions the definitions of every live state.
func merge(states ...ReachingDefinitions) ReachingDefinitions {
	var out ReachingDefinitions
	for _, s := range states {
		if s == nil {
			continue
		}
		if out == nil {
			out = s.clone()
			continue
		}
		for k, ids := range s {
			out[k] = unionIDs(out[k], ids)
		}
	}
	return out
}

func (r ReachingDefinitions) equal(o ReachingDefinitions) bool {
	if (r == nil) != (o == nil) || len(r) != len(o) {
		return false
	}
	for k, ids := range r {
		other, ok := o[k]
		if !ok || len(other) != len(ids) {
			return false
		}
		for i := range ids {
			if ids[i] != other[i] {
				return false
			}
		}
	}
	return true
}

// install kills every prior definition of each defined name and installs
// the new ones.
func (r ReachingDefinitions) install(defs []*Variable) ReachingDefinitions {
	if r == nil || len(defs) == 0 {
		return r
	}
	out := r.clone()
	for _, d := range defs {
		out[d.Name] = []int{d.id}
	}
	return out
}

func unionIDs(a, b []int) []int {
	if len(b) == 0 {
		return a
	}
	seen := make(map[int]struct{}, len(a)+len(b))
	out := make([]int, 0, len(a)+len(b))
	for _, list := range [][]int{a, b} {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	sort.Ints(out)
	return out
}
