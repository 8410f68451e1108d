// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package slicer recovers the textual origins of a log message held in a
// local variable.
//
// The slicer collects the statements of the enclosing method, computes the
// definitions reaching every statement, and walks backward from the
// logging call. Each definition of the message variable that reaches the
// call yields one pattern variant, which is how differently built messages
// on different branches become separate templates.
package slicer

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/AleutianAI/logtrace/services/logtrace/ast"
	"github.com/AleutianAI/logtrace/services/logtrace/rules"
	"github.com/AleutianAI/logtrace/services/logtrace/template"
)

// DefaultMaxResolveDepth bounds how many definitions deep identifiers are
// inlined while converting a defining expression.
const DefaultMaxResolveDepth = 8

// Mode selects how reaching definitions are propagated.
type Mode int

const (
	// ModeStructured follows the syntax structure: branches merge, loops
	// iterate to a fixpoint, and return or throw end a path.
	ModeStructured Mode = iota

	// ModeSequential processes statements in textual order, so a later
	// assignment on another branch hides an earlier one.
	ModeSequential
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeStructured:
		return "structured"
	case ModeSequential:
		return "sequential"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Fallback reports which fallback produced a slice result.
type Fallback int

const (
	FallbackNone Fallback = iota
	FallbackParameter
	FallbackConstant
	FallbackPlaceholder
)

// String returns the fallback name used in metrics.
func (f Fallback) String() string {
	switch f {
	case FallbackNone:
		return "none"
	case FallbackParameter:
		return "parameter"
	case FallbackConstant:
		return "constant"
	}
	return "placeholder"
}

// Result is the outcome of slicing one variable.
type Result struct {
	// Patterns holds one or more non-empty patterns.
	Patterns []string

	// Lines are the source lines of the backward slice, ascending.
	Lines []int

	Fallback Fallback
}

// Option configures a Slicer.
type Option func(*Slicer)

// WithMode selects the propagation mode.
func WithMode(m Mode) Option {
	return func(s *Slicer) {
		s.mode = m
	}
}

// WithMaxResolveDepth bounds identifier inlining. Values below 1 are ignored.
func WithMaxResolveDepth(depth int) Option {
	return func(s *Slicer) {
		if depth > 0 {
			s.maxResolveDepth = depth
		}
	}
}

// WithLogger sets the logger used for recovered failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Slicer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Slicer reconstructs message variables from their definitions.
//
// Thread Safety:
//
//	Slicer holds no per-call state and is safe for concurrent use.
type Slicer struct {
	engine          *rules.Engine
	mode            Mode
	maxResolveDepth int
	logger          *slog.Logger
}

// New creates a Slicer that converts expressions with engine.
func New(engine *rules.Engine, opts ...Option) *Slicer {
	s := &Slicer{
		engine:          engine,
		mode:            ModeStructured,
		maxResolveDepth: DefaultMaxResolveDepth,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mode returns the propagation mode.
func (s *Slicer) Mode() Mode {
	return s.mode
}

// MaxResolveDepth returns the identifier inlining bound.
func (s *Slicer) MaxResolveDepth() int {
	return s.maxResolveDepth
}

// Slice returns the patterns variable may hold at node at.
//
// Description:
//
//	Every definition of variable reaching the statement containing at is
//	converted into one or more patterns. When none is found the result
//	falls back to a parameter placeholder, a constant's value or named
//	placeholder, and finally the bare placeholder.
//
// Inputs:
//
//	at - A node inside a method, constructor, lambda, or initializer.
//	src - The source the tree was parsed from.
//	variable - The name of the message variable.
//
// Outputs:
//
//	Result - Never has empty Patterns.
func (s *Slicer) Slice(at *sitter.Node, src []byte, variable string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Debug("slicing panicked",
				slog.String("variable", variable),
				slog.Int("line", ast.Line(at)),
				slog.Any("panic", r))
			res = Result{Patterns: []string{template.Placeholder}, Fallback: FallbackPlaceholder}
		}
		recordFallback(res.Fallback)
	}()

	scope := Scope(at)
	a := s.analyze(scope, src)
	if a == nil {
		return s.fallback(scope, at, src, variable)
	}
	target := a.target(at)
	if target < 0 {
		return s.fallback(scope, at, src, variable)
	}

	lines := a.backwardSlice(variable, target)
	r := &resolver{s: s, a: a, visiting: make(map[int]bool)}
	_, counter := a.counters[variable]
	var patterns []string
	kind := FallbackParameter
	for _, id := range a.in[target][variable] {
		d := a.defs[id]
		switch {
		case d.Kind == DefParameter:
			patterns = append(patterns, template.ParamPlaceholder(d.Name))
		case d.Value == nil, counter:
		default:
			patterns = append(patterns, r.candidate(d)...)
			kind = FallbackNone
		}
	}
	patterns = clean(patterns)
	if len(patterns) == 0 {
		res = s.fallback(scope, at, src, variable)
		res.Lines = lines
		return res
	}
	return Result{Patterns: patterns, Lines: lines, Fallback: kind}
}

// ResolveExpression converts expr with identifiers inlined through their
// reaching definitions and through static final constants.
func (s *Slicer) ResolveExpression(expr *sitter.Node, src []byte) (patterns []string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Debug("expression resolution panicked",
				slog.Int("line", ast.Line(expr)),
				slog.Any("panic", r))
			patterns = []string{template.Placeholder}
		}
	}()
	if expr == nil {
		return []string{template.Placeholder}
	}

	scope := Scope(expr)
	a := s.analyze(scope, src)
	var resolve rules.Resolver
	if a != nil {
		if target := a.target(expr); target >= 0 {
			r := &resolver{s: s, a: a, visiting: make(map[int]bool)}
			resolve = r.at(target)
		}
	}
	if resolve == nil {
		resolve = s.constantsOnly(expr, src)
	}
	out := clean(s.engine.Converter(src, resolve).Convert(expr))
	if len(out) == 0 {
		return []string{template.Placeholder}
	}
	return out
}

// fallback applies the parameter, constant, placeholder chain.
func (s *Slicer) fallback(scope, at *sitter.Node, src []byte, variable string) Result {
	for _, p := range parameterNames(scope, src) {
		if p == variable {
			return Result{Patterns: []string{template.ParamPlaceholder(variable)}, Fallback: FallbackParameter}
		}
	}
	if values, ok := s.constantValue(at, src, variable, 0); ok {
		for _, v := range values {
			if template.CountLiteralTokens(v) > 0 {
				return Result{Patterns: clean(values), Fallback: FallbackConstant}
			}
		}
		return Result{Patterns: []string{template.ConstPlaceholder(variable)}, Fallback: FallbackConstant}
	}
	return Result{Patterns: []string{template.Placeholder}, Fallback: FallbackPlaceholder}
}

// =============================================================================
// Analysis
// =============================================================================

type nodeKey struct {
	start, end uint32
	typ        string
}

func key(n *sitter.Node) nodeKey {
	return nodeKey{start: n.StartByte(), end: n.EndByte(), typ: n.Type()}
}

// analysis holds the statements and reaching definitions of one scope.
type analysis struct {
	src    []byte
	scope  *sitter.Node
	stmts  []*SliceNode
	index  map[nodeKey]int
	defs   []*Variable
	in     []ReachingDefinitions
	frames []*jumpFrame

	// counters are variables updated arithmetically somewhere in the
	// scope. Their text is never taken from an initializer.
	counters map[string]struct{}
}

func (s *Slicer) analyze(scope *sitter.Node, src []byte) *analysis {
	body := scopeBody(scope)
	if body == nil {
		return nil
	}
	a := &analysis{
		src:      src,
		scope:    scope,
		stmts:    collectStatements(body, src),
		index:    make(map[nodeKey]int),
		counters: make(map[string]struct{}),
	}
	types := declaredTypes(scope, src)
	for _, st := range a.stmts {
		a.index[key(st.Node)] = st.Index
		st.Defs = definitionsOf(st, src, types)
		for _, d := range st.Defs {
			d.id = len(a.defs)
			a.defs = append(a.defs, d)
			if d.Kind == DefUpdate {
				a.counters[d.Name] = struct{}{}
			}
		}
	}

	var params []*Variable
	for _, name := range parameterNames(scope, src) {
		d := &Variable{Name: name, Line: ast.Line(scope), Kind: DefParameter, Stmt: -1, id: len(a.defs)}
		a.defs = append(a.defs, d)
		params = append(params, d)
	}
	entry := ReachingDefinitions{}.install(params)

	a.in = make([]ReachingDefinitions, len(a.stmts))
	switch s.mode {
	case ModeSequential:
		a.computeSequential(entry)
	default:
		a.computeStructured(entry, body)
	}
	return a
}

// target returns the innermost reachable statement containing n, or -1.
func (a *analysis) target(n *sitter.Node) int {
	fallback := -1
	for i := len(a.stmts) - 1; i >= 0; i-- {
		if !ast.Contains(a.stmts[i].Node, n) {
			continue
		}
		if a.in[i] != nil {
			return i
		}
		if fallback < 0 {
			fallback = i
		}
	}
	if fallback >= 0 {
		// unreachable code still slices against the textual predecessors
		a.in[fallback] = ReachingDefinitions{}
	}
	return fallback
}

type sliceItem struct {
	name string
	stmt int
}

// backwardSlice returns the source lines of every definition the value of
// variable at stmt transitively depends on.
func (a *analysis) backwardSlice(variable string, stmt int) []int {
	visited := make(map[sliceItem]bool)
	lineSet := make(map[int]struct{})
	work := []sliceItem{{name: variable, stmt: stmt}}
	for len(work) > 0 {
		item := work[len(work)-1]
		work = work[:len(work)-1]
		if visited[item] || item.stmt < 0 || a.in[item.stmt] == nil {
			continue
		}
		visited[item] = true
		for _, id := range a.in[item.stmt][item.name] {
			d := a.defs[id]
			if d.Stmt < 0 {
				continue
			}
			lineSet[a.stmts[d.Stmt].Line] = struct{}{}
			for _, use := range a.stmts[d.Stmt].Uses {
				work = append(work, sliceItem{name: use, stmt: d.Stmt})
			}
		}
	}
	lines := make([]int, 0, len(lineSet))
	for l := range lineSet {
		lines = append(lines, l)
	}
	sort.Ints(lines)
	return lines
}

// priors returns the definitions of d's variable reaching d's statement.
func (a *analysis) priors(d *Variable) []int {
	if d.Stmt < 0 || a.in[d.Stmt] == nil {
		return nil
	}
	return a.in[d.Stmt][d.Name]
}

// feeders returns every definition d builds on, following accumulating
// definitions backward.
func (a *analysis) feeders(d *Variable) map[int]bool {
	seen := make(map[int]bool)
	work := append([]int(nil), a.priors(d)...)
	for len(work) > 0 {
		id := work[len(work)-1]
		work = work[:len(work)-1]
		if seen[id] {
			continue
		}
		seen[id] = true
		if v := a.defs[id]; v.accumulates() {
			work = append(work, a.priors(v)...)
		}
	}
	return seen
}

// loopSeeds reports whether the accumulating definition d builds on its
// own earlier value, as an append inside a loop does. seeds are the
// definitions entering that cycle from outside it.
func (a *analysis) loopSeeds(d *Variable) (seeds []int, ok bool) {
	if !d.accumulates() || !a.feeders(d)[d.id] {
		return nil, false
	}
	cycle := map[int]bool{d.id: true}
	for id := range a.feeders(d) {
		if v := a.defs[id]; v.accumulates() && a.feeders(v)[d.id] {
			cycle[id] = true
		}
	}
	seen := make(map[int]bool)
	for id := range cycle {
		for _, p := range a.priors(a.defs[id]) {
			if !cycle[p] && !seen[p] {
				seen[p] = true
				seeds = append(seeds, p)
			}
		}
	}
	sort.Ints(seeds)
	return seeds, true
}

// =============================================================================
// Resolution
// =============================================================================

// resolver converts defining expressions, inlining identifiers through
// their own reaching definitions.
type resolver struct {
	s        *Slicer
	a        *analysis
	visiting map[int]bool
	depth    int
}

// candidate converts a definition of the sliced variable.
func (r *resolver) candidate(d *Variable) []string {
	if r.s.mode == ModeSequential {
		return r.sequentialCandidate(d)
	}
	return r.value(d)
}

// sequentialCandidate converts with the rule engine first and the plain
// converter second, without inlining.
func (r *resolver) sequentialCandidate(d *Variable) []string {
	var out []string
	for _, p := range r.s.engine.Extract(rules.Site{Node: d.Value, Source: r.a.src}) {
		if p != rules.IndirectMarker {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		out = r.s.engine.Converter(r.a.src, nil).Convert(d.Value)
	}
	if d.Extends {
		out = r.cross([]string{template.Placeholder}, out)
	}
	return out
}

// value returns the variants a definition assigns.
func (r *resolver) value(d *Variable) []string {
	if r.visiting[d.id] || r.depth >= r.s.maxResolveDepth || d.Kind == DefParameter || d.Value == nil {
		return []string{template.Placeholder}
	}
	r.visiting[d.id] = true
	r.depth++
	defer func() {
		delete(r.visiting, d.id)
		r.depth--
	}()

	// text accumulated by a loop is known up to where the loop starts
	if seeds, ok := r.a.loopSeeds(d); ok {
		prior := []string{""}
		if len(seeds) > 0 {
			prior = nil
			for _, id := range seeds {
				prior = append(prior, r.value(r.a.defs[id])...)
			}
		}
		out := r.cross(dedupe(prior), []string{template.Placeholder})
		for i := range out {
			out[i] = template.CollapsePlaceholders(out[i])
		}
		return dedupe(out)
	}

	out := r.s.engine.Converter(r.a.src, r.at(d.Stmt)).Convert(d.Value)
	if d.Extends {
		prior, ok := r.lookup(d.Name, d.Stmt)
		if !ok {
			prior = []string{template.Placeholder}
		}
		out = r.cross(prior, out)
	}
	return out
}

// at returns a converter resolver for identifiers read at statement stmt.
func (r *resolver) at(stmt int) rules.Resolver {
	return func(ident *sitter.Node) ([]string, bool) {
		return r.lookup(ast.Text(ident, r.a.src), stmt)
	}
}

// lookup returns the variants of name at stmt: its reaching definitions
// when it has any, otherwise a static final constant.
func (r *resolver) lookup(name string, stmt int) ([]string, bool) {
	if _, ok := r.a.counters[name]; ok {
		return []string{template.Placeholder}, true
	}
	var ids []int
	if stmt >= 0 && r.a.in[stmt] != nil {
		ids = r.a.in[stmt][name]
	}
	if len(ids) == 0 {
		return r.s.constantValue(r.a.scope, r.a.src, name, 0)
	}
	var out []string
	for _, id := range ids {
		out = append(out, r.value(r.a.defs[id])...)
	}
	return dedupe(out), true
}

// constantsOnly resolves identifiers against constants visible from n.
func (s *Slicer) constantsOnly(n *sitter.Node, src []byte) rules.Resolver {
	return func(ident *sitter.Node) ([]string, bool) {
		return s.constantValue(n, src, ast.Text(ident, src), 0)
	}
}

func (r *resolver) cross(prefixes, suffixes []string) []string {
	limit := r.s.engine.Options().MaxVariants
	var out []string
	for _, p := range prefixes {
		for _, s := range suffixes {
			out = append(out, p+s)
			if len(out) >= limit {
				return dedupe(out)
			}
		}
	}
	return dedupe(out)
}

// =============================================================================
// Constants
// =============================================================================

// constantValue looks name up among the static final fields of the types
// enclosing n, innermost first. ok reports whether such a field exists.
func (s *Slicer) constantValue(n *sitter.Node, src []byte, name string, depth int) ([]string, bool) {
	if n == nil || src == nil || depth > s.maxResolveDepth {
		return nil, false
	}
	for body := typeBody(n); body != nil; body = typeBody(body.Parent()) {
		decl := findConstant(body, src, name)
		if decl == nil {
			continue
		}
		value := decl.ChildByFieldName("value")
		if value == nil {
			return []string{template.ConstPlaceholder(name)}, true
		}
		resolve := func(ident *sitter.Node) ([]string, bool) {
			return s.constantValue(body, src, ast.Text(ident, src), depth+1)
		}
		return s.engine.Converter(src, resolve).Convert(value), true
	}
	return nil, false
}

// typeBody returns the nearest type body enclosing n, including n itself.
func typeBody(n *sitter.Node) *sitter.Node {
	for cur := n; cur != nil; cur = cur.Parent() {
		switch cur.Type() {
		case ast.NodeClassBody, "interface_body", "enum_body":
			return cur
		}
	}
	return nil
}

// findConstant returns the declarator of a static final field named name.
// Interface fields are implicitly static final.
func findConstant(body *sitter.Node, src []byte, name string) *sitter.Node {
	members := ast.NamedChildren(body)
	for i := 0; i < len(members); i++ {
		m := members[i]
		switch m.Type() {
		case "enum_body_declarations":
			members = append(members, ast.NamedChildren(m)...)
		case ast.NodeFieldDeclaration, "constant_declaration":
			if m.Type() == ast.NodeFieldDeclaration && !isStaticFinal(m, src) {
				continue
			}
			for _, c := range ast.NamedChildren(m) {
				if c.Type() == ast.NodeVariableDeclarator && ast.FieldText(c, "name", src) == name {
					return c
				}
			}
		}
	}
	return nil
}

func isStaticFinal(field *sitter.Node, src []byte) bool {
	for _, c := range ast.NamedChildren(field) {
		if c.Type() != ast.NodeModifiers {
			continue
		}
		static, final := false, false
		for _, word := range strings.Fields(ast.Text(c, src)) {
			switch word {
			case "static":
				static = true
			case "final":
				final = true
			}
		}
		return static && final
	}
	return false
}

// clean normalizes patterns and drops empty and duplicate ones.
func clean(patterns []string) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = template.NormalizePattern(p); p != "" {
			out = append(out, p)
		}
	}
	return dedupe(out)
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
