// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package matcher indexes templates in a wildcard trie and matches log
// lines against them, most specific template first.
package matcher

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/logtrace/services/logtrace/template"
)

// Confidence adjustments.
const (
	lengthBonus       = 0.1
	overMatchPenalty  = 0.1
	overMatchMeanSize = 5.0
)

// node is one trie position.
type node struct {
	children  map[string]*node
	wildcard  *node
	mixed     []*mixedEdge
	templates []*template.LogTemplate
}

// mixedEdge matches one input token against literal text with embedded
// placeholders, such as "id=<*>".
type mixedEdge struct {
	token string
	re    *regexp.Regexp
	next  *node
}

func newNode() *node {
	return &node{children: make(map[string]*node)}
}

func (n *node) child(tok string) *node {
	switch template.ClassifyToken(tok) {
	case template.TokenWildcard:
		if n.wildcard == nil {
			n.wildcard = newNode()
		}
		return n.wildcard
	case template.TokenMixed:
		for _, e := range n.mixed {
			if e.token == tok {
				return e.next
			}
		}
		e := &mixedEdge{token: tok, re: compileMixed(tok), next: newNode()}
		n.mixed = append(n.mixed, e)
		return e.next
	}
	c, ok := n.children[tok]
	if !ok {
		c = newNode()
		n.children[tok] = c
	}
	return c
}

// compileMixed builds an anchored expression capturing each embedded
// placeholder lazily.
func compileMixed(tok string) *regexp.Regexp {
	parts := strings.Split(tok, template.Placeholder)
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile("^" + strings.Join(parts, "(.+?)") + "$")
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithMaxWildcardSpan limits how many input tokens one wildcard may bind.
// Zero means unlimited.
func WithMaxWildcardSpan(n int) Option {
	return func(m *Matcher) {
		if n >= 0 {
			m.maxSpan = n
		}
	}
}

// Matcher is a wildcard trie over template patterns.
//
// Description:
//
//	Each node holds exact-token children, at most one wildcard child, and
//	the templates whose pattern ends there. Identical patterns from
//	different call sites are all kept. A wildcard binds one or more input
//	tokens and every extent is explored, so all consistent templates are
//	reported. Sub-results are memoized per (node, position).
//
// Thread Safety:
//
//	Add must not run concurrently with anything else. Once built, Match,
//	BestMatch and Size are safe for concurrent use.
type Matcher struct {
	root    *node
	size    int
	maxSpan int
	memoize bool
}

// New creates an empty Matcher.
func New(opts ...Option) *Matcher {
	m := &Matcher{root: newNode(), memoize: true}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Build creates a Matcher holding templates.
func Build(templates []template.LogTemplate, opts ...Option) *Matcher {
	m := New(opts...)
	for i := range templates {
		m.Add(templates[i])
	}
	return m
}

// Add indexes a template. Templates with an empty pattern are ignored.
func (m *Matcher) Add(t template.LogTemplate) {
	toks := template.Tokenize(t.Pattern)
	if len(toks) == 0 {
		return
	}
	cur := m.root
	for _, tok := range toks {
		cur = cur.child(tok)
	}
	tc := t
	cur.templates = append(cur.templates, &tc)
	m.size++
}

// Size returns the number of indexed templates.
func (m *Matcher) Size() int {
	return m.size
}

// Match returns every template consistent with line.
//
// Description:
//
//	The line is split on whitespace. When level is non-empty only templates
//	of that level (case-insensitive) are kept. Matches are ranked by literal
//	token count, then confidence, both descending; equal keys keep trie
//	discovery order.
//
// Outputs:
//
//	[]template.LogMatch - nil when the trie or the line is empty.
func (m *Matcher) Match(line, level string) []template.LogMatch {
	start := time.Now()
	tokens := template.Tokenize(line)
	if len(tokens) == 0 || m.size == 0 {
		return nil
	}

	s := &search{m: m, tokens: tokens}
	if m.memoize {
		s.memo = make(map[memoKey][]hit)
	}
	hits := s.from(m.root, 0)

	var out []template.LogMatch
	for _, h := range hits {
		if level != "" && !strings.EqualFold(string(h.t.Level), level) {
			continue
		}
		out = append(out, template.LogMatch{
			Template:       h.t,
			Confidence:     confidence(h.t, tokens, h.captures),
			CapturedValues: h.captures,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Template.StaticTokenCount != b.Template.StaticTokenCount {
			return a.Template.StaticTokenCount > b.Template.StaticTokenCount
		}
		return a.Confidence > b.Confidence
	})
	recordMatch(time.Since(start), len(out) > 0)
	return out
}

// BestMatch returns the top-ranked match or nil.
func (m *Matcher) BestMatch(line, level string) *template.LogMatch {
	matches := m.Match(line, level)
	if len(matches) == 0 {
		return nil
	}
	return &matches[0]
}

type hit struct {
	t        *template.LogTemplate
	captures []string
}

type memoKey struct {
	n   *node
	pos int
}

// search is the per-line matching state.
type search struct {
	m      *Matcher
	tokens []string
	memo   map[memoKey][]hit
}

// from returns the matches of tokens[pos:] below n, with captures relative
// to pos.
func (s *search) from(n *node, pos int) []hit {
	if s.memo != nil {
		if cached, ok := s.memo[memoKey{n, pos}]; ok {
			return cached
		}
	}

	var out []hit
	if pos >= len(s.tokens) {
		for _, t := range n.templates {
			out = append(out, hit{t: t, captures: []string{}})
		}
	} else {
		tok := s.tokens[pos]
		if c, ok := n.children[tok]; ok {
			out = append(out, s.from(c, pos+1)...)
		}
		for _, e := range n.mixed {
			sub := e.re.FindStringSubmatch(tok)
			if sub == nil {
				continue
			}
			for _, h := range s.from(e.next, pos+1) {
				out = append(out, hit{t: h.t, captures: prepend(sub[1:], h.captures)})
			}
		}
		if n.wildcard != nil {
			last := len(s.tokens)
			if s.m.maxSpan > 0 && pos+s.m.maxSpan < last {
				last = pos + s.m.maxSpan
			}
			for end := pos + 1; end <= last; end++ {
				value := strings.Join(s.tokens[pos:end], " ")
				for _, h := range s.from(n.wildcard, end) {
					out = append(out, hit{t: h.t, captures: prepend([]string{value}, h.captures)})
				}
			}
		}
	}

	if s.memo != nil {
		s.memo[memoKey{n, pos}] = out
	}
	return out
}

func prepend(head, tail []string) []string {
	out := make([]string, 0, len(head)+len(tail))
	out = append(out, head...)
	return append(out, tail...)
}

// confidence scores a match in [0, 1].
//
// The base is the share of input tokens covered by literal template tokens.
// An equal token count earns a bonus, and captures averaging more than five
// words are penalized as likely over-matching.
func confidence(t *template.LogTemplate, tokens, captures []string) float64 {
	if len(tokens) == 0 {
		return 0
	}
	c := float64(t.StaticTokenCount) / float64(len(tokens))
	if len(template.Tokenize(t.Pattern)) == len(tokens) {
		c += lengthBonus
	}
	if len(captures) > 0 {
		words := 0
		for _, v := range captures {
			words += len(strings.Fields(v))
		}
		if float64(words)/float64(len(captures)) > overMatchMeanSize {
			c -= overMatchPenalty
		}
	}
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}
