// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package matcher

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/logtrace/services/logtrace/template"
)

func tmpl(pattern string, level template.Level, line int) template.LogTemplate {
	return template.New(template.NewLocation("App.java", "App", "run", line), pattern, level, 0)
}

func TestMatch_MostSpecificWins(t *testing.T) {
	m := Build([]template.LogTemplate{
		tmpl("User <*> logged in", template.LevelInfo, 1),
		tmpl("User <*> logged in from <*>", template.LevelInfo, 2),
		tmpl("<*>", template.LevelDebug, 3),
	})
	require.Equal(t, 3, m.Size())

	matches := m.Match("User bob logged in from office", "")
	require.NotEmpty(t, matches)
	best := matches[0]
	assert.Equal(t, "User <*> logged in from <*>", best.Template.Pattern)
	assert.Equal(t, []string{"bob", "office"}, best.CapturedValues)
	assert.InDelta(t, 4.0/6.0+0.1, best.Confidence, 1e-9)

	last := matches[len(matches)-1]
	assert.Equal(t, "<*>", last.Template.Pattern)
	assert.Equal(t, []string{"User bob logged in from office"}, last.CapturedValues)

	short := m.Match("User bob logged in", "")
	require.Len(t, short, 2)
	assert.Equal(t, "User <*> logged in", short[0].Template.Pattern)
	assert.Equal(t, []string{"bob"}, short[0].CapturedValues)
}

func TestMatch_WildcardSpansSeveralTokens(t *testing.T) {
	m := Build([]template.LogTemplate{tmpl("Connection to <*> failed", template.LevelError, 1)})
	best := m.BestMatch("Connection to db primary eu-west failed", "")
	require.NotNil(t, best)
	assert.Equal(t, []string{"db primary eu-west"}, best.CapturedValues)
}

func TestMatch_NoMatch(t *testing.T) {
	m := Build([]template.LogTemplate{tmpl("User <*> logged in", template.LevelInfo, 1)})

	assert.Empty(t, m.Match("Something else entirely", ""))
	assert.Nil(t, m.BestMatch("Something else entirely", ""))
	assert.Empty(t, m.Match("User logged in", ""), "a wildcard binds at least one token")
	assert.Empty(t, m.Match("User bob logged in today", ""), "all input tokens must be consumed")
	assert.Nil(t, m.Match("   ", ""))

	empty := New()
	assert.Nil(t, empty.Match("User bob logged in", ""))
	assert.Nil(t, empty.BestMatch("User bob logged in", ""))
	assert.Zero(t, empty.Size())
}

func TestMatch_LevelFilter(t *testing.T) {
	m := Build([]template.LogTemplate{
		tmpl("Cache miss <*>", template.LevelDebug, 1),
		tmpl("Cache miss <*>", template.LevelWarn, 2),
	})
	all := m.Match("Cache miss users", "")
	assert.Len(t, all, 2, "identical patterns from different sites are all kept")

	warn := m.Match("Cache miss users", "WARN")
	require.Len(t, warn, 1)
	assert.Equal(t, template.LevelWarn, warn[0].Template.Level)
	assert.Empty(t, m.Match("Cache miss users", "error"))
}

func TestMatch_MixedTokens(t *testing.T) {
	m := Build([]template.LogTemplate{
		tmpl("Failed for id=<*> user <*>", template.LevelError, 1),
		tmpl("Took <*>ms (<*>%)", template.LevelInfo, 2),
	})

	best := m.BestMatch("Failed for id=42 user alice", "")
	require.NotNil(t, best)
	assert.Equal(t, []string{"42", "alice"}, best.CapturedValues)
	assert.Equal(t, 4, best.Template.StaticTokenCount)

	best = m.BestMatch("Took 15ms (3.5%)", "")
	require.NotNil(t, best)
	assert.Equal(t, []string{"15", "3.5"}, best.CapturedValues)

	assert.Nil(t, m.BestMatch("Failed for id= user alice", ""), "an embedded placeholder needs content")
	assert.Nil(t, m.BestMatch("Failed for uid=42 user alice", ""))
}

func TestMatch_NamedPlaceholdersAreWildcards(t *testing.T) {
	m := Build([]template.LogTemplate{tmpl("<param:message>", template.LevelInfo, 1)})
	best := m.BestMatch("anything at all", "")
	require.NotNil(t, best)
	assert.Equal(t, 0, best.Template.StaticTokenCount)
	assert.Equal(t, []string{"anything at all"}, best.CapturedValues)
}

func TestConfidence(t *testing.T) {
	long := tmpl("Payload <*>", template.LevelInfo, 1)
	tokens := template.Tokenize("Payload a b c d e f g")
	got := confidence(&long, tokens, []string{"a b c d e f g"})
	assert.InDelta(t, 1.0/8.0-0.1, got, 1e-9)

	exact := tmpl("a b", template.LevelInfo, 1)
	assert.Equal(t, 1.0, confidence(&exact, []string{"a", "b"}, nil), "clamped to 1")

	none := tmpl("<*>", template.LevelInfo, 1)
	assert.Equal(t, 0.0, confidence(&none, template.Tokenize("a b c d e f g"), []string{"a b c d e f g"}), "clamped to 0")
}

func TestMatch_RankingTieBreaksOnConfidence(t *testing.T) {
	m := Build([]template.LogTemplate{
		tmpl("Job <*> done", template.LevelInfo, 1),
		tmpl("Job <*> <*>", template.LevelInfo, 2),
		tmpl("<*> <*> finished <*> done", template.LevelInfo, 3),
	})
	matches := m.Match("Job 7 finished quickly done", "")
	require.Len(t, matches, 5)
	for i := 1; i < len(matches); i++ {
		prev, cur := matches[i-1], matches[i]
		assert.GreaterOrEqual(t, prev.Template.StaticTokenCount, cur.Template.StaticTokenCount)
		if prev.Template.StaticTokenCount == cur.Template.StaticTokenCount {
			assert.GreaterOrEqual(t, prev.Confidence, cur.Confidence)
		}
	}
	assert.Equal(t, "<*> <*> finished <*> done", matches[0].Template.Pattern)
	assert.Equal(t, "Job <*> done", matches[1].Template.Pattern)
}

func TestMatch_MemoizedEqualsExhaustive(t *testing.T) {
	templates := []template.LogTemplate{
		tmpl("<*> <*> <*>", template.LevelInfo, 1),
		tmpl("a <*> a <*>", template.LevelInfo, 2),
		tmpl("<*> a <*>", template.LevelInfo, 3),
		tmpl("a a a a a", template.LevelInfo, 4),
		tmpl("<*> id=<*> <*>", template.LevelInfo, 5),
	}
	memo := Build(templates)
	plain := Build(templates)
	plain.memoize = false

	for _, line := range []string{"a a a a a", "a b a c", "x id=1 y z", "a", "a a"} {
		t.Run(line, func(t *testing.T) {
			assert.Equal(t, plain.Match(line, ""), memo.Match(line, ""))
		})
	}
}

func TestMatch_MaxWildcardSpan(t *testing.T) {
	templates := []template.LogTemplate{tmpl("start <*> end", template.LevelInfo, 1)}
	unlimited := Build(templates)
	limited := Build(templates, WithMaxWildcardSpan(2))

	assert.NotNil(t, unlimited.BestMatch("start a b c end", ""))
	assert.Nil(t, limited.BestMatch("start a b c end", ""))
	assert.NotNil(t, limited.BestMatch("start a b end", ""))
}

func TestMatch_ConcurrentReads(t *testing.T) {
	var templates []template.LogTemplate
	for i := 0; i < 50; i++ {
		templates = append(templates, tmpl(fmt.Sprintf("event %d for <*>", i), template.LevelInfo, i+1))
	}
	m := Build(templates)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				best := m.BestMatch(fmt.Sprintf("event %d for user-%d", i, g), "")
				if assert.NotNil(t, best) {
					assert.Equal(t, []string{fmt.Sprintf("user-%d", g)}, best.CapturedValues)
				}
			}
		}(g)
	}
	wg.Wait()
}
