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
	"context"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/logtrace/services/logtrace/ast"
	"github.com/AleutianAI/logtrace/services/logtrace/template"
)

// parseBody parses statements wrapped in a method of a throwaway class.
func parseBody(t *testing.T, body string) *ast.ParseResult {
	t.Helper()
	src := "class T {\n void m(String username, String ipAddress, int n, boolean a) {\n" + body + "\n }\n}\n"
	parser := ast.NewJavaParser()
	t.Cleanup(parser.Close)
	res, err := parser.Parse(context.Background(), []byte(src), "T.java")
	require.NoError(t, err)
	t.Cleanup(res.Close)
	return res
}

func findNode(res *ast.ParseResult, match func(*sitter.Node) bool) *sitter.Node {
	var found *sitter.Node
	ast.Walk(res.Root, func(n *sitter.Node) bool {
		if found != nil {
			return false
		}
		if match(n) {
			found = n
			return false
		}
		return true
	})
	return found
}

func logSite(t *testing.T, e *Engine, body string) Site {
	t.Helper()
	res := parseBody(t, body)
	call := findNode(res, func(n *sitter.Node) bool { return e.IsLoggingCall(n, res.Source) })
	require.NotNil(t, call, "no logging call in %q", body)
	return Site{Node: call, Source: res.Source, Context: template.ExtractionContext{FilePath: "T.java"}}
}

func exprSite(t *testing.T, body, nodeType string) Site {
	t.Helper()
	res := parseBody(t, body)
	n := findNode(res, func(n *sitter.Node) bool { return n.Type() == nodeType })
	require.NotNil(t, n, "no %s in %q", nodeType, body)
	return Site{Node: n, Source: res.Source}
}

func TestParameterizedRule(t *testing.T) {
	e := NewEngine()
	tests := []struct {
		name  string
		body  string
		want  []string
		level template.Level
	}{
		{
			name:  "slf4j anchors",
			body:  `log.info("User {} logged in from {}", username, ipAddress);`,
			want:  []string{"User <*> logged in from <*>"},
			level: template.LevelInfo,
		},
		{
			name:  "dollar prefixed anchor",
			body:  `LOG.warn("Processing large order {} with amount ${}", n, a);`,
			want:  []string{"Processing large order <*> with amount $<*>"},
			level: template.LevelWarn,
		},
		{
			name:  "escaped anchor",
			body:  `logger.debug("Literal \\{} and {}", n);`,
			want:  []string{"Literal {} and <*>"},
			level: template.LevelDebug,
		},
		{
			name:  "concatenation joins like the runtime",
			body:  `log.error("Failed for id=" + n + " user " + username);`,
			want:  []string{"Failed for id=<*> user <*>"},
			level: template.LevelError,
		},
		{
			name:  "nested format call",
			body:  `log.info(String.format("Report generation completed: type=%s, records=%d", username, n));`,
			want:  []string{"Report generation completed: type=<*>, records=<*>"},
			level: template.LevelInfo,
		},
		{
			name:  "ternary yields one variant per branch",
			body:  `log.info("Approval " + (a ? "granted" : "denied") + " for {}", username);`,
			want:  []string{"Approval granted for <*>", "Approval denied for <*>"},
			level: template.LevelInfo,
		},
		{
			name:  "builder argument",
			body:  `log.trace(new StringBuilder("Query ").append("on ").append(username).toString());`,
			want:  []string{"Query on <*>"},
			level: template.LevelTrace,
		},
		{
			name:  "receiver with this prefix",
			body:  `this.log.error("boom");`,
			want:  []string{"boom"},
			level: template.LevelError,
		},
		{
			name:  "level argument with message format anchors",
			body:  `logger.log(Level.WARNING, "Disk {0} is {1}% full", username, n);`,
			want:  []string{"Disk <*> is <*>% full"},
			level: template.LevelWarn,
		},
		{
			name:  "marker precedes the message",
			body:  `log.info(AUDIT_MARKER, "Audit {}", username);`,
			want:  []string{"Audit <*>"},
			level: template.LevelInfo,
		},
		{
			name:  "message in fourth position",
			body:  `logger.log(null, FQCN, LocationAwareLogger.INFO_INT, "Cache miss for {}", username);`,
			want:  []string{"Cache miss for <*>"},
			level: template.LevelUnknown,
		},
		{
			name:  "printf style",
			body:  `log.printf(Level.INFO, "Loaded %d rows in %.2f s", n, a);`,
			want:  []string{"Loaded <*> rows in <*> s"},
			level: template.LevelInfo,
		},
		{
			name:  "println on a logger",
			body:  `LOG.println("Worker {} ready", username);`,
			want:  []string{"Worker <*> ready"},
			level: template.LevelUnknown,
		},
		{
			name:  "jul alias level",
			body:  `LOGGER.severe("Shutdown requested");`,
			want:  []string{"Shutdown requested"},
			level: template.LevelError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			site := logSite(t, e, tt.body)
			require.True(t, e.CanHandle(KindParameterized, site))
			assert.Equal(t, tt.want, e.Extract(site))
			assert.Equal(t, tt.level, e.Level(site))
		})
	}
}

func TestMessageArgument_Markers(t *testing.T) {
	e := NewEngine()
	tests := []struct {
		name string
		body string
		want string
	}{
		{"marker variable", `log.info(marker, "Audit {}", username);`, `"Audit {}"`},
		{"marker constant", `log.info(AUDIT_MARKER, "Audit {}", username);`, `"Audit {}"`},
		{"camel case marker", `log.info(this.securityMarker, "Denied {}", username);`, `"Denied {}"`},
		{"marker factory", `log.warn(MarkerFactory.getMarker("SECURITY"), "Denied {}", username);`, `"Denied {}"`},
		{"marker construction", `log.info(new BasicMarker("X"), "Seen {}", username);`, `"Seen {}"`},
		{"bookmarker is not a marker", `log.info(bookmarker, "Saved {}", username);`, `bookmarker`},
		{"markers list is not a marker", `log.info(markers, "Saved {}", username);`, `markers`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			site := logSite(t, e, tt.body)
			msg := e.MessageArgument(site.Node, site.Source)
			require.NotNil(t, msg)
			assert.Equal(t, tt.want, ast.Text(msg, site.Source))
		})
	}
}

func TestParameterizedRule_IndirectMessage(t *testing.T) {
	e := NewEngine()
	for _, body := range []string{
		`log.warn(msg);`,
		`log.warn(this.msg);`,
		`log.warn(sb.toString());`,
		`log.warn((msg), ex);`,
	} {
		t.Run(body, func(t *testing.T) {
			site := logSite(t, e, body)
			assert.Equal(t, []string{IndirectMarker}, e.Extract(site))
			assert.NotEmpty(t, e.MessageVariable(site))
		})
	}

	site := logSite(t, e, `log.warn(sb.toString());`)
	assert.Equal(t, "sb", e.MessageVariable(site))
}

func TestParameterizedRule_NotALogger(t *testing.T) {
	e := NewEngine()
	res := parseBody(t, `System.out.println("x"); audit.info("y");`)
	calls := 0
	ast.Walk(res.Root, func(n *sitter.Node) bool {
		if n.Type() == ast.NodeMethodInvocation {
			calls++
			assert.False(t, e.CanHandle(KindParameterized, Site{Node: n, Source: res.Source}))
		}
		return true
	})
	assert.Equal(t, 2, calls)

	custom := NewEngine(WithLoggerNames("audit"))
	site := logSite(t, custom, `audit.info("y");`)
	assert.Equal(t, []string{"y"}, custom.Extract(site))
}

func TestExplicitFormatRule(t *testing.T) {
	e := NewEngine()
	tests := []struct {
		name string
		body string
		want string
	}{
		{"string format", `String s = String.format("Generated %s report with %d records", username, n);`, "Generated <*> report with <*> records"},
		{"locale first", `String s = String.format(Locale.US, "Took %,d ms (%5.1f%%)", n, a);`, "Took <*> ms (<*>%)"},
		{"formatted", `String s = "Saved %s at %1$tH:%1$tM".formatted(username);`, "Saved <*> at <*>:<*>"},
		{"message format", `String s = MessageFormat.format("User {0} has {1,number} items, it''s fine", username, n);`, "User <*> has <*> items, it's fine"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			site := exprSite(t, tt.body, ast.NodeMethodInvocation)
			require.True(t, e.CanHandle(KindExplicitFormat, site))
			assert.Equal(t, []string{tt.want}, e.Extract(site))
		})
	}

	site := exprSite(t, `String s = String.format(fmt, n);`, ast.NodeMethodInvocation)
	assert.False(t, e.CanHandle(KindExplicitFormat, site))
}

func TestLiteralConcatRule(t *testing.T) {
	e := NewEngine()
	site := exprSite(t, `String s = "User " + username + " logged in";`, ast.NodeBinaryExpression)
	require.True(t, e.CanHandle(KindLiteralConcat, site))
	assert.False(t, e.CanHandle(KindParameterized, site))
	got := e.Extract(site)
	require.Len(t, got, 1)
	assert.Equal(t, "User <*> logged in", got[0])
	assert.Equal(t, 3, template.CountLiteralTokens(got[0]))

	numeric := exprSite(t, `int s = n + 1;`, ast.NodeBinaryExpression)
	assert.False(t, e.CanHandle(KindLiteralConcat, numeric))
}

func TestFluentBuilderRule(t *testing.T) {
	e := NewEngine()
	site := exprSite(t,
		`String q = new StringBuilder().append("Query execution started for table ").append(username).toString();`,
		ast.NodeMethodInvocation)
	require.True(t, e.CanHandle(KindFluentBuilder, site))
	assert.Equal(t, []string{"Query execution started for table <*>"}, e.Extract(site))

	capacity := exprSite(t, `String q = new StringBuffer(64).append("Rows: ").append(n).append('!').toString();`,
		ast.NodeMethodInvocation)
	assert.Equal(t, []string{"Rows: <*>!"}, e.Extract(capacity))

	other := exprSite(t, `String q = list.append("x").toString();`, ast.NodeMethodInvocation)
	assert.False(t, e.CanHandle(KindFluentBuilder, other))
}

func TestEngine_RulesNeverPanic(t *testing.T) {
	e := NewEngine()
	res := parseBody(t, `log.info(;`)
	ast.Walk(res.Root, func(n *sitter.Node) bool {
		site := Site{Node: n, Source: res.Source}
		for _, kind := range Kinds {
			assert.NotPanics(t, func() {
				if e.CanHandle(kind, site) {
					e.ExtractWith(kind, site)
				}
			})
		}
		return true
	})
	assert.Nil(t, e.Extract(Site{}))
}

func TestPrintfPattern(t *testing.T) {
	tests := []struct{ in, want string }{
		{"100%% done%n", "100% done "},
		{"%-10s|%5.2f|%1$tY|%,d|%x", "<*>|<*>|<*>|<*>|<*>"},
		{"no directives", "no directives"},
		{"%b %c %e %<s", "<*> <*> <*> <*>"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PrintfPattern(tt.in), tt.in)
	}
}

func TestAnchorPattern(t *testing.T) {
	assert.Equal(t, "a <*> b <*>", AnchorPattern("a {} b {}"))
	assert.Equal(t, "a {} b", AnchorPattern(`a \{} b`))
	assert.Equal(t, `a \<*> b`, AnchorPattern(`a \\{} b`))
	assert.Equal(t, "{ }", AnchorPattern("{ }"))
}
