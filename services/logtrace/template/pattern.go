// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package template

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Placeholder is the reserved token standing for variable content.
const Placeholder = "<*>"

// Named placeholder prefixes emitted by the slicer fallbacks.
const (
	ParamPlaceholderPrefix = "<param:"
	ConstPlaceholderPrefix = "<const:"
)

// TokenKind classifies a pattern token.
type TokenKind int

const (
	// TokenLiteral is plain text that must match an input token exactly.
	TokenLiteral TokenKind = iota

	// TokenWildcard matches one or more input tokens.
	TokenWildcard

	// TokenMixed is literal text with embedded placeholders, such as "id=<*>".
	// It matches exactly one input token.
	TokenMixed
)

// ParamPlaceholder returns the placeholder for an unresolved method parameter.
func ParamPlaceholder(name string) string {
	return ParamPlaceholderPrefix + name + ">"
}

// ConstPlaceholder returns the placeholder for a constant of unknown value.
func ConstPlaceholder(name string) string {
	return ConstPlaceholderPrefix + name + ">"
}

// Tokenize splits a pattern or log line on runs of whitespace.
func Tokenize(s string) []string {
	return strings.Fields(s)
}

// ClassifyToken reports how a pattern token participates in matching.
func ClassifyToken(tok string) TokenKind {
	if IsWildcard(tok) {
		return TokenWildcard
	}
	if strings.Contains(tok, Placeholder) {
		return TokenMixed
	}
	return TokenLiteral
}

// IsWildcard reports whether tok is the placeholder or a named placeholder.
func IsWildcard(tok string) bool {
	if tok == Placeholder {
		return true
	}
	if !strings.HasSuffix(tok, ">") {
		return false
	}
	for _, prefix := range []string{ParamPlaceholderPrefix, ConstPlaceholderPrefix} {
		if strings.HasPrefix(tok, prefix) && len(tok) > len(prefix)+1 {
			return !strings.ContainsAny(tok[len(prefix):len(tok)-1], "<>")
		}
	}
	return false
}

// CountLiteralTokens returns the number of non-wildcard tokens in pattern.
func CountLiteralTokens(pattern string) int {
	n := 0
	for _, tok := range Tokenize(pattern) {
		if !IsWildcard(tok) {
			n++
		}
	}
	return n
}

// NormalizePattern collapses whitespace runs to a single space and trims.
func NormalizePattern(pattern string) string {
	return strings.Join(Tokenize(pattern), " ")
}

// CollapsePlaceholders merges directly adjacent placeholders into one.
func CollapsePlaceholders(pattern string) string {
	double := Placeholder + Placeholder
	for strings.Contains(pattern, double) {
		pattern = strings.ReplaceAll(pattern, double, Placeholder)
	}
	return pattern
}

// ID computes the stable template identifier.
//
// The id is the first 16 hex characters of SHA-256 over
// "file:line:pattern:variant" and depends on nothing else.
func ID(filePath string, line int, pattern string, variant int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%s:%d", filePath, line, pattern, variant)))
	return hex.EncodeToString(sum[:])[:16]
}
