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
	"regexp"
	"strings"

	"github.com/AleutianAI/logtrace/services/logtrace/template"
)

// printfDirective is the java.util.Formatter directive grammar:
// %[argument_index$][flags][width][.precision]conversion, including the
// two-character date/time conversions and the argument-free %% and %n.
var printfDirective = regexp.MustCompile(`%(\d+\$)?[-#+ 0,(<]*\d*(\.\d+)?([tT][a-zA-Z]|[bBhHsScCdoxXeEfgGaA%n])`)

// messageAnchor matches MessageFormat arguments such as {0} or {1,number,#.##}.
var messageAnchor = regexp.MustCompile(`\{\s*\d+\s*(,[^{}]*)?\}`)

// PrintfPattern replaces every format directive with the placeholder in a
// single substitution pass. %% becomes a literal percent sign and %n a space.
func PrintfPattern(format string) string {
	return printfDirective.ReplaceAllStringFunc(format, func(d string) string {
		switch d[len(d)-1] {
		case '%':
			return "%"
		case 'n':
			return " "
		}
		return template.Placeholder
	})
}

// MessageFormatPattern replaces MessageFormat arguments with the placeholder
// and resolves doubled single quotes.
func MessageFormatPattern(format string) string {
	out := messageAnchor.ReplaceAllString(format, template.Placeholder)
	return strings.ReplaceAll(out, "''", "'")
}

// AnchorPattern replaces SLF4J "{}" anchors with the placeholder.
//
// An anchor preceded by one backslash is literal "{}"; an anchor preceded
// by two backslashes keeps one backslash and is still substituted.
func AnchorPattern(msg string) string {
	if !strings.Contains(msg, "{}") {
		return msg
	}
	var b strings.Builder
	b.Grow(len(msg))
	i := 0
	for {
		j := strings.Index(msg[i:], "{}")
		if j < 0 {
			b.WriteString(msg[i:])
			break
		}
		j += i
		switch {
		case j >= 2 && msg[j-1] == '\\' && msg[j-2] == '\\':
			b.WriteString(msg[i : j-1])
			b.WriteString(template.Placeholder)
		case j >= 1 && msg[j-1] == '\\':
			b.WriteString(msg[i : j-1])
			b.WriteString("{}")
		default:
			b.WriteString(msg[i:j])
			b.WriteString(template.Placeholder)
		}
		i = j + 2
	}
	return b.String()
}

func applyStyle(style FormatStyle, s string) string {
	switch style {
	case StyleMessage:
		return MessageFormatPattern(s)
	default:
		return PrintfPattern(s)
	}
}
