// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logline parses runtime log lines, matches their messages against
// extracted templates and reports the outcome.
package logline

import (
	"regexp"
	"strings"

	"github.com/AleutianAI/logtrace/services/logtrace/template"
)

// Line is a parsed log line. Fields the format does not carry are empty.
type Line struct {
	Timestamp string
	Level     string
	Thread    string
	Logger    string
	Message   string
}

const levelWord = `(?i:trace|debug|info|warn|warning|error|err|fatal|critical|severe|fine|finer|finest|config|notice)`

// Formats are tried in order; the last one takes the whole line.
var lineFormats = []*regexp.Regexp{
	// 2023-10-15T14:30:00.123Z INFO [main] com.example.Service - Message
	regexp.MustCompile(`^(?P<timestamp>\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\S*)\s+(?P<level>\w+)\s+(?:\[(?P<thread>[^\]]+)\]\s*)?(?:(?P<logger>[^\s-]+)\s+-\s+)?(?P<message>.+)$`),

	// 2023-10-15 14:30:00.123 INFO  [main] com.example.Service: Message
	regexp.MustCompile(`^(?P<timestamp>\d{4}-\d{2}-\d{2}\s+\d{2}:\d{2}:\d{2}\S*)\s+(?P<level>\w+)\s+(?:\[(?P<thread>[^\]]+)\]\s*)?(?:(?P<logger>[^\s:]+):\s+)?(?P<message>.+)$`),

	// INFO  2023-10-15 14:30:00,123 [main] com.example.Service - Message
	regexp.MustCompile(`^(?P<level>\w+)\s+(?P<timestamp>\d{4}-\d{2}-\d{2}\s+\d{2}:\d{2}:\d{2}\S*)\s+(?:\[(?P<thread>[^\]]+)\]\s*)?(?:(?P<logger>[^\s-]+)\s+-\s+)?(?P<message>.+)$`),

	// INFO: Message
	regexp.MustCompile(`^(?P<level>` + levelWord + `):\s*(?P<message>.+)$`),

	regexp.MustCompile(`^(?P<message>.+)$`),
}

// Parse splits a log line into its parts.
//
// Description:
//
//	The line is trimmed and tried against the known formats in order. A
//	line matching none of them becomes a bare message.
//
// Outputs:
//
//	Line - The parsed parts.
//	bool - False when the line is blank.
func Parse(raw string) (Line, bool) {
	raw = strings.TrimSpace(strings.ToValidUTF8(raw, ""))
	if raw == "" {
		return Line{}, false
	}
	for _, re := range lineFormats {
		sub := re.FindStringSubmatch(raw)
		if sub == nil {
			continue
		}
		var l Line
		for i, name := range re.SubexpNames() {
			switch name {
			case "timestamp":
				l.Timestamp = sub[i]
			case "level":
				l.Level = sub[i]
			case "thread":
				l.Thread = sub[i]
			case "logger":
				l.Logger = sub[i]
			case "message":
				l.Message = strings.TrimSpace(sub[i])
			}
		}
		return l, l.Message != ""
	}
	return Line{Message: raw}, true
}

var levelAliases = map[string]template.Level{
	"warning":  template.LevelWarn,
	"err":      template.LevelError,
	"severe":   template.LevelError,
	"critical": template.LevelFatal,
	"fine":     template.LevelDebug,
	"finer":    template.LevelTrace,
	"finest":   template.LevelTrace,
	"config":   template.LevelInfo,
	"notice":   template.LevelInfo,
}

// LevelHint maps the level text of a line to a template level, or
// LevelUnknown when it names none.
func LevelHint(level string) template.Level {
	if l, ok := levelAliases[strings.ToLower(level)]; ok {
		return l
	}
	return template.ParseLevel(level)
}
