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

import "strings"

// FormatStyle is the placeholder grammar of a formatting call.
type FormatStyle string

const (
	// StylePrintf is java.util.Formatter syntax ("%s", "%5.2f", "%1$tY").
	StylePrintf FormatStyle = "printf"

	// StyleMessage is java.text.MessageFormat syntax ("{0}", "{1,number}").
	StyleMessage FormatStyle = "message"
)

// FormatCall is a recognized receiver/method pair that formats its arguments.
type FormatCall struct {
	Receiver string      `yaml:"receiver"`
	Method   string      `yaml:"method"`
	Style    FormatStyle `yaml:"style"`
}

const (
	// DefaultMaxVariants bounds the pattern variants one expression may yield.
	DefaultMaxVariants = 64

	// maxConvertDepth bounds expression recursion.
	maxConvertDepth = 64
)

// Options holds the recognized names the engine works with.
type Options struct {
	// LoggerNames are receiver names treated as loggers.
	LoggerNames []string

	// LoggingMethods are method names treated as logging calls.
	LoggingMethods []string

	// LevelAliases maps non-canonical level names (warning, severe) to
	// canonical ones.
	LevelAliases map[string]string

	// FormatCalls are static formatting calls such as String.format.
	FormatCalls []FormatCall

	// BuilderTypes are the fluent string builder class names.
	BuilderTypes []string

	// MaxVariants bounds the variants one expression may produce.
	MaxVariants int
}

// DefaultOptions returns the built-in logger, method and format sets.
func DefaultOptions() Options {
	return Options{
		LoggerNames: []string{"log", "logger", "LOG", "LOGGER", "log4j", "slf4j"},
		LoggingMethods: []string{
			"trace", "debug", "info", "warn", "error", "fatal", "log",
			"print", "println", "printf", "warning", "severe", "fine", "finer", "finest",
		},
		LevelAliases: map[string]string{
			"warning": "warn",
			"severe":  "error",
			"fine":    "debug",
			"finer":   "trace",
			"finest":  "trace",
			"config":  "info",
			"all":     "trace",
		},
		FormatCalls: []FormatCall{
			{Receiver: "String", Method: "format", Style: StylePrintf},
			{Receiver: "MessageFormat", Method: "format", Style: StyleMessage},
		},
		BuilderTypes: []string{"StringBuilder", "StringBuffer"},
		MaxVariants:  DefaultMaxVariants,
	}
}

// Option configures an Engine.
type Option func(*Options)

// WithLoggerNames adds receiver names recognized as loggers.
func WithLoggerNames(names ...string) Option {
	return func(o *Options) {
		o.LoggerNames = appendUnique(o.LoggerNames, names...)
	}
}

// WithLoggingMethods adds method names recognized as logging calls.
func WithLoggingMethods(methods ...string) Option {
	return func(o *Options) {
		o.LoggingMethods = appendUnique(o.LoggingMethods, methods...)
	}
}

// WithFormatCalls adds recognized formatting calls.
func WithFormatCalls(calls ...FormatCall) Option {
	return func(o *Options) {
		o.FormatCalls = append(o.FormatCalls, calls...)
	}
}

// WithMaxVariants bounds the variants one expression may produce.
func WithMaxVariants(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxVariants = n
		}
	}
}

// WithOptions replaces the whole option set.
func WithOptions(opts Options) Option {
	return func(o *Options) {
		*o = opts
		if o.MaxVariants <= 0 {
			o.MaxVariants = DefaultMaxVariants
		}
	}
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		if v == "" || contains(dst, v) {
			continue
		}
		dst = append(dst, v)
	}
	return dst
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func (o *Options) isLogger(receiver string) bool {
	receiver = strings.TrimPrefix(receiver, "this.")
	return contains(o.LoggerNames, receiver)
}

func (o *Options) isLoggingMethod(name string) bool {
	return contains(o.LoggingMethods, name)
}

func (o *Options) formatCall(receiver, method string) (FormatCall, bool) {
	for _, fc := range o.FormatCalls {
		if fc.Method == method && (fc.Receiver == receiver || strings.HasSuffix(receiver, "."+fc.Receiver)) {
			return fc, true
		}
	}
	return FormatCall{}, false
}

func (o *Options) isBuilderType(name string) bool {
	for _, b := range o.BuilderTypes {
		if name == b || strings.HasSuffix(name, "."+b) {
			return true
		}
	}
	return false
}
