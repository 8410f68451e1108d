// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads logtrace settings from YAML over embedded defaults.
package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/logtrace/services/logtrace/rules"
	"github.com/AleutianAI/logtrace/services/logtrace/slicer"
)

// =============================================================================
// Embedded Defaults
// =============================================================================

//go:embed defaults.yaml
var defaultConfigYAML []byte

// MaxYAMLFileSize bounds configuration files (1MB).
const MaxYAMLFileSize = 1024 * 1024

var tracer = otel.Tracer("logtrace.config")

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// =============================================================================
// Configuration Types
// =============================================================================

// Config is the complete logtrace configuration.
//
// Thread Safety: Immutable after loading; safe for concurrent use.
type Config struct {
	Rules      RulesConfig      `yaml:"rules"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Cache      CacheConfig      `yaml:"cache"`
	Matching   MatchingConfig   `yaml:"matching"`
	Server     ServerConfig     `yaml:"server"`
}

// RulesConfig holds the names the rule engine recognizes.
type RulesConfig struct {
	LoggerNames    []string           `yaml:"logger_names"`
	LoggingMethods []string           `yaml:"logging_methods"`
	LevelAliases   map[string]string  `yaml:"level_aliases"`
	FormatCalls    []rules.FormatCall `yaml:"format_calls"`
	BuilderTypes   []string           `yaml:"builder_types"`

	// MaxVariants bounds the variants one message expression may yield.
	MaxVariants int `yaml:"max_variants"`
}

// ExtractionConfig controls repository extraction.
type ExtractionConfig struct {
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`

	// Workers is the pool size; 0 means one per CPU.
	Workers int `yaml:"workers"`

	MaxBranchVariants int   `yaml:"max_branch_variants"`
	MaxFileSize       int64 `yaml:"max_file_size"`

	// SliceMode is "structured" or "sequential".
	SliceMode       string `yaml:"slice_mode"`
	MaxResolveDepth int    `yaml:"max_resolve_depth"`
}

// CacheConfig controls the incremental extraction cache.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// MatchingConfig controls log-line matching.
type MatchingConfig struct {
	// Threshold drops matches below this confidence.
	Threshold float64 `yaml:"threshold"`
	BestOnly  bool    `yaml:"best_only"`

	// MaxWildcardSpan bounds tokens bound by one placeholder; 0 is unlimited.
	MaxWildcardSpan int `yaml:"max_wildcard_span"`

	// UnmatchedSamples is how many unmatched messages a report keeps.
	UnmatchedSamples int `yaml:"unmatched_samples"`
}

// ServerConfig controls the HTTP matching service.
type ServerConfig struct {
	Port          int  `yaml:"port"`
	Watch         bool `yaml:"watch"`
	MaxBatchLines int  `yaml:"max_batch_lines"`
}

// =============================================================================
// Singleton Default Config
// =============================================================================

var (
	configMu      sync.RWMutex
	configOnce    sync.Once
	cachedConfig  *Config
	configLoadErr error
)

// GetConfig returns the embedded default configuration.
//
// Description:
//
//	Parses the embedded defaults on first call and caches the result.
//
// Thread Safety: Safe for concurrent use.
func GetConfig(ctx context.Context) (*Config, error) {
	if ctx == nil {
		return nil, fmt.Errorf("GetConfig: ctx must not be nil")
	}

	configMu.RLock()
	if cachedConfig != nil || configLoadErr != nil {
		cfg, err := cachedConfig, configLoadErr
		configMu.RUnlock()
		return cfg, err
	}
	configMu.RUnlock()

	configMu.Lock()
	defer configMu.Unlock()
	configOnce.Do(func() {
		cachedConfig, configLoadErr = Load(ctx, nil)
	})
	return cachedConfig, configLoadErr
}

// ResetConfig clears the cached default configuration for tests.
func ResetConfig() {
	configMu.Lock()
	defer configMu.Unlock()
	cachedConfig = nil
	configLoadErr = nil
	configOnce = sync.Once{}
}

// =============================================================================
// Loading
// =============================================================================

// Load parses data over the embedded defaults and validates the result.
//
// Description:
//
//	Keys absent from data keep their default values. Lists given in data
//	replace the default list; level_aliases entries are added to the
//	defaults. Empty data yields the defaults.
//
// Inputs:
//
//	ctx - Context for tracing.
//	data - YAML bytes, may be empty.
//
// Outputs:
//
//	*Config - The validated configuration.
//	error - Parse errors, or ErrInvalidConfig.
func Load(ctx context.Context, data []byte) (*Config, error) {
	_, span := tracer.Start(ctx, "config.Load")
	defer span.End()

	if len(data) > MaxYAMLFileSize {
		return nil, fmt.Errorf("config exceeds maximum size (%d > %d)", len(data), MaxYAMLFileSize)
	}

	var cfg Config
	if err := yaml.Unmarshal(defaultConfigYAML, &cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("logger_names", len(cfg.Rules.LoggerNames)),
		attribute.Int("logging_methods", len(cfg.Rules.LoggingMethods)),
		attribute.String("slice_mode", cfg.Extraction.SliceMode),
	)
	return &cfg, nil
}

// LoadFile reads and loads a YAML configuration file.
//
// An empty path yields the defaults.
func LoadFile(ctx context.Context, path string) (*Config, error) {
	if path == "" {
		return Load(ctx, nil)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if info.Size() > MaxYAMLFileSize {
		return nil, fmt.Errorf("config %s exceeds maximum size (%d > %d)", path, info.Size(), MaxYAMLFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := Load(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	slog.Debug("config loaded", slog.String("path", path))
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	if len(c.Rules.LoggerNames) == 0 {
		return invalid("rules.logger_names must not be empty")
	}
	if len(c.Rules.LoggingMethods) == 0 {
		return invalid("rules.logging_methods must not be empty")
	}
	if c.Rules.MaxVariants < 1 {
		return invalid("rules.max_variants must be positive, got %d", c.Rules.MaxVariants)
	}
	for i, fc := range c.Rules.FormatCalls {
		if fc.Receiver == "" || fc.Method == "" {
			return invalid("rules.format_calls[%d]: receiver and method are required", i)
		}
		if fc.Style != rules.StylePrintf && fc.Style != rules.StyleMessage {
			return invalid("rules.format_calls[%d]: style must be printf or message, got %q", i, fc.Style)
		}
	}

	if len(c.Extraction.Include) == 0 {
		return invalid("extraction.include must not be empty")
	}
	if c.Extraction.Workers < 0 {
		return invalid("extraction.workers must not be negative")
	}
	if c.Extraction.MaxBranchVariants < 1 {
		return invalid("extraction.max_branch_variants must be positive, got %d", c.Extraction.MaxBranchVariants)
	}
	if c.Extraction.MaxFileSize < 1 {
		return invalid("extraction.max_file_size must be positive")
	}
	if _, err := ParseSliceMode(c.Extraction.SliceMode); err != nil {
		return invalid("extraction.slice_mode: %v", err)
	}
	if c.Extraction.MaxResolveDepth < 1 {
		return invalid("extraction.max_resolve_depth must be positive")
	}

	if c.Cache.Enabled && c.Cache.Dir == "" {
		return invalid("cache.dir is required when the cache is enabled")
	}

	if c.Matching.Threshold < 0 || c.Matching.Threshold > 1 {
		return invalid("matching.threshold must be between 0.0 and 1.0, got %g", c.Matching.Threshold)
	}
	if c.Matching.MaxWildcardSpan < 0 {
		return invalid("matching.max_wildcard_span must not be negative")
	}
	if c.Matching.UnmatchedSamples < 0 {
		return invalid("matching.unmatched_samples must not be negative")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return invalid("server.port out of range: %d", c.Server.Port)
	}
	if c.Server.MaxBatchLines < 1 {
		return invalid("server.max_batch_lines must be positive")
	}
	return nil
}

// ParseSliceMode converts a slice_mode value.
func ParseSliceMode(s string) (slicer.Mode, error) {
	switch s {
	case "", "structured":
		return slicer.ModeStructured, nil
	case "sequential", "fast":
		return slicer.ModeSequential, nil
	}
	return slicer.ModeStructured, fmt.Errorf("unknown slice mode %q", s)
}

// RuleOptions converts the rules section into engine options.
func (c *Config) RuleOptions() rules.Options {
	aliases := make(map[string]string, len(c.Rules.LevelAliases))
	for k, v := range c.Rules.LevelAliases {
		aliases[k] = v
	}
	return rules.Options{
		LoggerNames:    append([]string(nil), c.Rules.LoggerNames...),
		LoggingMethods: append([]string(nil), c.Rules.LoggingMethods...),
		LevelAliases:   aliases,
		FormatCalls:    append([]rules.FormatCall(nil), c.Rules.FormatCalls...),
		BuilderTypes:   append([]string(nil), c.Rules.BuilderTypes...),
		MaxVariants:    c.Rules.MaxVariants,
	}
}

// SliceMode returns the validated slicer mode.
func (c *Config) SliceMode() slicer.Mode {
	m, _ := ParseSliceMode(c.Extraction.SliceMode)
	return m
}
