// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"testing"

	"github.com/AleutianAI/logtrace/services/logtrace/rules"
	"github.com/AleutianAI/logtrace/services/logtrace/slicer"
)

func TestLoad_EmbeddedDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), nil)
	if err != nil {
		t.Fatalf("Load failed on embedded YAML: %v", err)
	}

	if cfg.Extraction.MaxBranchVariants != 16 {
		t.Errorf("expected max_branch_variants = 16, got %d", cfg.Extraction.MaxBranchVariants)
	}
	if cfg.Cache.Dir != ".logtemplates_cache" {
		t.Errorf("expected cache dir .logtemplates_cache, got %q", cfg.Cache.Dir)
	}
	if !cfg.Cache.Enabled {
		t.Error("expected cache enabled by default")
	}
	if cfg.SliceMode() != slicer.ModeStructured {
		t.Errorf("expected structured slicing, got %v", cfg.SliceMode())
	}
	if cfg.Matching.Threshold != 0 {
		t.Errorf("expected threshold 0, got %g", cfg.Matching.Threshold)
	}
	for _, m := range []string{"print", "println", "printf"} {
		if !slices.Contains(cfg.Rules.LoggingMethods, m) {
			t.Errorf("expected %q among default logging_methods, got %v", m, cfg.Rules.LoggingMethods)
		}
	}
}

func TestRuleOptions_MatchEngineDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := cfg.RuleOptions()
	want := rules.DefaultOptions()
	if !reflect.DeepEqual(got, want) {
		t.Errorf("embedded rules differ from engine defaults:\n got %+v\nwant %+v", got, want)
	}
}

func TestLoad_OverridesKeepOtherDefaults(t *testing.T) {
	data := []byte(`
rules:
  logger_names: [AUDIT]
  level_aliases:
    notice: info
extraction:
  exclude: ["*/generated/*"]
  slice_mode: sequential
matching:
  threshold: 0.5
`)
	cfg, err := Load(context.Background(), data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(cfg.Rules.LoggerNames, []string{"AUDIT"}) {
		t.Errorf("lists replace defaults, got %v", cfg.Rules.LoggerNames)
	}
	if cfg.Rules.LevelAliases["notice"] != "info" || cfg.Rules.LevelAliases["severe"] != "error" {
		t.Errorf("aliases should merge, got %v", cfg.Rules.LevelAliases)
	}
	if len(cfg.Rules.LoggingMethods) == 0 {
		t.Error("logging_methods default lost")
	}
	if cfg.SliceMode() != slicer.ModeSequential {
		t.Errorf("expected sequential, got %v", cfg.SliceMode())
	}
	if cfg.Matching.Threshold != 0.5 {
		t.Errorf("expected threshold 0.5, got %g", cfg.Matching.Threshold)
	}
	if cfg.Extraction.MaxBranchVariants != 16 {
		t.Errorf("default max_branch_variants lost, got %d", cfg.Extraction.MaxBranchVariants)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"threshold above one", "matching: {threshold: 1.5}"},
		{"negative threshold", "matching: {threshold: -0.1}"},
		{"zero variants", "extraction: {max_branch_variants: 0}"},
		{"unknown slice mode", "extraction: {slice_mode: psychic}"},
		{"empty logger names", "rules: {logger_names: []}"},
		{"bad format style", "rules: {format_calls: [{receiver: Fmt, method: f, style: go}]}"},
		{"cache without dir", "cache: {enabled: true, dir: \"\"}"},
		{"port out of range", "server: {port: 70000}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(context.Background(), []byte(tt.yaml))
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}

	if _, err := Load(context.Background(), []byte("rules: [unclosed")); err == nil {
		t.Error("expected a parse error")
	}
	if _, err := Load(context.Background(), []byte(strings.Repeat("#", MaxYAMLFileSize+1))); err == nil {
		t.Error("expected a size error")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logtrace.yaml")
	if err := os.WriteFile(path, []byte("server: {port: 9999}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.Server.Port)
	}

	if _, err := LoadFile(context.Background(), filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}

	cfg, err = LoadFile(context.Background(), "")
	if err != nil || cfg.Server.Port != 8090 {
		t.Errorf("empty path should yield defaults, got %v, %v", cfg, err)
	}
}

func TestGetConfig_Cached(t *testing.T) {
	ResetConfig()
	defer ResetConfig()

	a, err := GetConfig(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := GetConfig(context.Background())
	if a != b {
		t.Error("expected the same cached instance")
	}

	ResetConfig()
	c, _ := GetConfig(context.Background())
	if c == a {
		t.Error("expected a fresh instance after reset")
	}

	if _, err := GetConfig(nil); err == nil {
		t.Error("expected an error for a nil context")
	}
}
