// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/logtrace/services/logtrace/store"
)

const orderService = `package com.shop;

public class OrderService {
  private static final Logger log = LoggerFactory.getLogger(OrderService.class);

  public OrderService() {
    log.debug("Service created");
  }

  void place(String id, int qty) {
    log.info("Placing order {} qty {}", id, qty);
    if (qty > 100) {
      log.warn("Bulk order " + id);
    }
    log.error(String.format("Order %s failed", id));
  }
}
`

const appLog = `2024-01-02T10:00:00Z INFO [main] com.shop.OrderService - Placing order A-1 qty 2
2024-01-02T10:00:01Z ERROR [main] com.shop.OrderService - Order A-1 failed
2024-01-02T10:00:02Z INFO [main] com.shop.OrderService - Something else entirely
`

// run executes the CLI with args and returns its standard output.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	err := cmd.Execute()
	return out.String(), err
}

// setupRepo writes a small source tree and a log file.
func setupRepo(t *testing.T) (dir string) {
	t.Helper()
	dir = t.TempDir()
	src := filepath.Join(dir, "src", "com", "shop")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "OrderService.java"), []byte(orderService), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.log"), []byte(appLog), 0o644))
	return dir
}

func extract(t *testing.T, dir string) string {
	t.Helper()
	out := filepath.Join(dir, "templates.ndjson")
	stdout, err := run(t, "extract", "--src", filepath.Join(dir, "src"), "--out", out, "--no-cache")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Extracted 4 templates from 1 files")
	assert.Contains(t, stdout, "Unique patterns: 4")
	return out
}

func TestExtract(t *testing.T) {
	dir := setupRepo(t)
	out := extract(t, dir)

	templates, err := store.ReadTemplatesFile(out, nil)
	require.NoError(t, err)
	require.Len(t, templates, 4)
	assert.Equal(t, "Service created", templates[0].Pattern)
	assert.Equal(t, "Placing order <*> qty <*>", templates[1].Pattern)
	assert.Equal(t, "Bulk order <*>", templates[2].Pattern)
	assert.Equal(t, "Order <*> failed", templates[3].Pattern)
}

func TestExtract_Cache(t *testing.T) {
	dir := setupRepo(t)
	cacheDir := filepath.Join(dir, "cache")
	args := []string{"extract", "--src", filepath.Join(dir, "src"), "--out", filepath.Join(dir, "t.ndjson"), "--cache-dir", cacheDir}

	stdout, err := run(t, args...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "(0 cached, 0 failed)")

	stdout, err = run(t, args...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "(1 cached, 0 failed)")
}

func TestExtract_MissingFlags(t *testing.T) {
	_, err := run(t, "extract", "--src", ".")
	assert.Error(t, err)
}

func TestMatch_JSONL(t *testing.T) {
	dir := setupRepo(t)
	templates := extract(t, dir)
	out := filepath.Join(dir, "matches.jsonl")

	_, err := run(t, "match", "--templates", templates, "--in", filepath.Join(dir, "app.log"),
		"--out", out, "--format", "jsonl", "--best-only")
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], `"pattern":"Placing order <*> qty <*>"`)
	assert.Contains(t, lines[1], `"pattern":"Order <*> failed"`)
	assert.Contains(t, lines[2], `"matches":[]`)
}

func TestMatch_SummaryToStdout(t *testing.T) {
	dir := setupRepo(t)
	templates := extract(t, dir)

	stdout, err := run(t, "match", "--templates", templates, "--in", filepath.Join(dir, "app.log"), "--format", "summary")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Total lines processed: 3")
	assert.Contains(t, stdout, "Match rate: 66.7%")
	assert.Contains(t, stdout, "Something else entirely")
}

func TestMatch_LevelFilterCSV(t *testing.T) {
	dir := setupRepo(t)
	templates := extract(t, dir)

	stdout, err := run(t, "match", "--templates", templates, "--in", filepath.Join(dir, "app.log"), "--level-filter", "error")
	require.NoError(t, err)
	rows := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, rows, 2)
	assert.True(t, strings.HasPrefix(rows[0], "line_number,"))
	assert.True(t, strings.HasPrefix(rows[1], "2,"))
}

func TestMatch_Errors(t *testing.T) {
	dir := setupRepo(t)
	templates := extract(t, dir)
	logFile := filepath.Join(dir, "app.log")

	_, err := run(t, "match", "--templates", templates, "--in", logFile, "--threshold", "1.5")
	assert.ErrorContains(t, err, "threshold")

	_, err = run(t, "match", "--templates", templates, "--in", logFile, "--format", "xml")
	assert.ErrorContains(t, err, "unknown output format")

	empty := filepath.Join(dir, "empty.ndjson")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, err = run(t, "match", "--templates", empty, "--in", logFile)
	assert.ErrorContains(t, err, "no templates loaded")
}

func TestAnalyze(t *testing.T) {
	dir := setupRepo(t)
	templates := extract(t, dir)

	stdout, err := run(t, "analyze", "--templates", templates)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Total templates: 4")
	assert.Contains(t, stdout, "Unique files: 1")
	assert.NotContains(t, stdout, "Top patterns")

	stdout, err = run(t, "analyze", "--templates", templates, "--stats")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Complexity (literal tokens)")
	assert.Contains(t, stdout, "Placing order <*> qty <*>")
	assert.Contains(t, stdout, "OrderService.java")
}

func TestConfigFlag(t *testing.T) {
	dir := setupRepo(t)
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("matching:\n  threshold: 3\n"), 0o644))

	_, err := run(t, "--config", bad, "analyze", "--templates", filepath.Join(dir, "x.ndjson"))
	assert.ErrorContains(t, err, "loading config")
}

func TestTraceFlag(t *testing.T) {
	dir := setupRepo(t)
	templates := extract(t, dir)

	var stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--trace", "analyze", "--templates", templates})
	cmd.SetOut(io.Discard)
	cmd.SetErr(&stderr)
	require.NoError(t, cmd.Execute())
	assert.Contains(t, stderr.String(), `"Name":"config.Load"`)
}
