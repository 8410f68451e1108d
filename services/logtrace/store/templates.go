// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists templates and match results.
//
// Templates are stored as newline-delimited JSON, one record per line.
// Readers skip malformed lines with a warning instead of failing the file.
package store

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/AleutianAI/logtrace/services/logtrace/template"
)

// maxRecordSize bounds a single NDJSON line.
const maxRecordSize = 4 * 1024 * 1024

// ErrInvalidRecord is wrapped by record validation failures.
var ErrInvalidRecord = errors.New("invalid template record")

// WriteTemplates writes one JSON object per template.
func WriteTemplates(w io.Writer, templates []template.LogTemplate) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	for i := range templates {
		if err := enc.Encode(&templates[i]); err != nil {
			return fmt.Errorf("encoding template %s: %w", templates[i].ID, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flushing templates: %w", err)
	}
	return nil
}

// WriteTemplatesFile writes templates to path atomically.
//
// The records go to a temporary file in the same directory which is then
// renamed over path, so readers never observe a partial corpus.
func WriteTemplatesFile(path string, templates []template.LogTemplate) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".templates-*.ndjson")
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := WriteTemplates(tmp, templates); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temporary file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// ReadTemplates decodes NDJSON template records.
//
// Description:
//
//	Blank lines are ignored. Lines that are not valid JSON or fail record
//	validation are skipped and logged at warn level with their line number.
//	Only an I/O failure of r is returned as an error.
//
// Inputs:
//
//	r - The NDJSON stream.
//	logger - Receives skip warnings. nil uses slog.Default().
//
// Outputs:
//
//	[]template.LogTemplate - Valid records in stream order.
//	int - Number of skipped lines.
//	error - Non-nil only when reading fails.
func ReadTemplates(r io.Reader, logger *slog.Logger) ([]template.LogTemplate, int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxRecordSize)

	var out []template.LogTemplate
	skipped := 0
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		t, err := decodeTemplate(line)
		if err != nil {
			skipped++
			logger.Warn("skipping malformed template record",
				slog.Int("line", lineNo),
				slog.String("error", err.Error()))
			continue
		}
		out = append(out, t)
	}
	if err := scanner.Err(); err != nil {
		return out, skipped, fmt.Errorf("reading templates at line %d: %w", lineNo+1, err)
	}
	return out, skipped, nil
}

// ReadTemplatesFile reads the NDJSON template file at path.
func ReadTemplatesFile(path string, logger *slog.Logger) ([]template.LogTemplate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening templates: %w", err)
	}
	defer f.Close()

	templates, skipped, err := ReadTemplates(f, logger)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("template file had malformed records",
			slog.String("path", path),
			slog.Int("skipped", skipped),
			slog.Int("loaded", len(templates)))
	}
	return templates, nil
}

func decodeTemplate(line []byte) (template.LogTemplate, error) {
	var t template.LogTemplate
	if err := json.Unmarshal(line, &t); err != nil {
		return t, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if err := validateTemplate(&t); err != nil {
		return t, err
	}
	return t, nil
}

func validateTemplate(t *template.LogTemplate) error {
	switch {
	case t.ID == "":
		return fmt.Errorf("%w: missing template_id", ErrInvalidRecord)
	case t.Pattern == "":
		return fmt.Errorf("%w: missing pattern", ErrInvalidRecord)
	case t.Location.FilePath == "":
		return fmt.Errorf("%w: missing location.file_path", ErrInvalidRecord)
	case t.StaticTokenCount < 0 || t.BranchVariant < 0:
		return fmt.Errorf("%w: negative count", ErrInvalidRecord)
	case !isTemplateID(t.ID):
		return fmt.Errorf("%w: template_id %q is not 16 hex characters", ErrInvalidRecord, t.ID)
	case t.StaticTokenCount != template.CountLiteralTokens(t.Pattern):
		return fmt.Errorf("%w: static_token_count %d does not match pattern (%d)",
			ErrInvalidRecord, t.StaticTokenCount, template.CountLiteralTokens(t.Pattern))
	}
	if t.Level == "" {
		t.Level = template.LevelUnknown
	}
	return nil
}

// isTemplateID reports whether id has the form template.ID produces.
func isTemplateID(id string) bool {
	if len(id) != 16 {
		return false
	}
	for _, c := range id {
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f') {
			return false
		}
	}
	return true
}
