// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/logtrace/services/logtrace/logline"
	"github.com/AleutianAI/logtrace/services/logtrace/store"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// DefaultMaxBatchLines bounds one batch request.
const DefaultMaxBatchLines = 10000

// =============================================================================
// Request / Response Types
// =============================================================================

// MatchRequest is the body of POST /v1/logtrace/match.
type MatchRequest struct {
	// Line is one raw log line.
	Line string `json:"line" binding:"required"`

	// Threshold overrides the server default when set.
	Threshold *float64 `json:"threshold,omitempty"`

	// BestOnly overrides the server default when set.
	BestOnly *bool `json:"best_only,omitempty"`
}

// MatchResponse is the result for one line.
type MatchResponse struct {
	RequestID  string             `json:"request_id"`
	Generation int                `json:"generation"`
	Result     logline.LineRecord `json:"result"`
}

// BatchRequest is the body of POST /v1/logtrace/match/batch.
type BatchRequest struct {
	Lines     []string `json:"lines" binding:"required"`
	Threshold *float64 `json:"threshold,omitempty"`
	BestOnly  *bool    `json:"best_only,omitempty"`

	// Levels keeps only lines whose level is listed.
	Levels []string `json:"levels,omitempty"`
}

// BatchResponse holds the results of the kept lines, numbered from 1 in
// request order, and their summary.
type BatchResponse struct {
	RequestID  string               `json:"request_id"`
	Generation int                  `json:"generation"`
	Results    []logline.LineRecord `json:"results"`
	Summary    logline.Summary      `json:"summary"`
}

// StatsResponse describes the loaded template set.
type StatsResponse struct {
	Source     string              `json:"source"`
	LoadedAt   time.Time           `json:"loaded_at"`
	Generation int                 `json:"generation"`
	Stats      store.TemplateStats `json:"stats"`
}

// HealthResponse reports liveness and whether templates are loaded.
type HealthResponse struct {
	Status     string `json:"status"`
	Loaded     bool   `json:"loaded"`
	Templates  int    `json:"templates"`
	Generation int    `json:"generation"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// =============================================================================
// Handlers
// =============================================================================

// Options are the server-side matching defaults.
type Options struct {
	Threshold        float64
	BestOnly         bool
	MaxBatchLines    int
	UnmatchedSamples int
}

// Handlers serves matching requests from an Index.
//
// Thread Safety: Safe for concurrent use.
type Handlers struct {
	index  *Index
	opts   Options
	logger *slog.Logger
}

// NewHandlers creates handlers over index.
func NewHandlers(index *Index, opts Options, logger *slog.Logger) *Handlers {
	if opts.MaxBatchLines <= 0 {
		opts.MaxBatchLines = DefaultMaxBatchLines
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{index: index, opts: opts, logger: logger}
}

// HandleMatch handles POST /v1/logtrace/match.
//
// Response:
//
//	200 OK: MatchResponse
//	400 Bad Request: Invalid body, blank line or threshold
//	503 Service Unavailable: Templates not loaded
func (h *Handlers) HandleMatch(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleMatch")

	var req MatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, "match", http.StatusBadRequest, "INVALID_REQUEST", err)
		return
	}
	snap, session, ok := h.session(c, "match", req.Threshold, req.BestOnly, nil)
	if !ok {
		return
	}

	res, kept := session.MatchLine(req.Line)
	if !kept {
		h.fail(c, "match", http.StatusBadRequest, "EMPTY_LINE", errors.New("line is blank"))
		return
	}
	res.LineNumber = 1
	recordLine(res.Matched())

	logger.Debug("line matched",
		slog.Int("matches", len(res.Matches)),
		slog.Int("generation", snap.Generation),
	)
	requestsTotal.WithLabelValues("match", strconv.Itoa(http.StatusOK)).Inc()
	c.JSON(http.StatusOK, MatchResponse{
		RequestID:  requestID,
		Generation: snap.Generation,
		Result:     logline.NewLineRecord(res),
	})
}

// HandleMatchBatch handles POST /v1/logtrace/match/batch.
//
// Description:
//
//	Blank lines and lines removed by the level filter keep their number but
//	produce no result, as in file matching.
//
// Response:
//
//	200 OK: BatchResponse
//	400 Bad Request: Invalid body or threshold
//	413 Request Entity Too Large: More lines than the server accepts
//	503 Service Unavailable: Templates not loaded
func (h *Handlers) HandleMatchBatch(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleMatchBatch")

	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, "batch", http.StatusBadRequest, "INVALID_REQUEST", err)
		return
	}
	if len(req.Lines) > h.opts.MaxBatchLines {
		h.fail(c, "batch", http.StatusRequestEntityTooLarge, "BATCH_TOO_LARGE",
			fmt.Errorf("batch has %d lines, limit is %d", len(req.Lines), h.opts.MaxBatchLines))
		return
	}
	snap, session, ok := h.session(c, "batch", req.Threshold, req.BestOnly, req.Levels)
	if !ok {
		return
	}

	report := logline.NewReport(h.opts.UnmatchedSamples)
	results := make([]logline.LineRecord, 0, len(req.Lines))
	for n, raw := range req.Lines {
		res, kept := session.MatchLine(raw)
		if !kept {
			continue
		}
		res.LineNumber = n + 1
		report.Add(res)
		recordLine(res.Matched())
		results = append(results, logline.NewLineRecord(res))
	}

	logger.Info("batch matched",
		slog.Int("lines", report.TotalLines),
		slog.Int("matched", report.MatchedLines),
		slog.Int("generation", snap.Generation),
	)
	requestsTotal.WithLabelValues("batch", strconv.Itoa(http.StatusOK)).Inc()
	c.JSON(http.StatusOK, BatchResponse{
		RequestID:  requestID,
		Generation: snap.Generation,
		Results:    results,
		Summary:    report.Summary(),
	})
}

// HandleTemplateStats handles GET /v1/logtrace/templates/stats.
func (h *Handlers) HandleTemplateStats(c *gin.Context) {
	snap := h.index.Current()
	if snap == nil {
		h.fail(c, "stats", http.StatusServiceUnavailable, "NOT_LOADED", ErrNotLoaded)
		return
	}
	requestsTotal.WithLabelValues("stats", strconv.Itoa(http.StatusOK)).Inc()
	c.JSON(http.StatusOK, StatsResponse{
		Source:     snap.Source,
		LoadedAt:   snap.LoadedAt,
		Generation: snap.Generation,
		Stats:      snap.Stats,
	})
}

// HandleHealth handles GET /v1/logtrace/health. It answers 200 even before
// templates are loaded; Loaded tells the two apart.
func (h *Handlers) HandleHealth(c *gin.Context) {
	resp := HealthResponse{Status: "healthy"}
	if snap := h.index.Current(); snap != nil {
		resp.Loaded = true
		resp.Templates = snap.Matcher.Size()
		resp.Generation = snap.Generation
	}
	c.JSON(http.StatusOK, resp)
}

// session builds a matching session over the current snapshot, applying
// request overrides. It writes the error reply itself when it fails.
func (h *Handlers) session(c *gin.Context, endpoint string, threshold *float64, bestOnly *bool, levels []string) (*Snapshot, *logline.Session, bool) {
	snap := h.index.Current()
	if snap == nil {
		h.fail(c, endpoint, http.StatusServiceUnavailable, "NOT_LOADED", ErrNotLoaded)
		return nil, nil, false
	}
	opts := logline.Options{
		Threshold:        h.opts.Threshold,
		BestOnly:         h.opts.BestOnly,
		Levels:           levels,
		UnmatchedSamples: h.opts.UnmatchedSamples,
	}
	if threshold != nil {
		opts.Threshold = *threshold
	}
	if bestOnly != nil {
		opts.BestOnly = *bestOnly
	}
	session, err := logline.NewSession(snap.Matcher, opts, h.logger)
	if err != nil {
		h.fail(c, endpoint, http.StatusBadRequest, "INVALID_THRESHOLD", err)
		return nil, nil, false
	}
	return snap, session, true
}

func (h *Handlers) fail(c *gin.Context, endpoint string, status int, code string, err error) {
	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	c.JSON(status, ErrorResponse{
		Error:     err.Error(),
		Code:      code,
		RequestID: getOrCreateRequestID(c),
	})
}

// getOrCreateRequestID returns the request id set by RequestID, the
// caller's header, or a fresh UUID.
func getOrCreateRequestID(c *gin.Context) string {
	if id := c.GetString(requestIDKey); id != "" {
		return id
	}
	id := c.GetHeader(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(requestIDKey, id)
	return id
}
