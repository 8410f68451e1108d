// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("logtrace.ast")

var (
	// parseDurationSeconds measures tree-sitter parse latency.
	// Labels: language, status (ok, error)
	parseDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "logtrace",
		Subsystem: "ast",
		Name:      "parse_duration_seconds",
		Help:      "Time spent parsing source files",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"language", "status"})
)

func startParseSpan(ctx context.Context, language, filePath string, size int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "ast.Parse",
		trace.WithAttributes(
			attribute.String("parse.language", language),
			attribute.String("parse.file", filePath),
			attribute.Int("parse.size_bytes", size),
		),
	)
}

func recordParseMetrics(language string, d time.Duration, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	parseDurationSeconds.WithLabelValues(language, status).Observe(d.Seconds())
}
