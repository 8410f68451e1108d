// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extractor

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("logtrace.extractor")

var (
	// filesTotal counts processed files.
	// Labels: status (extracted, cached, failed)
	filesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "logtrace",
		Subsystem: "extractor",
		Name:      "files_total",
		Help:      "Source files processed, by outcome",
	}, []string{"status"})

	templatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "logtrace",
		Subsystem: "extractor",
		Name:      "templates_total",
		Help:      "Templates produced after variant limiting",
	})

	repositoryDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "logtrace",
		Subsystem: "extractor",
		Name:      "repository_duration_seconds",
		Help:      "Time to extract a whole repository",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300},
	})
)

const (
	statusExtracted = "extracted"
	statusCached    = "cached"
	statusFailed    = "failed"
)

func startRepositorySpan(ctx context.Context, root string, workers int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "extractor.ExtractRepository",
		trace.WithAttributes(
			attribute.String("extract.root", root),
			attribute.Int("extract.workers", workers),
		),
	)
}

func recordFile(status string, templates int) {
	filesTotal.WithLabelValues(status).Inc()
	templatesTotal.Add(float64(templates))
}

func recordRepository(d time.Duration) {
	repositoryDurationSeconds.Observe(d.Seconds())
}
