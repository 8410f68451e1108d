// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package slicer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var sliceResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "logtrace",
	Subsystem: "slicer",
	Name:      "results_total",
	Help:      "Slice results by the fallback that produced them (none when definitions were found)",
}, []string{"fallback"})

func recordFallback(f Fallback) {
	sliceResultsTotal.WithLabelValues(f.String()).Inc()
}
