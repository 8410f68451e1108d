// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package matcher

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	matchDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "logtrace",
		Subsystem: "matcher",
		Name:      "match_duration_seconds",
		Help:      "Time to match one log line against the trie",
		Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
	})

	linesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "logtrace",
		Subsystem: "matcher",
		Name:      "lines_total",
		Help:      "Log lines matched, by outcome",
	}, []string{"result"})
)

func recordMatch(d time.Duration, matched bool) {
	matchDurationSeconds.Observe(d.Seconds())
	result := "unmatched"
	if matched {
		result = "matched"
	}
	linesTotal.WithLabelValues(result).Inc()
}
