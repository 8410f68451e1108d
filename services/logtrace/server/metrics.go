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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "logtrace",
		Subsystem: "server",
		Name:      "requests_total",
		Help:      "Matching requests by endpoint and status code",
	}, []string{"endpoint", "status"})

	linesMatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "logtrace",
		Subsystem: "server",
		Name:      "lines_total",
		Help:      "Log lines processed by outcome",
	}, []string{"outcome"})

	reloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "logtrace",
		Subsystem: "server",
		Name:      "template_reloads_total",
		Help:      "Template file loads by status",
	}, []string{"status"})

	templatesLoaded = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "logtrace",
		Subsystem: "server",
		Name:      "templates_loaded",
		Help:      "Templates in the current generation",
	})
)

func recordReload(ok bool) {
	if ok {
		reloadsTotal.WithLabelValues("success").Inc()
		return
	}
	reloadsTotal.WithLabelValues("error").Inc()
}

func recordLine(matched bool) {
	if matched {
		linesMatched.WithLabelValues("matched").Inc()
		return
	}
	linesMatched.WithLabelValues("unmatched").Inc()
}
