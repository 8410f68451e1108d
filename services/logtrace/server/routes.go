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
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const requestIDKey = "request_id"

// RegisterRoutes registers the /v1/logtrace/* endpoints.
//
// Endpoints:
//
//	POST /v1/logtrace/match - Match one log line
//	POST /v1/logtrace/match/batch - Match many log lines
//	GET  /v1/logtrace/templates/stats - Describe the loaded templates
//	GET  /v1/logtrace/health - Health check
//
// Example:
//
//	v1 := router.Group("/v1")
//	server.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	lt := rg.Group("/logtrace")
	{
		lt.POST("/match", handlers.HandleMatch)
		lt.POST("/match/batch", handlers.HandleMatchBatch)
		lt.GET("/templates/stats", handlers.HandleTemplateStats)
		lt.GET("/health", handlers.HandleHealth)
	}
}

// RequestID echoes or assigns the X-Request-ID header.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := getOrCreateRequestID(c)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// NewRouter builds the engine with recovery, tracing, request ids, the
// logtrace routes and /metrics.
func NewRouter(handlers *Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("logtrace"))
	router.Use(RequestID())

	RegisterRoutes(router.Group("/v1"), handlers)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return router
}
