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
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/AleutianAI/logtrace/services/logtrace/matcher"
	"github.com/AleutianAI/logtrace/services/logtrace/server"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		path  string
		port  int
		watch bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve log-line matching over HTTP",
		Long: `Load a templates file and answer matching requests on /v1/logtrace.
With --watch the file is reloaded whenever it changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
			}
			if cmd.Flags().Changed("watch") {
				a.cfg.Server.Watch = watch
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}

			if a.verbose {
				gin.SetMode(gin.DebugMode)
			} else {
				gin.SetMode(gin.ReleaseMode)
			}
			otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
				propagation.TraceContext{},
				propagation.Baggage{},
			))

			index := server.NewIndex(path, a.logger, matcher.WithMaxWildcardSpan(a.cfg.Matching.MaxWildcardSpan))
			if err := index.Load(cmd.Context()); err != nil {
				return err
			}
			handlers := server.NewHandlers(index, server.Options{
				Threshold:        a.cfg.Matching.Threshold,
				BestOnly:         a.cfg.Matching.BestOnly,
				MaxBatchLines:    a.cfg.Server.MaxBatchLines,
				UnmatchedSamples: a.cfg.Matching.UnmatchedSamples,
			}, a.logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			addr := fmt.Sprintf(":%d", a.cfg.Server.Port)
			return server.Serve(ctx, addr, index, handlers, a.cfg.Server.Watch, a.logger)
		},
	}
	cmd.Flags().StringVar(&path, "templates", "", "NDJSON templates file")
	cmd.Flags().IntVar(&port, "port", 8090, "port to listen on")
	cmd.Flags().BoolVar(&watch, "watch", true, "reload the templates file when it changes")
	_ = cmd.MarkFlagRequired("templates")
	return cmd
}
