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
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/logtrace/services/logtrace/config"
)

// app is the state shared by all subcommands, filled in before any of
// them runs.
type app struct {
	configPath string
	verbose    bool
	trace      bool

	cfg    *config.Config
	logger *slog.Logger

	shutdownTracing func(context.Context) error
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "logtrace",
		Short: "Extract Java log templates and match log lines to their source",
		Long: `logtrace statically analyzes Java sources to find every logging call,
reconstructs the message each call can produce as a template, and matches
runtime log lines back to the file and line that emitted them.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if a.shutdownTracing == nil {
				return nil
			}
			return a.shutdownTracing(cmd.Context())
		},
	}
	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML config merged over the built-in defaults")
	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVar(&a.trace, "trace", false, "print OpenTelemetry spans to stderr")

	cmd.AddCommand(
		newExtractCmd(a),
		newMatchCmd(a),
		newAnalyzeCmd(a),
		newServeCmd(a),
	)
	return cmd
}

// init sets up logging and optional tracing on stderr and loads the
// configuration.
func (a *app) init(cmd *cobra.Command) error {
	level := slog.LevelInfo
	if a.verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	slog.SetDefault(a.logger)

	if a.trace {
		shutdown, err := setupTracing(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		a.shutdownTracing = shutdown
	}

	cfg, err := config.LoadFile(cmd.Context(), a.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	a.cfg = cfg
	return nil
}
