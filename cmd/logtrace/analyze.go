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
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/logtrace/services/logtrace/store"
	"github.com/AleutianAI/logtrace/services/logtrace/template"
)

const maxPatternWidth = 60

func newAnalyzeCmd(a *app) *cobra.Command {
	var (
		path     string
		detailed bool
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Describe an extracted templates file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			templates, err := store.ReadTemplatesFile(path, a.logger)
			if err != nil {
				return err
			}
			writeAnalysis(cmd.OutOrStdout(), store.ComputeStats(templates), detailed)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "templates", "", "NDJSON templates file")
	cmd.Flags().BoolVar(&detailed, "stats", false, "include complexity and top pattern and file rankings")
	_ = cmd.MarkFlagRequired("templates")
	return cmd
}

func writeAnalysis(w io.Writer, s store.TemplateStats, detailed bool) {
	fmt.Fprintf(w, "Total templates: %d\n", s.Total)
	fmt.Fprintf(w, "Unique files: %d\n", s.UniqueFiles)
	fmt.Fprintf(w, "Unique patterns: %d\n", s.UniquePatterns)
	if s.Total == 0 {
		return
	}

	fmt.Fprintln(w, "\nLevel distribution:")
	table := newTable(w, []string{"Level", "Templates", "Share"})
	for _, l := range template.AllLevels {
		n, ok := s.LevelDistribution[l.String()]
		if !ok {
			continue
		}
		share := float64(n) / float64(s.Total) * 100
		table.Append([]string{l.String(), strconv.Itoa(n), fmt.Sprintf("%.1f%%", share)})
	}
	table.Render()

	if !detailed {
		return
	}

	fmt.Fprintf(w, "\nComplexity (literal tokens): avg %.2f, min %d, max %d\n",
		s.AvgComplexity, s.MinComplexity, s.MaxComplexity)

	fmt.Fprintln(w, "\nTop patterns:")
	table = newTable(w, []string{"#", "Count", "Pattern"})
	for i, r := range s.TopPatterns {
		table.Append([]string{strconv.Itoa(i + 1), strconv.Itoa(r.Count), shorten(r.Value, maxPatternWidth)})
	}
	table.Render()

	fmt.Fprintln(w, "\nTop files:")
	table = newTable(w, []string{"#", "Templates", "File"})
	for i, r := range s.TopFiles {
		table.Append([]string{strconv.Itoa(i + 1), strconv.Itoa(r.Count), r.Value})
	}
	table.Render()
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	return table
}

func shorten(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
