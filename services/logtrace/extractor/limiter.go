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
	"sort"

	"github.com/AleutianAI/logtrace/services/logtrace/template"
)

// LimitVariants bounds the templates kept per source location.
//
// Description:
//
//	Templates are grouped by location key. Within a group they are stably
//	sorted by literal token count, descending, and the first max are kept.
//	Groups are emitted in order of first appearance. Branch variant
//	indices are left as assigned.
//
// Inputs:
//
//	templates - Templates in discovery order.
//	max - Per-location bound. Values below 1 disable the limit.
//
// Outputs:
//
//	[]template.LogTemplate - The kept templates. The input is not modified.
func LimitVariants(templates []template.LogTemplate, max int) []template.LogTemplate {
	if len(templates) == 0 {
		return nil
	}
	var order []string
	groups := make(map[string][]template.LogTemplate)
	for _, t := range templates {
		k := t.Location.Key()
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], t)
	}

	out := make([]template.LogTemplate, 0, len(templates))
	for _, k := range order {
		g := groups[k]
		if max > 0 && len(g) > max {
			sort.SliceStable(g, func(i, j int) bool {
				return g[i].StaticTokenCount > g[j].StaticTokenCount
			})
			g = g[:max]
		}
		out = append(out, g...)
	}
	return out
}
