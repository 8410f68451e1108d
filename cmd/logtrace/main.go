// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command logtrace extracts log message templates from Java sources and
// traces runtime log lines back to the statements that wrote them.
//
// Usage:
//
//	logtrace extract --src ./service --out templates.ndjson
//	logtrace match --templates templates.ndjson --in app.log --out matches.csv
//	logtrace match --templates templates.ndjson --in app.log --format summary
//	logtrace analyze --templates templates.ndjson --stats
//	logtrace serve --templates templates.ndjson --port 8090
//
// Example requests against serve:
//
//	curl http://localhost:8090/v1/logtrace/health
//
//	curl -X POST http://localhost:8090/v1/logtrace/match \
//	  -H "Content-Type: application/json" \
//	  -d '{"line": "2024-01-02T10:00:00Z ERROR [main] app.Orders - Order 7 failed"}'
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
