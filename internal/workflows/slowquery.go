// Copyright © 2025 DBDiag Agents Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package workflows

import (
	"context"
	"fmt"

	"github.com/skysql-oss/dbdiag-agents/internal/models"
	"github.com/skysql-oss/dbdiag-agents/internal/tools"
)

// SlowQueryInput parameterizes one slow-query workflow run.
type SlowQueryInput struct {
	WindowHours int    // default 1, max 168
	MaxPatterns int    // default 8, max 30
	SlowLogPath string // optional; empty means discover table-vs-file
}

const (
	slowQueryDefaultWindowHours = 1
	slowQueryMaxWindowHours     = 168
	slowQueryDefaultMaxPatterns = 8
	slowQueryMaxPatterns        = 30
)

// RunSlowQuery discovers how slow-query logging is configured, ranks
// digests by impact, and for the top patterns pulls EXPLAIN plans and
// per-digest metrics to classify the bottleneck and suggest fixes.
func RunSlowQuery(ctx context.Context, deps Deps, in SlowQueryInput, rootInvocationID string) models.AgentReport {
	in = normalizeSlowQueryInput(in)

	registry := deps.Runtime
	catalog := registryCatalog(registry, "run_readonly", "server_capabilities")

	systemPrompt := fmt.Sprintf(`You are the slow-query diagnostic workflow for a MariaDB/MySQL server.
Window: last %d hour(s). Analyze up to %d slow-query digests.

Steps:
1. Check whether slow query logging writes to a table or a file via
   server variables (log_output, slow_query_log, slow_query_log_file),
   using run_readonly against information_schema/performance_schema or
   SHOW VARIABLES as appropriate.
2. If logging to table, aggregate digests from
   mysql.slow_log or performance_schema.events_statements_summary_by_digest:
   count, total duration, average duration, first/last seen, one sample
   SQL text per digest. Rank by total duration descending.
3. For each of the top digests (up to the pattern cap), run
   EXPLAIN FORMAT=JSON for the sample SQL (never re-execute the original
   statement verbatim with side effects; only SELECT-shaped statements
   may be explained directly). Note tables scanned, indexes used or
   missing, and join types.
4. When performance_schema is enabled, pull per-digest wait/lock/IO time
   breakdowns to classify each pattern as CPU-bound, I/O-bound, or
   lock-bound.
5. For any digest containing a LIKE '%%...%%' shape where a FULLTEXT
   index exists on the scanned column, suggest a MATCH...AGAINST
   rewrite; never suggest it when no applicable fulltext index exists.
6. Produce a ranked list of patterns with a one-paragraph recommendation
   each. When you are done reasoning and ready to answer, respond with
   plain text instead of a tool call.`, in.WindowHours, in.MaxPatterns)

	if in.SlowLogPath != "" {
		systemPrompt += fmt.Sprintf("\n\nA slow-query log file is available at %q; tail_local_log may be used to read it if table-based logging is unavailable.", in.SlowLogPath)
		catalog = registryCatalog(registry, "run_readonly", "server_capabilities", "tail_local_log")
	}

	text, state, derr, failedTool := runLoop(ctx, deps, "slow-query", systemPrompt, catalog, defaultTurnBudget, rootInvocationID)
	return finalizeReport("slow-query", text, state, derr, failedTool)
}

func normalizeSlowQueryInput(in SlowQueryInput) SlowQueryInput {
	if in.WindowHours <= 0 {
		in.WindowHours = slowQueryDefaultWindowHours
	}
	if in.WindowHours > slowQueryMaxWindowHours {
		in.WindowHours = slowQueryMaxWindowHours
	}
	if in.MaxPatterns <= 0 {
		in.MaxPatterns = slowQueryDefaultMaxPatterns
	}
	if in.MaxPatterns > slowQueryMaxPatterns {
		in.MaxPatterns = slowQueryMaxPatterns
	}
	return in
}

// registryCatalog looks up tool descriptors by name from a runtime's
// registry, silently skipping names the runtime doesn't expose (keeps
// workflows usable against a reduced test registry).
func registryCatalog(rt *tools.Runtime, names ...string) []tools.Descriptor {
	out := make([]tools.Descriptor, 0, len(names))
	for _, name := range names {
		if d, ok := rt.Lookup(name); ok {
			out = append(out, d)
		}
	}
	return out
}
