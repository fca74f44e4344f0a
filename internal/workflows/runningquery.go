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
)

// RunningQueryInput parameterizes one running-query workflow run.
type RunningQueryInput struct {
	MinSeconds      float64 // default 1.0
	IncludeSleeping bool
	MaxQueries      int // default 20
}

const (
	runningQueryDefaultMinSeconds = 1.0
	runningQueryDefaultMax        = 20
)

// RunRunningQuery snapshots the current session list, selects
// non-sleeping sessions past the elapsed-time threshold, and for each
// identifies lock-wait relationships and blockers.
func RunRunningQuery(ctx context.Context, deps Deps, in RunningQueryInput, rootInvocationID string) models.AgentReport {
	in = normalizeRunningQueryInput(in)

	catalog := registryCatalog(deps.Runtime, "run_readonly", "server_capabilities")

	sleepClause := "excluding sessions in the Sleep command"
	if in.IncludeSleeping {
		sleepClause = "including sessions in the Sleep command"
	}

	systemPrompt := fmt.Sprintf(`You are the running-query diagnostic workflow for a MariaDB/MySQL server.
Minimum elapsed time of interest: %.1f second(s), %s. Analyze at most %d sessions.

Steps:
1. Snapshot the current session list via information_schema.processlist
   (or performance_schema.threads when available) using run_readonly.
2. Select sessions whose Time/elapsed >= the threshold, respecting the
   sleeping-sessions flag above.
3. For each selected session, query lock-wait relationships via
   information_schema.innodb_lock_waits / performance_schema
   data_lock_waits to find who it is blocked by and who it blocks.
   A session is a blocker if any other session waits on a lock it holds.
4. When useful, obtain an EXPLAIN plan for a session's current statement
   by re-preparing it schema-scoped with EXPLAIN — never by re-executing
   the statement itself, since that would have side effects beyond
   read-only inspection.
5. Produce a per-session diagnosis: kill candidate, index candidate, or
   resource advice, prioritized by how long the session has blocked
   others. When you are done reasoning and ready to answer, respond with
   plain text instead of a tool call.`, in.MinSeconds, sleepClause, in.MaxQueries)

	text, state, derr, failedTool := runLoop(ctx, deps, "running-query", systemPrompt, catalog, defaultTurnBudget, rootInvocationID)
	return finalizeReport("running-query", text, state, derr, failedTool)
}

func normalizeRunningQueryInput(in RunningQueryInput) RunningQueryInput {
	if in.MinSeconds <= 0 {
		in.MinSeconds = runningQueryDefaultMinSeconds
	}
	if in.MaxQueries <= 0 {
		in.MaxQueries = runningQueryDefaultMax
	}
	return in
}
