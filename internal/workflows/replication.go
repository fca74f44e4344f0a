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

// ReplicationInput parameterizes one replication-health workflow run.
type ReplicationInput struct {
	ProbeCount int // default 10, max 20
}

const (
	replicationDefaultProbeCount = 10
	replicationMaxProbeCount     = 20
)

// RunReplicationHealth reads master status once (the proxy routes it to
// the primary), probes replicas behind the round-robin load balancer
// via run_readonly_probe, and evaluates each replica's thread state,
// lag, last errors, and GTID consistency.
func RunReplicationHealth(ctx context.Context, deps Deps, in ReplicationInput, rootInvocationID string) models.AgentReport {
	in = normalizeReplicationInput(in)

	catalog := registryCatalog(deps.Runtime, "run_readonly", "run_readonly_probe", "server_capabilities")

	systemPrompt := fmt.Sprintf(`You are the replication-health diagnostic workflow for a MariaDB/MySQL
topology reached through a connection-round-robin proxy.

Steps:
1. Run "SHOW MASTER STATUS" (or the MariaDB/MySQL 8.4+ equivalent
   "SHOW BINARY LOG STATUS") once via run_readonly — a single execution
   is sufficient since the proxy routes it to the primary.
2. Discover replicas by calling run_readonly_probe with
   "SHOW REPLICA STATUS" (falling back to "SHOW SLAVE STATUS" on older
   servers) and probe_count=%d. The result is already deduplicated by
   replica identity; do not assume a fixed replica count.
3. For each distinct replica returned, evaluate: IO thread running, SQL
   thread running, seconds-behind-source, last IO/SQL error codes and
   messages, and GTID position consistency against the master status
   from step 1 where GTID mode is enabled.
4. When available, run "SHOW ALL SLAVES HOSTS" (or "SHOW SLAVE HOSTS")
   via run_readonly to sketch the replication topology.
5. Classify each replica healthy / degraded / broken and produce a
   summary with recommended next checks. When you are done reasoning
   and ready to answer, respond with plain text instead of a tool call.`, in.ProbeCount)

	text, state, derr, failedTool := runLoop(ctx, deps, "replication-health", systemPrompt, catalog, defaultTurnBudget, rootInvocationID)
	return finalizeReport("replication-health", text, state, derr, failedTool)
}

func normalizeReplicationInput(in ReplicationInput) ReplicationInput {
	if in.ProbeCount <= 0 {
		in.ProbeCount = replicationDefaultProbeCount
	}
	if in.ProbeCount > replicationMaxProbeCount {
		in.ProbeCount = replicationMaxProbeCount
	}
	return in
}
