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

package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/skysql-oss/dbdiag-agents/internal/common/logger"
	"github.com/skysql-oss/dbdiag-agents/internal/models"
	"github.com/skysql-oss/dbdiag-agents/internal/workflows"
)

const defaultDeadline = 120 * time.Second

// Orchestrator is the top-level entry point. It owns no state beyond
// its dependencies; every call is independent, so multiple orchestrator
// invocations run concurrently.
type Orchestrator struct {
	Deps     workflows.Deps
	Deadline time.Duration // wall-clock budget per request; default 120s

	log logger.Logger
}

// New builds an Orchestrator over the shared workflow dependencies.
func New(deps workflows.Deps) *Orchestrator {
	return &Orchestrator{Deps: deps, Deadline: defaultDeadline, log: logger.NewLogger("orchestrator")}
}

// Handle routes request to one or more workflows, runs them under this
// orchestrator's wall-clock deadline, conditionally chains one more, and
// synthesizes the combined report.
func (o *Orchestrator) Handle(ctx context.Context, request string) (*models.SynthesizedReport, error) {
	deadline := o.Deadline
	if deadline <= 0 {
		deadline = defaultDeadline
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	rootInvocationID := uuid.NewString()
	strategy := RouteIntent(request)

	// The routing decision is the orchestrator's own contribution to the
	// call tree; it is deterministic, so the record carries no tokens.
	o.Deps.Telemetry.Append(models.TelemetryRecord{
		RootInvocationID: rootInvocationID,
		InvocationID:     uuid.NewString(),
		Attribution:      "self",
		RecordedAt:       time.Now(),
	})

	if strategy == StrategyClarify {
		return &models.SynthesizedReport{
			ExecutiveSummary: "I couldn't confidently match that request to a diagnostic workflow. " +
				"Could you say more specifically what you're seeing — e.g. slow queries, a query that " +
				"won't finish, replication lag, a general incident, or a specific statement to run?",
			Markdown: "## Clarification needed\n\nNo trigger matched with confidence; please narrow the request.",
		}, nil
	}

	var reports []models.AgentReport
	first := o.runStrategy(ctx, strategy, request, rootInvocationID)
	reports = append(reports, first)

	if strategy == StrategyTriage {
		if chain := chainFor(first.TopCauseCategory); chain != "" {
			o.log.Infof("chaining %s after incident-triage (top cause %s)", chain, first.TopCauseCategory)
			second := o.runStrategy(ctx, chain, request, rootInvocationID)
			reports = append(reports, second)
		}
	}

	totals := o.Deps.Telemetry.Aggregate(rootInvocationID)
	return synthesize(reports, totals), nil
}

func (o *Orchestrator) runStrategy(ctx context.Context, strategy Strategy, request, rootInvocationID string) models.AgentReport {
	switch strategy {
	case StrategySlowQuery:
		return workflows.RunSlowQuery(ctx, o.Deps, workflows.SlowQueryInput{}, rootInvocationID)
	case StrategyRunningQuery:
		return workflows.RunRunningQuery(ctx, o.Deps, workflows.RunningQueryInput{}, rootInvocationID)
	case StrategyReplication:
		return workflows.RunReplicationHealth(ctx, o.Deps, workflows.ReplicationInput{}, rootInvocationID)
	case StrategyInspector:
		return workflows.RunInspector(ctx, o.Deps, workflows.InspectorInput{SQL: extractSQL(request)}, rootInvocationID)
	case StrategyTriage:
		return workflows.RunTriage(ctx, o.Deps, workflows.TriageInput{}, rootInvocationID)
	default:
		return models.AgentReport{
			WorkflowName: string(strategy),
			State:        models.StatePartialError,
			FailureNote:  fmt.Sprintf("unknown strategy %q", strategy),
		}
	}
}

// extractSQL pulls the statement out of a free-form request for the
// database-inspector route: either everything after an explicit
// "execute sql"/"run this"-style lead-in, or, when there is no lead-in,
// the whole request trimmed of surrounding whitespace.
func extractSQL(request string) string {
	lower := strings.ToLower(request)
	for _, lead := range []string{"execute sql:", "execute sql", "run this:", "run this"} {
		if idx := strings.Index(lower, lead); idx >= 0 {
			return strings.TrimSpace(request[idx+len(lead):])
		}
	}
	return strings.TrimSpace(request)
}
