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
	"errors"
	"testing"
	"time"

	"github.com/skysql-oss/dbdiag-agents/internal/llm/interfaces"
	"github.com/skysql-oss/dbdiag-agents/internal/models"
	"github.com/skysql-oss/dbdiag-agents/internal/telemetry"
	"github.com/skysql-oss/dbdiag-agents/internal/tools"
	"github.com/skysql-oss/dbdiag-agents/internal/workflows"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedLLM is a minimal interfaces.LLMClient test double: it returns
// a fixed queue of responses in order, one per Reason call.
type scriptedLLM struct {
	responses []*interfaces.ReasonResponse
	calls     int
}

func (s *scriptedLLM) Reason(ctx context.Context, req *interfaces.ReasonRequest) (*interfaces.ReasonResponse, error) {
	if s.calls >= len(s.responses) {
		return nil, errors.New("scriptedLLM: exhausted its response queue")
	}
	resp := s.responses[s.calls]
	s.calls++
	return resp, nil
}

func textResponse(text string) *interfaces.ReasonResponse {
	return &interfaces.ReasonResponse{Text: text, Usage: interfaces.UsageStats{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}}
}

func statusRow(name, value string) []any { return []any{name, value} }

func buildTestRuntime() *tools.Runtime {
	reg := tools.NewRegistry()

	reg.Register(tools.Descriptor{
		Name:         "run_readonly",
		Capabilities: map[models.CapabilityFlag]bool{models.CapReadsDB: true},
		Schema: tools.Schema{Parameters: []tools.Parameter{
			{Name: "sql", Type: "string", Required: true},
			{Name: "row_cap", Type: "integer", Default: 100},
			{Name: "timeout_seconds", Type: "integer", Default: 10},
		}},
		DefaultDeadline: 5 * time.Second,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			sql, _ := args["sql"].(string)
			switch sql {
			case "SHOW GLOBAL STATUS":
				return &models.QueryResult{
					Columns: []string{"Variable_name", "Value"},
					Rows: [][]any{
						statusRow("Slow_queries", "50"),
						statusRow("Questions", "1000"),
						statusRow("Innodb_row_lock_time", "0"),
						statusRow("Innodb_row_lock_waits", "0"),
						statusRow("Threads_connected", "5"),
					},
					RowCount: 5,
				}, nil
			case "SHOW SLAVE STATUS":
				return &models.QueryResult{RowCount: 0}, nil
			default:
				return &models.QueryResult{}, nil
			}
		},
	})

	reg.Register(tools.Descriptor{
		Name:         "run_readonly_probe",
		Capabilities: map[models.CapabilityFlag]bool{models.CapReadsDB: true},
		Schema: tools.Schema{Parameters: []tools.Parameter{
			{Name: "sql", Type: "string", Required: true},
			{Name: "probe_count", Type: "integer", Default: 10},
		}},
		DefaultDeadline: 5 * time.Second,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return &models.ProbeScanResult{}, nil
		},
	})

	reg.Register(tools.Descriptor{
		Name:            "server_capabilities",
		Capabilities:    map[models.CapabilityFlag]bool{models.CapReadsDB: true},
		Schema:          tools.Schema{},
		DefaultDeadline: 5 * time.Second,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return models.ServerCapabilities{InstrumentationEnabled: true, ServerFamily: "mariadb"}, nil
		},
	})

	reg.Register(tools.Descriptor{
		Name:         "tail_local_log",
		Capabilities: map[models.CapabilityFlag]bool{models.CapReadsLog: true},
		Schema: tools.Schema{Parameters: []tools.Parameter{
			{Name: "path", Type: "string", Required: true},
			{Name: "max_lines", Type: "integer", Default: 5000},
		}},
		DefaultDeadline: 5 * time.Second,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return map[string]any{"text": ""}, nil
		},
	})

	reg.Register(tools.Descriptor{
		Name:            "local_resource_snapshot",
		Capabilities:    map[models.CapabilityFlag]bool{models.CapPure: true},
		Schema:          tools.Schema{},
		DefaultDeadline: 5 * time.Second,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return models.ResourcePressure{Source: "local"}, nil
		},
	})

	reg.Register(tools.Descriptor{
		Name:         "extract_patterns",
		Capabilities: map[models.CapabilityFlag]bool{models.CapPure: true},
		Schema: tools.Schema{Parameters: []tools.Parameter{
			{Name: "text", Type: "string", Required: true},
			{Name: "max_patterns", Type: "integer", Default: 20},
		}},
		DefaultDeadline: 5 * time.Second,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return []models.ErrorPattern{}, nil
		},
	})

	return tools.NewRuntime(reg, telemetry.NewSink(false))
}

func TestHandle_SingleWorkflowPassthrough(t *testing.T) {
	llm := &scriptedLLM{responses: []*interfaces.ReasonResponse{
		textResponse("## slow-query\n\nno slow digests found above the cap."),
	}}
	deps := workflows.Deps{LLM: llm, Runtime: buildTestRuntime(), Telemetry: telemetry.NewSink(false), Model: "test-model"}
	orch := New(deps)

	sr, err := orch.Handle(context.Background(), "why are my slow queries piling up?")
	require.NoError(t, err)
	require.Len(t, sr.WorkflowReports, 1)
	assert.Equal(t, "slow-query", sr.WorkflowReports[0].WorkflowName)
	assert.Contains(t, sr.Markdown, "# Diagnostic report")
	assert.Contains(t, sr.Markdown, "## Telemetry")
}

func TestHandle_ClarifyWhenNoTriggerMatches(t *testing.T) {
	deps := workflows.Deps{LLM: &scriptedLLM{}, Runtime: buildTestRuntime(), Telemetry: telemetry.NewSink(false), Model: "test-model"}
	orch := New(deps)

	sr, err := orch.Handle(context.Background(), "good morning")
	require.NoError(t, err)
	assert.Empty(t, sr.WorkflowReports)
	assert.Contains(t, sr.Markdown, "Clarification needed")
}

func TestHandle_ChainsSlowQueryAfterIncidentTriage(t *testing.T) {
	llm := &scriptedLLM{responses: []*interfaces.ReasonResponse{
		textResponse("## incident-triage\n\nquery-performance crossed the conservative threshold."),
		textResponse("## slow-query\n\nthe top digest is a full scan on orders."),
	}}
	deps := workflows.Deps{LLM: llm, Runtime: buildTestRuntime(), Telemetry: telemetry.NewSink(false), Model: "test-model"}
	orch := New(deps)

	sr, err := orch.Handle(context.Background(), "something is wrong with the database")
	require.NoError(t, err)
	require.Len(t, sr.WorkflowReports, 2)
	assert.Equal(t, "incident-triage", sr.WorkflowReports[0].WorkflowName)
	assert.Equal(t, "slow-query", sr.WorkflowReports[1].WorkflowName)
	assert.Equal(t, "query-performance", sr.WorkflowReports[0].TopCauseCategory)
	assert.Contains(t, sr.ExecutiveSummary, "query-performance")
	assert.NotEmpty(t, sr.CorrelatedFindings)
}
