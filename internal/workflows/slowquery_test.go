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
	"testing"

	"github.com/skysql-oss/dbdiag-agents/internal/common/errs"
	"github.com/skysql-oss/dbdiag-agents/internal/llm/interfaces"
	"github.com/skysql-oss/dbdiag-agents/internal/models"
	"github.com/skysql-oss/dbdiag-agents/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSlowQuery_CompletesAfterTableBasedDigestLookup(t *testing.T) {
	ft := fakeTools{
		runReadonly: func(args map[string]any) (*models.QueryResult, error) {
			assert.Equal(t, "SHOW VARIABLES LIKE 'log_output'", args["sql"])
			return &models.QueryResult{
				Columns:  []string{"Variable_name", "Value"},
				Rows:     [][]any{{"log_output", "TABLE"}},
				RowCount: 1,
			}, nil
		},
		serverCapabilities: func() (models.ServerCapabilities, error) {
			return models.ServerCapabilities{InstrumentationEnabled: true, ServerFamily: "mariadb"}, nil
		},
	}
	runtime := ft.buildRuntime()
	sink := telemetry.NewSink(false)

	fakeLLM := &scriptedLLM{
		responses: []*interfaces.ReasonResponse{
			toolCallResponse("run_readonly", map[string]any{"sql": "SHOW VARIABLES LIKE 'log_output'"}),
			textResponse("## slow-query\n\ntop digest: full scan on orders, missing index on customer_id."),
		},
	}

	d := Deps{LLM: fakeLLM, Runtime: runtime, Telemetry: sink, Model: "test-model"}
	report := RunSlowQuery(context.Background(), d, SlowQueryInput{}, "root-1")

	require.Equal(t, models.StateComplete, report.State)
	assert.Equal(t, "slow-query", report.WorkflowName)
	assert.Contains(t, report.Markdown, "full scan on orders")

	totals := sink.Aggregate("root-1")
	assert.Equal(t, 2, totals.RoundTrips)
}

func TestRunSlowQuery_UsesSlowLogPathCatalogWhenConfigured(t *testing.T) {
	ft := fakeTools{
		runReadonly: func(args map[string]any) (*models.QueryResult, error) {
			return &models.QueryResult{
				Columns:  []string{"Variable_name", "Value"},
				Rows:     [][]any{{"log_output", "FILE"}},
				RowCount: 1,
			}, nil
		},
		tailLocalLog: func(args map[string]any) (map[string]any, error) {
			assert.Equal(t, "/var/log/mysql/slow.log", args["path"])
			return map[string]any{"text": "# Query_time: 12.3  Lock_time: 0.1\nSELECT * FROM orders;\n"}, nil
		},
		serverCapabilities: func() (models.ServerCapabilities, error) {
			return models.ServerCapabilities{InstrumentationEnabled: false, ServerFamily: "mysql"}, nil
		},
	}
	runtime := ft.buildRuntime()
	sink := telemetry.NewSink(false)

	fakeLLM := &scriptedLLM{
		responses: []*interfaces.ReasonResponse{
			toolCallResponse("tail_local_log", map[string]any{"path": "/var/log/mysql/slow.log"}),
			textResponse("## slow-query\n\nfile-based logging only; top digest is a full scan on orders."),
		},
	}

	d := Deps{LLM: fakeLLM, Runtime: runtime, Telemetry: sink, Model: "test-model"}
	report := RunSlowQuery(context.Background(), d, SlowQueryInput{SlowLogPath: "/var/log/mysql/slow.log"}, "root-2")

	require.Equal(t, models.StateComplete, report.State)
	assert.Contains(t, report.Markdown, "file-based logging")
}

func TestRunSlowQuery_PartialErrorOnToolFailure(t *testing.T) {
	ft := fakeTools{
		runReadonly: func(args map[string]any) (*models.QueryResult, error) {
			return nil, errs.Newf(errs.KindConnectionLost, "connection reset")
		},
	}
	runtime := ft.buildRuntime()
	sink := telemetry.NewSink(false)

	fakeLLM := &scriptedLLM{
		responses: []*interfaces.ReasonResponse{
			toolCallResponse("run_readonly", map[string]any{"sql": "SHOW VARIABLES LIKE 'log_output'"}),
		},
	}

	d := Deps{LLM: fakeLLM, Runtime: runtime, Telemetry: sink, Model: "test-model"}
	report := RunSlowQuery(context.Background(), d, SlowQueryInput{}, "root-3")

	require.Equal(t, models.StatePartialError, report.State)
	assert.Equal(t, "run_readonly", report.FailedTool)
	assert.NotEmpty(t, report.DoNotActions)
}

func TestRunSlowQuery_PartialBudgetOnExhaustedTurns(t *testing.T) {
	ft := fakeTools{
		runReadonly: func(args map[string]any) (*models.QueryResult, error) {
			return &models.QueryResult{Columns: []string{"Variable_name", "Value"}, Rows: [][]any{{"log_output", "TABLE"}}, RowCount: 1}, nil
		},
	}
	runtime := ft.buildRuntime()
	sink := telemetry.NewSink(false)

	var responses []*interfaces.ReasonResponse
	for i := 0; i < defaultTurnBudget; i++ {
		responses = append(responses, toolCallResponse("run_readonly", map[string]any{"sql": "SHOW VARIABLES LIKE 'log_output'"}))
	}
	fakeLLM := &scriptedLLM{responses: responses}

	d := Deps{LLM: fakeLLM, Runtime: runtime, Telemetry: sink, Model: "test-model"}
	report := RunSlowQuery(context.Background(), d, SlowQueryInput{}, "root-4")

	require.Equal(t, models.StatePartialBudget, report.State)
	assert.Contains(t, report.Markdown, "turn budget exhausted")
}

func TestNormalizeSlowQueryInput_AppliesDefaults(t *testing.T) {
	in := normalizeSlowQueryInput(SlowQueryInput{})
	assert.Equal(t, slowQueryDefaultWindowHours, in.WindowHours)
	assert.Equal(t, slowQueryDefaultMaxPatterns, in.MaxPatterns)
}

func TestNormalizeSlowQueryInput_ClampsToMaximums(t *testing.T) {
	in := normalizeSlowQueryInput(SlowQueryInput{WindowHours: 10000, MaxPatterns: 10000})
	assert.Equal(t, slowQueryMaxWindowHours, in.WindowHours)
	assert.Equal(t, slowQueryMaxPatterns, in.MaxPatterns)
}
