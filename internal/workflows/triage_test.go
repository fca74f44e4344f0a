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

	"github.com/skysql-oss/dbdiag-agents/internal/llm/interfaces"
	"github.com/skysql-oss/dbdiag-agents/internal/models"
	"github.com/skysql-oss/dbdiag-agents/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func statusResult(rows map[string]string) *models.QueryResult {
	qr := &models.QueryResult{Columns: []string{"Variable_name", "Value"}}
	for k, v := range rows {
		qr.Rows = append(qr.Rows, []any{k, v})
	}
	qr.RowCount = len(qr.Rows)
	return qr
}

func TestRunTriage_FindsQueryPerformanceCauseFromSlowQueryRatio(t *testing.T) {
	ft := fakeTools{
		runReadonly: func(args map[string]any) (*models.QueryResult, error) {
			sql, _ := args["sql"].(string)
			switch sql {
			case "SHOW GLOBAL STATUS":
				return statusResult(map[string]string{
					"Slow_queries": "50", "Questions": "1000",
					"Innodb_row_lock_time": "0", "Innodb_row_lock_waits": "0",
					"Threads_connected": "5",
				}), nil
			case "SHOW SLAVE STATUS":
				return &models.QueryResult{RowCount: 0}, nil
			}
			return &models.QueryResult{}, nil
		},
		serverCapabilities: func() (models.ServerCapabilities, error) {
			return models.ServerCapabilities{InstrumentationEnabled: true}, nil
		},
		localResourceSnapshot: func() (models.ResourcePressure, error) {
			return models.ResourcePressure{Source: "local"}, nil
		},
		extractPatterns: func(args map[string]any) ([]models.ErrorPattern, error) {
			return []models.ErrorPattern{{Sample: "slow query detected: query_time=12.3", Severity: models.SeverityWarning, Count: 4}}, nil
		},
		tailLocalLog: func(args map[string]any) (map[string]any, error) {
			return map[string]any{"text": "[Warning] slow query detected: query_time=12.3"}, nil
		},
	}
	runtime := ft.buildRuntime()
	sink := telemetry.NewSink(false)

	fakeLLM := &scriptedLLM{
		responses: []*interfaces.ReasonResponse{
			textResponse("## incident-triage\n\nquery-performance is the likely cause; slow query ratio exceeded the threshold."),
		},
	}

	d := Deps{LLM: fakeLLM, Runtime: runtime, Telemetry: sink, Model: "test-model"}
	report := RunTriage(context.Background(), d, TriageInput{ErrorLogPath: "/var/log/mysql/error.log"}, "root-1")

	require.Equal(t, models.StateComplete, report.State)
	require.NotEmpty(t, report.Findings)
	assert.Equal(t, "query-performance", report.TopCauseCategory)
	assert.Contains(t, report.Findings[0].Title, "query-performance")
}

func TestRunTriage_NoCausesWhenNothingExceedsThreshold(t *testing.T) {
	ft := fakeTools{
		runReadonly: func(args map[string]any) (*models.QueryResult, error) {
			sql, _ := args["sql"].(string)
			if sql == "SHOW GLOBAL STATUS" {
				return statusResult(map[string]string{
					"Slow_queries": "1", "Questions": "100000",
					"Innodb_row_lock_time": "0", "Innodb_row_lock_waits": "0",
				}), nil
			}
			return &models.QueryResult{RowCount: 0}, nil
		},
		serverCapabilities: func() (models.ServerCapabilities, error) {
			return models.ServerCapabilities{InstrumentationEnabled: true}, nil
		},
		localResourceSnapshot: func() (models.ResourcePressure, error) {
			return models.ResourcePressure{Source: "local"}, nil
		},
		extractPatterns: func(args map[string]any) ([]models.ErrorPattern, error) {
			return nil, nil
		},
	}
	runtime := ft.buildRuntime()
	sink := telemetry.NewSink(false)

	fakeLLM := &scriptedLLM{
		responses: []*interfaces.ReasonResponse{
			textResponse("## incident-triage\n\nno likely cause crossed the conservative threshold."),
		},
	}

	d := Deps{LLM: fakeLLM, Runtime: runtime, Telemetry: sink, Model: "test-model"}
	report := RunTriage(context.Background(), d, TriageInput{}, "root-2")

	require.Equal(t, models.StateComplete, report.State)
	assert.Empty(t, report.Findings)
	assert.Empty(t, report.TopCauseCategory)
	assert.Contains(t, report.Markdown, "no error log source configured")
}

func TestExceededIndicators_DetectsLockContention(t *testing.T) {
	snapshot := models.HealthSnapshot{
		Locks: map[string]string{"Innodb_row_lock_waits": "10", "Innodb_row_lock_time": "20000"},
	}
	exceeded, detail := exceededIndicators(snapshot)
	assert.True(t, exceeded["lock-contention"])
	assert.NotEmpty(t, detail["lock-contention"])
}

func TestExceededIndicators_DetectsReplicationLagAndBrokenThreads(t *testing.T) {
	snapshot := models.HealthSnapshot{
		Replication: map[string]string{
			"Seconds_Behind_Master": "45",
			"Slave_IO_Running":      "No",
			"Slave_SQL_Running":     "Yes",
		},
	}
	exceeded, detail := exceededIndicators(snapshot)
	assert.True(t, exceeded["replication"])
	assert.Len(t, detail["replication"], 2)
}
