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
	"github.com/skysql-oss/dbdiag-agents/internal/models"
	"github.com/skysql-oss/dbdiag-agents/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunInspector_RendersTableForRows(t *testing.T) {
	ft := fakeTools{
		runReadonly: func(args map[string]any) (*models.QueryResult, error) {
			assert.Equal(t, "SELECT 1", args["sql"])
			return &models.QueryResult{
				Columns:  []string{"1"},
				Rows:     [][]any{{int64(1)}},
				RowCount: 1,
			}, nil
		},
	}
	runtime := ft.buildRuntime()
	sink := telemetry.NewSink(false)
	d := Deps{Runtime: runtime, Telemetry: sink}

	report := RunInspector(context.Background(), d, InspectorInput{SQL: "SELECT 1"}, "root-1")

	require.Equal(t, models.StateComplete, report.State)
	assert.Contains(t, report.Markdown, "| 1 |")
	assert.Equal(t, "1 row(s) returned", report.Findings[0].Title)
	assert.Empty(t, report.DoNotActions)
}

func TestRunInspector_FlagsTruncatedResult(t *testing.T) {
	ft := fakeTools{
		runReadonly: func(args map[string]any) (*models.QueryResult, error) {
			return &models.QueryResult{
				Columns:   []string{"id"},
				Rows:      [][]any{{1}, {2}},
				RowCount:  2,
				Truncated: true,
			}, nil
		},
	}
	runtime := ft.buildRuntime()
	sink := telemetry.NewSink(false)
	d := Deps{Runtime: runtime, Telemetry: sink}

	report := RunInspector(context.Background(), d, InspectorInput{SQL: "SELECT id FROM t"}, "root-2")

	require.Equal(t, models.StateComplete, report.State)
	assert.NotEmpty(t, report.DoNotActions)
	assert.Contains(t, report.Markdown, "truncated at 2 rows")
}

func TestRunInspector_PartialErrorWhenDispatchFails(t *testing.T) {
	ft := fakeTools{
		runReadonly: func(args map[string]any) (*models.QueryResult, error) {
			return nil, errs.Newf(errs.KindUnsafeQuery, "statement is not read-only")
		},
	}
	runtime := ft.buildRuntime()
	sink := telemetry.NewSink(false)
	d := Deps{Runtime: runtime, Telemetry: sink}

	report := RunInspector(context.Background(), d, InspectorInput{SQL: "DELETE FROM t"}, "root-3")

	require.Equal(t, models.StatePartialError, report.State)
	assert.Equal(t, "run_readonly", report.FailedTool)
	// "sql" is a self-validated argument for run_readonly, so the input
	// guardrail lets the disallowed shape through and the handler's own
	// UnsafeQuery classification reaches the report, not InputBlocked.
	assert.Contains(t, report.Markdown, "UnsafeQuery")
}

func TestNormalizeInspectorInput_AppliesDefaults(t *testing.T) {
	in := normalizeInspectorInput(InspectorInput{})
	assert.Equal(t, inspectorDefaultRowCap, in.RowCap)
	assert.Equal(t, inspectorDefaultTimeout, in.TimeoutSeconds)
}
