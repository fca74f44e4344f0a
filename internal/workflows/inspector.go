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
	"strconv"
	"strings"

	"github.com/skysql-oss/dbdiag-agents/internal/models"
)

// InspectorInput parameterizes one db-inspector workflow run.
type InspectorInput struct {
	SQL            string
	RowCap         int // default 100
	TimeoutSeconds int // default 10
}

const (
	inspectorDefaultRowCap  = 100
	inspectorDefaultTimeout = 10
)

// RunInspector is the mechanical follow-up workflow. Unlike the other
// four workflows it has no reasoning step: it validates shape, executes
// exactly one statement via the gateway, and formats the result. Given
// SELECT 1 it must return exactly one row containing 1 regardless of
// environment, which a reasoning-service round-trip cannot guarantee.
// The shared bounded-loop state machine collapses here to a single
// deterministic invoking-tool step.
func RunInspector(ctx context.Context, deps Deps, in InspectorInput, rootInvocationID string) models.AgentReport {
	in = normalizeInspectorInput(in)

	result, derr := deps.Runtime.Dispatch(ctx, "run_readonly", map[string]any{
		"sql":             in.SQL,
		"row_cap":         in.RowCap,
		"timeout_seconds": in.TimeoutSeconds,
	}, rootInvocationID)

	if derr != nil {
		return finalizeReport("db-inspector", "", models.StatePartialError, &derr, "run_readonly")
	}

	qr, ok := result.Value.(*models.QueryResult)
	if !ok {
		return finalizeReport("db-inspector", "", models.StatePartialError, nil, "run_readonly")
	}

	table := formatResultTable(qr)
	contextParagraph := inspectorContextParagraph(qr)

	report := models.AgentReport{
		WorkflowName: "db-inspector",
		State:        models.StateComplete,
		Markdown:     fmt.Sprintf("## db-inspector\n\n%s\n\n%s", table, contextParagraph),
		Findings: []models.Finding{{
			Title:      fmt.Sprintf("%d row(s) returned", qr.RowCount),
			Indicators: []string{fmt.Sprintf("truncated=%t", qr.Truncated)},
		}},
	}
	if qr.Truncated {
		report.DoNotActions = []string{"do not assume the result set is complete; raise the row cap or narrow the query"}
	}
	return report
}

func normalizeInspectorInput(in InspectorInput) InspectorInput {
	if in.RowCap <= 0 {
		in.RowCap = inspectorDefaultRowCap
	}
	if in.TimeoutSeconds <= 0 {
		in.TimeoutSeconds = inspectorDefaultTimeout
	}
	return in
}

// formatResultTable renders a QueryResult as a markdown table with
// column headers, preserving column order.
func formatResultTable(qr *models.QueryResult) string {
	if len(qr.Columns) == 0 {
		return "_(no columns returned)_"
	}
	var sb strings.Builder
	sb.WriteString("| ")
	sb.WriteString(strings.Join(qr.Columns, " | "))
	sb.WriteString(" |\n|")
	sb.WriteString(strings.Repeat(" --- |", len(qr.Columns)))
	sb.WriteString("\n")
	for _, row := range qr.Rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = cellToString(cell)
		}
		sb.WriteString("| ")
		sb.WriteString(strings.Join(cells, " | "))
		sb.WriteString(" |\n")
	}
	if qr.Truncated {
		sb.WriteString(fmt.Sprintf("\n_(truncated at %d rows)_\n", qr.RowCount))
	}
	return sb.String()
}

func cellToString(v any) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprintf("%v", v)
}

// inspectorContextParagraph derives the one additional context
// paragraph appended under the table: column interpretation and notable
// values, without invoking the reasoning service.
func inspectorContextParagraph(qr *models.QueryResult) string {
	if qr.RowCount == 0 {
		return "The statement returned no rows."
	}

	numericCols := 0
	for i := range qr.Columns {
		if columnLooksNumeric(qr.Rows, i) {
			numericCols++
		}
	}

	paragraph := fmt.Sprintf(
		"Returned %d row(s) across %d column(s) in %s.",
		qr.RowCount, len(qr.Columns), qr.ExecTime.String())
	if numericCols > 0 {
		paragraph += fmt.Sprintf(" %d column(s) hold numeric values worth comparing against baselines.", numericCols)
	}
	if qr.Truncated {
		paragraph += " The result was truncated by the row cap; re-run with a narrower predicate or a higher cap for the full set."
	}
	return paragraph
}

func columnLooksNumeric(rows [][]any, colIdx int) bool {
	seen := false
	for _, row := range rows {
		if colIdx >= len(row) || row[colIdx] == nil {
			continue
		}
		s := cellToString(row[colIdx])
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			return false
		}
		seen = true
	}
	return seen
}
