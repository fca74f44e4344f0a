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
	"fmt"

	"github.com/skysql-oss/dbdiag-agents/internal/common/errs"
	"github.com/skysql-oss/dbdiag-agents/internal/models"
)

// finalizeReport turns a bounded loop's raw text/state into a
// structured AgentReport. A partial-error report always names the tool
// that failed and how, and points at the database-inspector workflow as
// the follow-up.
func finalizeReport(workflowName, text string, state models.TerminalState, derr *errs.DBDiagError, failedTool string) models.AgentReport {
	report := models.AgentReport{
		WorkflowName: workflowName,
		State:        state,
		Markdown:     text,
	}

	switch state {
	case models.StatePartialBudget:
		report.Markdown = fmt.Sprintf(
			"## %s (partial — turn budget exhausted)\n\nThis run did not reach a conclusion before its turn budget ran out; the coverage below is partial.",
			workflowName)

	case models.StatePartialError:
		var kind errs.Kind
		msg := "unknown error"
		if derr != nil && *derr != nil {
			kind = (*derr).Kind()
			msg = (*derr).Error()
		}
		report.FailedTool = failedTool
		report.FailureNote = msg
		report.Markdown = fmt.Sprintf(
			"## %s (partial — error)\n\nTool %q failed with %s: %s\n\nFollow up with the database-inspector workflow to inspect the relevant state directly.",
			workflowName, failedTool, kind, msg)
		report.DoNotActions = []string{"do not retry the failing tool in a tight loop; inspect via the database-inspector workflow first"}

	default:
		if text == "" {
			report.State = models.StatePartialError
			report.FailureNote = "workflow produced no output before completing"
			report.Markdown = fmt.Sprintf(
				"## %s (partial — error)\n\nThe workflow produced no output before completing.\n\nFollow up with the database-inspector workflow to inspect the relevant state directly.",
				workflowName)
		}
	}

	return report
}
