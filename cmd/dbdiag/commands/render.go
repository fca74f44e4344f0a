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

package commands

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/skysql-oss/dbdiag-agents/internal/models"
)

// renderReport prints one workflow's report and exits: 0 on success or
// partial-with-budget, 3 on an unrecoverable (partial-error) backend
// failure.
func renderReport(r models.AgentReport) {
	switch r.State {
	case models.StateComplete:
		color.Green("[%s] complete", r.WorkflowName)
	case models.StatePartialBudget:
		color.Yellow("[%s] partial — turn budget exhausted", r.WorkflowName)
	case models.StatePartialError:
		color.Red("[%s] partial — error in tool %q", r.WorkflowName, r.FailedTool)
	}
	fmt.Println(r.Markdown)

	if r.State == models.StatePartialError {
		os.Exit(exitBackendError)
	}
	os.Exit(exitSuccess)
}

// renderSynthesis prints an orchestrator's combined report.
func renderSynthesis(sr *models.SynthesizedReport) {
	color.Cyan("executive summary: %s", sr.ExecutiveSummary)
	fmt.Println(sr.Markdown)

	for _, r := range sr.WorkflowReports {
		if r.State == models.StatePartialError {
			os.Exit(exitBackendError)
		}
	}
	os.Exit(exitSuccess)
}
