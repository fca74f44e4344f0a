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

// Package workflows holds the named diagnostic procedures, each a
// bounded agentic loop that alternates reasoning-service calls with tool
// invocations through the runtime, terminating on completion, budget
// exhaustion, or error, and always emitting an agent report.
package workflows

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/skysql-oss/dbdiag-agents/internal/common/errs"
	"github.com/skysql-oss/dbdiag-agents/internal/common/logger"
	"github.com/skysql-oss/dbdiag-agents/internal/guardrails"
	"github.com/skysql-oss/dbdiag-agents/internal/llm/interfaces"
	"github.com/skysql-oss/dbdiag-agents/internal/models"
	"github.com/skysql-oss/dbdiag-agents/internal/telemetry"
	"github.com/skysql-oss/dbdiag-agents/internal/tools"
)

// loopState is the per-turn state of a workflow run: planning →
// invoking-tool → interpreting → (planning | done | aborted-budget |
// aborted-error).
type loopState string

const (
	statePlanning      loopState = "planning"
	stateInvokingTool  loopState = "invoking-tool"
	stateInterpreting  loopState = "interpreting"
	stateDone          loopState = "done"
	stateAbortedBudget loopState = "aborted-budget"
	stateAbortedError  loopState = "aborted-error"
)

const (
	defaultTurnBudget = 20
	triageTurnBudget  = 30
)

// Deps are the dependencies every workflow shares.
type Deps struct {
	LLM       interfaces.LLMClient
	Runtime   *tools.Runtime
	Telemetry *telemetry.Sink
	Model     string
	// Attribution overrides the telemetry attribution tag for the
	// records a run appends. Empty means the workflow's own name; a
	// standalone run (no orchestrator parent) sets "self".
	Attribution string
}

// runLoop drives the shared bounded agentic loop for one workflow run.
// systemPrompt frames the task; toolCatalog restricts which tools the
// reasoning service is offered; rootInvocationID roots the telemetry
// attribution; deps.Attribution (or, when empty, workflowName) names
// this workflow in the telemetry breakdown. It returns the final
// free-form text the reasoning service produced, the terminal state
// reached, the error behind a partial-error state (nil otherwise), and
// the name of the tool that failed (empty when none did).
func runLoop(ctx context.Context, deps Deps, workflowName, systemPrompt string, toolCatalog []tools.Descriptor, turnBudget int, rootInvocationID string) (string, models.TerminalState, *errs.DBDiagError, string) {
	log := logger.NewLogger("workflow:" + workflowName)
	if turnBudget <= 0 {
		turnBudget = defaultTurnBudget
	}
	attribution := deps.Attribution
	if attribution == "" {
		attribution = workflowName
	}

	catalog := make([]interfaces.ToolDescriptor, len(toolCatalog))
	for i, t := range toolCatalog {
		catalog[i] = interfaces.ToolDescriptor{Name: t.Name, Description: t.Description, Schema: t.JSONSchema()}
	}

	messages := []interfaces.Message{{Role: "system", Content: systemPrompt}}
	state := statePlanning
	lastParentID := rootInvocationID

	for turn := 0; turn < turnBudget; turn++ {
		switch state {
		case statePlanning, stateInterpreting:
			resp, err := deps.LLM.Reason(ctx, &interfaces.ReasonRequest{
				Model:    deps.Model,
				Messages: messages,
				Tools:    catalog,
			})
			if err != nil {
				wrapped := errs.Wrap(errs.KindBackendError, "reasoning service call failed", err)
				return "", models.StatePartialError, &wrapped, ""
			}
			deps.Telemetry.Append(models.TelemetryRecord{
				RootInvocationID: rootInvocationID,
				InvocationID:     uuid.NewString(),
				InputTokens:      resp.Usage.PromptTokens,
				OutputTokens:     resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
				RoundTrips:       1,
				Attribution:      attribution,
				RecordedAt:       time.Now(),
			})

			if resp.ToolCall == nil {
				return guardrails.RedactOutput(resp.Text), models.StateComplete, nil, ""
			}

			callJSON, _ := json.Marshal(resp.ToolCall.Arguments)
			messages = append(messages, interfaces.Message{
				Role:    "assistant",
				Content: fmt.Sprintf("call %s(%s)", resp.ToolCall.ToolName, string(callJSON)),
			})
			state = stateInvokingTool
			pendingCall := resp.ToolCall

			result, derr := deps.Runtime.Dispatch(ctx, pendingCall.ToolName, pendingCall.Arguments, lastParentID)
			if derr != nil {
				if derr.Kind() == errs.KindInstrumentationDisabled || derr.Kind() == errs.KindSchemaMissing {
					log.Debugf("tool %s degraded: %v", pendingCall.ToolName, derr)
					messages = append(messages, interfaces.Message{
						Role:    "user",
						Content: fmt.Sprintf("tool %s unavailable (%s); continue with degraded analysis", pendingCall.ToolName, derr.Kind()),
					})
					state = stateInterpreting
					continue
				}
				wrapped := derr
				return "", models.StatePartialError, &wrapped, pendingCall.ToolName
			}

			lastParentID = result.Record.ID
			resultJSON, _ := json.Marshal(result.Value)
			messages = append(messages, interfaces.Message{Role: "user", Content: string(resultJSON)})
			state = stateInterpreting

		default:
			return "", models.StatePartialError, nil, ""
		}
	}

	return "", models.StatePartialBudget, nil, ""
}
