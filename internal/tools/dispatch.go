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

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/skysql-oss/dbdiag-agents/internal/common/errs"
	"github.com/skysql-oss/dbdiag-agents/internal/common/logger"
	"github.com/skysql-oss/dbdiag-agents/internal/guardrails"
	"github.com/skysql-oss/dbdiag-agents/internal/models"
	"github.com/skysql-oss/dbdiag-agents/internal/telemetry"
)

const (
	overallInvocationCap = 120 * time.Second
	resultByteCap        = 64 * 1024
	defaultToolDeadline  = 30 * time.Second
)

// Runtime dispatches tool calls by name through the validate → guardrail
// → invoke-with-deadline → cap-result pipeline and records every
// invocation to the telemetry sink.
type Runtime struct {
	registry  *Registry
	telemetry *telemetry.Sink
	log       logger.Logger
}

// NewRuntime wires a registry to the observability sink it records to.
func NewRuntime(registry *Registry, sink *telemetry.Sink) *Runtime {
	return &Runtime{registry: registry, telemetry: sink, log: logger.NewLogger("tools")}
}

// Lookup exposes a single registered tool's descriptor, so callers that
// only hold a *Runtime (not the underlying *Registry) can still build a
// restricted tool catalog for the reasoning service.
func (r *Runtime) Lookup(name string) (Descriptor, bool) {
	return r.registry.Get(name)
}

// Result is the outcome of Dispatch: the handler's return value,
// serialized-size accounting, and the finalized invocation record.
type Result struct {
	Value     any
	Truncated bool
	Record    models.ToolInvocationRecord
}

// Dispatch runs the full pipeline: validate args, create invocation
// record, input-guardrail check, invoke with deadline, measure the
// serialized result against the result cap, finalize. An unknown tool or
// invalid arguments return before any record exists; from there on the
// invocation record is appended to the observability sink on every exit
// path, including a guardrail rejection. The returned Value is the
// handler's value unchanged: an oversized result sets Truncated and caps
// the recorded ResultBytes, but Value itself is not shortened.
func (r *Runtime) Dispatch(ctx context.Context, toolName string, rawArgs map[string]any, parentInvocationID string) (*Result, errs.DBDiagError) {
	descriptor, ok := r.registry.Get(toolName)
	if !ok {
		return nil, errs.Newf(errs.KindUnknownTool, "no tool registered with name %q", toolName)
	}

	args, verr := validateArgs(descriptor, rawArgs)
	if verr != nil {
		return nil, verr
	}

	record := models.ToolInvocationRecord{
		ID:        uuid.NewString(),
		ParentID:  parentInvocationID,
		ToolName:  toolName,
		Arguments: args,
		StartTime: time.Now(),
	}

	if descriptor.Has(models.CapReadsDB) {
		for key, v := range args {
			s, ok := v.(string)
			if !ok {
				continue
			}
			var gerr errs.DBDiagError
			if descriptor.SelfValidatedSQLArgs[key] {
				gerr = guardrails.CheckInputPreValidatedShape(s)
			} else {
				gerr = guardrails.CheckInput(s)
			}
			if gerr != nil {
				r.log.Warnf("guardrail rejected argument %q of tool %q: %v", key, toolName, gerr)
				record.EndTime = time.Now()
				record.Outcome = models.OutcomeGuardrailRejected
				record.ErrorKind = string(gerr.Kind())
				r.telemetry.AppendInvocation(record)
				return nil, gerr
			}
		}
	}

	deadline := descriptor.DefaultDeadline
	if deadline <= 0 {
		deadline = defaultToolDeadline
	}
	if deadline > overallInvocationCap {
		deadline = overallInvocationCap
	}
	callCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	value, err := descriptor.Handler(callCtx, args)
	record.EndTime = time.Now()

	if err != nil {
		record.Outcome = outcomeFor(callCtx, err)
		record.ErrorKind = string(errs.GetKind(err))
		r.telemetry.AppendInvocation(record)
		de, isDE := err.(errs.DBDiagError)
		if !isDE {
			de = errs.Wrap(errs.KindBackendError, "tool handler failed", err)
		}
		return &Result{Record: record}, de
	}

	serialized, truncated := capResult(value, resultByteCap)
	record.ResultBytes = len(serialized)
	record.Truncated = truncated
	record.Outcome = models.OutcomeOK
	r.telemetry.AppendInvocation(record)

	return &Result{Value: value, Truncated: truncated, Record: record}, nil
}

func outcomeFor(ctx context.Context, err error) models.InvocationOutcome {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return models.OutcomeTimeout
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return models.OutcomeCancelled
	}
	if de, ok := err.(errs.DBDiagError); ok && de.Kind() == errs.KindInputBlocked {
		return models.OutcomeGuardrailRejected
	}
	return models.OutcomeFailedWithKind
}

// capResult serializes value and truncates at byteCap.
func capResult(value any, byteCap int) ([]byte, bool) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, false
	}
	if len(data) <= byteCap {
		return data, false
	}
	return data[:byteCap], true
}
