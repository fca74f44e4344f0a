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
	"errors"
	"time"

	"github.com/skysql-oss/dbdiag-agents/internal/llm/interfaces"
	"github.com/skysql-oss/dbdiag-agents/internal/logingest"
	"github.com/skysql-oss/dbdiag-agents/internal/models"
	"github.com/skysql-oss/dbdiag-agents/internal/telemetry"
	"github.com/skysql-oss/dbdiag-agents/internal/tools"
)

// scriptedLLM is a test double for interfaces.LLMClient: it returns a
// fixed queue of responses in order, one per Reason call, mirroring the
// echoRuntime helper already used by the tools package's own tests.
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

func toolCallResponse(tool string, args map[string]any) *interfaces.ReasonResponse {
	return &interfaces.ReasonResponse{
		ToolCall: &interfaces.ToolCallRequest{ToolName: tool, Arguments: args},
		Usage:    interfaces.UsageStats{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
}

func textResponse(text string) *interfaces.ReasonResponse {
	return &interfaces.ReasonResponse{
		Text:  text,
		Usage: interfaces.UsageStats{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
}

// fakeTools builds a *tools.Runtime exposing only the handlers a test
// chooses to populate, with Schemas matching catalog.go's real
// descriptors so validateArgs never rejects a workflow's own arguments.
type fakeTools struct {
	runReadonly           func(args map[string]any) (*models.QueryResult, error)
	runReadonlyProbe      func(args map[string]any) (*models.ProbeScanResult, error)
	serverCapabilities    func() (models.ServerCapabilities, error)
	tailLocalLog          func(args map[string]any) (map[string]any, error)
	fetchRemoteLog        func(args map[string]any) (map[string]any, error)
	resourceMetrics       func(args map[string]any) (map[string]any, error)
	extractPatterns       func(args map[string]any) ([]models.ErrorPattern, error)
	localResourceSnapshot func() (models.ResourcePressure, error)
	serviceProvisioning   func() (*logingest.ProvisioningInfo, error)
}

func (f fakeTools) buildRuntime() *tools.Runtime {
	reg := tools.NewRegistry()

	if f.runReadonly != nil {
		reg.Register(tools.Descriptor{
			Name:         "run_readonly",
			Capabilities: map[models.CapabilityFlag]bool{models.CapReadsDB: true},
			Schema: tools.Schema{Parameters: []tools.Parameter{
				{Name: "sql", Type: "string", Required: true},
				{Name: "row_cap", Type: "integer", Default: models.DefaultRowCap},
				{Name: "timeout_seconds", Type: "integer", Default: 10},
			}},
			SelfValidatedSQLArgs: map[string]bool{"sql": true},
			DefaultDeadline:      5 * time.Second,
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return f.runReadonly(args)
			},
		})
	}

	if f.runReadonlyProbe != nil {
		reg.Register(tools.Descriptor{
			Name:         "run_readonly_probe",
			Capabilities: map[models.CapabilityFlag]bool{models.CapReadsDB: true},
			Schema: tools.Schema{Parameters: []tools.Parameter{
				{Name: "sql", Type: "string", Required: true},
				{Name: "probe_count", Type: "integer", Default: 10},
			}},
			SelfValidatedSQLArgs: map[string]bool{"sql": true},
			DefaultDeadline:      5 * time.Second,
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return f.runReadonlyProbe(args)
			},
		})
	}

	if f.serverCapabilities != nil {
		reg.Register(tools.Descriptor{
			Name:            "server_capabilities",
			Capabilities:    map[models.CapabilityFlag]bool{models.CapReadsDB: true},
			Schema:          tools.Schema{},
			DefaultDeadline: 5 * time.Second,
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return f.serverCapabilities()
			},
		})
	}

	if f.tailLocalLog != nil {
		reg.Register(tools.Descriptor{
			Name:         "tail_local_log",
			Capabilities: map[models.CapabilityFlag]bool{models.CapReadsLog: true},
			Schema: tools.Schema{Parameters: []tools.Parameter{
				{Name: "path", Type: "string", Required: true},
				{Name: "max_lines", Type: "integer", Default: 5000},
			}},
			DefaultDeadline: 5 * time.Second,
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return f.tailLocalLog(args)
			},
		})
	}

	if f.fetchRemoteLog != nil {
		reg.Register(tools.Descriptor{
			Name:         "fetch_remote_log",
			Capabilities: map[models.CapabilityFlag]bool{models.CapReadsLog: true},
			Schema: tools.Schema{Parameters: []tools.Parameter{
				{Name: "from_hours_ago", Type: "integer", Default: 1},
			}},
			DefaultDeadline: 5 * time.Second,
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return f.fetchRemoteLog(args)
			},
		})
	}

	if f.resourceMetrics != nil {
		reg.Register(tools.Descriptor{
			Name:         "resource_metrics",
			Capabilities: map[models.CapabilityFlag]bool{models.CapPure: true},
			Schema: tools.Schema{Parameters: []tools.Parameter{
				{Name: "from_hours_ago", Type: "integer", Default: 1},
			}},
			DefaultDeadline: 5 * time.Second,
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return f.resourceMetrics(args)
			},
		})
	}

	if f.extractPatterns != nil {
		reg.Register(tools.Descriptor{
			Name:         "extract_patterns",
			Capabilities: map[models.CapabilityFlag]bool{models.CapPure: true},
			Schema: tools.Schema{Parameters: []tools.Parameter{
				{Name: "text", Type: "string", Required: true},
				{Name: "max_patterns", Type: "integer", Default: 20},
			}},
			DefaultDeadline: 5 * time.Second,
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return f.extractPatterns(args)
			},
		})
	}

	if f.localResourceSnapshot != nil {
		reg.Register(tools.Descriptor{
			Name:            "local_resource_snapshot",
			Capabilities:    map[models.CapabilityFlag]bool{models.CapPure: true},
			Schema:          tools.Schema{},
			DefaultDeadline: 5 * time.Second,
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return f.localResourceSnapshot()
			},
		})
	}

	if f.serviceProvisioning != nil {
		reg.Register(tools.Descriptor{
			Name:            "service_provisioning",
			Capabilities:    map[models.CapabilityFlag]bool{models.CapPure: true},
			Schema:          tools.Schema{},
			DefaultDeadline: 5 * time.Second,
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return f.serviceProvisioning()
			},
		})
	}

	return tools.NewRuntime(reg, telemetry.NewSink(false))
}
