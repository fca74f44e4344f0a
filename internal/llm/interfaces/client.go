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

// Package interfaces defines the contract for the out-of-process
// reasoning service. The reasoning service is authoritative only about
// which tool to call next; workflows never trust its text for evidence,
// only for the next tool-call decision.
package interfaces

import "context"

// ToolDescriptor is the catalog entry a reasoning call is offered:
// name, description, and the JSON shape of its arguments.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"schema"`
}

// Message is a single turn in a reasoning conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolCallRequest is returned by the reasoning service in place of a
// textual reply when it elects to invoke a tool.
type ToolCallRequest struct {
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
}

// ReasonRequest carries the running conversation and the tool catalog
// available to the current workflow turn.
type ReasonRequest struct {
	Model       string
	Messages    []Message
	Tools       []ToolDescriptor
	Temperature float32
	MaxTokens   int
}

// UsageStats is the token accounting for a single round-trip, fed to
// the telemetry sink.
type UsageStats struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ReasonResponse is either a textual reply (Text != "") or a tool-call
// request (ToolCall != nil), never both.
type ReasonResponse struct {
	Text     string
	ToolCall *ToolCallRequest
	Usage    UsageStats
}

// LLMClient is implemented by each reasoning-service provider.
type LLMClient interface {
	Reason(ctx context.Context, req *ReasonRequest) (*ReasonResponse, error)
}
