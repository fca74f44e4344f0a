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

package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"github.com/skysql-oss/dbdiag-agents/internal/common/logger"
	"github.com/skysql-oss/dbdiag-agents/internal/llm/interfaces"
	"google.golang.org/api/option"
)

// geminiClient is the alternate LLMClient implementation, wired in as a
// second selectable reasoning provider via NewFromConfig.
type geminiClient struct {
	client *genai.Client
	model  string
	log    logger.Logger
}

// NewGeminiClient creates a client for the Gemini generateContent API.
func NewGeminiClient(ctx context.Context, apiKey, model string) (interfaces.LLMClient, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: api key cannot be empty")
	}
	if model == "" {
		model = "gemini-1.5-pro"
	}

	c, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	return &geminiClient{client: c, model: model, log: logger.NewLogger("gemini-client")}, nil
}

// Reason sends the conversation plus tool catalog to Gemini and returns
// either a textual reply or a tool-call request.
func (c *geminiClient) Reason(ctx context.Context, req *interfaces.ReasonRequest) (*interfaces.ReasonResponse, error) {
	model := c.client.GenerativeModel(c.model)
	if len(req.Tools) > 0 {
		model.Tools = []*genai.Tool{toGenaiTool(req.Tools)}
	}

	session := model.StartChat()
	if len(req.Messages) > 1 {
		session.History = toGenaiHistory(req.Messages[:len(req.Messages)-1])
	}

	last := req.Messages[len(req.Messages)-1].Content
	resp, err := session.SendMessage(ctx, genai.Text(last))
	if err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New("gemini: response contained no candidates")
	}

	usage := interfaces.UsageStats{}
	if resp.UsageMetadata != nil {
		usage = interfaces.UsageStats{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}

	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			text += string(p)
		case genai.FunctionCall:
			return &interfaces.ReasonResponse{
				ToolCall: &interfaces.ToolCallRequest{ToolName: p.Name, Arguments: p.Args},
				Usage:    usage,
			}, nil
		}
	}
	return &interfaces.ReasonResponse{Text: text, Usage: usage}, nil
}

func toGenaiHistory(msgs []interfaces.Message) []*genai.Content {
	var history []*genai.Content
	for _, m := range msgs {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		history = append(history, &genai.Content{Parts: []genai.Part{genai.Text(m.Content)}, Role: role})
	}
	return history
}

// toGenaiTool converts the flat JSON-shaped tool catalog into Gemini's
// function-declaration form. Only the subset of JSON Schema the tool
// runtime actually emits (an object of string/number/integer/boolean
// properties) needs to round-trip here.
func toGenaiTool(tools []interfaces.ToolDescriptor) *genai.Tool {
	decls := make([]*genai.FunctionDeclaration, len(tools))
	for i, t := range tools {
		decls[i] = &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  toGenaiSchema(t.Schema),
		}
	}
	return &genai.Tool{FunctionDeclarations: decls}
}

func toGenaiSchema(raw map[string]any) *genai.Schema {
	if raw == nil {
		return &genai.Schema{Type: genai.TypeObject}
	}
	s := &genai.Schema{Type: genai.TypeObject}
	props, _ := raw["properties"].(map[string]any)
	if len(props) > 0 {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, v := range props {
			def, _ := v.(map[string]any)
			s.Properties[name] = jsonTypeToGenai(def)
		}
	}
	if req, ok := raw["required"].([]string); ok {
		s.Required = req
	}
	return s
}

func jsonTypeToGenai(def map[string]any) *genai.Schema {
	t, _ := def["type"].(string)
	switch t {
	case "string":
		return &genai.Schema{Type: genai.TypeString}
	case "integer":
		return &genai.Schema{Type: genai.TypeInteger}
	case "number":
		return &genai.Schema{Type: genai.TypeNumber}
	case "boolean":
		return &genai.Schema{Type: genai.TypeBoolean}
	default:
		return &genai.Schema{Type: genai.TypeString}
	}
}
