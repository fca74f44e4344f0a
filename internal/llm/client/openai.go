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

// Package client provides concrete implementations of the LLMClient
// interface for the reasoning-service providers the orchestrator and
// workflows can be configured with.
package client

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/sashabaranov/go-openai"
	"github.com/skysql-oss/dbdiag-agents/internal/common/logger"
	"github.com/skysql-oss/dbdiag-agents/internal/llm/interfaces"
)

// openAIClient wraps the go-openai library to conform to interfaces.LLMClient.
type openAIClient struct {
	client *openai.Client
	log    logger.Logger
}

// NewOpenAIClient creates a client for the OpenAI chat-completion API,
// used as the default reasoning service.
func NewOpenAIClient(apiKey string, apiBaseURL ...string) (interfaces.LLMClient, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key cannot be empty")
	}

	cfg := openai.DefaultConfig(apiKey)
	if len(apiBaseURL) > 0 && apiBaseURL[0] != "" {
		cfg.BaseURL = apiBaseURL[0]
	}

	return &openAIClient{
		client: openai.NewClientWithConfig(cfg),
		log:    logger.NewLogger("openai-client"),
	}, nil
}

// Reason sends the conversation plus tool catalog and returns either a
// textual reply or a tool-call request, never both.
func (c *openAIClient) Reason(ctx context.Context, req *interfaces.ReasonRequest) (*interfaces.ReasonResponse, error) {
	c.log.Debugf("sending reasoning request to model %s with %d tools", req.Model, len(req.Tools))

	chatReq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Messages:    toOpenAIMessages(req.Messages),
		Tools:       toOpenAITools(req.Tools),
	}

	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai: response contained no choices")
	}

	choice := resp.Choices[0]
	usage := interfaces.UsageStats{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}

	if len(choice.Message.ToolCalls) > 0 {
		tc := choice.Message.ToolCalls[0]
		var args map[string]any
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			return nil, errors.New("openai: tool call arguments were not a JSON object")
		}
		return &interfaces.ReasonResponse{
			ToolCall: &interfaces.ToolCallRequest{ToolName: tc.Function.Name, Arguments: args},
			Usage:    usage,
		}, nil
	}

	return &interfaces.ReasonResponse{Text: choice.Message.Content, Usage: usage}, nil
}

func toOpenAIMessages(msgs []interfaces.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(msgs))
	for i, m := range msgs {
		out[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

func toOpenAITools(tools []interfaces.ToolDescriptor) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.Tool, len(tools))
	for i, t := range tools {
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Schema,
			},
		}
	}
	return out
}
