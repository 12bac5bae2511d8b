package openai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sashabaranov/go-openai"

	domain "github.com/bryanwahyu/cybersec-analyzer/internal/domain/analysis"
)

// GeminiBaseURL is the OpenAI-compatible endpoint of the Gemini API.
const GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

const (
	defaultModel = "gemini-2.0-flash"
	maxTokens    = 4096
	// maxToolTurns bounds the backend's tool-augmented turns so a
	// misbehaving model cannot loop forever against the tool server.
	maxToolTurns = 8
)

type Client struct {
	*openai.Client
	Model string
}

// NewClient builds a backend client against baseURL, defaulting to
// Gemini's OpenAI-compatible endpoint.
func NewClient(apiKey, baseURL, model string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL == "" {
		baseURL = GeminiBaseURL
	}
	cfg.BaseURL = baseURL
	return &Client{Client: openai.NewClientWithConfig(cfg), Model: model}
}

// scanTool declares the semgrep scan function the model may call
// mid-inference. Calls are dispatched to the request's tool handle.
var scanTool = openai.Tool{
	Type: openai.ToolTypeFunction,
	Function: &openai.FunctionDefinition{
		Name:        "semgrep_scan",
		Description: "Run a semgrep static-analysis scan over source code and return the findings as JSON.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"code": {"type": "string", "description": "The source code to scan"},
				"language": {"type": "string", "description": "Language hint for the scanner, e.g. python, go, javascript"}
			},
			"required": ["code"]
		}`),
	},
}

// Invoke performs one logical analysis call. Internally it runs up to
// maxToolTurns chat turns: tool calls from the model are dispatched to
// agent.Tool and their results appended, until the model produces its
// final structured reply. Callers only see that final reply.
func (c *Client) Invoke(ctx context.Context, agent domain.AgentConfig, prompt string) (string, error) {
	model := agent.Model
	if model == "" {
		model = c.Model
	}
	if model == "" {
		model = defaultModel
	}

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: agent.Instructions + "\n\n" + agent.OutputSchema},
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}

	var tools []openai.Tool
	if agent.Tool != nil {
		tools = []openai.Tool{scanTool}
	}

	for turn := 0; turn < maxToolTurns; turn++ {
		req := openai.ChatCompletionRequest{
			Model:     model,
			Messages:  messages,
			Tools:     tools,
			MaxTokens: maxTokens,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		}

		resp, err := c.CreateChatCompletion(ctx, req)
		if err != nil {
			return "", fmt.Errorf("failed to create chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("backend returned no choices")
		}

		msg := resp.Choices[0].Message
		if len(msg.ToolCalls) == 0 {
			return msg.Content, nil
		}

		messages = append(messages, msg)
		for _, tc := range msg.ToolCalls {
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: tc.ID,
				Content:    dispatch(ctx, agent.Tool, tc),
			})
		}
	}

	return "", fmt.Errorf("no final reply after %d tool turns", maxToolTurns)
}

// dispatch runs one tool call against the handle. Tool failures are
// fed back to the model as text so it can still produce a report from
// its own reasoning.
func dispatch(ctx context.Context, tool domain.ToolHandle, tc openai.ToolCall) string {
	var args map[string]any
	if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
		return fmt.Sprintf("tool call error: invalid arguments: %v", err)
	}
	out, err := tool.CallTool(ctx, tc.Function.Name, args)
	if err != nil {
		return fmt.Sprintf("tool call error: %v", err)
	}
	return out
}
