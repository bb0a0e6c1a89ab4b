package model

import (
	"context"
	"fmt"
)

// ToolCall represents a function call request surfaced by a model provider.
// Unified across vendors so downstream logic does not need per-provider branching.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON string of arguments
}

// ToolDefinition declaratively exposes a callable tool to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request captures the normalized model input produced by the selector.
type Request struct {
	Instructions string           `json:"instructions"`    // System-level instructions
	Prompt       string           `json:"prompt"`          // Assembled turn prompt (input, memory, history)
	Tools        []ToolDefinition `json:"tools,omitempty"` // Catalogue exposed for this pass
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the raw completion returned by a provider. Either Text,
// ToolCalls or both may be populated; the selector decides what it means.
type Response struct {
	ID           string      `json:"id"`
	Text         string      `json:"text,omitempty"`
	ToolCalls    []ToolCall  `json:"tool_calls,omitempty"`
	FinishReason string      `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "mock", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface the selector requires from a completion
// service. Complete blocks until one full response is available or ctx is
// done; callers impose per-call deadlines via ctx.
type Model interface {
	Complete(ctx context.Context, req Request) (*Response, error)

	// Info returns information about the model implementation.
	Info() Info
}

// MockModel is a lightweight in-memory Model useful for tests & examples.
// Responses are consumed from a script in order; when the script is exhausted
// the prompt-keyed canned responses are consulted, then a generic echo.
type MockModel struct {
	info      Info
	script    []Response
	responses map[string]Response
	calls     int
}

// NewMockModel constructs a MockModel with tool support enabled.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: "mock", SupportsTools: true},
		responses: make(map[string]Response),
	}
}

// Enqueue appends a scripted response returned by the next Complete call.
func (m *MockModel) Enqueue(resp Response) { m.script = append(m.script, resp) }

// AddResponse registers a deterministic canned completion for a prompt.
func (m *MockModel) AddResponse(prompt string, resp Response) { m.responses[prompt] = resp }

// Calls reports how many times Complete has been invoked.
func (m *MockModel) Calls() int { return m.calls }

// Complete implements Model.
func (m *MockModel) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.calls++
	if len(m.script) > 0 {
		resp := m.script[0]
		m.script = m.script[1:]
		return &resp, nil
	}
	if resp, ok := m.responses[req.Prompt]; ok {
		return &resp, nil
	}
	return &Response{
		Text:         fmt.Sprintf("Mock response to: %s", req.Prompt),
		FinishReason: "stop",
	}, nil
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }
