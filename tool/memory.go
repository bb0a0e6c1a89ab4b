package tool

import (
	"fmt"

	"github.com/solenelabs/aria/core"
)

// MemoryTool exposes the assistant's long-term memory store to the model as a
// callable tool, letting it save facts worth remembering ("remember") and look
// up past interactions beyond the context injected at turn start ("recall").
type MemoryTool struct {
	name        string
	description string
}

// NewMemoryTool creates the built-in memory management tool.
func NewMemoryTool() *MemoryTool {
	return &MemoryTool{
		name: "memory",
		description: "Manages the user's long-term memory. " +
			"Supports operations: remember (store a fact), recall (search past interactions).",
	}
}

// Name returns the tool identifier.
func (t *MemoryTool) Name() string { return t.name }

// Description returns the tool description.
func (t *MemoryTool) Description() string { return t.description }

// Parameters returns the JSON schema for tool parameters.
func (t *MemoryTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operation": map[string]any{
				"type":        "string",
				"enum":        []string{"remember", "recall"},
				"description": "The memory operation to perform",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "Fact to store for the remember operation",
			},
			"query": map[string]any{
				"type":        "string",
				"description": "Search query for the recall operation",
			},
			"limit": map[string]any{
				"type":        "integer",
				"description": "Maximum results for recall (default: 5)",
			},
		},
		"required": []string{"operation"},
	}
}

// Call implements the Tool interface with structured arguments.
func (t *MemoryTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	operation, ok := args["operation"].(string)
	if !ok {
		return nil, fmt.Errorf("operation parameter is required")
	}

	switch operation {
	case "remember":
		return t.handleRemember(toolCtx, args)
	case "recall":
		return t.handleRecall(toolCtx, args)
	default:
		return nil, NewToolError(t.name, fmt.Sprintf("unknown operation: %s", operation), "VALIDATION_ERROR")
	}
}

func (t *MemoryTool) handleRemember(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	content, ok := args["content"].(string)
	if !ok || content == "" {
		return nil, NewToolError(t.name, "content is required for remember", "VALIDATION_ERROR")
	}

	metadata := map[string]any{"kind": "fact", "turn_id": toolCtx.TurnID()}
	if err := toolCtx.StoreMemory(content, metadata); err != nil {
		return nil, fmt.Errorf("store memory: %w", err)
	}

	return map[string]any{"stored": true, "content": content}, nil
}

func (t *MemoryTool) handleRecall(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, NewToolError(t.name, "query is required for recall", "VALIDATION_ERROR")
	}

	limit := 5
	if l, ok := args["limit"].(float64); ok && l > 0 {
		limit = int(l)
	}

	fragments, err := toolCtx.SearchMemory(query, limit)
	if err != nil {
		return nil, fmt.Errorf("search memory: %w", err)
	}

	matches := make([]string, len(fragments))
	for i, f := range fragments {
		matches[i] = f.Content
	}

	return map[string]any{"matches": matches, "count": len(matches)}, nil
}
