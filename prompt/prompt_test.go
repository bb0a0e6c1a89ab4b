package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solenelabs/aria/core"
	"github.com/solenelabs/aria/model"
)

func sampleState() *core.TurnState {
	state := core.NewTurnState("user-1", "what's for dinner?")
	state.SeedMemory([]core.Fragment{
		{ID: "f1", Content: "prefers vegetarian food", Score: 1.0},
		{ID: "f2", Content: "allergic to peanuts", Score: 0.9},
	})
	result := core.ToolResult{OK: true, Output: `{"matches":["prefers vegetarian food"],"count":1}`}
	state.AppendStep(core.Step{
		Decision: core.ToolCall{Name: "memory", Args: map[string]any{"operation": "recall", "query": "food"}},
		Result:   &result,
	})
	return state
}

func sampleTools() []model.ToolDefinition {
	return []model.ToolDefinition{
		{Name: "get_weather", Description: "weather", Parameters: map[string]any{"type": "object"}},
		{Name: "memory", Description: "memory", Parameters: map[string]any{"type": "object"}},
	}
}

func TestTranscriptBuilder_Build(t *testing.T) {
	b := NewTranscriptBuilder("")

	text, err := b.Build(sampleState(), sampleTools())
	require.NoError(t, err)

	assert.Contains(t, text, "prefers vegetarian food")
	assert.Contains(t, text, "allergic to peanuts")
	assert.Contains(t, text, "User: what's for dinner?")
	assert.Contains(t, text, `1. called memory({"operation":"recall","query":"food"})`)
	assert.Contains(t, text, "Available tools: get_weather, memory")
}

func TestTranscriptBuilder_Deterministic(t *testing.T) {
	b := NewTranscriptBuilder("")
	state := sampleState()
	tools := sampleTools()

	first, err := b.Build(state, tools)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := b.Build(state, tools)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestTranscriptBuilder_FailedStep(t *testing.T) {
	state := core.NewTurnState("user-1", "weather?")
	result := core.ToolResult{OK: false, Err: "timeout"}
	state.AppendStep(core.Step{
		Decision: core.ToolCall{Name: "get_weather", Args: map[string]any{"location": "Berlin"}},
		Result:   &result,
	})

	text, err := NewTranscriptBuilder("").Build(state, nil)
	require.NoError(t, err)

	// Failures appear in the transcript so the model can route around them.
	assert.Contains(t, text, "error: timeout")
}

func TestTranscriptBuilder_EmptyState(t *testing.T) {
	state := core.NewTurnState("user-1", "hi")

	text, err := NewTranscriptBuilder("").Build(state, nil)
	require.NoError(t, err)

	assert.Contains(t, text, "User: hi")
	assert.NotContains(t, text, "Steps taken so far")
	assert.NotContains(t, text, "Available tools")
	assert.NotContains(t, text, "Relevant context")
}

func TestTranscriptBuilder_Instructions(t *testing.T) {
	b := NewTranscriptBuilder("You are helping {{.UserID}}.")

	header, err := b.Instructions(core.NewTurnState("alice", "hi"))
	require.NoError(t, err)
	assert.Equal(t, "You are helping alice.", header)
}

func TestTranscriptBuilder_DefaultInstructions(t *testing.T) {
	b := NewTranscriptBuilder("")

	header, err := b.Instructions(core.NewTurnState("user-1", "hi"))
	require.NoError(t, err)
	assert.NotEmpty(t, header)
}

func TestTranscriptBuilder_InstructionsNoEscaping(t *testing.T) {
	b := NewTranscriptBuilder("Quote the user's words: {{.UserInput}}")

	header, err := b.Instructions(core.NewTurnState("user-1", `he said "it's <done> & dusted"`))
	require.NoError(t, err)
	// Prompt text is not HTML; no entity escaping may occur.
	assert.Contains(t, header, `"it's <done> & dusted"`)
}
