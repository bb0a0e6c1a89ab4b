// Package prompt assembles the text handed to the completion service on every
// selection pass. Builders are pure functions of the turn state and tool
// catalogue so identical inputs always produce identical prompts, which keeps
// turn replay deterministic and testable.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/solenelabs/aria/core"
	"github.com/solenelabs/aria/internal/util"
	"github.com/solenelabs/aria/model"
)

// Builder produces the prompt text for one selection pass. Implementations
// must be side-effect free.
type Builder interface {
	Build(state *core.TurnState, tools []model.ToolDefinition) (string, error)
}

// defaultInstructions is the baseline persona used when none is configured.
const defaultInstructions = "You are a personal assistant. Use the available tools when they help, " +
	"then reply to the user with a single final answer."

// TranscriptBuilder is the default Builder. It renders an instruction header
// (template-expandable with turn data), the retrieved memory fragments, the
// user's utterance and a transcript of the steps taken so far.
type TranscriptBuilder struct {
	instructions string
}

// NewTranscriptBuilder creates a TranscriptBuilder. The instructions text may
// contain template markers ({{.UserID}}, {{.UserInput}}) expanded per turn; an
// empty string selects the default instructions.
func NewTranscriptBuilder(instructions string) *TranscriptBuilder {
	if instructions == "" {
		instructions = defaultInstructions
	}
	return &TranscriptBuilder{instructions: instructions}
}

// Instructions returns the rendered instruction header for the given state.
// Exposed so callers can pass it as the system message separately from the
// turn transcript.
func (b *TranscriptBuilder) Instructions(state *core.TurnState) (string, error) {
	return util.RenderTemplate(b.instructions, map[string]any{
		"UserID":    state.UserID,
		"UserInput": state.UserInput,
	})
}

// Build implements Builder.
func (b *TranscriptBuilder) Build(state *core.TurnState, tools []model.ToolDefinition) (string, error) {
	var sb strings.Builder

	if len(state.MemoryContext) > 0 {
		sb.WriteString("Relevant context from previous interactions:\n")
		for _, frag := range state.MemoryContext {
			sb.WriteString("- ")
			sb.WriteString(frag.Content)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("User: ")
	sb.WriteString(state.UserInput)
	sb.WriteString("\n")

	if len(state.History) > 0 {
		sb.WriteString("\nSteps taken so far:\n")
		for i, step := range state.History {
			switch d := step.Decision.(type) {
			case core.ToolCall:
				args, err := json.Marshal(d.Args)
				if err != nil {
					return "", fmt.Errorf("marshal tool args: %w", err)
				}
				fmt.Fprintf(&sb, "%d. called %s(%s)", i+1, d.Name, args)
				if step.Result != nil {
					if step.Result.OK {
						fmt.Fprintf(&sb, " -> %s\n", step.Result.Output)
					} else {
						fmt.Fprintf(&sb, " -> error: %s\n", step.Result.Err)
					}
				} else {
					sb.WriteString("\n")
				}
			case core.FinalAnswer:
				fmt.Fprintf(&sb, "%d. answered: %s\n", i+1, d.Text)
			}
		}
	}

	if len(tools) > 0 {
		sb.WriteString("\nAvailable tools: ")
		names := make([]string, len(tools))
		for i, t := range tools {
			names[i] = t.Name
		}
		sb.WriteString(strings.Join(names, ", "))
		sb.WriteString("\n")
	}

	return sb.String(), nil
}
