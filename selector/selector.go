// Package selector implements the action selection stage of the agent loop:
// given the current turn state and the tool catalogue it produces exactly one
// structured Decision, either a tool call or the final answer. Internally it
// assembles a prompt via the prompt.Builder collaborator, calls the configured
// completion service and parses the raw output, failing explicitly with a
// *ParseError on anything it cannot interpret.
package selector

import (
	"context"
	"strings"
	"time"

	"github.com/solenelabs/aria/core"
	"github.com/solenelabs/aria/logging"
	"github.com/solenelabs/aria/model"
	"github.com/solenelabs/aria/prompt"
)

// wrapUpFallback is returned by ForceFinish when the model refuses to produce
// usable closing text. It guarantees the caller always receives language.
const wrapUpFallback = "I wasn't able to finish that completely. Here's where things stand: " +
	"I ran out of steps for this request. Please try rephrasing or asking again."

// forceFinishInstruction is appended to the prompt on the forced-finish path.
const forceFinishInstruction = "\nYou have used all available steps. Do not request any more tools. " +
	"Summarize what happened and give the user your best final answer now."

// instructionsProvider is implemented by builders that render a separate
// system-message header (prompt.TranscriptBuilder does).
type instructionsProvider interface {
	Instructions(state *core.TurnState) (string, error)
}

// Options configures a Selector.
type Options struct {
	// Builder assembles the per-pass prompt. Defaults to a TranscriptBuilder
	// with the default instructions.
	Builder prompt.Builder
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// Selector drives one completion per loop pass and converts the raw output
// into a Decision. It holds no per-turn state and is safe for concurrent use
// by multiple simultaneous turns.
type Selector struct {
	model   model.Model
	builder prompt.Builder
	logger  logging.Logger
}

// New creates a Selector for the given completion service.
func New(m model.Model, optFns ...func(o *Options)) *Selector {
	opts := Options{
		Builder: prompt.NewTranscriptBuilder(""),
		Logger:  logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Selector{model: m, builder: opts.Builder, logger: opts.Logger}
}

// Select produces exactly one Decision for the current state. Completion
// service failures (network, rate limit, deadline) and unparseable output are
// reported as *ParseError so the loop can retry within its budget; Select
// never panics and never returns any other error type.
func (s *Selector) Select(ctx context.Context, state *core.TurnState, tools []model.ToolDefinition) (core.Decision, error) {
	resp, err := s.complete(ctx, state, tools)
	if err != nil {
		return nil, err
	}

	decision, err := ParseDecision(resp)
	if err != nil {
		s.logger.Warn("selector.parse.failed", "turn_id", state.TurnID, "error", err.Error())
		return nil, err
	}
	return decision, nil
}

// ForceFinish is the distinguished wrap-up path invoked when the iteration
// budget is exhausted. It never yields a tool call: tool-call framing in the
// response is discarded in favor of any accompanying text, then a fixed
// wrap-up string. A completion failure here is the fatal class and propagates.
func (s *Selector) ForceFinish(ctx context.Context, state *core.TurnState) (string, error) {
	resp, err := s.complete(ctx, state, nil, forceFinishInstruction)
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(resp.Text)
	if tc, ok := extractToolCall(text); ok {
		s.logger.Warn("selector.force_finish.tool_framing", "turn_id", state.TurnID, "tool", tc.Name)
		text = ""
	}
	if len(resp.ToolCalls) > 0 {
		s.logger.Warn("selector.force_finish.tool_framing", "turn_id", state.TurnID, "tool", resp.ToolCalls[0].Name)
	}
	if text == "" {
		return wrapUpFallback, nil
	}
	return text, nil
}

// complete assembles the prompt and performs one model call. Transport and
// build failures become *ParseError values; the distinction the loop needs is
// "retryable selection failure", not the transport detail.
func (s *Selector) complete(ctx context.Context, state *core.TurnState, tools []model.ToolDefinition, extra ...string) (*model.Response, error) {
	text, err := s.builder.Build(state, tools)
	if err != nil {
		return nil, &ParseError{Reason: "prompt build failed", Cause: err}
	}
	for _, e := range extra {
		text += e
	}

	req := model.Request{Prompt: text, Tools: tools}
	if ip, ok := s.builder.(instructionsProvider); ok {
		instructions, err := ip.Instructions(state)
		if err != nil {
			return nil, &ParseError{Reason: "instructions render failed", Cause: err}
		}
		req.Instructions = instructions
	}

	start := time.Now()
	resp, err := s.model.Complete(ctx, req)
	if err != nil {
		s.logger.Warn("selector.complete.failed", "turn_id", state.TurnID, "error", err.Error())
		return nil, &ParseError{Reason: "completion service failed", Cause: err}
	}

	s.logger.Debug("selector.complete.ok",
		"turn_id", state.TurnID,
		"model", s.model.Info().Name,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return resp, nil
}
