package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/solenelabs/aria/core"
	"github.com/solenelabs/aria/logging"
	"github.com/solenelabs/aria/model"
	"github.com/solenelabs/aria/tool"
)

// ActionSelector is the decision stage contract the loop depends on.
// selector.Selector is the production implementation; tests supply scripted
// fakes.
type ActionSelector interface {
	// Select produces exactly one Decision for the current state. Unparseable
	// model output is reported as *selector.ParseError and costs one
	// iteration of the budget.
	Select(ctx context.Context, state *core.TurnState, tools []model.ToolDefinition) (core.Decision, error)

	// ForceFinish returns closing text when the budget is exhausted. It must
	// never yield a tool call; its failure is fatal for the turn.
	ForceFinish(ctx context.Context, state *core.TurnState) (string, error)
}

// Config defines tuning parameters for the loop's termination and resource
// controls.
type Config struct {
	// LoopLimit is the iteration budget per turn. Must be greater than zero;
	// it is the only built-in cancellation mechanism.
	LoopLimit int

	// MemoryK caps the fragments retrieved at turn start.
	MemoryK int

	// SelectTimeout bounds each completion-service call.
	SelectTimeout time.Duration

	// ToolTimeout bounds each tool invocation. Expiry surfaces as a failed
	// ToolResult, not a turn failure.
	ToolTimeout time.Duration
}

// DefaultConfig provides safe defaults for local development.
var DefaultConfig = Config{
	LoopLimit:     5,
	MemoryK:       5,
	SelectTimeout: 60 * time.Second,
	ToolTimeout:   30 * time.Second,
}

// Options configures an Engine instance using the functional options pattern.
type Options struct {
	// Config contains loop termination and timeout parameters.
	Config Config

	// Memory is the long-term memory store. Nil disables memory entirely
	// (empty context, no write-back).
	Memory core.MemoryStore

	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// Engine is the orchestration loop. One Engine serves many concurrent turns;
// each RunTurn owns an independent TurnState.
type Engine struct {
	cfg      Config
	selector ActionSelector
	registry *tool.Registry
	memory   core.MemoryStore
	logger   logging.Logger
	recorder *recorder
}

// New creates an Engine around a selector and tool registry.
func New(sel ActionSelector, registry *tool.Registry, optFns ...func(o *Options)) *Engine {
	opts := Options{
		Config: DefaultConfig,
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Config.LoopLimit <= 0 {
		panic(fmt.Sprintf("engine: LoopLimit must be greater than zero, got %d", opts.Config.LoopLimit))
	}

	return &Engine{
		cfg:      opts.Config,
		selector: sel,
		registry: registry,
		memory:   opts.Memory,
		logger:   opts.Logger,
		recorder: newRecorder(opts.Memory, opts.Logger),
	}
}

// RunTurn processes one user utterance to completion and returns the final
// answer text. It never returns an error for selector parse failures, tool
// failures or memory outages; only caller contract violations (empty input)
// and forced-finish failure propagate.
func (e *Engine) RunTurn(ctx context.Context, userID, userInput string) (string, error) {
	if userInput == "" {
		return "", errors.New("engine: user input must not be empty")
	}

	state := core.NewTurnState(userID, userInput)
	e.logger.Info("engine.turn.start", "turn_id", state.TurnID, "user_id", userID)

	state.SeedMemory(e.queryMemory(ctx, userID, userInput))

	// Snapshot the catalogue once per turn: tools registered mid-turn only
	// affect subsequent turns.
	defs := e.registry.Definitions()

	for state.Iterations < e.cfg.LoopLimit {
		decision, err := e.selectDecision(ctx, state, defs)
		if err != nil {
			// One wasted iteration; no history entry. The budget still
			// shrinks so a persistently confused model cannot loop forever.
			e.logger.Warn("engine.select.failed",
				"turn_id", state.TurnID,
				"iteration", state.Iterations,
				"error", err.Error(),
			)
			state.Iterations++
			continue
		}

		switch d := decision.(type) {
		case core.FinalAnswer:
			state.AppendStep(core.Step{Decision: d})
			e.recorder.record(ctx, state, "final", fmt.Sprintf("user: %s\nassistant: %s", userInput, d.Text))
			e.logger.Info("engine.turn.done",
				"turn_id", state.TurnID,
				"iterations", state.Iterations,
				"steps", len(state.History),
			)
			return d.Text, nil

		case core.ToolCall:
			result := e.runTool(ctx, state, d)
			state.AppendStep(core.Step{Decision: d, Result: &result})
			e.recorder.record(ctx, state, "tool", describeToolStep(d, result))
			state.Iterations++

		default:
			// The Decision set is sealed; a new variant is a programming error.
			return "", fmt.Errorf("engine: unknown decision type %T", decision)
		}
	}

	return e.forceFinish(ctx, state)
}

// queryMemory performs the one-time INIT retrieval. Failures degrade to an
// empty context: memory is an optimization, not a correctness requirement.
func (e *Engine) queryMemory(ctx context.Context, userID, userInput string) []core.Fragment {
	if e.memory == nil || e.cfg.MemoryK <= 0 {
		return nil
	}

	qctx, cancel := context.WithTimeout(ctx, e.cfg.SelectTimeout)
	defer cancel()

	fragments, err := e.memory.Query(qctx, userID, userInput, e.cfg.MemoryK)
	if err != nil {
		e.logger.Warn("engine.memory.query_failed", "user_id", userID, "error", err.Error())
		return nil
	}
	return fragments
}

// selectDecision asks the selector for one Decision under the per-call deadline.
func (e *Engine) selectDecision(ctx context.Context, state *core.TurnState, defs []model.ToolDefinition) (core.Decision, error) {
	sctx, cancel := context.WithTimeout(ctx, e.cfg.SelectTimeout)
	defer cancel()
	return e.selector.Select(sctx, state, defs)
}

// runTool executes one tool call via the registry. All failure modes
// (unknown tool, bad arguments, tool error, panic, timeout) come back as a
// failed ToolResult the selector sees next pass.
func (e *Engine) runTool(ctx context.Context, state *core.TurnState, call core.ToolCall) core.ToolResult {
	tctx, cancel := context.WithTimeout(ctx, e.cfg.ToolTimeout)
	defer cancel()

	toolCtx := core.NewToolContext(tctx, state.TurnID, state.UserID, core.NewID(), e.memory, e.logger)

	return e.registry.Run(toolCtx, call.Name, call.Args, func(name string, result core.ToolResult) {
		e.logger.Info("engine.tool.observed",
			"turn_id", state.TurnID,
			"tool", name,
			"ok", result.OK,
		)
	})
}

// forceFinish is the guaranteed-termination path. Its own failure is the
// fatal class and propagates to the caller.
func (e *Engine) forceFinish(ctx context.Context, state *core.TurnState) (string, error) {
	e.logger.Warn("engine.turn.loop_limit",
		"turn_id", state.TurnID,
		"iterations", state.Iterations,
	)

	fctx, cancel := context.WithTimeout(ctx, e.cfg.SelectTimeout)
	defer cancel()

	text, err := e.selector.ForceFinish(fctx, state)
	if err != nil {
		return "", fmt.Errorf("engine: forced finish failed: %w", err)
	}

	state.AppendStep(core.Step{Decision: core.FinalAnswer{Text: text}})
	e.recorder.record(ctx, state, "loop-limit", fmt.Sprintf("user: %s\nassistant: %s", state.UserInput, text))
	return text, nil
}

// Drain blocks until all pending memory write-backs have settled. Callers use
// it for graceful shutdown; the returned answer of a turn never waits on it.
func (e *Engine) Drain() { e.recorder.wait() }

// describeToolStep renders one tool round-trip as an interaction record.
// json.Marshal sorts map keys, keeping the record deterministic.
func describeToolStep(call core.ToolCall, result core.ToolResult) string {
	args, err := json.Marshal(call.Args)
	if err != nil {
		args = []byte("{}")
	}
	if result.OK {
		return fmt.Sprintf("tool %s(%s) -> %s", call.Name, args, result.Output)
	}
	return fmt.Sprintf("tool %s(%s) -> error: %s", call.Name, args, result.Err)
}
