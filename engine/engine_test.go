package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solenelabs/aria/core"
	"github.com/solenelabs/aria/memory"
	"github.com/solenelabs/aria/model"
	"github.com/solenelabs/aria/tool"
)

// selection is one scripted Select outcome.
type selection struct {
	decision core.Decision
	err      error
}

// scriptedSelector replays a fixed decision script and records everything the
// loop hands it, so tests can assert on the turn state without reaching into
// the engine.
type scriptedSelector struct {
	mu          sync.Mutex
	script      []selection
	forceText   string
	forceErr    error
	selectCalls int
	forceCalls  int
	lastState   *core.TurnState
	seenTools   [][]model.ToolDefinition
}

func (s *scriptedSelector) Select(ctx context.Context, state *core.TurnState, tools []model.ToolDefinition) (core.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectCalls++
	s.lastState = state
	s.seenTools = append(s.seenTools, tools)

	if len(s.script) == 0 {
		return core.FinalAnswer{Text: "script exhausted"}, nil
	}
	next := s.script[0]
	s.script = s.script[1:]
	return next.decision, next.err
}

func (s *scriptedSelector) ForceFinish(ctx context.Context, state *core.TurnState) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forceCalls++
	s.lastState = state
	if s.forceErr != nil {
		return "", s.forceErr
	}
	return s.forceText, nil
}

// brokenStore fails every operation, for degradation tests.
type brokenStore struct{}

func (brokenStore) Query(ctx context.Context, userID, text string, limit int) ([]core.Fragment, error) {
	return nil, errors.New("store offline")
}

func (brokenStore) Add(ctx context.Context, userID, content string, metadata map[string]any) error {
	return errors.New("store offline")
}

func echoRegistry(t *testing.T) *tool.Registry {
	t.Helper()
	r := tool.NewRegistry(nil)
	echo := tool.NewFunctionTool(
		"echo",
		"Echo back the given text",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text": map[string]any{"type": "string"},
			},
			"required": []string{"text"},
		},
		func(_ *core.ToolContext, args map[string]any) (any, error) {
			return args["text"], nil
		},
	)
	require.NoError(t, r.Register(echo))
	return r
}

func TestRunTurn_DirectAnswer(t *testing.T) {
	sel := &scriptedSelector{script: []selection{
		{decision: core.FinalAnswer{Text: "Hi there!"}},
	}}
	eng := New(sel, tool.NewRegistry(nil))

	answer, err := eng.RunTurn(context.Background(), "user-1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "Hi there!", answer)

	assert.Equal(t, 1, sel.selectCalls)
	assert.Equal(t, 0, sel.forceCalls)

	// A direct answer consumes no budget and leaves a single history entry.
	state := sel.lastState
	require.NotNil(t, state)
	assert.Zero(t, state.Iterations)
	assert.Len(t, state.History, 1)
	assert.True(t, state.Finished())
}

func TestRunTurn_ToolThenAnswer(t *testing.T) {
	sel := &scriptedSelector{script: []selection{
		{decision: core.ToolCall{Name: "echo", Args: map[string]any{"text": "ping"}}},
		{decision: core.FinalAnswer{Text: "pong"}},
	}}
	eng := New(sel, echoRegistry(t))

	answer, err := eng.RunTurn(context.Background(), "user-1", "say ping")
	require.NoError(t, err)
	assert.Equal(t, "pong", answer)

	state := sel.lastState
	assert.Equal(t, 1, state.Iterations)
	require.Len(t, state.History, 2)

	first := state.History[0]
	require.NotNil(t, first.Result)
	assert.True(t, first.Result.OK)
	assert.Equal(t, "ping", first.Result.Output)
	assert.Nil(t, state.History[1].Result)
}

func TestRunTurn_UnknownToolContinues(t *testing.T) {
	sel := &scriptedSelector{script: []selection{
		{decision: core.ToolCall{Name: "does_not_exist"}},
		{decision: core.FinalAnswer{Text: "recovered"}},
	}}
	eng := New(sel, echoRegistry(t))

	answer, err := eng.RunTurn(context.Background(), "user-1", "do something")
	require.NoError(t, err)
	assert.Equal(t, "recovered", answer)

	first := sel.lastState.History[0]
	require.NotNil(t, first.Result)
	assert.False(t, first.Result.OK)
	assert.Contains(t, first.Result.Err, "unknown tool")
}

func TestRunTurn_SelectFailureWastesIteration(t *testing.T) {
	sel := &scriptedSelector{script: []selection{
		{err: errors.New("selector: empty response")},
		{decision: core.FinalAnswer{Text: "second try"}},
	}}
	eng := New(sel, tool.NewRegistry(nil))

	answer, err := eng.RunTurn(context.Background(), "user-1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "second try", answer)

	// The failed pass burned budget but left no history entry.
	state := sel.lastState
	assert.Equal(t, 1, state.Iterations)
	assert.Len(t, state.History, 1)
}

func TestRunTurn_LoopLimitForcesFinish(t *testing.T) {
	sel := &scriptedSelector{
		script: []selection{
			{decision: core.ToolCall{Name: "echo", Args: map[string]any{"text": "1"}}},
			{decision: core.ToolCall{Name: "echo", Args: map[string]any{"text": "2"}}},
			{decision: core.ToolCall{Name: "echo", Args: map[string]any{"text": "never reached"}}},
		},
		forceText: "Here's where things stand.",
	}
	eng := New(sel, echoRegistry(t), func(o *Options) {
		o.Config.LoopLimit = 2
	})

	answer, err := eng.RunTurn(context.Background(), "user-1", "keep going")
	require.NoError(t, err)
	assert.Equal(t, "Here's where things stand.", answer)

	assert.Equal(t, 2, sel.selectCalls)
	assert.Equal(t, 1, sel.forceCalls)

	// Two tool steps plus the forced final answer; the turn still terminates
	// in a well-formed state.
	state := sel.lastState
	assert.Equal(t, 2, state.Iterations)
	require.Len(t, state.History, 3)
	assert.True(t, state.Finished())
}

func TestRunTurn_LoopLimitWithFailingTool(t *testing.T) {
	r := tool.NewRegistry(nil)
	flaky := tool.NewFunctionTool(
		"flaky",
		"always fails",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(_ *core.ToolContext, _ map[string]any) (any, error) {
			return nil, errors.New("backend unavailable")
		},
	)
	require.NoError(t, r.Register(flaky))

	sel := &scriptedSelector{
		script: []selection{
			{decision: core.ToolCall{Name: "flaky"}},
			{decision: core.ToolCall{Name: "flaky"}},
		},
		forceText: "That service seems to be down right now.",
	}
	eng := New(sel, r, func(o *Options) {
		o.Config.LoopLimit = 2
	})

	answer, err := eng.RunTurn(context.Background(), "user-1", "try it")
	require.NoError(t, err)
	assert.Equal(t, "That service seems to be down right now.", answer)
	assert.Equal(t, 1, sel.forceCalls)

	state := sel.lastState
	require.Len(t, state.History, 3)
	for _, step := range state.History[:2] {
		require.NotNil(t, step.Result)
		assert.False(t, step.Result.OK)
		assert.Contains(t, step.Result.Err, "backend unavailable")
	}
}

func TestRunTurn_PersistentSelectFailure(t *testing.T) {
	sel := &scriptedSelector{
		script: []selection{
			{err: errors.New("garbage")},
			{err: errors.New("garbage")},
			{err: errors.New("garbage")},
		},
		forceText: "I couldn't make progress on that.",
	}
	eng := New(sel, tool.NewRegistry(nil), func(o *Options) {
		o.Config.LoopLimit = 3
	})

	answer, err := eng.RunTurn(context.Background(), "user-1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "I couldn't make progress on that.", answer)
	assert.Equal(t, 3, sel.selectCalls)
	assert.Equal(t, 1, sel.forceCalls)
}

func TestRunTurn_ForcedFinishFailureIsFatal(t *testing.T) {
	sel := &scriptedSelector{
		script:   []selection{{err: errors.New("garbage")}},
		forceErr: errors.New("connection reset"),
	}
	eng := New(sel, tool.NewRegistry(nil), func(o *Options) {
		o.Config.LoopLimit = 1
	})

	_, err := eng.RunTurn(context.Background(), "user-1", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forced finish failed")
}

func TestRunTurn_EmptyInput(t *testing.T) {
	sel := &scriptedSelector{}
	eng := New(sel, tool.NewRegistry(nil))

	_, err := eng.RunTurn(context.Background(), "user-1", "")
	require.Error(t, err)
	assert.Equal(t, 0, sel.selectCalls)
}

func TestRunTurn_MemorySeedsContext(t *testing.T) {
	store := memory.NewInMemoryStore()
	require.NoError(t, store.Add(context.Background(), "user-1", "prefers vegetarian food", nil))

	sel := &scriptedSelector{script: []selection{
		{decision: core.FinalAnswer{Text: "noted"}},
	}}
	eng := New(sel, tool.NewRegistry(nil), func(o *Options) {
		o.Memory = store
	})

	_, err := eng.RunTurn(context.Background(), "user-1", "vegetarian")
	require.NoError(t, err)

	require.Len(t, sel.lastState.MemoryContext, 1)
	assert.Equal(t, "prefers vegetarian food", sel.lastState.MemoryContext[0].Content)
}

func TestRunTurn_MemoryOutageDegrades(t *testing.T) {
	sel := &scriptedSelector{script: []selection{
		{decision: core.FinalAnswer{Text: "still works"}},
	}}
	eng := New(sel, tool.NewRegistry(nil), func(o *Options) {
		o.Memory = brokenStore{}
	})
	eng.recorder.backoff = time.Millisecond

	answer, err := eng.RunTurn(context.Background(), "user-1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "still works", answer)
	assert.Empty(t, sel.lastState.MemoryContext)

	// Write-back failures settle without affecting the answer.
	eng.Drain()
}

// captureLogger records log messages for assertions.
type captureLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *captureLogger) log(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

func (l *captureLogger) Debug(msg string, args ...any) { l.log(msg) }
func (l *captureLogger) Info(msg string, args ...any)  { l.log(msg) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.log(msg) }
func (l *captureLogger) Error(msg string, args ...any) { l.log(msg) }

func (l *captureLogger) has(msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.messages {
		if m == msg {
			return true
		}
	}
	return false
}

func TestRunTurn_WriteFailureIsLogged(t *testing.T) {
	logger := &captureLogger{}
	sel := &scriptedSelector{script: []selection{
		{decision: core.FinalAnswer{Text: "still fine"}},
	}}
	eng := New(sel, tool.NewRegistry(nil), func(o *Options) {
		o.Memory = brokenStore{}
		o.Logger = logger
	})
	eng.recorder.backoff = time.Millisecond // keep retry waits short

	answer, err := eng.RunTurn(context.Background(), "user-1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "still fine", answer)

	eng.Drain()
	assert.True(t, logger.has("engine.memory.write_failed"))
	assert.True(t, logger.has("engine.memory.query_failed"))
}

func TestRunTurn_Deterministic(t *testing.T) {
	script := func() []selection {
		return []selection{
			{decision: core.ToolCall{Name: "echo", Args: map[string]any{"text": "ping"}}},
			{decision: core.FinalAnswer{Text: "pong"}},
		}
	}
	reg := echoRegistry(t)

	run := func() (string, []core.Step) {
		sel := &scriptedSelector{script: script()}
		eng := New(sel, reg)
		answer, err := eng.RunTurn(context.Background(), "user-1", "say ping")
		require.NoError(t, err)
		return answer, sel.lastState.History
	}

	answerA, historyA := run()
	answerB, historyB := run()

	assert.Equal(t, answerA, answerB)
	assert.Equal(t, historyA, historyB)
}

func TestRunTurn_RecordsInteraction(t *testing.T) {
	store := memory.NewInMemoryStore()
	sel := &scriptedSelector{script: []selection{
		{decision: core.ToolCall{Name: "echo", Args: map[string]any{"text": "ping"}}},
		{decision: core.FinalAnswer{Text: "pong"}},
	}}
	eng := New(sel, echoRegistry(t), func(o *Options) {
		o.Memory = store
	})

	_, err := eng.RunTurn(context.Background(), "user-1", "say ping")
	require.NoError(t, err)
	eng.Drain()

	// One record per tool round-trip plus one for the final exchange.
	assert.Equal(t, 2, store.Len("user-1"))

	frags, err := store.Query(context.Background(), "user-1", "", 5)
	require.NoError(t, err)
	require.Len(t, frags, 2)

	kinds := []any{frags[0].Metadata["kind"], frags[1].Metadata["kind"]}
	assert.ElementsMatch(t, []any{"tool", "final"}, kinds)

	contents := frags[0].Content + frags[1].Content
	assert.Contains(t, contents, "pong")
	assert.Contains(t, contents, `echo({"text":"ping"})`)
}

func TestRunTurn_ToolTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	r := tool.NewRegistry(nil)
	slow := tool.NewFunctionTool(
		"slow",
		"blocks until released",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(_ *core.ToolContext, _ map[string]any) (any, error) {
			<-release
			return "too late", nil
		},
	)
	require.NoError(t, r.Register(slow))

	sel := &scriptedSelector{script: []selection{
		{decision: core.ToolCall{Name: "slow"}},
		{decision: core.FinalAnswer{Text: "gave up waiting"}},
	}}
	eng := New(sel, r, func(o *Options) {
		o.Config.ToolTimeout = 20 * time.Millisecond
	})

	answer, err := eng.RunTurn(context.Background(), "user-1", "run the slow one")
	require.NoError(t, err)
	assert.Equal(t, "gave up waiting", answer)

	first := sel.lastState.History[0]
	require.NotNil(t, first.Result)
	assert.False(t, first.Result.OK)
	assert.Equal(t, "timeout", first.Result.Err)
}

func TestRunTurn_CatalogueSnapshotPerTurn(t *testing.T) {
	r := tool.NewRegistry(nil)

	registering := tool.NewFunctionTool(
		"registering",
		"registers another tool mid-turn",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(_ *core.ToolContext, _ map[string]any) (any, error) {
			extra := tool.NewFunctionTool("late", "added mid-turn",
				map[string]any{"type": "object", "properties": map[string]any{}}, nil)
			return "registered", r.Register(extra)
		},
	)
	require.NoError(t, r.Register(registering))

	sel := &scriptedSelector{script: []selection{
		{decision: core.ToolCall{Name: "registering"}},
		{decision: core.FinalAnswer{Text: "done"}},
	}}
	eng := New(sel, r)

	_, err := eng.RunTurn(context.Background(), "user-1", "go")
	require.NoError(t, err)

	// Both passes of the same turn see the catalogue as of turn start.
	require.Len(t, sel.seenTools, 2)
	assert.Len(t, sel.seenTools[0], 1)
	assert.Len(t, sel.seenTools[1], 1)

	// The next turn sees the addition.
	sel.script = []selection{{decision: core.FinalAnswer{Text: "ok"}}}
	_, err = eng.RunTurn(context.Background(), "user-1", "again")
	require.NoError(t, err)
	assert.Len(t, sel.seenTools[2], 2)
}

func TestRunTurn_ConcurrentTurns(t *testing.T) {
	store := memory.NewInMemoryStore()
	reg := echoRegistry(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sel := &scriptedSelector{script: []selection{
				{decision: core.ToolCall{Name: "echo", Args: map[string]any{"text": "hi"}}},
				{decision: core.FinalAnswer{Text: "done"}},
			}}
			eng := New(sel, reg, func(o *Options) {
				o.Memory = store
			})
			answer, err := eng.RunTurn(context.Background(), "user-1", "hello")
			assert.NoError(t, err)
			assert.Equal(t, "done", answer)
			eng.Drain()
		}()
	}
	wg.Wait()
}

func TestNew_InvalidLoopLimit(t *testing.T) {
	assert.Panics(t, func() {
		New(&scriptedSelector{}, tool.NewRegistry(nil), func(o *Options) {
			o.Config.LoopLimit = 0
		})
	})
}
