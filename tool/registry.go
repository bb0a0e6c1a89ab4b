package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/solenelabs/aria/core"
	"github.com/solenelabs/aria/logging"
	"github.com/solenelabs/aria/model"
)

// Observer is a per-invocation completion callback supplied by the caller of
// Run. Observers are notified after a tool finishes, fire-and-forget: they run
// on their own goroutine, panics are isolated and they can never block or fail
// the main execution path.
type Observer func(name string, result core.ToolResult)

// Registry holds the name -> tool mapping shared by all turns. It validates
// arguments before invocation, absorbs every tool failure (errors, panics,
// deadline expiry) into a failed ToolResult and never lets an exception escape
// to the orchestration loop.
//
// Registration is expected at process start but is safe at any time; a tool
// registered mid-turn only becomes visible to subsequent turns because the
// loop snapshots Definitions once per turn.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	logger logging.Logger
}

// NewRegistry creates an empty registry. A nil logger disables logging.
func NewRegistry(logger logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Registry{tools: make(map[string]Tool), logger: logger}
}

// Register adds a tool under its name. Registering a second tool with the same
// name is a configuration bug and returns an error.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		return fmt.Errorf("tool %q already registered", t.Name())
	}
	r.tools[t.Name()] = t
	r.logger.Debug("tool.registered", "tool", t.Name())
	return nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns the machine-readable catalogue of all registered tools,
// sorted by name. The returned slice is a snapshot; later registrations do not
// affect it.
func (r *Registry) Definitions() []model.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]model.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, model.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Run executes the named tool with the given arguments and reports the outcome
// as a ToolResult. It never returns an error and never panics:
//
//   - unknown name        -> ToolResult{OK:false, Err:"unknown tool ..."}
//   - validation failure  -> ToolResult{OK:false, Err:"invalid arguments: ..."}
//   - tool error / panic  -> ToolResult{OK:false, Err:<message>}
//   - deadline expiry     -> ToolResult{OK:false, Err:"timeout"}
//
// On deadline expiry the underlying callable is not interrupted; it runs to
// completion in the background. Side effects of such calls are therefore
// at-least-once, which tools are expected to tolerate.
//
// Run panics only on a programming-contract violation (invalid ToolContext),
// which callers treat as fatal.
func (r *Registry) Run(toolCtx *core.ToolContext, name string, args map[string]any, observers ...Observer) core.ToolResult {
	if err := toolCtx.Validate(); err != nil {
		panic(fmt.Sprintf("tool: registry misuse: %v", err))
	}

	result := r.execute(toolCtx, name, args)

	for _, obs := range observers {
		go func(obs Observer) {
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Error("tool.observer.panic", "tool", name, "recover", rec)
				}
			}()
			obs(name, result)
		}(obs)
	}

	return result
}

func (r *Registry) execute(toolCtx *core.ToolContext, name string, args map[string]any) core.ToolResult {
	impl, ok := r.Get(name)
	if !ok {
		r.logger.Warn("tool.run.unknown", "tool", name)
		return core.ToolResult{OK: false, Err: fmt.Sprintf("unknown tool %q", name)}
	}

	if args == nil {
		args = map[string]any{}
	}

	start := time.Now()

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("tool.run.panic", "tool", name, "recover", rec, "stack", string(debug.Stack()))
				done <- outcome{err: fmt.Errorf("tool %q panicked: %v", name, rec)}
			}
		}()
		result, err := impl.Call(toolCtx, args)
		done <- outcome{result: result, err: err}
	}()

	select {
	case <-toolCtx.Context().Done():
		// No mid-call cancellation: the callable finishes on its own goroutine.
		r.logger.Warn("tool.run.timeout", "tool", name, "duration_ms", time.Since(start).Milliseconds())
		if toolCtx.Context().Err() == context.DeadlineExceeded {
			return core.ToolResult{OK: false, Err: "timeout"}
		}
		return core.ToolResult{OK: false, Err: toolCtx.Context().Err().Error()}
	case out := <-done:
		if out.err != nil {
			if _, ok := out.err.(*ValidationError); ok {
				return core.ToolResult{OK: false, Err: fmt.Sprintf("invalid arguments: %v", out.err)}
			}
			if toolErr, ok := out.err.(*ToolError); ok && toolErr.Code == "VALIDATION_ERROR" {
				return core.ToolResult{OK: false, Err: fmt.Sprintf("invalid arguments: %s", toolErr.Message)}
			}
			return core.ToolResult{OK: false, Err: out.err.Error()}
		}
		r.logger.Info("tool.run.success", "tool", name, "duration_ms", time.Since(start).Milliseconds())
		return core.ToolResult{OK: true, Output: stringify(out.result)}
	}
}

// stringify renders a tool's return value as the human-readable output shown
// to the selector on the next pass.
func stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
		return fmt.Sprintf("%v", v)
	}
}
