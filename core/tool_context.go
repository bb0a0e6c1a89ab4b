package core

import (
	"context"
	"fmt"

	"github.com/solenelabs/aria/logging"
)

// ToolContext provides a constrained, auditable surface for tool
// implementations invoked by the registry. It carries the invocation context,
// turn correlation identifiers and a logger, plus read access to the user's
// long-term memory.
type ToolContext struct {
	ctx    context.Context
	turnID string
	userID string
	callID string
	memory MemoryStore
	logger logging.Logger
}

// NewToolContext constructs a tool context bound to one tool invocation
// within one turn. A nil logger is substituted with a NoOpLogger.
func NewToolContext(ctx context.Context, turnID, userID, callID string, memory MemoryStore, logger logging.Logger) *ToolContext {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &ToolContext{ctx: ctx, turnID: turnID, userID: userID, callID: callID, memory: memory, logger: logger}
}

// Context returns the context associated with the tool invocation. It carries
// the per-call deadline imposed by the orchestration loop.
func (tc *ToolContext) Context() context.Context { return tc.ctx }

// TurnID returns the turn identifier associated with the tool invocation.
func (tc *ToolContext) TurnID() string { return tc.turnID }

// UserID returns the user on whose behalf the tool is executing.
func (tc *ToolContext) UserID() string { return tc.userID }

// CallID returns the unique identifier of this tool invocation.
func (tc *ToolContext) CallID() string { return tc.callID }

// Logger returns the logger associated with the tool invocation.
func (tc *ToolContext) Logger() logging.Logger { return tc.logger }

// SearchMemory performs a recall query against the configured MemoryStore.
func (tc *ToolContext) SearchMemory(query string, limit int) ([]Fragment, error) {
	if tc.memory == nil {
		return nil, fmt.Errorf("memory store not configured")
	}
	return tc.memory.Query(tc.ctx, tc.userID, query, limit)
}

// StoreMemory appends new content to the user's memory store with metadata.
func (tc *ToolContext) StoreMemory(content string, metadata map[string]any) error {
	if tc.memory == nil {
		return fmt.Errorf("memory store not configured")
	}
	return tc.memory.Add(tc.ctx, tc.userID, content, metadata)
}

// Validate performs a structural sanity check of the context. It guards
// against programmer errors such as reusing a context across turns.
func (tc *ToolContext) Validate() error {
	if tc.ctx == nil || tc.turnID == "" || tc.callID == "" {
		return fmt.Errorf("invalid ToolContext")
	}
	return nil
}
