// Package core provides the foundational domain types and interfaces used by
// Aria. It defines the core abstractions for:
//
//   - TurnState (the append-only record of a single assistant turn)
//   - Decision (the selector's structured output: tool call or final answer)
//   - ToolResult / Step (outcomes folded back into the turn history)
//   - ToolContext (scoped execution surface handed to tool implementations)
//   - MemoryStore (pluggable long-term memory recall and write-back)
//
// The package intentionally keeps implementation concerns (persistence, loop
// orchestration, concrete tools, model providers) out of scope, exposing small
// interfaces to enable custom backends and extensions.
package core
