package core

// Decision is the selector's structured output for one loop pass. Concrete
// decision types implement the unexported isDecision marker enabling a closed
// set, so the orchestration loop's branch over decision kinds is exhaustive.
type Decision interface{ isDecision() }

// ToolCall requests execution of a named tool with structured arguments.
type ToolCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// isDecision implements the Decision interface for ToolCall.
func (ToolCall) isDecision() {}

// FinalAnswer carries the turn's terminal natural-language response.
type FinalAnswer struct {
	Text string `json:"text"`
}

// isDecision implements the Decision interface for FinalAnswer.
func (FinalAnswer) isDecision() {}

// ToolResult is the outcome of executing a ToolCall. It is created
// synchronously within one loop iteration and never mutated afterwards.
type ToolResult struct {
	OK     bool   `json:"ok"`
	Output string `json:"output,omitempty"` // Human-readable, shown to the selector next pass
	Err    string `json:"error,omitempty"`  // Populated on failure
}

// Step is one entry of a turn's history: a decision plus, for tool calls, the
// result of executing it. Result is nil exactly when Decision is a FinalAnswer.
type Step struct {
	Decision Decision    `json:"decision"`
	Result   *ToolResult `json:"result,omitempty"`
}
