package selector

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/solenelabs/aria/core"
	"github.com/solenelabs/aria/model"
)

// ParseError reports that a model response could not be interpreted as a
// Decision. The orchestration loop treats it as one wasted iteration and
// retries; it is never surfaced to the caller of a turn.
type ParseError struct {
	Raw    string // Offending raw model output (may be truncated)
	Reason string
	Cause  error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("selector: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("selector: %s", e.Reason)
}

// Unwrap returns the underlying cause, if any.
func (e *ParseError) Unwrap() error { return e.Cause }

// ParseDecision turns a raw model response into exactly one Decision. It is a
// pure function so the loop's retry policy is driven by the explicit error
// value rather than exception-style control flow.
//
// Precedence:
//  1. Provider-native structured tool calls (first call wins; the loop is
//     strictly sequential and executes one tool per pass)
//  2. A tool-call JSON object embedded in the response text
//  3. Non-empty plain text as the final answer
//
// Malformed tool-call arguments are repaired to an empty argument map rather
// than failing the pass; schema validation in the registry reports the
// missing arguments as a failed ToolResult the selector sees next pass.
func ParseDecision(resp *model.Response) (core.Decision, error) {
	if resp == nil {
		return nil, &ParseError{Reason: "nil response"}
	}

	if len(resp.ToolCalls) > 0 {
		tc := resp.ToolCalls[0]
		if tc.Name == "" {
			return nil, &ParseError{Raw: truncate(resp.Text), Reason: "tool call without a name"}
		}
		return core.ToolCall{Name: tc.Name, Args: parseArgs(tc.Arguments)}, nil
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return nil, &ParseError{Reason: "empty response"}
	}

	if tc, ok := extractToolCall(text); ok {
		return tc, nil
	}

	return core.FinalAnswer{Text: text}, nil
}

// parseArgs decodes a JSON argument string, degrading to an empty map on
// malformed input.
func parseArgs(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		return map[string]any{}
	}
	return args
}

// extractToolCall scans response text for an embedded tool-call JSON object of
// the form {"tool_call": {"name": "...", "args": {...}}}. Models without
// native function calling emit this shape when instructed to, so it is the
// fallback wire format.
func extractToolCall(text string) (core.ToolCall, bool) {
	start := strings.Index(text, `{"tool_call"`)
	if start == -1 {
		return core.ToolCall{}, false
	}

	end := findMatchingBrace(text, start)
	if end == start {
		return core.ToolCall{}, false
	}

	var wrapper struct {
		ToolCall struct {
			Name string         `json:"name"`
			Args map[string]any `json:"args"`
		} `json:"tool_call"`
	}
	if err := json.Unmarshal([]byte(text[start:end]), &wrapper); err != nil {
		return core.ToolCall{}, false
	}
	if wrapper.ToolCall.Name == "" {
		return core.ToolCall{}, false
	}

	args := wrapper.ToolCall.Args
	if args == nil {
		args = map[string]any{}
	}
	return core.ToolCall{Name: wrapper.ToolCall.Name, Args: args}, true
}

// findMatchingBrace returns the index one past the brace matching the opening
// brace at start, honoring JSON string quoting. Returns start if unbalanced.
func findMatchingBrace(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return i + 1
				}
			}
		}
	}
	return start
}

// truncate bounds raw output captured in errors to keep logs readable.
func truncate(s string) string {
	const limit = 200
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
