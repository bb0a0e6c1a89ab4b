package core

import "context"

// Fragment represents a retrieved memory item with a relevance score and
// arbitrary metadata.
type Fragment struct {
	ID       string
	Content  string
	Score    float64
	Metadata map[string]any
}

// MemoryStore defines persistence + retrieval (search) for long-term memory
// fragments keyed by user. Implementations can back search with embeddings,
// keywords or any heuristic, and must be safe for concurrent use by multiple
// simultaneous turns.
//
// Both operations may fail; callers in the orchestration loop degrade
// gracefully (a failed Query yields an empty context, a failed Add never
// changes the turn's returned text).
type MemoryStore interface {
	// Query returns up to limit fragments relevant to text for the user.
	Query(ctx context.Context, userID, text string, limit int) ([]Fragment, error)

	// Add appends a new interaction record to the user's memory.
	Add(ctx context.Context, userID, content string, metadata map[string]any) error
}
