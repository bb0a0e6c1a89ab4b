package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/solenelabs/aria/core"
)

// record is the internal representation persisted by InMemoryStore. It mirrors
// the core.Fragment shape (ID, content, metadata) without a score field since
// scoring is trivial here.
type record struct {
	id       string
	content  string
	metadata map[string]any
}

// InMemoryStore is a naive process-local MemoryStore keyed by user. Records
// are append-only; Query performs a case-insensitive substring scan from the
// most recent record backwards, assigning a constant score of 1.0 to every
// hit. Suitable for tests and demos; swap for a vector DB or semantic index
// for production retrieval.
//
// Concurrency: protected by RWMutex, safe for use by concurrent turns.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string][]record // userID -> append-ordered records
}

// NewInMemoryStore creates an empty in-memory memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string][]record)}
}

// Query implements core.MemoryStore. Results are ordered newest first and an
// empty query matches everything up to limit.
func (m *InMemoryStore) Query(ctx context.Context, userID, text string, limit int) ([]core.Fragment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	records := m.records[userID]
	needle := strings.ToLower(text)

	results := make([]core.Fragment, 0, limit)
	for i := len(records) - 1; i >= 0 && len(results) < limit; i-- {
		rec := records[i]
		if needle != "" && !strings.Contains(strings.ToLower(rec.content), needle) {
			continue
		}
		md := make(map[string]any, len(rec.metadata))
		for k, v := range rec.metadata {
			md[k] = v
		}
		results = append(results, core.Fragment{ID: rec.id, Content: rec.content, Score: 1.0, Metadata: md})
	}
	return results, nil
}

// Add implements core.MemoryStore, appending a new record for the user.
func (m *InMemoryStore) Add(ctx context.Context, userID, content string, metadata map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	md := make(map[string]any, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	m.records[userID] = append(m.records[userID], record{id: core.NewID(), content: content, metadata: md})
	return nil
}

// Len reports the number of records stored for a user. Test helper.
func (m *InMemoryStore) Len(userID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records[userID])
}
