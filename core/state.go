package core

import "github.com/google/uuid"

// TurnState is the mutable-by-append record scoped to exactly one turn. It is
// exclusively owned by a single RunTurn invocation and is never shared across
// concurrent turns, so it carries no locking.
//
// Contract:
//   - UserID and UserInput are immutable for the lifetime of the turn
//   - MemoryContext is set once at turn start and never mutated afterwards
//   - History is append-only, totally ordered by iteration
//   - Iterations increments exactly once per loop pass
type TurnState struct {
	TurnID        string     `json:"turn_id"`
	UserID        string     `json:"user_id"`
	UserInput     string     `json:"user_input"`
	MemoryContext []Fragment `json:"memory_context,omitempty"`
	History       []Step     `json:"history"`
	Iterations    int        `json:"iterations"`
}

// NewTurnState creates the state record for a fresh turn.
func NewTurnState(userID, userInput string) *TurnState {
	return &TurnState{
		TurnID:    NewID(),
		UserID:    userID,
		UserInput: userInput,
	}
}

// SeedMemory installs the retrieved memory fragments. It must be called at
// most once, before the first selection pass.
func (s *TurnState) SeedMemory(fragments []Fragment) { s.MemoryContext = fragments }

// AppendStep appends a completed step to the turn history.
func (s *TurnState) AppendStep(step Step) { s.History = append(s.History, step) }

// LastStep returns the most recent history entry, or nil for an empty history.
func (s *TurnState) LastStep() *Step {
	if len(s.History) == 0 {
		return nil
	}
	return &s.History[len(s.History)-1]
}

// Finished reports whether the last history entry is a terminal FinalAnswer.
func (s *TurnState) Finished() bool {
	last := s.LastStep()
	if last == nil {
		return false
	}
	_, ok := last.Decision.(FinalAnswer)
	return ok
}

// NewID generates a new unique identifier for turns and memory records.
func NewID() string { return uuid.NewString() }
