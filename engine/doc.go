// Package engine implements the orchestration loop at the heart of Aria: the
// state machine that owns a single turn's lifecycle.
//
// A turn moves through the states
//
//	INIT -> SELECTING -> (EXECUTING_TOOL -> SELECTING)* -> DONE
//
// with an escape edge SELECTING -> FORCED_FINISH -> DONE taken when the
// iteration budget is exhausted. INIT performs the one-time memory query.
//
// # Responsibilities
//
//   - Seed TurnState from the user utterance and retrieved memory fragments
//     (a memory failure degrades to an empty context, it never aborts a turn)
//   - Repeatedly ask the action selector for a Decision under a per-call
//     deadline
//   - Execute tool decisions via the tool registry, folding results back into
//     the turn history; unknown tools and tool failures keep the loop alive
//   - Write interaction records to the memory store best-effort (bounded
//     retries, logged on failure, never awaited by the returned answer)
//   - Terminate on a final answer or force a closing answer once the budget
//     is spent, so the caller always receives natural-language text
//
// RunTurn returns an error only for the fatal class: caller contract
// violations and failure of the forced-finish path itself. Selector parse
// errors, tool failures and memory outages are absorbed into state and
// surfaced to the next selection pass, never to the caller.
//
// # Concurrency
//
// The loop is strictly sequential within a turn: one selector call or one
// tool call at a time. Turns themselves may run concurrently; each owns an
// independent TurnState while the registry and memory store are shared,
// reentrant collaborators.
package engine
