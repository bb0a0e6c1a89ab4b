package engine

import (
	"context"
	"sync"
	"time"

	"github.com/solenelabs/aria/core"
	"github.com/solenelabs/aria/logging"
)

// recordRetries is the bounded retry budget for one interaction record.
const recordRetries = 3

// recordTimeout bounds the total time spent persisting one record, including
// retries.
const recordTimeout = 10 * time.Second

// recorder issues best-effort interaction write-backs to the memory store.
// Writes are fire-and-forget from the turn's perspective: they are started in
// the order they are produced but the turn's returned text never waits on
// them. A write that exhausts its retry budget is logged and dropped.
type recorder struct {
	memory  core.MemoryStore
	logger  logging.Logger
	backoff time.Duration
	wg      sync.WaitGroup
}

func newRecorder(memory core.MemoryStore, logger logging.Logger) *recorder {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &recorder{memory: memory, logger: logger, backoff: 250 * time.Millisecond}
}

// record schedules one interaction record. kind is "tool", "final" or
// "loop-limit". The parent ctx only contributes cancellation; the write gets
// its own deadline so it can outlive the turn briefly.
func (r *recorder) record(ctx context.Context, state *core.TurnState, kind, content string) {
	if r.memory == nil {
		return
	}

	metadata := map[string]any{
		"kind":      kind,
		"turn_id":   state.TurnID,
		"iteration": state.Iterations,
	}
	userID := state.UserID

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
		defer cancel()

		var err error
		for attempt := 1; attempt <= recordRetries; attempt++ {
			if err = r.memory.Add(wctx, userID, content, metadata); err == nil {
				return
			}
			if wctx.Err() != nil {
				break
			}
			time.Sleep(r.backoff * time.Duration(attempt))
		}

		r.logger.Error("engine.memory.write_failed",
			"user_id", userID,
			"turn_id", state.TurnID,
			"kind", kind,
			"error", err.Error(),
		)
	}()
}

// wait blocks until every scheduled write has settled.
func (r *recorder) wait() { r.wg.Wait() }
