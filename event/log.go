package event

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrBackfillExpired means events after the requested sequence were
	// already pruned; the caller should fetch current state and
	// resubscribe from the latest sequence.
	ErrBackfillExpired = errors.New("event: backfill window expired")
	// ErrBusClosed means the broadcaster has shut down.
	ErrBusClosed = errors.New("event: bus closed")
	// ErrSlowSubscriber means a subscription fell too far behind and was
	// dropped rather than stalling the engine.
	ErrSlowSubscriber = errors.New("event: subscriber too slow")
)

// Log is the append-only persistent record of workflow events.
type Log interface {
	// Append stores the event, assigning its ID when empty, stamping
	// Time when zero, and allocating the workflow's next sequence
	// number. Sequences are strictly increasing and gapless per
	// workflow, starting at 1, and survive pruning.
	Append(ctx context.Context, e Event) (Event, error)
	// ListAfter returns up to limit events of a workflow with Seq >
	// afterSeq, in sequence order. limit <= 0 means no limit.
	ListAfter(ctx context.Context, workflowID string, afterSeq int64, limit int) ([]Event, error)
	// Bounds reports the lowest retained sequence (0 when nothing is
	// retained) and the highest sequence ever assigned for a workflow.
	Bounds(ctx context.Context, workflowID string) (floor, last int64, err error)
	// Prune removes events recorded before the cutoff and reports how
	// many were removed. Sequence counters are unaffected.
	Prune(ctx context.Context, before time.Time) (int, error)
}

// backfillExpired reports whether a subscriber asking for events after
// afterSeq can still be served from the log.
func backfillExpired(afterSeq, floor, last int64) bool {
	if afterSeq >= last {
		return false // nothing to replay
	}
	if floor == 0 {
		return true // events existed but none are retained
	}
	return floor > afterSeq+1
}
