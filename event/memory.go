package event

import (
	"context"
	"sync"
	"time"
)

// MemoryLog is an in-memory Log with the same semantics as SQLiteLog, for
// tests and ephemeral runs.
type MemoryLog struct {
	mu     sync.RWMutex
	events map[string][]Event // workflow id -> retained events in seq order
	seqs   map[string]int64   // workflow id -> last assigned seq
}

var _ Log = (*MemoryLog)(nil)

// NewMemoryLog returns an empty in-memory log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{
		events: make(map[string][]Event),
		seqs:   make(map[string]int64),
	}
}

func (l *MemoryLog) Append(_ context.Context, e Event) (Event, error) {
	if e.ID == "" {
		id, err := NewID()
		if err != nil {
			return Event{}, err
		}
		e.ID = id
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.seqs[e.WorkflowID]++
	e.Seq = l.seqs[e.WorkflowID]
	l.events[e.WorkflowID] = append(l.events[e.WorkflowID], e)
	return e, nil
}

func (l *MemoryLog) ListAfter(_ context.Context, workflowID string, afterSeq int64, limit int) ([]Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Event
	for _, e := range l.events[workflowID] {
		if e.Seq > afterSeq {
			out = append(out, e)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (l *MemoryLog) Bounds(_ context.Context, workflowID string) (int64, int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var floor int64
	if retained := l.events[workflowID]; len(retained) > 0 {
		floor = retained[0].Seq
	}
	return floor, l.seqs[workflowID], nil
}

func (l *MemoryLog) Prune(_ context.Context, before time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for id, evs := range l.events {
		kept := evs[:0]
		for _, e := range evs {
			if e.Time.Before(before) {
				n++
			} else {
				kept = append(kept, e)
			}
		}
		l.events[id] = kept
	}
	return n, nil
}
