package event

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func newTestSQLiteLog(t *testing.T) *SQLiteLog {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = db.Close()
	})

	log, err := NewSQLiteLog(db)
	if err != nil {
		t.Fatalf("NewSQLiteLog failed: %v", err)
	}
	return log
}

func logs(t *testing.T) map[string]Log {
	t.Helper()
	return map[string]Log{
		"sqlite": newTestSQLiteLog(t),
		"memory": NewMemoryLog(),
	}
}

func TestAppendAssignsGaplessSequences(t *testing.T) {
	for name, log := range logs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 1; i <= 5; i++ {
				got, err := log.Append(ctx, Event{
					WorkflowID: "wf-1",
					Type:       TypeStepCompleted,
					Message:    "step done",
				})
				if err != nil {
					t.Fatalf("Append %d failed: %v", i, err)
				}
				if got.Seq != int64(i) {
					t.Errorf("Append %d assigned seq %d, want %d", i, got.Seq, i)
				}
				if got.ID == "" {
					t.Error("Append left event ID empty")
				}
				if got.Time.IsZero() {
					t.Error("Append left event time zero")
				}
			}
		})
	}
}

func TestSequencesIndependentPerWorkflow(t *testing.T) {
	for name, log := range logs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a1, _ := log.Append(ctx, Event{WorkflowID: "wf-a", Type: TypeWorkflowCreated})
			b1, _ := log.Append(ctx, Event{WorkflowID: "wf-b", Type: TypeWorkflowCreated})
			a2, _ := log.Append(ctx, Event{WorkflowID: "wf-a", Type: TypePlanReady})

			if a1.Seq != 1 || a2.Seq != 2 {
				t.Errorf("wf-a seqs = %d, %d, want 1, 2", a1.Seq, a2.Seq)
			}
			if b1.Seq != 1 {
				t.Errorf("wf-b seq = %d, want 1", b1.Seq)
			}
		})
	}
}

func TestListAfter(t *testing.T) {
	for name, log := range logs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 6; i++ {
				if _, err := log.Append(ctx, Event{
					WorkflowID: "wf-1",
					Type:       TypeStepCompleted,
					Data:       map[string]any{"step": float64(i)},
				}); err != nil {
					t.Fatalf("Append failed: %v", err)
				}
			}

			got, err := log.ListAfter(ctx, "wf-1", 2, 0)
			if err != nil {
				t.Fatalf("ListAfter failed: %v", err)
			}
			if len(got) != 4 {
				t.Fatalf("ListAfter returned %d events, want 4", len(got))
			}
			for i, e := range got {
				if want := int64(3 + i); e.Seq != want {
					t.Errorf("event %d seq = %d, want %d", i, e.Seq, want)
				}
			}
			if got[0].Data["step"] != float64(2) {
				t.Errorf("event data lost in round trip: %v", got[0].Data)
			}

			limited, err := log.ListAfter(ctx, "wf-1", 0, 2)
			if err != nil {
				t.Fatalf("ListAfter with limit failed: %v", err)
			}
			if len(limited) != 2 || limited[0].Seq != 1 || limited[1].Seq != 2 {
				t.Errorf("limited ListAfter wrong: %+v", limited)
			}
		})
	}
}

func TestBounds(t *testing.T) {
	for name, log := range logs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			floor, last, err := log.Bounds(ctx, "wf-1")
			if err != nil {
				t.Fatalf("Bounds failed: %v", err)
			}
			if floor != 0 || last != 0 {
				t.Errorf("Bounds on empty log = %d, %d, want 0, 0", floor, last)
			}

			for i := 0; i < 3; i++ {
				log.Append(ctx, Event{WorkflowID: "wf-1", Type: TypeStepCompleted})
			}
			floor, last, err = log.Bounds(ctx, "wf-1")
			if err != nil {
				t.Fatalf("Bounds failed: %v", err)
			}
			if floor != 1 || last != 3 {
				t.Errorf("Bounds = %d, %d, want 1, 3", floor, last)
			}
		})
	}
}

func TestPruneKeepsSequenceCounter(t *testing.T) {
	for name, log := range logs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 3; i++ {
				if _, err := log.Append(ctx, Event{WorkflowID: "wf-1", Type: TypeStepCompleted}); err != nil {
					t.Fatalf("Append failed: %v", err)
				}
			}

			n, err := log.Prune(ctx, time.Now().Add(time.Minute))
			if err != nil {
				t.Fatalf("Prune failed: %v", err)
			}
			if n != 3 {
				t.Errorf("Prune removed %d, want 3", n)
			}

			// Sequences keep counting after a prune; they never reset.
			got, err := log.Append(ctx, Event{WorkflowID: "wf-1", Type: TypeStepCompleted})
			if err != nil {
				t.Fatalf("Append after prune failed: %v", err)
			}
			if got.Seq != 4 {
				t.Errorf("seq after prune = %d, want 4", got.Seq)
			}

			floor, last, err := log.Bounds(ctx, "wf-1")
			if err != nil {
				t.Fatalf("Bounds failed: %v", err)
			}
			if floor != 4 || last != 4 {
				t.Errorf("Bounds after prune = %d, %d, want 4, 4", floor, last)
			}
		})
	}
}

func TestBackfillExpired(t *testing.T) {
	tests := []struct {
		name                  string
		afterSeq, floor, last int64
		want                  bool
	}{
		{"caught up", 5, 1, 5, false},
		{"ahead of log", 9, 1, 5, false},
		{"full history retained", 0, 1, 5, false},
		{"window starts at request", 2, 3, 5, false},
		{"window starts past request", 2, 4, 5, true},
		{"nothing retained but events existed", 2, 0, 5, true},
		{"empty log", 0, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := backfillExpired(tt.afterSeq, tt.floor, tt.last)
			if got != tt.want {
				t.Errorf("backfillExpired(%d, %d, %d) = %v, want %v",
					tt.afterSeq, tt.floor, tt.last, got, tt.want)
			}
		})
	}
}
