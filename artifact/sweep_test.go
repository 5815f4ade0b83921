package artifact

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSweep_ArchivesIdleRuns(t *testing.T) {
	s := NewStore(t.TempDir(),
		WithMinKeep(0),
		WithArchiveAfter(time.Hour),
		WithRetention(100*24*time.Hour),
	)

	if err := s.SavePlan("wf-old", testPlan()); err != nil {
		t.Fatalf("SavePlan: %v", err)
	}
	if err := s.SaveDiff("wf-old", "b1", "diff body"); err != nil {
		t.Fatalf("SaveDiff: %v", err)
	}
	backdate(t, s.RunDir("wf-old"), 2*time.Hour)

	if err := s.SavePlan("wf-new", testPlan()); err != nil {
		t.Fatalf("SavePlan: %v", err)
	}

	n, err := s.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Errorf("swept = %d, want 1", n)
	}

	if _, err := os.Stat(s.RunDir("wf-old")); !os.IsNotExist(err) {
		t.Error("archived run dir should be removed")
	}
	archive := filepath.Join(s.BaseDir(), "archive", "wf-old.tar.gz")
	if _, err := os.Stat(archive); err != nil {
		t.Fatalf("archive missing: %v", err)
	}
	if _, err := s.LoadPlan("wf-new"); err != nil {
		t.Errorf("fresh run should be untouched: %v", err)
	}

	// Round trip through the archive.
	if err := s.Restore("wf-old"); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	p, err := s.LoadPlan("wf-old")
	if err != nil {
		t.Fatalf("LoadPlan after restore: %v", err)
	}
	if p.IssueRef != "gh-42" {
		t.Errorf("restored plan = %+v", p)
	}
	diff, err := s.LoadDiff("wf-old", "b1")
	if err != nil || diff != "diff body" {
		t.Errorf("restored diff = %q, %v", diff, err)
	}
	if _, err := os.Stat(archive); !os.IsNotExist(err) {
		t.Error("archive should be consumed by restore")
	}
}

func TestSweep_DeletesExpiredRuns(t *testing.T) {
	s := NewStore(t.TempDir(),
		WithMinKeep(0),
		WithArchiveAfter(30*time.Minute),
		WithRetention(time.Hour),
	)

	if err := s.SavePlan("wf-dead", testPlan()); err != nil {
		t.Fatalf("SavePlan: %v", err)
	}
	backdate(t, s.RunDir("wf-dead"), 2*time.Hour)

	n, err := s.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Errorf("swept = %d, want 1", n)
	}

	if _, err := os.Stat(s.RunDir("wf-dead")); !os.IsNotExist(err) {
		t.Error("expired run should be deleted")
	}
	archive := filepath.Join(s.BaseDir(), "archive", "wf-dead.tar.gz")
	if _, err := os.Stat(archive); !os.IsNotExist(err) {
		t.Error("expired run should be deleted outright, not archived")
	}
}

func TestSweep_MinKeep(t *testing.T) {
	s := NewStore(t.TempDir(),
		WithMinKeep(3),
		WithArchiveAfter(time.Hour),
		WithRetention(2*time.Hour),
	)

	for _, id := range []string{"wf-1", "wf-2", "wf-3"} {
		if err := s.SavePlan(id, testPlan()); err != nil {
			t.Fatalf("SavePlan: %v", err)
		}
		backdate(t, s.RunDir(id), 72*time.Hour)
	}

	n, err := s.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 0 {
		t.Errorf("swept = %d, want 0 with minKeep", n)
	}

	runs, err := s.Runs()
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 3 {
		t.Errorf("runs = %v, want all kept", runs)
	}
}

func TestSweep_DeletesStaleArchives(t *testing.T) {
	s := NewStore(t.TempDir(),
		WithMinKeep(0),
		WithArchiveAfter(time.Hour),
		WithRetention(3*time.Hour),
	)

	if err := s.SavePlan("wf-1", testPlan()); err != nil {
		t.Fatalf("SavePlan: %v", err)
	}
	backdate(t, s.RunDir("wf-1"), 2*time.Hour)

	if _, err := s.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	archive := filepath.Join(s.BaseDir(), "archive", "wf-1.tar.gz")
	old := time.Now().Add(-4 * time.Hour)
	if err := os.Chtimes(archive, old, old); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	n, err := s.Sweep(context.Background())
	if err != nil {
		t.Fatalf("second Sweep: %v", err)
	}
	if n != 1 {
		t.Errorf("swept = %d, want 1 stale archive", n)
	}
	if _, err := os.Stat(archive); !os.IsNotExist(err) {
		t.Error("stale archive should be deleted")
	}
}

func TestSweep_ContextCancelled(t *testing.T) {
	s := NewStore(t.TempDir(), WithMinKeep(0), WithRetention(time.Hour))

	if err := s.SavePlan("wf-1", testPlan()); err != nil {
		t.Fatalf("SavePlan: %v", err)
	}
	backdate(t, s.RunDir("wf-1"), 2*time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Sweep(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestRestore_NotFound(t *testing.T) {
	s := NewStore(t.TempDir())

	if err := s.Restore("ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}
