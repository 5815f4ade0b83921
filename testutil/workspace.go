package testutil

import (
	"sync"
	"time"

	"github.com/randalmurphal/conductor/git"
)

// FakeWorkspace is an in-memory stand-in for a git worktree. It
// satisfies both the engine's Workspace interface and the manager's Git
// interface, so workflow tests run without a repository on disk. Dir
// should point at a real directory because steps check it exists.
type FakeWorkspace struct {
	mu sync.Mutex

	dir     string
	branch  string
	commit  string
	diff    string
	changed []string

	snapshotErr error
	reverts     int
}

// NewFakeWorkspace returns a workspace rooted at dir on a fixed branch.
func NewFakeWorkspace(dir string) *FakeWorkspace {
	return &FakeWorkspace{
		dir:    dir,
		branch: "conductor/test",
		commit: "c0ffee00",
	}
}

// SetBranch sets what CurrentBranch reports.
func (w *FakeWorkspace) SetBranch(branch string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.branch = branch
}

// SetDiff sets what DiffSince reports.
func (w *FakeWorkspace) SetDiff(diff string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.diff = diff
}

// SetChanged sets what ChangedSince and RevertSince report.
func (w *FakeWorkspace) SetChanged(files ...string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.changed = append([]string(nil), files...)
}

// FailSnapshots makes CaptureSnapshot return err.
func (w *FakeWorkspace) FailSnapshots(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.snapshotErr = err
}

// Reverts reports how many times RevertSince ran.
func (w *FakeWorkspace) Reverts() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reverts
}

func (w *FakeWorkspace) WorkDir() string {
	return w.dir
}

func (w *FakeWorkspace) CaptureSnapshot() (*git.Snapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.snapshotErr != nil {
		return nil, w.snapshotErr
	}
	return &git.Snapshot{Commit: w.commit, TakenAt: time.Now().UTC()}, nil
}

func (w *FakeWorkspace) CurrentBranch() (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.branch, nil
}

func (w *FakeWorkspace) ChangedSince(*git.Snapshot) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.changed...), nil
}

func (w *FakeWorkspace) RevertSince(*git.Snapshot) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reverts++
	return append([]string(nil), w.changed...), nil
}

func (w *FakeWorkspace) DiffSince(*git.Snapshot) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.diff, nil
}
