package git

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Snapshot records repository state before a batch runs. It is the
// reference point for detecting what the run changed and for reverting
// those changes without touching files that were already dirty.
type Snapshot struct {
	Commit     string    `json:"commit"`      // HEAD commit at capture time
	DirtyFiles []string  `json:"dirty_files"` // Files already modified or untracked at capture time
	TakenAt    time.Time `json:"taken_at"`    // Capture timestamp
}

// CaptureSnapshot records the current HEAD commit and dirty files.
func (g *Context) CaptureSnapshot() (*Snapshot, error) {
	head, err := g.HeadCommit()
	if err != nil {
		return nil, fmt.Errorf("capture snapshot: %w", err)
	}
	dirty, err := g.DirtyFiles()
	if err != nil {
		return nil, fmt.Errorf("capture snapshot: %w", err)
	}
	return &Snapshot{
		Commit:     head,
		DirtyFiles: dirty,
		TakenAt:    time.Now().UTC(),
	}, nil
}

// ChangedSince returns the sorted paths that differ from the snapshot
// commit, including untracked files. Files that were already dirty at
// capture time are included; RevertSince is what excludes them.
func (g *Context) ChangedSince(snap *Snapshot) ([]string, error) {
	output, err := g.runGit("diff", "--name-only", snap.Commit)
	if err != nil {
		return nil, &Error{Op: "diff since snapshot", Err: err}
	}

	seen := make(map[string]bool)
	var changed []string
	for _, line := range splitLines(output) {
		if !seen[line] {
			seen[line] = true
			changed = append(changed, line)
		}
	}

	dirty, err := g.DirtyFiles()
	if err != nil {
		return nil, err
	}
	for _, f := range dirty {
		if !seen[f] {
			seen[f] = true
			changed = append(changed, f)
		}
	}

	sort.Strings(changed)
	return changed, nil
}

// RevertSince restores every file changed since the snapshot, except
// files that were already dirty when the snapshot was taken. Files
// tracked at the snapshot commit are checked out from it; files created
// since are deleted. Returns the sorted paths that were reverted.
func (g *Context) RevertSince(snap *Snapshot) ([]string, error) {
	changed, err := g.ChangedSince(snap)
	if err != nil {
		return nil, err
	}

	preDirty := make(map[string]bool, len(snap.DirtyFiles))
	for _, f := range snap.DirtyFiles {
		preDirty[f] = true
	}

	var restore, remove []string
	for _, f := range changed {
		if preDirty[f] {
			continue
		}
		if g.trackedAt(snap.Commit, f) {
			restore = append(restore, f)
		} else {
			remove = append(remove, f)
		}
	}

	if err := g.CheckoutFiles(snap.Commit, restore...); err != nil {
		return nil, &Error{Op: "revert since snapshot", Err: err}
	}

	for _, f := range remove {
		// Unstage first in case a step added it to the index.
		g.runGit("reset", "--", f)
		if err := os.Remove(filepath.Join(g.workDir, f)); err != nil && !os.IsNotExist(err) {
			return nil, &Error{Op: "revert since snapshot", Err: fmt.Errorf("remove %s: %w", f, err)}
		}
	}

	reverted := append(restore, remove...)
	sort.Strings(reverted)
	return reverted, nil
}

// DiffSince returns the unified diff of the working tree against the
// snapshot commit. Untracked files do not appear in the diff.
func (g *Context) DiffSince(snap *Snapshot) (string, error) {
	diff, err := g.runGit("diff", snap.Commit)
	if err != nil {
		return "", &Error{Op: "diff since snapshot", Err: err}
	}
	return diff, nil
}

// trackedAt reports whether path exists in the tree at commit.
func (g *Context) trackedAt(commit, path string) bool {
	_, err := g.runGit("cat-file", "-e", commit+":"+path)
	return err == nil
}

func splitLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
