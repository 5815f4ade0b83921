// Package git provides the Git operations the workflow engine needs:
// worktree provisioning, pre-run snapshots with selective revert, and
// the commit/push plumbing used when publishing results.
//
// Core types:
//   - Context: Git repository context scoped to a repo or worktree
//   - CommandRunner: Interface for executing git commands (with mock for testing)
//   - Snapshot: Pre-run state used to detect and revert step changes
//   - BranchNamer: Generates workflow branch names from issue references
//
// Example usage:
//
//	gc, err := git.NewContext("/path/to/repo")
//	path, err := gc.CreateWorktree("conductor/issue-42-add-auth")
//	wt := gc.InWorktree(path)
//	snap, err := wt.CaptureSnapshot()
//	// ... run steps ...
//	reverted, err := wt.RevertSince(snap)
package git
