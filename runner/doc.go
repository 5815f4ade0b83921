// Package runner executes plan batches inside a git worktree.
//
// The Engine drives one batch at a time through ExecuteBatch, running
// each step according to its action type. Execution suspends on trust
// checkpoints, blockers, and cancellation; callers persist the returned
// ExecOutcome and call ExecuteBatch again with the updated cursor to
// resume.
//
// Commands run through a CommandRunner, which reports a non-zero exit
// code as data rather than an error. ExecCommandRunner runs commands
// through the shell and enforces per-step timeouts with SIGTERM followed
// by SIGKILL after a grace period.
package runner
