package conductor

import (
	"errors"
	"fmt"
)

// Lifecycle errors.
var (
	// ErrWorkflowNotFound indicates no workflow exists with the given ID.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrTerminalState indicates an operation on a completed, failed, or
	// cancelled workflow.
	ErrTerminalState = errors.New("workflow is in a terminal state")

	// ErrInvalidTransition indicates a status change the transition table
	// does not permit.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrNotWaiting indicates a decision was supplied for a workflow that
	// is not suspended at the matching node.
	ErrNotWaiting = errors.New("workflow is not waiting for this decision")

	// ErrWorktreeBusy indicates the worktree already has an active
	// workflow.
	ErrWorktreeBusy = errors.New("worktree already has an active workflow")

	// ErrActiveLimit indicates the global active-workflow cap is reached.
	ErrActiveLimit = errors.New("active workflow limit reached")

	// ErrNoActiveStep indicates a step cancel arrived while no step was
	// executing.
	ErrNoActiveStep = errors.New("no step is currently executing")

	// ErrUnknownProfile indicates a create request named a profile the
	// manager does not know.
	ErrUnknownProfile = errors.New("unknown profile")

	// ErrManagerClosed indicates the manager has shut down.
	ErrManagerClosed = errors.New("manager is closed")
)

// TransitionError reports a rejected status transition.
type TransitionError struct {
	WorkflowID string
	From       Status
	To         Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("workflow %s: cannot transition %s -> %s", e.WorkflowID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
