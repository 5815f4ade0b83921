package conductor

import (
	"fmt"
	"time"
)

// ResolutionAction is what a human chose to do about a blocker.
type ResolutionAction string

const (
	// ResolutionSkip marks the blocked step skipped, skips everything
	// depending on it, and continues the batch.
	ResolutionSkip ResolutionAction = "skip"
	// ResolutionRetry re-executes the blocked step with a fresh attempt
	// budget.
	ResolutionRetry ResolutionAction = "retry"
	// ResolutionFix runs the developer agent with the supplied
	// instruction, then retries the step.
	ResolutionFix ResolutionAction = "fix"
	// ResolutionAbortKeep fails the workflow and keeps all changes.
	ResolutionAbortKeep ResolutionAction = "abort_keep"
	// ResolutionAbortRevert reverts files changed since the pre-batch
	// snapshot, then fails the workflow. Files that were already dirty
	// before the batch are left alone.
	ResolutionAbortRevert ResolutionAction = "abort_revert"
)

// Valid reports whether a is a known action.
func (a ResolutionAction) Valid() bool {
	switch a {
	case ResolutionSkip, ResolutionRetry, ResolutionFix,
		ResolutionAbortKeep, ResolutionAbortRevert:
		return true
	}
	return false
}

// Resolution is a human's answer to a blocker.
type Resolution struct {
	Action      ResolutionAction `json:"action"`
	Instruction string           `json:"instruction,omitempty"` // fix prompt or skip/abort reason
	DecidedAt   time.Time        `json:"decided_at"`
}

// Validate checks the resolution before it is applied.
func (r Resolution) Validate() error {
	if !r.Action.Valid() {
		return fmt.Errorf("unknown resolution action %q", r.Action)
	}
	if r.Action == ResolutionFix && r.Instruction == "" {
		return fmt.Errorf("fix resolution requires an instruction")
	}
	return nil
}
