package agent

import (
	"context"

	"github.com/randalmurphal/conductor/plan"
	"github.com/randalmurphal/conductor/tracker"
)

// PlanRequest carries what the architect needs to propose a plan.
type PlanRequest struct {
	Issue    *tracker.Issue
	Worktree string   // Path the plan will execute in
	Feedback []string // Rejection feedback from earlier proposals, oldest first
}

// Architect proposes execution plans for issues.
type Architect interface {
	ProposePlan(ctx context.Context, req PlanRequest) (*plan.ExecutionPlan, error)
}

// FixRequest asks the developer to make a change in the worktree.
type FixRequest struct {
	Worktree    string
	Instruction string // What to do
	Context     string // Supporting material: failed output, review findings
}

// Developer applies fixes and performs prompt-driven steps directly in
// the worktree.
type Developer interface {
	Fix(ctx context.Context, req FixRequest) error
}

// BatchReviewRequest asks for a sanity pass over a batch before it runs.
type BatchReviewRequest struct {
	Worktree string
	Goal     string // What the workflow is trying to achieve
	Batch    *plan.ExecutionBatch
}

// BatchReview is the reviewer's pre-execution verdict on a batch.
type BatchReview struct {
	OK       bool     `json:"ok"`
	Concerns []string `json:"concerns,omitempty"`
}

// StepValidationRequest asks whether a single step still makes sense
// against the current worktree.
type StepValidationRequest struct {
	Worktree string
	Goal     string
	Step     *plan.PlanStep
}

// StepValidation is the reviewer's verdict on one step.
type StepValidation struct {
	OK      bool   `json:"ok"`
	Problem string `json:"problem,omitempty"`
}

// AdaptRequest asks the reviewer to rewrite a step that cannot run as
// planned. The adapted step keeps the original step's identity.
type AdaptRequest struct {
	Worktree string
	Goal     string
	Step     *plan.PlanStep
	Problem  string // Why the step as written cannot run
}

// ReviewRequest asks for a full review of the run's changes.
type ReviewRequest struct {
	Worktree string
	Goal     string
	Diff     string // Unified diff of everything the run changed
}

// Reviewer validates batches and steps during execution and reviews the
// final changes.
type Reviewer interface {
	ReviewBatch(ctx context.Context, req BatchReviewRequest) (BatchReview, error)
	ValidateStep(ctx context.Context, req StepValidationRequest) (StepValidation, error)
	AdaptStep(ctx context.Context, req AdaptRequest) (*plan.PlanStep, error)
	ReviewChanges(ctx context.Context, req ReviewRequest) (*ReviewResult, error)
}

// ReviewResult represents the result of a code review.
type ReviewResult struct {
	Approved bool      `json:"approved"`
	Verdict  string    `json:"verdict,omitempty"` // APPROVE, REQUEST_CHANGES
	Summary  string    `json:"summary"`
	Findings []Finding `json:"findings,omitempty"`
}

// Finding represents a single review finding.
type Finding struct {
	File       string `json:"file"`
	Line       int    `json:"line,omitempty"`
	Severity   string `json:"severity"` // critical, error, warning, info
	Category   string `json:"category"` // security, performance, style, logic, test
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// FindingSeverity constants
const (
	SeverityCritical = "critical"
	SeverityError    = "error"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// FindingCategory constants
const (
	CategorySecurity    = "security"
	CategoryPerformance = "performance"
	CategoryStyle       = "style"
	CategoryLogic       = "logic"
	CategoryTest        = "test"
)

// ReviewVerdict constants
const (
	VerdictApprove        = "APPROVE"
	VerdictRequestChanges = "REQUEST_CHANGES"
)

// HasBlockingFindings returns true if any finding is critical or error
// severity. Blocking findings trigger a fix pass and re-review.
func (r *ReviewResult) HasBlockingFindings() bool {
	for _, f := range r.Findings {
		if f.Severity == SeverityCritical || f.Severity == SeverityError {
			return true
		}
	}
	return false
}
