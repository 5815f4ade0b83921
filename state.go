package conductor

import (
	"fmt"
	"time"

	"github.com/randalmurphal/conductor/agent"
	"github.com/randalmurphal/conductor/git"
	"github.com/randalmurphal/conductor/plan"
	"github.com/randalmurphal/conductor/tracker"
)

// =============================================================================
// Developer status and suspension
// =============================================================================

// DeveloperStatus drives routing out of the developer node.
type DeveloperStatus string

const (
	// DevExecuting means the current batch still has steps to run.
	DevExecuting DeveloperStatus = "EXECUTING"
	// DevBatchComplete means the current batch finished and awaits a
	// checkpoint decision.
	DevBatchComplete DeveloperStatus = "BATCH_COMPLETE"
	// DevBlocked means execution stopped on a blocker.
	DevBlocked DeveloperStatus = "BLOCKED"
	// DevAllDone means every batch completed.
	DevAllDone DeveloperStatus = "ALL_DONE"
)

// Suspended marks a state as paused at an interruptible node. It is plain
// data: suspension is communicated by returning state that carries it,
// never by panics or sentinel errors.
type Suspended struct {
	Node   Node   `json:"node"`
	Reason string `json:"reason"`
}

// Decision records a human approve/reject at a checkpoint.
type Decision struct {
	Approved  bool      `json:"approved"`
	Feedback  string    `json:"feedback,omitempty"`
	DecidedAt time.Time `json:"decided_at"`
}

// =============================================================================
// ExecState
// =============================================================================

// ExecState is the complete execution state of one workflow. It is a value
// type: nodes receive a copy and return a modified copy, and the WithX
// methods clone slices and maps before changing them, so an older snapshot
// is never mutated by a newer one.
//
// ExecState serializes to JSON for checkpointing and must round-trip
// exactly; a resumed workflow sees the same snapshot it persisted.
type ExecState struct {
	WorkflowID string `json:"workflow_id"`
	IssueRef   string `json:"issue_ref"`
	Worktree   string `json:"worktree"`
	Node       Node   `json:"node"`

	Issue *tracker.Issue `json:"issue,omitempty"`

	Plan         *plan.ExecutionPlan `json:"plan,omitempty"`
	PlanFeedback []string            `json:"plan_feedback,omitempty"`

	// Pending human decisions, set by resume operations and consumed by
	// the node they resume.
	PlanDecision  *Decision   `json:"plan_decision,omitempty"`
	BatchDecision *Decision   `json:"batch_decision,omitempty"`
	Resolution    *Resolution `json:"resolution,omitempty"`

	BatchIndex   int                  `json:"batch_index"`
	StepCursor   int                  `json:"step_cursor"`
	StepResults  []plan.StepResult    `json:"step_results,omitempty"` // current batch so far
	BatchResults []plan.BatchResult   `json:"batch_results,omitempty"`
	Skipped      map[string]string    `json:"skipped,omitempty"` // step id -> reason
	Approvals    []plan.BatchApproval `json:"approvals,omitempty"`

	Blocker   *plan.BlockerReport `json:"blocker,omitempty"`
	DevStatus DeveloperStatus     `json:"developer_status,omitempty"`

	ReviewAttempt int                 `json:"review_attempt,omitempty"`
	Review        *agent.ReviewResult `json:"review,omitempty"`

	Snapshot  *git.Snapshot `json:"snapshot,omitempty"` // pre-batch
	Baseline  *git.Snapshot `json:"baseline,omitempty"` // before the first batch
	Suspended *Suspended    `json:"suspended,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// NewExecState creates the initial state for a workflow entering the plan
// node.
func NewExecState(wf *Workflow) ExecState {
	return ExecState{
		WorkflowID: wf.ID,
		IssueRef:   wf.IssueRef,
		Worktree:   wf.Worktree,
		Node:       NodePlan,
		UpdatedAt:  time.Now().UTC(),
	}
}

func (s ExecState) stamped() ExecState {
	s.UpdatedAt = time.Now().UTC()
	return s
}

// WithNode moves the state to a node.
func (s ExecState) WithNode(n Node) ExecState {
	s.Node = n
	return s.stamped()
}

// WithIssue attaches the resolved issue.
func (s ExecState) WithIssue(issue *tracker.Issue) ExecState {
	s.Issue = issue
	return s.stamped()
}

// WithPlan replaces the plan and resets batch progress. A rejected plan
// produces a new plan, never a mutation of the old one.
func (s ExecState) WithPlan(p *plan.ExecutionPlan) ExecState {
	s.Plan = p
	s.BatchIndex = 0
	s.StepCursor = 0
	s.StepResults = nil
	s.BatchResults = nil
	s.Skipped = nil
	s.Snapshot = nil
	s.Baseline = nil
	s.DevStatus = ""
	return s.stamped()
}

// WithPlanFeedback appends rejection feedback for the next planning pass.
func (s ExecState) WithPlanFeedback(feedback string) ExecState {
	s.PlanFeedback = append(cloneSlice(s.PlanFeedback), feedback)
	return s.stamped()
}

// WithPlanDecision sets the pending plan approval decision.
func (s ExecState) WithPlanDecision(d *Decision) ExecState {
	s.PlanDecision = d
	return s.stamped()
}

// WithBatchDecision sets the pending batch checkpoint decision.
func (s ExecState) WithBatchDecision(d *Decision) ExecState {
	s.BatchDecision = d
	return s.stamped()
}

// WithResolution sets the pending blocker resolution.
func (s ExecState) WithResolution(r *Resolution) ExecState {
	s.Resolution = r
	return s.stamped()
}

// WithCursor positions execution inside the plan.
func (s ExecState) WithCursor(batch, step int) ExecState {
	s.BatchIndex = batch
	s.StepCursor = step
	return s.stamped()
}

// WithStepResults replaces the current batch's accumulated results.
func (s ExecState) WithStepResults(results []plan.StepResult) ExecState {
	s.StepResults = cloneSlice(results)
	return s.stamped()
}

// WithBatchResult records a finished batch and clears per-batch state.
func (s ExecState) WithBatchResult(r plan.BatchResult) ExecState {
	s.BatchResults = append(cloneSlice(s.BatchResults), r)
	s.StepResults = nil
	s.Snapshot = nil
	return s.stamped()
}

// WithSkipped replaces the skip set.
func (s ExecState) WithSkipped(skipped map[string]string) ExecState {
	s.Skipped = cloneMap(skipped)
	return s.stamped()
}

// WithApproval records a checkpoint approval.
func (s ExecState) WithApproval(a plan.BatchApproval) ExecState {
	s.Approvals = append(cloneSlice(s.Approvals), a)
	return s.stamped()
}

// WithBlocker sets the active blocker. At most one blocker is active at a
// time; setting one while another is unresolved is a programming error
// caught by Validate.
func (s ExecState) WithBlocker(b *plan.BlockerReport) ExecState {
	s.Blocker = b
	return s.stamped()
}

// ClearBlocker removes the active blocker and its pending resolution.
func (s ExecState) ClearBlocker() ExecState {
	s.Blocker = nil
	s.Resolution = nil
	return s.stamped()
}

// WithDevStatus sets the developer routing status.
func (s ExecState) WithDevStatus(d DeveloperStatus) ExecState {
	s.DevStatus = d
	return s.stamped()
}

// WithReview records a review pass.
func (s ExecState) WithReview(r *agent.ReviewResult) ExecState {
	s.Review = r
	s.ReviewAttempt++
	return s.stamped()
}

// WithSnapshot sets the pre-batch git snapshot.
func (s ExecState) WithSnapshot(snap *git.Snapshot) ExecState {
	s.Snapshot = snap
	return s.stamped()
}

// WithBaseline sets the run-level git snapshot taken before the first
// batch. The final review diffs against it.
func (s ExecState) WithBaseline(snap *git.Snapshot) ExecState {
	s.Baseline = snap
	return s.stamped()
}

// Suspend pauses the state at an interruptible node.
func (s ExecState) Suspend(node Node, reason string) ExecState {
	s.Suspended = &Suspended{Node: node, Reason: reason}
	return s.stamped()
}

// Resumed clears the suspension marker.
func (s ExecState) Resumed() ExecState {
	s.Suspended = nil
	return s.stamped()
}

// =============================================================================
// Derived views
// =============================================================================

// CurrentBatch returns the batch the cursor points at, or nil past the end.
func (s ExecState) CurrentBatch() *plan.ExecutionBatch {
	if s.Plan == nil || s.BatchIndex < 0 || s.BatchIndex >= len(s.Plan.Batches) {
		return nil
	}
	b := s.Plan.Batches[s.BatchIndex]
	return &b
}

// BatchesRemaining reports whether any batch is left to execute.
func (s ExecState) BatchesRemaining() bool {
	return s.Plan != nil && s.BatchIndex < len(s.Plan.Batches)
}

// Goal is the one-line objective handed to agents.
func (s ExecState) Goal() string {
	if s.Plan != nil && s.Plan.Summary != "" {
		return s.Plan.Summary
	}
	if s.Issue != nil && s.Issue.Title != "" {
		return s.Issue.Title
	}
	return s.IssueRef
}

// Validate checks cross-field invariants before a node runs.
func (s ExecState) Validate() error {
	if s.WorkflowID == "" {
		return fmt.Errorf("state has no workflow id")
	}
	if s.Blocker != nil && s.DevStatus != DevBlocked {
		return fmt.Errorf("blocker %s present but developer status is %s", s.Blocker.ID, s.DevStatus)
	}
	if s.Node == NodeDeveloper && s.Plan == nil {
		return fmt.Errorf("developer node entered without a plan")
	}
	return nil
}

// =============================================================================
// Clone helpers
// =============================================================================

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}

func cloneMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
