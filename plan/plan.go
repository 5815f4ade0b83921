// Package plan defines the execution plan model shared by the conductor
// engine: plans proposed by an architect agent, the batches and steps they
// contain, and the results and blocker reports produced while executing them.
package plan

import (
	"fmt"
	"time"
)

// =============================================================================
// Risk and action enums
// =============================================================================

// RiskLevel classifies how dangerous a step or batch is to run unattended.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Valid reports whether the risk level is one of the known values.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// riskRank orders risk levels for comparisons. Unknown levels rank highest
// so malformed input is treated conservatively.
func riskRank(r RiskLevel) int {
	switch r {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	}
	return 3
}

// AtLeast reports whether r is the same or riskier than other.
func (r RiskLevel) AtLeast(other RiskLevel) bool {
	return riskRank(r) >= riskRank(other)
}

// MaxRisk returns the highest risk level among the given levels.
// Returns RiskLow when called with no arguments.
func MaxRisk(levels ...RiskLevel) RiskLevel {
	max := RiskLow
	for _, l := range levels {
		if riskRank(l) > riskRank(max) {
			max = l
		}
	}
	return max
}

// ActionType describes what kind of work a step performs.
type ActionType string

const (
	// ActionCode applies a planned file change, then runs the step's
	// validation command when one is set.
	ActionCode ActionType = "code"
	// ActionCommand runs a shell command, falling back through
	// FallbackCommands when the primary fails.
	ActionCommand ActionType = "command"
	// ActionValidation runs a command purely as a check.
	ActionValidation ActionType = "validation"
	// ActionManual marks work a human must perform. The engine cannot
	// execute it and raises a judgment blocker instead.
	ActionManual ActionType = "manual"
)

// Valid reports whether the action type is one of the known values.
func (a ActionType) Valid() bool {
	switch a {
	case ActionCode, ActionCommand, ActionValidation, ActionManual:
		return true
	}
	return false
}

// =============================================================================
// Plan structure
// =============================================================================

// PlanStep is a single unit of work inside a batch.
type PlanStep struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Action      ActionType `json:"action_type"`
	Risk        RiskLevel  `json:"risk,omitempty"`

	// Command steps.
	Command          string   `json:"command,omitempty"`
	FallbackCommands []string `json:"fallback_commands,omitempty"`
	WorkDir          string   `json:"work_dir,omitempty"`

	// Code steps: the planned content for File, plus an optional
	// post-apply validation command.
	File              string `json:"file,omitempty"`
	Change            string `json:"change,omitempty"`
	ValidationCommand string `json:"validation_command,omitempty"`

	// Success criteria. ExpectExitCode defaults to 0 when nil.
	// OutputPattern is a regexp matched against ANSI-stripped stdout.
	ExpectExitCode *int   `json:"expect_exit_code,omitempty"`
	OutputPattern  string `json:"output_pattern,omitempty"`

	// DependsOn lists step IDs that must complete before this step runs.
	// A skipped dependency skips this step too.
	DependsOn []string `json:"depends_on,omitempty"`

	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

// ExpectedExit returns the exit code the step's command must produce.
func (s PlanStep) ExpectedExit() int {
	if s.ExpectExitCode != nil {
		return *s.ExpectExitCode
	}
	return 0
}

// Timeout returns the step timeout, or zero when the profile default applies.
func (s PlanStep) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// ExecutionBatch groups steps that execute together between checkpoints.
type ExecutionBatch struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	RiskSummary RiskLevel  `json:"risk_summary"`
	Steps       []PlanStep `json:"steps"`
}

// ComputeRisk returns the highest risk among the batch's steps, falling
// back to the declared summary when steps carry no risk of their own.
func (b ExecutionBatch) ComputeRisk() RiskLevel {
	max := RiskLow
	hasStepRisk := false
	for _, s := range b.Steps {
		if s.Risk != "" {
			hasStepRisk = true
			max = MaxRisk(max, s.Risk)
		}
	}
	if !hasStepRisk && b.RiskSummary.Valid() {
		return b.RiskSummary
	}
	return max
}

// ExecutionPlan is the architect's full proposal for an issue.
type ExecutionPlan struct {
	ID        string           `json:"id"`
	IssueRef  string           `json:"issue_ref"`
	Summary   string           `json:"summary"`
	Warnings  []string         `json:"warnings,omitempty"`
	Batches   []ExecutionBatch `json:"batches"`
	CreatedAt time.Time        `json:"created_at"`
}

// TotalSteps counts every step across all batches.
func (p *ExecutionPlan) TotalSteps() int {
	n := 0
	for _, b := range p.Batches {
		n += len(b.Steps)
	}
	return n
}

// Step finds a step by ID, also returning its batch index.
func (p *ExecutionPlan) Step(id string) (PlanStep, int, bool) {
	for bi, b := range p.Batches {
		for _, s := range b.Steps {
			if s.ID == id {
				return s, bi, true
			}
		}
	}
	return PlanStep{}, -1, false
}

// Batch finds a batch by ID.
func (p *ExecutionPlan) Batch(id string) (ExecutionBatch, bool) {
	for _, b := range p.Batches {
		if b.ID == id {
			return b, true
		}
	}
	return ExecutionBatch{}, false
}

// =============================================================================
// Results
// =============================================================================

// StepStatus is the terminal state of one executed (or skipped) step.
type StepStatus string

const (
	StepCompleted StepStatus = "completed"
	StepSkipped   StepStatus = "skipped"
	StepFailed    StepStatus = "failed"
	StepCancelled StepStatus = "cancelled"
)

// StepResult records the outcome of a single step. Output is truncated;
// the full output lives in the run's artifact directory.
type StepResult struct {
	StepID          string        `json:"step_id"`
	Status          StepStatus    `json:"status"`
	ExecutedCommand string        `json:"executed_command,omitempty"`
	Output          string        `json:"output,omitempty"`
	ExitCode        int           `json:"exit_code"`
	Error           string        `json:"error,omitempty"`
	Attempts        int           `json:"attempts,omitempty"`
	SkipReason      string        `json:"skip_reason,omitempty"`
	StartedAt       time.Time     `json:"started_at"`
	Duration        time.Duration `json:"duration"`
}

// BatchStatus describes how far a batch got.
type BatchStatus string

const (
	// BatchComplete means every step completed or was skipped.
	BatchComplete BatchStatus = "complete"
	// BatchBlocked means execution stopped on an unresolved blocker.
	BatchBlocked BatchStatus = "blocked"
	// BatchPartial means execution suspended or stopped mid-batch with
	// some steps done, for example a per-step checkpoint or a cancel.
	BatchPartial BatchStatus = "partial"
)

// BatchResult records the outcome of one batch.
type BatchResult struct {
	BatchID   string        `json:"batch_id"`
	Status    BatchStatus   `json:"status"`
	Steps     []StepResult  `json:"steps"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Completed counts steps that finished successfully.
func (r BatchResult) Completed() int {
	n := 0
	for _, s := range r.Steps {
		if s.Status == StepCompleted {
			n++
		}
	}
	return n
}

// =============================================================================
// Blockers and approvals
// =============================================================================

// BlockerType classifies why execution stopped.
type BlockerType string

const (
	BlockerCommandFailed    BlockerType = "command_failed"
	BlockerValidationFailed BlockerType = "validation_failed"
	BlockerNeedsJudgment    BlockerType = "needs_judgment"
	BlockerUnexpectedState  BlockerType = "unexpected_state"
	BlockerDependencySkip   BlockerType = "dependency_skipped"
	BlockerUserCancelled    BlockerType = "user_cancelled"
)

// BlockerReport describes the single active blocker of a workflow.
// A workflow holds at most one at a time; it must be resolved before
// execution continues.
type BlockerReport struct {
	ID          string      `json:"id"`
	WorkflowID  string      `json:"workflow_id"`
	BatchID     string      `json:"batch_id,omitempty"`
	StepID      string      `json:"step_id,omitempty"`
	Type        BlockerType `json:"blocker_type"`
	Summary     string      `json:"summary"`
	Detail      string      `json:"detail,omitempty"`
	Output      string      `json:"output,omitempty"`
	Suggestions []string    `json:"suggestions,omitempty"`
	RaisedAt    time.Time   `json:"raised_at"`
}

// String renders a short one-line description for logs.
func (b *BlockerReport) String() string {
	if b.StepID != "" {
		return fmt.Sprintf("%s at step %s: %s", b.Type, b.StepID, b.Summary)
	}
	return fmt.Sprintf("%s: %s", b.Type, b.Summary)
}

// BatchApproval records a human decision at a batch checkpoint.
type BatchApproval struct {
	BatchID   string    `json:"batch_id"`
	StepID    string    `json:"step_id,omitempty"`
	Approved  bool      `json:"approved"`
	Feedback  string    `json:"feedback,omitempty"`
	Token     string    `json:"token,omitempty"`
	DecidedAt time.Time `json:"decided_at"`
}
