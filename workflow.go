package conductor

import (
	"fmt"
	"time"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Status is a workflow's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusBlocked,
		StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// transitions is the validated status transition table.
// in_progress -> in_progress is permitted so that resuming an
// already-running workflow is an idempotent no-op.
var transitions = map[Status][]Status{
	StatusPending:    {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusInProgress, StatusBlocked, StatusCompleted, StatusFailed, StatusCancelled},
	StatusBlocked:    {StatusInProgress, StatusFailed, StatusCancelled},
	StatusCompleted:  {},
	StatusFailed:     {},
	StatusCancelled:  {},
}

// CanTransition reports whether the table permits from -> to.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Workflow is the persistent record of one issue being driven to a
// reviewed change set.
type Workflow struct {
	ID            string    `json:"id"`
	IssueRef      string    `json:"issue_ref"`
	Worktree      string    `json:"worktree"`
	Status        Status    `json:"status"`
	Stage         Node      `json:"stage"`
	Profile       string    `json:"profile"`
	FailureReason string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	StartedAt     time.Time `json:"started_at,omitempty"`
	CompletedAt   time.Time `json:"completed_at,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewWorkflow creates a pending workflow record.
func NewWorkflow(issueRef, worktree, profileName string) *Workflow {
	now := time.Now().UTC()
	return &Workflow{
		ID:        newWorkflowID(now),
		IssueRef:  issueRef,
		Worktree:  worktree,
		Status:    StatusPending,
		Stage:     NodePlan,
		Profile:   profileName,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Transition moves the workflow to a new status, enforcing the table.
// Terminal transitions stamp CompletedAt; entering in_progress for the
// first time stamps StartedAt.
func (w *Workflow) Transition(to Status) error {
	if !CanTransition(w.Status, to) {
		return &TransitionError{WorkflowID: w.ID, From: w.Status, To: to}
	}

	now := time.Now().UTC()
	if to == StatusInProgress && w.StartedAt.IsZero() {
		w.StartedAt = now
	}
	if to.Terminal() {
		w.CompletedAt = now
	}
	w.Status = to
	w.UpdatedAt = now
	return nil
}

// Terminal reports whether the workflow can change no further.
func (w *Workflow) Terminal() bool {
	return w.Status.Terminal()
}

// Clone returns a copy safe to hand across goroutines.
func (w *Workflow) Clone() *Workflow {
	cp := *w
	return &cp
}

func newWorkflowID(now time.Time) string {
	id, err := nanoid.Generate("abcdefghijklmnopqrstuvwxyz0123456789", 10)
	if err != nil {
		id = fmt.Sprintf("%d", now.UnixNano())
	}
	return fmt.Sprintf("wf_%s_%s", now.Format("20060102"), id)
}
