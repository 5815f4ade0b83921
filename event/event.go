// Package event records and broadcasts what happens inside workflows.
//
// Every persisted event carries a per-workflow sequence number: strictly
// increasing, gapless, starting at 1. Consumers that reconnect ask for
// "everything after seq N" and get an ordered backfill followed by live
// events with no gaps or duplicates across the boundary.
package event

import (
	"fmt"
	"time"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Type identifies what an event describes.
type Type string

const (
	TypeWorkflowCreated   Type = "workflow_created"
	TypePlanningStarted   Type = "planning_started"
	TypePlanReady         Type = "plan_ready"
	TypePlanApproved      Type = "plan_approved"
	TypePlanRejected      Type = "plan_rejected"
	TypeApprovalRequired  Type = "approval_required"
	TypeBatchStarted      Type = "batch_started"
	TypeStepStarted       Type = "step_started"
	TypeStepCompleted     Type = "step_completed"
	TypeStepFailed        Type = "step_failed"
	TypeStepSkipped       Type = "step_skipped"
	TypeBatchComplete     Type = "batch_complete"
	TypeBlocked           Type = "blocked"
	TypeBlockerResolved   Type = "blocker_resolved"
	TypeReviewStarted     Type = "review_started"
	TypeReviewComplete    Type = "review_complete"
	TypePRCreated         Type = "pr_created"
	TypeWorkflowCompleted Type = "workflow_completed"
	TypeWorkflowFailed    Type = "workflow_failed"
	TypeWorkflowCancelled Type = "workflow_cancelled"

	// TypeHeartbeat is synthetic: emitted by the broadcaster on an
	// interval, never persisted, always Seq 0.
	TypeHeartbeat Type = "heartbeat"
)

// Agent labels who an event speaks for.
type Agent string

const (
	AgentArchitect Agent = "architect"
	AgentDeveloper Agent = "developer"
	AgentReviewer  Agent = "reviewer"
	AgentSystem    Agent = "system"
	AgentHuman     Agent = "human"
)

// Event is one entry in a workflow's history.
type Event struct {
	ID         string         `json:"id"`
	WorkflowID string         `json:"workflow_id"`
	Seq        int64          `json:"seq"`
	Time       time.Time      `json:"time"`
	Agent      Agent          `json:"agent,omitempty"`
	Type       Type           `json:"event_type"`
	Message    string         `json:"message,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// NewID returns a fresh event ID.
func NewID() (string, error) {
	id, err := nanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate event id: %w", err)
	}
	return "evt_" + id, nil
}
