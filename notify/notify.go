package notify

import (
	"context"

	"github.com/randalmurphal/conductor/event"
)

// =============================================================================
// Severity
// =============================================================================

// Severity buckets events for sinks that color or level by urgency.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// SeverityFor maps an event type to the severity sinks render it with.
// Failures are errors, anything waiting on a human is a warning, and the
// rest is informational.
func SeverityFor(t event.Type) Severity {
	switch t {
	case event.TypeWorkflowFailed, event.TypeStepFailed:
		return SeverityError
	case event.TypeApprovalRequired, event.TypeBlocked,
		event.TypePlanRejected, event.TypeWorkflowCancelled:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// =============================================================================
// Notifier Interface
// =============================================================================

// Notifier delivers a workflow event to an external channel.
type Notifier interface {
	// Notify sends one notification. Implementations should respect the
	// context deadline and return an error rather than block; the caller
	// decides whether a failed delivery matters.
	Notify(ctx context.Context, ev event.Event) error
}
