package conductor

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/randalmurphal/conductor/plan"
)

// Hooks receives callbacks at workflow, node, batch, and step boundaries
// for logging, metrics, policy, and audit extensions.
//
// Implementations should be fast and non-blocking; heavy work should be
// done asynchronously so as not to delay workflow execution.
type Hooks interface {
	// WorkflowStarted is called once when a workflow leaves pending.
	WorkflowStarted(ctx context.Context, wf *Workflow)

	// WorkflowCompleted is called when a workflow reaches completed.
	WorkflowCompleted(ctx context.Context, wf *Workflow)

	// WorkflowFailed is called when a workflow reaches failed.
	WorkflowFailed(ctx context.Context, wf *Workflow, reason string)

	// WorkflowBlocked is called each time a blocker suspends a workflow.
	WorkflowBlocked(ctx context.Context, wf *Workflow, blocker *plan.BlockerReport)

	// WorkflowCancelled is called when a workflow reaches cancelled.
	WorkflowCancelled(ctx context.Context, wf *Workflow)

	// NodeEntered is called before a node executes.
	NodeEntered(ctx context.Context, workflowID string, node Node)

	// NodeFinished is called after a node returns, for both successes
	// and failures (err != nil).
	NodeFinished(ctx context.Context, workflowID string, node Node, err error, duration time.Duration)

	// BatchFinished is called when a batch completes.
	BatchFinished(ctx context.Context, workflowID string, result plan.BatchResult)

	// StepExecuted is called for every step result the engine produces,
	// including skips and failures.
	StepExecuted(ctx context.Context, workflowID string, result plan.StepResult)
}

// NoopHooks is a Hooks that does nothing. It is the default when no hooks
// are configured.
type NoopHooks struct{}

func (NoopHooks) WorkflowStarted(context.Context, *Workflow)                      {}
func (NoopHooks) WorkflowCompleted(context.Context, *Workflow)                    {}
func (NoopHooks) WorkflowFailed(context.Context, *Workflow, string)               {}
func (NoopHooks) WorkflowBlocked(context.Context, *Workflow, *plan.BlockerReport) {}
func (NoopHooks) WorkflowCancelled(context.Context, *Workflow)                    {}
func (NoopHooks) NodeEntered(context.Context, string, Node)                       {}
func (NoopHooks) NodeFinished(context.Context, string, Node, error, time.Duration) {
}
func (NoopHooks) BatchFinished(context.Context, string, plan.BatchResult) {}
func (NoopHooks) StepExecuted(context.Context, string, plan.StepResult)   {}

// MultiHooks fans out callbacks to multiple hooks.
type MultiHooks struct {
	hooks []Hooks
}

// NewMultiHooks creates a Hooks that forwards each callback to every
// non-nil hook in hs.
func NewMultiHooks(hs ...Hooks) Hooks {
	filtered := make([]Hooks, 0, len(hs))
	for _, h := range hs {
		if h != nil {
			filtered = append(filtered, h)
		}
	}
	if len(filtered) == 0 {
		return NoopHooks{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &MultiHooks{hooks: filtered}
}

func (m *MultiHooks) WorkflowStarted(ctx context.Context, wf *Workflow) {
	for _, h := range m.hooks {
		h.WorkflowStarted(ctx, wf)
	}
}

func (m *MultiHooks) WorkflowCompleted(ctx context.Context, wf *Workflow) {
	for _, h := range m.hooks {
		h.WorkflowCompleted(ctx, wf)
	}
}

func (m *MultiHooks) WorkflowFailed(ctx context.Context, wf *Workflow, reason string) {
	for _, h := range m.hooks {
		h.WorkflowFailed(ctx, wf, reason)
	}
}

func (m *MultiHooks) WorkflowBlocked(ctx context.Context, wf *Workflow, blocker *plan.BlockerReport) {
	for _, h := range m.hooks {
		h.WorkflowBlocked(ctx, wf, blocker)
	}
}

func (m *MultiHooks) WorkflowCancelled(ctx context.Context, wf *Workflow) {
	for _, h := range m.hooks {
		h.WorkflowCancelled(ctx, wf)
	}
}

func (m *MultiHooks) NodeEntered(ctx context.Context, workflowID string, node Node) {
	for _, h := range m.hooks {
		h.NodeEntered(ctx, workflowID, node)
	}
}

func (m *MultiHooks) NodeFinished(ctx context.Context, workflowID string, node Node, err error, d time.Duration) {
	for _, h := range m.hooks {
		h.NodeFinished(ctx, workflowID, node, err, d)
	}
}

func (m *MultiHooks) BatchFinished(ctx context.Context, workflowID string, result plan.BatchResult) {
	for _, h := range m.hooks {
		h.BatchFinished(ctx, workflowID, result)
	}
}

func (m *MultiHooks) StepExecuted(ctx context.Context, workflowID string, result plan.StepResult) {
	for _, h := range m.hooks {
		h.StepExecuted(ctx, workflowID, result)
	}
}

// LoggingHooks writes structured logs using log/slog.
type LoggingHooks struct {
	Logger *slog.Logger
}

// NewLoggingHooks creates hooks that log lifecycle events with the given
// logger. If logger is nil, slog.Default() is used.
func NewLoggingHooks(logger *slog.Logger) Hooks {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingHooks{Logger: logger}
}

func (h *LoggingHooks) WorkflowStarted(ctx context.Context, wf *Workflow) {
	h.Logger.InfoContext(ctx, "workflow started",
		slog.String("workflow_id", wf.ID),
		slog.String("issue_ref", wf.IssueRef),
		slog.String("worktree", wf.Worktree),
	)
}

func (h *LoggingHooks) WorkflowCompleted(ctx context.Context, wf *Workflow) {
	h.Logger.InfoContext(ctx, "workflow completed",
		slog.String("workflow_id", wf.ID),
		slog.String("issue_ref", wf.IssueRef),
	)
}

func (h *LoggingHooks) WorkflowFailed(ctx context.Context, wf *Workflow, reason string) {
	h.Logger.ErrorContext(ctx, "workflow failed",
		slog.String("workflow_id", wf.ID),
		slog.String("reason", reason),
	)
}

func (h *LoggingHooks) WorkflowBlocked(ctx context.Context, wf *Workflow, blocker *plan.BlockerReport) {
	h.Logger.WarnContext(ctx, "workflow blocked",
		slog.String("workflow_id", wf.ID),
		slog.String("blocker_id", blocker.ID),
		slog.String("type", string(blocker.Type)),
		slog.String("step", blocker.StepID),
	)
}

func (h *LoggingHooks) WorkflowCancelled(ctx context.Context, wf *Workflow) {
	h.Logger.InfoContext(ctx, "workflow cancelled",
		slog.String("workflow_id", wf.ID),
	)
}

func (h *LoggingHooks) NodeEntered(ctx context.Context, workflowID string, node Node) {
	h.Logger.DebugContext(ctx, "node entered",
		slog.String("workflow_id", workflowID),
		slog.String("node", string(node)),
	)
}

func (h *LoggingHooks) NodeFinished(ctx context.Context, workflowID string, node Node, err error, d time.Duration) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
	}
	h.Logger.Log(ctx, level, "node finished",
		slog.String("workflow_id", workflowID),
		slog.String("node", string(node)),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

func (h *LoggingHooks) BatchFinished(ctx context.Context, workflowID string, result plan.BatchResult) {
	h.Logger.InfoContext(ctx, "batch finished",
		slog.String("workflow_id", workflowID),
		slog.String("batch", result.BatchID),
		slog.String("status", string(result.Status)),
		slog.Int("steps", len(result.Steps)),
		slog.Duration("duration", result.Duration),
	)
}

func (h *LoggingHooks) StepExecuted(ctx context.Context, workflowID string, result plan.StepResult) {
	level := slog.LevelDebug
	if result.Status == plan.StepFailed {
		level = slog.LevelWarn
	}
	h.Logger.Log(ctx, level, "step executed",
		slog.String("workflow_id", workflowID),
		slog.String("step", result.StepID),
		slog.String("status", string(result.Status)),
		slog.Int("attempts", result.Attempts),
		slog.Duration("duration", result.Duration),
	)
}

// MetricsHooks collects simple counters with atomics. It can be combined
// with LoggingHooks via NewMultiHooks.
type MetricsHooks struct {
	NoopHooks

	workflowsStarted   atomic.Int64
	workflowsCompleted atomic.Int64
	workflowsFailed    atomic.Int64
	workflowsBlocked   atomic.Int64
	workflowsCancelled atomic.Int64
	stepsExecuted      atomic.Int64
	stepsFailed        atomic.Int64
	stepRetries        atomic.Int64
}

// MetricsSnapshot is an immutable snapshot of MetricsHooks.
type MetricsSnapshot struct {
	WorkflowsStarted   int64
	WorkflowsCompleted int64
	WorkflowsFailed    int64
	WorkflowsBlocked   int64
	WorkflowsCancelled int64
	ActiveWorkflows    int64
	StepsExecuted      int64
	StepsFailed        int64
	StepRetries        int64
}

func (m *MetricsHooks) WorkflowStarted(context.Context, *Workflow) {
	m.workflowsStarted.Add(1)
}

func (m *MetricsHooks) WorkflowCompleted(context.Context, *Workflow) {
	m.workflowsCompleted.Add(1)
}

func (m *MetricsHooks) WorkflowFailed(context.Context, *Workflow, string) {
	m.workflowsFailed.Add(1)
}

func (m *MetricsHooks) WorkflowBlocked(context.Context, *Workflow, *plan.BlockerReport) {
	m.workflowsBlocked.Add(1)
}

func (m *MetricsHooks) WorkflowCancelled(context.Context, *Workflow) {
	m.workflowsCancelled.Add(1)
}

func (m *MetricsHooks) StepExecuted(_ context.Context, _ string, result plan.StepResult) {
	m.stepsExecuted.Add(1)
	if result.Status == plan.StepFailed {
		m.stepsFailed.Add(1)
	}
	if result.Attempts > 1 {
		m.stepRetries.Add(int64(result.Attempts - 1))
	}
}

// Snapshot returns the current counter values.
func (m *MetricsHooks) Snapshot() MetricsSnapshot {
	started := m.workflowsStarted.Load()
	completed := m.workflowsCompleted.Load()
	failed := m.workflowsFailed.Load()
	cancelled := m.workflowsCancelled.Load()

	return MetricsSnapshot{
		WorkflowsStarted:   started,
		WorkflowsCompleted: completed,
		WorkflowsFailed:    failed,
		WorkflowsBlocked:   m.workflowsBlocked.Load(),
		WorkflowsCancelled: cancelled,
		ActiveWorkflows:    started - completed - failed - cancelled,
		StepsExecuted:      m.stepsExecuted.Load(),
		StepsFailed:        m.stepsFailed.Load(),
		StepRetries:        m.stepRetries.Load(),
	}
}
