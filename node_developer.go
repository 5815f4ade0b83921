package conductor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	nanoid "github.com/matoous/go-nanoid/v2"

	"github.com/randalmurphal/conductor/event"
	"github.com/randalmurphal/conductor/plan"
	"github.com/randalmurphal/conductor/runner"
)

// nodeDeveloper runs one execution leg of the current batch: from the
// step cursor until the batch completes, a checkpoint interrupts, a
// blocker stops it, or the context is cancelled. The routing function
// turns the resulting DeveloperStatus into the next node.
func (r *run) nodeDeveloper(ctx context.Context, st ExecState) (ExecState, error) {
	m := r.m

	if st.Plan == nil {
		return st, errors.New("developer entered without a plan")
	}
	if !st.BatchesRemaining() {
		return st.WithDevStatus(DevAllDone), nil
	}

	g, err := r.gitCtx()
	if err != nil {
		return st, err
	}
	if st.Baseline == nil {
		base, berr := g.CaptureSnapshot()
		if berr != nil {
			return st, fmt.Errorf("capture baseline: %w", berr)
		}
		st = st.WithBaseline(base)
	}

	batch := st.Plan.Batches[st.BatchIndex]
	eng := runner.NewEngine(g, m.cmdRunner,
		runner.WithReviewer(m.reviewer),
		runner.WithProfile(r.prof),
		runner.WithObserver(&engineObserver{m: m, ctx: context.WithoutCancel(ctx)}),
		runner.WithLogger(m.logger),
	)
	op := runner.ExecOp{
		WorkflowID: st.WorkflowID,
		Goal:       st.Goal(),
		Plan:       st.Plan,
		BatchIndex: st.BatchIndex,
		StepCursor: st.StepCursor,
		Snapshot:   st.Snapshot,
		Results:    st.StepResults,
		Skipped:    st.Skipped,
	}

	stepCtx, cancelStep := context.WithCancel(ctx)
	m.registerStepCancel(st.WorkflowID, cancelStep)
	out, err := eng.ExecuteBatch(stepCtx, op)
	cancelStep()
	m.clearStepCancel(st.WorkflowID)
	if err != nil {
		return st, fmt.Errorf("execute batch %s: %w", batch.ID, err)
	}

	st = st.WithSnapshot(out.Snapshot).WithStepResults(out.Results).WithSkipped(out.Skipped)

	switch out.Kind {
	case runner.OutcomeBatchDone:
		return r.batchDone(st, batch, out), nil

	case runner.OutcomeStepCheckpoint:
		st = st.WithCursor(st.BatchIndex, out.NextCursor)
		return st.WithDevStatus(DevBatchComplete), nil

	case runner.OutcomeBlocked:
		st = st.WithCursor(st.BatchIndex, out.NextCursor)
		return st.WithBlocker(out.Blocker).WithDevStatus(DevBlocked), nil

	case runner.OutcomeCancelled:
		if ctx.Err() != nil {
			// Workflow-level cancellation or shutdown.
			return st, ctx.Err()
		}
		// Only the step context was cancelled: the operator killed the
		// step but the workflow lives on as blocked.
		st = st.WithCursor(st.BatchIndex, out.NextCursor)
		b := userCancelBlocker(st, batch, out.NextCursor)
		return st.WithBlocker(b).WithDevStatus(DevBlocked), nil
	}
	return st, fmt.Errorf("unexpected execution outcome %q", out.Kind)
}

// batchDone records the finished batch, saves its diff, and decides
// whether a human checkpoint is needed before the next one.
func (r *run) batchDone(st ExecState, batch plan.ExecutionBatch, out runner.ExecOutcome) ExecState {
	m := r.m
	res := *out.BatchResult

	if m.artifacts != nil && out.Snapshot != nil {
		if diff, err := r.g.DiffSince(out.Snapshot); err != nil {
			r.log.Warn("batch diff", slog.String("batch", batch.ID), slog.Any("error", err))
		} else if err := m.artifacts.SaveDiff(st.WorkflowID, batch.ID, diff); err != nil {
			r.log.Warn("save diff artifact", slog.Any("error", err))
		}
	}

	st = st.WithBatchResult(res)
	st = st.WithCursor(st.BatchIndex+1, 0)

	if r.prof.AutoApproves(batch.ComputeRisk()) {
		st = st.WithApproval(plan.BatchApproval{
			BatchID:   batch.ID,
			Approved:  true,
			Feedback:  "auto-approved",
			DecidedAt: time.Now().UTC(),
		})
		if st.BatchesRemaining() {
			return st.WithDevStatus(DevExecuting)
		}
		return st.WithDevStatus(DevAllDone)
	}
	return st.WithDevStatus(DevBatchComplete)
}

// userCancelBlocker reports an operator-cancelled step as a blocker so
// the workflow pauses instead of dying.
func userCancelBlocker(st ExecState, batch plan.ExecutionBatch, cursor int) *plan.BlockerReport {
	stepID := ""
	summary := "step cancelled by operator"
	if cursor >= 0 && cursor < len(batch.Steps) {
		stepID = batch.Steps[cursor].ID
		summary = fmt.Sprintf("step %s cancelled by operator", stepID)
	}
	return &plan.BlockerReport{
		ID:         newBlockerID(),
		WorkflowID: st.WorkflowID,
		BatchID:    batch.ID,
		StepID:     stepID,
		Type:       plan.BlockerUserCancelled,
		Summary:    summary,
		Suggestions: []string{
			"retry the step",
			"skip it if it is no longer needed",
			"abort the workflow",
		},
		RaisedAt: time.Now().UTC(),
	}
}

func newBlockerID() string {
	id, err := nanoid.New()
	if err != nil {
		return fmt.Sprintf("blk_%d", time.Now().UnixNano())
	}
	return "blk_" + id
}

// engineObserver forwards engine progress to the event bus, the hooks,
// and the artifact store, and keeps the manager's notion of the current
// step fresh for CancelStep. The context is detached from cancellation
// so teardown events still get recorded.
type engineObserver struct {
	m   *Manager
	ctx context.Context
}

var _ runner.Observer = (*engineObserver)(nil)

func (o *engineObserver) BatchStarted(workflowID string, batch plan.ExecutionBatch) {
	o.m.publish(o.ctx, workflowID, event.AgentDeveloper, event.TypeBatchStarted,
		fmt.Sprintf("batch %s started", batch.Name),
		map[string]any{
			"batch_id": batch.ID,
			"steps":    len(batch.Steps),
			"risk":     string(batch.ComputeRisk()),
		})
}

func (o *engineObserver) StepStarted(workflowID string, step plan.PlanStep) {
	o.m.setCurrentStep(workflowID, step.ID)
	o.m.publish(o.ctx, workflowID, event.AgentDeveloper, event.TypeStepStarted,
		step.Description,
		map[string]any{
			"step_id": step.ID,
			"action":  string(step.Action),
			"risk":    string(step.Risk),
			"command": step.Command,
		})
}

func (o *engineObserver) StepFinished(workflowID string, result plan.StepResult, fullOutput string) {
	o.m.setCurrentStep(workflowID, "")

	typ := event.TypeStepCompleted
	if result.Status != plan.StepCompleted {
		typ = event.TypeStepFailed
	}
	data := map[string]any{
		"step_id":     result.StepID,
		"status":      string(result.Status),
		"exit_code":   result.ExitCode,
		"attempts":    result.Attempts,
		"duration_ms": result.Duration.Milliseconds(),
	}
	if result.Error != "" {
		data["error"] = result.Error
	}
	msg := fmt.Sprintf("step %s %s", result.StepID, result.Status)
	o.m.publish(o.ctx, workflowID, event.AgentDeveloper, typ, msg, data)
	o.m.hooks.StepExecuted(o.ctx, workflowID, result)

	if o.m.artifacts != nil {
		if err := o.m.artifacts.SaveStepOutput(workflowID, result, fullOutput); err != nil {
			o.m.logger.Warn("save step artifact",
				slog.String("workflow_id", workflowID),
				slog.String("step", result.StepID),
				slog.Any("error", err))
		}
	}
}

func (o *engineObserver) StepSkipped(workflowID string, result plan.StepResult) {
	o.m.publish(o.ctx, workflowID, event.AgentDeveloper, event.TypeStepSkipped,
		fmt.Sprintf("step %s skipped: %s", result.StepID, result.SkipReason),
		map[string]any{"step_id": result.StepID, "reason": result.SkipReason})
	o.m.hooks.StepExecuted(o.ctx, workflowID, result)
}

func (o *engineObserver) BatchFinished(workflowID string, result plan.BatchResult) {
	o.m.publish(o.ctx, workflowID, event.AgentDeveloper, event.TypeBatchComplete,
		fmt.Sprintf("batch %s %s", result.BatchID, result.Status),
		map[string]any{
			"batch_id":  result.BatchID,
			"status":    string(result.Status),
			"steps":     len(result.Steps),
			"completed": result.Completed(),
		})
	o.m.hooks.BatchFinished(o.ctx, workflowID, result)
}
