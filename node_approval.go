package conductor

import (
	"context"
	"errors"
	"fmt"

	"github.com/randalmurphal/conductor/plan"
)

// nodeHumanApproval is the plan checkpoint. Without a decision it
// suspends; with one it consumes an approval and leaves a rejection in
// place for the router, which sends the state back to planning.
func (r *run) nodeHumanApproval(ctx context.Context, st ExecState) (ExecState, error) {
	d := st.PlanDecision
	if d == nil {
		reason := fmt.Sprintf("plan for %s awaiting approval", st.IssueRef)
		if st.Plan != nil {
			reason = fmt.Sprintf("plan for %s awaiting approval: %d batches, %d steps",
				st.IssueRef, len(st.Plan.Batches), st.Plan.TotalSteps())
		}
		return st.Suspend(NodeHumanApproval, reason), nil
	}
	if d.Approved {
		return st.WithPlanDecision(nil), nil
	}
	// Rejected: the routing function reads the decision and returns the
	// state to the plan node, which folds the feedback in.
	return st, nil
}

// nodeBatchApproval is the batch (or, under paranoid trust, per-step)
// checkpoint. Approval advances execution; rejection fails the workflow
// with the batch's changes kept on disk for inspection.
func (r *run) nodeBatchApproval(ctx context.Context, st ExecState) (ExecState, error) {
	midBatch := len(st.StepResults) > 0
	d := st.BatchDecision
	if d == nil {
		return st.Suspend(NodeBatchApproval, r.checkpointReason(st, midBatch)), nil
	}
	st = st.WithBatchDecision(nil)

	batchID, stepID := approvalScope(st, midBatch)
	if !d.Approved {
		st = st.WithApproval(plan.BatchApproval{
			BatchID:   batchID,
			StepID:    stepID,
			Approved:  false,
			Feedback:  d.Feedback,
			DecidedAt: d.DecidedAt,
		})
		if d.Feedback != "" {
			return st, fmt.Errorf("batch rejected: %s", d.Feedback)
		}
		return st, errors.New("batch rejected")
	}

	st = st.WithApproval(plan.BatchApproval{
		BatchID:   batchID,
		StepID:    stepID,
		Approved:  true,
		Feedback:  d.Feedback,
		DecidedAt: d.DecidedAt,
	})
	return st.WithDevStatus(DevExecuting), nil
}

// checkpointReason describes what the operator is being asked to
// approve.
func (r *run) checkpointReason(st ExecState, midBatch bool) string {
	if midBatch {
		batch := st.CurrentBatch()
		last := st.StepResults[len(st.StepResults)-1]
		if batch != nil {
			return fmt.Sprintf("step %s complete (%d/%d in batch %q); awaiting approval to continue",
				last.StepID, st.StepCursor, len(batch.Steps), batch.Name)
		}
		return fmt.Sprintf("step %s complete; awaiting approval to continue", last.StepID)
	}
	if n := len(st.BatchResults); n > 0 {
		done := st.BatchResults[n-1]
		total := 0
		if st.Plan != nil {
			total = len(st.Plan.Batches)
		}
		return fmt.Sprintf("batch %d/%d complete (%s); awaiting approval to continue",
			n, total, done.BatchID)
	}
	return "batch checkpoint awaiting approval"
}

// approvalScope identifies what a batch decision applies to: the step
// just finished when paused mid-batch, otherwise the batch that just
// completed.
func approvalScope(st ExecState, midBatch bool) (batchID, stepID string) {
	if midBatch {
		if b := st.CurrentBatch(); b != nil {
			batchID = b.ID
		}
		stepID = st.StepResults[len(st.StepResults)-1].StepID
		return batchID, stepID
	}
	if n := len(st.BatchResults); n > 0 {
		return st.BatchResults[n-1].BatchID, ""
	}
	if b := st.CurrentBatch(); b != nil {
		return b.ID, ""
	}
	return "", ""
}
