package conductor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/randalmurphal/conductor/agent"
	"github.com/randalmurphal/conductor/plan"
)

// nodeBlockerResolution holds the workflow while a blocker awaits a
// human decision, then applies whatever the operator chose. skip, retry,
// and fix hand control back to the developer loop; the abort actions are
// terminal.
func (r *run) nodeBlockerResolution(ctx context.Context, st ExecState) (ExecState, error) {
	b := st.Blocker
	if b == nil {
		return st, errors.New("blocker resolution entered without a blocker")
	}
	res := st.Resolution
	if res == nil {
		return st.Suspend(NodeBlockerResolution, fmt.Sprintf("blocked: %s", b.Summary)), nil
	}

	switch res.Action {
	case ResolutionSkip:
		reason := res.Instruction
		if reason == "" {
			reason = "skipped by operator"
		}
		seed := make(map[string]string, len(st.Skipped)+1)
		for id, why := range st.Skipped {
			seed[id] = why
		}
		if b.StepID != "" {
			seed[b.StepID] = reason
		}
		st = st.WithStepResults(dropFailedResult(st.StepResults, b.StepID))
		st = st.WithSkipped(plan.CascadeSkip(st.Plan, seed))
		return st.ClearBlocker().WithDevStatus(DevExecuting), nil

	case ResolutionRetry:
		st = st.WithStepResults(dropFailedResult(st.StepResults, b.StepID))
		return st.ClearBlocker().WithDevStatus(DevExecuting), nil

	case ResolutionFix:
		if r.m.developer == nil {
			return st, errors.New("fix resolution requires a developer agent")
		}
		err := r.m.developer.Fix(ctx, agent.FixRequest{
			Worktree:    st.Worktree,
			Instruction: res.Instruction,
			Context:     blockerContext(b),
		})
		if err != nil {
			if ctx.Err() != nil {
				return st, ctx.Err()
			}
			// The fix did not land; stay blocked and let the operator
			// decide again.
			r.log.Warn("fix attempt failed",
				slog.String("blocker", b.ID),
				slog.Any("error", err))
			st = st.WithResolution(nil)
			return st.Suspend(NodeBlockerResolution,
				fmt.Sprintf("fix failed (%v); blocker still open: %s", err, b.Summary)), nil
		}
		st = st.WithStepResults(dropFailedResult(st.StepResults, b.StepID))
		return st.ClearBlocker().WithDevStatus(DevExecuting), nil

	case ResolutionAbortKeep:
		return st, abortError(res, "changes kept")

	case ResolutionAbortRevert:
		g, gerr := r.gitCtx()
		if gerr != nil {
			return st, gerr
		}
		snap := st.Snapshot
		if snap == nil {
			snap = st.Baseline
		}
		if snap != nil {
			reverted, rerr := g.RevertSince(snap)
			if rerr != nil {
				return st, fmt.Errorf("revert failed: %w", rerr)
			}
			r.log.Info("reverted batch changes", slog.Int("files", len(reverted)))
		}
		return st, abortError(res, "changes reverted")
	}
	return st, fmt.Errorf("unknown resolution action %q", res.Action)
}

func abortError(res *Resolution, disposition string) error {
	if res.Instruction != "" {
		return fmt.Errorf("aborted by operator (%s): %s", disposition, res.Instruction)
	}
	return fmt.Errorf("aborted by operator (%s)", disposition)
}

// blockerContext packs what the developer agent needs to know about the
// failure into one prompt-ready block.
func blockerContext(b *plan.BlockerReport) string {
	parts := make([]string, 0, 3)
	if b.Summary != "" {
		parts = append(parts, b.Summary)
	}
	if b.Detail != "" {
		parts = append(parts, b.Detail)
	}
	if b.Output != "" {
		parts = append(parts, "Output:\n"+b.Output)
	}
	return strings.Join(parts, "\n\n")
}

// dropFailedResult removes the trailing failed or cancelled result for a
// step so a user-initiated retry starts with a clean record. Results for
// other steps, and completed results, are left alone.
func dropFailedResult(results []plan.StepResult, stepID string) []plan.StepResult {
	if stepID == "" {
		return results
	}
	for i := len(results) - 1; i >= 0; i-- {
		if results[i].StepID != stepID {
			continue
		}
		if results[i].Status == plan.StepFailed || results[i].Status == plan.StepCancelled {
			out := make([]plan.StepResult, 0, len(results)-1)
			out = append(out, results[:i]...)
			out = append(out, results[i+1:]...)
			return out
		}
		return results
	}
	return results
}
