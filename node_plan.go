package conductor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/randalmurphal/conductor/agent"
	"github.com/randalmurphal/conductor/event"
	"github.com/randalmurphal/conductor/plan"
	"github.com/randalmurphal/conductor/tracker"
)

// nodePlan asks the architect for an execution plan. On a replanning
// pass the rejection feedback is folded in first so the architect sees
// everything the human objected to, oldest first.
func (r *run) nodePlan(ctx context.Context, st ExecState) (ExecState, error) {
	m := r.m

	if d := st.PlanDecision; d != nil && !d.Approved {
		if fb := strings.TrimSpace(d.Feedback); fb != "" {
			st = st.WithPlanFeedback(fb)
		}
		st = st.WithPlanDecision(nil)
	}

	if st.Issue == nil {
		issue, err := r.resolveIssue(ctx, st.IssueRef)
		if err != nil {
			return st, err
		}
		st = st.WithIssue(issue)
	}

	if m.architect == nil {
		return st, errors.New("no architect configured")
	}

	attempt := len(st.PlanFeedback) + 1
	m.publish(ctx, st.WorkflowID, event.AgentArchitect, event.TypePlanningStarted,
		fmt.Sprintf("planning %s", st.IssueRef),
		map[string]any{"attempt": attempt})

	p, err := m.architect.ProposePlan(ctx, agent.PlanRequest{
		Issue:    st.Issue,
		Worktree: st.Worktree,
		Feedback: st.PlanFeedback,
	})
	if err != nil {
		return st, fmt.Errorf("planning: %w", err)
	}
	if p == nil {
		return st, errors.New("planning: architect returned no plan")
	}
	return st.WithPlan(p), nil
}

// resolveIssue fetches the issue from the tracker. Without a tracker the
// reference itself becomes a minimal issue, which is enough for local
// runs where the operator wrote the plan goal into the ref.
func (r *run) resolveIssue(ctx context.Context, ref string) (*tracker.Issue, error) {
	if r.m.issues == nil {
		return &tracker.Issue{Ref: ref, Title: ref}, nil
	}
	issue, err := r.m.issues.Get(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("fetch issue %s: %w", ref, err)
	}
	return issue, nil
}

// nodePlanValidate normalizes the proposed plan (risk-capped batch
// splitting) and validates it. Validation failures are permanent: a plan
// the checks reject fails the workflow rather than looping the
// architect.
func (r *run) nodePlanValidate(ctx context.Context, st ExecState) (ExecState, error) {
	m := r.m
	if st.Plan == nil {
		return st, errors.New("no plan to validate")
	}

	normalized := plan.Normalize(st.Plan)
	if err := plan.Validate(normalized); err != nil {
		return st, fmt.Errorf("plan validation: %w", err)
	}
	st = st.WithPlan(normalized)

	for _, w := range normalized.Warnings {
		r.log.Warn("plan warning", slog.String("warning", w))
	}
	if m.artifacts != nil {
		if err := m.artifacts.SavePlan(st.WorkflowID, normalized); err != nil {
			r.log.Warn("save plan artifact", slog.Any("error", err))
		}
	}

	data := map[string]any{
		"plan_id": normalized.ID,
		"batches": len(normalized.Batches),
		"steps":   normalized.TotalSteps(),
	}
	if len(normalized.Warnings) > 0 {
		data["warnings"] = normalized.Warnings
	}
	m.publish(ctx, st.WorkflowID, event.AgentArchitect, event.TypePlanReady,
		normalized.Summary, data)
	return st, nil
}
