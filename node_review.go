package conductor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/randalmurphal/conductor/agent"
	"github.com/randalmurphal/conductor/event"
	"github.com/randalmurphal/conductor/pr"
)

// nodeReview runs the reviewer over everything the workflow changed.
// Blocking findings trigger a developer fix pass and a re-review,
// bounded by the profile's MaxReviewFixes; when the budget runs out the
// workflow still completes, with the findings recorded and any pull
// request marked draft.
func (r *run) nodeReview(ctx context.Context, st ExecState) (ExecState, error) {
	m := r.m

	m.publish(ctx, st.WorkflowID, event.AgentReviewer, event.TypeReviewStarted,
		fmt.Sprintf("reviewing changes for %s", st.IssueRef),
		map[string]any{"attempt": st.ReviewAttempt + 1})

	if m.reviewer == nil {
		st = st.WithReview(&agent.ReviewResult{
			Approved: true,
			Verdict:  agent.VerdictApprove,
			Summary:  "no reviewer configured; auto-approved",
		})
		r.reviewComplete(ctx, st)
		return st, nil
	}

	g, err := r.gitCtx()
	if err != nil {
		return st, err
	}

	for {
		diff := ""
		if st.Baseline != nil {
			d, derr := g.DiffSince(st.Baseline)
			if derr != nil {
				return st, fmt.Errorf("diff for review: %w", derr)
			}
			diff = d
		}
		res, rerr := m.reviewer.ReviewChanges(ctx, agent.ReviewRequest{
			Worktree: st.Worktree,
			Goal:     st.Goal(),
			Diff:     diff,
		})
		if rerr != nil {
			return st, fmt.Errorf("review: %w", rerr)
		}
		if res == nil {
			return st, fmt.Errorf("review: reviewer returned no result")
		}
		st = st.WithReview(res)

		if m.artifacts != nil {
			if aerr := m.artifacts.SaveReview(st.WorkflowID, res); aerr != nil {
				r.log.Warn("save review artifact", slog.Any("error", aerr))
			}
		}

		if !res.HasBlockingFindings() {
			break
		}
		if st.ReviewAttempt > r.prof.MaxReviewFixes || m.developer == nil {
			r.log.Warn("review findings remain",
				slog.Int("attempt", st.ReviewAttempt),
				slog.Int("findings", len(res.Findings)))
			break
		}

		r.log.Info("review fix pass",
			slog.Int("attempt", st.ReviewAttempt),
			slog.Int("findings", len(res.Findings)))
		ferr := m.developer.Fix(ctx, agent.FixRequest{
			Worktree:    st.Worktree,
			Instruction: "Address the blocking review findings.",
			Context:     findingsText(res),
		})
		if ferr != nil {
			if ctx.Err() != nil {
				return st, ctx.Err()
			}
			r.log.Warn("review fix failed", slog.Any("error", ferr))
			break
		}
	}

	r.reviewComplete(ctx, st)
	return st, nil
}

// reviewComplete announces the verdict and publishes the pull request
// when a publisher is configured.
func (r *run) reviewComplete(ctx context.Context, st ExecState) {
	res := st.Review
	r.m.publish(ctx, st.WorkflowID, event.AgentReviewer, event.TypeReviewComplete,
		res.Summary,
		map[string]any{
			"approved": res.Approved,
			"verdict":  res.Verdict,
			"findings": len(res.Findings),
			"attempts": st.ReviewAttempt,
		})
	r.publishPR(ctx, st)
}

// publishPR composes and publishes the pull request. Publication
// failures are logged, never fatal: the changes are already on disk and
// the operator can open the PR by hand.
func (r *run) publishPR(ctx context.Context, st ExecState) {
	m := r.m
	if m.publisher == nil {
		return
	}
	g, err := r.gitCtx()
	if err != nil {
		r.log.Warn("publish pr", slog.Any("error", err))
		return
	}
	branch, err := g.CurrentBranch()
	if err != nil {
		r.log.Warn("publish pr: current branch", slog.Any("error", err))
		return
	}

	draft := st.Review != nil && st.Review.HasBlockingFindings()
	res, err := m.publisher.Publish(ctx, pr.Request{
		Worktree: st.Worktree,
		Branch:   branch,
		IssueRef: st.IssueRef,
		Title:    prTitle(st),
		Body:     prBody(st),
		Draft:    draft,
	})
	if err != nil {
		r.log.Warn("publish pr", slog.Any("error", err))
		return
	}
	m.publish(ctx, st.WorkflowID, event.AgentSystem, event.TypePRCreated,
		fmt.Sprintf("pull request created: %s", res.URL),
		map[string]any{"url": res.URL, "number": res.Number, "draft": draft})
}

func prTitle(st ExecState) string {
	if st.Issue != nil && st.Issue.Title != "" && st.Issue.Title != st.IssueRef {
		return fmt.Sprintf("%s: %s", st.IssueRef, st.Issue.Title)
	}
	return fmt.Sprintf("%s: %s", st.IssueRef, st.Goal())
}

// prBody renders the plan summary, a batch table, and the review verdict
// as the pull request description.
func prBody(st ExecState) string {
	var b strings.Builder

	if st.Plan != nil && st.Plan.Summary != "" {
		b.WriteString(st.Plan.Summary)
		b.WriteString("\n")
	}

	if len(st.BatchResults) > 0 {
		b.WriteString("\n## Batches\n\n")
		b.WriteString("| Batch | Status | Steps |\n|---|---|---|\n")
		for _, res := range st.BatchResults {
			fmt.Fprintf(&b, "| %s | %s | %d/%d |\n",
				res.BatchID, res.Status, res.Completed(), len(res.Steps))
		}
	}
	if n := len(st.Skipped); n > 0 {
		fmt.Fprintf(&b, "\n%d step(s) skipped.\n", n)
	}

	if res := st.Review; res != nil {
		b.WriteString("\n## Review\n\n")
		if res.Verdict != "" {
			fmt.Fprintf(&b, "**%s**", res.Verdict)
			if res.Summary != "" {
				b.WriteString(": ")
			}
		}
		b.WriteString(res.Summary)
		b.WriteString("\n")
		if len(res.Findings) > 0 {
			b.WriteString("\n")
			b.WriteString(findingsText(res))
			b.WriteString("\n")
		}
	}
	return strings.TrimLeft(b.String(), "\n")
}

// findingsText lists review findings one per line, capped so agent
// prompts and PR bodies stay readable.
func findingsText(res *agent.ReviewResult) string {
	const limit = 10
	var b strings.Builder
	for i, f := range res.Findings {
		if i == limit {
			fmt.Fprintf(&b, "... and %d more\n", len(res.Findings)-limit)
			break
		}
		loc := f.File
		if f.Line > 0 {
			loc = fmt.Sprintf("%s:%d", f.File, f.Line)
		}
		fmt.Fprintf(&b, "- [%s] %s: %s", f.Severity, loc, f.Message)
		if f.Suggestion != "" {
			fmt.Fprintf(&b, " (%s)", f.Suggestion)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
