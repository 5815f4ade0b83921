package agent

import (
	"fmt"
	"strings"
)

const planSystemPrompt = `You are a senior engineer planning the execution of an issue.
Produce small, verifiable steps. Prefer commands whose success can be
checked by exit code or output. Mark anything touching migrations,
deletions, force pushes, or credentials as high risk.`

const fixSystemPrompt = `You are a developer working in a git worktree.
Make the requested change directly in the files. Keep the change minimal
and do not refactor unrelated code.`

const reviewSystemPrompt = `You are reviewing changes produced by an automated run.
Judge correctness and safety, not style preferences. Only report findings
you are confident about.`

// formatPlanPrompt creates the plan proposal prompt.
func formatPlanPrompt(req PlanRequest) string {
	var b strings.Builder
	b.WriteString("Create an execution plan for this issue:\n\n")
	if req.Issue != nil {
		b.WriteString(fmt.Sprintf("**Issue**: %s\n", req.Issue.Ref))
		b.WriteString(fmt.Sprintf("**Title**: %s\n\n", req.Issue.Title))
		if req.Issue.Body != "" {
			b.WriteString(fmt.Sprintf("**Description**:\n%s\n\n", req.Issue.Body))
		}
		if len(req.Issue.Labels) > 0 {
			b.WriteString(fmt.Sprintf("**Labels**: %s\n\n", strings.Join(req.Issue.Labels, ", ")))
		}
	}

	if len(req.Feedback) > 0 {
		b.WriteString("## Previous proposals were rejected\n\n")
		for i, fb := range req.Feedback {
			b.WriteString(fmt.Sprintf("%d. %s\n", i+1, fb))
		}
		b.WriteString("\nAddress this feedback in the new plan.\n\n")
	}

	b.WriteString("Group steps into batches of related work. Each step needs an id, ")
	b.WriteString("a description, an action_type (command, code, validation, or manual), ")
	b.WriteString("and a risk (low, medium, high). Code steps name the file and the ")
	b.WriteString("change; command steps carry the command and may list fallback_commands.\n\n")
	b.WriteString("Respond with a JSON object:\n")
	b.WriteString("```json\n")
	b.WriteString(`{"summary": "...", "batches": [{"id": "b1", "name": "...", "risk_summary": "low", "steps": [{"id": "s1", "description": "...", "action_type": "command", "risk": "low", "command": "go test ./..."}]}]}`)
	b.WriteString("\n```\n")
	return b.String()
}

// formatFixPrompt creates the developer fix prompt.
func formatFixPrompt(req FixRequest) string {
	var b strings.Builder
	b.WriteString("Make the following change in this worktree:\n\n")
	b.WriteString(req.Instruction)
	b.WriteString("\n")
	if req.Context != "" {
		b.WriteString("\n## Context\n\n")
		b.WriteString(req.Context)
		b.WriteString("\n")
	}
	return b.String()
}

// formatBatchReviewPrompt creates the pre-batch review prompt.
func formatBatchReviewPrompt(req BatchReviewRequest) string {
	var b strings.Builder
	b.WriteString("Review this batch of steps before they run:\n\n")
	if req.Goal != "" {
		b.WriteString(fmt.Sprintf("**Goal**: %s\n\n", req.Goal))
	}
	b.WriteString(fmt.Sprintf("**Batch**: %s (risk: %s)\n\n", req.Batch.Name, req.Batch.RiskSummary))
	for i, step := range req.Batch.Steps {
		b.WriteString(fmt.Sprintf("%d. [%s] %s", i+1, step.Risk, step.Description))
		if step.Command != "" {
			b.WriteString(fmt.Sprintf("\n   `%s`", step.Command))
		}
		b.WriteString("\n")
	}
	b.WriteString("\nAre these steps safe and sensible for the goal?\n\n")
	b.WriteString("Respond with a JSON object:\n")
	b.WriteString("```json\n")
	b.WriteString(`{"ok": true/false, "concerns": ["..."]}`)
	b.WriteString("\n```\n")
	return b.String()
}

// formatStepValidationPrompt creates the single-step validation prompt.
func formatStepValidationPrompt(req StepValidationRequest) string {
	var b strings.Builder
	b.WriteString("Check whether this step still makes sense against the current worktree:\n\n")
	if req.Goal != "" {
		b.WriteString(fmt.Sprintf("**Goal**: %s\n\n", req.Goal))
	}
	b.WriteString(fmt.Sprintf("**Step**: %s\n", req.Step.Description))
	if req.Step.Command != "" {
		b.WriteString(fmt.Sprintf("**Command**: `%s`\n", req.Step.Command))
	}
	if req.Step.File != "" {
		b.WriteString(fmt.Sprintf("**File**: %s\n", req.Step.File))
	}
	b.WriteString("\nRespond with a JSON object:\n")
	b.WriteString("```json\n")
	b.WriteString(`{"ok": true/false, "problem": "..."}`)
	b.WriteString("\n```\n")
	return b.String()
}

// formatAdaptPrompt creates the step adaptation prompt.
func formatAdaptPrompt(req AdaptRequest) string {
	var b strings.Builder
	b.WriteString("This step cannot run as planned. Rewrite it so it can:\n\n")
	if req.Goal != "" {
		b.WriteString(fmt.Sprintf("**Goal**: %s\n\n", req.Goal))
	}
	b.WriteString(fmt.Sprintf("**Step**: %s\n", req.Step.Description))
	if req.Step.Command != "" {
		b.WriteString(fmt.Sprintf("**Command**: `%s`\n", req.Step.Command))
	}
	b.WriteString(fmt.Sprintf("**Problem**: %s\n\n", req.Problem))
	b.WriteString("Keep the same intent. Respond with the revised step as a JSON object:\n")
	b.WriteString("```json\n")
	b.WriteString(`{"description": "...", "action_type": "command", "risk": "low", "command": "..."}`)
	b.WriteString("\n```\n")
	return b.String()
}

// formatReviewPrompt creates the full change review prompt.
func formatReviewPrompt(req ReviewRequest) string {
	var b strings.Builder
	b.WriteString("Review the following changes:\n\n")
	if req.Goal != "" {
		b.WriteString(fmt.Sprintf("**Goal**: %s\n\n", req.Goal))
	}
	b.WriteString("## Diff\n\n")
	b.WriteString("```diff\n")
	b.WriteString(req.Diff)
	b.WriteString("\n```\n\n")
	b.WriteString("Respond with a JSON object:\n")
	b.WriteString("```json\n")
	b.WriteString(`{"approved": true/false, "verdict": "APPROVE/REQUEST_CHANGES", "summary": "...", "findings": [{"file": "...", "line": 1, "severity": "error", "category": "logic", "message": "...", "suggestion": "..."}]}`)
	b.WriteString("\n```\n")
	return b.String()
}
