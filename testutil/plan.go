package testutil

import (
	"time"

	"github.com/randalmurphal/conductor/plan"
)

// CommandStep builds a low risk shell command step.
func CommandStep(id, command string) plan.PlanStep {
	return plan.PlanStep{
		ID:          id,
		Description: "run " + command,
		Action:      plan.ActionCommand,
		Risk:        plan.RiskLow,
		Command:     command,
	}
}

// RiskyStep builds a command step at the given risk level.
func RiskyStep(id, command string, risk plan.RiskLevel) plan.PlanStep {
	s := CommandStep(id, command)
	s.Risk = risk
	return s
}

// ManualStep builds a step only a human can perform.
func ManualStep(id, description string) plan.PlanStep {
	return plan.PlanStep{
		ID:          id,
		Description: description,
		Action:      plan.ActionManual,
		Risk:        plan.RiskMedium,
	}
}

// Batch groups steps under one id, which doubles as the batch name.
func Batch(id string, steps ...plan.PlanStep) plan.ExecutionBatch {
	return plan.ExecutionBatch{
		ID:    id,
		Name:  id,
		Steps: steps,
	}
}

// Plan assembles a ready-to-validate execution plan. Batches stay under
// the risk caps as long as they hold at most five low risk steps.
func Plan(issueRef, summary string, batches ...plan.ExecutionBatch) *plan.ExecutionPlan {
	return &plan.ExecutionPlan{
		ID:        "pln_" + issueRef,
		IssueRef:  issueRef,
		Summary:   summary,
		Batches:   batches,
		CreatedAt: time.Now().UTC(),
	}
}
