package plan

import (
	"fmt"
	"strings"
)

// Batch size caps by risk. Oversized batches are split by Normalize so a
// human checkpoint never has to reason about too many risky steps at once.
const (
	MaxStepsLowRisk    = 5
	MaxStepsMediumRisk = 3
	MaxStepsHighRisk   = 1
)

// BatchCap returns the maximum number of steps allowed in a batch of the
// given risk.
func BatchCap(r RiskLevel) int {
	switch r {
	case RiskHigh:
		return MaxStepsHighRisk
	case RiskMedium:
		return MaxStepsMediumRisk
	default:
		return MaxStepsLowRisk
	}
}

// ValidationError reports every structural problem found in a plan.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid plan: %s", strings.Join(e.Issues, "; "))
}

// Validate checks a plan's structure: batches and steps present, step IDs
// unique, dependency references resolving to earlier steps, and the fields
// each action type requires. Violations are permanent errors; a plan that
// fails validation goes back to the architect.
func Validate(p *ExecutionPlan) error {
	var issues []string
	add := func(format string, args ...any) {
		issues = append(issues, fmt.Sprintf(format, args...))
	}

	if p == nil {
		return &ValidationError{Issues: []string{"plan is nil"}}
	}
	if len(p.Batches) == 0 {
		add("plan has no batches")
	}

	seen := make(map[string]bool, p.TotalSteps())
	for bi, b := range p.Batches {
		if b.ID == "" {
			add("batch %d has no id", bi)
		}
		if len(b.Steps) == 0 {
			add("batch %q has no steps", b.ID)
		}
		if b.RiskSummary != "" && !b.RiskSummary.Valid() {
			add("batch %q has unknown risk %q", b.ID, b.RiskSummary)
		}
		for _, s := range b.Steps {
			if s.ID == "" {
				add("batch %q contains a step with no id", b.ID)
				continue
			}
			if seen[s.ID] {
				add("duplicate step id %q", s.ID)
			}
			if !s.Action.Valid() {
				add("step %q has unknown action %q", s.ID, s.Action)
			}
			if s.Risk != "" && !s.Risk.Valid() {
				add("step %q has unknown risk %q", s.ID, s.Risk)
			}
			switch s.Action {
			case ActionCommand, ActionValidation:
				if s.Command == "" {
					add("step %q (%s) has no command", s.ID, s.Action)
				}
			case ActionCode:
				if s.File == "" {
					add("step %q (code) has no file", s.ID)
				}
			}
			// Dependencies must point at steps defined earlier in plan
			// order, which also rules out cycles.
			for _, dep := range s.DependsOn {
				if dep == s.ID {
					add("step %q depends on itself", s.ID)
				} else if !seen[dep] {
					add("step %q depends on %q which is not defined earlier in the plan", s.ID, dep)
				}
			}
			seen[s.ID] = true
		}
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

// Normalize returns a copy of the plan with batch risk summaries recomputed
// and oversized batches split into ordered parts named with a "(part i/n)"
// suffix. A warning is appended for every split. Normalizing an already
// normalized plan returns an equivalent plan.
func Normalize(p *ExecutionPlan) *ExecutionPlan {
	out := *p
	out.Batches = make([]ExecutionBatch, 0, len(p.Batches))
	out.Warnings = append([]string(nil), p.Warnings...)

	for _, b := range p.Batches {
		risk := b.ComputeRisk()
		b.RiskSummary = risk
		limit := BatchCap(risk)
		if len(b.Steps) <= limit {
			out.Batches = append(out.Batches, b)
			continue
		}

		parts := splitBatch(b, limit)
		out.Batches = append(out.Batches, parts...)
		out.Warnings = append(out.Warnings, fmt.Sprintf(
			"batch %q has %d steps, over the %s-risk cap of %d; split into %d parts",
			b.Name, len(b.Steps), risk, limit, len(parts)))
	}
	return &out
}

// splitBatch chunks a batch's steps in order into parts of at most limit
// steps. Step order is preserved, so dependencies across parts stay
// satisfiable.
func splitBatch(b ExecutionBatch, limit int) []ExecutionBatch {
	n := (len(b.Steps) + limit - 1) / limit
	parts := make([]ExecutionBatch, 0, n)
	for i := 0; i < n; i++ {
		lo := i * limit
		hi := lo + limit
		if hi > len(b.Steps) {
			hi = len(b.Steps)
		}
		part := ExecutionBatch{
			ID:          fmt.Sprintf("%s-p%d", b.ID, i+1),
			Name:        fmt.Sprintf("%s (part %d/%d)", b.Name, i+1, n),
			Description: b.Description,
			RiskSummary: b.RiskSummary,
			Steps:       append([]PlanStep(nil), b.Steps[lo:hi]...),
		}
		part.RiskSummary = part.ComputeRisk()
		parts = append(parts, part)
	}
	return parts
}
