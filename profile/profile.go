package profile

import (
	"fmt"
	"time"

	"github.com/randalmurphal/llmkit/model"

	"github.com/randalmurphal/conductor/plan"
	"github.com/randalmurphal/conductor/retry"
)

// TrustLevel controls how much of a workflow runs without a human.
type TrustLevel string

const (
	// TrustParanoid checkpoints after every step.
	TrustParanoid TrustLevel = "paranoid"

	// TrustStandard checkpoints after every batch.
	TrustStandard TrustLevel = "standard"

	// TrustAutonomous auto-approves batches at or below the profile's
	// AutoApproveRisk; riskier batches still checkpoint.
	TrustAutonomous TrustLevel = "autonomous"
)

// Valid reports whether t is a known trust level.
func (t TrustLevel) Valid() bool {
	switch t {
	case TrustParanoid, TrustStandard, TrustAutonomous:
		return true
	}
	return false
}

// Stage identifies which engine role is calling the model.
// This determines which model tier is appropriate.
type Stage string

const (
	// Planning needs reasoning
	StageArchitect Stage = "architect"

	// Standard dev stages - default tier
	StageDeveloper Stage = "developer"
	StageReviewer  Stage = "reviewer"
	StageFix       Stage = "fix"
)

// DefaultModelMap maps stages to default models.
var DefaultModelMap = map[Stage]model.ModelName{
	StageArchitect: model.ModelOpus,
	StageDeveloper: model.ModelSonnet,
	StageReviewer:  model.ModelSonnet,
	StageFix:       model.ModelSonnet,
}

// TierForStage returns the appropriate tier for a stage.
func TierForStage(s Stage) model.Tier {
	if s == StageArchitect {
		return model.TierThinking
	}
	return model.TierDefault
}

// NewSelector creates a model selector configured for workflow stages.
// It uses the standard stage-to-tier mapping.
func NewSelector(opts ...model.SelectorOption) *model.Selector {
	// Prepend the tier function to use Stage
	allOpts := append([]model.SelectorOption{
		model.WithTierFunc(func(task any) model.Tier {
			if s, ok := task.(Stage); ok {
				return TierForStage(s)
			}
			return model.TierDefault
		}),
	}, opts...)

	return model.NewSelector(allOpts...)
}

// Profile bundles the execution policy for a workflow: trust level,
// per-stage models, retry behavior, and review-loop bounds.
type Profile struct {
	Name            string
	Trust           TrustLevel
	Models          map[Stage]model.ModelName // explicit overrides; DefaultModelMap fills gaps
	Retry           retry.Config
	StepTimeout     time.Duration
	MaxReviewFixes  int            // reviewer finding -> fix -> re-review passes
	AutoApproveRisk plan.RiskLevel // autonomous trust auto-approves up to this risk
}

// Default returns the standard profile: per-batch checkpoints, default
// retry policy, 10 minute step timeout, 2 review fix passes.
func Default() *Profile {
	return &Profile{
		Name:            "standard",
		Trust:           TrustStandard,
		Retry:           retry.DefaultConfig(),
		StepTimeout:     10 * time.Minute,
		MaxReviewFixes:  2,
		AutoApproveRisk: plan.RiskMedium,
	}
}

// ModelFor returns the model for a stage: explicit override first,
// then the stage default.
func (p *Profile) ModelFor(stage Stage) model.ModelName {
	if m, ok := p.Models[stage]; ok && m != "" {
		return m
	}
	if m, ok := DefaultModelMap[stage]; ok {
		return m
	}
	return model.ModelSonnet
}

// PerStepCheckpoints reports whether every step needs explicit approval.
func (p *Profile) PerStepCheckpoints() bool {
	return p.Trust == TrustParanoid
}

// AutoApproves reports whether a batch of the given risk proceeds
// without a human checkpoint under this profile.
func (p *Profile) AutoApproves(risk plan.RiskLevel) bool {
	if p.Trust != TrustAutonomous {
		return false
	}
	return p.AutoApproveRisk.AtLeast(risk)
}

// Validate checks the profile is usable.
func (p *Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile name is required")
	}
	if !p.Trust.Valid() {
		return fmt.Errorf("profile %s: unknown trust level %q", p.Name, p.Trust)
	}
	if err := p.Retry.Validate(); err != nil {
		return fmt.Errorf("profile %s: %w", p.Name, err)
	}
	if p.StepTimeout <= 0 {
		return fmt.Errorf("profile %s: step timeout must be positive", p.Name)
	}
	if p.MaxReviewFixes < 0 {
		return fmt.Errorf("profile %s: max review fixes must be >= 0", p.Name)
	}
	if !p.AutoApproveRisk.Valid() {
		return fmt.Errorf("profile %s: unknown auto-approve risk %q", p.Name, p.AutoApproveRisk)
	}
	return nil
}
