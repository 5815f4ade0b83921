package profile

import (
	"testing"
	"time"

	"github.com/randalmurphal/llmkit/model"

	"github.com/randalmurphal/conductor/plan"
)

func TestDefaultModelMap(t *testing.T) {
	tests := []struct {
		stage    Stage
		expected model.ModelName
	}{
		{StageArchitect, model.ModelOpus},
		{StageDeveloper, model.ModelSonnet},
		{StageReviewer, model.ModelSonnet},
		{StageFix, model.ModelSonnet},
	}

	p := Default()
	for _, tt := range tests {
		if got := p.ModelFor(tt.stage); got != tt.expected {
			t.Errorf("ModelFor(%s) = %s, want %s", tt.stage, got, tt.expected)
		}
	}
}

func TestModelFor_ExplicitOverride(t *testing.T) {
	p := Default()
	p.Models = map[Stage]model.ModelName{StageReviewer: model.ModelOpus}

	if got := p.ModelFor(StageReviewer); got != model.ModelOpus {
		t.Errorf("ModelFor(reviewer) = %s, want %s", got, model.ModelOpus)
	}
	if got := p.ModelFor(StageDeveloper); got != model.ModelSonnet {
		t.Errorf("ModelFor(developer) = %s, want %s", got, model.ModelSonnet)
	}
}

func TestTierForStage(t *testing.T) {
	if got := TierForStage(StageArchitect); got != model.TierThinking {
		t.Errorf("TierForStage(architect) = %v, want thinking tier", got)
	}
	if got := TierForStage(StageDeveloper); got != model.TierDefault {
		t.Errorf("TierForStage(developer) = %v, want default tier", got)
	}
}

func TestAutoApproves(t *testing.T) {
	tests := []struct {
		name  string
		trust TrustLevel
		limit plan.RiskLevel
		risk  plan.RiskLevel
		want  bool
	}{
		{"standard never auto-approves", TrustStandard, plan.RiskHigh, plan.RiskLow, false},
		{"paranoid never auto-approves", TrustParanoid, plan.RiskHigh, plan.RiskLow, false},
		{"autonomous approves at limit", TrustAutonomous, plan.RiskMedium, plan.RiskMedium, true},
		{"autonomous approves below limit", TrustAutonomous, plan.RiskMedium, plan.RiskLow, true},
		{"autonomous rejects above limit", TrustAutonomous, plan.RiskMedium, plan.RiskHigh, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Default()
			p.Trust = tt.trust
			p.AutoApproveRisk = tt.limit

			if got := p.AutoApproves(tt.risk); got != tt.want {
				t.Errorf("AutoApproves(%s) = %v, want %v", tt.risk, got, tt.want)
			}
		})
	}
}

func TestPerStepCheckpoints(t *testing.T) {
	p := Default()
	if p.PerStepCheckpoints() {
		t.Error("standard profile should not checkpoint per step")
	}

	p.Trust = TrustParanoid
	if !p.PerStepCheckpoints() {
		t.Error("paranoid profile should checkpoint per step")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Profile)
		wantErr bool
	}{
		{"default is valid", func(p *Profile) {}, false},
		{"missing name", func(p *Profile) { p.Name = "" }, true},
		{"unknown trust", func(p *Profile) { p.Trust = "yolo" }, true},
		{"zero timeout", func(p *Profile) { p.StepTimeout = 0 }, true},
		{"negative review fixes", func(p *Profile) { p.MaxReviewFixes = -1 }, true},
		{"unknown risk", func(p *Profile) { p.AutoApproveRisk = "extreme" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Default()
			tt.mutate(p)

			err := p.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewSelector(t *testing.T) {
	selector := NewSelector()

	if got := selector.Select(StageArchitect); got != model.ModelOpus {
		t.Errorf("Select(architect) = %s, want %s", got, model.ModelOpus)
	}
	if got := selector.Select(StageDeveloper); got != model.ModelSonnet {
		t.Errorf("Select(developer) = %s, want %s", got, model.ModelSonnet)
	}
}

func TestNewSelector_GlobalOverride(t *testing.T) {
	selector := NewSelector(model.WithGlobalOverride(model.ModelHaiku))

	if got := selector.Select(StageArchitect); got != model.ModelHaiku {
		t.Errorf("Select(architect) = %s, want %s", got, model.ModelHaiku)
	}
}

func TestDefault(t *testing.T) {
	p := Default()

	if p.Trust != TrustStandard {
		t.Errorf("Trust = %s, want %s", p.Trust, TrustStandard)
	}
	if p.StepTimeout != 10*time.Minute {
		t.Errorf("StepTimeout = %v, want 10m", p.StepTimeout)
	}
	if p.MaxReviewFixes != 2 {
		t.Errorf("MaxReviewFixes = %d, want 2", p.MaxReviewFixes)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Default().Validate() = %v, want nil", err)
	}
}
