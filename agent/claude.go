package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	llm "github.com/randalmurphal/llmkit/claude"
	"github.com/randalmurphal/llmkit/model"

	"github.com/randalmurphal/conductor/plan"
	"github.com/randalmurphal/conductor/profile"
)

// ClientFactory builds an llm.Client for a model and working directory.
// The default factory shells out to the Claude CLI; tests inject mock
// clients.
type ClientFactory func(name model.ModelName, workdir string) llm.Client

// ClaudeAgent implements Architect, Developer, and Reviewer backed by
// the Claude CLI. Models are selected per stage from the profile.
type ClaudeAgent struct {
	profile *profile.Profile
	factory ClientFactory
	logger  *slog.Logger
}

var (
	_ Architect = (*ClaudeAgent)(nil)
	_ Developer = (*ClaudeAgent)(nil)
	_ Reviewer  = (*ClaudeAgent)(nil)
)

// ClaudeOption configures ClaudeAgent.
type ClaudeOption func(*ClaudeAgent)

// WithClientFactory sets a custom client factory.
// This is primarily used for testing to inject mock clients.
func WithClientFactory(f ClientFactory) ClaudeOption {
	return func(a *ClaudeAgent) {
		a.factory = f
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) ClaudeOption {
	return func(a *ClaudeAgent) {
		a.logger = logger
	}
}

// NewClaudeAgent creates the Claude-backed agent for a profile.
func NewClaudeAgent(p *profile.Profile, opts ...ClaudeOption) *ClaudeAgent {
	a := &ClaudeAgent{
		profile: p,
		factory: defaultFactory,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func defaultFactory(name model.ModelName, workdir string) llm.Client {
	return llm.NewClaudeCLI(
		llm.WithModel(string(name)),
		llm.WithWorkdir(workdir),
		llm.WithDangerouslySkipPermissions(), // Non-interactive mode for automation
	)
}

// complete runs one prompt through the stage's model and returns the
// response content.
func (a *ClaudeAgent) complete(ctx context.Context, stage profile.Stage, workdir, systemPrompt, prompt string) (string, error) {
	client := a.factory(a.profile.ModelFor(stage), workdir)

	result, err := client.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("%s completion: %w", stage, err)
	}

	a.logger.Debug("agent completion",
		"stage", stage,
		"tokens_in", result.Usage.InputTokens,
		"tokens_out", result.Usage.OutputTokens)

	return result.Content, nil
}

// ProposePlan asks the architect model for an execution plan.
func (a *ClaudeAgent) ProposePlan(ctx context.Context, req PlanRequest) (*plan.ExecutionPlan, error) {
	prompt := formatPlanPrompt(req)

	content, err := a.complete(ctx, profile.StageArchitect, req.Worktree, planSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	p, err := parsePlanOutput(content)
	if err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}

	if p.IssueRef == "" && req.Issue != nil {
		p.IssueRef = req.Issue.Ref
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	return p, nil
}

// Fix asks the developer model to make a change in the worktree. The
// CLI edits files directly; only failure is reported back.
func (a *ClaudeAgent) Fix(ctx context.Context, req FixRequest) error {
	prompt := formatFixPrompt(req)

	_, err := a.complete(ctx, profile.StageFix, req.Worktree, fixSystemPrompt, prompt)
	return err
}

// ReviewBatch asks for a pre-execution sanity pass over a batch.
func (a *ClaudeAgent) ReviewBatch(ctx context.Context, req BatchReviewRequest) (BatchReview, error) {
	prompt := formatBatchReviewPrompt(req)

	content, err := a.complete(ctx, profile.StageReviewer, req.Worktree, "", prompt)
	if err != nil {
		return BatchReview{}, err
	}

	var review BatchReview
	if err := json.Unmarshal([]byte(extractJSON(content)), &review); err != nil {
		// An unparseable verdict blocks nothing; note the concern instead.
		return BatchReview{OK: true, Concerns: []string{"reviewer output could not be parsed"}}, nil
	}
	return review, nil
}

// ValidateStep asks whether a step still makes sense before running it.
func (a *ClaudeAgent) ValidateStep(ctx context.Context, req StepValidationRequest) (StepValidation, error) {
	prompt := formatStepValidationPrompt(req)

	content, err := a.complete(ctx, profile.StageReviewer, req.Worktree, "", prompt)
	if err != nil {
		return StepValidation{}, err
	}

	var validation StepValidation
	if err := json.Unmarshal([]byte(extractJSON(content)), &validation); err != nil {
		return StepValidation{OK: true}, nil
	}
	return validation, nil
}

// AdaptStep asks the reviewer to rewrite a step that cannot run as
// planned. The returned step keeps the original ID and dependencies.
func (a *ClaudeAgent) AdaptStep(ctx context.Context, req AdaptRequest) (*plan.PlanStep, error) {
	prompt := formatAdaptPrompt(req)

	content, err := a.complete(ctx, profile.StageReviewer, req.Worktree, "", prompt)
	if err != nil {
		return nil, err
	}

	var step plan.PlanStep
	if err := json.Unmarshal([]byte(extractJSON(content)), &step); err != nil {
		return nil, fmt.Errorf("parse adapted step: %w", err)
	}

	// Adaptation changes how the step runs, never which step it is.
	step.ID = req.Step.ID
	step.DependsOn = req.Step.DependsOn
	if step.Action == "" {
		step.Action = req.Step.Action
	}
	if step.Risk == "" {
		step.Risk = req.Step.Risk
	}
	return &step, nil
}

// ReviewChanges runs a full review of the run's diff.
func (a *ClaudeAgent) ReviewChanges(ctx context.Context, req ReviewRequest) (*ReviewResult, error) {
	prompt := formatReviewPrompt(req)

	content, err := a.complete(ctx, profile.StageReviewer, req.Worktree, reviewSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	review, parseErr := parseReviewOutput(content)
	if parseErr != nil {
		// If parsing fails, create a basic review
		review = &ReviewResult{
			Approved: false,
			Summary:  content,
		}
	}
	return review, nil
}

// parseReviewOutput attempts to parse review JSON from Claude output.
func parseReviewOutput(output string) (*ReviewResult, error) {
	var review ReviewResult
	if err := json.Unmarshal([]byte(extractJSON(output)), &review); err != nil {
		return nil, err
	}
	return &review, nil
}

// parsePlanOutput attempts to parse an execution plan from Claude output.
func parsePlanOutput(output string) (*plan.ExecutionPlan, error) {
	var p plan.ExecutionPlan
	if err := json.Unmarshal([]byte(extractJSON(output)), &p); err != nil {
		return nil, err
	}
	if len(p.Batches) == 0 {
		return nil, fmt.Errorf("plan has no batches")
	}
	return &p, nil
}

// extractJSON pulls a JSON payload out of code fences if present,
// otherwise returns the trimmed output as-is.
func extractJSON(output string) string {
	output = strings.TrimSpace(output)

	if start := strings.Index(output, "```json"); start != -1 {
		start += 7
		if end := strings.Index(output[start:], "```"); end != -1 {
			return strings.TrimSpace(output[start : start+end])
		}
	} else if start := strings.Index(output, "```"); start != -1 {
		start += 3
		if end := strings.Index(output[start:], "```"); end != -1 {
			return strings.TrimSpace(output[start : start+end])
		}
	}

	return output
}
