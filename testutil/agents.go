// Package testutil provides shared helpers for conductor tests: scripted
// agents, a recording command runner, an in-memory workspace, plan
// builders, and temporary git repositories.
package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/randalmurphal/conductor/agent"
	"github.com/randalmurphal/conductor/plan"
)

// ScriptedArchitect hands out queued plans in order and records every
// request. An empty queue fails the call, so tests script exactly the
// planning passes they expect.
type ScriptedArchitect struct {
	mu       sync.Mutex
	queue    []*plan.ExecutionPlan
	err      error
	requests []agent.PlanRequest
}

var _ agent.Architect = (*ScriptedArchitect)(nil)

// NewScriptedArchitect queues the given plans.
func NewScriptedArchitect(plans ...*plan.ExecutionPlan) *ScriptedArchitect {
	return &ScriptedArchitect{queue: append([]*plan.ExecutionPlan(nil), plans...)}
}

// Queue appends plans for later planning passes, e.g. the revised plan
// after a rejection.
func (a *ScriptedArchitect) Queue(plans ...*plan.ExecutionPlan) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.queue = append(a.queue, plans...)
}

// FailWith makes every subsequent ProposePlan call return err.
func (a *ScriptedArchitect) FailWith(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
}

// Requests returns the recorded planning requests, oldest first.
func (a *ScriptedArchitect) Requests() []agent.PlanRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]agent.PlanRequest(nil), a.requests...)
}

func (a *ScriptedArchitect) ProposePlan(_ context.Context, req agent.PlanRequest) (*plan.ExecutionPlan, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.requests = append(a.requests, req)
	if a.err != nil {
		return nil, a.err
	}
	if len(a.queue) == 0 {
		return nil, errors.New("no plan scripted")
	}
	p := a.queue[0]
	a.queue = a.queue[1:]
	return p, nil
}

// ScriptedDeveloper records fix requests. Every fix succeeds unless
// FailWith set an error or Do installed custom behavior.
type ScriptedDeveloper struct {
	mu       sync.Mutex
	err      error
	fn       func(agent.FixRequest) error
	requests []agent.FixRequest
}

var _ agent.Developer = (*ScriptedDeveloper)(nil)

// NewScriptedDeveloper returns a developer whose fixes all succeed.
func NewScriptedDeveloper() *ScriptedDeveloper {
	return &ScriptedDeveloper{}
}

// FailWith makes every subsequent Fix call return err.
func (d *ScriptedDeveloper) FailWith(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// Do installs fn as the behavior for subsequent Fix calls.
func (d *ScriptedDeveloper) Do(fn func(agent.FixRequest) error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fn = fn
}

// Requests returns the recorded fix requests, oldest first.
func (d *ScriptedDeveloper) Requests() []agent.FixRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]agent.FixRequest(nil), d.requests...)
}

func (d *ScriptedDeveloper) Fix(_ context.Context, req agent.FixRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.requests = append(d.requests, req)
	if d.fn != nil {
		return d.fn(req)
	}
	return d.err
}

// ScriptedReviewer answers review calls from per-method queues. Empty
// queues produce passing verdicts, so the zero reviewer approves
// everything and tests only script the calls they want to steer.
type ScriptedReviewer struct {
	mu sync.Mutex

	batchQueue  []agent.BatchReview
	stepQueue   []agent.StepValidation
	adaptQueue  []*plan.PlanStep
	reviewQueue []*agent.ReviewResult

	batchCalls  int
	stepCalls   int
	adaptCalls  int
	reviewCalls int
}

var _ agent.Reviewer = (*ScriptedReviewer)(nil)

// NewScriptedReviewer returns a reviewer that approves everything.
func NewScriptedReviewer() *ScriptedReviewer {
	return &ScriptedReviewer{}
}

// QueueBatchReview schedules verdicts for upcoming ReviewBatch calls.
func (r *ScriptedReviewer) QueueBatchReview(reviews ...agent.BatchReview) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batchQueue = append(r.batchQueue, reviews...)
}

// QueueStepValidation schedules verdicts for upcoming ValidateStep calls.
func (r *ScriptedReviewer) QueueStepValidation(vs ...agent.StepValidation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stepQueue = append(r.stepQueue, vs...)
}

// QueueAdapted schedules replacement steps for upcoming AdaptStep calls.
func (r *ScriptedReviewer) QueueAdapted(steps ...*plan.PlanStep) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adaptQueue = append(r.adaptQueue, steps...)
}

// QueueReview schedules results for upcoming ReviewChanges calls.
func (r *ScriptedReviewer) QueueReview(results ...*agent.ReviewResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reviewQueue = append(r.reviewQueue, results...)
}

// ReviewCalls reports how many times ReviewChanges ran.
func (r *ScriptedReviewer) ReviewCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reviewCalls
}

// BatchReviewCalls reports how many times ReviewBatch ran.
func (r *ScriptedReviewer) BatchReviewCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.batchCalls
}

func (r *ScriptedReviewer) ReviewBatch(context.Context, agent.BatchReviewRequest) (agent.BatchReview, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.batchCalls++
	if len(r.batchQueue) == 0 {
		return agent.BatchReview{OK: true}, nil
	}
	v := r.batchQueue[0]
	r.batchQueue = r.batchQueue[1:]
	return v, nil
}

func (r *ScriptedReviewer) ValidateStep(context.Context, agent.StepValidationRequest) (agent.StepValidation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stepCalls++
	if len(r.stepQueue) == 0 {
		return agent.StepValidation{OK: true}, nil
	}
	v := r.stepQueue[0]
	r.stepQueue = r.stepQueue[1:]
	return v, nil
}

func (r *ScriptedReviewer) AdaptStep(_ context.Context, req agent.AdaptRequest) (*plan.PlanStep, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.adaptCalls++
	if len(r.adaptQueue) == 0 {
		cp := *req.Step
		return &cp, nil
	}
	s := r.adaptQueue[0]
	r.adaptQueue = r.adaptQueue[1:]
	return s, nil
}

func (r *ScriptedReviewer) ReviewChanges(context.Context, agent.ReviewRequest) (*agent.ReviewResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.reviewCalls++
	if len(r.reviewQueue) == 0 {
		return &agent.ReviewResult{
			Approved: true,
			Verdict:  agent.VerdictApprove,
			Summary:  "looks good",
		}, nil
	}
	res := r.reviewQueue[0]
	r.reviewQueue = r.reviewQueue[1:]
	return res, nil
}
