package conductor

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/randalmurphal/conductor/plan"
)

// recordingHooks appends the name of each callback it receives.
type recordingHooks struct {
	NoopHooks
	calls []string
}

func (r *recordingHooks) WorkflowStarted(context.Context, *Workflow) {
	r.calls = append(r.calls, "started")
}

func (r *recordingHooks) WorkflowFailed(_ context.Context, _ *Workflow, reason string) {
	r.calls = append(r.calls, "failed:"+reason)
}

func (r *recordingHooks) NodeEntered(_ context.Context, _ string, node Node) {
	r.calls = append(r.calls, "node:"+string(node))
}

func TestNewMultiHooks(t *testing.T) {
	if _, ok := NewMultiHooks().(NoopHooks); !ok {
		t.Error("NewMultiHooks() should collapse to NoopHooks")
	}
	if _, ok := NewMultiHooks(nil, nil).(NoopHooks); !ok {
		t.Error("NewMultiHooks(nil, nil) should collapse to NoopHooks")
	}

	single := &recordingHooks{}
	if got := NewMultiHooks(nil, single); got != Hooks(single) {
		t.Error("NewMultiHooks with one hook should return it unwrapped")
	}
}

func TestMultiHooks_FanOut(t *testing.T) {
	a := &recordingHooks{}
	b := &recordingHooks{}
	hooks := NewMultiHooks(a, b)

	ctx := context.Background()
	wf := NewWorkflow("gh-1", "/wt", "standard")
	hooks.WorkflowStarted(ctx, wf)
	hooks.NodeEntered(ctx, wf.ID, NodePlan)
	hooks.WorkflowFailed(ctx, wf, "boom")

	want := []string{"started", "node:plan", "failed:boom"}
	for _, r := range []*recordingHooks{a, b} {
		if len(r.calls) != len(want) {
			t.Fatalf("calls = %v, want %v", r.calls, want)
		}
		for i := range want {
			if r.calls[i] != want[i] {
				t.Errorf("calls[%d] = %q, want %q", i, r.calls[i], want[i])
			}
		}
	}
}

func TestLoggingHooks(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	hooks := NewLoggingHooks(logger)

	ctx := context.Background()
	wf := NewWorkflow("gh-1", "/wt", "standard")
	hooks.WorkflowStarted(ctx, wf)
	hooks.NodeFinished(ctx, wf.ID, NodePlan, errors.New("planner offline"), time.Second)
	hooks.StepExecuted(ctx, wf.ID, plan.StepResult{StepID: "s1", Status: plan.StepFailed, Attempts: 2})

	out := buf.String()
	for _, want := range []string{"workflow started", "node finished", "planner offline", "step executed"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestNewLoggingHooksNilLogger(t *testing.T) {
	h, ok := NewLoggingHooks(nil).(*LoggingHooks)
	if !ok {
		t.Fatal("NewLoggingHooks(nil) did not return *LoggingHooks")
	}
	if h.Logger == nil {
		t.Error("nil logger not replaced with default")
	}
}

func TestMetricsHooks(t *testing.T) {
	var m MetricsHooks
	ctx := context.Background()
	wf := NewWorkflow("gh-1", "/wt", "standard")

	m.WorkflowStarted(ctx, wf)
	m.WorkflowStarted(ctx, wf)
	m.WorkflowCompleted(ctx, wf)
	m.WorkflowFailed(ctx, wf, "boom")
	m.WorkflowBlocked(ctx, wf, &plan.BlockerReport{ID: "blk-1"})
	m.StepExecuted(ctx, wf.ID, plan.StepResult{Status: plan.StepCompleted, Attempts: 1})
	m.StepExecuted(ctx, wf.ID, plan.StepResult{Status: plan.StepFailed, Attempts: 3})

	snap := m.Snapshot()
	if snap.WorkflowsStarted != 2 || snap.WorkflowsCompleted != 1 || snap.WorkflowsFailed != 1 {
		t.Errorf("workflow counters = %+v", snap)
	}
	if snap.WorkflowsBlocked != 1 {
		t.Errorf("WorkflowsBlocked = %d, want 1", snap.WorkflowsBlocked)
	}
	if snap.ActiveWorkflows != 0 {
		t.Errorf("ActiveWorkflows = %d, want 0", snap.ActiveWorkflows)
	}
	if snap.StepsExecuted != 2 || snap.StepsFailed != 1 {
		t.Errorf("step counters = %+v", snap)
	}
	if snap.StepRetries != 2 {
		t.Errorf("StepRetries = %d, want 2", snap.StepRetries)
	}
}

func TestMetricsHooks_ImplementsHooks(t *testing.T) {
	// The embedded NoopHooks fills the callbacks metrics ignore.
	var _ Hooks = &MetricsHooks{}
}
