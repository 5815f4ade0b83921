package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	nanoid "github.com/matoous/go-nanoid/v2"

	"github.com/randalmurphal/conductor/agent"
	"github.com/randalmurphal/conductor/git"
	"github.com/randalmurphal/conductor/plan"
	"github.com/randalmurphal/conductor/profile"
	"github.com/randalmurphal/conductor/retry"
)

// Observer receives execution progress. Calls happen inline on the
// engine goroutine; implementations must not block.
type Observer interface {
	BatchStarted(workflowID string, batch plan.ExecutionBatch)
	StepStarted(workflowID string, step plan.PlanStep)
	// StepFinished receives the truncated result plus the full
	// untruncated output for archival.
	StepFinished(workflowID string, result plan.StepResult, fullOutput string)
	StepSkipped(workflowID string, result plan.StepResult)
	BatchFinished(workflowID string, result plan.BatchResult)
}

// NoopObserver ignores all progress.
type NoopObserver struct{}

func (NoopObserver) BatchStarted(string, plan.ExecutionBatch)        {}
func (NoopObserver) StepStarted(string, plan.PlanStep)               {}
func (NoopObserver) StepFinished(string, plan.StepResult, string)    {}
func (NoopObserver) StepSkipped(string, plan.StepResult)             {}
func (NoopObserver) BatchFinished(string, plan.BatchResult)          {}

// Workspace is the slice of git.Context the engine needs.
type Workspace interface {
	// WorkDir returns the directory steps run in by default.
	WorkDir() string
	// CaptureSnapshot records pre-execution state for later revert.
	CaptureSnapshot() (*git.Snapshot, error)
}

var _ Workspace = (*git.Context)(nil)

// Engine executes plan batches inside a worktree.
type Engine struct {
	ws       Workspace
	runner   CommandRunner
	reviewer agent.Reviewer
	profile  *profile.Profile
	observer Observer
	logger   *slog.Logger
}

// EngineOption configures Engine.
type EngineOption func(*Engine)

// WithReviewer enables semantic pre-review and per-step validation.
func WithReviewer(r agent.Reviewer) EngineOption {
	return func(e *Engine) { e.reviewer = r }
}

// WithProfile sets the execution profile. Defaults to profile.Default().
func WithProfile(p *profile.Profile) EngineOption {
	return func(e *Engine) { e.profile = p }
}

// WithObserver sets the progress observer.
func WithObserver(o Observer) EngineOption {
	return func(e *Engine) { e.observer = o }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine creates an engine operating in the worktree ws points at.
func NewEngine(ws Workspace, cmdRunner CommandRunner, opts ...EngineOption) *Engine {
	e := &Engine{
		ws:       ws,
		runner:   cmdRunner,
		profile:  profile.Default(),
		observer: NoopObserver{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecOp names the batch to execute and where inside it to start.
// A non-nil Snapshot with a non-zero cursor means a mid-batch resume.
type ExecOp struct {
	WorkflowID string
	Goal       string
	Plan       *plan.ExecutionPlan
	BatchIndex int
	StepCursor int
	Snapshot   *git.Snapshot
	Results    []plan.StepResult // results already recorded for this batch
	Skipped    map[string]string // step id -> reason, whole plan
}

// OutcomeKind says how a batch execution leg ended.
type OutcomeKind string

const (
	// OutcomeBatchDone means every remaining step completed or was skipped.
	OutcomeBatchDone OutcomeKind = "batch_done"
	// OutcomeStepCheckpoint means a step finished and the profile wants
	// approval before the next one.
	OutcomeStepCheckpoint OutcomeKind = "step_checkpoint"
	// OutcomeBlocked means execution stopped on a blocker.
	OutcomeBlocked OutcomeKind = "blocked"
	// OutcomeCancelled means the context was cancelled.
	OutcomeCancelled OutcomeKind = "cancelled"
)

// ExecOutcome carries everything the caller needs to persist and route.
type ExecOutcome struct {
	Kind        OutcomeKind
	Snapshot    *git.Snapshot
	Results     []plan.StepResult
	Skipped     map[string]string
	NextCursor  int                 // step index to resume from
	Blocker     *plan.BlockerReport // set when Kind == OutcomeBlocked
	BatchResult *plan.BatchResult   // set when Kind == OutcomeBatchDone
}

// ExecuteBatch runs one leg of a batch: from the cursor until the batch
// completes, a checkpoint or blocker suspends it, or the context ends.
func (e *Engine) ExecuteBatch(ctx context.Context, op ExecOp) (ExecOutcome, error) {
	if op.Plan == nil || op.BatchIndex < 0 || op.BatchIndex >= len(op.Plan.Batches) {
		return ExecOutcome{}, fmt.Errorf("batch index %d out of range", op.BatchIndex)
	}
	batch := op.Plan.Batches[op.BatchIndex]
	if op.StepCursor < 0 || op.StepCursor > len(batch.Steps) {
		return ExecOutcome{}, fmt.Errorf("step cursor %d out of range for batch %s", op.StepCursor, batch.ID)
	}

	results := append([]plan.StepResult(nil), op.Results...)
	skipped := make(map[string]string, len(op.Skipped))
	for id, reason := range op.Skipped {
		skipped[id] = reason
	}

	snap := op.Snapshot
	fresh := snap == nil && op.StepCursor == 0
	if snap == nil {
		var err error
		snap, err = e.ws.CaptureSnapshot()
		if err != nil {
			return ExecOutcome{}, fmt.Errorf("capture snapshot: %w", err)
		}
	}

	if fresh {
		if blocker := e.preReviewBatch(ctx, op, batch); blocker != nil {
			return blockedOutcome(snap, results, skipped, op.StepCursor, blocker), nil
		}
		e.observer.BatchStarted(op.WorkflowID, batch)
	}

	legStart := time.Now()

	for i := op.StepCursor; i < len(batch.Steps); i++ {
		if ctx.Err() != nil {
			return ExecOutcome{Kind: OutcomeCancelled, Snapshot: snap, Results: results, Skipped: skipped, NextCursor: i}, nil
		}
		step := batch.Steps[i]

		if reason, ok := skipped[step.ID]; ok {
			res := skippedResult(step.ID, reason)
			results = append(results, res)
			e.observer.StepSkipped(op.WorkflowID, res)
			continue
		}

		execStep := step
		blocker, adapted := e.preValidateStep(ctx, op, batch, step)
		if blocker != nil {
			blocker.BatchID = batch.ID
			return blockedOutcome(snap, results, skipped, i, blocker), nil
		}
		if adapted != nil {
			execStep = *adapted
		}

		e.observer.StepStarted(op.WorkflowID, execStep)
		result, fullOutput, blocker := e.runStep(ctx, op, execStep)
		if result != nil {
			results = append(results, *result)
			e.observer.StepFinished(op.WorkflowID, *result, fullOutput)
		}

		if result != nil && result.Status == plan.StepCancelled {
			return ExecOutcome{Kind: OutcomeCancelled, Snapshot: snap, Results: results, Skipped: skipped, NextCursor: i}, nil
		}
		if blocker != nil {
			blocker.BatchID = batch.ID
			return blockedOutcome(snap, results, skipped, i, blocker), nil
		}

		// Paranoid trust pauses after every completed step except the
		// last; batch approval covers the final one.
		if e.profile.PerStepCheckpoints() && i < len(batch.Steps)-1 {
			return ExecOutcome{Kind: OutcomeStepCheckpoint, Snapshot: snap, Results: results, Skipped: skipped, NextCursor: i + 1}, nil
		}
	}

	batchRes := plan.BatchResult{
		BatchID:   batch.ID,
		Status:    plan.BatchComplete,
		Steps:     results,
		StartedAt: batchStartedAt(results, legStart),
	}
	batchRes.Duration = time.Since(batchRes.StartedAt)
	e.observer.BatchFinished(op.WorkflowID, batchRes)

	return ExecOutcome{
		Kind:        OutcomeBatchDone,
		Snapshot:    snap,
		Results:     results,
		Skipped:     skipped,
		NextCursor:  len(batch.Steps),
		BatchResult: &batchRes,
	}, nil
}

// preReviewBatch runs the semantic pre-review on medium or high risk
// batches. A reviewer transport failure logs and proceeds; concerns
// block before any step runs.
func (e *Engine) preReviewBatch(ctx context.Context, op ExecOp, batch plan.ExecutionBatch) *plan.BlockerReport {
	if e.reviewer == nil || !batch.ComputeRisk().AtLeast(plan.RiskMedium) {
		return nil
	}

	review, err := e.reviewer.ReviewBatch(ctx, agent.BatchReviewRequest{
		Worktree: e.ws.WorkDir(),
		Goal:     op.Goal,
		Batch:    &batch,
	})
	if err != nil {
		e.logger.Warn("batch pre-review failed",
			"workflow_id", op.WorkflowID, "batch", batch.ID, "error", err)
		return nil
	}
	if review.OK {
		return nil
	}

	return e.newBlocker(op, batch.ID, "", plan.BlockerNeedsJudgment,
		fmt.Sprintf("reviewer flagged batch %q before execution", batch.Name),
		strings.Join(review.Concerns, "; "), "", review.Concerns)
}

// preValidateStep applies the tiered pre-checks. It returns a blocker,
// an adapted replacement step, or neither.
func (e *Engine) preValidateStep(ctx context.Context, op ExecOp, batch plan.ExecutionBatch, step plan.PlanStep) (*plan.BlockerReport, *plan.PlanStep) {
	if problem := e.checkFilesystem(step); problem != "" {
		return e.newBlocker(op, batch.ID, step.ID, plan.BlockerValidationFailed,
			fmt.Sprintf("step %s cannot run", step.ID), problem, "", nil), nil
	}

	// Semantic validation is per-step only at high risk; medium risk
	// was covered by the batch pre-review.
	if e.reviewer == nil || !step.Risk.AtLeast(plan.RiskHigh) {
		return nil, nil
	}

	validation, err := e.reviewer.ValidateStep(ctx, agent.StepValidationRequest{
		Worktree: e.ws.WorkDir(), Goal: op.Goal, Step: &step,
	})
	if err != nil {
		e.logger.Warn("step validation failed",
			"workflow_id", op.WorkflowID, "step", step.ID, "error", err)
		return nil, nil
	}
	if validation.OK {
		return nil, nil
	}

	adapted, err := e.reviewer.AdaptStep(ctx, agent.AdaptRequest{
		Worktree: e.ws.WorkDir(), Goal: op.Goal, Step: &step, Problem: validation.Problem,
	})
	if err != nil {
		return e.newBlocker(op, batch.ID, step.ID, plan.BlockerValidationFailed,
			fmt.Sprintf("step %s failed validation", step.ID),
			fmt.Sprintf("%s (adaptation also failed: %v)", validation.Problem, err),
			"", nil), nil
	}

	revalidation, err := e.reviewer.ValidateStep(ctx, agent.StepValidationRequest{
		Worktree: e.ws.WorkDir(), Goal: op.Goal, Step: adapted,
	})
	if err != nil || !revalidation.OK {
		detail := validation.Problem
		if revalidation.Problem != "" {
			detail += "; adapted step rejected: " + revalidation.Problem
		}
		return e.newBlocker(op, batch.ID, step.ID, plan.BlockerValidationFailed,
			fmt.Sprintf("step %s failed validation twice", step.ID),
			detail, "", []string{"review the step manually, then retry or skip"}), nil
	}

	e.logger.Info("step adapted after validation",
		"workflow_id", op.WorkflowID, "step", step.ID, "problem", validation.Problem)
	return nil, adapted
}

// checkFilesystem runs the cheap local checks every step gets.
func (e *Engine) checkFilesystem(step plan.PlanStep) string {
	dir := e.stepDir(step)
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		return fmt.Sprintf("working directory %s does not exist", dir)
	}

	switch step.Action {
	case plan.ActionCommand, plan.ActionValidation:
		if bin := bareBinary(step.Command); bin != "" {
			if _, err := exec.LookPath(bin); err != nil {
				return fmt.Sprintf("command %q not found in PATH", bin)
			}
		}
	case plan.ActionCode:
		if step.File == "" {
			return "code step names no file"
		}
		if step.Change == "" {
			return "code step has no change content"
		}
	}
	return ""
}

// bareBinary returns the program name when the command is simple enough
// to resolve ahead of time, or "" when shell syntax makes that unsafe.
func bareBinary(command string) string {
	if strings.ContainsAny(command, "|&;<>$`(){}") {
		return ""
	}
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	name := fields[0]
	if strings.Contains(name, "=") || strings.Contains(name, "/") {
		return ""
	}
	return name
}

// runStep executes one step. A nil result means the step never ran
// (manual steps, empty commands); the blocker explains why.
func (e *Engine) runStep(ctx context.Context, op ExecOp, step plan.PlanStep) (*plan.StepResult, string, *plan.BlockerReport) {
	started := time.Now()

	switch step.Action {
	case plan.ActionManual:
		return nil, "", e.newBlocker(op, "", step.ID, plan.BlockerNeedsJudgment,
			fmt.Sprintf("step %s requires a human: %s", step.ID, step.Description),
			"perform the action manually, then resolve with skip",
			"", []string{"skip once done", "abort if the action is not possible"})
	case plan.ActionCommand:
		return e.runCommandStep(ctx, op, step, started, false)
	case plan.ActionValidation:
		return e.runCommandStep(ctx, op, step, started, true)
	case plan.ActionCode:
		return e.runCodeStep(ctx, op, step, started)
	default:
		return nil, "", e.newBlocker(op, "", step.ID, plan.BlockerUnexpectedState,
			fmt.Sprintf("step %s has unknown action type %q", step.ID, step.Action), "", "", nil)
	}
}

func (e *Engine) runCommandStep(ctx context.Context, op ExecOp, step plan.PlanStep, started time.Time, validation bool) (*plan.StepResult, string, *plan.BlockerReport) {
	if strings.TrimSpace(step.Command) == "" {
		return nil, "", e.newBlocker(op, "", step.ID, plan.BlockerValidationFailed,
			fmt.Sprintf("step %s has no command", step.ID), ErrNoCommand.Error(), "", nil)
	}

	candidates := append([]string{step.Command}, step.FallbackCommands...)

	var lastRes Result
	var lastErr error
	attempts := 0
	for _, command := range candidates {
		res, n, err := e.attemptCommand(ctx, step, command)
		attempts += n
		lastRes, lastErr = res, err

		if err == nil {
			result := e.stepResult(step, command, res, plan.StepCompleted, "", started, attempts)
			return &result, res.Output(), nil
		}
		if ctx.Err() != nil {
			result := e.stepResult(step, command, res, plan.StepCancelled, "cancelled", started, attempts)
			return &result, res.Output(), nil
		}
		e.logger.Warn("step command failed",
			"workflow_id", op.WorkflowID, "step", step.ID, "command", command, "error", err)
	}

	executed := candidates[len(candidates)-1]
	result := e.stepResult(step, executed, lastRes, plan.StepFailed, lastErr.Error(), started, attempts)

	typ := plan.BlockerCommandFailed
	summary := fmt.Sprintf("step %s command failed", step.ID)
	var suggestions []string
	if validation {
		typ = plan.BlockerValidationFailed
		summary = fmt.Sprintf("step %s validation failed", step.ID)
	}
	if errors.Is(lastErr, ErrPatternMismatch) {
		typ = plan.BlockerValidationFailed
		summary = fmt.Sprintf("step %s output check failed", step.ID)
		if lastRes.ExitCode == step.ExpectedExit() {
			suggestions = append(suggestions, "command exited cleanly; only the output pattern failed to match")
		}
	}

	blocker := e.newBlocker(op, "", step.ID, typ, summary, lastErr.Error(), lastRes.Output(), suggestions)
	return &result, lastRes.Output(), blocker
}

func (e *Engine) runCodeStep(ctx context.Context, op ExecOp, step plan.PlanStep, started time.Time) (*plan.StepResult, string, *plan.BlockerReport) {
	path := step.File
	if !filepath.IsAbs(path) {
		path = filepath.Join(e.stepDir(step), step.File)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, "", e.newBlocker(op, "", step.ID, plan.BlockerValidationFailed,
			fmt.Sprintf("step %s could not create directory for %s", step.ID, step.File),
			err.Error(), "", nil)
	}
	if err := os.WriteFile(path, []byte(step.Change), 0o644); err != nil {
		return nil, "", e.newBlocker(op, "", step.ID, plan.BlockerValidationFailed,
			fmt.Sprintf("step %s could not write %s", step.ID, step.File),
			err.Error(), "", nil)
	}

	if step.ValidationCommand == "" {
		res := Result{Stdout: "wrote " + step.File}
		result := e.stepResult(step, "", res, plan.StepCompleted, "", started, 1)
		return &result, res.Output(), nil
	}

	vstep := step
	vstep.Command = step.ValidationCommand
	res, attempts, err := e.attemptCommand(ctx, vstep, vstep.Command)
	if err == nil {
		result := e.stepResult(step, vstep.Command, res, plan.StepCompleted, "", started, attempts)
		return &result, res.Output(), nil
	}
	if ctx.Err() != nil {
		result := e.stepResult(step, vstep.Command, res, plan.StepCancelled, "cancelled", started, attempts)
		return &result, res.Output(), nil
	}

	result := e.stepResult(step, vstep.Command, res, plan.StepFailed, err.Error(), started, attempts)
	blocker := e.newBlocker(op, "", step.ID, plan.BlockerValidationFailed,
		fmt.Sprintf("step %s wrote %s but validation failed", step.ID, step.File),
		err.Error(), res.Output(), nil)
	return &result, res.Output(), blocker
}

// attemptCommand runs one command with the retry policy applied to
// transient failures. Exit code and pattern mismatches are permanent.
func (e *Engine) attemptCommand(ctx context.Context, step plan.PlanStep, command string) (Result, int, error) {
	timeout := step.Timeout()
	if timeout == 0 {
		timeout = e.profile.StepTimeout
	}
	spec := Spec{Command: command, Dir: e.stepDir(step), Timeout: timeout}

	var last Result
	attempts, err := e.profile.Retry.Do(ctx, e.logger, "step "+step.ID, func(ctx context.Context) error {
		res, runErr := e.runner.Run(ctx, spec)
		last = res
		if runErr != nil {
			return runErr
		}
		if err := checkCriteria(step, res); err != nil {
			return &StepError{
				StepID:   step.ID,
				Command:  command,
				ExitCode: res.ExitCode,
				Output:   plan.TruncateOutput(res.Output()),
				Err:      err,
			}
		}
		return nil
	})
	return last, attempts, err
}

// checkCriteria enforces the step's success criteria on a finished run.
func checkCriteria(step plan.PlanStep, res Result) error {
	if res.ExitCode != step.ExpectedExit() {
		return retry.MarkPermanent(fmt.Errorf("exit code %d, want %d", res.ExitCode, step.ExpectedExit()))
	}
	if step.OutputPattern != "" {
		re, err := regexp.Compile(step.OutputPattern)
		if err != nil {
			return retry.MarkPermanent(fmt.Errorf("invalid output pattern %q: %w", step.OutputPattern, err))
		}
		if !re.MatchString(plan.StripANSI(res.Stdout)) {
			return retry.MarkPermanent(fmt.Errorf("%w: %s", ErrPatternMismatch, step.OutputPattern))
		}
	}
	return nil
}

func (e *Engine) stepDir(step plan.PlanStep) string {
	if step.WorkDir == "" {
		return e.ws.WorkDir()
	}
	if filepath.IsAbs(step.WorkDir) {
		return step.WorkDir
	}
	return filepath.Join(e.ws.WorkDir(), step.WorkDir)
}

func (e *Engine) stepResult(step plan.PlanStep, command string, res Result, status plan.StepStatus, errMsg string, started time.Time, attempts int) plan.StepResult {
	return plan.StepResult{
		StepID:          step.ID,
		Status:          status,
		ExecutedCommand: command,
		Output:          plan.TruncateOutput(res.Output()),
		ExitCode:        res.ExitCode,
		Error:           errMsg,
		Attempts:        attempts,
		StartedAt:       started,
		Duration:        time.Since(started),
	}
}

func (e *Engine) newBlocker(op ExecOp, batchID, stepID string, typ plan.BlockerType, summary, detail, output string, suggestions []string) *plan.BlockerReport {
	return &plan.BlockerReport{
		ID:          newBlockerID(),
		WorkflowID:  op.WorkflowID,
		BatchID:     batchID,
		StepID:      stepID,
		Type:        typ,
		Summary:     summary,
		Detail:      detail,
		Output:      plan.TruncateOutput(output),
		Suggestions: suggestions,
		RaisedAt:    time.Now().UTC(),
	}
}

func newBlockerID() string {
	id, err := nanoid.New()
	if err != nil {
		return fmt.Sprintf("blk_%d", time.Now().UnixNano())
	}
	return "blk_" + id
}

func skippedResult(stepID, reason string) plan.StepResult {
	return plan.StepResult{
		StepID:     stepID,
		Status:     plan.StepSkipped,
		SkipReason: reason,
		StartedAt:  time.Now().UTC(),
	}
}

func blockedOutcome(snap *git.Snapshot, results []plan.StepResult, skipped map[string]string, cursor int, blocker *plan.BlockerReport) ExecOutcome {
	return ExecOutcome{
		Kind:       OutcomeBlocked,
		Snapshot:   snap,
		Results:    results,
		Skipped:    skipped,
		NextCursor: cursor,
		Blocker:    blocker,
	}
}

func batchStartedAt(results []plan.StepResult, fallback time.Time) time.Time {
	for _, r := range results {
		if !r.StartedAt.IsZero() {
			return r.StartedAt
		}
	}
	return fallback
}
