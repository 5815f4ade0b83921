package conductor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/randalmurphal/conductor/agent"
	"github.com/randalmurphal/conductor/artifact"
	"github.com/randalmurphal/conductor/checkpoint"
	"github.com/randalmurphal/conductor/event"
	"github.com/randalmurphal/conductor/gate"
	"github.com/randalmurphal/conductor/git"
	"github.com/randalmurphal/conductor/pr"
	"github.com/randalmurphal/conductor/profile"
	"github.com/randalmurphal/conductor/runner"
	"github.com/randalmurphal/conductor/tracker"
)

// DefaultProfileName is the profile used when a create request names none.
const DefaultProfileName = "standard"

// DefaultJanitorInterval spaces the background sweeps of expired
// checkpoints and old events.
const DefaultJanitorInterval = time.Hour

// DefaultEventRetention is how long events stay in the log before the
// janitor prunes them.
const DefaultEventRetention = 7 * 24 * time.Hour

// Git is the slice of git operations the run loop needs. *git.Context
// satisfies it; tests substitute fakes.
type Git interface {
	runner.Workspace
	CurrentBranch() (string, error)
	ChangedSince(snap *git.Snapshot) ([]string, error)
	RevertSince(snap *git.Snapshot) ([]string, error)
	DiffSince(snap *git.Snapshot) (string, error)
}

var _ Git = (*git.Context)(nil)

// GitFactory opens a git context for a worktree. The default factory
// requires the worktree to be a real git checkout.
type GitFactory func(worktree string) (Git, error)

func defaultGitFactory(worktree string) (Git, error) {
	g, err := git.NewContext(worktree)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// TokenIssuer mints single-use decision tokens that are attached to
// checkpoint events so approvals can be applied out-of-band.
// approval.Issuer satisfies it.
type TokenIssuer interface {
	Issue(workflowID, node string) (string, error)
}

// stepHandle tracks the cancel function for the step currently executing
// in a workflow's batch leg.
type stepHandle struct {
	stepID string
	cancel context.CancelFunc
}

// runHandle identifies one live run-loop goroutine. Cleanup compares
// identity so a goroutine that detached at suspension cannot remove a
// successor's registration.
type runHandle struct {
	cancel context.CancelCauseFunc
}

// errCancelRequested is the cancellation cause set by Cancel, as opposed
// to a manager shutdown.
var errCancelRequested = errors.New("cancel requested")

// Manager drives workflows through the node graph and owns their
// persistence, events, and concurrency admission.
type Manager struct {
	stores    *Stores
	bus       *event.Bus
	gate      *gate.Gate
	issues    tracker.Source
	architect agent.Architect
	developer agent.Developer
	reviewer  agent.Reviewer
	profiles  map[string]*profile.Profile

	gitFactory GitFactory
	cmdRunner  runner.CommandRunner
	hooks      Hooks
	logger     *slog.Logger
	issuer     TokenIssuer
	publisher  pr.Publisher
	artifacts  *artifact.Store

	maxActive       int
	janitorInterval time.Duration
	eventRetention  time.Duration

	baseCtx    context.Context
	baseCancel context.CancelCauseFunc
	wg         sync.WaitGroup

	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	running  map[string]*runHandle
	steps    map[string]*stepHandle
	releases map[string]func()
	closed   bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithStores sets the persistence bundle. Defaults to in-memory stores.
// The caller keeps ownership: Close does not close the stores.
func WithStores(s *Stores) Option {
	return func(m *Manager) {
		if s != nil {
			m.stores = s
		}
	}
}

// WithTracker sets the issue source. Without one, workflows run against a
// synthetic issue built from the issue reference.
func WithTracker(src tracker.Source) Option {
	return func(m *Manager) { m.issues = src }
}

// WithArchitect sets the planning agent. Required for workflows to get
// past the plan node.
func WithArchitect(a agent.Architect) Option {
	return func(m *Manager) { m.architect = a }
}

// WithDeveloper sets the fix agent used by blocker resolution and review
// fix passes.
func WithDeveloper(d agent.Developer) Option {
	return func(m *Manager) { m.developer = d }
}

// WithReviewer sets the reviewing agent. Without one, batches skip
// pre-review and the final review auto-approves.
func WithReviewer(r agent.Reviewer) Option {
	return func(m *Manager) { m.reviewer = r }
}

// WithProfiles registers profiles by name alongside the default one.
func WithProfiles(ps ...*profile.Profile) Option {
	return func(m *Manager) {
		for _, p := range ps {
			if p != nil {
				m.profiles[p.Name] = p
			}
		}
	}
}

// WithMaxActive caps concurrently active workflows. Zero or negative
// means unlimited.
func WithMaxActive(n int) Option {
	return func(m *Manager) { m.maxActive = n }
}

// WithGitFactory overrides how git contexts are opened for worktrees.
func WithGitFactory(f GitFactory) Option {
	return func(m *Manager) {
		if f != nil {
			m.gitFactory = f
		}
	}
}

// WithCommandRunner overrides how step commands execute.
func WithCommandRunner(r runner.CommandRunner) Option {
	return func(m *Manager) {
		if r != nil {
			m.cmdRunner = r
		}
	}
}

// WithHooks installs lifecycle hooks. Combine several with NewMultiHooks.
func WithHooks(h Hooks) Option {
	return func(m *Manager) {
		if h != nil {
			m.hooks = h
		}
	}
}

// WithLogger sets the manager logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithTokenIssuer attaches signed decision tokens to checkpoint events.
func WithTokenIssuer(i TokenIssuer) Option {
	return func(m *Manager) { m.issuer = i }
}

// WithPublisher enables pull-request publication after review.
func WithPublisher(p pr.Publisher) Option {
	return func(m *Manager) { m.publisher = p }
}

// WithArtifacts persists run artifacts (plan, step outputs, diffs,
// review) under the store's base directory.
func WithArtifacts(s *artifact.Store) Option {
	return func(m *Manager) { m.artifacts = s }
}

// WithJanitorInterval overrides the background sweep cadence. Zero or
// negative disables the janitor.
func WithJanitorInterval(d time.Duration) Option {
	return func(m *Manager) { m.janitorInterval = d }
}

// WithEventRetention overrides how long events are retained.
func WithEventRetention(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.eventRetention = d
		}
	}
}

// NewManager creates a workflow manager. With no options it runs fully
// in memory with the standard profile and no agents; most deployments
// set WithStores, WithArchitect, and WithReviewer at minimum.
func NewManager(opts ...Option) (*Manager, error) {
	m := &Manager{
		profiles:        map[string]*profile.Profile{DefaultProfileName: profile.Default()},
		gitFactory:      defaultGitFactory,
		cmdRunner:       runner.NewExecCommandRunner(),
		hooks:           NoopHooks{},
		logger:          slog.Default(),
		maxActive:       gate.DefaultMaxActive,
		janitorInterval: DefaultJanitorInterval,
		eventRetention:  DefaultEventRetention,
		locks:           make(map[string]*sync.Mutex),
		running:         make(map[string]*runHandle),
		steps:           make(map[string]*stepHandle),
		releases:        make(map[string]func()),
	}
	for _, opt := range opts {
		opt(m)
	}

	for name, p := range m.profiles {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("profile %q: %w", name, err)
		}
	}

	if m.stores == nil {
		m.stores = MemoryStores()
	}
	m.gate = gate.New(m.maxActive)
	m.bus = event.NewBus(m.stores.Events, event.WithLogger(m.logger))
	m.baseCtx, m.baseCancel = context.WithCancelCause(context.Background())

	if m.janitorInterval > 0 {
		m.wg.Add(1)
		go m.janitor(m.baseCtx)
	}
	return m, nil
}

// CreateRequest starts a workflow for an issue in a worktree.
type CreateRequest struct {
	IssueRef string // tracker reference, e.g. "gh-421"
	Worktree string // checkout the workflow executes in
	Profile  string // profile name; empty means "standard"
}

// Create admits a new workflow, persists its record, and starts planning
// asynchronously. The worktree must not already have an active workflow.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*Workflow, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	if req.IssueRef == "" {
		return nil, fmt.Errorf("create: issue ref is required")
	}
	if req.Worktree == "" {
		return nil, fmt.Errorf("create: worktree is required")
	}
	name := req.Profile
	if name == "" {
		name = DefaultProfileName
	}
	if _, ok := m.profiles[name]; !ok {
		return nil, fmt.Errorf("profile %q: %w", name, ErrUnknownProfile)
	}

	wf := NewWorkflow(req.IssueRef, req.Worktree, name)
	release, err := m.gate.Acquire(gate.Normalize(req.Worktree), wf.ID)
	if err != nil {
		switch {
		case errors.Is(err, gate.ErrBusy):
			return nil, fmt.Errorf("%w: %w", ErrWorktreeBusy, err)
		case errors.Is(err, gate.ErrLimit):
			return nil, fmt.Errorf("%w: %w", ErrActiveLimit, err)
		}
		return nil, err
	}

	if err := m.stores.Workflows.Put(ctx, wf); err != nil {
		release()
		return nil, fmt.Errorf("persist workflow: %w", err)
	}
	m.mu.Lock()
	m.releases[wf.ID] = release
	m.mu.Unlock()

	m.publish(ctx, wf.ID, event.AgentSystem, event.TypeWorkflowCreated,
		fmt.Sprintf("workflow created for %s", req.IssueRef),
		map[string]any{"issue_ref": req.IssueRef, "worktree": req.Worktree, "profile": name})

	m.spawn(wf.ID, NewExecState(wf))
	return wf.Clone(), nil
}

// Approve applies a plan approval. Approving a workflow that is already
// executing, or one suspended at a different checkpoint, is a no-op; if
// the workflow has no live goroutine but a checkpoint exists, Approve
// doubles as a resume.
func (m *Manager) Approve(ctx context.Context, id string) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	unlock := m.lockWorkflow(id)
	defer unlock()

	wf, err := m.stores.Workflows.Get(ctx, id)
	if err != nil {
		return err
	}
	if wf.Terminal() {
		return fmt.Errorf("workflow %s: %w", id, ErrTerminalState)
	}
	if m.isRunning(id) {
		return nil
	}

	st, err := m.loadState(ctx, id)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return nil
		}
		return err
	}

	if st.Suspended != nil && st.Suspended.Node == NodeHumanApproval {
		st = st.WithPlanDecision(&Decision{Approved: true, DecidedAt: time.Now().UTC()}).Resumed()
		if err := m.saveState(ctx, st); err != nil {
			return err
		}
		if err := m.ensureGate(wf); err != nil {
			return err
		}
		m.publish(ctx, id, event.AgentHuman, event.TypePlanApproved, "plan approved", nil)
		m.spawn(id, st)
		return nil
	}

	if st.Suspended == nil {
		// Orphaned by a process exit mid-run; pick it back up.
		if err := m.ensureGate(wf); err != nil {
			return err
		}
		m.spawn(id, st)
	}
	return nil
}

// Reject declines the proposed plan. The feedback is recorded and handed
// to the architect on the replanning pass.
func (m *Manager) Reject(ctx context.Context, id, feedback string) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	unlock := m.lockWorkflow(id)
	defer unlock()

	wf, err := m.stores.Workflows.Get(ctx, id)
	if err != nil {
		return err
	}
	if wf.Terminal() {
		return fmt.Errorf("workflow %s: %w", id, ErrTerminalState)
	}
	st, err := m.waitingAt(ctx, id, NodeHumanApproval)
	if err != nil {
		return err
	}

	st = st.WithPlanDecision(&Decision{Approved: false, Feedback: feedback, DecidedAt: time.Now().UTC()}).Resumed()
	if err := m.saveState(ctx, st); err != nil {
		return err
	}
	if err := m.ensureGate(wf); err != nil {
		return err
	}
	m.publish(ctx, id, event.AgentHuman, event.TypePlanRejected, "plan rejected",
		map[string]any{"feedback": feedback})
	m.spawn(id, st)
	return nil
}

// ApproveBatch applies a batch (or per-step) checkpoint decision. ok
// false fails the workflow; the batch's changes are kept for inspection.
func (m *Manager) ApproveBatch(ctx context.Context, id string, ok bool, feedback string) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	unlock := m.lockWorkflow(id)
	defer unlock()

	wf, err := m.stores.Workflows.Get(ctx, id)
	if err != nil {
		return err
	}
	if wf.Terminal() {
		return fmt.Errorf("workflow %s: %w", id, ErrTerminalState)
	}
	st, err := m.waitingAt(ctx, id, NodeBatchApproval)
	if err != nil {
		return err
	}

	st = st.WithBatchDecision(&Decision{Approved: ok, Feedback: feedback, DecidedAt: time.Now().UTC()}).Resumed()
	if err := m.saveState(ctx, st); err != nil {
		return err
	}
	if err := m.ensureGate(wf); err != nil {
		return err
	}
	m.spawn(id, st)
	return nil
}

// ResolveBlocker applies a resolution to the workflow's active blocker.
func (m *Manager) ResolveBlocker(ctx context.Context, id string, res Resolution) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	if err := res.Validate(); err != nil {
		return err
	}
	unlock := m.lockWorkflow(id)
	defer unlock()

	wf, err := m.stores.Workflows.Get(ctx, id)
	if err != nil {
		return err
	}
	if wf.Terminal() {
		return fmt.Errorf("workflow %s: %w", id, ErrTerminalState)
	}
	st, err := m.waitingAt(ctx, id, NodeBlockerResolution)
	if err != nil {
		return err
	}

	if res.DecidedAt.IsZero() {
		res.DecidedAt = time.Now().UTC()
	}
	blockerID := ""
	if st.Blocker != nil {
		blockerID = st.Blocker.ID
	}
	st = st.WithResolution(&res).Resumed()
	if err := m.saveState(ctx, st); err != nil {
		return err
	}
	if err := m.ensureGate(wf); err != nil {
		return err
	}
	m.publish(ctx, id, event.AgentHuman, event.TypeBlockerResolved,
		fmt.Sprintf("blocker resolved: %s", res.Action),
		map[string]any{"blocker_id": blockerID, "action": string(res.Action), "instruction": res.Instruction})
	m.spawn(id, st)
	return nil
}

// Resume re-enters the run loop for a workflow with no live goroutine,
// e.g. after a process restart. Resuming a workflow that is suspended at
// a checkpoint re-announces the checkpoint.
func (m *Manager) Resume(ctx context.Context, id string) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	unlock := m.lockWorkflow(id)
	defer unlock()

	wf, err := m.stores.Workflows.Get(ctx, id)
	if err != nil {
		return err
	}
	if wf.Terminal() {
		return fmt.Errorf("workflow %s: %w", id, ErrTerminalState)
	}
	if m.isRunning(id) {
		return nil
	}

	st, err := m.loadState(ctx, id)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) && wf.Status == StatusPending {
			st = NewExecState(wf)
		} else {
			return fmt.Errorf("workflow %s: %w", id, err)
		}
	}
	if err := m.ensureGate(wf); err != nil {
		return err
	}
	m.spawn(id, st.Resumed())
	return nil
}

// Cancel stops a workflow at any non-terminal point and releases its
// worktree. A running workflow is cancelled through its context; a
// suspended one transitions directly.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	unlock := m.lockWorkflow(id)
	defer unlock()

	wf, err := m.stores.Workflows.Get(ctx, id)
	if err != nil {
		return err
	}
	if wf.Terminal() {
		return fmt.Errorf("workflow %s: %w", id, ErrTerminalState)
	}

	m.mu.Lock()
	h := m.running[id]
	m.mu.Unlock()
	if h != nil {
		h.cancel(errCancelRequested)
		return nil
	}

	if err := wf.Transition(StatusCancelled); err != nil {
		return err
	}
	if err := m.stores.Workflows.Put(ctx, wf); err != nil {
		return err
	}
	if err := m.stores.Checkpoints.Delete(ctx, id); err != nil {
		m.logger.Warn("delete checkpoint", slog.String("workflow_id", id), slog.Any("error", err))
	}
	m.releaseGate(id)
	m.publish(ctx, id, event.AgentHuman, event.TypeWorkflowCancelled, "workflow cancelled", nil)
	m.hooks.WorkflowCancelled(ctx, wf)
	return nil
}

// CancelStep terminates the step currently executing in the workflow,
// gracefully then forcibly. The interrupted step raises a user_cancelled
// blocker; the workflow itself keeps running.
func (m *Manager) CancelStep(ctx context.Context, id, stepID string) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	m.mu.Lock()
	h := m.steps[id]
	var cancel context.CancelFunc
	if h != nil && (stepID == "" || h.stepID == stepID) {
		cancel = h.cancel
	}
	m.mu.Unlock()

	if cancel == nil {
		return fmt.Errorf("workflow %s: %w", id, ErrNoActiveStep)
	}
	cancel()
	return nil
}

// Get returns the workflow record.
func (m *Manager) Get(ctx context.Context, id string) (*Workflow, error) {
	return m.stores.Workflows.Get(ctx, id)
}

// List returns workflow records matching the filter, newest first.
func (m *Manager) List(ctx context.Context, f Filter) ([]*Workflow, error) {
	return m.stores.Workflows.List(ctx, f)
}

// Subscribe attaches an event consumer, replaying history per the
// request before live delivery.
func (m *Manager) Subscribe(ctx context.Context, req event.SubscribeRequest) (*event.Subscription, error) {
	return m.bus.Subscribe(ctx, req)
}

// ActiveWorktrees lists the worktree keys currently held by admitted
// workflows.
func (m *Manager) ActiveWorktrees() []string {
	return m.gate.Active()
}

// Close stops the manager: running workflows checkpoint at their next
// node boundary and their goroutines drain, then the broadcaster shuts
// down. Workflow records stay resumable by a new manager over the same
// stores.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.baseCancel(ErrManagerClosed)
	m.wg.Wait()
	m.bus.Close()
	return nil
}

// =============================================================================
// Internal plumbing
// =============================================================================

func (m *Manager) checkOpen() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrManagerClosed
	}
	return nil
}

// lockWorkflow serializes mutating operations per workflow ID.
func (m *Manager) lockWorkflow(id string) func() {
	m.mu.Lock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	m.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func (m *Manager) isRunning(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.running[id]
	return ok
}

// detach drops the live-goroutine registration ahead of the run loop
// returning. suspend calls it so that by the time a pause is announced,
// decision operations already see the workflow as waiting.
func (m *Manager) detach(id string) {
	m.mu.Lock()
	delete(m.running, id)
	delete(m.steps, id)
	m.mu.Unlock()
}

// waitingAt loads the checkpoint and verifies the workflow is suspended
// at the given node. A live goroutine or a mismatched suspension means
// the decision does not apply.
func (m *Manager) waitingAt(ctx context.Context, id string, node Node) (ExecState, error) {
	if m.isRunning(id) {
		return ExecState{}, fmt.Errorf("workflow %s: %w", id, ErrNotWaiting)
	}
	st, err := m.loadState(ctx, id)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return ExecState{}, fmt.Errorf("workflow %s: %w", id, ErrNotWaiting)
		}
		return ExecState{}, err
	}
	if st.Suspended == nil || st.Suspended.Node != node {
		return ExecState{}, fmt.Errorf("workflow %s is not suspended at %s: %w", id, node, ErrNotWaiting)
	}
	return st, nil
}

// ensureGate re-acquires the worktree slot when this process does not
// hold it yet (cross-process resume).
func (m *Manager) ensureGate(wf *Workflow) error {
	m.mu.Lock()
	_, held := m.releases[wf.ID]
	m.mu.Unlock()
	if held {
		return nil
	}
	release, err := m.gate.Acquire(gate.Normalize(wf.Worktree), wf.ID)
	if err != nil {
		switch {
		case errors.Is(err, gate.ErrBusy):
			return fmt.Errorf("%w: %w", ErrWorktreeBusy, err)
		case errors.Is(err, gate.ErrLimit):
			return fmt.Errorf("%w: %w", ErrActiveLimit, err)
		}
		return err
	}
	m.mu.Lock()
	m.releases[wf.ID] = release
	m.mu.Unlock()
	return nil
}

func (m *Manager) releaseGate(id string) {
	m.mu.Lock()
	release := m.releases[id]
	delete(m.releases, id)
	m.mu.Unlock()
	if release != nil {
		release()
	}
}

// spawn starts the run loop goroutine for a workflow unless one is
// already driving it.
func (m *Manager) spawn(id string, st ExecState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if _, ok := m.running[id]; ok {
		return
	}
	ctx, cancel := context.WithCancelCause(m.baseCtx)
	h := &runHandle{cancel: cancel}
	m.running[id] = h
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			cancel(nil)
			m.mu.Lock()
			if m.running[id] == h {
				delete(m.running, id)
				delete(m.steps, id)
			}
			m.mu.Unlock()
		}()
		m.runLoop(ctx, st)
	}()
}

func (m *Manager) registerStepCancel(id string, cancel context.CancelFunc) {
	m.mu.Lock()
	m.steps[id] = &stepHandle{cancel: cancel}
	m.mu.Unlock()
}

func (m *Manager) setCurrentStep(id, stepID string) {
	m.mu.Lock()
	if h := m.steps[id]; h != nil {
		h.stepID = stepID
	}
	m.mu.Unlock()
}

func (m *Manager) clearStepCancel(id string) {
	m.mu.Lock()
	delete(m.steps, id)
	m.mu.Unlock()
}

// profileByName resolves a profile fresh at each resume; persisted state
// never carries configuration.
func (m *Manager) profileByName(name string) (*profile.Profile, error) {
	if name == "" {
		name = DefaultProfileName
	}
	p, ok := m.profiles[name]
	if !ok {
		return nil, fmt.Errorf("profile %q: %w", name, ErrUnknownProfile)
	}
	return p, nil
}

// publish appends an event, logging rather than failing when the bus is
// unavailable.
func (m *Manager) publish(ctx context.Context, workflowID string, ag event.Agent, typ event.Type, msg string, data map[string]any) {
	_, err := m.bus.Publish(ctx, event.Event{
		WorkflowID: workflowID,
		Agent:      ag,
		Type:       typ,
		Message:    msg,
		Data:       data,
	})
	if err != nil && !errors.Is(err, event.ErrBusClosed) {
		m.logger.Warn("publish event",
			slog.String("workflow_id", workflowID),
			slog.String("type", string(typ)),
			slog.Any("error", err))
	}
}

func (m *Manager) saveState(ctx context.Context, st ExecState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return m.stores.Checkpoints.Save(ctx, checkpoint.Snapshot{
		Key:   st.WorkflowID,
		Node:  string(st.Node),
		State: raw,
	})
}

func (m *Manager) loadState(ctx context.Context, id string) (ExecState, error) {
	snap, err := m.stores.Checkpoints.Load(ctx, id)
	if err != nil {
		return ExecState{}, err
	}
	var st ExecState
	if err := json.Unmarshal(snap.State, &st); err != nil {
		return ExecState{}, fmt.Errorf("decode state for %s: %w", id, err)
	}
	return st, nil
}

// =============================================================================
// Janitor
// =============================================================================

func (m *Manager) janitor(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

func (m *Manager) sweep(ctx context.Context) {
	now := time.Now()
	if n, err := m.stores.Checkpoints.Sweep(ctx, now); err != nil {
		m.logger.Warn("checkpoint sweep", slog.Any("error", err))
	} else if n > 0 {
		m.logger.Debug("checkpoint sweep", slog.Int("removed", n))
	}
	if n, err := m.stores.Events.Prune(ctx, now.Add(-m.eventRetention)); err != nil {
		m.logger.Warn("event prune", slog.Any("error", err))
	} else if n > 0 {
		m.logger.Debug("event prune", slog.Int("removed", n))
	}
	if m.artifacts != nil {
		if n, err := m.artifacts.Sweep(ctx); err != nil {
			m.logger.Warn("artifact sweep", slog.Any("error", err))
		} else if n > 0 {
			m.logger.Debug("artifact sweep", slog.Int("removed", n))
		}
	}
}
