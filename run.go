package conductor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/randalmurphal/conductor/event"
	"github.com/randalmurphal/conductor/profile"
)

// run is one driving pass over a workflow: from spawn (create or resume)
// until the workflow suspends, finishes, or the process shuts down.
// Configuration is resolved fresh per pass; persisted state never
// carries it.
type run struct {
	m    *Manager
	wf   *Workflow
	prof *profile.Profile
	log  *slog.Logger

	g Git // opened on first use
}

func (r *run) gitCtx() (Git, error) {
	if r.g != nil {
		return r.g, nil
	}
	g, err := r.m.gitFactory(r.wf.Worktree)
	if err != nil {
		return nil, fmt.Errorf("open worktree %s: %w", r.wf.Worktree, err)
	}
	r.g = g
	return g, nil
}

// nodes maps each node to its function. Routing between them is
// nextNode; this map only says what each node does.
func (r *run) nodes() map[Node]func(context.Context, ExecState) (ExecState, error) {
	return map[Node]func(context.Context, ExecState) (ExecState, error){
		NodePlan:              r.nodePlan,
		NodePlanValidate:      r.nodePlanValidate,
		NodeHumanApproval:     r.nodeHumanApproval,
		NodeDeveloper:         r.nodeDeveloper,
		NodeBatchApproval:     r.nodeBatchApproval,
		NodeBlockerResolution: r.nodeBlockerResolution,
		NodeReview:            r.nodeReview,
	}
}

// runLoop executes nodes from st.Node until the state suspends, routing
// ends, a node fails, or the context is cancelled. It owns all terminal
// bookkeeping for this pass.
func (m *Manager) runLoop(ctx context.Context, st ExecState) {
	id := st.WorkflowID
	log := m.logger.With(slog.String("workflow_id", id))

	wf, err := m.stores.Workflows.Get(ctx, id)
	if err != nil {
		log.Error("load workflow", slog.Any("error", err))
		return
	}
	prof, err := m.profileByName(wf.Profile)
	if err != nil {
		r := &run{m: m, wf: wf, log: log}
		r.finishFailed(st, err.Error())
		return
	}
	r := &run{m: m, wf: wf, prof: prof, log: log}

	wasPending := wf.Status == StatusPending
	if err := wf.Transition(StatusInProgress); err != nil {
		log.Warn("workflow not startable", slog.String("status", string(wf.Status)), slog.Any("error", err))
		return
	}
	wf.Stage = st.Node
	if err := m.stores.Workflows.Put(ctx, wf); err != nil {
		log.Error("persist workflow", slog.Any("error", err))
		return
	}
	if wasPending {
		m.hooks.WorkflowStarted(ctx, wf)
	}

	if err := st.Validate(); err != nil {
		r.finishFailed(st, fmt.Sprintf("invalid state: %v", err))
		return
	}

	dispatch := r.nodes()
	for {
		if ctx.Err() != nil {
			r.finishInterrupted(ctx, st)
			return
		}
		fn, ok := dispatch[st.Node]
		if !ok {
			r.finishFailed(st, fmt.Sprintf("unknown node %q", st.Node))
			return
		}

		m.hooks.NodeEntered(ctx, id, st.Node)
		started := time.Now()
		next, err := fn(ctx, st)
		m.hooks.NodeFinished(ctx, id, st.Node, err, time.Since(started))
		if err != nil {
			if ctx.Err() != nil {
				r.finishInterrupted(ctx, st)
			} else {
				r.finishFailed(st, err.Error())
			}
			return
		}
		st = next

		if st.Suspended != nil {
			r.suspend(ctx, st)
			return
		}

		node, more := nextNode(st)
		if !more {
			r.finishCompleted(st)
			return
		}
		st = st.WithNode(node)
		wf.Stage = node
		wf.UpdatedAt = time.Now().UTC()
		if err := m.stores.Workflows.Put(ctx, wf); err != nil {
			log.Warn("persist stage", slog.Any("error", err))
		}
		// Boundary checkpoint: a crash loses at most one node of work.
		if err := m.saveState(ctx, st); err != nil {
			log.Warn("boundary checkpoint", slog.Any("error", err))
		}
	}
}

// suspend persists the checkpoint, updates the record, and announces the
// pause. The goroutine exits afterwards; a resume operation re-enters
// the loop at the suspended node.
func (r *run) suspend(ctx context.Context, st ExecState) {
	m := r.m
	id := st.WorkflowID
	sus := st.Suspended

	if err := m.saveState(ctx, st); err != nil {
		r.finishFailed(st, fmt.Sprintf("persist checkpoint: %v", err))
		return
	}

	target := StatusInProgress
	if sus.Node == NodeBlockerResolution {
		target = StatusBlocked
	}
	r.wf.Stage = sus.Node
	if r.wf.Status != target {
		if err := r.wf.Transition(target); err != nil {
			r.log.Warn("suspend transition", slog.Any("error", err))
		}
	}
	r.wf.UpdatedAt = time.Now().UTC()
	if err := m.stores.Workflows.Put(ctx, r.wf); err != nil {
		r.log.Warn("persist workflow", slog.Any("error", err))
	}

	// Checkpoint and record are durable now; deregister before announcing
	// so a decision made in response to the event finds the workflow
	// waiting rather than racing the goroutine's exit.
	m.detach(id)

	data := map[string]any{"node": string(sus.Node), "reason": sus.Reason}
	if m.issuer != nil {
		if tok, err := m.issuer.Issue(id, string(sus.Node)); err == nil {
			data["token"] = tok
		} else {
			r.log.Warn("issue decision token", slog.Any("error", err))
		}
	}

	switch sus.Node {
	case NodeBlockerResolution:
		if b := st.Blocker; b != nil {
			data["blocker_id"] = b.ID
			data["blocker_type"] = string(b.Type)
			data["step_id"] = b.StepID
			data["summary"] = b.Summary
			data["suggestions"] = b.Suggestions
		}
		m.publish(ctx, id, event.AgentSystem, event.TypeBlocked, sus.Reason, data)
		m.hooks.WorkflowBlocked(ctx, r.wf, st.Blocker)
	default:
		m.publish(ctx, id, event.AgentSystem, event.TypeApprovalRequired, sus.Reason, data)
	}

	r.log.Info("workflow suspended",
		slog.String("node", string(sus.Node)),
		slog.String("reason", sus.Reason))
}

// finishCompleted marks the workflow done and releases its resources.
// Terminal bookkeeping uses a background context so shutdown or
// cancellation cannot lose the final record.
func (r *run) finishCompleted(st ExecState) {
	m := r.m
	bg := context.Background()
	id := st.WorkflowID

	r.wf.Stage = NodeDone
	if err := r.wf.Transition(StatusCompleted); err != nil {
		r.log.Warn("complete transition", slog.Any("error", err))
	}
	if err := m.stores.Workflows.Put(bg, r.wf); err != nil {
		r.log.Error("persist workflow", slog.Any("error", err))
	}
	if err := m.stores.Checkpoints.Delete(bg, id); err != nil {
		r.log.Warn("delete checkpoint", slog.Any("error", err))
	}
	m.releaseGate(id)

	data := map[string]any{"batches": len(st.BatchResults)}
	if st.Review != nil {
		data["review_approved"] = st.Review.Approved
		data["review_findings"] = len(st.Review.Findings)
	}
	m.publish(bg, id, event.AgentSystem, event.TypeWorkflowCompleted, "workflow completed", data)
	m.hooks.WorkflowCompleted(bg, r.wf)
	r.log.Info("workflow completed", slog.Int("batches", len(st.BatchResults)))
}

func (r *run) finishFailed(st ExecState, reason string) {
	m := r.m
	bg := context.Background()
	id := st.WorkflowID

	r.wf.FailureReason = reason
	if err := r.wf.Transition(StatusFailed); err != nil {
		r.log.Warn("fail transition", slog.Any("error", err))
	}
	if err := m.stores.Workflows.Put(bg, r.wf); err != nil {
		r.log.Error("persist workflow", slog.Any("error", err))
	}
	if err := m.stores.Checkpoints.Delete(bg, id); err != nil {
		r.log.Warn("delete checkpoint", slog.Any("error", err))
	}
	m.releaseGate(id)

	m.publish(bg, id, event.AgentSystem, event.TypeWorkflowFailed, reason, nil)
	m.hooks.WorkflowFailed(bg, r.wf, reason)
	r.log.Error("workflow failed", slog.String("reason", reason))
}

// finishInterrupted handles a cancelled context: a manager shutdown
// parks the workflow (checkpoint saved, record untouched, resumable by a
// later manager); an operator cancel is terminal.
func (r *run) finishInterrupted(ctx context.Context, st ExecState) {
	if errors.Is(context.Cause(ctx), ErrManagerClosed) {
		bg := context.Background()
		if err := r.m.saveState(bg, st); err != nil {
			r.log.Error("park checkpoint", slog.Any("error", err))
		}
		r.wf.UpdatedAt = time.Now().UTC()
		if err := r.m.stores.Workflows.Put(bg, r.wf); err != nil {
			r.log.Warn("persist workflow", slog.Any("error", err))
		}
		r.log.Info("workflow parked for shutdown", slog.String("node", string(st.Node)))
		return
	}
	r.finishCancelled(st)
}

func (r *run) finishCancelled(st ExecState) {
	m := r.m
	bg := context.Background()
	id := st.WorkflowID

	if err := r.wf.Transition(StatusCancelled); err != nil {
		r.log.Warn("cancel transition", slog.Any("error", err))
	}
	if err := m.stores.Workflows.Put(bg, r.wf); err != nil {
		r.log.Error("persist workflow", slog.Any("error", err))
	}
	if err := m.stores.Checkpoints.Delete(bg, id); err != nil {
		r.log.Warn("delete checkpoint", slog.Any("error", err))
	}
	m.releaseGate(id)

	m.publish(bg, id, event.AgentSystem, event.TypeWorkflowCancelled, "workflow cancelled", nil)
	m.hooks.WorkflowCancelled(bg, r.wf)
	r.log.Info("workflow cancelled", slog.String("node", string(st.Node)))
}
