// Package conductor orchestrates agent-driven software changes: an issue
// goes in, a reviewed set of changes comes out, with humans approving the
// plan and every risky checkpoint along the way.
//
// The package is organized into subpackages by domain:
//
//   - plan: execution plans, batches, steps, blockers
//   - runner: batch execution engine with tiered pre-validation
//   - checkpoint: suspended-workflow snapshots (SQLite and memory)
//   - event: per-workflow event log and live broadcaster
//   - gate: per-worktree exclusivity and global concurrency cap
//   - retry: transient/permanent error classification and backoff
//   - git: exec-based git context, snapshots, selective revert, worktrees
//   - agent: architect/developer/reviewer agents backed by the Claude CLI
//   - profile: trust levels, per-stage model selection, execution knobs
//   - tracker: issue sources
//   - approval: signed single-use decision tokens for checkpoints
//   - pr: pull-request publication (GitHub, GitLab)
//   - notify: Slack/webhook/log notification sinks
//   - artifact: on-disk run artifacts with retention
//   - config: YAML configuration with env overrides
//   - http: retrying HTTP client used by notification sinks
//   - testutil: scripted agents, recording runners, temp git repos
//
// # Quick Start
//
//	store, _ := conductor.OpenStores("conductor.db")
//	mgr, _ := conductor.NewManager(
//	    conductor.WithStores(store),
//	    conductor.WithArchitect(arch),
//	    conductor.WithReviewer(rev),
//	)
//	defer mgr.Close()
//
//	wf, _ := mgr.Create(ctx, conductor.CreateRequest{
//	    IssueRef: "gh-421",
//	    Worktree: "/work/gh-421",
//	})
//
//	// The workflow plans asynchronously, then suspends for approval.
//	sub, _ := mgr.Subscribe(ctx, event.SubscribeRequest{WorkflowID: wf.ID})
//	for e := range sub.Events() {
//	    if e.Type == event.TypeApprovalRequired {
//	        mgr.Approve(ctx, wf.ID)
//	    }
//	}
//
// See individual package documentation for detailed usage.
package conductor
