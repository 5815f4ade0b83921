package conductor

import "context"

// Filter narrows List results. Zero value matches everything.
type Filter struct {
	Status   []Status // any of these; empty = all
	Worktree string   // exact match; empty = all
}

func (f Filter) matches(w *Workflow) bool {
	if f.Worktree != "" && w.Worktree != f.Worktree {
		return false
	}
	if len(f.Status) == 0 {
		return true
	}
	for _, s := range f.Status {
		if w.Status == s {
			return true
		}
	}
	return false
}

// WorkflowStore persists workflow records. Implementations return copies;
// callers never share a *Workflow with the store.
type WorkflowStore interface {
	// Put inserts or replaces the record.
	Put(ctx context.Context, w *Workflow) error
	// Get returns the record or ErrWorkflowNotFound.
	Get(ctx context.Context, id string) (*Workflow, error)
	// List returns records matching the filter, newest first.
	List(ctx context.Context, f Filter) ([]*Workflow, error)
}
