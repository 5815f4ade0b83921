package conductor

import (
	"context"
	"sort"
	"sync"
)

// MemoryWorkflowStore keeps records in memory for tests and ephemeral
// runs.
type MemoryWorkflowStore struct {
	mu   sync.RWMutex
	byID map[string]*Workflow
}

var _ WorkflowStore = (*MemoryWorkflowStore)(nil)

// NewMemoryWorkflowStore returns an empty in-memory store.
func NewMemoryWorkflowStore() *MemoryWorkflowStore {
	return &MemoryWorkflowStore{byID: make(map[string]*Workflow)}
}

func (s *MemoryWorkflowStore) Put(_ context.Context, w *Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[w.ID] = w.Clone()
	return nil
}

func (s *MemoryWorkflowStore) Get(_ context.Context, id string) (*Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.byID[id]
	if !ok {
		return nil, ErrWorkflowNotFound
	}
	return w.Clone(), nil
}

func (s *MemoryWorkflowStore) List(_ context.Context, f Filter) ([]*Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Workflow
	for _, w := range s.byID {
		if f.matches(w) {
			out = append(out, w.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}
