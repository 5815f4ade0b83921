package tracker

import (
	"context"
	"errors"
	"sync"
)

// ErrIssueNotFound indicates the source has no issue with that reference.
var ErrIssueNotFound = errors.New("issue not found")

// Issue is the unit of work a workflow executes. The engine treats it as
// opaque input; only the reference and title feed branch and PR naming.
type Issue struct {
	Ref    string   `json:"ref"`              // Tracker-native reference (e.g., "GH-421", "#42")
	Title  string   `json:"title"`            // Short summary
	Body   string   `json:"body"`             // Full description, passed to planning
	Labels []string `json:"labels,omitempty"` // Tracker labels
	URL    string   `json:"url,omitempty"`    // Link back to the tracker
}

// Source fetches issues by reference. Implementations wrap whatever
// tracker the deployment uses; the engine only ever calls Get.
type Source interface {
	Get(ctx context.Context, ref string) (*Issue, error)
}

// StaticSource serves a fixed set of issues. Used in tests and for
// local runs where the issue is written by hand.
type StaticSource struct {
	mu     sync.RWMutex
	issues map[string]*Issue
}

// NewStaticSource returns a source preloaded with the given issues.
func NewStaticSource(issues ...*Issue) *StaticSource {
	s := &StaticSource{issues: make(map[string]*Issue, len(issues))}
	for _, iss := range issues {
		s.issues[iss.Ref] = iss
	}
	return s
}

// Add registers or replaces an issue.
func (s *StaticSource) Add(issue *Issue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issues[issue.Ref] = issue
}

func (s *StaticSource) Get(ctx context.Context, ref string) (*Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	issue, ok := s.issues[ref]
	if !ok {
		return nil, ErrIssueNotFound
	}
	cp := *issue
	cp.Labels = append([]string(nil), issue.Labels...)
	return &cp, nil
}

var _ Source = (*StaticSource)(nil)
