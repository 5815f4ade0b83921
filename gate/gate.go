// Package gate admits workflows: at most one active workflow per resource
// key and a bounded number overall. Conflicts are rejected immediately
// rather than queued, so callers can surface them to the operator.
package gate

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
)

// DefaultMaxActive is the global concurrency limit applied when no other
// limit is configured.
const DefaultMaxActive = 5

var (
	// ErrBusy means the resource key already has an active workflow.
	ErrBusy = errors.New("gate: resource busy")
	// ErrLimit means the global active-workflow cap is reached.
	ErrLimit = errors.New("gate: active workflow limit reached")
)

// ConflictError reports which key an acquisition collided with.
type ConflictError struct {
	Key    string
	Holder string
	Err    error
}

func (e *ConflictError) Error() string {
	if e.Holder != "" {
		return fmt.Sprintf("resource %q held by workflow %s", e.Key, e.Holder)
	}
	return fmt.Sprintf("resource %q: %v", e.Key, e.Err)
}

func (e *ConflictError) Unwrap() error { return e.Err }

// Gate tracks active workflows by resource key.
type Gate struct {
	mu      sync.Mutex
	max     int
	holders map[string]string // key -> workflow id
}

// New creates a gate with the given global cap. Zero or negative means
// unlimited.
func New(maxActive int) *Gate {
	return &Gate{
		max:     maxActive,
		holders: make(map[string]string),
	}
}

// Acquire claims the resource key for a workflow. It fails with ErrBusy
// (wrapped in a ConflictError naming the holder) when the key is taken, and
// with ErrLimit when the global cap is reached. The returned release is
// idempotent.
func (g *Gate) Acquire(key, workflowID string) (func(), error) {
	key = Normalize(key)

	g.mu.Lock()
	defer g.mu.Unlock()

	if holder, ok := g.holders[key]; ok {
		return nil, &ConflictError{Key: key, Holder: holder, Err: ErrBusy}
	}
	if g.max > 0 && len(g.holders) >= g.max {
		return nil, &ConflictError{Key: key, Err: ErrLimit}
	}

	g.holders[key] = workflowID

	var once sync.Once
	release := func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			delete(g.holders, key)
		})
	}
	return release, nil
}

// Holder returns the workflow currently holding a key, if any.
func (g *Gate) Holder(key string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, ok := g.holders[Normalize(key)]
	return id, ok
}

// Active returns the held keys in sorted order.
func (g *Gate) Active() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	keys := make([]string, 0, len(g.holders))
	for k := range g.holders {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Normalize cleans a resource key so equivalent paths collide. Worktree
// paths are the usual keys.
func Normalize(key string) string {
	if key == "" {
		return key
	}
	return filepath.Clean(key)
}
