// Package checkpoint persists workflow execution snapshots so a suspended
// workflow can resume exactly where it stopped, in the same process or a
// later one.
//
// Stores keep one snapshot per key (the workflow ID): the latest save wins.
// Writes to the same key are serialized; writes to different keys proceed
// in parallel. Snapshots expire after a TTL and are removed by Sweep.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// DefaultTTL is how long a snapshot stays loadable after its last save.
const DefaultTTL = 7 * 24 * time.Hour

var (
	// ErrNotFound means no snapshot exists for the key.
	ErrNotFound = errors.New("checkpoint: not found")
	// ErrExpired means the snapshot exists but its TTL has lapsed.
	ErrExpired = errors.New("checkpoint: expired")
)

// Snapshot is the stored form of a suspended workflow: the serialized
// execution state plus enough metadata to list and expire it without
// decoding.
type Snapshot struct {
	Key       string          `json:"key"`
	Node      string          `json:"node"`
	State     json.RawMessage `json:"state"`
	SavedAt   time.Time       `json:"saved_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Expired reports whether the snapshot's TTL has lapsed at the given time.
func (s Snapshot) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// Store is the persistence contract for snapshots.
type Store interface {
	// Save writes the snapshot for snap.Key, replacing any previous one.
	// The store stamps SavedAt and ExpiresAt.
	Save(ctx context.Context, snap Snapshot) error
	// Load returns the latest snapshot for the key. ErrNotFound when the
	// key has none, ErrExpired when it exists but lapsed.
	Load(ctx context.Context, key string) (Snapshot, error)
	// Delete removes the key's snapshot. Deleting a missing key is not an
	// error.
	Delete(ctx context.Context, key string) error
	// List returns snapshot metadata (no State) for every stored key.
	List(ctx context.Context) ([]Snapshot, error)
	// Sweep deletes snapshots expired at the given time and reports how
	// many were removed.
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// keyedMutex serializes writers per key without blocking other keys.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
