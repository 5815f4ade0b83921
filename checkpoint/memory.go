package checkpoint

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps snapshots in memory. It implements the same semantics
// as SQLiteStore and exists for tests and ephemeral runs.
type MemoryStore struct {
	mu     sync.RWMutex
	ttl    time.Duration
	snaps  map[string]Snapshot
	writes *keyedMutex
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store. A ttl of zero means
// DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		ttl:    ttl,
		snaps:  make(map[string]Snapshot),
		writes: newKeyedMutex(),
	}
}

func (s *MemoryStore) Save(_ context.Context, snap Snapshot) error {
	unlock := s.writes.lock(snap.Key)
	defer unlock()

	now := time.Now().UTC()
	snap.SavedAt = now
	snap.ExpiresAt = now.Add(s.ttl)
	snap.State = append([]byte(nil), snap.State...)

	s.mu.Lock()
	s.snaps[snap.Key] = snap
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Load(_ context.Context, key string) (Snapshot, error) {
	s.mu.RLock()
	snap, ok := s.snaps[key]
	s.mu.RUnlock()

	if !ok {
		return Snapshot{}, ErrNotFound
	}
	if snap.Expired(time.Now().UTC()) {
		return Snapshot{}, ErrExpired
	}
	snap.State = append([]byte(nil), snap.State...)
	return snap, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	unlock := s.writes.lock(key)
	defer unlock()

	s.mu.Lock()
	delete(s.snaps, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Snapshot, 0, len(s.snaps))
	for _, snap := range s.snaps {
		snap.State = nil
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *MemoryStore) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key, snap := range s.snaps {
		if snap.Expired(now) {
			delete(s.snaps, key)
			n++
		}
	}
	return n, nil
}
