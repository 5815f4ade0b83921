package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// SQLiteStore keeps snapshots in a SQLite table, one row per key.
//
// It expects an *sql.DB opened with a SQLite driver; the caller imports the
// driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteStore struct {
	db     *sql.DB
	ttl    time.Duration
	writes *keyedMutex
}

var _ Store = (*SQLiteStore)(nil)

// SQLiteOption configures a SQLiteStore.
type SQLiteOption func(*SQLiteStore)

// WithTTL overrides the snapshot TTL.
func WithTTL(ttl time.Duration) SQLiteOption {
	return func(s *SQLiteStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// NewSQLiteStore initializes the checkpoint schema in db and returns the
// store.
func NewSQLiteStore(db *sql.DB, opts ...SQLiteOption) (*SQLiteStore, error) {
	s := &SQLiteStore{
		db:     db,
		ttl:    DefaultTTL,
		writes: newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS checkpoints (
			key TEXT PRIMARY KEY,
			node TEXT NOT NULL,
			state BLOB NOT NULL,
			saved_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		);`,
	)
	return err
}

func (s *SQLiteStore) Save(ctx context.Context, snap Snapshot) error {
	unlock := s.writes.lock(snap.Key)
	defer unlock()

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (key, node, state, saved_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			node = excluded.node,
			state = excluded.state,
			saved_at = excluded.saved_at,
			expires_at = excluded.expires_at`,
		snap.Key,
		snap.Node,
		[]byte(snap.State),
		now.UnixNano(),
		now.Add(s.ttl).UnixNano(),
	)
	return err
}

func (s *SQLiteStore) Load(ctx context.Context, key string) (Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT key, node, state, saved_at, expires_at
		FROM checkpoints WHERE key = ?`, key)

	var snap Snapshot
	var state []byte
	var savedAt, expiresAt int64
	if err := row.Scan(&snap.Key, &snap.Node, &state, &savedAt, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Snapshot{}, ErrNotFound
		}
		return Snapshot{}, err
	}
	snap.State = state
	snap.SavedAt = time.Unix(0, savedAt).UTC()
	snap.ExpiresAt = time.Unix(0, expiresAt).UTC()

	if snap.Expired(time.Now().UTC()) {
		return Snapshot{}, ErrExpired
	}
	return snap, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	unlock := s.writes.lock(key)
	defer unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE key = ?`, key)
	return err
}

func (s *SQLiteStore) List(ctx context.Context) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, node, saved_at, expires_at
		FROM checkpoints ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var snap Snapshot
		var savedAt, expiresAt int64
		if err := rows.Scan(&snap.Key, &snap.Node, &savedAt, &expiresAt); err != nil {
			return nil, err
		}
		snap.SavedAt = time.Unix(0, savedAt).UTC()
		snap.ExpiresAt = time.Unix(0, expiresAt).UTC()
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM checkpoints WHERE expires_at < ?`, now.UTC().UnixNano())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
