package conductor

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/randalmurphal/conductor/checkpoint"
	"github.com/randalmurphal/conductor/event"
)

// OpenDB opens (creating if needed) a conductor SQLite database with WAL
// journaling and a busy timeout suited to concurrent workflow tasks.
func OpenDB(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// Stores bundles the three persistent stores the manager needs. All three
// share one database when opened through OpenStores.
type Stores struct {
	Workflows   WorkflowStore
	Checkpoints checkpoint.Store
	Events      event.Log

	db *sql.DB
}

// StoreOption configures OpenStores and MemoryStores.
type StoreOption func(*storeConfig)

type storeConfig struct {
	checkpointTTL time.Duration
}

// WithCheckpointTTL bounds how long a suspended workflow's checkpoint
// stays loadable. Defaults to checkpoint.DefaultTTL.
func WithCheckpointTTL(d time.Duration) StoreOption {
	return func(c *storeConfig) {
		if d > 0 {
			c.checkpointTTL = d
		}
	}
}

// OpenStores opens the database at path and initializes the workflow,
// checkpoint, and event schemas on it.
func OpenStores(path string, opts ...StoreOption) (*Stores, error) {
	var sc storeConfig
	for _, opt := range opts {
		opt(&sc)
	}

	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}

	workflows, err := NewSQLiteWorkflowStore(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("workflow store: %w", err)
	}
	var ckOpts []checkpoint.SQLiteOption
	if sc.checkpointTTL > 0 {
		ckOpts = append(ckOpts, checkpoint.WithTTL(sc.checkpointTTL))
	}
	checkpoints, err := checkpoint.NewSQLiteStore(db, ckOpts...)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("checkpoint store: %w", err)
	}
	events, err := event.NewSQLiteLog(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("event log: %w", err)
	}

	return &Stores{
		Workflows:   workflows,
		Checkpoints: checkpoints,
		Events:      events,
		db:          db,
	}, nil
}

// MemoryStores returns in-memory implementations of all three stores.
func MemoryStores(opts ...StoreOption) *Stores {
	var sc storeConfig
	for _, opt := range opts {
		opt(&sc)
	}
	return &Stores{
		Workflows:   NewMemoryWorkflowStore(),
		Checkpoints: checkpoint.NewMemoryStore(sc.checkpointTTL),
		Events:      event.NewMemoryLog(),
	}
}

// Close releases the underlying database, if any.
func (s *Stores) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
