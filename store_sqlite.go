package conductor

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// SQLiteWorkflowStore keeps workflow records in a SQLite table, one row
// per workflow.
//
// It expects an *sql.DB opened with a SQLite driver; OpenDB provides one,
// or the caller imports a driver such as modernc.org/sqlite directly.
type SQLiteWorkflowStore struct {
	db *sql.DB
}

var _ WorkflowStore = (*SQLiteWorkflowStore)(nil)

// NewSQLiteWorkflowStore initializes the workflow schema in db and
// returns the store.
func NewSQLiteWorkflowStore(db *sql.DB) (*SQLiteWorkflowStore, error) {
	s := &SQLiteWorkflowStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteWorkflowStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS workflows (
			id TEXT PRIMARY KEY,
			issue_ref TEXT NOT NULL,
			worktree TEXT NOT NULL,
			status TEXT NOT NULL,
			stage TEXT NOT NULL,
			profile TEXT NOT NULL,
			failure_reason TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			started_at INTEGER NOT NULL DEFAULT 0,
			completed_at INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_workflows_status ON workflows(status);
		CREATE INDEX IF NOT EXISTS idx_workflows_worktree ON workflows(worktree);`,
	)
	return err
}

func (s *SQLiteWorkflowStore) Put(ctx context.Context, w *Workflow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workflows
			(id, issue_ref, worktree, status, stage, profile, failure_reason,
			 created_at, started_at, completed_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			issue_ref = excluded.issue_ref,
			worktree = excluded.worktree,
			status = excluded.status,
			stage = excluded.stage,
			profile = excluded.profile,
			failure_reason = excluded.failure_reason,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			updated_at = excluded.updated_at`,
		w.ID, w.IssueRef, w.Worktree, string(w.Status), string(w.Stage),
		w.Profile, w.FailureReason,
		unixOrZero(w.CreatedAt), unixOrZero(w.StartedAt),
		unixOrZero(w.CompletedAt), unixOrZero(w.UpdatedAt),
	)
	return err
}

func (s *SQLiteWorkflowStore) Get(ctx context.Context, id string) (*Workflow, error) {
	row := s.db.QueryRowContext(ctx, selectWorkflow+` WHERE id = ?`, id)
	w, err := scanWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWorkflowNotFound
	}
	return w, err
}

func (s *SQLiteWorkflowStore) List(ctx context.Context, f Filter) ([]*Workflow, error) {
	query := selectWorkflow
	var args []any
	var conds []string

	if f.Worktree != "" {
		conds = append(conds, "worktree = ?")
		args = append(args, f.Worktree)
	}
	if len(f.Status) > 0 {
		placeholders := ""
		for i, st := range f.Status {
			if i > 0 {
				placeholders += ", "
			}
			placeholders += "?"
			args = append(args, string(st))
		}
		conds = append(conds, "status IN ("+placeholders+")")
	}
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Workflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

const selectWorkflow = `
	SELECT id, issue_ref, worktree, status, stage, profile, failure_reason,
	       created_at, started_at, completed_at, updated_at
	FROM workflows`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*Workflow, error) {
	var w Workflow
	var status, stage string
	var created, started, completed, updated int64
	if err := row.Scan(&w.ID, &w.IssueRef, &w.Worktree, &status, &stage,
		&w.Profile, &w.FailureReason, &created, &started, &completed, &updated); err != nil {
		return nil, err
	}
	w.Status = Status(status)
	w.Stage = Node(stage)
	w.CreatedAt = timeOrZero(created)
	w.StartedAt = timeOrZero(started)
	w.CompletedAt = timeOrZero(completed)
	w.UpdatedAt = timeOrZero(updated)
	return &w, nil
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func timeOrZero(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
