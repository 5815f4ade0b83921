package event

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// SQLiteLog stores events in SQLite. Sequence numbers come from a
// per-workflow counter table so they stay gapless even after pruning.
//
// The caller provides an *sql.DB opened with a SQLite driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteLog struct {
	db *sql.DB

	// Serializes appends within this process; cross-process writers are
	// covered by the transaction.
	mu sync.Mutex
}

var _ Log = (*SQLiteLog)(nil)

// NewSQLiteLog initializes the event schema in db and returns the log.
func NewSQLiteLog(db *sql.DB) (*SQLiteLog, error) {
	l := &SQLiteLog{db: db}
	if err := l.initSchema(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *SQLiteLog) initSchema() error {
	_, err := l.db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id TEXT NOT NULL,
			workflow_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			time INTEGER NOT NULL,
			agent TEXT NOT NULL DEFAULT '',
			event_type TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			data BLOB,
			PRIMARY KEY (workflow_id, seq)
		);
		CREATE TABLE IF NOT EXISTS event_seqs (
			workflow_id TEXT PRIMARY KEY,
			last_seq INTEGER NOT NULL
		);
	`)
	return err
}

func (l *SQLiteLog) Append(ctx context.Context, e Event) (Event, error) {
	if e.WorkflowID == "" {
		return Event{}, fmt.Errorf("event: append without workflow id")
	}
	if e.ID == "" {
		id, err := NewID()
		if err != nil {
			return Event{}, err
		}
		e.ID = id
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}

	var data []byte
	if len(e.Data) > 0 {
		var err error
		data, err = json.Marshal(e.Data)
		if err != nil {
			return Event{}, fmt.Errorf("event: encode data: %w", err)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return Event{}, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO event_seqs (workflow_id, last_seq) VALUES (?, 1)
		ON CONFLICT(workflow_id) DO UPDATE SET last_seq = last_seq + 1`,
		e.WorkflowID,
	); err != nil {
		return Event{}, err
	}
	if err := tx.QueryRowContext(ctx,
		`SELECT last_seq FROM event_seqs WHERE workflow_id = ?`,
		e.WorkflowID,
	).Scan(&e.Seq); err != nil {
		return Event{}, err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO events (id, workflow_id, seq, time, agent, event_type, message, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.WorkflowID,
		e.Seq,
		e.Time.UnixNano(),
		string(e.Agent),
		string(e.Type),
		e.Message,
		data,
	); err != nil {
		return Event{}, err
	}

	if err := tx.Commit(); err != nil {
		return Event{}, err
	}
	return e, nil
}

func (l *SQLiteLog) ListAfter(ctx context.Context, workflowID string, afterSeq int64, limit int) ([]Event, error) {
	q := `
		SELECT id, workflow_id, seq, time, agent, event_type, message, data
		FROM events
		WHERE workflow_id = ? AND seq > ?
		ORDER BY seq ASC`
	args := []any{workflowID, afterSeq}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e     Event
			timeN int64
			agent string
			typ   string
			data  []byte
		)
		if err := rows.Scan(&e.ID, &e.WorkflowID, &e.Seq, &timeN, &agent, &typ, &e.Message, &data); err != nil {
			return nil, err
		}
		e.Time = time.Unix(0, timeN).UTC()
		e.Agent = Agent(agent)
		e.Type = Type(typ)
		if len(data) > 0 {
			if err := json.Unmarshal(data, &e.Data); err != nil {
				return nil, fmt.Errorf("event: decode data for %s seq %d: %w", e.WorkflowID, e.Seq, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (l *SQLiteLog) Bounds(ctx context.Context, workflowID string) (int64, int64, error) {
	var floor sql.NullInt64
	if err := l.db.QueryRowContext(ctx,
		`SELECT MIN(seq) FROM events WHERE workflow_id = ?`, workflowID,
	).Scan(&floor); err != nil {
		return 0, 0, err
	}

	var last int64
	err := l.db.QueryRowContext(ctx,
		`SELECT last_seq FROM event_seqs WHERE workflow_id = ?`, workflowID,
	).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}
	return floor.Int64, last, nil
}

func (l *SQLiteLog) Prune(ctx context.Context, before time.Time) (int, error) {
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM events WHERE time < ?`, before.UTC().UnixNano())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
