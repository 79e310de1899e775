package stats

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

const schema = `
CREATE TABLE IF NOT EXISTS items (
	run_id      TEXT PRIMARY KEY,
	agent       TEXT NOT NULL,
	agent_type  TEXT NOT NULL,
	item        TEXT NOT NULL,
	termination TEXT NOT NULL,
	status      TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_items_started ON items(started_at);
CREATE TABLE IF NOT EXISTS rounds (
	run_id      TEXT NOT NULL REFERENCES items(run_id) ON DELETE CASCADE,
	number      INTEGER NOT NULL,
	first       INTEGER NOT NULL,
	session_id  TEXT NOT NULL DEFAULT '',
	started_at  INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	tool_calls  INTEGER NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, number)
);
`

// Ledger is the sqlite history of one instance's processed items.
type Ledger struct {
	db *sql.DB
}

// OpenLedger opens (creating if needed) the ledger database at path.
func OpenLedger(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating ledger schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close closes the database.
func (l *Ledger) Close() error { return l.db.Close() }

// Insert stores rec and its rounds in one transaction.
func (l *Ledger) Insert(ctx context.Context, rec ItemRecord) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO items (run_id, agent, agent_type, item, termination, status, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Agent, rec.AgentType, rec.Item, rec.Termination, rec.Status, rec.Error,
		rec.StartedAt.UnixMilli(), rec.FinishedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert item: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM rounds WHERE run_id = ?`, rec.RunID); err != nil {
		return fmt.Errorf("failed to clear rounds: %w", err)
	}
	for _, r := range rec.Rounds {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO rounds (run_id, number, first, session_id, started_at, duration_ms, tool_calls, error)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.RunID, r.Number, r.First, r.SessionID, r.StartedAt.UnixMilli(), r.DurationMs, r.ToolCalls, r.Error,
		)
		if err != nil {
			return fmt.Errorf("failed to insert round %d: %w", r.Number, err)
		}
	}
	return tx.Commit()
}

// Recent returns up to limit items, newest first, with their rounds.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]ItemRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT run_id, agent, agent_type, item, termination, status, error, started_at, finished_at
		 FROM items ORDER BY started_at DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ItemRecord
	for rows.Next() {
		var (
			rec             ItemRecord
			started, finish int64
		)
		if err := rows.Scan(&rec.RunID, &rec.Agent, &rec.AgentType, &rec.Item, &rec.Termination,
			&rec.Status, &rec.Error, &started, &finish); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		rec.StartedAt = time.UnixMilli(started)
		rec.FinishedAt = time.UnixMilli(finish)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		rounds, err := l.rounds(ctx, out[i].RunID)
		if err != nil {
			return nil, err
		}
		out[i].Rounds = rounds
	}
	return out, nil
}

func (l *Ledger) rounds(ctx context.Context, runID string) ([]RoundRecord, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT number, first, session_id, started_at, duration_ms, tool_calls, error
		 FROM rounds WHERE run_id = ? ORDER BY number`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rounds: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []RoundRecord
	for rows.Next() {
		var (
			r       RoundRecord
			started int64
		)
		if err := rows.Scan(&r.Number, &r.First, &r.SessionID, &started, &r.DurationMs, &r.ToolCalls, &r.Error); err != nil {
			return nil, fmt.Errorf("failed to scan round: %w", err)
		}
		r.StartedAt = time.UnixMilli(started)
		out = append(out, r)
	}
	return out, rows.Err()
}
