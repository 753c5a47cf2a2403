package history

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteSource is a SQLite-backed Source and Recorder.
//
// A single-file database with zero setup, suited to development and local
// sessions that must survive a restart. WAL mode is enabled so the render
// side can read while a live stream records.
//
// Schema:
//   - step_logs: one row per step occurrence (session, step, status,
//     timestamp, input, output, failure)
//   - topology_records: one row per checkpoint registration (session, step,
//     checkpoint, parent checkpoint, timestamp)
type SQLiteSource struct {
	db *sql.DB
}

// NewSQLiteSource opens (creating if needed) a SQLite history database at
// the given path. Use ":memory:" for an ephemeral database in tests.
func NewSQLiteSource(path string) (*SQLiteSource, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// Single writer; WAL lets readers proceed during recording.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &SQLiteSource{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteSource) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS step_logs (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	step       TEXT NOT NULL,
	status     TEXT NOT NULL,
	timestamp  INTEGER NOT NULL,
	input      BLOB,
	output     BLOB,
	parent_id  TEXT NOT NULL DEFAULT '',
	failure    TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_step_logs_session ON step_logs(session_id, id);

CREATE TABLE IF NOT EXISTS topology_records (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id    TEXT NOT NULL,
	step          TEXT NOT NULL,
	checkpoint_id TEXT NOT NULL,
	parent_id     TEXT NOT NULL DEFAULT '',
	timestamp     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_topology_session ON topology_records(session_id, id);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate history schema: %w", err)
	}
	return nil
}

// SaveStepLog appends a step-log row.
func (s *SQLiteSource) SaveStepLog(ctx context.Context, row StepLog) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO step_logs (session_id, step, status, timestamp, input, output, parent_id, failure)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		row.SessionID, row.Step, row.Status, row.Timestamp, []byte(row.Input), []byte(row.Output),
		row.ParentCheckpointID, row.Failure)
	if err != nil {
		return fmt.Errorf("save step log: %w", err)
	}
	return nil
}

// SaveTopology appends a checkpoint registration.
func (s *SQLiteSource) SaveTopology(ctx context.Context, rec TopologyRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO topology_records (session_id, step, checkpoint_id, parent_id, timestamp)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.SessionID, rec.Step, rec.CheckpointID, rec.ParentCheckpointID, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("save topology record: %w", err)
	}
	return nil
}

// FetchStepHistory returns the session's step-log rows in insertion order.
func (s *SQLiteSource) FetchStepHistory(ctx context.Context, sessionID string) ([]StepLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT step, status, timestamp, input, output, parent_id, failure
		 FROM step_logs WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("fetch step history: %w", err)
	}
	defer rows.Close()

	var out []StepLog
	for rows.Next() {
		row := StepLog{SessionID: sessionID}
		var input, output []byte
		if err := rows.Scan(&row.Step, &row.Status, &row.Timestamp, &input, &output, &row.ParentCheckpointID, &row.Failure); err != nil {
			return nil, fmt.Errorf("scan step log: %w", err)
		}
		if len(input) > 0 {
			row.Input = input
		}
		if len(output) > 0 {
			row.Output = output
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate step logs: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

// FetchTopology returns the session's checkpoint registrations in insertion
// order. A session with step rows but no checkpoints yields an empty slice.
func (s *SQLiteSource) FetchTopology(ctx context.Context, sessionID string) ([]TopologyRecord, error) {
	recs, err := s.queryTopology(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		var n int
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM step_logs WHERE session_id = ?`, sessionID).Scan(&n); err != nil {
			return nil, fmt.Errorf("check session existence: %w", err)
		}
		if n == 0 {
			return nil, ErrNotFound
		}
	}
	return recs, nil
}

func (s *SQLiteSource) queryTopology(ctx context.Context, sessionID string) ([]TopologyRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT step, checkpoint_id, parent_id, timestamp
		 FROM topology_records WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("fetch topology: %w", err)
	}
	defer rows.Close()

	var out []TopologyRecord
	for rows.Next() {
		rec := TopologyRecord{SessionID: sessionID}
		if err := rows.Scan(&rec.Step, &rec.CheckpointID, &rec.ParentCheckpointID, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scan topology record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate topology records: %w", err)
	}
	return out, nil
}

// Close releases the underlying database handle.
func (s *SQLiteSource) Close() error {
	return s.db.Close()
}
