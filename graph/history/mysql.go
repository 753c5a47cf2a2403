package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLSource is a MySQL-backed Source and Recorder for deployments where
// the orchestrator's persistence and the reconstruction engine share a
// database. Same schema shape as SQLiteSource, MySQL column types.
type MySQLSource struct {
	db *sql.DB
}

// NewMySQLSource connects to MySQL with the given DSN, for example:
//
//	user:pass@tcp(localhost:3306)/runlens?parseTime=true
//
// The connection is verified with a ping and the schema is migrated before
// the source is returned.
func NewMySQLSource(dsn string) (*MySQLSource, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql connection: %w", err)
	}

	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	s := &MySQLSource{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *MySQLSource) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS step_logs (
			id         BIGINT AUTO_INCREMENT PRIMARY KEY,
			session_id VARCHAR(191) NOT NULL,
			step       VARCHAR(191) NOT NULL,
			status     VARCHAR(16) NOT NULL,
			timestamp  BIGINT NOT NULL,
			input      MEDIUMBLOB,
			output     MEDIUMBLOB,
			parent_id  VARCHAR(191) NOT NULL DEFAULT '',
			failure    TEXT,
			INDEX idx_step_logs_session (session_id, id)
		)`,
		`CREATE TABLE IF NOT EXISTS topology_records (
			id            BIGINT AUTO_INCREMENT PRIMARY KEY,
			session_id    VARCHAR(191) NOT NULL,
			step          VARCHAR(191) NOT NULL,
			checkpoint_id VARCHAR(191) NOT NULL,
			parent_id     VARCHAR(191) NOT NULL DEFAULT '',
			timestamp     BIGINT NOT NULL,
			INDEX idx_topology_session (session_id, id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate history schema: %w", err)
		}
	}
	return nil
}

// SaveStepLog appends a step-log row.
func (s *MySQLSource) SaveStepLog(ctx context.Context, row StepLog) error {
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
func (s *MySQLSource) SaveTopology(ctx context.Context, rec TopologyRecord) error {
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
func (s *MySQLSource) FetchStepHistory(ctx context.Context, sessionID string) ([]StepLog, error) {
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
		var failure sql.NullString
		if err := rows.Scan(&row.Step, &row.Status, &row.Timestamp, &input, &output, &row.ParentCheckpointID, &failure); err != nil {
			return nil, fmt.Errorf("scan step log: %w", err)
		}
		if len(input) > 0 {
			row.Input = input
		}
		if len(output) > 0 {
			row.Output = output
		}
		row.Failure = failure.String
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
func (s *MySQLSource) FetchTopology(ctx context.Context, sessionID string) ([]TopologyRecord, error) {
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

	if len(out) == 0 {
		var n int
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM step_logs WHERE session_id = ?`, sessionID).Scan(&n); err != nil {
			return nil, fmt.Errorf("check session existence: %w", err)
		}
		if n == 0 {
			return nil, ErrNotFound
		}
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (s *MySQLSource) Close() error {
	return s.db.Close()
}
