// Package history provides the persisted step-log and topology sources the
// rehydrator reads when a session is reopened.
//
// The engine owns no on-disk format; these types mirror exactly what the
// orchestrator persists and nothing more. Implementations in this package:
//
//   - MemSource: in-memory, for tests and single-process development
//   - SQLiteSource: single-file database via modernc.org/sqlite
//   - MySQLSource: shared database via go-sql-driver/mysql
//
// A remote orchestrator is equally valid as a Source; the client package
// implements it over plain request/response HTTP.
package history

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound is returned when a session has no persisted history.
var ErrNotFound = errors.New("history: session not found")

// StepLog is one persisted step execution row.
type StepLog struct {
	// SessionID scopes the row to one session.
	SessionID string `json:"session_id"`

	// Step is the logical step name.
	Step string `json:"step"`

	// Status is the last observed lifecycle state, one of "running",
	// "completed", "failed".
	Status string `json:"status"`

	// Timestamp is the logical time (epoch millis) the step started.
	Timestamp int64 `json:"timestamp"`

	// Input and Output are the step's opaque payloads, when recorded.
	Input  json.RawMessage `json:"input,omitempty"`
	Output json.RawMessage `json:"output,omitempty"`

	// ParentCheckpointID is the checkpoint the occurrence causally followed,
	// as announced at step start. Empty for roots.
	ParentCheckpointID string `json:"parent_checkpoint_id,omitempty"`

	// Failure carries the protocol error message for failed rows.
	Failure string `json:"failure,omitempty"`
}

// TopologyRecord is one persisted checkpoint registration: which step
// produced which checkpoint, following which parent.
type TopologyRecord struct {
	SessionID          string `json:"session_id"`
	Step               string `json:"step"`
	CheckpointID       string `json:"checkpoint_id"`
	ParentCheckpointID string `json:"parent_checkpoint_id,omitempty"`

	// Timestamp is the logical time the checkpoint was reported.
	Timestamp int64 `json:"timestamp"`
}

// Source yields a session's persisted history for rehydration. Both calls
// are plain request/response; no streaming.
type Source interface {
	// FetchStepHistory returns the session's step-log rows in the order they
	// were persisted. Returns ErrNotFound for an unknown session.
	FetchStepHistory(ctx context.Context, sessionID string) ([]StepLog, error)

	// FetchTopology returns the session's checkpoint registrations in the
	// order they were persisted. Returns ErrNotFound for an unknown session.
	FetchTopology(ctx context.Context, sessionID string) ([]TopologyRecord, error)
}

// Recorder is the write half implemented by the local backends, used by
// tests and development setups that stand in for the orchestrator's own
// persistence.
type Recorder interface {
	SaveStepLog(ctx context.Context, row StepLog) error
	SaveTopology(ctx context.Context, rec TopologyRecord) error
}
