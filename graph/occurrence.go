package graph

import (
	"encoding/json"
	"fmt"
)

// Status is the lifecycle state of a step occurrence.
//
// Transitions are monotonic: StatusRunning may advance to StatusCompleted or
// StatusFailed, and a settled occurrence never changes again. There is no
// implicit timeout; an occurrence that never receives a terminal event stays
// StatusRunning for the life of the session.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Occurrence is one concrete execution of a named step.
//
// The same step name may appear in many occurrences: a step that ran twice,
// or was forked via time travel, produces one Occurrence per run. Occurrences
// are append-only for the life of a session; a full session reset clears them
// atomically.
type Occurrence struct {
	// StepID is the logical step name. Not unique across occurrences.
	StepID string `json:"step_id"`

	// UID is the globally unique identity of this occurrence. It starts as a
	// provisional key at first sight of the step and is promoted to a
	// checkpoint-derived key once the orchestrator reports a persisted
	// checkpoint. It is never reused.
	UID string `json:"uid"`

	// Status is the current lifecycle state. Monotonic, see Status.
	Status Status `json:"status"`

	// Timestamp is the logical time (epoch millis) at first observation.
	Timestamp int64 `json:"timestamp"`

	// Input and Output are opaque payloads attached when known.
	Input  json.RawMessage `json:"input,omitempty"`
	Output json.RawMessage `json:"output,omitempty"`

	// CheckpointID is the persisted checkpoint produced by this occurrence.
	// Immutable once set.
	CheckpointID string `json:"checkpoint_id,omitempty"`

	// ParentCheckpointID is the checkpoint this occurrence causally followed.
	// Empty for root occurrences.
	ParentCheckpointID string `json:"parent_checkpoint_id,omitempty"`
}

// Settled reports whether the occurrence reached a terminal status.
func (o *Occurrence) Settled() bool {
	return o.Status == StatusCompleted || o.Status == StatusFailed
}

// provisionalUID builds the pre-checkpoint identity for the nth occurrence of
// a step. It is deterministic so rehydration assigns the same keys live
// processing did. The arena index n is not exposed anywhere else.
func provisionalUID(stepID string, n int) string {
	return fmt.Sprintf("occ:%s#%d", stepID, n)
}

// stableUID builds the promoted, checkpoint-derived identity. The step name
// is folded in because a parallel fan-out round may register several
// occurrences under one checkpoint; when even the step name collides, n (the
// count of same-step occurrences already registered under the checkpoint)
// keeps the uids distinct. n derives from replay order alone, so rehydration
// assigns the same keys live processing did.
func stableUID(checkpointID, stepID string, n int) string {
	if n == 0 {
		return fmt.Sprintf("cp:%s/%s", checkpointID, stepID)
	}
	return fmt.Sprintf("cp:%s/%s#%d", checkpointID, stepID, n)
}
