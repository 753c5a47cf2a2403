// Package emit provides pluggable observability for the reconstruction
// engine: logging, OpenTelemetry spans, buffered capture for tests, or
// nothing at all.
package emit

// Event is an observability event emitted while a session's execution graph
// is being reconstructed. These are internal telemetry, distinct from the
// wire events the engine consumes.
//
// Common Msg values:
//
//	occurrence_created   a new step occurrence was appended
//	occurrence_settled   an occurrence reached a terminal status
//	checkpoint_linked    a checkpoint was attached to an occurrence
//	parse_error          a malformed frame was skipped
//	stream_interrupted   the stream suspended for human action
//	stream_error         the orchestrator reported a protocol error
//	stream_end           the stream terminated normally
//	rehydrate_start      history replay began
//	rehydrate_complete   history replay finished
//	rerun_requested      a time-travel rerun was issued
type Event struct {
	// SessionID identifies the session being reconstructed.
	SessionID string

	// Seq is the 1-indexed ordinal of the frame (or replayed record) that
	// produced this event. Zero for session-level events.
	Seq int

	// Step is the logical step name the event concerns. Empty for
	// session-level events.
	Step string

	// Msg is a short machine-matchable description, see the list above.
	Msg string

	// Meta carries additional structured data. Common keys: "uid",
	// "checkpoint_id", "error", "reason".
	Meta map[string]interface{}
}
