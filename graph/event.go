// Package graph provides the execution-graph reconstruction engine for runlens.
package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EventType discriminates the wire events emitted by the orchestrator.
//
// The set of types is closed: a frame whose "type" field does not match any
// known variant decodes to EventUnknown rather than failing. This keeps the
// stream processor's switch exhaustive without a runtime fallthrough branch.
type EventType string

const (
	// EventToken carries an incremental text fragment produced by a step.
	EventToken EventType = "token"

	// EventStepStart announces that a step began executing.
	EventStepStart EventType = "step_start"

	// EventStepEnd announces that a step finished and carries its output.
	EventStepEnd EventType = "step_end"

	// EventCheckpoint reports that the orchestrator persisted a checkpoint
	// for a settled step.
	EventCheckpoint EventType = "checkpoint"

	// EventInterrupt suspends the stream for human action (tool approval or
	// input). Terminal for the current stream, not for the session.
	EventInterrupt EventType = "interrupt"

	// EventError reports a protocol-level failure. Terminal for the stream.
	EventError EventType = "error"

	// EventEndOfStream is the literal stream terminator. It is never sent as
	// a JSON object; the transport emits the Terminator token instead.
	EventEndOfStream EventType = "end_of_stream"

	// EventUnknown is assigned to well-formed frames whose type is not
	// recognized. Unknown events are applied as no-ops.
	EventUnknown EventType = "unknown"
)

// Terminator is the literal frame that closes a stream. It is compared
// byte-for-byte before any JSON decoding is attempted.
const Terminator = "[DONE]"

// Event is the decoded form of a single wire frame.
//
// Exactly one variant is populated per event; the Type field says which.
// Fields not used by a variant are left at their zero value:
//
//	token       Step, Text
//	step_start  Step, Input, ParentCheckpointID
//	step_end    Step, Output
//	checkpoint  Step, CheckpointID, ParentCheckpointID
//	interrupt   PendingToolCall, NextSteps
//	error       Step (optional), Message
//
// Timestamp is zero for live frames (the reducer stamps them on arrival) and
// set explicitly by the history rehydrator so replayed events land at their
// original logical time.
type Event struct {
	Type               EventType       `json:"type"`
	Step               string          `json:"step,omitempty"`
	Text               string          `json:"text,omitempty"`
	Input              json.RawMessage `json:"input,omitempty"`
	Output             json.RawMessage `json:"output,omitempty"`
	CheckpointID       string          `json:"checkpoint_id,omitempty"`
	ParentCheckpointID string          `json:"parent_checkpoint_id,omitempty"`
	PendingToolCall    json.RawMessage `json:"pending_tool_call,omitempty"`
	NextSteps          []string        `json:"next_steps,omitempty"`
	Message            string          `json:"message,omitempty"`
	Timestamp          int64           `json:"timestamp,omitempty"`
}

// knownTypes is the closed set of wire discriminators.
var knownTypes = map[EventType]bool{
	EventToken:      true,
	EventStepStart:  true,
	EventStepEnd:    true,
	EventCheckpoint: true,
	EventInterrupt:  true,
	EventError:      true,
}

// DecodeFrame parses a single wire frame into an Event.
//
// Frames are newline-delimited; the caller passes one line at a time. The
// literal Terminator decodes to EventEndOfStream. Anything else must be a
// JSON object with a "type" discriminator. A recognized type yields that
// variant; an unrecognized (or missing) type yields EventUnknown.
//
// Only malformed JSON returns an error. Per the fail-soft contract, callers
// log and skip such frames rather than aborting the stream.
func DecodeFrame(line []byte) (Event, error) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return Event{Type: EventUnknown}, fmt.Errorf("empty frame")
	}
	if string(trimmed) == Terminator {
		return Event{Type: EventEndOfStream}, nil
	}

	var ev Event
	if err := json.Unmarshal(trimmed, &ev); err != nil {
		return Event{Type: EventUnknown}, fmt.Errorf("malformed frame: %w", err)
	}
	if !knownTypes[ev.Type] {
		ev.Type = EventUnknown
	}
	return ev, nil
}
