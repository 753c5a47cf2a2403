package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/runlens/runlens/graph/emit"
)

// Orchestrator is the upstream collaborator that actually runs steps. The
// engine only ever asks it to open event streams; all routing, retries, and
// model calls are its business.
type Orchestrator interface {
	// StartRun begins a fresh execution and returns its event stream.
	StartRun(ctx context.Context, sessionID, userID string, input json.RawMessage) (io.ReadCloser, error)

	// ResumeRun reopens a session's execution, either to answer a pending
	// interrupt or to branch from a historical checkpoint, and returns the
	// new event stream.
	ResumeRun(ctx context.Context, sessionID, userID string, req ResumeRequest) (io.ReadCloser, error)
}

// ResumeRequest parameterizes a ResumeRun call.
type ResumeRequest struct {
	// CheckpointID is the historical checkpoint to branch from. Empty when
	// resuming an interrupt in place.
	CheckpointID string `json:"checkpoint_id,omitempty"`

	// Input optionally replaces the step input when branching.
	Input json.RawMessage `json:"input,omitempty"`

	// Step optionally names the step to begin from after the checkpoint.
	Step string `json:"step,omitempty"`

	// Approval carries the human response to a pending interrupt (tool
	// approval or free-form input).
	Approval json.RawMessage `json:"approval,omitempty"`
}

// Start asks the orchestrator for a fresh run of this session and consumes
// its stream on a new goroutine. The call returns once the stream is open;
// consumption outcomes surface through the session phase, the emitter, and
// metrics.
func (e *Engine) Start(ctx context.Context, input json.RawMessage) error {
	if e.orch == nil {
		return ErrNoOrchestrator
	}
	stream, err := e.orch.StartRun(ctx, e.sessionID, e.userID, input)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	go e.consumeDetached(ctx, stream)
	return nil
}

// Resume answers the pending interrupt and consumes the replacement stream.
// The interrupt slot is cleared once the orchestrator accepts the resume.
func (e *Engine) Resume(ctx context.Context, approval json.RawMessage) error {
	if e.orch == nil {
		return ErrNoOrchestrator
	}

	e.mu.Lock()
	pending := e.state.interrupt != nil
	e.mu.Unlock()
	if !pending {
		return ErrNoInterrupt
	}

	stream, err := e.orch.ResumeRun(ctx, e.sessionID, e.userID, ResumeRequest{Approval: approval})
	if err != nil {
		return fmt.Errorf("resume run: %w", err)
	}

	e.mu.Lock()
	e.state.ClearInterrupt()
	e.mu.Unlock()

	go e.consumeDetached(ctx, stream)
	return nil
}

// RequestRerun issues a time-travel rerun branching from a historical
// checkpoint, optionally with replacement input and a starting step. It is
// fire-and-forget toward the orchestrator: the engine's only duty is to keep
// every prior occurrence while the new branch streams in beside them.
//
// The checkpoint must belong to an occurrence this session has already
// reconstructed; otherwise ErrUnknownCheckpoint is returned and nothing is
// issued.
func (e *Engine) RequestRerun(ctx context.Context, checkpointID string, newInput json.RawMessage, stepName string) error {
	if e.orch == nil {
		return ErrNoOrchestrator
	}

	e.mu.Lock()
	_, known := e.state.checkpointIndex()[checkpointID]
	e.mu.Unlock()
	if !known {
		return fmt.Errorf("%w: %s", ErrUnknownCheckpoint, checkpointID)
	}

	stream, err := e.orch.ResumeRun(ctx, e.sessionID, e.userID, ResumeRequest{
		CheckpointID: checkpointID,
		Input:        newInput,
		Step:         stepName,
	})
	if err != nil {
		return fmt.Errorf("request rerun: %w", err)
	}

	e.metrics.IncRerun()
	e.emit(emit.Event{
		SessionID: e.sessionID,
		Msg:       "rerun_requested",
		Step:      stepName,
		Meta:      map[string]interface{}{"checkpoint_id": checkpointID},
	})

	go e.consumeDetached(ctx, stream)
	return nil
}

// consumeDetached runs Consume on a background goroutine for the
// fire-and-forget entry points. Errors have nowhere to return, so they are
// reported through the emitter; session phase and metrics already reflect
// them.
func (e *Engine) consumeDetached(ctx context.Context, stream io.ReadCloser) {
	if err := e.Consume(ctx, stream); err != nil && ctx.Err() == nil {
		e.emit(emit.Event{
			SessionID: e.sessionID,
			Msg:       "consume_failed",
			Meta:      map[string]interface{}{"error": err.Error()},
		})
	}
}
