package graph

import "errors"

// ErrWriterActive indicates that a live stream or a rehydration is already
// mutating this session's state. The node store has exactly one writer at a
// time; callers must wait for the current one to finish.
var ErrWriterActive = errors.New("session writer already active")

// ErrTruncatedStream indicates the transport closed without delivering the
// stream terminator. Terminal for the current stream; the session keeps
// whatever state it had, and no retry is performed by the engine.
var ErrTruncatedStream = errors.New("stream closed without terminator")

// ErrNoOrchestrator is returned by operations that need the upstream
// orchestrator (start, resume, rerun) on an engine built without one.
var ErrNoOrchestrator = errors.New("no orchestrator configured")

// ErrUnknownCheckpoint is returned when a rerun targets a checkpoint id that
// no reconstructed occurrence produced.
var ErrUnknownCheckpoint = errors.New("unknown checkpoint")

// ErrNoInterrupt is returned when Resume is called while no interrupt is
// pending for the session.
var ErrNoInterrupt = errors.New("no pending interrupt")
