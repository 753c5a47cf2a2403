package graph

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/runlens/runlens/graph/emit"
)

// maxFrameSize bounds a single wire frame. Step outputs ride inside frames,
// so the limit is generous.
const maxFrameSize = 4 << 20

// Engine reconstructs one session's execution graph from orchestrator event
// streams and persisted history.
//
// The engine is the single writer of its session's State. Consume and
// Rehydrate take an exclusive writer slot; a second writer gets
// ErrWriterActive instead of interleaving. Reads (Snapshot, TracePath) are
// serialized against the writer through the same lock.
//
// Events are processed strictly in arrival order, one at a time; ordering is
// a transport guarantee and the engine performs no reordering. Closing the
// stream or cancelling the context halts processing immediately, leaving
// every in-flight occurrence in whatever status it last had.
//
// Typical live usage:
//
//	engine := graph.NewEngine("", graph.WithOrchestrator(client))
//	if err := engine.Start(ctx, input); err != nil { ... }
//	// render from engine.Snapshot() as snapshots arrive
type Engine struct {
	mu        sync.Mutex
	state     *State
	sessionID string
	userID    string
	seq       int
	writing   bool

	emitter    emit.Emitter
	metrics    *Metrics
	orch       Orchestrator
	onSnapshot func(Snapshot)
}

// NewEngine creates an engine for one session. An empty sessionID gets a
// generated UUID.
func NewEngine(sessionID string, opts ...Option) *Engine {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	e := &Engine{
		sessionID: sessionID,
		state:     NewState(),
		emitter:   emit.NewNullEmitter(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SessionID returns the session this engine reconstructs.
func (e *Engine) SessionID() string { return e.sessionID }

// Consume reads one event stream to its end, applying each frame to the
// session state. It blocks until the stream terminates (end_of_stream,
// interrupt, protocol error, transport drop) or ctx is cancelled, and always
// closes the stream before returning.
//
// Frames that fail to decode are logged, counted, and skipped; the stream
// continues. Transport errors return wrapped; protocol errors and
// interrupts are surfaced through the session phase and return nil.
//
// Consume never clears existing occurrences: a rerun stream for the same
// session appends its new branch beside the old one. Use Reset for a
// brand-new session.
func (e *Engine) Consume(ctx context.Context, stream io.ReadCloser) error {
	if err := e.acquireWriter(); err != nil {
		stream.Close()
		return err
	}
	defer e.releaseWriter()

	// Close the stream when ctx ends so a blocked read unblocks. The done
	// channel keeps the watcher from outliving this call.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			stream.Close()
		case <-done:
		}
	}()
	defer stream.Close()

	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 64*1024), maxFrameSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		e.seq++

		ev, err := DecodeFrame(line)
		if err != nil {
			// Fail-soft per frame: log and continue.
			e.metrics.IncParseError()
			e.emit(emit.Event{
				SessionID: e.sessionID,
				Seq:       e.seq,
				Msg:       "parse_error",
				Meta:      map[string]interface{}{"error": err.Error()},
			})
			continue
		}
		e.metrics.IncFrame(ev.Type)

		if terminal := e.apply(ev); terminal {
			return nil
		}
		if ctx.Err() != nil {
			e.metrics.IncTermination("cancel")
			return ctx.Err()
		}
	}

	if ctx.Err() != nil {
		e.metrics.IncTermination("cancel")
		return ctx.Err()
	}
	if err := scanner.Err(); err != nil {
		e.markDisconnected(err.Error())
		return fmt.Errorf("read stream: %w", err)
	}

	// EOF without the terminator: the connection dropped mid-stream.
	e.markDisconnected(ErrTruncatedStream.Error())
	return ErrTruncatedStream
}

// apply routes one event through the reducer, emits telemetry for the
// transition, and publishes a snapshot. Returns true when the event ends
// the stream.
func (e *Engine) apply(ev Event) (terminal bool) {
	e.mu.Lock()

	before := len(e.state.occurrences)
	var prevStatus Status
	if occ := e.state.lastOccurrence(ev.Step); occ != nil {
		prevStatus = occ.Status
	}

	e.state.Apply(ev)

	tel := e.telemetry(ev, before, prevStatus)
	snap := e.state.Snapshot()
	e.mu.Unlock()

	for _, event := range tel {
		e.emit(event)
	}
	e.publish(snap)

	switch ev.Type {
	case EventInterrupt:
		e.metrics.IncTermination("interrupt")
		return true
	case EventError:
		e.metrics.IncTermination("error")
		return true
	case EventEndOfStream:
		e.metrics.IncTermination("end")
		return true
	}
	return false
}

// telemetry derives emit events for the state transition just applied.
// Called with the lock held; must not block.
func (e *Engine) telemetry(ev Event, occBefore int, prevStatus Status) []emit.Event {
	base := emit.Event{SessionID: e.sessionID, Seq: e.seq, Step: ev.Step}

	switch ev.Type {
	case EventStepStart:
		if len(e.state.occurrences) > occBefore {
			e.metrics.IncOccurrence()
			base.Msg = "occurrence_created"
			base.Meta = map[string]interface{}{"uid": e.state.lastOccurrence(ev.Step).UID}
			return []emit.Event{base}
		}
	case EventStepEnd:
		if occ := e.state.lastOccurrence(ev.Step); occ != nil && prevStatus == StatusRunning && occ.Settled() {
			base.Msg = "occurrence_settled"
			base.Meta = map[string]interface{}{"uid": occ.UID, "status": string(occ.Status)}
			return []emit.Event{base}
		}
	case EventCheckpoint:
		if occ := e.state.lastOccurrence(ev.Step); occ != nil && occ.CheckpointID == ev.CheckpointID {
			base.Msg = "checkpoint_linked"
			base.Meta = map[string]interface{}{"uid": occ.UID, "checkpoint_id": ev.CheckpointID}
			return []emit.Event{base}
		}
	case EventInterrupt:
		base.Msg = "stream_interrupted"
		return []emit.Event{base}
	case EventError:
		base.Msg = "stream_error"
		base.Meta = map[string]interface{}{"error": ev.Message}
		return []emit.Event{base}
	case EventEndOfStream:
		base.Msg = "stream_end"
		return []emit.Event{base}
	}
	return nil
}

// Snapshot returns a point-in-time view of the session, safe to hold across
// further mutation.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Snapshot()
}

// TracePath returns the ancestor uid set of the given occurrence for
// highlighting; see (*State).TracePath.
func (e *Engine) TracePath(uid string) map[string]bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.TracePath(uid)
}

// Reset atomically clears the session's reconstructed state, keeping the
// engine's configuration. This is the brand-new-session path; reruns must
// not call it.
//
// A session whose stream is still being consumed (or which is mid
// rehydration) cannot be reset; that returns ErrWriterActive so the active
// writer never ends up feeding a swapped-out store.
func (e *Engine) Reset() error {
	e.mu.Lock()
	if e.writing {
		e.mu.Unlock()
		return ErrWriterActive
	}
	agg, window, now := e.state.aggregation, e.state.forkWindow, e.state.now
	e.state = NewState()
	e.state.aggregation = agg
	e.state.forkWindow = window
	e.state.now = now
	e.seq = 0
	snap := e.state.Snapshot()
	e.mu.Unlock()

	e.publish(snap)
	return nil
}

func (e *Engine) acquireWriter() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.writing {
		return ErrWriterActive
	}
	e.writing = true
	return nil
}

func (e *Engine) releaseWriter() {
	e.mu.Lock()
	e.writing = false
	e.mu.Unlock()
}

func (e *Engine) markDisconnected(reason string) {
	e.mu.Lock()
	e.state.phase = PhaseDisconnected
	snap := e.state.Snapshot()
	e.mu.Unlock()

	e.metrics.IncTermination("transport")
	e.emit(emit.Event{
		SessionID: e.sessionID,
		Seq:       e.seq,
		Msg:       "stream_disconnected",
		Meta:      map[string]interface{}{"error": reason},
	})
	e.publish(snap)
}

func (e *Engine) publish(snap Snapshot) {
	e.metrics.ObserveSnapshot(snap)
	if e.onSnapshot != nil {
		e.onSnapshot(snap)
	}
}

func (e *Engine) emit(event emit.Event) {
	if e.emitter != nil {
		e.emitter.Emit(event)
	}
}
