package graph

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// Phase is the stream-level condition of a session, distinct from the
// per-occurrence Status. It tells the rendering layer whether events are
// still expected.
type Phase string

const (
	// PhaseIdle means no stream has delivered an event yet.
	PhaseIdle Phase = "idle"

	// PhaseStreaming means a live stream is delivering events.
	PhaseStreaming Phase = "streaming"

	// PhaseInterrupted means the stream suspended for human action. The
	// transport is closed; resumption opens a new stream for the session.
	PhaseInterrupted Phase = "interrupted"

	// PhaseFailed means the orchestrator reported a protocol error. No retry
	// is performed by the engine.
	PhaseFailed Phase = "failed"

	// PhaseEnded means the stream terminated normally.
	PhaseEnded Phase = "ended"

	// PhaseDisconnected means the transport dropped before the terminator
	// arrived. Distinct from PhaseFailed, which is a protocol-level error.
	PhaseDisconnected Phase = "disconnected"
)

// Interrupt describes a protocol suspension surfaced for human action.
type Interrupt struct {
	// PendingToolCall is the tool invocation awaiting approval, if any.
	PendingToolCall json.RawMessage `json:"pending_tool_call,omitempty"`

	// NextSteps previews the steps the orchestrator intends to run next.
	NextSteps []string `json:"next_steps,omitempty"`
}

// State is the reconstructed record of one session: the append-only
// occurrence arena, the set of steps currently in flight, the per-step token
// buffers, and the stream-level phase.
//
// All mutation flows through Apply, the single transition function shared by
// the live stream processor and the history rehydrator. That is what makes
// rehydration equivalence checkable: both writers replay the same rules.
//
// State is not internally synchronized. The Engine guarantees a single
// writer per session and serializes reads through its own lock.
type State struct {
	occurrences []*Occurrence
	byStep      map[string][]int // step name -> arena indexes, in append order
	active      map[string]struct{}
	buffers     map[string]*strings.Builder
	finalAnswer string
	interrupt   *Interrupt
	failure     string
	phase       Phase

	aggregation map[string]bool
	forkWindow  int

	now func() int64
}

// defaultForkWindow is the number of most recent occurrences whose incoming
// edges are tagged as the latest fork. A presentation heuristic, not a
// structural property; tune via WithForkWindow.
const defaultForkWindow = 5

// defaultAggregationSteps are the steps whose live token output is mirrored
// into the final-answer slot. These are the only steps whose text surfaces
// outside the trace view.
var defaultAggregationSteps = []string{"supervisor", "aggregate"}

// NewState creates an empty session state with default tuning.
func NewState() *State {
	s := &State{
		byStep:      make(map[string][]int),
		active:      make(map[string]struct{}),
		buffers:     make(map[string]*strings.Builder),
		aggregation: make(map[string]bool),
		forkWindow:  defaultForkWindow,
		phase:       PhaseIdle,
		now:         func() int64 { return time.Now().UnixMilli() },
	}
	for _, step := range defaultAggregationSteps {
		s.aggregation[step] = true
	}
	return s
}

// Apply advances the state by one event. It is the only mutation path.
//
// Transition rules, by event type:
//
//   - step_start: if the most recent occurrence of the step is still running,
//     this is a duplicate re-announcement; missing input and parent are
//     filled in and no new occurrence is created. Otherwise a new running
//     occurrence is appended and the step joins the active set.
//   - token: the text is appended to the step's buffer; for designated
//     aggregation steps the whole buffer is mirrored into the final answer.
//   - step_end: the most recent occurrence of the step settles as completed
//     with the given output and leaves the active set. Settled occurrences
//     are never revisited, so a stray step_end after settlement is a no-op.
//   - checkpoint: the most recent occurrence of the step records its
//     checkpoint and parent, and its uid is promoted to the stable
//     checkpoint-derived key. A checkpoint implies the step settled, so a
//     still-running occurrence completes here. CheckpointID is immutable
//     once set; a conflicting re-report is ignored.
//   - interrupt: the stream suspends; the pending tool call and step preview
//     are retained for the caller. Occurrence statuses are untouched.
//   - error: the stream fails; the message is retained verbatim. If the
//     event names a step whose occurrence is still running, that occurrence
//     settles as failed. No other status changes.
//   - end_of_stream: the active set clears and the phase becomes ended;
//     occurrence statuses stay as last observed.
//   - unknown: no-op.
//
// Returned errors are reserved for future strict modes; every current
// transition is total and Apply always returns nil.
func (s *State) Apply(ev Event) error {
	switch ev.Type {
	case EventStepStart:
		s.applyStepStart(ev)
	case EventToken:
		s.applyToken(ev)
	case EventStepEnd:
		s.applyStepEnd(ev)
	case EventCheckpoint:
		s.applyCheckpoint(ev)
	case EventInterrupt:
		s.interrupt = &Interrupt{
			PendingToolCall: ev.PendingToolCall,
			NextSteps:       ev.NextSteps,
		}
		s.phase = PhaseInterrupted
	case EventError:
		s.failure = ev.Message
		s.phase = PhaseFailed
		if ev.Step != "" {
			if occ := s.lastOccurrence(ev.Step); occ != nil && occ.Status == StatusRunning {
				occ.Status = StatusFailed
				delete(s.active, ev.Step)
			}
		}
	case EventEndOfStream:
		s.active = make(map[string]struct{})
		if s.phase == PhaseIdle || s.phase == PhaseStreaming {
			s.phase = PhaseEnded
		}
	case EventUnknown:
		// Closed union: recognized but deliberately ignored.
	}
	return nil
}

func (s *State) applyStepStart(ev Event) {
	s.phase = PhaseStreaming

	if occ := s.lastOccurrence(ev.Step); occ != nil && occ.Status == StatusRunning {
		// Duplicate re-announcement of an in-flight step. Fill gaps only.
		if occ.Input == nil && ev.Input != nil {
			occ.Input = ev.Input
		}
		if occ.ParentCheckpointID == "" && ev.ParentCheckpointID != "" {
			occ.ParentCheckpointID = ev.ParentCheckpointID
		}
		s.active[ev.Step] = struct{}{}
		return
	}

	idx := len(s.occurrences)
	occ := &Occurrence{
		StepID:             ev.Step,
		UID:                provisionalUID(ev.Step, len(s.byStep[ev.Step])),
		Status:             StatusRunning,
		Timestamp:          s.stamp(ev),
		Input:              ev.Input,
		ParentCheckpointID: ev.ParentCheckpointID,
	}
	s.occurrences = append(s.occurrences, occ)
	s.byStep[ev.Step] = append(s.byStep[ev.Step], idx)
	s.active[ev.Step] = struct{}{}
}

func (s *State) applyToken(ev Event) {
	s.phase = PhaseStreaming

	buf, ok := s.buffers[ev.Step]
	if !ok {
		buf = &strings.Builder{}
		s.buffers[ev.Step] = buf
	}
	buf.WriteString(ev.Text)

	if s.aggregation[ev.Step] {
		s.finalAnswer = buf.String()
	}
}

func (s *State) applyStepEnd(ev Event) {
	s.phase = PhaseStreaming

	delete(s.active, ev.Step)
	occ := s.lastOccurrence(ev.Step)
	if occ == nil || occ.Status != StatusRunning {
		// No in-flight occurrence to settle; statuses are monotonic.
		return
	}
	occ.Status = StatusCompleted
	if ev.Output != nil {
		occ.Output = ev.Output
	}
}

func (s *State) applyCheckpoint(ev Event) {
	s.phase = PhaseStreaming

	occ := s.lastOccurrence(ev.Step)
	if occ == nil {
		return
	}
	if occ.CheckpointID != "" {
		// CheckpointID is immutable once set.
		return
	}
	// Count the step's occurrences already registered under this checkpoint
	// so a parallel round promoting several of them keeps distinct uids.
	n := 0
	for _, idx := range s.byStep[ev.Step] {
		if s.occurrences[idx].CheckpointID == ev.CheckpointID {
			n++
		}
	}

	occ.CheckpointID = ev.CheckpointID
	if ev.ParentCheckpointID != "" {
		occ.ParentCheckpointID = ev.ParentCheckpointID
	}
	occ.UID = stableUID(ev.CheckpointID, ev.Step, n)

	// The runner persists a checkpoint only once the step has settled, so a
	// checkpoint on a still-running occurrence completes it. Without this, a
	// supervisor that checkpoints without an explicit step_end would absorb
	// its own later runs through the dedup rule.
	if occ.Status == StatusRunning {
		occ.Status = StatusCompleted
		delete(s.active, ev.Step)
	}
}

// stamp returns the logical time for an event: the event's own timestamp if
// the rehydrator supplied one, otherwise the current clock.
func (s *State) stamp(ev Event) int64 {
	if ev.Timestamp != 0 {
		return ev.Timestamp
	}
	return s.now()
}

// lastOccurrence returns the most recently appended occurrence of a step, or
// nil if the step has never been observed. Most recent wins: earlier
// occurrences of a step are never revisited once superseded.
func (s *State) lastOccurrence(stepID string) *Occurrence {
	idxs := s.byStep[stepID]
	if len(idxs) == 0 {
		return nil
	}
	return s.occurrences[idxs[len(idxs)-1]]
}

// Occurrences returns copies of all occurrences in append order.
func (s *State) Occurrences() []Occurrence {
	out := make([]Occurrence, len(s.occurrences))
	for i, occ := range s.occurrences {
		out[i] = *occ
	}
	return out
}

// ActiveSteps returns the step names currently reported in flight, sorted.
func (s *State) ActiveSteps() []string {
	out := make([]string, 0, len(s.active))
	for step := range s.active {
		out = append(out, step)
	}
	sort.Strings(out)
	return out
}

// Buffer returns the accumulated token text for a step.
func (s *State) Buffer(stepID string) string {
	if buf, ok := s.buffers[stepID]; ok {
		return buf.String()
	}
	return ""
}

// FinalAnswer returns the mirrored output of the designated aggregation
// steps, the only live text surfaced outside the trace view.
func (s *State) FinalAnswer() string { return s.finalAnswer }

// Phase returns the stream-level condition of the session.
func (s *State) Phase() Phase { return s.phase }

// Failure returns the verbatim message of a protocol error, if any.
func (s *State) Failure() string { return s.failure }

// PendingInterrupt returns the interrupt awaiting human action, or nil.
func (s *State) PendingInterrupt() *Interrupt { return s.interrupt }

// ClearInterrupt discards a surfaced interrupt, typically after the caller
// resumed the session through the orchestrator.
func (s *State) ClearInterrupt() { s.interrupt = nil }
