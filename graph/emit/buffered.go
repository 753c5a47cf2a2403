package emit

import "sync"

// BufferedEmitter captures events in memory, organized by session, with
// simple query support. Intended for tests, debugging, and post-hoc
// analysis of a reconstruction run.
//
// All events are retained until cleared; long-lived sessions with heavy
// token traffic should prefer LogEmitter or OTelEmitter in production.
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event // sessionID -> events
}

// HistoryFilter selects a subset of a session's captured events. All set
// fields must match (AND logic); zero-valued fields are ignored.
type HistoryFilter struct {
	// Step filters by logical step name.
	Step string

	// Msg filters by event message, e.g. "parse_error".
	Msg string

	// MinSeq and MaxSeq bound the frame ordinal; nil means unbounded.
	MinSeq *int
	MaxSeq *int
}

// NewBufferedEmitter creates an empty in-memory event capture.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{events: make(map[string][]Event)}
}

// Emit appends the event to its session's history. Thread-safe.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[event.SessionID] = append(b.events[event.SessionID], event)
}

// History returns a copy of all captured events for a session, in emission
// order.
func (b *BufferedEmitter) History(sessionID string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Event(nil), b.events[sessionID]...)
}

// HistoryWithFilter returns the session's events matching the filter.
func (b *BufferedEmitter) HistoryWithFilter(sessionID string, filter HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Event
	for _, ev := range b.events[sessionID] {
		if filter.Step != "" && ev.Step != filter.Step {
			continue
		}
		if filter.Msg != "" && ev.Msg != filter.Msg {
			continue
		}
		if filter.MinSeq != nil && ev.Seq < *filter.MinSeq {
			continue
		}
		if filter.MaxSeq != nil && ev.Seq > *filter.MaxSeq {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// Clear drops the captured events for one session.
func (b *BufferedEmitter) Clear(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.events, sessionID)
}

// ClearAll drops everything.
func (b *BufferedEmitter) ClearAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = make(map[string][]Event)
}
