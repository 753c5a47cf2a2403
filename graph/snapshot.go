package graph

import "encoding/json"

// Snapshot is the read-only view handed to the rendering layer. It is
// recomputed from the node store on request (the Engine also pushes one to
// its subscriber after every applied event), so it is always consistent with
// the latest occurrence data.
type Snapshot struct {
	// Occurrences holds copies of every occurrence, in append order.
	Occurrences []Occurrence `json:"occurrences"`

	// Edges is the derived edge set; see (*State).Edges for the rules.
	Edges []Edge `json:"edges"`

	// Active lists the step names currently reported in flight, sorted.
	// Independent of per-occurrence Status: several historical occurrences
	// of a step may exist while only the newest is logically executing.
	Active []string `json:"active"`

	// Phase is the stream-level condition of the session.
	Phase Phase `json:"phase"`

	// FinalAnswer mirrors the aggregation steps' live output, when any.
	FinalAnswer string `json:"final_answer,omitempty"`

	// Failure carries a protocol error message verbatim, when any.
	Failure string `json:"failure,omitempty"`

	// Interrupt is the suspension awaiting human action, when any.
	Interrupt *Interrupt `json:"interrupt,omitempty"`
}

// Snapshot builds a point-in-time view of the session. The returned value
// shares no mutable structure with the state; payloads are copied so the
// renderer can hold snapshots across further mutations.
func (s *State) Snapshot() Snapshot {
	occs := make([]Occurrence, len(s.occurrences))
	for i, occ := range s.occurrences {
		occs[i] = *occ
		occs[i].Input = cloneRaw(occ.Input)
		occs[i].Output = cloneRaw(occ.Output)
	}

	var intr *Interrupt
	if s.interrupt != nil {
		intr = &Interrupt{
			PendingToolCall: cloneRaw(s.interrupt.PendingToolCall),
			NextSteps:       append([]string(nil), s.interrupt.NextSteps...),
		}
	}

	return Snapshot{
		Occurrences: occs,
		Edges:       s.Edges(),
		Active:      s.ActiveSteps(),
		Phase:       s.phase,
		FinalAnswer: s.finalAnswer,
		Failure:     s.failure,
		Interrupt:   intr,
	}
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}
