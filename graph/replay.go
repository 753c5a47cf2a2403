package graph

import (
	"context"
	"fmt"
	"sort"

	"github.com/runlens/runlens/graph/emit"
	"github.com/runlens/runlens/graph/history"
)

// History rehydration rebuilds a session's node store from persisted step
// logs and topology records, replaying them through the same reducer the
// live stream processor uses. That shared path is the whole design: the
// occurrence/edge set after rehydration is structurally equal to what live
// consumption of the original stream produced, with no live-only side
// channel to diverge on.

// kind precedence orders events sharing a timestamp so a step's start lands
// before its settlement and a checkpoint lands after both.
const (
	precStart = iota
	precEnd
	precCheckpoint
	precError
)

type replayEvent struct {
	ev   Event
	prec int
}

// Rehydrate rebuilds this session's state from a history source. It takes
// the session's exclusive writer slot, so it cannot interleave with a live
// stream; a concurrent writer gets ErrWriterActive.
//
// Rows are replayed in timestamp order. The replay is finished with a
// synthesized end_of_stream: a reopened session has no live stream, so
// nothing is "currently in flight" and the active set ends empty, exactly
// as if the original stream had been consumed to its end. A session whose
// history records a protocol failure rehydrates back into the failed phase.
//
// Existing occurrences are not cleared first; call Reset to rehydrate into
// a clean store.
func (e *Engine) Rehydrate(ctx context.Context, src history.Source) error {
	if err := e.acquireWriter(); err != nil {
		return err
	}
	defer e.releaseWriter()

	e.emit(emit.Event{SessionID: e.sessionID, Msg: "rehydrate_start"})

	logs, err := src.FetchStepHistory(ctx, e.sessionID)
	if err != nil {
		return fmt.Errorf("fetch step history: %w", err)
	}
	topology, err := src.FetchTopology(ctx, e.sessionID)
	if err != nil {
		return fmt.Errorf("fetch topology: %w", err)
	}

	events := synthesize(logs, topology)

	e.mu.Lock()
	for _, rev := range events {
		e.seq++
		e.state.Apply(rev.ev)
	}
	e.seq++
	e.state.Apply(Event{Type: EventEndOfStream})
	snap := e.state.Snapshot()
	e.mu.Unlock()

	e.publish(snap)
	e.emit(emit.Event{
		SessionID: e.sessionID,
		Msg:       "rehydrate_complete",
		Meta: map[string]interface{}{
			"occurrences": len(snap.Occurrences),
			"edges":       len(snap.Edges),
		},
	})
	return nil
}

// synthesize converts persisted rows back into the wire events that would
// have produced them, ordered by timestamp with kind precedence breaking
// ties. The sort is stable, so rows sharing both timestamp and kind keep
// their persisted order.
func synthesize(logs []history.StepLog, topology []history.TopologyRecord) []replayEvent {
	events := make([]replayEvent, 0, 2*len(logs)+len(topology))

	for _, row := range logs {
		events = append(events, replayEvent{
			prec: precStart,
			ev: Event{
				Type:               EventStepStart,
				Step:               row.Step,
				Input:              row.Input,
				ParentCheckpointID: row.ParentCheckpointID,
				Timestamp:          row.Timestamp,
			},
		})

		switch row.Status {
		case string(StatusCompleted):
			events = append(events, replayEvent{
				prec: precEnd,
				ev: Event{
					Type:      EventStepEnd,
					Step:      row.Step,
					Output:    row.Output,
					Timestamp: row.Timestamp,
				},
			})
		case string(StatusFailed):
			events = append(events, replayEvent{
				prec: precError,
				ev: Event{
					Type:      EventError,
					Step:      row.Step,
					Message:   row.Failure,
					Timestamp: row.Timestamp,
				},
			})
		}
	}

	for _, rec := range topology {
		events = append(events, replayEvent{
			prec: precCheckpoint,
			ev: Event{
				Type:               EventCheckpoint,
				Step:               rec.Step,
				CheckpointID:       rec.CheckpointID,
				ParentCheckpointID: rec.ParentCheckpointID,
				Timestamp:          rec.Timestamp,
			},
		})
	}

	sort.SliceStable(events, func(i, j int) bool {
		if events[i].ev.Timestamp != events[j].ev.Timestamp {
			return events[i].ev.Timestamp < events[j].ev.Timestamp
		}
		return events[i].prec < events[j].prec
	})
	return events
}

// RecordHistory persists a snapshot's occurrences and checkpoints through a
// history recorder, producing rows Rehydrate can replay. Local backends use
// this in tests and development setups standing in for the orchestrator's
// own persistence.
func RecordHistory(ctx context.Context, rec history.Recorder, snap Snapshot, sessionID string, failure string) error {
	for _, occ := range snap.Occurrences {
		row := history.StepLog{
			SessionID:          sessionID,
			Step:               occ.StepID,
			Status:             string(occ.Status),
			Timestamp:          occ.Timestamp,
			Input:              occ.Input,
			Output:             occ.Output,
			ParentCheckpointID: occ.ParentCheckpointID,
		}
		if occ.Status == StatusFailed {
			row.Failure = failure
		}
		if err := rec.SaveStepLog(ctx, row); err != nil {
			return fmt.Errorf("record step log: %w", err)
		}

		if occ.CheckpointID != "" {
			err := rec.SaveTopology(ctx, history.TopologyRecord{
				SessionID:          sessionID,
				Step:               occ.StepID,
				CheckpointID:       occ.CheckpointID,
				ParentCheckpointID: occ.ParentCheckpointID,
				Timestamp:          occ.Timestamp,
			})
			if err != nil {
				return fmt.Errorf("record topology: %w", err)
			}
		}
	}
	return nil
}
