package graph

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/runlens/runlens/graph/history"
)

func TestRehydrate(t *testing.T) {
	t.Run("matches live consumption structurally", func(t *testing.T) {
		live := newTestEngine()
		if err := live.Consume(context.Background(), ndjson(supervisorRound...)); err != nil {
			t.Fatalf("consume: %v", err)
		}
		liveSnap := live.Snapshot()

		src := history.NewMemSource()
		if err := RecordHistory(context.Background(), src, liveSnap, "sess-test", ""); err != nil {
			t.Fatalf("record: %v", err)
		}

		reopened := newTestEngine()
		if err := reopened.Rehydrate(context.Background(), src); err != nil {
			t.Fatalf("rehydrate: %v", err)
		}
		snap := reopened.Snapshot()

		if len(snap.Occurrences) != len(liveSnap.Occurrences) {
			t.Fatalf("occurrence count diverged: live %d, rehydrated %d",
				len(liveSnap.Occurrences), len(snap.Occurrences))
		}
		liveOccs := make(map[string]Occurrence, len(liveSnap.Occurrences))
		for _, occ := range liveSnap.Occurrences {
			liveOccs[occ.UID] = occ
		}
		for _, occ := range snap.Occurrences {
			want, ok := liveOccs[occ.UID]
			if !ok {
				t.Errorf("rehydrated uid %s missing from live store", occ.UID)
				continue
			}
			if occ.Status != want.Status ||
				occ.CheckpointID != want.CheckpointID ||
				occ.ParentCheckpointID != want.ParentCheckpointID ||
				occ.Timestamp != want.Timestamp {
				t.Errorf("occurrence %s diverged: live %+v, rehydrated %+v", occ.UID, want, occ)
			}
		}

		liveEdges, gotEdges := edgeSet(liveSnap.Edges), edgeSet(snap.Edges)
		if len(liveEdges) != len(gotEdges) {
			t.Fatalf("edge count diverged: live %v, rehydrated %v", liveEdges, gotEdges)
		}
		for edge := range liveEdges {
			if !gotEdges[edge] {
				t.Errorf("edge %v missing after rehydration", edge)
			}
		}
	})

	t.Run("parallel same-step uids survive rehydration", func(t *testing.T) {
		live := newTestEngine()
		err := live.Consume(context.Background(), ndjson(
			`{"type":"step_start","step":"A"}`,
			`{"type":"checkpoint","step":"A","checkpoint_id":"P"}`,
			`{"type":"step_start","step":"A"}`,
			`{"type":"checkpoint","step":"A","checkpoint_id":"P"}`,
			Terminator,
		))
		if err != nil {
			t.Fatalf("consume: %v", err)
		}

		src := history.NewMemSource()
		if err := RecordHistory(context.Background(), src, live.Snapshot(), "sess-test", ""); err != nil {
			t.Fatalf("record: %v", err)
		}

		e := newTestEngine()
		if err := e.Rehydrate(context.Background(), src); err != nil {
			t.Fatalf("rehydrate: %v", err)
		}

		uids := make(map[string]bool)
		for _, occ := range e.Snapshot().Occurrences {
			if uids[occ.UID] {
				t.Fatalf("duplicate uid %q after rehydration", occ.UID)
			}
			uids[occ.UID] = true
		}
		if !uids["cp:P/A"] || !uids["cp:P/A#1"] {
			t.Errorf("expected the live uid pair, got %v", uids)
		}
	})

	t.Run("reopened session is settled and ended", func(t *testing.T) {
		src := history.NewMemSource()
		src.SaveStepLog(context.Background(), history.StepLog{
			SessionID: "sess-test", Step: "supervisor",
			Status: string(StatusCompleted), Timestamp: 100,
		})

		e := newTestEngine()
		if err := e.Rehydrate(context.Background(), src); err != nil {
			t.Fatalf("rehydrate: %v", err)
		}

		snap := e.Snapshot()
		if snap.Phase != PhaseEnded {
			t.Errorf("expected ended, got %s", snap.Phase)
		}
		if len(snap.Active) != 0 {
			t.Errorf("nothing is in flight after reopening, got %v", snap.Active)
		}
	})

	t.Run("a recorded failure rehydrates into the failed phase", func(t *testing.T) {
		live := newTestEngine()
		err := live.Consume(context.Background(), ndjson(
			`{"type":"step_start","step":"supervisor"}`,
			`{"type":"checkpoint","step":"supervisor","checkpoint_id":"c1"}`,
			`{"type":"step_start","step":"agentX","parent_checkpoint_id":"c1"}`,
			`{"type":"error","step":"agentX","message":"tool exploded"}`,
		))
		if err != nil {
			t.Fatalf("consume: %v", err)
		}

		src := history.NewMemSource()
		if err := RecordHistory(context.Background(), src, live.Snapshot(), "sess-test", "tool exploded"); err != nil {
			t.Fatalf("record: %v", err)
		}

		e := newTestEngine()
		if err := e.Rehydrate(context.Background(), src); err != nil {
			t.Fatalf("rehydrate: %v", err)
		}

		snap := e.Snapshot()
		if snap.Phase != PhaseFailed {
			t.Errorf("expected failed, got %s", snap.Phase)
		}
		if snap.Failure != "tool exploded" {
			t.Errorf("failure message lost: %q", snap.Failure)
		}
		var agent *Occurrence
		for i := range snap.Occurrences {
			if snap.Occurrences[i].StepID == "agentX" {
				agent = &snap.Occurrences[i]
			}
		}
		if agent == nil || agent.Status != StatusFailed {
			t.Errorf("failed occurrence not restored: %+v", agent)
		}
	})

	t.Run("unknown session surfaces the source error", func(t *testing.T) {
		e := newTestEngine()
		err := e.Rehydrate(context.Background(), history.NewMemSource())
		if !errors.Is(err, history.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("cannot interleave with a live stream", func(t *testing.T) {
		e := newTestEngine()
		pr, pw := io.Pipe()

		done := make(chan error, 1)
		go func() { done <- e.Consume(context.Background(), pr) }()

		if _, err := pw.Write([]byte(`{"type":"step_start","step":"supervisor"}` + "\n")); err != nil {
			t.Fatalf("write: %v", err)
		}
		waitFor(t, func() bool { return len(e.Snapshot().Occurrences) == 1 })

		if err := e.Rehydrate(context.Background(), history.NewMemSource()); !errors.Is(err, ErrWriterActive) {
			t.Fatalf("expected ErrWriterActive, got %v", err)
		}

		pw.Close()
		<-done
	})
}

func TestRecordHistory(t *testing.T) {
	live := newTestEngine()
	err := live.Consume(context.Background(), ndjson(
		`{"type":"step_start","step":"supervisor","input":{"q":1}}`,
		`{"type":"checkpoint","step":"supervisor","checkpoint_id":"c1"}`,
		`{"type":"step_start","step":"agentX","parent_checkpoint_id":"c1"}`,
		`{"type":"error","step":"agentX","message":"boom"}`,
	))
	if err != nil {
		t.Fatalf("consume: %v", err)
	}

	src := history.NewMemSource()
	if err := RecordHistory(context.Background(), src, live.Snapshot(), "sess-test", "boom"); err != nil {
		t.Fatalf("record: %v", err)
	}

	logs, err := src.FetchStepHistory(context.Background(), "sess-test")
	if err != nil {
		t.Fatalf("fetch logs: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 step logs, got %d", len(logs))
	}
	for _, row := range logs {
		switch row.Step {
		case "supervisor":
			if row.Status != string(StatusCompleted) || row.Failure != "" {
				t.Errorf("supervisor row wrong: %+v", row)
			}
		case "agentX":
			if row.Status != string(StatusFailed) || row.Failure != "boom" {
				t.Errorf("agentX row wrong: %+v", row)
			}
			if row.ParentCheckpointID != "c1" {
				t.Errorf("parent lost on un-checkpointed step: %+v", row)
			}
		}
	}

	topology, err := src.FetchTopology(context.Background(), "sess-test")
	if err != nil {
		t.Fatalf("fetch topology: %v", err)
	}
	if len(topology) != 1 || topology[0].CheckpointID != "c1" {
		t.Fatalf("only checkpointed occurrences belong in topology, got %+v", topology)
	}
}
