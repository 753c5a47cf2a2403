package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

// backend is one Source+Recorder implementation under test.
type backend interface {
	Source
	Recorder
}

func backends(t *testing.T) map[string]backend {
	t.Helper()
	sqlite, err := NewSQLiteSource(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]backend{
		"memory": NewMemSource(),
		"sqlite": sqlite,
	}
}

func TestBackends(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("unknown session", func(t *testing.T) {
				if _, err := b.FetchStepHistory(ctx, "missing"); !errors.Is(err, ErrNotFound) {
					t.Errorf("steps: expected ErrNotFound, got %v", err)
				}
				if _, err := b.FetchTopology(ctx, "missing"); !errors.Is(err, ErrNotFound) {
					t.Errorf("topology: expected ErrNotFound, got %v", err)
				}
			})

			t.Run("round trip preserves rows and order", func(t *testing.T) {
				logs := []StepLog{
					{SessionID: "s1", Step: "supervisor", Status: "completed", Timestamp: 100, Input: []byte(`{"q":1}`)},
					{SessionID: "s1", Step: "agentX", Status: "failed", Timestamp: 200, ParentCheckpointID: "c1", Failure: "boom"},
				}
				for _, row := range logs {
					if err := b.SaveStepLog(ctx, row); err != nil {
						t.Fatalf("save step log: %v", err)
					}
				}
				if err := b.SaveTopology(ctx, TopologyRecord{
					SessionID: "s1", Step: "supervisor", CheckpointID: "c1", Timestamp: 100,
				}); err != nil {
					t.Fatalf("save topology: %v", err)
				}

				got, err := b.FetchStepHistory(ctx, "s1")
				if err != nil {
					t.Fatalf("fetch steps: %v", err)
				}
				if len(got) != 2 {
					t.Fatalf("expected 2 rows, got %d", len(got))
				}
				if got[0].Step != "supervisor" || got[1].Step != "agentX" {
					t.Errorf("insertion order lost: %+v", got)
				}
				if string(got[0].Input) != `{"q":1}` {
					t.Errorf("input payload lost: %s", got[0].Input)
				}
				if got[0].Output != nil {
					t.Errorf("absent output must stay nil, got %s", got[0].Output)
				}
				if got[1].ParentCheckpointID != "c1" || got[1].Failure != "boom" {
					t.Errorf("failed row mangled: %+v", got[1])
				}

				recs, err := b.FetchTopology(ctx, "s1")
				if err != nil {
					t.Fatalf("fetch topology: %v", err)
				}
				if len(recs) != 1 || recs[0].CheckpointID != "c1" || recs[0].ParentCheckpointID != "" {
					t.Errorf("unexpected topology: %+v", recs)
				}
			})

			t.Run("steps without checkpoints is not an unknown session", func(t *testing.T) {
				if err := b.SaveStepLog(ctx, StepLog{SessionID: "s2", Step: "supervisor", Status: "running", Timestamp: 1}); err != nil {
					t.Fatalf("save: %v", err)
				}
				recs, err := b.FetchTopology(ctx, "s2")
				if err != nil {
					t.Fatalf("expected empty topology, got error %v", err)
				}
				if len(recs) != 0 {
					t.Errorf("expected no records, got %+v", recs)
				}
			})

			t.Run("sessions are isolated", func(t *testing.T) {
				rows, err := b.FetchStepHistory(ctx, "s1")
				if err != nil {
					t.Fatalf("fetch: %v", err)
				}
				for _, row := range rows {
					if row.SessionID != "s1" {
						t.Errorf("foreign row leaked: %+v", row)
					}
					if row.Step == "supervisor" && row.Status == "running" {
						t.Errorf("s2 row leaked into s1: %+v", row)
					}
				}
			})
		})
	}
}
