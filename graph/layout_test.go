package graph

import "testing"

func TestLayout(t *testing.T) {
	t.Run("children sit deeper than every parent", func(t *testing.T) {
		s := buildState(t, []Event{
			{Type: EventStepStart, Step: "sup"},
			{Type: EventCheckpoint, Step: "sup", CheckpointID: "c1"},
			{Type: EventStepStart, Step: "A", ParentCheckpointID: "c1"},
			{Type: EventCheckpoint, Step: "A", CheckpointID: "c2", ParentCheckpointID: "c1"},
			{Type: EventStepStart, Step: "B", ParentCheckpointID: "c1"},
			{Type: EventCheckpoint, Step: "B", CheckpointID: "c3", ParentCheckpointID: "c1"},
			{Type: EventStepStart, Step: "sup", ParentCheckpointID: "c2"},
		})
		snap := s.Snapshot()

		placements := Layout(snap)
		layerOf := make(map[string]int, len(placements))
		for _, p := range placements {
			layerOf[p.UID] = p.Layer
		}
		for _, e := range snap.Edges {
			if layerOf[e.ChildUID] <= layerOf[e.ParentUID] {
				t.Errorf("edge %s -> %s not layered: %d vs %d",
					e.ParentUID, e.ChildUID, layerOf[e.ParentUID], layerOf[e.ChildUID])
			}
		}
	})

	t.Run("no two nodes share a cell", func(t *testing.T) {
		s := buildState(t, []Event{
			{Type: EventStepStart, Step: "sup"},
			{Type: EventCheckpoint, Step: "sup", CheckpointID: "c1"},
			{Type: EventStepStart, Step: "A", ParentCheckpointID: "c1"},
			{Type: EventStepStart, Step: "B", ParentCheckpointID: "c1"},
			{Type: EventStepStart, Step: "C", ParentCheckpointID: "c1"},
		})

		seen := make(map[[2]int]string)
		for _, p := range Layout(s.Snapshot()) {
			cell := [2]int{p.Layer, p.Lane}
			if other, dup := seen[cell]; dup {
				t.Errorf("%s and %s share cell %v", other, p.UID, cell)
			}
			seen[cell] = p.UID
		}
	})

	t.Run("deterministic for a given snapshot", func(t *testing.T) {
		s := buildState(t, []Event{
			{Type: EventStepStart, Step: "sup"},
			{Type: EventCheckpoint, Step: "sup", CheckpointID: "c1"},
			{Type: EventStepStart, Step: "A", ParentCheckpointID: "c1"},
			{Type: EventStepStart, Step: "B", ParentCheckpointID: "c1"},
		})
		snap := s.Snapshot()

		first := Layout(snap)
		second := Layout(snap)
		if len(first) != len(second) {
			t.Fatal("placement count changed between runs")
		}
		for i := range first {
			if first[i] != second[i] {
				t.Errorf("placement %d differs: %+v vs %+v", i, first[i], second[i])
			}
		}
	})

	t.Run("empty snapshot yields no placements", func(t *testing.T) {
		if got := Layout(Snapshot{}); len(got) != 0 {
			t.Errorf("expected none, got %v", got)
		}
	})
}
