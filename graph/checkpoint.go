package graph

import "sort"

// Checkpoint linking: edges are derived from checkpoint ancestry, never
// stored. Every call recomputes them from the current occurrence arena, so
// they are always consistent with the latest occurrence data and there is no
// edge-invalidation state to get wrong.

// Edge is a derived parent/child connection between two occurrences.
//
// An edge (parent, child) exists iff the child's ParentCheckpointID resolves
// to an occurrence set containing the parent, after lane selection. Edges are
// recomputed on demand; see (*State).Edges.
type Edge struct {
	// ParentUID and ChildUID identify the connected occurrences.
	ParentUID string `json:"parent_uid"`
	ChildUID  string `json:"child_uid"`

	// LatestFork marks edges whose child falls inside the trailing fork
	// window. A presentation hint only: it lets the rendering layer call out
	// the branch most recently created by time travel. It is heuristic and
	// carries no structural guarantee.
	LatestFork bool `json:"latest_fork,omitempty"`
}

// checkpointIndex maps each reported checkpoint id to the occurrences that
// produced it. Plural values occur when a parallel fan-out round registers
// several occurrences under one checkpoint.
func (s *State) checkpointIndex() map[string][]*Occurrence {
	idx := make(map[string][]*Occurrence)
	for _, occ := range s.occurrences {
		if occ.CheckpointID != "" {
			idx[occ.CheckpointID] = append(idx[occ.CheckpointID], occ)
		}
	}
	return idx
}

// Edges derives the current edge set from the occurrence arena.
//
// For each occurrence with a parent checkpoint P:
//
//  1. The candidates are the occurrences registered under P.
//  2. Lane rule: if any candidate shares the child's step name, only those
//     candidates connect. This keeps N parallel lanes of the same step from
//     collapsing into a fully connected mesh at a shared checkpoint.
//  3. Otherwise every candidate connects: a genuine fan-out or fan-in point.
//
// A parent checkpoint that resolves to no occurrence is a consistency
// anomaly; the edge is omitted and the child simply renders as a root.
// Self-edges (an occurrence listed under its own parent checkpoint) are
// skipped so malformed data cannot produce loops.
func (s *State) Edges() []Edge {
	idx := s.checkpointIndex()
	cutoff := s.forkCutoff()

	var edges []Edge
	for _, child := range s.occurrences {
		if child.ParentCheckpointID == "" {
			continue
		}
		candidates := idx[child.ParentCheckpointID]
		if len(candidates) == 0 {
			continue
		}

		var lane []*Occurrence
		for _, cand := range candidates {
			if cand.StepID == child.StepID && cand.UID != child.UID {
				lane = append(lane, cand)
			}
		}
		if len(lane) == 0 {
			lane = candidates
		}

		for _, parent := range lane {
			if parent.UID == child.UID {
				continue
			}
			edges = append(edges, Edge{
				ParentUID:  parent.UID,
				ChildUID:   child.UID,
				LatestFork: cutoff > 0 && child.Timestamp >= cutoff,
			})
		}
	}
	return edges
}

// forkCutoff returns the timestamp of the oldest occurrence inside the
// trailing fork window, or 0 when the window covers everything (in which
// case no edge is singled out as a fork).
func (s *State) forkCutoff() int64 {
	if s.forkWindow <= 0 || len(s.occurrences) <= s.forkWindow {
		return 0
	}
	stamps := make([]int64, len(s.occurrences))
	for i, occ := range s.occurrences {
		stamps[i] = occ.Timestamp
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i] > stamps[j] })
	return stamps[s.forkWindow-1]
}
