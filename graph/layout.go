package graph

import "sort"

// Placement positions one occurrence in the rendered graph. Layer grows in
// the flow direction (left to right or top to bottom, the renderer's
// choice); Lane separates nodes sharing a layer. No two placements share a
// (Layer, Lane) cell.
type Placement struct {
	UID   string `json:"uid"`
	Layer int    `json:"layer"`
	Lane  int    `json:"lane"`
}

// Layout computes a layered, non-overlapping placement for a snapshot.
//
// Layer assignment is longest-path from the roots: every child sits at least
// one layer deeper than each of its parents, so all edges point in the flow
// direction and the result is planar per layer. Relaxation is bounded by the
// occurrence count, so cyclic edge data (which derivation already guards
// against) cannot loop.
//
// Within a layer, lanes are ordered by occurrence timestamp, then uid, which
// keeps placement deterministic for a given snapshot.
func Layout(snap Snapshot) []Placement {
	layer := make(map[string]int, len(snap.Occurrences))
	order := make(map[string]int, len(snap.Occurrences))
	for i, occ := range snap.Occurrences {
		layer[occ.UID] = 0
		order[occ.UID] = i
	}

	// Longest-path relaxation, bounded by node count.
	for range snap.Occurrences {
		changed := false
		for _, e := range snap.Edges {
			p, pok := layer[e.ParentUID]
			c, cok := layer[e.ChildUID]
			if pok && cok && c < p+1 {
				layer[e.ChildUID] = p + 1
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	placements := make([]Placement, 0, len(snap.Occurrences))
	for _, occ := range snap.Occurrences {
		placements = append(placements, Placement{UID: occ.UID, Layer: layer[occ.UID]})
	}

	sort.Slice(placements, func(i, j int) bool {
		a, b := placements[i], placements[j]
		if a.Layer != b.Layer {
			return a.Layer < b.Layer
		}
		oa := snap.Occurrences[order[a.UID]]
		ob := snap.Occurrences[order[b.UID]]
		if oa.Timestamp != ob.Timestamp {
			return oa.Timestamp < ob.Timestamp
		}
		return a.UID < b.UID
	})

	lane := 0
	for i := range placements {
		if i > 0 && placements[i].Layer != placements[i-1].Layer {
			lane = 0
		}
		placements[i].Lane = lane
		lane++
	}
	return placements
}
