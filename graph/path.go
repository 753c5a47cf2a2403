package graph

// TracePath walks backward from the occurrence with the given uid to the
// root of its branch and returns the set of visited uids, including the
// focal one. The rendering layer uses the set to highlight the ancestor
// path of a focused node.
//
// The walk follows ParentCheckpointID through the checkpoint index, so at a
// shared checkpoint every registered ancestor joins the path. A revisited
// uid is a stop condition, which bounds the walk by the occurrence count
// even on malformed or cyclic checkpoint data.
//
// An unknown uid yields an empty set.
func (s *State) TracePath(uid string) map[string]bool {
	byUID := make(map[string]*Occurrence, len(s.occurrences))
	for _, occ := range s.occurrences {
		byUID[occ.UID] = occ
	}
	idx := s.checkpointIndex()

	visited := make(map[string]bool)
	start, ok := byUID[uid]
	if !ok {
		return visited
	}

	frontier := []*Occurrence{start}
	for len(frontier) > 0 {
		occ := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]
		if visited[occ.UID] {
			continue
		}
		visited[occ.UID] = true

		if occ.ParentCheckpointID == "" {
			continue
		}
		for _, parent := range idx[occ.ParentCheckpointID] {
			if !visited[parent.UID] {
				frontier = append(frontier, parent)
			}
		}
	}
	return visited
}
