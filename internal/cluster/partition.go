// Package cluster groups message vectors by semantic similarity and selects
// the group count automatically. The sweep builds the agglomerative merge
// sequence once, cuts it at every candidate K, and scores each cut with a
// silhouette-style metric over cosine distances.
package cluster

import "sort"

// Partition is one complete clustering of the vector set: a group count K,
// a per-message group assignment, and the quality score of the cut.
// Every message index maps to exactly one group id in [0, K); group ids are
// contiguous starting at 0.
type Partition struct {
	// K is the number of groups.
	K int

	// Assign maps message index -> group id.
	Assign []int

	// Score is the silhouette-style quality score of this cut.
	Score float64

	// Degenerate marks the single-group fallback used for inputs too small
	// or too uniform to cluster. Downstream treats it as low confidence.
	Degenerate bool
}

// Group is a view over a Partition: one group id with its ordered member
// message indices. Derived, never stored independently.
type Group struct {
	ID      int
	Members []int
}

// Size returns the number of members.
func (g Group) Size() int { return len(g.Members) }

// Groups derives the group views from a partition, ordered by group id.
// Members within each group keep ascending source order.
func (p Partition) Groups() []Group {
	members := make([][]int, p.K)
	for idx, gid := range p.Assign {
		members[gid] = append(members[gid], idx)
	}

	groups := make([]Group, p.K)
	for gid := 0; gid < p.K; gid++ {
		sort.Ints(members[gid])
		groups[gid] = Group{ID: gid, Members: members[gid]}
	}
	return groups
}

// relabel rewrites an assignment so group ids are contiguous from 0,
// numbered by each group's smallest member index. This keeps the labeling
// stable across runs regardless of merge bookkeeping.
func relabel(assign []int) ([]int, int) {
	firstSeen := make(map[int]int) // old id -> smallest member index
	for idx, id := range assign {
		if _, ok := firstSeen[id]; !ok {
			firstSeen[id] = idx
		}
	}

	oldIDs := make([]int, 0, len(firstSeen))
	for id := range firstSeen {
		oldIDs = append(oldIDs, id)
	}
	sort.Slice(oldIDs, func(i, j int) bool {
		return firstSeen[oldIDs[i]] < firstSeen[oldIDs[j]]
	})

	remap := make(map[int]int, len(oldIDs))
	for newID, oldID := range oldIDs {
		remap[oldID] = newID
	}

	out := make([]int, len(assign))
	for idx, id := range assign {
		out[idx] = remap[id]
	}
	return out, len(oldIDs)
}
