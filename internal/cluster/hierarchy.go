package cluster

import (
	"math"

	"intentminer/internal/embedding"
)

// distanceMatrix computes the symmetric pairwise cosine-distance matrix.
// Computed once per run and reused by both the merge loop and every
// silhouette evaluation.
func distanceMatrix(vectors [][]float32) [][]float64 {
	n := len(vectors)
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := embedding.CosineDistance(vectors[i], vectors[j])
			dist[i][j] = d
			dist[j][i] = d
		}
	}
	return dist
}

// merge records one agglomeration step: the two active cluster ids merged
// and the average-linkage distance between them at merge time.
type merge struct {
	a, b int
	dist float64
}

// buildMergeSequence runs average-linkage agglomerative clustering to a
// single cluster and returns the full merge sequence. Cutting the sequence
// after n-K merges yields the K-group partition, so one pass serves every
// candidate K.
//
// Tie-break: among equidistant pairs the one with the smallest first id,
// then smallest second id, merges first. This makes the whole dendrogram
// (and therefore every downstream partition) deterministic.
func buildMergeSequence(dist [][]float64) []merge {
	n := len(dist)
	if n < 2 {
		return nil
	}

	// Working cluster state: member lists and active flags. Cluster ids are
	// point indices initially; a merge keeps the lower id.
	members := make([][]int, n)
	active := make([]bool, n)
	for i := 0; i < n; i++ {
		members[i] = []int{i}
		active[i] = true
	}

	// Average-linkage distance between active clusters, updated per merge.
	work := make([][]float64, n)
	for i := range work {
		work[i] = make([]float64, n)
		copy(work[i], dist[i])
	}

	merges := make([]merge, 0, n-1)

	for remaining := n; remaining > 1; remaining-- {
		bestI, bestJ := -1, -1
		bestDist := math.Inf(1)

		for i := 0; i < n; i++ {
			if !active[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if !active[j] {
					continue
				}
				if work[i][j] < bestDist {
					bestDist = work[i][j]
					bestI, bestJ = i, j
				}
			}
		}

		if bestI == -1 {
			break
		}

		sizeI := float64(len(members[bestI]))
		sizeJ := float64(len(members[bestJ]))

		// Lance-Williams update for average linkage: the distance from the
		// merged cluster to any other is the size-weighted mean of the two
		// parents' distances.
		for k := 0; k < n; k++ {
			if !active[k] || k == bestI || k == bestJ {
				continue
			}
			work[bestI][k] = (sizeI*work[bestI][k] + sizeJ*work[bestJ][k]) / (sizeI + sizeJ)
			work[k][bestI] = work[bestI][k]
		}

		members[bestI] = append(members[bestI], members[bestJ]...)
		active[bestJ] = false

		merges = append(merges, merge{a: bestI, b: bestJ, dist: bestDist})
	}

	return merges
}

// cutAt replays the first n-K merges and returns the relabeled assignment
// for exactly K groups.
func cutAt(n, k int, merges []merge) []int {
	// Union-find over point indices; merge i absorbs j's root.
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}

	steps := n - k
	for s := 0; s < steps && s < len(merges); s++ {
		m := merges[s]
		parent[find(m.b)] = find(m.a)
	}

	assign := make([]int, n)
	for i := 0; i < n; i++ {
		assign[i] = find(i)
	}
	relabeled, _ := relabel(assign)
	return relabeled
}
