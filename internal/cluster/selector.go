package cluster

import (
	"fmt"

	"intentminer/internal/logging"
)

// Selector picks the best partition of a vector set by sweeping candidate
// group counts and scoring each cut with the mean silhouette coefficient.
type Selector struct {
	KMin int
	KMax int
}

// NewSelector returns a Selector with the given sweep bounds.
func NewSelector(kMin, kMax int) *Selector {
	return &Selector{KMin: kMin, KMax: kMax}
}

// Select partitions the vectors. The sweep runs over K in
// [KMin, min(KMax, n/2)]; when no candidate K exists, or the vectors carry
// no pairwise variation, everything lands in a single degenerate group.
//
// The whole procedure is deterministic: identical vector sets always yield
// identical partitions.
func (s *Selector) Select(vectors [][]float32) (*Partition, error) {
	n := len(vectors)
	if n == 0 {
		return nil, fmt.Errorf("cluster: no vectors to partition")
	}
	if s.KMin < 2 {
		return nil, fmt.Errorf("cluster: k_min must be at least 2, got %d", s.KMin)
	}
	if s.KMax < s.KMin {
		return nil, fmt.Errorf("cluster: k_max %d below k_min %d", s.KMax, s.KMin)
	}

	timer := logging.StartTimer(logging.CategoryCluster, fmt.Sprintf("select over %d vectors", n))

	dist := distanceMatrix(vectors)

	kCap := s.KMax
	if half := n / 2; half < kCap {
		kCap = half
	}
	if kCap < 2 {
		logging.Cluster("degenerate partition: n=%d supports no sweep", n)
		timer.Stop()
		return singleGroup(n), nil
	}

	if !hasVariation(dist) {
		logging.Cluster("degenerate partition: zero pairwise variation across %d vectors", n)
		timer.Stop()
		return singleGroup(n), nil
	}

	merges := buildMergeSequence(dist)

	kLow := s.KMin
	if kLow > kCap {
		// The configured floor exceeds what n supports; sweep what we can
		// rather than refusing the run outright.
		kLow = 2
	}

	var best *Partition
	for k := kLow; k <= kCap; k++ {
		assign := cutAt(n, k, merges)
		score := silhouetteScore(dist, assign, k)
		logging.ClusterDebug("k=%d silhouette=%.4f", k, score)
		// Strictly-greater comparison: ties resolve toward the smaller K
		// visited first.
		if best == nil || score > best.Score {
			best = &Partition{K: k, Assign: assign, Score: score}
		}
	}
	if best == nil {
		timer.Stop()
		return singleGroup(n), nil
	}

	logging.Cluster("selected k=%d silhouette=%.4f (swept k=%d..%d)", best.K, best.Score, kLow, kCap)
	timer.StopWithInfo()
	return best, nil
}

// hasVariation reports whether any pair of vectors is separated at all.
func hasVariation(dist [][]float64) bool {
	const eps = 1e-12
	for i := range dist {
		for j := i + 1; j < len(dist); j++ {
			if dist[i][j] > eps {
				return true
			}
		}
	}
	return false
}

// singleGroup returns the everything-in-one-bucket fallback partition.
func singleGroup(n int) *Partition {
	assign := make([]int, n)
	return &Partition{K: 1, Assign: assign, Score: 0, Degenerate: true}
}
