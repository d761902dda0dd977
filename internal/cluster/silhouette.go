package cluster

// silhouetteScore computes the mean silhouette coefficient of an assignment
// over the precomputed distance matrix. Points in singleton groups get a
// silhouette of zero, matching the standard definition.
//
// Returns the mean over all points; higher is better, range [-1, 1].
func silhouetteScore(dist [][]float64, assign []int, k int) float64 {
	n := len(assign)
	if n == 0 || k < 2 {
		return 0
	}

	sizes := make([]int, k)
	for _, g := range assign {
		sizes[g]++
	}

	total := 0.0
	sums := make([]float64, k)
	for i := 0; i < n; i++ {
		gi := assign[i]
		if sizes[gi] <= 1 {
			continue // silhouette of a singleton is defined as 0
		}

		for g := range sums {
			sums[g] = 0
		}
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			sums[assign[j]] += dist[i][j]
		}

		a := sums[gi] / float64(sizes[gi]-1)

		b := -1.0
		for g := 0; g < k; g++ {
			if g == gi || sizes[g] == 0 {
				continue
			}
			mean := sums[g] / float64(sizes[g])
			if b < 0 || mean < b {
				b = mean
			}
		}
		if b < 0 {
			continue
		}

		max := a
		if b > max {
			max = b
		}
		if max > 0 {
			total += (b - a) / max
		}
	}

	return total / float64(n)
}
