// Package propose turns a message group into a named intent candidate by
// sampling representative messages and asking a reasoning model for a
// strictly structured proposal.
package propose

// SelectSamples picks up to limit member indices from a group. Groups at or
// under the limit are taken whole; larger groups are sampled with an even
// stride so the picks spread across the group instead of front-loading.
// Deterministic: the same members and limit always select the same indices.
func SelectSamples(members []int, limit int) []int {
	if limit <= 0 || len(members) <= limit {
		out := make([]int, len(members))
		copy(out, members)
		return out
	}

	out := make([]int, 0, limit)
	stride := float64(len(members)) / float64(limit)
	for i := 0; i < limit; i++ {
		out = append(out, members[int(float64(i)*stride)])
	}
	return out
}
