// Package milvus wraps the official Milvus Go SDK with the operations the smoke
// sequence needs.
// This file contains recall calculation for search quality checks.
package milvus

// Recall computes the mean recall@K over queries: for each query with a
// non-empty ground truth, the fraction of its true IDs found among its hits.
// hits[i] are the results of query i, truth[i] its relevant IDs.
func Recall(hits [][]SearchResult, truth [][]int64) float64 {
	total := 0.0
	valid := 0

	for q := 0; q < len(hits) && q < len(truth); q++ {
		if len(truth[q]) == 0 {
			continue
		}

		truthSet := make(map[int64]bool, len(truth[q]))
		for _, id := range truth[q] {
			truthSet[id] = true
		}

		retrieved := 0
		for _, hit := range hits[q] {
			if truthSet[hit.ID] {
				retrieved++
				// count each relevant ID once
				delete(truthSet, hit.ID)
			}
		}

		total += float64(retrieved) / float64(len(truth[q]))
		valid++
	}

	if valid == 0 {
		return 0
	}
	return total / float64(valid)
}
