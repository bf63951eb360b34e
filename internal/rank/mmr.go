package rank

import "math"

// MMR greedily selects count items maximizing
// lambda*relevance + (1-lambda)*diversity, where diversity is the minimum
// cosine distance from the candidate's embedding to the user preference
// vector (first pick) or to every already-selected embedding. When the
// preference vector or all embeddings are missing, diversification is
// skipped and the input order is returned truncated to count; that is the
// documented degradation, not an error.
func MMR(items []Item, preference []float64, vectors map[int64][]float64, lambda float64, count int) []Item {
	if count <= 0 || len(items) == 0 {
		return nil
	}
	if count > len(items) {
		count = len(items)
	}
	if len(preference) == 0 || len(vectors) == 0 {
		return items[:count]
	}

	selected := make([]Item, 0, count)
	selectedVectors := make([][]float64, 0, count)
	remaining := make([]Item, len(items))
	copy(remaining, items)

	for len(selected) < count && len(remaining) > 0 {
		bestIdx := -1
		bestObjective := math.Inf(-1)
		for i, candidate := range remaining {
			diversity := candidateDiversity(vectors[candidate.ArticleID], preference, selectedVectors)
			objective := lambda*candidate.Score + (1-lambda)*diversity
			if objective > bestObjective {
				bestObjective = objective
				bestIdx = i
			}
		}

		chosen := remaining[bestIdx]
		selected = append(selected, chosen)
		if vector, ok := vectors[chosen.ArticleID]; ok {
			selectedVectors = append(selectedVectors, vector)
		}
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return selected
}

// candidateDiversity is the minimum cosine distance from the candidate to
// the comparison set: the preference vector before anything is selected,
// the already-selected embeddings afterwards. Candidates without an
// embedding contribute zero diversity and compete on relevance alone.
func candidateDiversity(candidate, preference []float64, selectedVectors [][]float64) float64 {
	if len(candidate) == 0 {
		return 0
	}
	if len(selectedVectors) == 0 {
		return cosineDistance(candidate, preference)
	}

	minDistance := math.Inf(1)
	for _, vector := range selectedVectors {
		if distance := cosineDistance(candidate, vector); distance < minDistance {
			minDistance = distance
		}
	}
	return minDistance
}

func cosineDistance(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return 1 - dotProduct/(math.Sqrt(normA)*math.Sqrt(normB))
}
