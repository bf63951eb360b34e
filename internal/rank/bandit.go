// Package rank re-orders an already-scored candidate list: an
// epsilon-greedy exploration pass followed by MMR diversification.
package rank

import (
	"math/rand"
	"sort"
)

// Item is one ranked candidate. Exploration marks slots that were filled
// by the bandit rather than by model score.
type Item struct {
	ArticleID   int64   `json:"article_id"`
	Score       float64 `json:"score"`
	RuleScore   float64 `json:"rule_score"`
	Exploration bool    `json:"exploration"`
}

// EpsilonGreedy walks the candidates in descending model-score order and,
// with probability epsilon per slot, substitutes the best rule-scored item
// from the remaining exploration pool instead of the score leader.
// Exploration stops once fewer than poolSize items remain untaken, since
// there is no pool left to explore into. The rng is injected so callers
// control determinism.
func EpsilonGreedy(items []Item, poolSize int, epsilon float64, rng *rand.Rand) []Item {
	if len(items) == 0 {
		return nil
	}

	remaining := make([]Item, len(items))
	copy(remaining, items)
	sort.SliceStable(remaining, func(i, j int) bool {
		return remaining[i].Score > remaining[j].Score
	})

	if poolSize <= 0 || epsilon <= 0 || rng == nil {
		return remaining
	}

	ranked := make([]Item, 0, len(remaining))
	for len(remaining) > 0 {
		if len(remaining) <= poolSize || rng.Float64() >= epsilon {
			ranked = append(ranked, remaining[0])
			remaining = remaining[1:]
			continue
		}

		// Exploration pick: best rule score within the bounded pool,
		// skipping the greedy leader at index 0.
		pick := 0
		for i := 1; i < poolSize && i < len(remaining); i++ {
			if pick == 0 || remaining[i].RuleScore > remaining[pick].RuleScore {
				pick = i
			}
		}
		if pick == 0 {
			ranked = append(ranked, remaining[0])
			remaining = remaining[1:]
			continue
		}

		chosen := remaining[pick]
		chosen.Exploration = true
		ranked = append(ranked, chosen)
		remaining = append(remaining[:pick], remaining[pick+1:]...)
	}
	return ranked
}
