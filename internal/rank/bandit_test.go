package rank

import (
	"math/rand"
	"testing"
)

func scoredItems(n int) []Item {
	items := make([]Item, n)
	for i := range items {
		items[i] = Item{
			ArticleID: int64(i + 1),
			Score:     1 - float64(i)*0.01,
			RuleScore: float64(i), // inversely correlated with model score
		}
	}
	return items
}

func TestEpsilonGreedyDeterministicWithSeededRNG(t *testing.T) {
	t.Parallel()

	items := scoredItems(50)
	first := EpsilonGreedy(items, 20, 0.5, rand.New(rand.NewSource(7)))
	second := EpsilonGreedy(items, 20, 0.5, rand.New(rand.NewSource(7)))

	if len(first) != len(second) {
		t.Fatalf("runs differ in length: %d != %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ArticleID != second[i].ArticleID || first[i].Exploration != second[i].Exploration {
			t.Fatalf("runs diverge at position %d", i)
		}
	}
}

func TestEpsilonGreedyNoDuplicatesAndComplete(t *testing.T) {
	t.Parallel()

	items := scoredItems(50)
	ranked := EpsilonGreedy(items, 20, 0.9, rand.New(rand.NewSource(3)))
	if len(ranked) != len(items) {
		t.Fatalf("expected %d items, got %d", len(items), len(ranked))
	}

	seen := make(map[int64]struct{}, len(ranked))
	for _, item := range ranked {
		if _, dup := seen[item.ArticleID]; dup {
			t.Fatalf("article %d appears twice", item.ArticleID)
		}
		seen[item.ArticleID] = struct{}{}
	}
}

func TestEpsilonGreedyZeroEpsilonIsPureGreedy(t *testing.T) {
	t.Parallel()

	items := scoredItems(10)
	ranked := EpsilonGreedy(items, 5, 0, rand.New(rand.NewSource(1)))
	for i, item := range ranked {
		if item.ArticleID != int64(i+1) {
			t.Fatalf("expected pure descending-score order, position %d has article %d", i, item.ArticleID)
		}
		if item.Exploration {
			t.Fatalf("no slot should be tagged exploration with epsilon 0")
		}
	}
}

func TestEpsilonGreedyTailSlotsNeverExplore(t *testing.T) {
	t.Parallel()

	poolSize := 20
	items := scoredItems(30)
	ranked := EpsilonGreedy(items, poolSize, 1, rand.New(rand.NewSource(11)))

	for i := len(ranked) - poolSize; i < len(ranked); i++ {
		if ranked[i].Exploration {
			t.Fatalf("slot %d is within the final %d and must not be an exploration pick", i, poolSize)
		}
	}

	var explored bool
	for _, item := range ranked[:len(ranked)-poolSize] {
		if item.Exploration {
			explored = true
			break
		}
	}
	if !explored {
		t.Fatalf("epsilon 1 should explore in the head of the list")
	}
}

func TestEpsilonGreedyExplorationPicksBestRuleScore(t *testing.T) {
	t.Parallel()

	items := scoredItems(30)
	ranked := EpsilonGreedy(items, 20, 1, rand.New(rand.NewSource(5)))

	// With epsilon 1 and rule scores rising toward the list tail, the first
	// slot must be the best rule-scored item inside the initial pool.
	if !ranked[0].Exploration {
		t.Fatalf("first slot should be an exploration pick at epsilon 1")
	}
	if ranked[0].ArticleID != 20 {
		t.Fatalf("expected the pool's best rule-scored article (20), got %d", ranked[0].ArticleID)
	}
}

func TestEpsilonGreedyEmptyInput(t *testing.T) {
	t.Parallel()

	if got := EpsilonGreedy(nil, 20, 0.1, rand.New(rand.NewSource(1))); got != nil {
		t.Fatalf("expected nil for empty input, got %v", got)
	}
}
