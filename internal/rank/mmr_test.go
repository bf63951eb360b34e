package rank

import "testing"

func TestMMRAvoidsRedundancy(t *testing.T) {
	t.Parallel()

	// Articles 1 and 2 share a direction; article 3 is orthogonal and only
	// slightly lower scored. With a diversity-heavy lambda the orthogonal
	// article must be picked before the near-duplicate.
	items := []Item{
		{ArticleID: 1, Score: 0.9},
		{ArticleID: 2, Score: 0.89},
		{ArticleID: 3, Score: 0.85},
	}
	vectors := map[int64][]float64{
		1: {1, 0},
		2: {0.999, 0.001},
		3: {0, 1},
	}
	preference := []float64{0.5, 0.5}

	selected := MMR(items, preference, vectors, 0.25, 3)
	if len(selected) != 3 {
		t.Fatalf("expected 3 items, got %d", len(selected))
	}
	if selected[0].ArticleID != 1 {
		t.Fatalf("expected top-scored article first, got %d", selected[0].ArticleID)
	}
	if selected[1].ArticleID != 3 {
		t.Fatalf("expected the diverse article second, got %d", selected[1].ArticleID)
	}
	if selected[2].ArticleID != 2 {
		t.Fatalf("expected the near-duplicate last, got %d", selected[2].ArticleID)
	}
}

func TestMMRSkipsWithoutPreferenceVector(t *testing.T) {
	t.Parallel()

	items := []Item{
		{ArticleID: 1, Score: 0.9},
		{ArticleID: 2, Score: 0.8},
		{ArticleID: 3, Score: 0.7},
	}
	vectors := map[int64][]float64{1: {1, 0}}

	selected := MMR(items, nil, vectors, 0.25, 2)
	if len(selected) != 2 {
		t.Fatalf("expected 2 items, got %d", len(selected))
	}
	if selected[0].ArticleID != 1 || selected[1].ArticleID != 2 {
		t.Fatalf("missing preference vector must preserve input order")
	}
}

func TestMMRSkipsWithoutEmbeddings(t *testing.T) {
	t.Parallel()

	items := []Item{
		{ArticleID: 1, Score: 0.9},
		{ArticleID: 2, Score: 0.8},
	}

	selected := MMR(items, []float64{1, 0}, map[int64][]float64{}, 0.25, 2)
	if len(selected) != 2 || selected[0].ArticleID != 1 || selected[1].ArticleID != 2 {
		t.Fatalf("missing embeddings must preserve input order")
	}
}

func TestMMROutputLengthAndUniqueness(t *testing.T) {
	t.Parallel()

	items := scoredItems(10)
	vectors := make(map[int64][]float64, len(items))
	for i, item := range items {
		vectors[item.ArticleID] = []float64{float64(i), 1}
	}
	preference := []float64{1, 1}

	selected := MMR(items, preference, vectors, 0.25, 4)
	if len(selected) != 4 {
		t.Fatalf("expected 4 items, got %d", len(selected))
	}
	seen := make(map[int64]struct{})
	for _, item := range selected {
		if _, dup := seen[item.ArticleID]; dup {
			t.Fatalf("article %d selected twice", item.ArticleID)
		}
		seen[item.ArticleID] = struct{}{}
	}

	// Asking for more than available returns everything exactly once.
	selected = MMR(items, preference, vectors, 0.25, 100)
	if len(selected) != len(items) {
		t.Fatalf("expected %d items, got %d", len(items), len(selected))
	}
}
