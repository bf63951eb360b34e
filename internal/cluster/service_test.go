package cluster

import (
	"testing"

	"horse.fit/lens/internal/simhash"
)

func TestClusterState(t *testing.T) {
	t.Parallel()

	if _, ok := Unclustered().Story(); ok {
		t.Fatalf("expected unclustered state to report no story")
	}

	storyID, ok := Clustered(42).Story()
	if !ok || storyID != 42 {
		t.Fatalf("unexpected clustered state: id=%d ok=%t", storyID, ok)
	}
}

func TestPickBestSimhashMatch_HighestWins(t *testing.T) {
	t.Parallel()

	base, _ := simhash.Fingerprint("federal reserve announces surprise interest rate cut today")
	nearOne := base ^ 0b111     // distance 3 -> similarity 1 - 3/32
	nearTwo := base ^ 0b1       // distance 1 -> similarity 1 - 1/32
	far := base ^ 0xFFFF        // distance 16 -> similarity 0.5

	candidates := []simhashCandidate{
		{ArticleID: 1, Simhash: int64(nearOne), StoryID: 10},
		{ArticleID: 2, Simhash: int64(nearTwo), StoryID: 20},
		{ArticleID: 3, Simhash: int64(far), StoryID: 30},
	}

	storyID, similarity, found := pickBestSimhashMatch(base, candidates, 0.85)
	if !found {
		t.Fatalf("expected a match above threshold")
	}
	if storyID != 20 {
		t.Fatalf("expected the most similar candidate's story, got %d", storyID)
	}
	if similarity <= 0.85 {
		t.Fatalf("unexpected best similarity: %f", similarity)
	}
}

func TestPickBestSimhashMatch_TiesKeepScanOrder(t *testing.T) {
	t.Parallel()

	base := uint32(0b1010)
	tied := base ^ 0b1 // same distance for both candidates

	candidates := []simhashCandidate{
		{ArticleID: 1, Simhash: int64(tied), StoryID: 10},
		{ArticleID: 2, Simhash: int64(tied), StoryID: 20},
	}

	storyID, _, found := pickBestSimhashMatch(base, candidates, 0.85)
	if !found {
		t.Fatalf("expected a match")
	}
	if storyID != 10 {
		t.Fatalf("expected first-encountered candidate on tie, got story %d", storyID)
	}
}

func TestPickBestSimhashMatch_BelowThreshold(t *testing.T) {
	t.Parallel()

	base := uint32(0)
	candidates := []simhashCandidate{
		{ArticleID: 1, Simhash: int64(uint32(0x7FFFFFFF)), StoryID: 10},
	}

	if _, _, found := pickBestSimhashMatch(base, candidates, 0.85); found {
		t.Fatalf("did not expect a match below the similarity threshold")
	}
}
