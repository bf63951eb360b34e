package ranker

import (
	"math"
	"testing"
	"time"
)

func TestRocAUCHandChecked(t *testing.T) {
	t.Parallel()

	// Perfect ranking.
	auc, err := RocAUC([]float64{0.9, 0.8, 0.2, 0.1}, []int{1, 1, 0, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if auc != 1 {
		t.Fatalf("perfect ranking should have AUC 1, got %f", auc)
	}

	// Inverted ranking.
	auc, err = RocAUC([]float64{0.1, 0.2, 0.8, 0.9}, []int{1, 1, 0, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if auc != 0 {
		t.Fatalf("inverted ranking should have AUC 0, got %f", auc)
	}

	// One concordant pair, one discordant, two pairs total per positive:
	// scores 0.8(+), 0.6(-), 0.4(+), 0.2(-) -> 3 of 4 pairs concordant.
	auc, err = RocAUC([]float64{0.8, 0.6, 0.4, 0.2}, []int{1, 0, 1, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(auc-0.75) > 1e-12 {
		t.Fatalf("expected AUC 0.75, got %f", auc)
	}

	// All scores tied: half credit everywhere.
	auc, err = RocAUC([]float64{0.5, 0.5, 0.5, 0.5}, []int{1, 1, 0, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(auc-0.5) > 1e-12 {
		t.Fatalf("expected AUC 0.5 for all-tied scores, got %f", auc)
	}
}

func TestRocAUCRequiresBothClasses(t *testing.T) {
	t.Parallel()

	if _, err := RocAUC([]float64{0.1, 0.9}, []int{1, 1}); err == nil {
		t.Fatalf("expected error for single-class labels")
	}
}

func TestBrierScoreHandChecked(t *testing.T) {
	t.Parallel()

	// (1-0.8)^2 + (0-0.3)^2 over 2 = (0.04 + 0.09) / 2.
	score, err := BrierScore([]float64{0.8, 0.3}, []int{1, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(score-0.065) > 1e-12 {
		t.Fatalf("expected Brier 0.065, got %f", score)
	}

	score, err = BrierScore([]float64{1, 0}, []int{1, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score != 0 {
		t.Fatalf("perfect predictions should have Brier 0, got %f", score)
	}
}

func TestKFoldAUCOnSeparableData(t *testing.T) {
	t.Parallel()

	samples := make([][]float64, 0, 40)
	labels := make([]int, 0, 40)
	for i := 0; i < 20; i++ {
		samples = append(samples, []float64{5 + float64(i%5), 1})
		labels = append(labels, 1)
		samples = append(samples, []float64{-5 - float64(i%5), 1})
		labels = append(labels, 0)
	}

	aucs := KFoldAUC(samples, labels, 5)
	if len(aucs) == 0 {
		t.Fatalf("expected at least one usable fold")
	}
	for i, auc := range aucs {
		if auc < 0.9 {
			t.Fatalf("fold %d AUC %f too low for separable data", i, auc)
		}
	}
}

func TestKFoldAUCDegenerateInput(t *testing.T) {
	t.Parallel()

	if got := KFoldAUC([][]float64{{1}}, []int{1}, 5); got != nil {
		t.Fatalf("expected nil for too-small input, got %v", got)
	}
}

func TestTemporalSplitHoldsOutNewest(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	examples := make([]Example, 10)
	for i := range examples {
		examples[i] = Example{ArticleID: int64(i), PublishedAt: base.Add(time.Duration(i) * time.Hour)}
	}

	train, test := temporalSplit(examples, 0.2)
	if len(train) != 8 || len(test) != 2 {
		t.Fatalf("unexpected split sizes: train=%d test=%d", len(train), len(test))
	}
	for _, trainExample := range train {
		for _, testExample := range test {
			if !trainExample.PublishedAt.Before(testExample.PublishedAt) {
				t.Fatalf("test slice must be strictly newer than training slice")
			}
		}
	}
}

func TestTemporalSplitTinyInput(t *testing.T) {
	t.Parallel()

	examples := []Example{{ArticleID: 1}}
	train, test := temporalSplit(examples, 0.2)
	if len(train) != 0 || len(test) != 1 {
		t.Fatalf("single example must land in the test slice: train=%d test=%d", len(train), len(test))
	}
}
