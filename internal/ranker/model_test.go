package ranker

import (
	"math"
	"path/filepath"
	"testing"
)

func TestStandardScaler(t *testing.T) {
	t.Parallel()

	scaler := &StandardScaler{}
	samples := [][]float64{
		{1, 10, 5},
		{3, 10, 7},
	}
	if err := scaler.Fit(samples); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if scaler.Mean[0] != 2 || scaler.Mean[1] != 10 || scaler.Mean[2] != 6 {
		t.Fatalf("unexpected means: %v", scaler.Mean)
	}
	if scaler.Std[1] != 1 {
		t.Fatalf("zero-variance column must fall back to std 1, got %f", scaler.Std[1])
	}

	scaled := scaler.Transform([]float64{3, 10, 5})
	if scaled[0] != 1 {
		t.Fatalf("expected (3-2)/1 = 1, got %f", scaled[0])
	}
	if scaled[1] != 0 {
		t.Fatalf("constant column must scale to 0, got %f", scaled[1])
	}
	if scaled[2] != -1 {
		t.Fatalf("expected (5-6)/1 = -1, got %f", scaled[2])
	}
}

func TestStandardScalerRejectsEmptyAndRagged(t *testing.T) {
	t.Parallel()

	scaler := &StandardScaler{}
	if err := scaler.Fit(nil); err == nil {
		t.Fatalf("expected error on empty fit")
	}
	if err := scaler.Fit([][]float64{{1, 2}, {1}}); err == nil {
		t.Fatalf("expected error on ragged samples")
	}
}

func separableSet() ([][]float64, []int) {
	samples := [][]float64{
		{5, 1}, {6, 0}, {5.5, 2}, {7, 1}, {6.5, 0.5}, {5.2, 1.5},
		{-5, 1}, {-6, 0}, {-5.5, 2}, {-7, 1}, {-6.5, 0.5}, {-5.2, 1.5},
	}
	labels := []int{1, 1, 1, 1, 1, 1, 0, 0, 0, 0, 0, 0}
	return samples, labels
}

func TestLogisticModelSeparatesTrivialSet(t *testing.T) {
	t.Parallel()

	samples, labels := separableSet()
	model := NewLogisticModel()
	if err := model.Fit(samples, labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i, sample := range samples {
		proba := model.PredictProba(sample)
		if labels[i] == 1 && proba <= 0.5 {
			t.Fatalf("positive sample %d scored %f", i, proba)
		}
		if labels[i] == 0 && proba >= 0.5 {
			t.Fatalf("negative sample %d scored %f", i, proba)
		}
	}
}

func TestLogisticModelRejectsSingleClass(t *testing.T) {
	t.Parallel()

	model := NewLogisticModel()
	err := model.Fit([][]float64{{1}, {2}}, []int{1, 1})
	if err == nil {
		t.Fatalf("expected error for single-class training set")
	}
}

func TestPartialFitMovesPredictionsTowardNewLabels(t *testing.T) {
	t.Parallel()

	samples, labels := separableSet()
	model := NewLogisticModel()
	if err := model.Fit(samples, labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The trained model calls this region negative; feed positive labels
	// for it and the prediction must move up.
	fresh := [][]float64{{-5.8, 1}, {-6.2, 0.8}}
	before := model.PredictProba(fresh[0])
	if err := model.PartialFit(fresh, []int{1, 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	after := model.PredictProba(fresh[0])
	if after <= before {
		t.Fatalf("partial fit did not move prediction toward new labels: before=%f after=%f", before, after)
	}
}

func TestPartialFitRequiresTrainedModel(t *testing.T) {
	t.Parallel()

	model := NewLogisticModel()
	if err := model.PartialFit([][]float64{{1}}, []int{1}); err == nil {
		t.Fatalf("expected error for untrained model")
	}
}

func TestArtifactRoundTrip(t *testing.T) {
	t.Parallel()

	samples, labels := separableSet()
	model := NewLogisticModel()
	if err := model.Fit(samples, labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	path := filepath.Join(t.TempDir(), "artifacts", "p_read-test.json")
	if err := SaveArtifact(path, model); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loaded, err := LoadArtifact(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, sample := range samples {
		if math.Abs(loaded.PredictProba(sample)-model.PredictProba(sample)) > 1e-12 {
			t.Fatalf("loaded model predicts differently")
		}
	}
}

func TestLoadArtifactRejectsMissingWeights(t *testing.T) {
	t.Parallel()

	if _, err := LoadArtifact(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatalf("expected error for missing artifact")
	}
}

func TestFallbackScore(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   float64
		want float64
	}{
		{-40, 0},
		{0, 0},
		{50, 0.5},
		{100, 1},
		{250, 1},
	}
	for _, tc := range cases {
		if got := FallbackScore(tc.in); got != tc.want {
			t.Fatalf("FallbackScore(%f) = %f, want %f", tc.in, got, tc.want)
		}
	}
}
