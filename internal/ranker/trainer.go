package ranker

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"horse.fit/lens/internal/config"
	"horse.fit/lens/internal/db"
	"horse.fit/lens/internal/features"
	"horse.fit/lens/internal/globaltime"
)

const (
	testFraction     = 0.2
	crossValFolds    = 5
	trainingWindow   = 90 * 24 * time.Hour
	minTrainExamples = 20
)

// Hyperparameters is the typed record stored alongside each model row.
type Hyperparameters struct {
	Algorithm        string  `json:"algorithm"`
	LearningRate     float64 `json:"learning_rate"`
	Epochs           int     `json:"epochs"`
	L2               float64 `json:"l2"`
	FeatureCount     int     `json:"feature_count"`
	DwellThresholdMS int64   `json:"dwell_threshold_ms"`
	TestFraction     float64 `json:"test_fraction"`
}

// Metrics is the typed evaluation record stored alongside each model row.
type Metrics struct {
	RocAUC    float64   `json:"roc_auc"`
	Brier     float64   `json:"brier"`
	KFoldAUC  []float64 `json:"kfold_auc"`
	TrainSize int       `json:"train_size"`
	TestSize  int       `json:"test_size"`
	Positives int       `json:"positives"`
	Negatives int       `json:"negatives"`
}

// TrainReport summarizes one training run.
type TrainReport struct {
	ModelID int64
	Version string
	Metrics Metrics
}

type Trainer struct {
	pool        *db.Pool
	extractor   *features.Service
	tunables    config.Tunables
	artifactDir string
	logger      zerolog.Logger
}

func NewTrainer(pool *db.Pool, extractor *features.Service, tunables config.Tunables, artifactDir string, logger zerolog.Logger) *Trainer {
	return &Trainer{
		pool:        pool,
		extractor:   extractor,
		tunables:    tunables,
		artifactDir: artifactDir,
		logger:      logger.With().Str("component", "trainer").Logger(),
	}
}

// Train builds the labeled dataset from recent events, fits a logistic
// model on the temporally-older slice, evaluates on the newest slice and
// records the model as an inactive row. Activation is a separate explicit
// step.
func (t *Trainer) Train(ctx context.Context) (TrainReport, error) {
	var report TrainReport
	now := globaltime.UTC()

	examples, err := buildDataset(ctx, t.pool, t.extractor, t.tunables, now.Add(-trainingWindow), now, t.logger)
	if err != nil {
		return report, err
	}
	if len(examples) < minTrainExamples {
		return report, fmt.Errorf("not enough labeled examples to train: have %d, need %d", len(examples), minTrainExamples)
	}

	trainSet, testSet := temporalSplit(examples, testFraction)
	if len(trainSet) == 0 || len(testSet) == 0 {
		return report, fmt.Errorf("temporal split produced an empty slice: train=%d test=%d", len(trainSet), len(testSet))
	}

	trainSamples, trainLabels := splitFeaturesLabels(trainSet)
	testSamples, testLabels := splitFeaturesLabels(testSet)

	model := NewLogisticModel()
	if err := model.Fit(trainSamples, trainLabels); err != nil {
		return report, fmt.Errorf("fit model: %w", err)
	}

	testScores := make([]float64, len(testSamples))
	for i, sample := range testSamples {
		testScores[i] = model.PredictProba(sample)
	}
	auc, err := RocAUC(testScores, testLabels)
	if err != nil {
		return report, fmt.Errorf("evaluate model: %w", err)
	}
	brier, err := BrierScore(testScores, testLabels)
	if err != nil {
		return report, fmt.Errorf("evaluate model: %w", err)
	}

	allSamples, allLabels := splitFeaturesLabels(examples)
	metrics := Metrics{
		RocAUC:    auc,
		Brier:     brier,
		KFoldAUC:  KFoldAUC(allSamples, allLabels, crossValFolds),
		TrainSize: len(trainSet),
		TestSize:  len(testSet),
	}
	for _, label := range allLabels {
		if label == 1 {
			metrics.Positives++
		} else {
			metrics.Negatives++
		}
	}

	version := uuid.NewString()
	artifactPath := filepath.Join(t.artifactDir, fmt.Sprintf("%s-%s.json", ModelTypeRead, version))
	if err := SaveArtifact(artifactPath, model); err != nil {
		return report, err
	}

	modelID, err := t.insertModelRow(ctx, version, artifactPath, model, metrics, now)
	if err != nil {
		return report, err
	}

	t.logger.Info().
		Int64("model_id", modelID).
		Str("version", version).
		Float64("roc_auc", auc).
		Float64("brier", brier).
		Int("train_size", metrics.TrainSize).
		Int("test_size", metrics.TestSize).
		Msg("model trained")

	report.ModelID = modelID
	report.Version = version
	report.Metrics = metrics
	return report, nil
}

func (t *Trainer) insertModelRow(ctx context.Context, version, artifactPath string, model *LogisticModel, metrics Metrics, now time.Time) (int64, error) {
	hyperparameters := Hyperparameters{
		Algorithm:        "logistic_regression",
		LearningRate:     model.LearningRate,
		Epochs:           model.Epochs,
		L2:               model.L2,
		FeatureCount:     len(model.Weights),
		DwellThresholdMS: t.tunables.DwellThresholdMS,
		TestFraction:     testFraction,
	}
	hyperparametersJSON, err := json.Marshal(hyperparameters)
	if err != nil {
		return 0, fmt.Errorf("marshal hyperparameters: %w", err)
	}
	metricsJSON, err := json.Marshal(metrics)
	if err != nil {
		return 0, fmt.Errorf("marshal metrics: %w", err)
	}

	const q = `
INSERT INTO lens.ml_models (model_type, version, hyperparameters, metrics, artifact_path, is_active, created_at)
VALUES ($1, $2, $3, $4, $5, FALSE, $6)
RETURNING model_id
`
	var modelID int64
	err = t.pool.QueryRow(ctx, q, ModelTypeRead, version, hyperparametersJSON, metricsJSON, artifactPath, now).Scan(&modelID)
	if err != nil {
		return 0, fmt.Errorf("insert model row version=%s: %w", version, err)
	}
	return modelID, nil
}

func splitFeaturesLabels(examples []Example) ([][]float64, []int) {
	samples := make([][]float64, len(examples))
	labels := make([]int, len(examples))
	for i, example := range examples {
		samples[i] = example.Features
		labels[i] = example.Label
	}
	return samples, labels
}
