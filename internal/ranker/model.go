// Package ranker owns the read-probability model: training, evaluation,
// the activation registry and the scoring path with its rule-score
// fallback.
package ranker

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// ModelTypeRead is the model family predicting p_read, the probability
// that a user will meaningfully engage with an article.
const ModelTypeRead = "p_read"

// Model is the minimal prediction surface the scorer needs.
type Model interface {
	PredictProba(features []float64) float64
}

// IncrementallyTrainable is implemented by model families that can fold in
// new labeled examples without a full retrain. Families that cannot simply
// do not implement it and incremental updates are declined explicitly.
type IncrementallyTrainable interface {
	PartialFit(features [][]float64, labels []int) error
}

// StandardScaler standardizes features to zero mean and unit variance.
// Zero-variance columns pass through unscaled.
type StandardScaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

func (s *StandardScaler) Fit(samples [][]float64) error {
	if len(samples) == 0 {
		return fmt.Errorf("scaler needs at least one sample")
	}
	width := len(samples[0])
	s.Mean = make([]float64, width)
	s.Std = make([]float64, width)

	for _, sample := range samples {
		if len(sample) != width {
			return fmt.Errorf("inconsistent sample width: %d != %d", len(sample), width)
		}
		for j, value := range sample {
			s.Mean[j] += value
		}
	}
	for j := range s.Mean {
		s.Mean[j] /= float64(len(samples))
	}

	for _, sample := range samples {
		for j, value := range sample {
			diff := value - s.Mean[j]
			s.Std[j] += diff * diff
		}
	}
	for j := range s.Std {
		s.Std[j] = math.Sqrt(s.Std[j] / float64(len(samples)))
		if s.Std[j] == 0 {
			s.Std[j] = 1
		}
	}
	return nil
}

func (s *StandardScaler) Transform(sample []float64) []float64 {
	scaled := make([]float64, len(sample))
	for j, value := range sample {
		if j < len(s.Mean) {
			scaled[j] = (value - s.Mean[j]) / s.Std[j]
		} else {
			scaled[j] = value
		}
	}
	return scaled
}

// LogisticModel is a weighted logistic regression trained by full-batch
// gradient descent. The scaler is part of the artifact so scoring always
// applies the exact transform the model was trained with.
type LogisticModel struct {
	Weights      []float64       `json:"weights"`
	Bias         float64         `json:"bias"`
	Scaler       *StandardScaler `json:"scaler"`
	LearningRate float64         `json:"learning_rate"`
	Epochs       int             `json:"epochs"`
	L2           float64         `json:"l2"`
}

func NewLogisticModel() *LogisticModel {
	return &LogisticModel{
		LearningRate: 0.1,
		Epochs:       200,
		L2:           1e-4,
	}
}

// Fit trains on the full batch with balanced class weights, so the
// minority class is not drowned out by the impression-heavy majority.
func (m *LogisticModel) Fit(samples [][]float64, labels []int) error {
	if len(samples) == 0 || len(samples) != len(labels) {
		return fmt.Errorf("invalid training set: %d samples, %d labels", len(samples), len(labels))
	}

	m.Scaler = &StandardScaler{}
	if err := m.Scaler.Fit(samples); err != nil {
		return err
	}
	scaled := make([][]float64, len(samples))
	for i, sample := range samples {
		scaled[i] = m.Scaler.Transform(sample)
	}

	width := len(scaled[0])
	m.Weights = make([]float64, width)
	m.Bias = 0

	positiveWeight, negativeWeight, err := balancedClassWeights(labels)
	if err != nil {
		return err
	}

	n := float64(len(scaled))
	gradient := make([]float64, width)
	for epoch := 0; epoch < m.Epochs; epoch++ {
		for j := range gradient {
			gradient[j] = 0
		}
		var biasGradient float64

		for i, sample := range scaled {
			residual := sigmoid(m.decision(sample)) - float64(labels[i])
			weight := negativeWeight
			if labels[i] == 1 {
				weight = positiveWeight
			}
			residual *= weight
			for j, value := range sample {
				gradient[j] += residual * value
			}
			biasGradient += residual
		}

		for j := range m.Weights {
			m.Weights[j] -= m.LearningRate * (gradient[j]/n + m.L2*m.Weights[j])
		}
		m.Bias -= m.LearningRate * biasGradient / n
	}
	return nil
}

// PartialFit applies one stochastic gradient pass over the new examples,
// reusing the scaler fitted at training time.
func (m *LogisticModel) PartialFit(samples [][]float64, labels []int) error {
	if len(samples) == 0 || len(samples) != len(labels) {
		return fmt.Errorf("invalid update set: %d samples, %d labels", len(samples), len(labels))
	}
	if m.Scaler == nil || len(m.Weights) == 0 {
		return fmt.Errorf("model has not been trained")
	}

	for i, sample := range samples {
		if len(sample) != len(m.Weights) {
			return fmt.Errorf("sample %d has %d features, model expects %d", i, len(sample), len(m.Weights))
		}
		scaled := m.Scaler.Transform(sample)
		residual := sigmoid(m.decision(scaled)) - float64(labels[i])
		for j, value := range scaled {
			m.Weights[j] -= m.LearningRate * (residual*value + m.L2*m.Weights[j])
		}
		m.Bias -= m.LearningRate * residual
	}
	return nil
}

func (m *LogisticModel) PredictProba(features []float64) float64 {
	scaled := features
	if m.Scaler != nil {
		scaled = m.Scaler.Transform(features)
	}
	return sigmoid(m.decision(scaled))
}

func (m *LogisticModel) decision(scaled []float64) float64 {
	z := m.Bias
	for j, weight := range m.Weights {
		if j < len(scaled) {
			z += weight * scaled[j]
		}
	}
	return z
}

func balancedClassWeights(labels []int) (positive, negative float64, err error) {
	var positives, negatives int
	for _, label := range labels {
		switch label {
		case 1:
			positives++
		case 0:
			negatives++
		default:
			return 0, 0, fmt.Errorf("label must be 0 or 1, got %d", label)
		}
	}
	if positives == 0 || negatives == 0 {
		return 0, 0, fmt.Errorf("training set needs both classes: positives=%d negatives=%d", positives, negatives)
	}
	total := float64(positives + negatives)
	return total / (2 * float64(positives)), total / (2 * float64(negatives)), nil
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

// SaveArtifact writes the model as JSON, creating the directory if needed.
func SaveArtifact(path string, model *LogisticModel) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}
	payload, err := json.MarshalIndent(model, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal model artifact: %w", err)
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("write model artifact %s: %w", path, err)
	}
	return nil
}

func LoadArtifact(path string) (*LogisticModel, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model artifact %s: %w", path, err)
	}
	var model LogisticModel
	if err := json.Unmarshal(payload, &model); err != nil {
		return nil, fmt.Errorf("decode model artifact %s: %w", path, err)
	}
	if len(model.Weights) == 0 {
		return nil, fmt.Errorf("model artifact %s has no weights", path)
	}
	return &model, nil
}
