package ranker

import (
	"fmt"
	"sort"
)

// RocAUC computes the area under the ROC curve via the rank statistic,
// with the standard half-credit for tied scores.
func RocAUC(scores []float64, labels []int) (float64, error) {
	if len(scores) != len(labels) || len(scores) == 0 {
		return 0, fmt.Errorf("invalid evaluation set: %d scores, %d labels", len(scores), len(labels))
	}

	type scored struct {
		score float64
		label int
	}
	items := make([]scored, len(scores))
	var positives, negatives int
	for i := range scores {
		items[i] = scored{score: scores[i], label: labels[i]}
		if labels[i] == 1 {
			positives++
		} else {
			negatives++
		}
	}
	if positives == 0 || negatives == 0 {
		return 0, fmt.Errorf("AUC needs both classes: positives=%d negatives=%d", positives, negatives)
	}

	sort.Slice(items, func(i, j int) bool { return items[i].score < items[j].score })

	// Sum the positives' average ranks, averaging within tie groups.
	var rankSum float64
	i := 0
	for i < len(items) {
		j := i
		for j < len(items) && items[j].score == items[i].score {
			j++
		}
		avgRank := float64(i+j+1) / 2 // ranks are 1-based
		for k := i; k < j; k++ {
			if items[k].label == 1 {
				rankSum += avgRank
			}
		}
		i = j
	}

	nPos := float64(positives)
	nNeg := float64(negatives)
	return (rankSum - nPos*(nPos+1)/2) / (nPos * nNeg), nil
}

// BrierScore is the mean squared error between predicted probabilities and
// outcomes; lower is better, 0.25 is the uninformed baseline.
func BrierScore(scores []float64, labels []int) (float64, error) {
	if len(scores) != len(labels) || len(scores) == 0 {
		return 0, fmt.Errorf("invalid evaluation set: %d scores, %d labels", len(scores), len(labels))
	}
	var sum float64
	for i, score := range scores {
		diff := score - float64(labels[i])
		sum += diff * diff
	}
	return sum / float64(len(scores)), nil
}

// KFoldAUC retrains the model family on k folds and reports the held-out
// AUC of each, as a stability signal alongside the headline metrics. Folds
// where a class is missing or training fails are skipped.
func KFoldAUC(samples [][]float64, labels []int, k int) []float64 {
	if k < 2 || len(samples) < k {
		return nil
	}

	foldSize := len(samples) / k
	aucs := make([]float64, 0, k)
	for fold := 0; fold < k; fold++ {
		start := fold * foldSize
		end := start + foldSize
		if fold == k-1 {
			end = len(samples)
		}

		trainSamples := make([][]float64, 0, len(samples)-(end-start))
		trainLabels := make([]int, 0, len(samples)-(end-start))
		for i := range samples {
			if i >= start && i < end {
				continue
			}
			trainSamples = append(trainSamples, samples[i])
			trainLabels = append(trainLabels, labels[i])
		}

		model := NewLogisticModel()
		if err := model.Fit(trainSamples, trainLabels); err != nil {
			continue
		}

		holdoutScores := make([]float64, 0, end-start)
		holdoutLabels := make([]int, 0, end-start)
		for i := start; i < end; i++ {
			holdoutScores = append(holdoutScores, model.PredictProba(samples[i]))
			holdoutLabels = append(holdoutLabels, labels[i])
		}
		auc, err := RocAUC(holdoutScores, holdoutLabels)
		if err != nil {
			continue
		}
		aucs = append(aucs, auc)
	}
	return aucs
}
