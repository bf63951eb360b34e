package features

import (
	"hash/fnv"
	"math"
	"strings"
	"time"
	"unicode"
)

// FeatureCount is the fixed length of every extracted vector. The model
// artifact records the count it was trained with, so changing the layout
// requires a retrain.
const FeatureCount = 47

const (
	sourceBuckets     = 32
	longTitleRunes    = 80
	recencyDecayHours = 48.0
	featureIdxSource  = 5
	featureIdxAge     = featureIdxSource + sourceBuckets
	featureIdxScore   = featureIdxAge + 4
	featureIdxHistory = featureIdxScore + 1
)

// ArticleSnapshot is the per-article input of feature extraction. A nil
// Embedding zeroes the similarity features instead of failing.
type ArticleSnapshot struct {
	ArticleID   int64
	Title       string
	Source      string
	PublishedAt time.Time
	ScoreTotal  float64
	HasImage    bool
	Embedding   []float64
}

// HistoryAggregates summarizes one user's recent interactions. The zero
// value is the correct representation of "no history".
type HistoryAggregates struct {
	Opens                int
	MeanPositiveDwellSec float64
	Stars                int
	ExternalClicks       int
	Dismisses            int
}

// UserContext carries the per-user inputs shared across a batch of
// extractions. Preference may be nil for users with no usable signal.
type UserContext struct {
	Preference []float64
	History    HistoryAggregates
}

// BuildFeatures produces the 47-dimensional feature vector for one
// (article, user) pair. Layout:
//
//	[0]      dot(article embedding, preference)
//	[1]      cosine(article embedding, preference)
//	[2]      title length in runes
//	[3]      long-title indicator
//	[4]      has-image indicator
//	[5:37]   hashed source-name buckets
//	[37]     age in hours
//	[38]     published within 24h
//	[39]     published this week
//	[40]     exp(-age_hours/48)
//	[41]     rule score
//	[42:47]  14-day history: opens, mean positive dwell sec, stars,
//	         external clicks, dismisses
func BuildFeatures(article ArticleSnapshot, user UserContext, now time.Time) []float64 {
	features := make([]float64, FeatureCount)

	if len(article.Embedding) > 0 && len(user.Preference) == len(article.Embedding) {
		features[0] = dot(article.Embedding, user.Preference)
		features[1] = cosine(article.Embedding, user.Preference)
	}

	titleRunes := len([]rune(article.Title))
	features[2] = float64(titleRunes)
	if titleRunes > longTitleRunes {
		features[3] = 1
	}
	if article.HasImage {
		features[4] = 1
	}

	for _, bucket := range sourceHashBuckets(article.Source) {
		features[featureIdxSource+bucket] = 1
	}

	ageHours := now.Sub(article.PublishedAt).Hours()
	if ageHours < 0 {
		ageHours = 0
	}
	features[featureIdxAge] = ageHours
	if ageHours < 24 {
		features[featureIdxAge+1] = 1
	}
	if ageHours < 24*7 {
		features[featureIdxAge+2] = 1
	}
	features[featureIdxAge+3] = math.Exp(-ageHours / recencyDecayHours)

	features[featureIdxScore] = article.ScoreTotal

	features[featureIdxHistory] = float64(user.History.Opens)
	features[featureIdxHistory+1] = user.History.MeanPositiveDwellSec
	features[featureIdxHistory+2] = float64(user.History.Stars)
	features[featureIdxHistory+3] = float64(user.History.ExternalClicks)
	features[featureIdxHistory+4] = float64(user.History.Dismisses)

	return features
}

// sourceHashBuckets tokenizes a source name and hashes each token into one
// of 32 buckets.
func sourceHashBuckets(source string) []int {
	tokens := strings.FieldsFunc(strings.ToLower(source), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	if len(tokens) == 0 {
		return nil
	}

	seen := make(map[int]struct{}, len(tokens))
	buckets := make([]int, 0, len(tokens))
	for _, token := range tokens {
		hasher := fnv.New32a()
		_, _ = hasher.Write([]byte(token))
		bucket := int(hasher.Sum32() % sourceBuckets)
		if _, ok := seen[bucket]; ok {
			continue
		}
		seen[bucket] = struct{}{}
		buckets = append(buckets, bucket)
	}
	return buckets
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func cosine(a, b []float64) float64 {
	normA := norm(a)
	normB := norm(b)
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot(a, b) / (normA * normB)
}

func norm(v []float64) float64 {
	var sum float64
	for _, value := range v {
		sum += value * value
	}
	return math.Sqrt(sum)
}
