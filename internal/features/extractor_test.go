package features

import (
	"math"
	"strings"
	"testing"
	"time"
)

func TestBuildFeaturesLayout(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	article := ArticleSnapshot{
		ArticleID:   1,
		Title:       "Short headline",
		Source:      "Example Wire",
		PublishedAt: now.Add(-12 * time.Hour),
		ScoreTotal:  42,
		HasImage:    true,
		Embedding:   []float64{1, 0, 0},
	}
	user := UserContext{
		Preference: []float64{0, 1, 0},
		History: HistoryAggregates{
			Opens:                3,
			MeanPositiveDwellSec: 21.5,
			Stars:                1,
			ExternalClicks:       2,
			Dismisses:            4,
		},
	}

	features := BuildFeatures(article, user, now)
	if len(features) != FeatureCount {
		t.Fatalf("expected %d features, got %d", FeatureCount, len(features))
	}

	if features[0] != 0 {
		t.Fatalf("orthogonal vectors should have zero dot product, got %f", features[0])
	}
	if features[1] != 0 {
		t.Fatalf("orthogonal vectors should have zero cosine, got %f", features[1])
	}
	if features[2] != float64(len("Short headline")) {
		t.Fatalf("unexpected title length feature: %f", features[2])
	}
	if features[3] != 0 {
		t.Fatalf("short title should not set the long-title flag")
	}
	if features[4] != 1 {
		t.Fatalf("expected has-image flag")
	}

	if features[featureIdxAge] != 12 {
		t.Fatalf("expected age of 12 hours, got %f", features[featureIdxAge])
	}
	if features[featureIdxAge+1] != 1 || features[featureIdxAge+2] != 1 {
		t.Fatalf("12h-old article should be <24h and this-week")
	}
	wantDecay := math.Exp(-12.0 / 48.0)
	if math.Abs(features[featureIdxAge+3]-wantDecay) > 1e-12 {
		t.Fatalf("unexpected recency decay: %f", features[featureIdxAge+3])
	}

	if features[featureIdxScore] != 42 {
		t.Fatalf("unexpected rule-score feature: %f", features[featureIdxScore])
	}
	if features[featureIdxHistory] != 3 ||
		features[featureIdxHistory+1] != 21.5 ||
		features[featureIdxHistory+2] != 1 ||
		features[featureIdxHistory+3] != 2 ||
		features[featureIdxHistory+4] != 4 {
		t.Fatalf("unexpected history features: %v", features[featureIdxHistory:])
	}
}

func TestBuildFeaturesMissingInputsZeroFill(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	article := ArticleSnapshot{
		ArticleID:   2,
		Title:       strings.Repeat("long ", 20),
		PublishedAt: now.Add(-30 * 24 * time.Hour),
	}

	features := BuildFeatures(article, UserContext{}, now)
	if len(features) != FeatureCount {
		t.Fatalf("expected %d features, got %d", FeatureCount, len(features))
	}
	if features[0] != 0 || features[1] != 0 {
		t.Fatalf("missing embedding must zero similarity features")
	}
	if features[3] != 1 {
		t.Fatalf("expected long-title flag for %d runes", len([]rune(article.Title)))
	}
	if features[featureIdxAge+1] != 0 || features[featureIdxAge+2] != 0 {
		t.Fatalf("month-old article must clear both recency flags")
	}
	for i := featureIdxHistory; i < FeatureCount; i++ {
		if features[i] != 0 {
			t.Fatalf("expected empty history to zero-fill, feature %d = %f", i, features[i])
		}
	}
}

func TestBuildFeaturesIdenticalVectors(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	embedding := []float64{0.6, 0.8}
	article := ArticleSnapshot{PublishedAt: now, Embedding: embedding}
	user := UserContext{Preference: embedding}

	features := BuildFeatures(article, user, now)
	if math.Abs(features[1]-1) > 1e-12 {
		t.Fatalf("identical vectors should have cosine 1, got %f", features[1])
	}
}

func TestSourceHashBuckets(t *testing.T) {
	t.Parallel()

	first := sourceHashBuckets("The Daily Example")
	second := sourceHashBuckets("the daily example")
	if len(first) == 0 {
		t.Fatalf("expected at least one bucket")
	}
	if len(first) != len(second) {
		t.Fatalf("bucketization must be case-insensitive")
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("bucketization must be case-insensitive")
		}
	}
	for _, bucket := range first {
		if bucket < 0 || bucket >= sourceBuckets {
			t.Fatalf("bucket %d out of range", bucket)
		}
	}

	if got := sourceHashBuckets("  --  "); got != nil {
		t.Fatalf("expected no buckets for empty source, got %v", got)
	}
}

func TestEngagementWeight(t *testing.T) {
	t.Parallel()

	fresh := engagementWeight(weightedArticle{ScoreTotal: 50, AgeHours: 0})
	stale := engagementWeight(weightedArticle{ScoreTotal: 50, AgeHours: 14 * 24})
	if stale >= fresh {
		t.Fatalf("weight must decay with age: fresh=%f stale=%f", fresh, stale)
	}
	if math.Abs(stale-fresh/math.E) > 1e-9 {
		t.Fatalf("half-life constant drifted: fresh=%f stale=%f", fresh, stale)
	}

	if got := engagementWeight(weightedArticle{ScoreTotal: -30, AgeHours: 0}); got != 0 {
		t.Fatalf("negative rule score must clamp to zero weight, got %f", got)
	}
}
