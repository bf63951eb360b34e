package features

import (
	"context"
	"fmt"
	"math"
	"time"

	"horse.fit/lens/internal/globaltime"
)

type weightedArticle struct {
	ArticleID  int64
	ScoreTotal float64
	AgeHours   float64
}

// UserPreferenceVector computes the unit-length weighted average of the
// embeddings of articles the user positively engaged with over the lookback
// window. Users with too few qualifying interactions fall back to a vector
// built from globally high-scoring recent articles, so new users start from
// an editorially popular taste instead of an undefined one. A nil result
// means no signal exists at all and callers must degrade.
func (s *Service) UserPreferenceVector(ctx context.Context, userID int64) ([]float64, error) {
	now := globaltime.UTC()

	engaged, err := s.positivelyEngagedArticles(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	if len(engaged) >= s.tunables.PreferenceMinEvents {
		vector, err := s.weightedAverage(ctx, engaged, engagementWeight)
		if err != nil {
			return nil, err
		}
		if vector != nil {
			return vector, nil
		}
	}

	popular, err := s.coldStartArticles(ctx, now)
	if err != nil {
		return nil, err
	}
	if len(popular) == 0 {
		return nil, nil
	}
	return s.weightedAverage(ctx, popular, func(article weightedArticle) float64 {
		return article.ScoreTotal
	})
}

// engagementWeight favors articles the scoring pipeline rated highly and
// decays with a 14-day recency half-life.
func engagementWeight(article weightedArticle) float64 {
	return math.Log(1+math.Max(0, article.ScoreTotal)) * math.Exp(-article.AgeHours/(14*24))
}

func (s *Service) positivelyEngagedArticles(ctx context.Context, userID int64, now time.Time) ([]weightedArticle, error) {
	since := now.AddDate(0, 0, -s.tunables.PreferenceLookbackDays)

	const q = `
SELECT DISTINCT ON (a.article_id)
	a.article_id,
	a.score_total,
	a.published_at
FROM lens.events e
JOIN lens.articles a ON a.article_id = e.article_id
WHERE e.user_id = $1
  AND e.created_at >= $2
  AND a.deleted_at IS NULL
  AND (
	e.event_type IN ('star', 'external_click')
	OR (e.event_type = 'open' AND e.duration_ms >= $3)
  )
ORDER BY a.article_id, e.created_at DESC
`
	return s.scanWeightedArticles(ctx, now, q, userID, since, s.tunables.DwellThresholdMS)
}

func (s *Service) coldStartArticles(ctx context.Context, now time.Time) ([]weightedArticle, error) {
	since := now.AddDate(0, 0, -s.tunables.ColdStartLookbackDays)

	const q = `
SELECT a.article_id, a.score_total, a.published_at
FROM lens.articles a
WHERE a.deleted_at IS NULL
  AND a.score_total >= $1
  AND a.published_at >= $2
ORDER BY a.score_total DESC, a.published_at DESC
LIMIT 100
`
	return s.scanWeightedArticles(ctx, now, q, s.tunables.ColdStartMinScore, since)
}

func (s *Service) scanWeightedArticles(ctx context.Context, now time.Time, query string, args ...any) ([]weightedArticle, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query preference articles: %w", err)
	}
	defer rows.Close()

	articles := make([]weightedArticle, 0, 32)
	for rows.Next() {
		var article weightedArticle
		var publishedAt time.Time
		if err := rows.Scan(&article.ArticleID, &article.ScoreTotal, &publishedAt); err != nil {
			return nil, fmt.Errorf("scan preference article: %w", err)
		}
		article.AgeHours = math.Max(0, now.Sub(publishedAt).Hours())
		articles = append(articles, article)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate preference articles: %w", err)
	}
	return articles, nil
}

// weightedAverage combines the embeddings of the given articles using the
// supplied weight function and normalizes the result to unit length.
// Articles without a stored embedding contribute nothing; nil is returned
// when no embedding or no positive weight survives.
func (s *Service) weightedAverage(ctx context.Context, articles []weightedArticle, weightOf func(weightedArticle) float64) ([]float64, error) {
	if len(articles) == 0 {
		return nil, nil
	}

	articleIDs := make([]int64, 0, len(articles))
	for _, article := range articles {
		articleIDs = append(articleIDs, article.ArticleID)
	}
	vectors, err := s.vectors.Vectors(ctx, articleIDs)
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, nil
	}

	var accumulated []float64
	var totalWeight float64
	for _, article := range articles {
		vector, ok := vectors[article.ArticleID]
		if !ok {
			continue
		}
		weight := weightOf(article)
		if weight <= 0 {
			continue
		}
		if accumulated == nil {
			accumulated = make([]float64, len(vector))
		}
		if len(vector) != len(accumulated) {
			return nil, fmt.Errorf("embedding dimension mismatch for article_id=%d: %d != %d", article.ArticleID, len(vector), len(accumulated))
		}
		for i, value := range vector {
			accumulated[i] += weight * value
		}
		totalWeight += weight
	}
	if accumulated == nil || totalWeight == 0 {
		return nil, nil
	}

	length := norm(accumulated)
	if length == 0 {
		return nil, nil
	}
	for i := range accumulated {
		accumulated[i] /= length
	}
	return accumulated, nil
}
