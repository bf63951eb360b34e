package rank

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/rs/zerolog"

	"horse.fit/lens/internal/config"
	"horse.fit/lens/internal/db"
	"horse.fit/lens/internal/embedding"
	"horse.fit/lens/internal/features"
	"horse.fit/lens/internal/globaltime"
	"horse.fit/lens/internal/ranker"
)

const (
	candidateLookbackDays = 3
	candidateLimit        = 200
)

// Pipeline assembles a personalized feed: candidate selection, model
// scoring, epsilon-greedy exploration, MMR diversification. Every stage
// has a degradation path, so ranking produces a usable list even with no
// model, no embeddings and no user history.
type Pipeline struct {
	pool      *db.Pool
	scorer    *ranker.Scorer
	extractor *features.Service
	vectors   *embedding.Service
	tunables  config.Tunables
	logger    zerolog.Logger
}

func NewPipeline(
	pool *db.Pool,
	scorer *ranker.Scorer,
	extractor *features.Service,
	vectors *embedding.Service,
	tunables config.Tunables,
	logger zerolog.Logger,
) *Pipeline {
	return &Pipeline{
		pool:      pool,
		scorer:    scorer,
		extractor: extractor,
		vectors:   vectors,
		tunables:  tunables,
		logger:    logger.With().Str("component", "rank").Logger(),
	}
}

// Rank returns up to count items for the user. A nil rng seeds from the
// clock; tests inject a seeded one for determinism.
func (p *Pipeline) Rank(ctx context.Context, userID int64, count int, rng *rand.Rand) ([]Item, error) {
	if count <= 0 {
		return nil, fmt.Errorf("count must be > 0")
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(globaltime.UTC().UnixNano()))
	}

	candidateIDs, ruleScores, err := p.listCandidates(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(candidateIDs) == 0 {
		return nil, nil
	}

	scoreResult, err := p.scorer.ScoreBatch(ctx, userID, candidateIDs)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(scoreResult.Scored))
	for _, scored := range scoreResult.Scored {
		items = append(items, Item{
			ArticleID: scored.ArticleID,
			Score:     scored.Score,
			RuleScore: ruleScores[scored.ArticleID],
		})
	}
	if len(items) == 0 {
		return nil, nil
	}

	items = EpsilonGreedy(items, p.tunables.ExplorationPoolSize, p.tunables.Epsilon, rng)

	preference, err := p.extractor.UserPreferenceVector(ctx, userID)
	if err != nil {
		return nil, err
	}
	itemIDs := make([]int64, 0, len(items))
	for _, item := range items {
		itemIDs = append(itemIDs, item.ArticleID)
	}
	vectors, err := p.vectors.Vectors(ctx, itemIDs)
	if err != nil {
		return nil, err
	}

	return MMR(items, preference, vectors, p.tunables.MMRLambda, count), nil
}

// listCandidates picks recent articles the user has not dismissed or
// marked read.
func (p *Pipeline) listCandidates(ctx context.Context, userID int64) ([]int64, map[int64]float64, error) {
	since := globaltime.UTC().AddDate(0, 0, -candidateLookbackDays)

	const q = `
SELECT a.article_id, a.score_total
FROM lens.articles a
WHERE a.deleted_at IS NULL
  AND a.published_at >= $1
  AND NOT EXISTS (
	SELECT 1 FROM lens.events e
	WHERE e.article_id = a.article_id
	  AND e.user_id = $2
	  AND e.event_type IN ('dismiss', 'downvote', 'mark_read')
  )
ORDER BY a.published_at DESC, a.article_id DESC
LIMIT $3
`
	rows, err := p.pool.Query(ctx, q, since, userID, candidateLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("list rank candidates user_id=%d: %w", userID, err)
	}
	defer rows.Close()

	ids := make([]int64, 0, candidateLimit)
	ruleScores := make(map[int64]float64, candidateLimit)
	for rows.Next() {
		var articleID int64
		var scoreTotal float64
		if err := rows.Scan(&articleID, &scoreTotal); err != nil {
			return nil, nil, fmt.Errorf("scan rank candidate: %w", err)
		}
		ids = append(ids, articleID)
		ruleScores[articleID] = scoreTotal
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate rank candidates: %w", err)
	}
	return ids, ruleScores, nil
}
