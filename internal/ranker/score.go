package ranker

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"horse.fit/lens/internal/config"
	"horse.fit/lens/internal/db"
	"horse.fit/lens/internal/features"
	"horse.fit/lens/internal/globaltime"
)

// ScoreSource tells callers whether a score came from the live model or
// from the rule-score fallback.
type ScoreSource string

const (
	SourceModel    ScoreSource = "model"
	SourceFallback ScoreSource = "fallback"
)

// ScoredArticle is one scored candidate. ModelID is zero on the fallback
// path, where no prediction is cached because there is no model to key it.
type ScoredArticle struct {
	ArticleID int64       `json:"article_id"`
	Score     float64     `json:"score"`
	Source    ScoreSource `json:"source"`
	ModelID   int64       `json:"model_id,omitempty"`
}

// ScoreResult tallies one ScoreBatch run.
type ScoreResult struct {
	Scored   []ScoredArticle
	Failed   int
	Fallback bool
}

type Scorer struct {
	pool      *db.Pool
	extractor *features.Service
	registry  *Registry
	tunables  config.Tunables
	logger    zerolog.Logger
}

func NewScorer(pool *db.Pool, extractor *features.Service, registry *Registry, tunables config.Tunables, logger zerolog.Logger) *Scorer {
	return &Scorer{
		pool:      pool,
		extractor: extractor,
		registry:  registry,
		tunables:  tunables,
		logger:    logger.With().Str("component", "scorer").Logger(),
	}
}

// FallbackScore maps the rule-based score (nominally 0..100, negative for
// spam) into [0,1] so ranking still works without a trained model.
func FallbackScore(scoreTotal float64) float64 {
	score := scoreTotal / 100
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// ScoreBatch scores the candidates for one user with the active model and
// caches each prediction. Per-item failures are tallied and skipped so one
// bad article cannot sink the batch. Without an active model every
// candidate gets the rule-score fallback and nothing is cached.
func (s *Scorer) ScoreBatch(ctx context.Context, userID int64, articleIDs []int64) (ScoreResult, error) {
	var result ScoreResult
	if len(articleIDs) == 0 {
		return result, nil
	}
	now := globaltime.UTC()

	snapshots, err := s.extractor.ArticleSnapshots(ctx, articleIDs)
	if err != nil {
		return result, err
	}

	active, err := s.registry.ActiveModel(ctx, ModelTypeRead)
	if err != nil {
		if !errors.Is(err, ErrNoActiveModel) {
			return result, err
		}
		result.Fallback = true
		for _, articleID := range articleIDs {
			snapshot, ok := snapshots[articleID]
			if !ok {
				result.Failed++
				continue
			}
			result.Scored = append(result.Scored, ScoredArticle{
				ArticleID: articleID,
				Score:     FallbackScore(snapshot.ScoreTotal),
				Source:    SourceFallback,
			})
		}
		s.logger.Warn().
			Int64("user_id", userID).
			Int("candidates", len(articleIDs)).
			Msg("no active model, served rule-score fallback")
		return result, nil
	}

	userCtx, err := s.extractor.UserContextFor(ctx, userID, now)
	if err != nil {
		return result, err
	}

	for _, articleID := range articleIDs {
		snapshot, ok := snapshots[articleID]
		if !ok {
			result.Failed++
			s.logger.Warn().Int64("article_id", articleID).Msg("scoring skipped missing article")
			continue
		}

		score := active.Model.PredictProba(features.BuildFeatures(snapshot, userCtx, now))
		if err := s.upsertPrediction(ctx, articleID, active.ModelID, score); err != nil {
			result.Failed++
			s.logger.Error().Err(err).Int64("article_id", articleID).Msg("failed to cache prediction")
			continue
		}
		result.Scored = append(result.Scored, ScoredArticle{
			ArticleID: articleID,
			Score:     score,
			Source:    SourceModel,
			ModelID:   active.ModelID,
		})
	}
	return result, nil
}

func (s *Scorer) upsertPrediction(ctx context.Context, articleID, modelID int64, score float64) error {
	const q = `
INSERT INTO lens.predictions (article_id, model_id, p_read, scored_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (article_id, model_id) DO UPDATE SET
	p_read = EXCLUDED.p_read,
	scored_at = EXCLUDED.scored_at
`
	_, err := s.pool.Exec(ctx, q, articleID, modelID, score, globaltime.UTC())
	if err != nil {
		return fmt.Errorf("upsert prediction article_id=%d model_id=%d: %w", articleID, modelID, err)
	}
	return nil
}

// Explanation is the debugging view of one (article, user) pair: the
// cached prediction under the active model, the label the training
// pipeline would derive right now, and the rule-score fallback.
type Explanation struct {
	ArticleID     int64   `json:"article_id"`
	UserID        int64   `json:"user_id"`
	PRead         float64 `json:"p_read"`
	ModelID       int64   `json:"model_id"`
	Label         string  `json:"label"`
	FallbackScore float64 `json:"fallback_score"`
}

// Explain assembles the cached prediction and the freshly derived label
// for one pair. Missing cached prediction is ErrPredictionNotFound.
func (s *Scorer) Explain(ctx context.Context, articleID, userID int64) (*Explanation, error) {
	pRead, modelID, err := s.CachedPrediction(ctx, articleID)
	if err != nil {
		return nil, err
	}

	snapshots, err := s.extractor.ArticleSnapshots(ctx, []int64{articleID})
	if err != nil {
		return nil, err
	}
	snapshot, ok := snapshots[articleID]
	if !ok {
		return nil, fmt.Errorf("%w: article_id=%d", features.ErrArticleNotFound, articleID)
	}

	events, err := s.pool.ListEvents(ctx, db.EventFilter{UserID: userID, ArticleID: articleID})
	if err != nil {
		return nil, err
	}
	label := features.DeriveLabel(events, globaltime.UTC(), s.tunables.DwellThresholdMS, s.tunables.ImpressionTimeout)

	return &Explanation{
		ArticleID:     articleID,
		UserID:        userID,
		PRead:         pRead,
		ModelID:       modelID,
		Label:         label.String(),
		FallbackScore: FallbackScore(snapshot.ScoreTotal),
	}, nil
}

// CachedPrediction returns the stored p_read for an article under the
// currently active model, for debugging endpoints.
func (s *Scorer) CachedPrediction(ctx context.Context, articleID int64) (float64, int64, error) {
	const q = `
SELECT p.p_read, p.model_id
FROM lens.predictions p
JOIN lens.ml_models m ON m.model_id = p.model_id AND m.is_active
WHERE p.article_id = $1
  AND m.model_type = $2
`
	var pRead float64
	var modelID int64
	err := s.pool.QueryRow(ctx, q, articleID, ModelTypeRead).Scan(&pRead, &modelID)
	if err != nil {
		if db.IsNoRows(err) {
			return 0, 0, fmt.Errorf("%w: article_id=%d", ErrPredictionNotFound, articleID)
		}
		return 0, 0, fmt.Errorf("load cached prediction article_id=%d: %w", articleID, err)
	}
	return pRead, modelID, nil
}
