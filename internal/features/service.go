package features

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rs/zerolog"

	"horse.fit/lens/internal/config"
	"horse.fit/lens/internal/db"
	"horse.fit/lens/internal/embedding"
	"horse.fit/lens/internal/globaltime"
)

var ErrArticleNotFound = errors.New("article not found")

type Service struct {
	pool     *db.Pool
	vectors  *embedding.Service
	tunables config.Tunables
	logger   zerolog.Logger
}

func NewService(pool *db.Pool, vectors *embedding.Service, tunables config.Tunables, logger zerolog.Logger) *Service {
	return &Service{
		pool:     pool,
		vectors:  vectors,
		tunables: tunables,
		logger:   logger.With().Str("component", "features").Logger(),
	}
}

// UserContextFor loads everything user-specific needed to extract features
// for a batch: the preference vector and the short-window history
// aggregates. Both degrade to their zero forms rather than failing.
func (s *Service) UserContextFor(ctx context.Context, userID int64, now time.Time) (UserContext, error) {
	var userCtx UserContext

	preference, err := s.UserPreferenceVector(ctx, userID)
	if err != nil {
		return userCtx, err
	}
	userCtx.Preference = preference

	history, err := s.historyAggregates(ctx, userID, now)
	if err != nil {
		return userCtx, err
	}
	userCtx.History = history
	return userCtx, nil
}

// ArticleSnapshots bulk-loads the per-article extraction inputs, embeddings
// included. Articles missing from the result were not found.
func (s *Service) ArticleSnapshots(ctx context.Context, articleIDs []int64) (map[int64]ArticleSnapshot, error) {
	if len(articleIDs) == 0 {
		return map[int64]ArticleSnapshot{}, nil
	}

	query, args, err := sq.
		Select("article_id", "title", "source", "published_at", "score_total", "image_url IS NOT NULL AND image_url <> ''").
		From("lens.articles").
		Where(sq.Eq{"article_id": articleIDs}).
		Where("deleted_at IS NULL").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build snapshot query: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load article snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := make(map[int64]ArticleSnapshot, len(articleIDs))
	for rows.Next() {
		var snapshot ArticleSnapshot
		if err := rows.Scan(
			&snapshot.ArticleID,
			&snapshot.Title,
			&snapshot.Source,
			&snapshot.PublishedAt,
			&snapshot.ScoreTotal,
			&snapshot.HasImage,
		); err != nil {
			return nil, fmt.Errorf("scan article snapshot: %w", err)
		}
		snapshots[snapshot.ArticleID] = snapshot
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate article snapshots: %w", err)
	}

	embeddings, err := s.vectors.Vectors(ctx, articleIDs)
	if err != nil {
		return nil, err
	}
	for articleID, vector := range embeddings {
		snapshot, ok := snapshots[articleID]
		if !ok {
			continue
		}
		snapshot.Embedding = vector
		snapshots[articleID] = snapshot
	}
	return snapshots, nil
}

// Extract produces the feature vector for one (article, user) pair. Only a
// missing article is an error; every optional input degrades to zeros.
func (s *Service) Extract(ctx context.Context, articleID, userID int64) ([]float64, error) {
	now := globaltime.UTC()

	userCtx, err := s.UserContextFor(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	snapshots, err := s.ArticleSnapshots(ctx, []int64{articleID})
	if err != nil {
		return nil, err
	}
	snapshot, ok := snapshots[articleID]
	if !ok {
		return nil, fmt.Errorf("%w: article_id=%d", ErrArticleNotFound, articleID)
	}

	return BuildFeatures(snapshot, userCtx, now), nil
}

func (s *Service) historyAggregates(ctx context.Context, userID int64, now time.Time) (HistoryAggregates, error) {
	var aggregates HistoryAggregates
	since := now.AddDate(0, 0, -s.tunables.HistoryWindowDays)

	const q = `
SELECT
	COUNT(*) FILTER (WHERE event_type = 'open'),
	COALESCE(AVG(duration_ms) FILTER (WHERE event_type = 'open' AND duration_ms > 0), 0),
	COUNT(*) FILTER (WHERE event_type = 'star'),
	COUNT(*) FILTER (WHERE event_type = 'external_click'),
	COUNT(*) FILTER (WHERE event_type = 'dismiss')
FROM lens.events
WHERE user_id = $1
  AND created_at >= $2
`
	var meanDwellMS float64
	err := s.pool.QueryRow(ctx, q, userID, since).Scan(
		&aggregates.Opens,
		&meanDwellMS,
		&aggregates.Stars,
		&aggregates.ExternalClicks,
		&aggregates.Dismisses,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return aggregates, nil
		}
		return aggregates, fmt.Errorf("load history aggregates user_id=%d: %w", userID, err)
	}
	aggregates.MeanPositiveDwellSec = meanDwellMS / 1000
	return aggregates, nil
}
