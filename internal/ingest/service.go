package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/lens/internal/db"
	"horse.fit/lens/internal/globaltime"
)

type Service struct {
	pool   *db.Pool
	logger zerolog.Logger
}

func NewService(pool *db.Pool, logger zerolog.Logger) *Service {
	return &Service{
		pool:   pool,
		logger: logger.With().Str("component", "ingest").Logger(),
	}
}

// IngestResult tallies one intake run over multiple payloads.
type IngestResult struct {
	Inserted int
	Rejected int
}

// IngestPayload validates one payload and inserts it as an unclustered
// article. Clustering, embedding and scoring pick it up from there.
func (s *Service) IngestPayload(ctx context.Context, payload json.RawMessage) (int64, error) {
	article, err := ValidatePayload(payload)
	if err != nil {
		return 0, err
	}
	return s.insertArticle(ctx, article)
}

// IngestBatch processes a slice of raw payloads with per-item isolation:
// a rejected payload is logged and counted, the rest of the batch
// continues.
func (s *Service) IngestBatch(ctx context.Context, payloads []json.RawMessage) (IngestResult, error) {
	var result IngestResult
	for i, payload := range payloads {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		articleID, err := s.IngestPayload(ctx, payload)
		if err != nil {
			result.Rejected++
			s.logger.Warn().Err(err).Int("index", i).Msg("payload rejected")
			continue
		}
		result.Inserted++
		s.logger.Debug().Int64("article_id", articleID).Msg("article ingested")
	}
	return result, nil
}

func (s *Service) insertArticle(ctx context.Context, article *ArticlePayload) (int64, error) {
	publishedAt, err := time.Parse(time.RFC3339, strings.TrimSpace(article.PublishedAt))
	if err != nil {
		return 0, fmt.Errorf("parse published_at: %w", err)
	}

	var content string
	if article.Content != nil {
		content = *article.Content
	}
	var scoreTotal float64
	if article.ScoreTotal != nil {
		scoreTotal = *article.ScoreTotal
	}

	now := globaltime.UTC()
	const q = `
INSERT INTO lens.articles (title, content, url, source, published_at, score_total, image_url, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
RETURNING article_id
`
	var articleID int64
	err = s.pool.QueryRow(ctx, q,
		strings.TrimSpace(article.Title),
		content,
		strings.TrimSpace(article.URL),
		strings.TrimSpace(article.Source),
		publishedAt.UTC(),
		scoreTotal,
		article.ImageURL,
		now,
	).Scan(&articleID)
	if err != nil {
		return 0, fmt.Errorf("insert article url=%s: %w", article.URL, err)
	}
	return articleID, nil
}
