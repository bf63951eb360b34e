package embedding

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/rs/zerolog"

	"horse.fit/lens/internal/db"
	"horse.fit/lens/internal/globaltime"
	"horse.fit/lens/internal/normalize"
)

type Service struct {
	pool   *db.Pool
	client *Client
	logger zerolog.Logger
}

func NewService(pool *db.Pool, client *Client, logger zerolog.Logger) *Service {
	return &Service{
		pool:   pool,
		client: client,
		logger: logger.With().Str("component", "embedding").Logger(),
	}
}

// BatchResult tallies one EmbedPending run.
type BatchResult struct {
	Processed int
	Embedded  int
	Failed    int
}

type pendingArticle struct {
	ArticleID int64
	Title     string
	Content   string
}

// EmbedPending embeds up to limit articles that have no stored vector yet.
// Provider batches are all-or-nothing; a failed batch is counted and the
// run continues with the next batch so one bad payload cannot stall the
// backlog.
func (s *Service) EmbedPending(ctx context.Context, limit int) (BatchResult, error) {
	var result BatchResult
	if s == nil || s.pool == nil || s.client == nil {
		return result, fmt.Errorf("embedding service is not initialized")
	}
	if limit <= 0 {
		limit = 200
	}

	pending, err := s.listPendingArticles(ctx, limit)
	if err != nil {
		return result, err
	}
	if len(pending) == 0 {
		return result, nil
	}

	for start := 0; start < len(pending); start += defaultBatchSize {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		end := min(start+defaultBatchSize, len(pending))
		batch := pending[start:end]
		result.Processed += len(batch)

		texts := make([]string, 0, len(batch))
		for _, article := range batch {
			texts = append(texts, embedText(article.Title, article.Content))
		}

		vectors, err := s.client.Embed(ctx, texts)
		if err != nil {
			result.Failed += len(batch)
			s.logger.Error().Err(err).
				Int("batch_size", len(batch)).
				Int64("first_article_id", batch[0].ArticleID).
				Msg("embedding batch failed")
			continue
		}

		for i, article := range batch {
			if err := s.upsertVector(ctx, article.ArticleID, vectors[i]); err != nil {
				result.Failed++
				s.logger.Error().Err(err).
					Int64("article_id", article.ArticleID).
					Msg("failed to store embedding")
				continue
			}
			result.Embedded++
		}
	}

	s.logger.Info().
		Int("processed", result.Processed).
		Int("embedded", result.Embedded).
		Int("failed", result.Failed).
		Msg("embedding run complete")
	return result, nil
}

func (s *Service) listPendingArticles(ctx context.Context, limit int) ([]pendingArticle, error) {
	const q = `
SELECT a.article_id, a.title, a.content
FROM lens.articles a
WHERE a.deleted_at IS NULL
  AND NOT EXISTS (
	SELECT 1 FROM lens.article_vectors v WHERE v.article_id = a.article_id
  )
  AND (a.title <> '' OR a.content <> '')
ORDER BY a.published_at DESC, a.article_id DESC
LIMIT $1
`
	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending articles: %w", err)
	}
	defer rows.Close()

	pending := make([]pendingArticle, 0, limit)
	for rows.Next() {
		var article pendingArticle
		if err := rows.Scan(&article.ArticleID, &article.Title, &article.Content); err != nil {
			return nil, fmt.Errorf("scan pending article: %w", err)
		}
		pending = append(pending, article)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending articles: %w", err)
	}
	return pending, nil
}

func (s *Service) upsertVector(ctx context.Context, articleID int64, vector []float64) error {
	literal, err := toVectorLiteral(vector, s.client.Dimensions())
	if err != nil {
		return fmt.Errorf("encode vector article_id=%d: %w", articleID, err)
	}

	const q = `
INSERT INTO lens.article_vectors (article_id, embedding, model_name, model_version, embedded_at)
VALUES ($1, $2::vector, $3, $4, $5)
ON CONFLICT (article_id) DO UPDATE SET
	embedding = EXCLUDED.embedding,
	model_name = EXCLUDED.model_name,
	model_version = EXCLUDED.model_version,
	embedded_at = EXCLUDED.embedded_at
`
	_, err = s.pool.Exec(ctx, q,
		articleID,
		literal,
		s.client.ModelName(),
		s.client.ModelVersion(),
		globaltime.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert vector article_id=%d: %w", articleID, err)
	}
	return nil
}

// Vectors loads the stored embeddings for the given articles. Articles
// without a vector are simply absent from the result map.
func (s *Service) Vectors(ctx context.Context, articleIDs []int64) (map[int64][]float64, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("embedding service is not initialized")
	}
	if len(articleIDs) == 0 {
		return map[int64][]float64{}, nil
	}

	query, args, err := sq.
		Select("article_id", "embedding::text").
		From("lens.article_vectors").
		Where(sq.Eq{"article_id": articleIDs}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build vectors query: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load vectors: %w", err)
	}
	defer rows.Close()

	vectors := make(map[int64][]float64, len(articleIDs))
	for rows.Next() {
		var articleID int64
		var literal string
		if err := rows.Scan(&articleID, &literal); err != nil {
			return nil, fmt.Errorf("scan vector row: %w", err)
		}
		vector, err := parseVectorLiteral(literal)
		if err != nil {
			return nil, fmt.Errorf("parse vector article_id=%d: %w", articleID, err)
		}
		vectors[articleID] = vector
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vector rows: %w", err)
	}
	return vectors, nil
}

func embedText(title, content string) string {
	cleanTitle := normalize.CleanText(title)
	cleanContent := normalize.CleanText(content)
	return strings.TrimSpace(cleanTitle + " " + cleanContent)
}
