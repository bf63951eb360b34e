// Package cluster implements the story-clustering engine: each incoming
// article is matched against existing stories by canonical URL, content
// hash and simhash similarity, in that order, or seeds a new story.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/lens/internal/config"
	"horse.fit/lens/internal/db"
	"horse.fit/lens/internal/globaltime"
	"horse.fit/lens/internal/normalize"
	"horse.fit/lens/internal/simhash"
)

var (
	ErrArticleNotFound = errors.New("article not found")
	ErrStoryNotFound   = errors.New("story not found")
	ErrInvalidSplit    = errors.New("invalid split request")
	ErrInvalidMerge    = errors.New("invalid merge request")
)

// splitConfidence is assigned to both halves of a manual split: the
// automatic clustering was demonstrably wrong for at least one of them.
const splitConfidence = 0.5

type Service struct {
	pool     *db.Pool
	logger   zerolog.Logger
	tunables config.Tunables
}

// BatchResult tallies one ClusterPending run. Errors counts per-article
// failures that were isolated and skipped, not batch aborts.
type BatchResult struct {
	Processed  int `json:"processed"`
	Clustered  int `json:"clustered"`
	NewStories int `json:"new_stories"`
	Errors     int `json:"errors"`
}

type claimedArticle struct {
	ArticleID   int64
	Title       string
	Content     string
	URL         string
	Source      string
	PublishedAt time.Time
	ImageURL    *string
	State       ClusterState
}

type simhashCandidate struct {
	ArticleID int64
	Simhash   int64
	StoryID   int64
}

func NewService(pool *db.Pool, logger zerolog.Logger, tunables config.Tunables) *Service {
	return &Service{
		pool:     pool,
		logger:   logger,
		tunables: tunables,
	}
}

// AssignArticle clusters a single article inside its own transaction and
// returns the resulting assignment. Calling it again for an
// already-clustered article is a no-op that reports the existing story.
func (s *Service) AssignArticle(ctx context.Context, articleID int64) (Assignment, error) {
	if s == nil || s.pool == nil {
		return Assignment{}, fmt.Errorf("cluster service is not initialized")
	}

	tx, err := s.pool.BeginTx(ctx, db.TxOptions{})
	if err != nil {
		return Assignment{}, fmt.Errorf("begin assign tx: %w", err)
	}

	assignment, err := s.assignArticleTx(ctx, tx, articleID, false)
	if err != nil {
		_ = tx.Rollback(ctx)
		return Assignment{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		_ = tx.Rollback(ctx)
		return Assignment{}, fmt.Errorf("commit assign tx: %w", err)
	}
	return assignment, nil
}

// ClusterPending clusters unclustered articles oldest-published-first up to
// limit. Each article runs in its own transaction; a per-article failure is
// logged and counted, never aborts the batch. The loop is interruptible
// between items via ctx.
func (s *Service) ClusterPending(ctx context.Context, limit int) (BatchResult, error) {
	if s == nil || s.pool == nil {
		return BatchResult{}, fmt.Errorf("cluster service is not initialized")
	}
	if limit <= 0 {
		return BatchResult{}, nil
	}

	candidateIDs, err := s.listUnclusteredArticleIDs(ctx, limit)
	if err != nil {
		return BatchResult{}, err
	}

	var result BatchResult
	for _, articleID := range candidateIDs {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		assignment, claimed, err := s.clusterOne(ctx, articleID)
		if err != nil {
			s.logger.Warn().
				Err(err).
				Int64("article_id", articleID).
				Msg("clustering failed for article; skipping")
			result.Errors++
			continue
		}
		if !claimed {
			continue
		}

		result.Processed++
		if assignment.CreatedStory {
			result.NewStories++
		} else {
			result.Clustered++
		}
	}

	return result, nil
}

func (s *Service) clusterOne(ctx context.Context, articleID int64) (Assignment, bool, error) {
	tx, err := s.pool.BeginTx(ctx, db.TxOptions{})
	if err != nil {
		return Assignment{}, false, fmt.Errorf("begin cluster tx: %w", err)
	}

	assignment, err := s.assignArticleTx(ctx, tx, articleID, true)
	if err != nil {
		_ = tx.Rollback(ctx)
		if errors.Is(err, errArticleClaimed) {
			return Assignment{}, false, nil
		}
		return Assignment{}, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		_ = tx.Rollback(ctx)
		return Assignment{}, false, fmt.Errorf("commit cluster tx: %w", err)
	}

	if assignment.Method == MethodAlreadyAssigned {
		return assignment, false, nil
	}
	return assignment, true, nil
}

// errArticleClaimed marks a row held by a concurrent clustering run.
var errArticleClaimed = errors.New("article claimed by concurrent run")

func (s *Service) assignArticleTx(ctx context.Context, tx db.Tx, articleID int64, skipLocked bool) (Assignment, error) {
	article, err := claimArticleTx(ctx, tx, articleID, skipLocked)
	if err != nil {
		return Assignment{}, err
	}

	if storyID, ok := article.State.Story(); ok {
		return Assignment{StoryID: storyID, Method: MethodAlreadyAssigned}, nil
	}

	now := globaltime.UTC()
	canonicalURL := normalize.NormalizeURL(article.URL)
	contentHash := normalize.ContentHash(article.Title, article.Content)

	var fingerprint *int64
	if fp, ok := simhash.Fingerprint(article.Title + " " + article.Content); ok {
		value := int64(fp)
		fingerprint = &value
	}

	assignment, err := s.resolveStoryTx(ctx, tx, article, canonicalURL, contentHash, fingerprint, now)
	if err != nil {
		return Assignment{}, err
	}

	if err := persistArticleClusteringTx(ctx, tx, article.ArticleID, canonicalURL, contentHash, fingerprint, assignment.StoryID, now); err != nil {
		return Assignment{}, err
	}
	if err := appendStorySourceTx(ctx, tx, assignment.StoryID, article, now); err != nil {
		return Assignment{}, err
	}
	if err := refreshStoryAggregateTx(ctx, tx, assignment.StoryID, article.PublishedAt, now); err != nil {
		return Assignment{}, err
	}

	return assignment, nil
}

func (s *Service) resolveStoryTx(
	ctx context.Context,
	tx db.Tx,
	article claimedArticle,
	canonicalURL string,
	contentHash string,
	fingerprint *int64,
	now time.Time,
) (Assignment, error) {
	if canonicalURL != "" {
		if storyID, found, err := findStoryByCanonicalURLTx(ctx, tx, canonicalURL, article.ArticleID); err != nil {
			return Assignment{}, err
		} else if found {
			return Assignment{StoryID: storyID, Method: MethodExactURL}, nil
		}
	}

	if contentHash != "" {
		if storyID, found, err := findStoryByContentHashTx(ctx, tx, contentHash, article.ArticleID); err != nil {
			return Assignment{}, err
		} else if found {
			return Assignment{StoryID: storyID, Method: MethodContentHash}, nil
		}
	}

	if fingerprint != nil {
		storyID, similarity, found, err := s.findStoryBySimhashTx(ctx, tx, *fingerprint, article.ArticleID, now)
		if err != nil {
			return Assignment{}, err
		}
		if found {
			return Assignment{StoryID: storyID, Method: MethodSimhash, Similarity: similarity}, nil
		}
	}

	storyID, err := createStoryTx(ctx, tx, article, now)
	if err != nil {
		return Assignment{}, err
	}
	return Assignment{StoryID: storyID, Method: MethodNewStory, CreatedStory: true}, nil
}

func (s *Service) listUnclusteredArticleIDs(ctx context.Context, limit int) ([]int64, error) {
	const q = `
SELECT a.article_id
FROM lens.articles a
WHERE a.story_id IS NULL
  AND a.deleted_at IS NULL
ORDER BY a.published_at ASC, a.article_id ASC
LIMIT $1
`

	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list unclustered articles: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0, limit)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan unclustered article id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unclustered article ids: %w", err)
	}
	return ids, nil
}

func claimArticleTx(ctx context.Context, tx db.Tx, articleID int64, skipLocked bool) (claimedArticle, error) {
	q := `
SELECT
	a.article_id,
	a.title,
	a.content,
	a.url,
	a.source,
	a.published_at,
	a.image_url,
	a.story_id
FROM lens.articles a
WHERE a.article_id = $1
  AND a.deleted_at IS NULL
FOR UPDATE`
	if skipLocked {
		q += " SKIP LOCKED"
	}

	var article claimedArticle
	var storyID *int64
	err := tx.QueryRow(ctx, q, articleID).Scan(
		&article.ArticleID,
		&article.Title,
		&article.Content,
		&article.URL,
		&article.Source,
		&article.PublishedAt,
		&article.ImageURL,
		&storyID,
	)
	if err != nil {
		if errors.Is(err, db.ErrNoRows) {
			if skipLocked {
				return claimedArticle{}, errArticleClaimed
			}
			return claimedArticle{}, fmt.Errorf("%w: article_id=%d", ErrArticleNotFound, articleID)
		}
		return claimedArticle{}, fmt.Errorf("claim article article_id=%d: %w", articleID, err)
	}

	article.State = Unclustered()
	if storyID != nil {
		article.State = Clustered(*storyID)
	}
	return article, nil
}

func findStoryByCanonicalURLTx(ctx context.Context, tx db.Tx, canonicalURL string, excludeArticleID int64) (int64, bool, error) {
	const q = `
SELECT a.story_id
FROM lens.articles a
WHERE a.canonical_url = $1
  AND a.story_id IS NOT NULL
  AND a.article_id <> $2
  AND a.deleted_at IS NULL
ORDER BY a.published_at DESC, a.article_id DESC
LIMIT 1
`
	var storyID int64
	err := tx.QueryRow(ctx, q, canonicalURL, excludeArticleID).Scan(&storyID)
	if err != nil {
		if errors.Is(err, db.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("find story by canonical url: %w", err)
	}
	return storyID, true, nil
}

func findStoryByContentHashTx(ctx context.Context, tx db.Tx, contentHash string, excludeArticleID int64) (int64, bool, error) {
	const q = `
SELECT a.story_id
FROM lens.articles a
WHERE a.content_hash = $1
  AND a.story_id IS NOT NULL
  AND a.article_id <> $2
  AND a.deleted_at IS NULL
ORDER BY a.published_at DESC, a.article_id DESC
LIMIT 1
`
	var storyID int64
	err := tx.QueryRow(ctx, q, contentHash, excludeArticleID).Scan(&storyID)
	if err != nil {
		if errors.Is(err, db.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("find story by content hash: %w", err)
	}
	return storyID, true, nil
}

// findStoryBySimhashTx scans the bounded recent-candidate set most-recent
// first and picks the story of the candidate with the highest similarity at
// or above the threshold. Ties keep the first-encountered candidate.
func (s *Service) findStoryBySimhashTx(ctx context.Context, tx db.Tx, fingerprint int64, excludeArticleID int64, now time.Time) (int64, float64, bool, error) {
	cutoff := now.AddDate(0, 0, -s.tunables.SimhashCandidateWindowDays)

	const q = `
SELECT
	a.article_id,
	a.simhash,
	a.story_id
FROM lens.articles a
WHERE a.story_id IS NOT NULL
  AND a.simhash IS NOT NULL
  AND a.deleted_at IS NULL
  AND a.article_id <> $1
  AND a.published_at >= $2
ORDER BY a.published_at DESC, a.article_id DESC
LIMIT $3
`

	rows, err := tx.Query(ctx, q, excludeArticleID, cutoff, s.tunables.SimhashCandidateLimit)
	if err != nil {
		return 0, 0, false, fmt.Errorf("query simhash candidates: %w", err)
	}
	defer rows.Close()

	candidates := make([]simhashCandidate, 0, 64)
	for rows.Next() {
		var candidate simhashCandidate
		if err := rows.Scan(&candidate.ArticleID, &candidate.Simhash, &candidate.StoryID); err != nil {
			return 0, 0, false, fmt.Errorf("scan simhash candidate: %w", err)
		}
		candidates = append(candidates, candidate)
	}
	if err := rows.Err(); err != nil {
		return 0, 0, false, fmt.Errorf("iterate simhash candidates: %w", err)
	}

	storyID, similarity, found := pickBestSimhashMatch(uint32(fingerprint), candidates, s.tunables.SimhashSimilarityThreshold)
	return storyID, similarity, found, nil
}

// pickBestSimhashMatch selects the candidate with the highest similarity at
// or above the threshold. Ties keep the first candidate in scan order.
func pickBestSimhashMatch(fingerprint uint32, candidates []simhashCandidate, threshold float64) (int64, float64, bool) {
	var (
		bestStoryID    int64
		bestSimilarity float64
		found          bool
	)
	for _, candidate := range candidates {
		similarity := simhash.Similarity(fingerprint, uint32(candidate.Simhash))
		if similarity < threshold {
			continue
		}
		if !found || similarity > bestSimilarity {
			bestStoryID = candidate.StoryID
			bestSimilarity = similarity
			found = true
		}
	}
	return bestStoryID, bestSimilarity, found
}

func createStoryTx(ctx context.Context, tx db.Tx, article claimedArticle, now time.Time) (int64, error) {
	title := strings.TrimSpace(article.Title)
	if title == "" {
		title = article.URL
	}

	const q = `
INSERT INTO lens.stories (
	canonical_title,
	best_image,
	first_seen_at,
	last_seen_at,
	confidence,
	article_count,
	source_count,
	created_at,
	updated_at
)
VALUES ($1, $2, $3, $3, 1, 0, 0, $4, $4)
RETURNING story_id
`
	var storyID int64
	err := tx.QueryRow(ctx, q, title, article.ImageURL, article.PublishedAt.UTC(), now).Scan(&storyID)
	if err != nil {
		return 0, fmt.Errorf("insert story for article_id=%d: %w", article.ArticleID, err)
	}
	return storyID, nil
}

func persistArticleClusteringTx(
	ctx context.Context,
	tx db.Tx,
	articleID int64,
	canonicalURL string,
	contentHash string,
	fingerprint *int64,
	storyID int64,
	now time.Time,
) error {
	var canonicalURLPtr *string
	if canonicalURL != "" {
		canonicalURLPtr = &canonicalURL
	}
	var contentHashPtr *string
	if contentHash != "" {
		contentHashPtr = &contentHash
	}

	const q = `
UPDATE lens.articles
SET
	canonical_url = $1,
	content_hash = $2,
	simhash = $3,
	story_id = $4,
	updated_at = $5
WHERE article_id = $6
`
	_, err := tx.Exec(ctx, q, canonicalURLPtr, contentHashPtr, fingerprint, storyID, now, articleID)
	if err != nil {
		return fmt.Errorf("persist clustering article_id=%d: %w", articleID, err)
	}
	return nil
}

func appendStorySourceTx(ctx context.Context, tx db.Tx, storyID int64, article claimedArticle, now time.Time) error {
	const q = `
INSERT INTO lens.story_sources (
	story_id,
	url,
	site,
	published_at,
	created_at
)
VALUES ($1, $2, $3, $4, $5)
`
	publishedAt := article.PublishedAt.UTC()
	_, err := tx.Exec(ctx, q, storyID, article.URL, article.Source, publishedAt, now)
	if err != nil {
		return fmt.Errorf("append story source story_id=%d: %w", storyID, err)
	}
	return nil
}

// refreshStoryAggregateTx extends the seen range monotonically and
// recomputes member/provenance counts from the ground truth tables.
func refreshStoryAggregateTx(ctx context.Context, tx db.Tx, storyID int64, seenAt, now time.Time) error {
	const q = `
UPDATE lens.stories s
SET
	first_seen_at = LEAST(s.first_seen_at, $2),
	last_seen_at = GREATEST(s.last_seen_at, $2),
	article_count = (
		SELECT COUNT(*) FROM lens.articles a
		WHERE a.story_id = s.story_id AND a.deleted_at IS NULL
	),
	source_count = (
		SELECT COUNT(*) FROM lens.story_sources ss
		WHERE ss.story_id = s.story_id
	),
	updated_at = $3
WHERE s.story_id = $1
`
	_, err := tx.Exec(ctx, q, storyID, seenAt.UTC(), now)
	if err != nil {
		return fmt.Errorf("refresh story aggregate story_id=%d: %w", storyID, err)
	}
	return nil
}
