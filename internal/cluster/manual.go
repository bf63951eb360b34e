package cluster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"horse.fit/lens/internal/db"
	"horse.fit/lens/internal/globaltime"
)

// SplitStory moves the named articles out of a story into a brand-new
// story seeded from the earliest-published moved article. The request is
// rejected before any mutation when it names articles outside the story,
// is empty, or would empty the original story.
func (s *Service) SplitStory(ctx context.Context, storyID int64, articleIDs []int64) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, fmt.Errorf("cluster service is not initialized")
	}
	if len(articleIDs) == 0 {
		return 0, fmt.Errorf("%w: no articles named", ErrInvalidSplit)
	}

	requested := make(map[int64]struct{}, len(articleIDs))
	for _, id := range articleIDs {
		if id <= 0 {
			return 0, fmt.Errorf("%w: invalid article id %d", ErrInvalidSplit, id)
		}
		requested[id] = struct{}{}
	}

	tx, err := s.pool.BeginTx(ctx, db.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin split tx: %w", err)
	}

	newStoryID, err := s.splitStoryTx(ctx, tx, storyID, requested)
	if err != nil {
		_ = tx.Rollback(ctx)
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		_ = tx.Rollback(ctx)
		return 0, fmt.Errorf("commit split tx: %w", err)
	}
	return newStoryID, nil
}

func (s *Service) splitStoryTx(ctx context.Context, tx db.Tx, storyID int64, requested map[int64]struct{}) (int64, error) {
	if err := lockStoryTx(ctx, tx, storyID); err != nil {
		return 0, err
	}

	members, err := listStoryMembersTx(ctx, tx, storyID)
	if err != nil {
		return 0, err
	}

	memberIDs := make(map[int64]struct{}, len(members))
	for _, member := range members {
		memberIDs[member.ArticleID] = struct{}{}
	}
	for id := range requested {
		if _, ok := memberIDs[id]; !ok {
			return 0, fmt.Errorf("%w: article %d does not belong to story %d", ErrInvalidSplit, id, storyID)
		}
	}
	if len(requested) >= len(members) {
		return 0, fmt.Errorf("%w: splitting all %d articles would empty story %d", ErrInvalidSplit, len(members), storyID)
	}

	var seed *claimedArticle
	moved := make([]claimedArticle, 0, len(requested))
	for _, member := range members {
		if _, ok := requested[member.ArticleID]; !ok {
			continue
		}
		memberCopy := member
		moved = append(moved, memberCopy)
		if seed == nil || member.PublishedAt.Before(seed.PublishedAt) {
			seed = &memberCopy
		}
	}

	now := globaltime.UTC()
	newStoryID, err := createStoryTx(ctx, tx, *seed, now)
	if err != nil {
		return 0, err
	}
	if err := setStoryConfidenceTx(ctx, tx, newStoryID, splitConfidence, now); err != nil {
		return 0, err
	}
	if err := setStoryConfidenceTx(ctx, tx, storyID, splitConfidence, now); err != nil {
		return 0, err
	}

	for _, member := range moved {
		if err := reassignArticleTx(ctx, tx, member.ArticleID, newStoryID, now); err != nil {
			return 0, err
		}
		if err := appendStorySourceTx(ctx, tx, newStoryID, member, now); err != nil {
			return 0, err
		}
	}

	if err := refreshStoryAggregateTx(ctx, tx, newStoryID, seed.PublishedAt, now); err != nil {
		return 0, err
	}
	if err := recomputeStorySeenRangeTx(ctx, tx, storyID, now); err != nil {
		return 0, err
	}
	if err := recomputeStorySeenRangeTx(ctx, tx, newStoryID, now); err != nil {
		return 0, err
	}

	return newStoryID, nil
}

// MergeStories moves every article from the source story into the target,
// appends the source's provenance records to the target (no deduplication),
// extends the target's seen range to the encompassing interval and deletes
// the source story.
func (s *Service) MergeStories(ctx context.Context, sourceStoryID, targetStoryID int64) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("cluster service is not initialized")
	}
	if sourceStoryID == targetStoryID {
		return fmt.Errorf("%w: source and target are the same story", ErrInvalidMerge)
	}

	tx, err := s.pool.BeginTx(ctx, db.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin merge tx: %w", err)
	}

	if err := s.mergeStoriesTx(ctx, tx, sourceStoryID, targetStoryID); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("commit merge tx: %w", err)
	}
	return nil
}

func (s *Service) mergeStoriesTx(ctx context.Context, tx db.Tx, sourceStoryID, targetStoryID int64) error {
	// Lock in id order so concurrent merges cannot deadlock.
	first, second := sourceStoryID, targetStoryID
	if second < first {
		first, second = second, first
	}
	if err := lockStoryTx(ctx, tx, first); err != nil {
		return err
	}
	if err := lockStoryTx(ctx, tx, second); err != nil {
		return err
	}

	now := globaltime.UTC()

	const moveArticles = `
UPDATE lens.articles
SET story_id = $1, updated_at = $2
WHERE story_id = $3
`
	if _, err := tx.Exec(ctx, moveArticles, targetStoryID, now, sourceStoryID); err != nil {
		return fmt.Errorf("move articles from story %d to %d: %w", sourceStoryID, targetStoryID, err)
	}

	const moveSources = `
UPDATE lens.story_sources
SET story_id = $1
WHERE story_id = $2
`
	if _, err := tx.Exec(ctx, moveSources, targetStoryID, sourceStoryID); err != nil {
		return fmt.Errorf("move story sources from story %d to %d: %w", sourceStoryID, targetStoryID, err)
	}

	const extendRange = `
UPDATE lens.stories t
SET
	first_seen_at = LEAST(t.first_seen_at, s.first_seen_at),
	last_seen_at = GREATEST(t.last_seen_at, s.last_seen_at),
	updated_at = $3
FROM lens.stories s
WHERE t.story_id = $1
  AND s.story_id = $2
`
	if _, err := tx.Exec(ctx, extendRange, targetStoryID, sourceStoryID, now); err != nil {
		return fmt.Errorf("extend seen range of story %d: %w", targetStoryID, err)
	}

	const deleteSource = `DELETE FROM lens.stories WHERE story_id = $1`
	if _, err := tx.Exec(ctx, deleteSource, sourceStoryID); err != nil {
		return fmt.Errorf("delete merged story %d: %w", sourceStoryID, err)
	}

	if err := refreshStoryCountsTx(ctx, tx, targetStoryID, now); err != nil {
		return err
	}
	return nil
}

func lockStoryTx(ctx context.Context, tx db.Tx, storyID int64) error {
	const q = `SELECT story_id FROM lens.stories WHERE story_id = $1 FOR UPDATE`
	var id int64
	if err := tx.QueryRow(ctx, q, storyID).Scan(&id); err != nil {
		if errors.Is(err, db.ErrNoRows) {
			return fmt.Errorf("%w: story_id=%d", ErrStoryNotFound, storyID)
		}
		return fmt.Errorf("lock story story_id=%d: %w", storyID, err)
	}
	return nil
}

func listStoryMembersTx(ctx context.Context, tx db.Tx, storyID int64) ([]claimedArticle, error) {
	const q = `
SELECT
	a.article_id,
	a.title,
	a.content,
	a.url,
	a.source,
	a.published_at,
	a.image_url
FROM lens.articles a
WHERE a.story_id = $1
  AND a.deleted_at IS NULL
ORDER BY a.published_at ASC, a.article_id ASC
`
	rows, err := tx.Query(ctx, q, storyID)
	if err != nil {
		return nil, fmt.Errorf("list story members story_id=%d: %w", storyID, err)
	}
	defer rows.Close()

	members := make([]claimedArticle, 0, 8)
	for rows.Next() {
		var member claimedArticle
		if err := rows.Scan(
			&member.ArticleID,
			&member.Title,
			&member.Content,
			&member.URL,
			&member.Source,
			&member.PublishedAt,
			&member.ImageURL,
		); err != nil {
			return nil, fmt.Errorf("scan story member: %w", err)
		}
		member.State = Clustered(storyID)
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate story members: %w", err)
	}
	return members, nil
}

func reassignArticleTx(ctx context.Context, tx db.Tx, articleID, storyID int64, now time.Time) error {
	const q = `
UPDATE lens.articles
SET story_id = $1, updated_at = $2
WHERE article_id = $3
`
	_, err := tx.Exec(ctx, q, storyID, now, articleID)
	if err != nil {
		return fmt.Errorf("reassign article_id=%d to story_id=%d: %w", articleID, storyID, err)
	}
	return nil
}

func setStoryConfidenceTx(ctx context.Context, tx db.Tx, storyID int64, confidence float64, now time.Time) error {
	const q = `
UPDATE lens.stories
SET confidence = $1, updated_at = $2
WHERE story_id = $3
`
	_, err := tx.Exec(ctx, q, confidence, now, storyID)
	if err != nil {
		return fmt.Errorf("set story confidence story_id=%d: %w", storyID, err)
	}
	return nil
}

// recomputeStorySeenRangeTx rebuilds first/last seen and counts from the
// remaining members; used after a split where the monotonic-extend shortcut
// does not hold.
func recomputeStorySeenRangeTx(ctx context.Context, tx db.Tx, storyID int64, now time.Time) error {
	const q = `
UPDATE lens.stories s
SET
	first_seen_at = COALESCE((
		SELECT MIN(a.published_at) FROM lens.articles a
		WHERE a.story_id = s.story_id AND a.deleted_at IS NULL
	), s.first_seen_at),
	last_seen_at = COALESCE((
		SELECT MAX(a.published_at) FROM lens.articles a
		WHERE a.story_id = s.story_id AND a.deleted_at IS NULL
	), s.last_seen_at),
	article_count = (
		SELECT COUNT(*) FROM lens.articles a
		WHERE a.story_id = s.story_id AND a.deleted_at IS NULL
	),
	source_count = (
		SELECT COUNT(*) FROM lens.story_sources ss
		WHERE ss.story_id = s.story_id
	),
	updated_at = $2
WHERE s.story_id = $1
`
	_, err := tx.Exec(ctx, q, storyID, now)
	if err != nil {
		return fmt.Errorf("recompute story seen range story_id=%d: %w", storyID, err)
	}
	return nil
}

func refreshStoryCountsTx(ctx context.Context, tx db.Tx, storyID int64, now time.Time) error {
	const q = `
UPDATE lens.stories s
SET
	article_count = (
		SELECT COUNT(*) FROM lens.articles a
		WHERE a.story_id = s.story_id AND a.deleted_at IS NULL
	),
	source_count = (
		SELECT COUNT(*) FROM lens.story_sources ss
		WHERE ss.story_id = s.story_id
	),
	updated_at = $2
WHERE s.story_id = $1
`
	_, err := tx.Exec(ctx, q, storyID, now)
	if err != nil {
		return fmt.Errorf("refresh story counts story_id=%d: %w", storyID, err)
	}
	return nil
}
