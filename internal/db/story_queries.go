package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// StorySummary is a read model used by list endpoints and CLI output.
type StorySummary struct {
	StoryID        int64     `json:"story_id"`
	StoryUUID      string    `json:"story_uuid"`
	CanonicalTitle string    `json:"canonical_title"`
	BestImage      *string   `json:"best_image,omitempty"`
	FirstSeenAt    time.Time `json:"first_seen_at"`
	LastSeenAt     time.Time `json:"last_seen_at"`
	Confidence     float64   `json:"confidence"`
	ArticleCount   int       `json:"article_count"`
	SourceCount    int       `json:"source_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// StoryDetail contains one story, its member articles and provenance rows.
type StoryDetail struct {
	Story    StorySummary         `json:"story"`
	Articles []StoryDetailArticle `json:"articles"`
	Sources  []StoryDetailSource  `json:"sources"`
}

// StoryDetailArticle is an article row within a story.
type StoryDetailArticle struct {
	ArticleID    int64     `json:"article_id"`
	ArticleUUID  string    `json:"article_uuid"`
	Title        string    `json:"title"`
	URL          string    `json:"url"`
	CanonicalURL *string   `json:"canonical_url,omitempty"`
	Source       string    `json:"source"`
	PublishedAt  time.Time `json:"published_at"`
	ScoreTotal   float64   `json:"score_total"`
}

// StoryDetailSource is one provenance record within a story.
type StoryDetailSource struct {
	URL         string     `json:"url"`
	Site        string     `json:"site"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ListStories lists stories most-recently-seen-first.
func (p *Pool) ListStories(ctx context.Context, query string, limit int) ([]StorySummary, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	search := "%" + strings.TrimSpace(query) + "%"

	const q = `
SELECT
	s.story_id,
	s.story_uuid::text,
	s.canonical_title,
	s.best_image,
	s.first_seen_at,
	s.last_seen_at,
	s.confidence,
	s.article_count,
	s.source_count,
	s.created_at,
	s.updated_at
FROM lens.stories s
WHERE ($1 = '%%' OR s.canonical_title ILIKE $1)
ORDER BY s.last_seen_at DESC, s.story_id DESC
LIMIT $2
`

	rows, err := p.Query(ctx, q, search, limit)
	if err != nil {
		return nil, fmt.Errorf("query stories: %w", err)
	}
	defer rows.Close()

	items := make([]StorySummary, 0, limit)
	for rows.Next() {
		var row StorySummary
		if err := rows.Scan(
			&row.StoryID,
			&row.StoryUUID,
			&row.CanonicalTitle,
			&row.BestImage,
			&row.FirstSeenAt,
			&row.LastSeenAt,
			&row.Confidence,
			&row.ArticleCount,
			&row.SourceCount,
			&row.CreatedAt,
			&row.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan story summary row: %w", err)
		}
		items = append(items, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate story summary rows: %w", err)
	}
	return items, nil
}

// GetStoryDetail returns one story by UUID with its member articles and
// provenance records.
func (p *Pool) GetStoryDetail(ctx context.Context, storyUUID string) (*StoryDetail, error) {
	trimmedUUID := strings.TrimSpace(storyUUID)
	if trimmedUUID == "" {
		return nil, fmt.Errorf("story UUID is required")
	}

	const storyQuery = `
SELECT
	s.story_id,
	s.story_uuid::text,
	s.canonical_title,
	s.best_image,
	s.first_seen_at,
	s.last_seen_at,
	s.confidence,
	s.article_count,
	s.source_count,
	s.created_at,
	s.updated_at
FROM lens.stories s
WHERE s.story_uuid = $1::uuid
`

	var header StorySummary
	if err := p.QueryRow(ctx, storyQuery, trimmedUUID).Scan(
		&header.StoryID,
		&header.StoryUUID,
		&header.CanonicalTitle,
		&header.BestImage,
		&header.FirstSeenAt,
		&header.LastSeenAt,
		&header.Confidence,
		&header.ArticleCount,
		&header.SourceCount,
		&header.CreatedAt,
		&header.UpdatedAt,
	); err != nil {
		if errors.Is(err, ErrNoRows) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("query story detail header: %w", err)
	}

	const membersQuery = `
SELECT
	a.article_id,
	a.article_uuid::text,
	a.title,
	a.url,
	a.canonical_url,
	a.source,
	a.published_at,
	a.score_total
FROM lens.articles a
WHERE a.story_id = $1
  AND a.deleted_at IS NULL
ORDER BY a.published_at DESC, a.article_id DESC
`

	rows, err := p.Query(ctx, membersQuery, header.StoryID)
	if err != nil {
		return nil, fmt.Errorf("query story detail members: %w", err)
	}
	defer rows.Close()

	members := make([]StoryDetailArticle, 0, header.ArticleCount)
	for rows.Next() {
		var member StoryDetailArticle
		if err := rows.Scan(
			&member.ArticleID,
			&member.ArticleUUID,
			&member.Title,
			&member.URL,
			&member.CanonicalURL,
			&member.Source,
			&member.PublishedAt,
			&member.ScoreTotal,
		); err != nil {
			return nil, fmt.Errorf("scan story detail member: %w", err)
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate story detail members: %w", err)
	}

	const sourcesQuery = `
SELECT
	ss.url,
	ss.site,
	ss.published_at,
	ss.created_at
FROM lens.story_sources ss
WHERE ss.story_id = $1
ORDER BY ss.story_source_id
`

	sourceRows, err := p.Query(ctx, sourcesQuery, header.StoryID)
	if err != nil {
		return nil, fmt.Errorf("query story detail sources: %w", err)
	}
	defer sourceRows.Close()

	sources := make([]StoryDetailSource, 0, header.SourceCount)
	for sourceRows.Next() {
		var source StoryDetailSource
		if err := sourceRows.Scan(&source.URL, &source.Site, &source.PublishedAt, &source.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan story detail source: %w", err)
		}
		sources = append(sources, source)
	}
	if err := sourceRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate story detail sources: %w", err)
	}

	return &StoryDetail{
		Story:    header,
		Articles: members,
		Sources:  sources,
	}, nil
}
