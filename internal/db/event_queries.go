package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// EventTypes accepted by InsertEvent. The event log is append-only; rows
// are never updated or deleted here.
var validEventTypes = map[string]struct{}{
	"impression":     {},
	"open":           {},
	"external_click": {},
	"star":           {},
	"dismiss":        {},
	"downvote":       {},
	"mark_read":      {},
	"label_add":      {},
	"label_remove":   {},
}

func IsValidEventType(eventType string) bool {
	_, ok := validEventTypes[strings.TrimSpace(strings.ToLower(eventType))]
	return ok
}

// EventRecord is the read model for interaction events.
type EventRecord struct {
	EventID    int64     `json:"event_id"`
	ArticleID  int64     `json:"article_id"`
	UserID     int64     `json:"user_id"`
	EventType  string    `json:"event_type"`
	DurationMS *int64    `json:"duration_ms,omitempty"`
	VisibleMS  *int64    `json:"visible_ms,omitempty"`
	ScrollPct  *float64  `json:"scroll_pct,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// EventFilter selects events by any combination of user, article, types
// and time range. Zero values mean "no constraint".
type EventFilter struct {
	UserID     int64
	ArticleID  int64
	EventTypes []string
	From       time.Time
	To         time.Time
	Limit      int
}

type InsertEventRequest struct {
	ArticleID  int64
	UserID     int64
	EventType  string
	DurationMS *int64
	VisibleMS  *int64
	ScrollPct  *float64
	CreatedAt  time.Time
}

func (p *Pool) InsertEvent(ctx context.Context, req InsertEventRequest) (int64, error) {
	eventType := strings.TrimSpace(strings.ToLower(req.EventType))
	if !IsValidEventType(eventType) {
		return 0, fmt.Errorf("invalid event type %q", req.EventType)
	}
	if req.ArticleID <= 0 || req.UserID <= 0 {
		return 0, fmt.Errorf("article_id and user_id are required")
	}
	createdAt := req.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	const q = `
INSERT INTO lens.events (
	article_id,
	user_id,
	event_type,
	duration_ms,
	visible_ms,
	scroll_pct,
	created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING event_id
`

	var eventID int64
	err := p.QueryRow(ctx, q, req.ArticleID, req.UserID, eventType, req.DurationMS, req.VisibleMS, req.ScrollPct, createdAt.UTC()).Scan(&eventID)
	if err != nil {
		return 0, fmt.Errorf("insert event article_id=%d user_id=%d: %w", req.ArticleID, req.UserID, err)
	}
	return eventID, nil
}

// ListEvents returns events matching the filter ordered oldest-first, so
// callers replaying history see events in causal order. The filter shape
// is genuinely dynamic, hence the builder instead of a SQL constant.
func (p *Pool) ListEvents(ctx context.Context, filter EventFilter) ([]EventRecord, error) {
	builder := sq.
		Select(
			"event_id",
			"article_id",
			"user_id",
			"event_type",
			"duration_ms",
			"visible_ms",
			"scroll_pct",
			"created_at",
		).
		From("lens.events").
		OrderBy("created_at ASC", "event_id ASC").
		PlaceholderFormat(sq.Dollar)

	if filter.UserID > 0 {
		builder = builder.Where(sq.Eq{"user_id": filter.UserID})
	}
	if filter.ArticleID > 0 {
		builder = builder.Where(sq.Eq{"article_id": filter.ArticleID})
	}
	if len(filter.EventTypes) > 0 {
		builder = builder.Where(sq.Eq{"event_type": filter.EventTypes})
	}
	if !filter.From.IsZero() {
		builder = builder.Where(sq.GtOrEq{"created_at": filter.From.UTC()})
	}
	if !filter.To.IsZero() {
		builder = builder.Where(sq.Lt{"created_at": filter.To.UTC()})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build event query: %w", err)
	}

	rows, err := p.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	items := make([]EventRecord, 0, 64)
	for rows.Next() {
		var row EventRecord
		if err := rows.Scan(
			&row.EventID,
			&row.ArticleID,
			&row.UserID,
			&row.EventType,
			&row.DurationMS,
			&row.VisibleMS,
			&row.ScrollPct,
			&row.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		items = append(items, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}
	return items, nil
}
