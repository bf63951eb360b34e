package db

import (
	"encoding/json"
	"time"
)

// Article maps lens.articles.
type Article struct {
	ArticleID    int64      `gorm:"column:article_id;primaryKey;autoIncrement"`
	ArticleUUID  string     `gorm:"column:article_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	Title        string     `gorm:"column:title;type:text;not null"`
	Content      string     `gorm:"column:content;type:text;not null;default:''"`
	URL          string     `gorm:"column:url;type:text;not null"`
	Source       string     `gorm:"column:source;type:text;not null"`
	PublishedAt  time.Time  `gorm:"column:published_at;type:timestamptz;not null"`
	CanonicalURL *string    `gorm:"column:canonical_url;type:text"`
	ContentHash  *string    `gorm:"column:content_hash;type:text"`
	Simhash      *int64     `gorm:"column:simhash;type:bigint"`
	StoryID      *int64     `gorm:"column:story_id;type:bigint;index"`
	ScoreTotal   float64    `gorm:"column:score_total;type:double precision;not null;default:0"`
	ImageURL     *string    `gorm:"column:image_url;type:text"`
	DeletedAt    *time.Time `gorm:"column:deleted_at;type:timestamptz"`
	CreatedAt    time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Article) TableName() string { return "lens.articles" }

// Story maps lens.stories.
type Story struct {
	StoryID        int64     `gorm:"column:story_id;primaryKey;autoIncrement"`
	StoryUUID      string    `gorm:"column:story_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	CanonicalTitle string    `gorm:"column:canonical_title;type:text;not null"`
	BestImage      *string   `gorm:"column:best_image;type:text"`
	FirstSeenAt    time.Time `gorm:"column:first_seen_at;type:timestamptz;not null"`
	LastSeenAt     time.Time `gorm:"column:last_seen_at;type:timestamptz;not null"`
	Confidence     float64   `gorm:"column:confidence;type:double precision;not null;default:1"`
	ArticleCount   int       `gorm:"column:article_count;type:integer;not null;default:0"`
	SourceCount    int       `gorm:"column:source_count;type:integer;not null;default:0"`
	CreatedAt      time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt      time.Time `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Story) TableName() string { return "lens.stories" }

// StorySource maps lens.story_sources. Rows are append-only provenance
// records: one per ingestion event, never deduplicated on merge.
type StorySource struct {
	StorySourceID int64      `gorm:"column:story_source_id;primaryKey;autoIncrement"`
	StoryID       int64      `gorm:"column:story_id;type:bigint;not null;index"`
	URL           string     `gorm:"column:url;type:text;not null"`
	Site          string     `gorm:"column:site;type:text;not null"`
	PublishedAt   *time.Time `gorm:"column:published_at;type:timestamptz"`
	CreatedAt     time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (StorySource) TableName() string { return "lens.story_sources" }

// Event maps lens.events. Rows are immutable once written; they are the
// sole source of truth for labels and preference vectors.
type Event struct {
	EventID    int64     `gorm:"column:event_id;primaryKey;autoIncrement"`
	ArticleID  int64     `gorm:"column:article_id;type:bigint;not null;index:idx_events_article_user"`
	UserID     int64     `gorm:"column:user_id;type:bigint;not null;index:idx_events_article_user"`
	EventType  string    `gorm:"column:event_type;type:text;not null"`
	DurationMS *int64    `gorm:"column:duration_ms;type:bigint"`
	VisibleMS  *int64    `gorm:"column:visible_ms;type:bigint"`
	ScrollPct  *float64  `gorm:"column:scroll_pct;type:double precision"`
	CreatedAt  time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now();index"`
}

func (Event) TableName() string { return "lens.events" }

// ArticleVector maps lens.article_vectors: one dense embedding per article,
// overwritten wholesale on re-embedding.
type ArticleVector struct {
	ArticleVectorID int64     `gorm:"column:article_vector_id;primaryKey;autoIncrement"`
	ArticleID       int64     `gorm:"column:article_id;type:bigint;not null;unique"`
	ModelName       string    `gorm:"column:model_name;type:text;not null"`
	ModelVersion    string    `gorm:"column:model_version;type:text;not null"`
	Embedding       string    `gorm:"column:embedding;type:vector(4096);not null"`
	EmbeddedAt      time.Time `gorm:"column:embedded_at;type:timestamptz;not null;default:now()"`
	LatencyMS       *int      `gorm:"column:latency_ms;type:integer"`
}

func (ArticleVector) TableName() string { return "lens.article_vectors" }

// MLModel maps lens.ml_models. Hyperparameters and metrics are typed
// structs on the write path (see internal/ranker) marshalled into jsonb.
type MLModel struct {
	ModelID         int64           `gorm:"column:model_id;primaryKey;autoIncrement"`
	ModelUUID       string          `gorm:"column:model_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	ModelType       string          `gorm:"column:model_type;type:text;not null"`
	Version         string          `gorm:"column:version;type:text;not null"`
	Hyperparameters json.RawMessage `gorm:"column:hyperparameters;type:jsonb"`
	Metrics         json.RawMessage `gorm:"column:metrics;type:jsonb"`
	ArtifactPath    string          `gorm:"column:artifact_path;type:text;not null"`
	IsActive        bool            `gorm:"column:is_active;type:boolean;not null;default:false"`
	CreatedAt       time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	ActivatedAt     *time.Time      `gorm:"column:activated_at;type:timestamptz"`
}

func (MLModel) TableName() string { return "lens.ml_models" }

// Prediction maps lens.predictions: cached p_read per (article, model),
// upserted by scoring runs.
type Prediction struct {
	PredictionID int64     `gorm:"column:prediction_id;primaryKey;autoIncrement"`
	ArticleID    int64     `gorm:"column:article_id;type:bigint;not null;uniqueIndex:idx_predictions_article_model"`
	ModelID      int64     `gorm:"column:model_id;type:bigint;not null;uniqueIndex:idx_predictions_article_model"`
	PRead        float64   `gorm:"column:p_read;type:double precision;not null"`
	ScoredAt     time.Time `gorm:"column:scored_at;type:timestamptz;not null;default:now()"`
}

func (Prediction) TableName() string { return "lens.predictions" }

func autoMigrateModels() []any {
	return []any{
		&Article{},
		&Story{},
		&StorySource{},
		&Event{},
		&ArticleVector{},
		&MLModel{},
		&Prediction{},
	}
}
