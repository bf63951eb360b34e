package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"LENS_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"LENS_DB_MAX_CONNS" default:"8"`

	EmbeddingEndpoint   string        `envconfig:"EMBEDDING_ENDPOINT" default:"http://127.0.0.1:8844/embed"`
	EmbeddingModelName  string        `envconfig:"EMBEDDING_MODEL_NAME" default:"Qwen3-Embedding-8B"`
	EmbeddingModelVer   string        `envconfig:"EMBEDDING_MODEL_VERSION" default:"v1"`
	EmbeddingDimensions int           `envconfig:"EMBEDDING_DIMENSIONS" default:"4096"`
	EmbeddingTimeout    time.Duration `envconfig:"EMBEDDING_TIMEOUT" default:"45s"`

	ModelArtifactDir string `envconfig:"MODEL_ARTIFACT_DIR" default:"./artifacts"`

	// TunablesFile optionally overrides the clustering/ranking tunables below.
	TunablesFile string `envconfig:"LENS_TUNABLES_FILE" default:""`

	Tunables Tunables `ignored:"true"`
}

// Tunables are the algorithm knobs with their stated defaults. They are
// product decisions rather than correctness requirements, so they live in
// one editable block instead of being scattered as constants.
type Tunables struct {
	SimhashSimilarityThreshold float64 `yaml:"simhash_similarity_threshold"`
	SimhashCandidateWindowDays int     `yaml:"simhash_candidate_window_days"`
	SimhashCandidateLimit      int     `yaml:"simhash_candidate_limit"`

	DwellThresholdMS       int64         `yaml:"dwell_threshold_ms"`
	ImpressionTimeout      time.Duration `yaml:"impression_timeout"`
	PreferenceLookbackDays int           `yaml:"preference_lookback_days"`
	PreferenceMinEvents    int           `yaml:"preference_min_events"`
	ColdStartMinScore      float64       `yaml:"cold_start_min_score"`
	ColdStartLookbackDays  int           `yaml:"cold_start_lookback_days"`
	HistoryWindowDays      int           `yaml:"history_window_days"`

	Epsilon             float64 `yaml:"epsilon"`
	ExplorationPoolSize int     `yaml:"exploration_pool_size"`
	MMRLambda           float64 `yaml:"mmr_lambda"`

	IncrementalWindow time.Duration `yaml:"incremental_window"`
}

func DefaultTunables() Tunables {
	return Tunables{
		SimhashSimilarityThreshold: 0.85,
		SimhashCandidateWindowDays: 3,
		SimhashCandidateLimit:      500,
		DwellThresholdMS:           15000,
		ImpressionTimeout:          24 * time.Hour,
		PreferenceLookbackDays:     30,
		PreferenceMinEvents:        3,
		ColdStartMinScore:          60,
		ColdStartLookbackDays:      60,
		HistoryWindowDays:          14,
		Epsilon:                    0.1,
		ExplorationPoolSize:        20,
		MMRLambda:                  0.25,
		IncrementalWindow:          24 * time.Hour,
	}
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	cfg.Tunables = DefaultTunables()
	if path := strings.TrimSpace(cfg.TunablesFile); path != "" {
		if err := loadTunablesFile(path, &cfg.Tunables); err != nil {
			return nil, fmt.Errorf("load tunables file %q: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("LENS_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("LENS_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("LENS_DB_MIN_CONNS (%d) cannot exceed LENS_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.EmbeddingDimensions < 1 {
		return fmt.Errorf("EMBEDDING_DIMENSIONS must be >= 1")
	}
	if strings.TrimSpace(c.ModelArtifactDir) == "" {
		return fmt.Errorf("MODEL_ARTIFACT_DIR is required")
	}
	return c.Tunables.Validate()
}

func (t *Tunables) Validate() error {
	if t.SimhashSimilarityThreshold <= 0 || t.SimhashSimilarityThreshold > 1 {
		return fmt.Errorf("simhash_similarity_threshold must be in (0,1]")
	}
	if t.SimhashCandidateWindowDays < 1 {
		return fmt.Errorf("simhash_candidate_window_days must be >= 1")
	}
	if t.SimhashCandidateLimit < 1 {
		return fmt.Errorf("simhash_candidate_limit must be >= 1")
	}
	if t.DwellThresholdMS < 0 {
		return fmt.Errorf("dwell_threshold_ms must be >= 0")
	}
	if t.ImpressionTimeout <= 0 {
		return fmt.Errorf("impression_timeout must be > 0")
	}
	if t.PreferenceLookbackDays < 1 || t.ColdStartLookbackDays < 1 || t.HistoryWindowDays < 1 {
		return fmt.Errorf("lookback windows must be >= 1 day")
	}
	if t.PreferenceMinEvents < 0 {
		return fmt.Errorf("preference_min_events must be >= 0")
	}
	if t.Epsilon < 0 || t.Epsilon > 1 {
		return fmt.Errorf("epsilon must be in [0,1]")
	}
	if t.ExplorationPoolSize < 0 {
		return fmt.Errorf("exploration_pool_size must be >= 0")
	}
	if t.MMRLambda < 0 || t.MMRLambda > 1 {
		return fmt.Errorf("mmr_lambda must be in [0,1]")
	}
	if t.IncrementalWindow <= 0 {
		return fmt.Errorf("incremental_window must be > 0")
	}
	return nil
}

func loadTunablesFile(path string, into *Tunables) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(payload, into); err != nil {
		return fmt.Errorf("parse YAML: %w", err)
	}
	return nil
}
