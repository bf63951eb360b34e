package ranker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/lens/internal/db"
	"horse.fit/lens/internal/globaltime"
)

var (
	ErrModelNotFound      = errors.New("model not found")
	ErrNoActiveModel      = errors.New("no active model")
	ErrPredictionNotFound = errors.New("no cached prediction")
)

// ActiveModel is an activated model row with its artifact loaded.
type ActiveModel struct {
	ModelID      int64
	ModelType    string
	Version      string
	ArtifactPath string
	ActivatedAt  *time.Time
	Model        Model
}

// Registry manages which model of each type is live. A partial unique
// index on (model_type) WHERE is_active backs the single-active invariant,
// so even a buggy writer cannot commit two active rows.
type Registry struct {
	pool   *db.Pool
	logger zerolog.Logger
}

func NewRegistry(pool *db.Pool, logger zerolog.Logger) *Registry {
	return &Registry{
		pool:   pool,
		logger: logger.With().Str("component", "registry").Logger(),
	}
}

// Activate flips the named model to active and its predecessor (if any) to
// inactive in one transaction. Readers observe either the old model or the
// new one, never zero or two.
func (r *Registry) Activate(ctx context.Context, modelID int64) error {
	tx, err := r.pool.BeginTx(ctx, db.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin activate tx: %w", err)
	}

	if err := r.activateTx(ctx, tx, modelID); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("commit activate tx: %w", err)
	}

	r.logger.Info().Int64("model_id", modelID).Msg("model activated")
	return nil
}

func (r *Registry) activateTx(ctx context.Context, tx db.Tx, modelID int64) error {
	const lockModel = `
SELECT model_type FROM lens.ml_models WHERE model_id = $1 FOR UPDATE
`
	var modelType string
	if err := tx.QueryRow(ctx, lockModel, modelID).Scan(&modelType); err != nil {
		if db.IsNoRows(err) {
			return fmt.Errorf("%w: model_id=%d", ErrModelNotFound, modelID)
		}
		return fmt.Errorf("lock model model_id=%d: %w", modelID, err)
	}

	now := globaltime.UTC()

	// Deactivate before activating; the partial unique index checks per
	// statement, so the reverse order would fail while a predecessor is
	// still active.
	const deactivate = `
UPDATE lens.ml_models
SET is_active = FALSE
WHERE model_type = $1
  AND is_active
  AND model_id <> $2
`
	if _, err := tx.Exec(ctx, deactivate, modelType, modelID); err != nil {
		return fmt.Errorf("deactivate previous %s model: %w", modelType, err)
	}

	const activate = `
UPDATE lens.ml_models
SET is_active = TRUE, activated_at = $2
WHERE model_id = $1
`
	if _, err := tx.Exec(ctx, activate, modelID, now); err != nil {
		return fmt.Errorf("activate model model_id=%d: %w", modelID, err)
	}
	return nil
}

// ActiveModel loads the active row of the given type together with its
// artifact.
func (r *Registry) ActiveModel(ctx context.Context, modelType string) (*ActiveModel, error) {
	const q = `
SELECT model_id, model_type, version, artifact_path, activated_at
FROM lens.ml_models
WHERE model_type = $1
  AND is_active
`
	var active ActiveModel
	err := r.pool.QueryRow(ctx, q, modelType).Scan(
		&active.ModelID,
		&active.ModelType,
		&active.Version,
		&active.ArtifactPath,
		&active.ActivatedAt,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, fmt.Errorf("%w: model_type=%s", ErrNoActiveModel, modelType)
		}
		return nil, fmt.Errorf("load active model model_type=%s: %w", modelType, err)
	}

	model, err := LoadArtifact(active.ArtifactPath)
	if err != nil {
		return nil, err
	}
	active.Model = model
	return &active, nil
}
