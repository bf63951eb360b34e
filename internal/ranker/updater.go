package ranker

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"horse.fit/lens/internal/config"
	"horse.fit/lens/internal/db"
	"horse.fit/lens/internal/features"
	"horse.fit/lens/internal/globaltime"
)

// ErrIncrementalUnsupported signals that the active model family cannot
// fold in new examples; the caller should schedule a full retrain instead.
var ErrIncrementalUnsupported = errors.New("active model does not support incremental updates")

// UpdateReport summarizes one incremental update.
type UpdateReport struct {
	ModelID   int64
	Examples  int
	Positives int
	Negatives int
}

type Updater struct {
	pool      *db.Pool
	extractor *features.Service
	registry  *Registry
	tunables  config.Tunables
	logger    zerolog.Logger
}

func NewUpdater(pool *db.Pool, extractor *features.Service, registry *Registry, tunables config.Tunables, logger zerolog.Logger) *Updater {
	return &Updater{
		pool:      pool,
		extractor: extractor,
		registry:  registry,
		tunables:  tunables,
		logger:    logger.With().Str("component", "updater").Logger(),
	}
}

// IncrementalUpdate converts the recent feedback window into labeled
// examples and applies them to the active model via PartialFit, writing
// the updated artifact back in place. Declines explicitly when the model
// family cannot learn incrementally; a silent no-op would let the model
// quietly go stale.
func (u *Updater) IncrementalUpdate(ctx context.Context) (UpdateReport, error) {
	var report UpdateReport
	now := globaltime.UTC()

	active, err := u.registry.ActiveModel(ctx, ModelTypeRead)
	if err != nil {
		return report, err
	}
	report.ModelID = active.ModelID

	trainable, ok := active.Model.(IncrementallyTrainable)
	if !ok {
		return report, fmt.Errorf("%w: model_id=%d", ErrIncrementalUnsupported, active.ModelID)
	}

	examples, err := buildDataset(ctx, u.pool, u.extractor, u.tunables, now.Add(-u.tunables.IncrementalWindow), now, u.logger)
	if err != nil {
		return report, err
	}
	if len(examples) == 0 {
		u.logger.Info().Int64("model_id", active.ModelID).Msg("no labeled feedback in window, nothing to apply")
		return report, nil
	}

	samples, labels := splitFeaturesLabels(examples)
	if err := trainable.PartialFit(samples, labels); err != nil {
		return report, fmt.Errorf("partial fit model_id=%d: %w", active.ModelID, err)
	}

	updated, ok := active.Model.(*LogisticModel)
	if !ok {
		return report, fmt.Errorf("%w: cannot persist artifact for model_id=%d", ErrIncrementalUnsupported, active.ModelID)
	}
	if err := SaveArtifact(active.ArtifactPath, updated); err != nil {
		return report, err
	}

	report.Examples = len(examples)
	for _, label := range labels {
		if label == 1 {
			report.Positives++
		} else {
			report.Negatives++
		}
	}
	u.logger.Info().
		Int64("model_id", active.ModelID).
		Int("examples", report.Examples).
		Int("positives", report.Positives).
		Int("negatives", report.Negatives).
		Msg("incremental update applied")
	return report, nil
}
