package ranker

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/lens/internal/config"
	"horse.fit/lens/internal/db"
	"horse.fit/lens/internal/features"
)

// Example is one labeled (article, user) pair ready for training.
type Example struct {
	UserID      int64
	ArticleID   int64
	PublishedAt time.Time
	Features    []float64
	Label       int
}

type pairKey struct {
	userID    int64
	articleID int64
}

// buildDataset replays the event log from the given time, derives one
// label per (article, user) pair and extracts features for every labeled
// pair. Unlabeled pairs are dropped. Examples come back ordered by article
// publication time so callers can split temporally.
func buildDataset(
	ctx context.Context,
	pool *db.Pool,
	extractor *features.Service,
	tunables config.Tunables,
	from time.Time,
	now time.Time,
	logger zerolog.Logger,
) ([]Example, error) {
	events, err := pool.ListEvents(ctx, db.EventFilter{From: from})
	if err != nil {
		return nil, fmt.Errorf("load events for dataset: %w", err)
	}
	if len(events) == 0 {
		return nil, nil
	}

	byPair := make(map[pairKey][]db.EventRecord)
	for _, event := range events {
		key := pairKey{userID: event.UserID, articleID: event.ArticleID}
		byPair[key] = append(byPair[key], event)
	}

	labeled := make(map[pairKey]int, len(byPair))
	articleIDSet := make(map[int64]struct{})
	userIDSet := make(map[int64]struct{})
	for key, pairEvents := range byPair {
		label := features.DeriveLabel(pairEvents, now, tunables.DwellThresholdMS, tunables.ImpressionTimeout)
		if label == features.LabelUnlabeled {
			continue
		}
		value := 0
		if label == features.LabelPositive {
			value = 1
		}
		labeled[key] = value
		articleIDSet[key.articleID] = struct{}{}
		userIDSet[key.userID] = struct{}{}
	}
	if len(labeled) == 0 {
		return nil, nil
	}

	articleIDs := make([]int64, 0, len(articleIDSet))
	for articleID := range articleIDSet {
		articleIDs = append(articleIDs, articleID)
	}
	snapshots, err := extractor.ArticleSnapshots(ctx, articleIDs)
	if err != nil {
		return nil, err
	}

	userContexts := make(map[int64]features.UserContext, len(userIDSet))
	for userID := range userIDSet {
		userCtx, err := extractor.UserContextFor(ctx, userID, now)
		if err != nil {
			return nil, fmt.Errorf("load user context user_id=%d: %w", userID, err)
		}
		userContexts[userID] = userCtx
	}

	examples := make([]Example, 0, len(labeled))
	var skippedMissing int
	for key, label := range labeled {
		snapshot, ok := snapshots[key.articleID]
		if !ok {
			skippedMissing++
			continue
		}
		examples = append(examples, Example{
			UserID:      key.userID,
			ArticleID:   key.articleID,
			PublishedAt: snapshot.PublishedAt,
			Features:    features.BuildFeatures(snapshot, userContexts[key.userID], now),
			Label:       label,
		})
	}
	if skippedMissing > 0 {
		logger.Warn().Int("skipped", skippedMissing).Msg("labeled pairs referenced missing articles")
	}

	sort.Slice(examples, func(i, j int) bool {
		if !examples[i].PublishedAt.Equal(examples[j].PublishedAt) {
			return examples[i].PublishedAt.Before(examples[j].PublishedAt)
		}
		if examples[i].ArticleID != examples[j].ArticleID {
			return examples[i].ArticleID < examples[j].ArticleID
		}
		return examples[i].UserID < examples[j].UserID
	})
	return examples, nil
}

// temporalSplit holds out the most recently published slice as the test
// set, so evaluation mimics "train on the past, validate on the near
// future" instead of leaking future context into training.
func temporalSplit(examples []Example, testFraction float64) (train, test []Example) {
	if len(examples) == 0 {
		return nil, nil
	}
	testSize := int(float64(len(examples)) * testFraction)
	if testSize < 1 {
		testSize = 1
	}
	if testSize >= len(examples) {
		return nil, examples
	}
	cut := len(examples) - testSize
	return examples[:cut], examples[cut:]
}
