package app

import (
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"horse.fit/lens/internal/cli"
	"horse.fit/lens/internal/embedding"
	"horse.fit/lens/internal/features"
	"horse.fit/lens/internal/rank"
	"horse.fit/lens/internal/ranker"
)

func runRank(args []string) int {
	fs := flag.NewFlagSet("rank", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 2*time.Minute, "Command timeout")
	userID := fs.Int64("user-id", 0, "User to rank for")
	count := fs.Int("count", 30, "Number of items to return")
	seed := fs.Int64("seed", 0, "Exploration rng seed (0 uses the clock)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *userID <= 0 {
		fmt.Fprintln(os.Stderr, "--user-id is required")
		return 2
	}
	if *count <= 0 {
		fmt.Fprintln(os.Stderr, "--count must be > 0")
		return 2
	}

	ctx, cancel, cfg, logger, pool, err := connect(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	vectors := embedding.NewService(pool, embedding.NewClient(cfg), logger)
	extractor := features.NewService(pool, vectors, cfg.Tunables, logger)
	registry := ranker.NewRegistry(pool, logger)
	scorer := ranker.NewScorer(pool, extractor, registry, cfg.Tunables, logger)
	pipeline := rank.NewPipeline(pool, scorer, extractor, vectors, cfg.Tunables, logger)

	var rng *rand.Rand
	if *seed != 0 {
		rng = rand.New(rand.NewSource(*seed))
	}

	items, err := pipeline.Rank(ctx, *userID, *count, rng)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ranking failed: %v\n", err)
		return 1
	}

	if err := printJSON(map[string]any{
		"user_id": *userID,
		"items":   items,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
		return 1
	}
	return 0
}
