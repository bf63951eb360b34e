package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"horse.fit/lens/internal/cli"
	"horse.fit/lens/internal/embedding"
	"horse.fit/lens/internal/features"
	"horse.fit/lens/internal/ranker"
)

func runScore(args []string) int {
	fs := flag.NewFlagSet("score", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 2*time.Minute, "Command timeout")
	userID := fs.Int64("user-id", 0, "User to score for")
	articles := fs.String("articles", "", "Comma-separated article ids")

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

	articleIDs, err := parseIDList(*articles)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid --articles: %v\n", err)
		return 2
	}
	if len(articleIDs) == 0 {
		fmt.Fprintln(os.Stderr, "--articles is required")
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

	result, err := scorer.ScoreBatch(ctx, *userID, articleIDs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Scoring failed: %v\n", err)
		return 1
	}

	if err := printJSON(map[string]any{
		"user_id":  *userID,
		"fallback": result.Fallback,
		"failed":   result.Failed,
		"scored":   result.Scored,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
		return 1
	}
	if result.Failed > 0 {
		return 1
	}
	return 0
}

func parseIDList(raw string) ([]int64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}

	parts := strings.Split(trimmed, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("%q is not a positive integer", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
