package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/lens/internal/cli"
	"horse.fit/lens/internal/embedding"
	"horse.fit/lens/internal/features"
	"horse.fit/lens/internal/ranker"
)

func runUpdate(args []string) int {
	fs := flag.NewFlagSet("update", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 5*time.Minute, "Command timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "update does not accept positional arguments")
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
	updater := ranker.NewUpdater(pool, extractor, registry, cfg.Tunables, logger)

	report, err := updater.IncrementalUpdate(ctx)
	if err != nil {
		if errors.Is(err, ranker.ErrIncrementalUnsupported) {
			fmt.Fprintln(os.Stderr, "Active model does not support incremental updates; run a full train instead")
			return 1
		}
		if errors.Is(err, ranker.ErrNoActiveModel) {
			fmt.Fprintln(os.Stderr, "No active model to update; train and activate one first")
			return 1
		}
		fmt.Fprintf(os.Stderr, "Incremental update failed: %v\n", err)
		return 1
	}

	fmt.Printf("model_id=%d examples=%d positives=%d negatives=%d\n",
		report.ModelID, report.Examples, report.Positives, report.Negatives)
	return 0
}
