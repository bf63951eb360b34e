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

func runTrain(args []string) int {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 15*time.Minute, "Command timeout")
	activate := fs.Bool("activate", false, "Activate the model after a successful train")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
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
	trainer := ranker.NewTrainer(pool, extractor, cfg.Tunables, cfg.ModelArtifactDir, logger)

	report, err := trainer.Train(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Training failed: %v\n", err)
		return 1
	}

	if *activate {
		registry := ranker.NewRegistry(pool, logger)
		if err := registry.Activate(ctx, report.ModelID); err != nil {
			fmt.Fprintf(os.Stderr, "Trained model %d but activation failed: %v\n", report.ModelID, err)
			return 1
		}
	}

	if err := printJSON(map[string]any{
		"model_id":  report.ModelID,
		"version":   report.Version,
		"metrics":   report.Metrics,
		"activated": *activate,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
		return 1
	}
	return 0
}
