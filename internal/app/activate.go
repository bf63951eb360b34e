package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/lens/internal/cli"
	"horse.fit/lens/internal/ranker"
)

func runActivate(args []string) int {
	fs := flag.NewFlagSet("activate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	modelID := fs.Int64("model-id", 0, "Model id to activate")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *modelID <= 0 {
		fmt.Fprintln(os.Stderr, "--model-id is required")
		return 2
	}

	ctx, cancel, _, logger, pool, err := connect(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	registry := ranker.NewRegistry(pool, logger)
	if err := registry.Activate(ctx, *modelID); err != nil {
		if errors.Is(err, ranker.ErrModelNotFound) {
			fmt.Fprintf(os.Stderr, "Model %d not found\n", *modelID)
			return 1
		}
		fmt.Fprintf(os.Stderr, "Activation failed: %v\n", err)
		return 1
	}

	fmt.Printf("model %d activated\n", *modelID)
	return 0
}
