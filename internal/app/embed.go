package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/lens/internal/cli"
	"horse.fit/lens/internal/embedding"
)

func runEmbed(args []string) int {
	fs := flag.NewFlagSet("embed", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 10*time.Minute, "Command timeout")
	limit := fs.Int("limit", 200, "Maximum number of articles to embed")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *limit <= 0 {
		fmt.Fprintln(os.Stderr, "--limit must be > 0")
		return 2
	}

	ctx, cancel, cfg, logger, pool, err := connect(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	client := embedding.NewClient(cfg)
	service := embedding.NewService(pool, client, logger)

	result, err := service.EmbedPending(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Embedding failed: %v\n", err)
		return 1
	}

	fmt.Printf("processed=%d embedded=%d failed=%d\n", result.Processed, result.Embedded, result.Failed)
	if result.Failed > 0 {
		return 1
	}
	return 0
}
