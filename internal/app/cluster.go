package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/lens/internal/cli"
	"horse.fit/lens/internal/cluster"
)

func runCluster(args []string) int {
	fs := flag.NewFlagSet("cluster", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 5*time.Minute, "Command timeout")
	limit := fs.Int("limit", 500, "Maximum number of articles to cluster")

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

	service := cluster.NewService(pool, logger, cfg.Tunables)
	result, err := service.ClusterPending(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Clustering failed: %v\n", err)
		return 1
	}

	fmt.Printf("processed=%d clustered=%d new_stories=%d errors=%d\n",
		result.Processed, result.Clustered, result.NewStories, result.Errors)
	if result.Errors > 0 {
		return 1
	}
	return 0
}
