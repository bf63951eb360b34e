package app

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/lens/internal/cli"
	"horse.fit/lens/internal/ingest"
)

func runIngest(args []string) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 60*time.Second, "Command timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "ingest requires at least one JSON file argument")
		return 2
	}

	payloads := make([]json.RawMessage, 0, fs.NArg())
	for _, path := range fs.Args() {
		payload, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read %s: %v\n", path, err)
			return 1
		}
		payloads = append(payloads, payload)
	}

	ctx, cancel, _, logger, pool, err := connect(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	service := ingest.NewService(pool, logger)
	result, err := service.IngestBatch(ctx, payloads)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
		return 1
	}

	fmt.Printf("inserted=%d rejected=%d\n", result.Inserted, result.Rejected)
	if result.Rejected > 0 {
		return 1
	}
	return 0
}
