// Package app is the lens command line: one run function per subcommand,
// each owning its flag set and wiring.
package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "ingest":
		return runIngest(args[1:])
	case "cluster":
		return runCluster(args[1:])
	case "embed":
		return runEmbed(args[1:])
	case "train":
		return runTrain(args[1:])
	case "activate":
		return runActivate(args[1:])
	case "score":
		return runScore(args[1:])
	case "update":
		return runUpdate(args[1:])
	case "rank":
		return runRank(args[1:])
	case "serve":
		return runServe(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "lens CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  lens <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health    Verify database connectivity")
	fmt.Fprintln(os.Stderr, "  ingest    Validate article JSON files and insert them")
	fmt.Fprintln(os.Stderr, "  cluster   Assign unclustered articles into stories")
	fmt.Fprintln(os.Stderr, "  embed     Generate embeddings for articles lacking vectors")
	fmt.Fprintln(os.Stderr, "  train     Train a read-probability model on recent feedback")
	fmt.Fprintln(os.Stderr, "  activate  Atomically activate a trained model")
	fmt.Fprintln(os.Stderr, "  score     Score candidate articles for a user")
	fmt.Fprintln(os.Stderr, "  update    Apply recent feedback to the active model incrementally")
	fmt.Fprintln(os.Stderr, "  rank      Produce a personalized ranked feed for a user")
	fmt.Fprintln(os.Stderr, "  serve     Start the Echo API server")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"lens <command> -h\" for command-specific flags.")
}
