// Package main implements skillenginectl, the operator CLI for running
// and exercising the Skill Optimization Engine standalone: a debug HTTP
// server, a one-shot migration runner, and a synthetic-traffic simulator
// for watching the bandit/reflection loop converge.
//
// Subcommands register themselves in init; RunE propagates errors to a
// single exit point in main. Configuration lives in
// ~/.skillenginectl/config.toml unless --config overrides it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "skillenginectl",
	Short: "Run and exercise the skill optimization engine",
	Long: `skillenginectl hosts the Skill Optimization Engine's debug surface and
drives it with real or synthetic traffic. It is not the LLM gateway itself;
it assembles the engine package against a local SQLite-backed storage/log
connector pair for standalone operation, testing, and demos.`,
}

var (
	dbPath     string
	logDBPath  string
	configPath string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "skillengine.db", "path to the relational storage SQLite file")
	rootCmd.PersistentFlags().StringVar(&logDBPath, "logdb", "skillengine-logs.db", "path to the request-log SQLite file")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a config.toml (defaults to ~/.skillenginectl/config.toml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
