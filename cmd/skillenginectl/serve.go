package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/relaymesh/skillengine/internal/api"
	"github.com/relaymesh/skillengine/internal/events"
	"github.com/relaymesh/skillengine/internal/storage/logstore"
	"github.com/relaymesh/skillengine/internal/storage/sqlite"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the debug HTTP server over the engine's storage",
	Long: `Opens the relational and log-store databases and serves the /healthz,
/metrics, /debug/skills, /debug/arms, and /events endpoints over them.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := sqlite.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open storage db %s: %w", dbPath, err)
	}
	defer db.Close()

	logs, err := logstore.Open(logDBPath)
	if err != nil {
		return fmt.Errorf("open log db %s: %w", logDBPath, err)
	}
	defer logs.Close()

	hub := events.NewHub()
	server := api.NewServer(db, hub)
	if cfg.Server.MetricsEnabled {
		server.EnableMetrics()
	}

	fmt.Fprintf(cmd.OutOrStdout(), "skillenginectl serving on %s\n", cfg.Server.Addr)
	return http.ListenAndServe(cfg.Server.Addr, server.Handler())
}
