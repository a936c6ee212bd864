package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/relaymesh/skillengine/internal/storage/logstore"
	"github.com/relaymesh/skillengine/internal/storage/sqlite"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply relational and log-store schema migrations",
	Long:  `Opens both SQLite databases, applying their schema migrations, then exits. Safe to run repeatedly.`,
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
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

	fmt.Fprintf(cmd.OutOrStdout(), "migrated %s and %s\n", dbPath, logDBPath)
	return nil
}
