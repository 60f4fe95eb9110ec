package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mhamzafaisal1/chitrac/internal/config"
	"github.com/mhamzafaisal1/chitrac/internal/db"
	"github.com/mhamzafaisal1/chitrac/internal/ingest"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import the spool directory once and exit",
	RunE:  runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer database.Close()

	engine := ingest.NewEngine(
		database, cfg.Ingest.SpoolDir, cfg.Ingest.BatchSize, logger,
	)
	stats := engine.ImportAll()
	if stats.Failed > 0 {
		return fmt.Errorf("%d file(s) failed to import", stats.Failed)
	}
	return nil
}
