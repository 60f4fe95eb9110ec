package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mhamzafaisal1/chitrac/internal/config"
	"github.com/mhamzafaisal1/chitrac/internal/db"
	"github.com/mhamzafaisal1/chitrac/internal/rollup"
)

var rollupBackfill int

var rollupCmd = &cobra.Command{
	Use:   "rollup",
	Short: "Recompute the daily cache once and exit",
	RunE:  runRollup,
}

func init() {
	rollupCmd.Flags().IntVar(
		&rollupBackfill, "backfill", 0,
		"days to recompute (0 uses the configured value)",
	)
	rootCmd.AddCommand(rollupCmd)
}

func runRollup(cmd *cobra.Command, args []string) error {
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

	backfill := cfg.Rollup.Backfill
	if rollupBackfill > 0 {
		backfill = rollupBackfill
	}
	job := rollup.New(database, cfg.Location(), backfill, logger)
	return job.Run(cmd.Context())
}
