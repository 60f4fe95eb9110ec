package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mhamzafaisal1/chitrac/internal/config"
	"github.com/mhamzafaisal1/chitrac/internal/db"
	"github.com/mhamzafaisal1/chitrac/internal/ingest"
	"github.com/mhamzafaisal1/chitrac/internal/report"
	"github.com/mhamzafaisal1/chitrac/internal/rollup"
	"github.com/mhamzafaisal1/chitrac/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the reporting server",
	Long: `Start the HTTP API server with the spool importer, spool
watcher, and periodic daily-cache rollup.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("starting chitrac")

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error().Err(err).Msg("closing database")
		}
	}()
	logger.Info().Str("path", cfg.Database.Path).Msg("database open")

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	engine := ingest.NewEngine(
		database, cfg.Ingest.SpoolDir, cfg.Ingest.BatchSize, logger,
	)
	engine.ImportAll()

	var watcher *ingest.Watcher
	if cfg.Ingest.Watch {
		watcher, err = ingest.NewWatcher(
			cfg.WatchDebounce(), logger, engine.ImportPaths,
		)
		if err != nil {
			return fmt.Errorf("creating spool watcher: %w", err)
		}
		watched, unwatched, err := watcher.WatchRecursive(cfg.Ingest.SpoolDir)
		if err != nil {
			logger.Warn().Err(err).Msg("walking spool tree")
		}
		logger.Info().
			Int("watched", watched).
			Int("unwatched", unwatched).
			Msg("spool watcher ready")
		watcher.Start()
		defer watcher.Stop()
	}

	job := rollup.New(
		database, cfg.Location(), cfg.Rollup.Backfill, logger,
	)
	go job.RunPeriodic(ctx, cfg.RollupInterval())

	builder := report.New(database, report.Options{
		Log:       logger,
		Threshold: cfg.LongWindowThreshold(),
		Location:  cfg.Location(),
	})

	srv := server.New(cfg, database, builder, logger,
		server.WithVersion(server.VersionInfo{
			Version:   version,
			Commit:    commit,
			BuildDate: buildDate,
		}),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(), 10*time.Second,
	)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}
