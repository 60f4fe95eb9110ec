package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"

	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "chitrac",
	Short: "Production performance reporting for industrial machines",
	Long: `ChiTrac imports machine, operator, and item session records,
computes windowed efficiency and OEE reports, and serves them over
an HTTP API.`,
	Version: version,
	RunE:    runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(
		&configPath, "config", "c", "",
		"path to configuration file",
	)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
