package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("chitrac %s (commit %s, built %s)\n",
			version, commit, buildDate)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
