package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "slowpeer-tracker",
	Short: "Aggregates slow peer reports from datanodes",
	Long: `slowpeer-tracker collects slow-peer reports sent by datanodes, keeps the
ones still inside the validity window, and ranks the nodes reported slow by
the most distinct peers.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
