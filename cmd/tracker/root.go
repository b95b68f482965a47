package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "tracker",
	Short: "Per-deployment tracking reverse proxy",
	Long: `Tracker runs one reverse proxy per deployment and can record the HTTP
exchanges that pass through it.

  - HTTP and WebSocket traffic is forwarded unchanged to the backend port
  - Request tracking is toggled per deployment at runtime
  - Recorded exchanges are stored in SQLite or PostgreSQL
  - Dashboards receive new entries live over a WebSocket channel`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
}
