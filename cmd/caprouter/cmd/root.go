// Package cmd provides the CLI commands for caprouter.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"caprouter/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "caprouter",
	Short: "caprouter - capability router and planner",
	Long: `caprouter routes a capability request to the best available tool.

It loads a directory of tool documents into a registry, applies a per-tenant
policy gate (allow/deny lists, time windows, input/output schemas), scores
every matching candidate with a pluggable linear formula, and executes the
best-ranked candidate with typed-outcome fallback to the next one.

Quick start:
  1. Point a registry directory of tool YAML/JSON documents: caprouter.yaml
  2. Run: caprouter serve

Configuration:
  Config is loaded from caprouter.yaml in the current directory, $HOME/.caprouter/,
  or /etc/caprouter/.

  Environment variables can override config values with the CAPROUTER_ prefix.
  Example: CAPROUTER_SERVER_HTTP_ADDR=127.0.0.1:9090

Commands:
  serve   Start the decision API
  plan    Run a single decision against the configured registry
  version Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./caprouter.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
