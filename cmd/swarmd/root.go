package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mlanders/swarmd/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "swarmd",
	Short: "Multi-agent task coordinator",
	Long: `Swarmd coordinates a pool of agents over dependency-ordered task graphs.

Objectives are decomposed into tasks, scheduled onto agents by pluggable
strategies, and executed under supervision: timeouts, retries with
exponential backoff, per-agent circuit breakers, cascading cancellation,
health monitoring, and work stealing between agent queues.

Run 'swarmd run' to start the coordinator with a live dashboard, or with
--headless for batch and daemon use. State snapshots let interrupted runs
resume where they left off.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads configuration, honoring the --config flag.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		cfg, err := config.LoadFromPath(configPath)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return cfg, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a config file (overrides discovery)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}
