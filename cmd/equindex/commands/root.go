package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wonny/equindex/internal/metrics"
	"github.com/wonny/equindex/pkg/config"
	"github.com/wonny/equindex/pkg/database"
	"github.com/wonny/equindex/pkg/logger"
)

var (
	// Global flags
	configFile string
	env        string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "equindex",
	Short: "Sector/industry equiweighted index generator",
	Long: `equindex Unified CLI

Builds one equal-weighted index per (sector, industry) grouping from daily
closing prices and stores the series in PostgreSQL / TimescaleDB.

Pipeline per grouping:
  S1 RESOLVE → S2 BUILD → S3 COMPUTE → S3 STORE

Usage:
  go run ./cmd/equindex [command]

Examples:
  go run ./cmd/equindex migrate
  go run ./cmd/equindex stocks sync --file stocks.csv
  go run ./cmd/equindex prices import prices.csv
  go run ./cmd/equindex generate --start-date 2024-01-01
  go run ./cmd/equindex api --port 8089`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "index config overlay (YAML, optional)")
	rootCmd.PersistentFlags().StringVar(&env, "env", "", "environment (development|staging|production), overrides ENV")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
}

// loadConfig loads the environment config and applies the global flags
func loadConfig() (*config.Config, error) {
	if env != "" {
		if err := os.Setenv("ENV", env); err != nil {
			return nil, fmt.Errorf("set ENV: %w", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if configFile != "" {
		if err := cfg.LoadIndexOverlay(configFile); err != nil {
			return nil, err
		}
	}

	if verbose {
		cfg.LogLevel = "debug"
	}

	return cfg, nil
}

// app bundles what every database-backed command needs
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	db      *database.DB
	metrics *metrics.Registry
}

// setup loads config, builds the logger and connects to the database.
// withMetrics creates a registry when METRICS_ENABLED is set.
func setup(withMetrics bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	log := logger.New(cfg)

	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	rt := &app{cfg: cfg, log: log, db: db}
	if withMetrics && cfg.MetricsEnabled {
		rt.metrics = metrics.NewRegistry()
	}
	return rt, nil
}

// Close releases the database pool
func (rt *app) Close() {
	rt.db.Close()
}
