package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create database tables",
	Long: `Creates the stocks, stock_prices, equiweighted_indices and index_runs tables
with their indexes. When the TimescaleDB extension is available the price and
index tables are converted to hypertables.

Safe to run repeatedly.

Example:
  go run ./cmd/equindex migrate`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	fmt.Println("=== equindex Database Migration ===")

	rt, err := setup(false)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	result, err := rt.db.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	PrintKeyValue("Statements", fmt.Sprint(result.Statements), 12)
	PrintKeyValue("TimescaleDB", fmt.Sprint(result.Timescale), 12)
	PrintKeyValue("Hypertables", fmt.Sprint(result.Hypertables), 12)
	fmt.Println()
	if !result.Timescale {
		PrintInfo("TimescaleDB not available, using plain PostgreSQL tables")
	}
	PrintSuccess("Migration complete")
	return nil
}
