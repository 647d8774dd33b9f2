package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/equindex/internal/brain"
	"github.com/wonny/equindex/internal/contracts"
)

// generateCmd represents the generate command
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate all sector/industry indices",
	Long: `Runs the index pipeline synchronously over every eligible grouping.

Each grouping goes through:
  S1 RESOLVE  - constituent symbols from the stocks table
  S2 BUILD    - aligned close-price matrix
  S3 COMPUTE  - equiweighted series anchored at the base value
  S3 STORE    - transactional upsert into equiweighted_indices

Without dates the range ends today and starts INDEX_LOOKBACK_DAYS earlier.
Ctrl+C stops after the groupings already started have finished.

Example:
  go run ./cmd/equindex generate
  go run ./cmd/equindex generate --start-date 2024-01-01 --end-date 2024-06-30
  go run ./cmd/equindex generate --workers 4`,
	RunE: runGenerate,
}

var (
	generateStart   string
	generateEnd     string
	generateWorkers int
)

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringVar(&generateStart, "start-date", "", "first day (YYYY-MM-DD)")
	generateCmd.Flags().StringVar(&generateEnd, "end-date", "", "last day (YYYY-MM-DD)")
	generateCmd.Flags().IntVar(&generateWorkers, "workers", 0, "concurrent groupings (default INDEX_WORKERS)")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	start, err := parseDay(generateStart)
	if err != nil {
		return err
	}
	end, err := parseDay(generateEnd)
	if err != nil {
		return err
	}

	rt, err := setup(false)
	if err != nil {
		return err
	}
	defer rt.Close()

	if generateWorkers > 0 {
		rt.cfg.Index.Workers = generateWorkers
	}

	orchestrator := brain.NewFromPool(rt.db.Pool, rt.cfg.Index, rt.metrics, rt.log)
	start, end = orchestrator.Range(start, end)

	PrintRunHeader("Equiweighted Index Generation", &Period{
		StartDate: formatDay(start),
		EndDate:   formatDay(end),
	})
	PrintKeyValue("Workers", fmt.Sprint(rt.cfg.Index.Workers), 10)
	PrintKeyValue("Min size", fmt.Sprint(rt.cfg.Index.MinConstituents), 10)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := orchestrator.Run(ctx, brain.RunConfig{Start: start, End: end})
	if summary != nil {
		PrintRunSummary(summary)
	}
	if err != nil {
		fmt.Println()
		PrintError(fmt.Sprintf("Run %s", contracts.RunAborted))
		return fmt.Errorf("generate indices: %w", err)
	}

	fmt.Println()
	if summary.Tally.Failed > 0 {
		PrintWarning(fmt.Sprintf("%d grouping(s) failed", summary.Tally.Failed))
		return nil
	}
	PrintSuccess(fmt.Sprintf("Generated %d index(es)", summary.Tally.Success))
	return nil
}
