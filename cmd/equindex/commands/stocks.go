package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/equindex/internal/refdata"
	"github.com/wonny/equindex/internal/s0_data"
	"github.com/wonny/equindex/pkg/httputil"
)

// stocksCmd represents the stocks command
var stocksCmd = &cobra.Command{
	Use:   "stocks",
	Short: "Manage stock reference data",
}

var stocksSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync sector/industry classification",
	Long: `Fetches reference data from every configured source, merges it
(first non-empty field wins in source order) and upserts the stocks table.

Sources, in priority order:
  --file                 local CSV (symbol,company_name,sector,industry,market_cap)
  REFDATA_SOURCE_URLS    index-constituent CSV lists (Company Name,Industry,Symbol)

Example:
  go run ./cmd/equindex stocks sync
  go run ./cmd/equindex stocks sync --file stocks.csv`,
	Args: cobra.NoArgs,
	RunE: runStocksSync,
}

var stocksFile string

func init() {
	rootCmd.AddCommand(stocksCmd)
	stocksCmd.AddCommand(stocksSyncCmd)

	stocksSyncCmd.Flags().StringVar(&stocksFile, "file", "", "local reference CSV (highest priority)")
}

func runStocksSync(cmd *cobra.Command, args []string) error {
	rt, err := setup(false)
	if err != nil {
		return err
	}
	defer rt.Close()

	client := httputil.New(rt.cfg, rt.log)
	sources := refdata.NewSources(rt.cfg, client, stocksFile)
	if len(sources) == 0 {
		PrintWarning("No reference sources: pass --file or set REFDATA_SOURCE_URLS")
		return refdata.ErrNoSources
	}

	PrintRunHeader("Reference Data Sync", nil)

	stocks := s0_data.NewStockRepository(rt.db.Pool, rt.cfg.Index.BatchSize)
	syncer := refdata.NewSyncer(sources, stocks, nil, rt.log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	result, err := syncer.Sync(ctx)
	if result != nil {
		widths := []int{32, 8, 40}
		PrintTableHeader([]string{"SOURCE", "STOCKS", "ERROR"}, widths)
		for _, s := range result.Sources {
			PrintTableRow([]string{s.Name, fmt.Sprint(s.Stocks), s.Error}, widths)
		}
		fmt.Println()
	}
	if err != nil {
		return fmt.Errorf("sync stocks: %w", err)
	}

	PrintKeyValue("Merged", fmt.Sprint(result.Merged), 10)
	PrintKeyValue("Classified", fmt.Sprint(result.Classified), 10)
	PrintKeyValue("Upserted", fmt.Sprint(result.Upserted), 10)
	PrintKeyValue("Duration", result.Duration.Round(time.Millisecond).String(), 10)
	fmt.Println()
	PrintSuccess("Reference data synced")
	return nil
}
