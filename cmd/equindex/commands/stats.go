package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/equindex/internal/s0_data"
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show reference and price statistics",
	Long: `Prints coverage of the stocks table (sector classification, top sectors)
and the price store (records, date range, most covered symbols).

Example:
  go run ./cmd/equindex stats`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	rt, err := setup(false)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ref, err := s0_data.NewStockRepository(rt.db.Pool, rt.cfg.Index.BatchSize).ReferenceStats(ctx)
	if err != nil {
		return fmt.Errorf("reference stats: %w", err)
	}
	prices, err := s0_data.NewPriceRepository(rt.db.Pool, rt.cfg.Index.BatchSize).Stats(ctx)
	if err != nil {
		return fmt.Errorf("price stats: %w", err)
	}

	fmt.Println("📊 Reference Data")
	PrintKeyValue("Stocks", fmt.Sprint(ref.TotalStocks), 16)
	PrintKeyValue("With sector", fmt.Sprint(ref.StocksWithSector), 16)
	PrintKeyValue("Sectors", fmt.Sprint(ref.UniqueSectors), 16)
	PrintKeyValue("Industries", fmt.Sprint(ref.UniqueIndustries), 16)
	if len(ref.TopSectors) > 0 {
		fmt.Println()
		widths := []int{40, 8}
		PrintTableHeader([]string{"SECTOR", "STOCKS"}, widths)
		for _, s := range ref.TopSectors {
			PrintTableRow([]string{s.Sector, fmt.Sprint(s.Count)}, widths)
		}
	}

	fmt.Println()
	fmt.Println("📊 Prices")
	PrintKeyValue("Symbols", fmt.Sprint(prices.TotalStocks), 16)
	PrintKeyValue("Records", fmt.Sprint(prices.TotalPriceRecords), 16)
	if prices.EarliestDay != nil && prices.LatestDay != nil {
		PrintKeyValue("Range", formatDay(*prices.EarliestDay)+" ~ "+formatDay(*prices.LatestDay), 16)
	}
	PrintKeyValue("Active (7 days)", fmt.Sprint(prices.RecentStocks), 16)
	if len(prices.TopSymbols) > 0 {
		fmt.Println()
		widths := []int{20, 8}
		PrintTableHeader([]string{"SYMBOL", "RECORDS"}, widths)
		for _, s := range prices.TopSymbols {
			PrintTableRow([]string{s.Symbol, fmt.Sprint(s.Records)}, widths)
		}
	}
	return nil
}
