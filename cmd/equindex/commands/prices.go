package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/equindex/internal/contracts"
	"github.com/wonny/equindex/internal/s0_data"
	"github.com/wonny/equindex/internal/s0_data/collector"
	"github.com/wonny/equindex/pkg/httputil"
)

// pricesCmd represents the prices command
var pricesCmd = &cobra.Command{
	Use:   "prices",
	Short: "Manage daily close prices",
}

var pricesImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import close prices from CSV",
	Long: `Upserts daily close prices from a CSV file with the header
date,symbol,close (date as YYYY-MM-DD). Existing (symbol, date) rows are replaced.

Example:
  go run ./cmd/equindex prices import prices.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runPricesImport,
}

var pricesUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Fetch closes missing since each symbol's latest stored day",
	Long: `Fetches daily closes from PRICES_SOURCE_URL for every stored symbol
(or only --symbols), starting the day after the latest stored close.
Symbols with no stored close get the last PRICES_HISTORY_DAYS days.

Example:
  go run ./cmd/equindex prices update
  go run ./cmd/equindex prices update --symbols TCS.NS,INFY.NS`,
	RunE: runPricesUpdate,
}

var pricesHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Load closes for a fixed date range",
	Long: `Fetches and upserts closes with start <= date <= end for every stored
symbol (or only --symbols), replacing stored closes on overlap.

Example:
  go run ./cmd/equindex prices history --start-date 2023-01-01 --end-date 2023-12-31`,
	RunE: runPricesHistory,
}

var pricesLatestCmd = &cobra.Command{
	Use:   "latest SYMBOL",
	Short: "Show the latest stored close of a symbol",
	Args:  cobra.ExactArgs(1),
	RunE:  runPricesLatest,
}

var (
	priceSymbols   []string
	priceWorkers   int
	priceStartDate string
	priceEndDate   string
)

func init() {
	rootCmd.AddCommand(pricesCmd)
	pricesCmd.AddCommand(pricesImportCmd)
	pricesCmd.AddCommand(pricesUpdateCmd)
	pricesCmd.AddCommand(pricesHistoryCmd)
	pricesCmd.AddCommand(pricesLatestCmd)

	for _, c := range []*cobra.Command{pricesUpdateCmd, pricesHistoryCmd} {
		c.Flags().StringSliceVar(&priceSymbols, "symbols", nil, "Comma separated symbols (default: every stored symbol)")
		c.Flags().IntVar(&priceWorkers, "workers", 0, "Concurrent fetches (default: PRICES_WORKERS)")
	}
	pricesHistoryCmd.Flags().StringVar(&priceStartDate, "start-date", "", "First day, YYYY-MM-DD (required)")
	pricesHistoryCmd.Flags().StringVar(&priceEndDate, "end-date", "", "Last day, YYYY-MM-DD (default: today)")
	_ = pricesHistoryCmd.MarkFlagRequired("start-date")
}

// newCollector wires the configured chart source to the price and stock repositories
func newCollector(rt *app, client *httputil.Client, stocks *s0_data.StockRepository) *collector.Collector {
	source := collector.NewChartSource(rt.cfg.Prices.SourceName, rt.cfg.Prices.SourceURL, client, collector.DefaultBreakerConfig)
	prices := s0_data.NewPriceRepository(rt.db.Pool, rt.cfg.Index.BatchSize)
	cfg := collector.Config{
		Workers:       rt.cfg.Prices.Workers,
		HistoryDays:   rt.cfg.Prices.HistoryDays,
		SymbolTimeout: rt.cfg.Prices.SymbolTimeout,
	}
	if priceWorkers > 0 {
		cfg.Workers = priceWorkers
	}
	return collector.NewCollector(source, stocks, prices, cfg, rt.metrics, rt.log)
}

func runPricesUpdate(cmd *cobra.Command, args []string) error {
	return collectPrices("Price Update", func(ctx context.Context, c *collector.Collector) (*collector.Result, error) {
		return c.Update(ctx, priceSymbols)
	})
}

func runPricesHistory(cmd *cobra.Command, args []string) error {
	start, err := parseDay(priceStartDate)
	if err != nil {
		return fmt.Errorf("invalid --start-date: %w", err)
	}
	end, err := parseDay(priceEndDate)
	if err != nil {
		return fmt.Errorf("invalid --end-date: %w", err)
	}
	if end.IsZero() {
		end = contracts.NormalizeDay(time.Now())
	}

	return collectPrices("Price History", func(ctx context.Context, c *collector.Collector) (*collector.Result, error) {
		return c.Backfill(ctx, priceSymbols, start, end)
	})
}

func collectPrices(title string, run func(context.Context, *collector.Collector) (*collector.Result, error)) error {
	rt, err := setup(false)
	if err != nil {
		return err
	}
	defer rt.Close()

	c := newCollector(rt, httputil.New(rt.cfg, rt.log), s0_data.NewStockRepository(rt.db.Pool, rt.cfg.Index.BatchSize))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	PrintDoubleSeparator()
	fmt.Printf("  %s (%s)\n", title, rt.cfg.Prices.SourceName)
	PrintDoubleSeparator()

	result, err := run(ctx, c)
	if result != nil {
		printCollectResult(result)
	}
	if err != nil {
		if errors.Is(err, collector.ErrNoSymbols) {
			PrintWarning("No symbols stored; run 'stocks sync' first")
		}
		return err
	}
	PrintSuccess(fmt.Sprintf("%d closes written", result.Written))
	return nil
}

func printCollectResult(r *collector.Result) {
	PrintKeyValue("Symbols", fmt.Sprint(r.Symbols), 11)
	PrintKeyValue("Updated", fmt.Sprint(r.Updated), 11)
	PrintKeyValue("Up to date", fmt.Sprint(r.UpToDate), 11)
	PrintKeyValue("Failed", fmt.Sprint(r.Failed), 11)
	PrintKeyValue("Written", fmt.Sprint(r.Written), 11)
	PrintKeyValue("Duration", r.Duration.Round(time.Millisecond).String(), 11)

	errs := r.Errors()
	if len(errs) == 0 {
		fmt.Println()
		return
	}
	symbols := make([]string, 0, len(errs))
	for s := range errs {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	fmt.Println()
	PrintSeparator()
	for _, s := range symbols {
		PrintError(fmt.Sprintf("%s: %s", s, errs[s]))
	}
	fmt.Println()
}

func runPricesLatest(cmd *cobra.Command, args []string) error {
	symbol := args[0]

	rt, err := setup(false)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo := s0_data.NewPriceRepository(rt.db.Pool, rt.cfg.Index.BatchSize)
	latest, err := repo.GetLatestDay(ctx, symbol)
	if errors.Is(err, s0_data.ErrNotFound) {
		PrintWarning(fmt.Sprintf("No closes stored for %s", symbol))
		return nil
	}
	if err != nil {
		return err
	}

	p, err := repo.GetPrice(ctx, symbol, latest)
	if err != nil {
		return err
	}

	PrintKeyValue("Symbol", p.Symbol, 7)
	PrintKeyValue("Date", formatDay(p.Day), 7)
	PrintKeyValue("Close", p.Close.StringFixed(4), 7)
	return nil
}

func runPricesImport(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open %s: %w", args[0], err)
	}
	defer f.Close()

	points, err := s0_data.ReadPriceCSV(f)
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}

	rt, err := setup(false)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	start := time.Now()
	n, err := s0_data.NewPriceRepository(rt.db.Pool, rt.cfg.Index.BatchSize).UpsertPrices(ctx, points)
	if err != nil {
		return fmt.Errorf("upsert prices: %w", err)
	}

	PrintKeyValue("Rows read", fmt.Sprint(len(points)), 10)
	PrintKeyValue("Upserted", fmt.Sprint(n), 10)
	PrintKeyValue("Duration", time.Since(start).Round(time.Millisecond).String(), 10)
	fmt.Println()
	PrintSuccess(fmt.Sprintf("Imported %s", args[0]))
	return nil
}
