package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wonny/equindex/internal/contracts"
	"github.com/wonny/equindex/internal/metrics"
	"github.com/wonny/equindex/internal/s0_data"
	"github.com/wonny/equindex/pkg/logger"
)

// ErrNoSymbols is returned when there is nothing to collect
var ErrNoSymbols = errors.New("no symbols to collect")

// PriceSource fetches daily closes for one symbol
type PriceSource interface {
	Name() string
	FetchPrices(ctx context.Context, symbol string, from, to time.Time) ([]contracts.PricePoint, error)
}

// PriceStore is the part of the price repository the collector writes through
type PriceStore interface {
	GetLatestDay(ctx context.Context, symbol string) (time.Time, error)
	UpsertPrices(ctx context.Context, points []contracts.PricePoint) (int, error)
}

// SymbolLister lists the symbols to collect
type SymbolLister interface {
	ListAllSymbols(ctx context.Context) ([]string, error)
}

// Collector keeps stock_prices current from a PriceSource
// ⭐ SSOT: price ingestion from external sources happens here only
type Collector struct {
	source  PriceSource
	symbols SymbolLister
	store   PriceStore
	config  Config
	metrics *metrics.Registry
	logger  *logger.Logger
	now     func() time.Time
}

// Config holds collector configuration
type Config struct {
	Workers       int           // Number of concurrent workers
	HistoryDays   int           // window for symbols with no stored closes
	SymbolTimeout time.Duration // per-symbol fetch + write budget, 0 = none
}

// NewCollector creates a new Collector instance
func NewCollector(source PriceSource, symbols SymbolLister, store PriceStore, cfg Config, reg *metrics.Registry, log *logger.Logger) *Collector {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.HistoryDays < 1 {
		cfg.HistoryDays = 365
	}
	return &Collector{
		source:  source,
		symbols: symbols,
		store:   store,
		config:  cfg,
		metrics: reg,
		logger:  log.WithField("module", "collector"),
		now:     time.Now,
	}
}

// FetchResult represents the result of one symbol
type FetchResult struct {
	Symbol   string
	From     time.Time
	To       time.Time
	Fetched  int
	Written  int
	UpToDate bool
	Error    error
}

// Result summarizes one collection pass
type Result struct {
	Symbols  int
	Updated  int
	UpToDate int
	Failed   int
	Written  int
	Results  []FetchResult
	Duration time.Duration
}

// Errors returns the failed symbols with their error text
func (r *Result) Errors() map[string]string {
	out := make(map[string]string, r.Failed)
	for _, fr := range r.Results {
		if fr.Error != nil {
			out[fr.Symbol] = fr.Error.Error()
		}
	}
	return out
}

// window decides the days to fetch for one symbol
type window func(ctx context.Context, symbol string, today time.Time) (from, to time.Time, err error)

// Update fetches only the days after each symbol's latest stored close, up to today.
// Symbols with no stored close get the last HistoryDays days.
// An empty symbols list means every stored symbol.
func (c *Collector) Update(ctx context.Context, symbols []string) (*Result, error) {
	return c.collect(ctx, "update", symbols, c.incrementalWindow)
}

// Backfill fetches [from, to] for every symbol, replacing stored closes on overlap
func (c *Collector) Backfill(ctx context.Context, symbols []string, from, to time.Time) (*Result, error) {
	from, to = contracts.NormalizeDay(from), contracts.NormalizeDay(to)
	if to.Before(from) {
		return nil, fmt.Errorf("backfill: end %s before start %s", to.Format(contracts.DateLayout), from.Format(contracts.DateLayout))
	}
	return c.collect(ctx, "backfill", symbols, func(context.Context, string, time.Time) (time.Time, time.Time, error) {
		return from, to, nil
	})
}

func (c *Collector) incrementalWindow(ctx context.Context, symbol string, today time.Time) (time.Time, time.Time, error) {
	latest, err := c.store.GetLatestDay(ctx, symbol)
	switch {
	case err == nil:
		return latest.AddDate(0, 0, 1), today, nil
	case errors.Is(err, s0_data.ErrNotFound):
		return today.AddDate(0, 0, -c.config.HistoryDays), today, nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("latest day: %w", err)
	}
}

// collect runs a worker pool over symbols. It fails only when every attempted symbol failed
// or ctx ended; otherwise failures are reported per symbol.
func (c *Collector) collect(ctx context.Context, mode string, symbols []string, win window) (*Result, error) {
	start := time.Now()

	if len(symbols) == 0 {
		all, err := c.symbols.ListAllSymbols(ctx)
		if err != nil {
			return nil, fmt.Errorf("list symbols: %w", err)
		}
		symbols = all
	}
	if len(symbols) == 0 {
		return nil, ErrNoSymbols
	}

	today := contracts.NormalizeDay(c.now())

	c.logger.WithFields(map[string]interface{}{
		"mode":    mode,
		"source":  c.source.Name(),
		"symbols": len(symbols),
		"workers": c.config.Workers,
	}).Info("Starting price collection")

	resultCh := make(chan FetchResult, len(symbols))
	symbolCh := make(chan string, len(symbols))
	for _, s := range symbols {
		symbolCh <- s
	}
	close(symbolCh)

	var wg sync.WaitGroup
	for i := 0; i < c.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			c.worker(ctx, workerID, symbolCh, resultCh, today, win)
		}(i)
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	result := &Result{Symbols: len(symbols), Results: make([]FetchResult, 0, len(symbols))}
	var lastErr error
	for fr := range resultCh {
		result.Results = append(result.Results, fr)
		switch {
		case fr.Error != nil:
			result.Failed++
			lastErr = fr.Error
		case fr.UpToDate:
			result.UpToDate++
		default:
			result.Updated++
			result.Written += fr.Written
		}
	}
	result.Duration = time.Since(start)

	c.logger.WithFields(map[string]interface{}{
		"mode":       mode,
		"updated":    result.Updated,
		"up_to_date": result.UpToDate,
		"failed":     result.Failed,
		"written":    result.Written,
		"duration":   result.Duration.Seconds(),
	}).Info("Price collection completed")

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("price %s interrupted: %w", mode, err)
	}
	if result.Failed > 0 && result.Failed == result.Symbols {
		return result, fmt.Errorf("all %d symbols failed: %w", result.Failed, lastErr)
	}
	return result, nil
}

// worker drains symbolCh; once ctx ends the remaining symbols are reported as cancelled
func (c *Collector) worker(ctx context.Context, workerID int, symbolCh <-chan string, resultCh chan<- FetchResult, today time.Time, win window) {
	for symbol := range symbolCh {
		if err := ctx.Err(); err != nil {
			resultCh <- FetchResult{Symbol: symbol, Error: err}
			continue
		}

		fr := c.collectSymbol(ctx, symbol, today, win)
		if fr.Error != nil {
			c.logger.WithError(fr.Error).WithFields(map[string]interface{}{
				"worker": workerID,
				"symbol": symbol,
			}).Warn("Failed to collect prices")
		}
		resultCh <- fr
	}
}

func (c *Collector) collectSymbol(ctx context.Context, symbol string, today time.Time, win window) FetchResult {
	if c.config.SymbolTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.SymbolTimeout)
		defer cancel()
	}

	from, to, err := win(ctx, symbol, today)
	fr := FetchResult{Symbol: symbol, From: from, To: to}
	if err != nil {
		fr.Error = err
		return fr
	}
	if from.After(to) {
		fr.UpToDate = true
		return fr
	}

	points, err := c.source.FetchPrices(ctx, symbol, from, to)
	if err != nil {
		c.metrics.RecordPriceFetch(c.source.Name(), false, 0)
		fr.Error = err
		return fr
	}
	fr.Fetched = len(points)

	if len(points) > 0 {
		written, err := c.store.UpsertPrices(ctx, points)
		fr.Written = written
		if err != nil {
			c.metrics.RecordPriceFetch(c.source.Name(), false, written)
			fr.Error = fmt.Errorf("save prices: %w", err)
			return fr
		}
	}
	c.metrics.RecordPriceFetch(c.source.Name(), true, fr.Written)

	c.logger.WithFields(map[string]interface{}{
		"symbol":  symbol,
		"from":    from.Format(contracts.DateLayout),
		"to":      to.Format(contracts.DateLayout),
		"written": fr.Written,
	}).Debug("Collected prices")
	return fr
}
