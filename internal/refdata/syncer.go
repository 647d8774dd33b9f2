package refdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wonny/equindex/internal/contracts"
	"github.com/wonny/equindex/internal/metrics"
	"github.com/wonny/equindex/pkg/config"
	"github.com/wonny/equindex/pkg/httputil"
	"github.com/wonny/equindex/pkg/logger"
)

// ErrNoSources is returned when a sync has nothing to read
var ErrNoSources = errors.New("no reference data sources configured")

// StockWriter persists merged reference data
type StockWriter interface {
	UpsertStocks(ctx context.Context, stocks []contracts.Stock) (int, error)
}

// Syncer fetches every source, merges the results and upserts the stocks table
type Syncer struct {
	sources []Source
	store   StockWriter
	metrics *metrics.Registry
	logger  *logger.Logger
}

// SyncResult summarizes one sync
type SyncResult struct {
	Sources    []SourceReport `json:"sources"`
	Merged     int            `json:"merged"`
	Classified int            `json:"classified"`
	Upserted   int            `json:"upserted"`
	Duration   time.Duration  `json:"duration"`
}

// SourceReport is the per-source part of a SyncResult
type SourceReport struct {
	Name   string `json:"name"`
	Stocks int    `json:"stocks"`
	Error  string `json:"error,omitempty"`
}

// NewSyncer creates a syncer over sources in priority order
func NewSyncer(sources []Source, store StockWriter, reg *metrics.Registry, log *logger.Logger) *Syncer {
	return &Syncer{
		sources: sources,
		store:   store,
		metrics: reg,
		logger:  log.WithComponent("refdata"),
	}
}

// NewSources builds the configured HTTP sources, preceded by filePath when given
func NewSources(cfg *config.Config, client *httputil.Client, filePath string) []Source {
	sources := make([]Source, 0, len(cfg.RefData.SourceURLs)+1)
	if filePath != "" {
		sources = append(sources, NewFileSource(filePath, cfg.RefData.DefaultSector, cfg.RefData.SymbolSuffix))
	}
	for _, u := range cfg.RefData.SourceURLs {
		sources = append(sources, NewCSVSource("", u, client,
			cfg.RefData.DefaultSector, cfg.RefData.SymbolSuffix, DefaultBreakerConfig))
	}
	return sources
}

// Sync fetches all sources concurrently and upserts the merged stocks.
// A failing source is reported and skipped; the sync fails only when every source fails.
func (s *Syncer) Sync(ctx context.Context) (*SyncResult, error) {
	if len(s.sources) == 0 {
		return nil, ErrNoSources
	}

	start := time.Now()
	results := make([]SourceResult, len(s.sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range s.sources {
		g.Go(func() error {
			stocks, err := src.Fetch(gctx)
			results[i] = SourceResult{Source: src.Name(), Stocks: stocks, Err: err}
			s.metrics.RecordRefDataFetch(src.Name(), err == nil)
			return nil
		})
	}
	_ = g.Wait()

	result := &SyncResult{Sources: make([]SourceReport, 0, len(results))}
	failed := 0
	var lastErr error
	for _, res := range results {
		report := SourceReport{Name: res.Source, Stocks: len(res.Stocks)}
		if res.Err != nil {
			failed++
			lastErr = res.Err
			report.Error = res.Err.Error()
			s.logger.WithError(res.Err).WithField("source", res.Source).Warn("Reference source failed")
		}
		result.Sources = append(result.Sources, report)
	}
	if failed == len(results) {
		return result, fmt.Errorf("all %d reference sources failed: %w", failed, lastErr)
	}

	merged := Merge(results...)
	result.Merged = len(merged)
	for _, st := range merged {
		if st.IsClassified() {
			result.Classified++
		}
	}

	upserted, err := s.store.UpsertStocks(ctx, merged)
	if err != nil {
		return result, fmt.Errorf("upsert stocks: %w", err)
	}
	result.Upserted = upserted
	result.Duration = time.Since(start)

	s.logger.WithFields(map[string]interface{}{
		"sources":    len(results),
		"failed":     failed,
		"merged":     result.Merged,
		"classified": result.Classified,
		"upserted":   upserted,
		"duration":   result.Duration.Seconds(),
	}).Info("Reference data synced")

	return result, nil
}
