package brain

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/equindex/internal/metrics"
	"github.com/wonny/equindex/internal/s0_data"
	"github.com/wonny/equindex/internal/s1_constituents"
	"github.com/wonny/equindex/internal/s2_matrix"
	"github.com/wonny/equindex/internal/s3_index"
	"github.com/wonny/equindex/pkg/config"
	"github.com/wonny/equindex/pkg/logger"
)

// ConfigFromIndex maps the index section of the application config
func ConfigFromIndex(ic config.IndexConfig) Config {
	return Config{
		IndexType:       ic.IndexType,
		BaseValue:       ic.BaseValue,
		Workers:         ic.Workers,
		StoreRetries:    ic.StoreRetries,
		StoreRetryDelay: ic.StoreRetryDelay,
		LookbackDays:    ic.LookbackDays,
	}
}

// NewFromPool wires the Postgres-backed pipeline: repositories, stage components and orchestrator.
// Every stage borrows connections from pool per call; nothing holds a session across groupings.
func NewFromPool(pool *pgxpool.Pool, ic config.IndexConfig, reg *metrics.Registry, log *logger.Logger) *Orchestrator {
	stocks := s0_data.NewStockRepository(pool, ic.BatchSize)
	prices := s0_data.NewPriceRepository(pool, ic.BatchSize)

	resolver := s1_constituents.NewResolver(stocks, s1_constituents.Config{
		MinConstituents: ic.MinConstituents,
	}, log)
	builder := s2_matrix.NewBuilder(prices, s2_matrix.Config{
		MinConstituents: ic.MinConstituents,
		MaxMissingRatio: ic.MaxMissingRatio,
	}, log)

	return NewOrchestrator(
		resolver,
		builder,
		s3_index.NewCalculator(),
		s3_index.NewIndexRepository(pool),
		s3_index.NewRunRepository(pool),
		reg,
		ConfigFromIndex(ic),
		log,
	)
}
