package database

import (
	"context"
	"fmt"
)

// schema is applied in order; every statement is idempotent
var schema = []string{
	`CREATE TABLE IF NOT EXISTS stocks (
		id           SERIAL PRIMARY KEY,
		symbol       VARCHAR(20) UNIQUE NOT NULL,
		company_name VARCHAR(255),
		sector       VARCHAR(100),
		industry     VARCHAR(100),
		market_cap   BIGINT,
		created_at   TIMESTAMPTZ DEFAULT NOW(),
		updated_at   TIMESTAMPTZ DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stocks_sector_industry ON stocks (sector, industry)`,

	`CREATE TABLE IF NOT EXISTS stock_prices (
		time        TIMESTAMPTZ NOT NULL,
		symbol      VARCHAR(20) NOT NULL,
		close_price DECIMAL(12,4) NOT NULL,
		created_at  TIMESTAMPTZ DEFAULT NOW(),
		PRIMARY KEY (time, symbol)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_prices_symbol_time ON stock_prices (symbol, time DESC)`,

	`CREATE TABLE IF NOT EXISTS equiweighted_indices (
		time              TIMESTAMPTZ NOT NULL,
		index_name        VARCHAR(100) NOT NULL,
		index_type        VARCHAR(20) NOT NULL,
		index_value       DECIMAL(16,4) NOT NULL,
		constituent_count INTEGER NOT NULL,
		created_at        TIMESTAMPTZ DEFAULT NOW(),
		PRIMARY KEY (time, index_name)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_equiweighted_indices_name ON equiweighted_indices (index_name, time)`,
	`CREATE INDEX IF NOT EXISTS idx_equiweighted_indices_type ON equiweighted_indices (index_type)`,

	`CREATE TABLE IF NOT EXISTS index_runs (
		run_id      VARCHAR(64) PRIMARY KEY,
		status      VARCHAR(20) NOT NULL,
		start_date  DATE NOT NULL,
		end_date    DATE NOT NULL,
		started_at  TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ,
		succeeded   INTEGER NOT NULL DEFAULT 0,
		skipped     INTEGER NOT NULL DEFAULT 0,
		failed      INTEGER NOT NULL DEFAULT 0,
		error       TEXT,
		outcomes    JSONB NOT NULL DEFAULT '[]'::jsonb
	)`,
	`CREATE INDEX IF NOT EXISTS idx_index_runs_started_at ON index_runs (started_at DESC)`,
}

// hypertables are created only when the timescaledb extension is installed
var hypertables = []string{
	`SELECT create_hypertable('stock_prices', 'time', chunk_time_interval => INTERVAL '1 day', if_not_exists => TRUE)`,
	`SELECT create_hypertable('equiweighted_indices', 'time', if_not_exists => TRUE)`,
}

// MigrationResult reports what Migrate did
type MigrationResult struct {
	Statements  int
	Timescale   bool
	Hypertables int
}

// Migrate creates the schema. Plain PostgreSQL works; TimescaleDB adds hypertables.
func (db *DB) Migrate(ctx context.Context) (*MigrationResult, error) {
	result := &MigrationResult{}

	for i, stmt := range schema {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return result, fmt.Errorf("migration statement %d: %w", i+1, err)
		}
		result.Statements++
	}

	timescale, err := db.HasTimescale(ctx)
	if err != nil {
		return result, err
	}
	result.Timescale = timescale
	if !timescale {
		return result, nil
	}

	for _, stmt := range hypertables {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return result, fmt.Errorf("create hypertable: %w", err)
		}
		result.Hypertables++
	}

	return result, nil
}

// HasTimescale reports whether the timescaledb extension is installed
func (db *DB) HasTimescale(ctx context.Context) (bool, error) {
	var exists bool
	err := db.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'timescaledb')`,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check timescaledb extension: %w", err)
	}
	return exists, nil
}
