package s0_data

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/equindex/internal/contracts"
)

// PriceRepository implements contracts.PriceReader on the stock_prices hypertable
// ⭐ SSOT: close prices are read and written here only
type PriceRepository struct {
	pool      *pgxpool.Pool
	batchSize int
}

// NewPriceRepository creates a new price repository
func NewPriceRepository(pool *pgxpool.Pool, batchSize int) *PriceRepository {
	if batchSize < 1 {
		batchSize = 50
	}
	return &PriceRepository{pool: pool, batchSize: batchSize}
}

// GetPrices returns closes of the given symbols with start <= day <= end, ordered by day then symbol
func (r *PriceRepository) GetPrices(ctx context.Context, symbols []string, start, end time.Time) ([]contracts.PricePoint, error) {
	if len(symbols) == 0 {
		return nil, nil
	}

	query := `
		SELECT time, symbol, close_price
		FROM stock_prices
		WHERE symbol = ANY($1)
		  AND time >= $2 AND time < $3
		ORDER BY time ASC, symbol ASC
	`

	from := contracts.NormalizeDay(start)
	until := contracts.NormalizeDay(end).AddDate(0, 0, 1)

	rows, err := r.pool.Query(ctx, query, symbols, from, until)
	if err != nil {
		return nil, ClassifyError("query prices", err)
	}
	defer rows.Close()

	var points []contracts.PricePoint
	for rows.Next() {
		var p contracts.PricePoint
		if err := rows.Scan(&p.Day, &p.Symbol, &p.Close); err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		p.Day = contracts.NormalizeDay(p.Day)
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, ClassifyError("iterate prices", err)
	}
	return points, nil
}

// UpsertPrices writes points in batches of batchSize. A later write for the same (day, symbol) replaces the close.
// Returns the number of rows written.
func (r *PriceRepository) UpsertPrices(ctx context.Context, points []contracts.PricePoint) (int, error) {
	query := `
		INSERT INTO stock_prices (time, symbol, close_price)
		VALUES ($1, $2, $3)
		ON CONFLICT (time, symbol) DO UPDATE SET
			close_price = EXCLUDED.close_price
	`

	written := 0
	for i := 0; i < len(points); i += r.batchSize {
		end := i + r.batchSize
		if end > len(points) {
			end = len(points)
		}

		batch := &pgx.Batch{}
		for _, p := range points[i:end] {
			batch.Queue(query, contracts.NormalizeDay(p.Day), p.Symbol, p.Close)
		}

		if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
			return written, ClassifyError(fmt.Sprintf("upsert prices batch %d", i/r.batchSize), err)
		}
		written += end - i
	}

	return written, nil
}

// GetPrice returns the close of symbol on day, or ErrNotFound
func (r *PriceRepository) GetPrice(ctx context.Context, symbol string, day time.Time) (*contracts.PricePoint, error) {
	query := `
		SELECT time, symbol, close_price
		FROM stock_prices
		WHERE symbol = $1 AND time = $2
	`

	var p contracts.PricePoint
	err := r.pool.QueryRow(ctx, query, symbol, contracts.NormalizeDay(day)).Scan(&p.Day, &p.Symbol, &p.Close)
	if err != nil {
		return nil, ClassifyError("get price "+symbol, err)
	}
	p.Day = contracts.NormalizeDay(p.Day)
	return &p, nil
}

// GetLatestDay returns the most recent day with a close for symbol, or ErrNotFound
func (r *PriceRepository) GetLatestDay(ctx context.Context, symbol string) (time.Time, error) {
	var latest *time.Time
	err := r.pool.QueryRow(ctx, `SELECT MAX(time) FROM stock_prices WHERE symbol = $1`, symbol).Scan(&latest)
	if err != nil {
		return time.Time{}, ClassifyError("latest day "+symbol, err)
	}
	if latest == nil {
		return time.Time{}, fmt.Errorf("latest day %s: %w", symbol, ErrNotFound)
	}
	return contracts.NormalizeDay(*latest), nil
}

// Stats summarizes the price store
func (r *PriceRepository) Stats(ctx context.Context) (*contracts.PriceStats, error) {
	stats := &contracts.PriceStats{}

	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stocks`).Scan(&stats.TotalStocks); err != nil {
		return nil, ClassifyError("count stocks", err)
	}

	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*), MIN(time), MAX(time)
		FROM stock_prices
	`).Scan(&stats.TotalPriceRecords, &stats.EarliestDay, &stats.LatestDay)
	if err != nil {
		return nil, ClassifyError("price range", err)
	}

	err = r.pool.QueryRow(ctx, `
		SELECT COUNT(DISTINCT symbol)
		FROM stock_prices
		WHERE time >= NOW() - INTERVAL '7 days'
	`).Scan(&stats.RecentStocks)
	if err != nil {
		return nil, ClassifyError("recent stocks", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT symbol, COUNT(*) AS records
		FROM stock_prices
		GROUP BY symbol
		ORDER BY records DESC, symbol ASC
		LIMIT 10
	`)
	if err != nil {
		return nil, ClassifyError("top symbols", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sc contracts.SymbolCount
		if err := rows.Scan(&sc.Symbol, &sc.Records); err != nil {
			return nil, fmt.Errorf("scan symbol count: %w", err)
		}
		stats.TopSymbols = append(stats.TopSymbols, sc)
	}
	return stats, rows.Err()
}
