package s0_data

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/equindex/internal/contracts"
)

// StockRepository implements contracts.GroupingReader on the stocks table
// ⭐ SSOT: sector/industry reference data is read and written here only
type StockRepository struct {
	pool      *pgxpool.Pool
	batchSize int
}

// NewStockRepository creates a new stock repository
func NewStockRepository(pool *pgxpool.Pool, batchSize int) *StockRepository {
	if batchSize < 1 {
		batchSize = 50
	}
	return &StockRepository{pool: pool, batchSize: batchSize}
}

// ListGroupings returns (sector, industry) pairs with at least minSize members,
// ordered by sector then industry. Stocks with empty or NULL sector/industry never form a grouping.
func (r *StockRepository) ListGroupings(ctx context.Context, minSize int) ([]contracts.Grouping, error) {
	query := `
		SELECT sector, industry, COUNT(*) AS member_count
		FROM stocks
		WHERE sector IS NOT NULL AND sector != ''
		  AND industry IS NOT NULL AND industry != ''
		GROUP BY sector, industry
		HAVING COUNT(*) >= $1
		ORDER BY sector, industry
	`

	rows, err := r.pool.Query(ctx, query, minSize)
	if err != nil {
		return nil, ClassifyError("list groupings", err)
	}
	defer rows.Close()

	var groupings []contracts.Grouping
	for rows.Next() {
		var g contracts.Grouping
		if err := rows.Scan(&g.Sector, &g.Industry, &g.MemberCount); err != nil {
			return nil, fmt.Errorf("scan grouping: %w", err)
		}
		groupings = append(groupings, g)
	}
	if err := rows.Err(); err != nil {
		return nil, ClassifyError("iterate groupings", err)
	}
	return groupings, nil
}

// ListSymbols returns the symbols of an exact (case-sensitive) sector/industry match, sorted
func (r *StockRepository) ListSymbols(ctx context.Context, sector, industry string) ([]string, error) {
	query := `
		SELECT symbol
		FROM stocks
		WHERE sector = $1 AND industry = $2
		ORDER BY symbol
	`

	rows, err := r.pool.Query(ctx, query, sector, industry)
	if err != nil {
		return nil, ClassifyError("list symbols", err)
	}
	defer rows.Close()

	symbols, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, ClassifyError("collect symbols", err)
	}
	return symbols, nil
}

// UpsertStocks inserts or updates stocks by symbol.
// Empty incoming fields never overwrite stored values.
func (r *StockRepository) UpsertStocks(ctx context.Context, stocks []contracts.Stock) (int, error) {
	query := `
		INSERT INTO stocks (symbol, company_name, sector, industry, market_cap, updated_at)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), NULLIF($5::bigint, 0), NOW())
		ON CONFLICT (symbol) DO UPDATE SET
			company_name = COALESCE(EXCLUDED.company_name, stocks.company_name),
			sector       = COALESCE(EXCLUDED.sector, stocks.sector),
			industry     = COALESCE(EXCLUDED.industry, stocks.industry),
			market_cap   = COALESCE(EXCLUDED.market_cap, stocks.market_cap),
			updated_at   = NOW()
	`

	written := 0
	for i := 0; i < len(stocks); i += r.batchSize {
		end := i + r.batchSize
		if end > len(stocks) {
			end = len(stocks)
		}

		batch := &pgx.Batch{}
		for _, s := range stocks[i:end] {
			batch.Queue(query, s.Symbol, s.CompanyName, s.Sector, s.Industry, s.MarketCap)
		}

		if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
			return written, ClassifyError(fmt.Sprintf("upsert stocks batch %d", i/r.batchSize), err)
		}
		written += end - i
	}

	return written, nil
}

// ListSectors returns distinct non-empty sectors
func (r *StockRepository) ListSectors(ctx context.Context) ([]string, error) {
	return r.listStrings(ctx, "list sectors", `
		SELECT DISTINCT sector
		FROM stocks
		WHERE sector IS NOT NULL AND sector != ''
		ORDER BY sector
	`)
}

// ListIndustries returns distinct non-empty industries, optionally within one sector
func (r *StockRepository) ListIndustries(ctx context.Context, sector string) ([]string, error) {
	if sector == "" {
		return r.listStrings(ctx, "list industries", `
			SELECT DISTINCT industry
			FROM stocks
			WHERE industry IS NOT NULL AND industry != ''
			ORDER BY industry
		`)
	}
	return r.listStrings(ctx, "list industries", `
		SELECT DISTINCT industry
		FROM stocks
		WHERE sector = $1 AND industry IS NOT NULL AND industry != ''
		ORDER BY industry
	`, sector)
}

// ListAllSymbols returns every stored symbol, sorted
func (r *StockRepository) ListAllSymbols(ctx context.Context) ([]string, error) {
	return r.listStrings(ctx, "list all symbols", `SELECT symbol FROM stocks ORDER BY symbol`)
}

func (r *StockRepository) listStrings(ctx context.Context, op, query string, args ...interface{}) ([]string, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, ClassifyError(op, err)
	}
	defer rows.Close()

	out, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, ClassifyError(op, err)
	}
	return out, nil
}

const stockColumns = `
	symbol,
	COALESCE(company_name, ''),
	COALESCE(sector, ''),
	COALESCE(industry, ''),
	COALESCE(market_cap, 0),
	COALESCE(updated_at, created_at, NOW())
`

// displayOrder sorts by company name, falling back to symbol
const displayOrder = `CASE WHEN company_name IS NOT NULL AND company_name != '' THEN company_name ELSE symbol END`

// ListCompanies returns one page of stocks filtered by sector and/or industry
func (r *StockRepository) ListCompanies(ctx context.Context, filter contracts.CompanyFilter) (*contracts.CompanyPage, error) {
	var conditions []string
	var args []interface{}

	if filter.Sector != "" {
		args = append(args, filter.Sector)
		conditions = append(conditions, fmt.Sprintf("sector = $%d", len(args)))
	}
	if filter.Industry != "" {
		args = append(args, filter.Industry)
		conditions = append(conditions, fmt.Sprintf("industry = $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM stocks "+where, args...).Scan(&total); err != nil {
		return nil, ClassifyError("count companies", err)
	}

	args = append(args, filter.Limit, filter.Offset())
	query := fmt.Sprintf(`
		SELECT %s
		FROM stocks
		%s
		ORDER BY %s
		LIMIT $%d OFFSET $%d
	`, stockColumns, where, displayOrder, len(args)-1, len(args))

	companies, err := r.queryStocks(ctx, "list companies", query, args...)
	if err != nil {
		return nil, err
	}

	return &contracts.CompanyPage{
		Companies:  companies,
		Pagination: contracts.NewPagination(total, filter.Page, filter.Limit),
	}, nil
}

// SearchCompanies matches q against symbol and company name (case-insensitive).
// Symbol prefix matches rank first, then name prefix matches.
func (r *StockRepository) SearchCompanies(ctx context.Context, q string, limit int) ([]contracts.Stock, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM stocks
		WHERE symbol ILIKE $1 OR company_name ILIKE $1
		ORDER BY
			CASE
				WHEN symbol ILIKE $2 THEN 1
				WHEN company_name ILIKE $2 THEN 2
				ELSE 3
			END,
			%s
		LIMIT $3
	`, stockColumns, displayOrder)

	return r.queryStocks(ctx, "search companies", query, "%"+q+"%", q+"%", limit)
}

func (r *StockRepository) queryStocks(ctx context.Context, op, query string, args ...interface{}) ([]contracts.Stock, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, ClassifyError(op, err)
	}
	defer rows.Close()

	stocks := []contracts.Stock{}
	for rows.Next() {
		var s contracts.Stock
		if err := rows.Scan(&s.Symbol, &s.CompanyName, &s.Sector, &s.Industry, &s.MarketCap, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan stock: %w", err)
		}
		stocks = append(stocks, s)
	}
	if err := rows.Err(); err != nil {
		return nil, ClassifyError(op, err)
	}
	return stocks, nil
}

// ReferenceStats summarizes the stocks table
func (r *StockRepository) ReferenceStats(ctx context.Context) (*contracts.ReferenceStats, error) {
	stats := &contracts.ReferenceStats{TopSectors: []contracts.SectorCount{}}

	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(CASE WHEN sector IS NOT NULL AND sector != '' THEN 1 END),
			COUNT(DISTINCT NULLIF(sector, '')),
			COUNT(DISTINCT NULLIF(industry, ''))
		FROM stocks
	`).Scan(&stats.TotalStocks, &stats.StocksWithSector, &stats.UniqueSectors, &stats.UniqueIndustries)
	if err != nil {
		return nil, ClassifyError("reference stats", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT sector, COUNT(*) AS count
		FROM stocks
		WHERE sector IS NOT NULL AND sector != ''
		GROUP BY sector
		ORDER BY count DESC, sector ASC
		LIMIT 10
	`)
	if err != nil {
		return nil, ClassifyError("top sectors", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sc contracts.SectorCount
		if err := rows.Scan(&sc.Sector, &sc.Count); err != nil {
			return nil, fmt.Errorf("scan sector count: %w", err)
		}
		stats.TopSectors = append(stats.TopSectors, sc)
	}
	return stats, rows.Err()
}
