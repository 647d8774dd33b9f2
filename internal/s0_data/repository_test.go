package s0_data

import (
	"context"
	"fmt"
	"os"
	"sort"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/equindex/internal/contracts"
	"github.com/wonny/equindex/pkg/config"
	"github.com/wonny/equindex/pkg/database"
)

func setupPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	cfg, err := config.Load()
	require.NoError(t, err)

	db, err := database.New(cfg)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	_, err = db.Migrate(context.Background())
	require.NoError(t, err)
	return db.Pool
}

func TestStockRepository_Integration(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()
	repo := NewStockRepository(pool, 2)

	sector := fmt.Sprintf("TestSector%d", time.Now().UnixNano())
	prefix := fmt.Sprintf("X%d", time.Now().UnixNano()%1e9)
	stocks := []contracts.Stock{
		{Symbol: prefix + "A", CompanyName: "Alpha", Sector: sector, Industry: "Widgets"},
		{Symbol: prefix + "B", CompanyName: "Beta", Sector: sector, Industry: "Widgets"},
		{Symbol: prefix + "C", CompanyName: "Gamma", Sector: sector, Industry: "Widgets"},
		{Symbol: prefix + "D", CompanyName: "Delta", Sector: sector, Industry: "Gadgets"},
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(ctx, `DELETE FROM stocks WHERE sector = $1`, sector)
	})

	n, err := repo.UpsertStocks(ctx, stocks)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	groupings, err := repo.ListGroupings(ctx, 3)
	require.NoError(t, err)
	var found []contracts.Grouping
	for _, g := range groupings {
		if g.Sector == sector {
			found = append(found, g)
		}
	}
	assert.Equal(t, []contracts.Grouping{{Sector: sector, Industry: "Widgets", MemberCount: 3}}, found)

	symbols, err := repo.ListSymbols(ctx, sector, "Widgets")
	require.NoError(t, err)
	assert.Equal(t, []string{stocks[0].Symbol, stocks[1].Symbol, stocks[2].Symbol}, symbols)

	all, err := repo.ListAllSymbols(ctx)
	require.NoError(t, err)
	assert.Subset(t, all, []string{stocks[0].Symbol, stocks[3].Symbol})
	assert.True(t, sort.StringsAreSorted(all))

	// empty incoming sector keeps the stored value
	_, err = repo.UpsertStocks(ctx, []contracts.Stock{{Symbol: stocks[0].Symbol, CompanyName: "Alpha Ltd"}})
	require.NoError(t, err)
	page, err := repo.ListCompanies(ctx, contracts.CompanyFilter{Sector: sector, Industry: "Widgets", Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Pagination.Total)
	assert.Equal(t, 2, page.Pagination.Pages)
	require.Len(t, page.Companies, 2)
	assert.Equal(t, "Alpha Ltd", page.Companies[0].CompanyName)
	assert.Equal(t, sector, page.Companies[0].Sector)
}

func TestPriceRepository_Integration(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()
	repo := NewPriceRepository(pool, 2)

	symbol := fmt.Sprintf("T%d", time.Now().UnixNano()%1e12)
	t.Cleanup(func() {
		_, _ = pool.Exec(ctx, `DELETE FROM stock_prices WHERE symbol = $1`, symbol)
	})

	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }
	points := []contracts.PricePoint{
		{Day: day(2), Symbol: symbol, Close: decimal.RequireFromString("100")},
		{Day: day(3), Symbol: symbol, Close: decimal.RequireFromString("110.25")},
		{Day: day(4), Symbol: symbol, Close: decimal.RequireFromString("99")},
	}

	n, err := repo.UpsertPrices(ctx, points)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// replace one close
	_, err = repo.UpsertPrices(ctx, []contracts.PricePoint{{Day: day(3), Symbol: symbol, Close: decimal.RequireFromString("111")}})
	require.NoError(t, err)

	got, err := repo.GetPrices(ctx, []string{symbol}, day(3), day(4))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Close.Equal(decimal.RequireFromString("111")))
	assert.Equal(t, day(4), got[1].Day)

	latest, err := repo.GetLatestDay(ctx, symbol)
	require.NoError(t, err)
	assert.Equal(t, day(4), latest)

	_, err = repo.GetPrice(ctx, symbol, day(9))
	assert.ErrorIs(t, err, ErrNotFound)
}
