package refdata

import (
	"context"
	"sort"
	"strings"

	"github.com/wonny/equindex/internal/contracts"
)

// Source provides stock reference data (symbol, company, sector, industry)
// ⭐ SSOT: every reference feed implements this interface
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]contracts.Stock, error)
}

// SourceResult is the outcome of fetching one source
type SourceResult struct {
	Source string
	Stocks []contracts.Stock
	Err    error
}

// Merge reduces results into one stock per symbol.
// Results are in priority order: for every field the first non-empty value wins.
// Failed results are ignored. Output is sorted by symbol.
func Merge(results ...SourceResult) []contracts.Stock {
	merged := make(map[string]*contracts.Stock)

	for _, res := range results {
		if res.Err != nil {
			continue
		}
		for _, s := range res.Stocks {
			symbol := strings.TrimSpace(s.Symbol)
			if symbol == "" {
				continue
			}

			cur, ok := merged[symbol]
			if !ok {
				copied := s
				copied.Symbol = symbol
				merged[symbol] = &copied
				continue
			}

			if cur.CompanyName == "" {
				cur.CompanyName = s.CompanyName
			}
			if cur.Sector == "" {
				cur.Sector = s.Sector
			}
			if cur.Industry == "" {
				cur.Industry = s.Industry
			}
			if cur.MarketCap == 0 {
				cur.MarketCap = s.MarketCap
			}
		}
	}

	out := make([]contracts.Stock, 0, len(merged))
	for _, s := range merged {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// NormalizeSymbol upper-cases a ticker and appends suffix when missing
func NormalizeSymbol(symbol, suffix string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" || suffix == "" {
		return symbol
	}
	if strings.HasSuffix(symbol, strings.ToUpper(suffix)) {
		return symbol
	}
	return symbol + strings.ToUpper(suffix)
}

// isIndexSymbol reports tickers that name an index rather than a listed company
func isIndexSymbol(symbol string) bool {
	upper := strings.ToUpper(symbol)
	return strings.HasPrefix(upper, "NIFTY") ||
		strings.HasPrefix(upper, "CNX") ||
		strings.Contains(upper, "INDEX")
}
