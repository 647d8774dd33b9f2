package refdata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/wonny/equindex/internal/contracts"
)

// ErrNoSymbolColumn is returned when a CSV header has no symbol column
var ErrNoSymbolColumn = errors.New("csv has no symbol column")

// parseOptions control how constituent rows become stocks
type parseOptions struct {
	DefaultSector string // used when the file has no sector column
	SymbolSuffix  string // exchange suffix, e.g. ".NS"
}

type columns struct {
	symbol, company, sector, industry, marketCap int
}

func headerColumns(header []string) (columns, error) {
	cols := columns{symbol: -1, company: -1, sector: -1, industry: -1, marketCap: -1}
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))) {
		case "symbol", "ticker":
			cols.symbol = i
		case "company name", "company_name", "name":
			cols.company = i
		case "sector":
			cols.sector = i
		case "industry":
			cols.industry = i
		case "market cap", "market_cap", "marketcap":
			cols.marketCap = i
		}
	}
	if cols.symbol < 0 {
		return cols, ErrNoSymbolColumn
	}
	return cols, nil
}

// parseStocks reads a headed constituent CSV.
// NSE lists carry "Company Name,Industry,Symbol,Series,ISIN Code"; local files may add
// sector and market_cap. Without a sector column the sector is DefaultSector, or the
// industry itself when no default is configured.
func parseStocks(r io.Reader, opts parseOptions) ([]contracts.Stock, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return []contracts.Stock{}, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols, err := headerColumns(header)
	if err != nil {
		return nil, err
	}

	field := func(rec []string, idx int) string {
		if idx < 0 || idx >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[idx])
	}

	stocks := make([]contracts.Stock, 0)
	line := 1
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		raw := field(rec, cols.symbol)
		if raw == "" || isIndexSymbol(raw) {
			continue
		}

		s := contracts.Stock{
			Symbol:      NormalizeSymbol(raw, opts.SymbolSuffix),
			CompanyName: field(rec, cols.company),
			Industry:    field(rec, cols.industry),
		}

		switch {
		case cols.sector >= 0:
			s.Sector = field(rec, cols.sector)
		case opts.DefaultSector != "":
			s.Sector = opts.DefaultSector
		default:
			s.Sector = s.Industry
		}

		if v := field(rec, cols.marketCap); v != "" {
			mc, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid market cap %q: %w", line, v, err)
			}
			s.MarketCap = int64(mc)
		}

		stocks = append(stocks, s)
	}

	return stocks, nil
}
