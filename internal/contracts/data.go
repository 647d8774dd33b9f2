package contracts

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire format for days everywhere (API, CSV, CLI flags)
const DateLayout = "2006-01-02"

// Stock is one row of equity reference data
// ⭐ SSOT: sector/industry classification lives here only
type Stock struct {
	Symbol      string    `json:"symbol"`
	CompanyName string    `json:"company_name"`
	Sector      string    `json:"sector"`
	Industry    string    `json:"industry"`
	MarketCap   int64     `json:"market_cap"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// IsClassified reports whether the stock can belong to a grouping.
// Empty sector or industry means "unknown".
func (s Stock) IsClassified() bool {
	return s.Sector != "" && s.Industry != ""
}

// PricePoint is a daily close for one symbol. Key (Day, Symbol).
type PricePoint struct {
	Day    time.Time       `json:"date"`
	Symbol string          `json:"symbol"`
	Close  decimal.Decimal `json:"close"`
}

// NormalizeDay truncates t to midnight UTC of its calendar day
func NormalizeDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD day
func ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// CompanyFilter narrows company listings
type CompanyFilter struct {
	Sector   string
	Industry string
	Page     int
	Limit    int
}

// Offset returns the SQL offset of the requested page (1-based)
func (f CompanyFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

// CompanyPage is one page of a company listing
type CompanyPage struct {
	Companies  []Stock    `json:"companies"`
	Pagination Pagination `json:"pagination"`
}

// Pagination describes the page window of a listing
type Pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

// NewPagination computes the page count for total rows
func NewPagination(total, page, limit int) Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{Total: total, Page: page, Limit: limit, Pages: pages}
}

// SectorCount is a sector with its number of stocks
type SectorCount struct {
	Sector string `json:"sector"`
	Count  int    `json:"count"`
}

// ReferenceStats summarizes the stocks table
type ReferenceStats struct {
	TotalStocks      int           `json:"total_stocks"`
	StocksWithSector int           `json:"stocks_with_sector"`
	UniqueSectors    int           `json:"unique_sectors"`
	UniqueIndustries int           `json:"unique_industries"`
	TopSectors       []SectorCount `json:"top_sectors"`
}

// SymbolCount is a symbol with its number of price records
type SymbolCount struct {
	Symbol  string `json:"symbol"`
	Records int64  `json:"records"`
}

// PriceStats summarizes the price store
type PriceStats struct {
	TotalStocks       int64         `json:"total_stocks"`
	TotalPriceRecords int64         `json:"total_price_records"`
	EarliestDay       *time.Time    `json:"earliest_day,omitempty"`
	LatestDay         *time.Time    `json:"latest_day,omitempty"`
	RecentStocks      int64         `json:"recent_stocks"` // symbols with data in the last 7 days
	TopSymbols        []SymbolCount `json:"top_symbols"`
}
