package contracts

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// IndexTypeSectorIndustry is the only supported grouping type
	IndexTypeSectorIndustry = "sector_industry"

	// IndexNamePrefix starts every sector/industry index name
	IndexNamePrefix = "SECTOR-INDUSTRY-"

	// IndexValueScale is the fixed-point scale of stored index values
	IndexValueScale = 4
)

// Grouping is a (sector, industry) pair with its member count.
// Recomputed every run from the stocks table, never persisted.
type Grouping struct {
	Sector      string `json:"sector"`
	Industry    string `json:"industry"`
	MemberCount int    `json:"member_count"`
}

// IndexName returns the stable identifier SECTOR-INDUSTRY-<sector>-<industry>
func (g Grouping) IndexName() string {
	return IndexNamePrefix + g.Sector + "-" + g.Industry
}

// IsEligible reports whether the grouping has enough members
func (g Grouping) IsEligible(minConstituents int) bool {
	return g.MemberCount >= minConstituents
}

// SeriesPoint is one unrounded index value
type SeriesPoint struct {
	Day   time.Time `json:"date"`
	Value float64   `json:"value"`
}

// IndexSeries is an index time series in ascending day order.
// The first value equals the base value.
type IndexSeries []SeriesPoint

// IndexPoint is one stored index row. Key (Day, IndexName).
// ⭐ SSOT: the persisted index representation
type IndexPoint struct {
	Day              time.Time       `json:"date"`
	IndexName        string          `json:"index_name"`
	IndexType        string          `json:"index_type"`
	Value            decimal.Decimal `json:"index_value"`
	ConstituentCount int             `json:"constituent_count"`
}

// RoundIndexValue converts a computed value to its stored 4-dp fixed-point form
func RoundIndexValue(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(IndexValueScale)
}

// IndexQuery filters stored index points. Zero values mean "no filter".
type IndexQuery struct {
	Name  string
	Type  string
	Start time.Time
	End   time.Time
}

// IndexSummary describes one stored index
type IndexSummary struct {
	IndexName        string    `json:"index_name"`
	IndexType        string    `json:"index_type"`
	ConstituentCount int       `json:"constituent_count"`
	FirstDay         time.Time `json:"first_date"`
	LastDay          time.Time `json:"last_date"`
	Points           int       `json:"points"`
}
