package s2_matrix

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/wonny/equindex/internal/contracts"
	"github.com/wonny/equindex/pkg/logger"
)

// ErrInvalidRange is returned when start is after end
var ErrInvalidRange = errors.New("invalid date range: start after end")

// Config holds the data quality policy of the matrix
type Config struct {
	MinConstituents int     `yaml:"min_constituents"`  // fewer retained columns → empty matrix
	MaxMissingRatio float64 `yaml:"max_missing_ratio"` // drop a symbol missing this fraction of days or more
}

// Builder fetches prices and aligns them into a Matrix
type Builder struct {
	prices contracts.PriceReader
	config Config
	logger *logger.Logger
}

// NewBuilder creates a new matrix builder
func NewBuilder(prices contracts.PriceReader, config Config, log *logger.Logger) *Builder {
	if config.MinConstituents < 1 {
		config.MinConstituents = 3
	}
	if config.MaxMissingRatio <= 0 {
		config.MaxMissingRatio = 0.5
	}
	return &Builder{
		prices: prices,
		config: config,
		logger: log.WithComponent("s2_matrix"),
	}
}

// Build fetches closes of symbols within [start, end] and returns the aligned matrix.
// An empty matrix comes with the reason it is empty. A fetch failure is reported as
// contracts.SkipFetchFailed together with the underlying error, for logging only.
func (b *Builder) Build(ctx context.Context, symbols []string, start, end time.Time) (*Matrix, contracts.SkipReason, error) {
	if start.After(end) {
		return nil, contracts.SkipNone, fmt.Errorf("%w: %s > %s", ErrInvalidRange,
			start.Format(contracts.DateLayout), end.Format(contracts.DateLayout))
	}

	points, err := b.prices.GetPrices(ctx, symbols, start, end)
	if err != nil {
		b.logger.WithError(err).WithField("symbols", len(symbols)).Warn("Price fetch failed")
		return Empty(), contracts.SkipFetchFailed, err
	}

	m, reason := FromPrices(points, symbols, b.config)
	for symbol, why := range m.Excluded {
		if why == ExcludedNonPositivePrice {
			b.logger.WithField("symbol", symbol).Warn("Dropping symbol with non-positive close")
		}
	}
	if reason != contracts.SkipNone {
		b.logger.WithFields(map[string]interface{}{
			"reason":   string(reason),
			"symbols":  len(symbols),
			"points":   len(points),
			"excluded": len(m.Excluded),
		}).Info("Price matrix is empty")
	}
	return m, reason, nil
}

// FromPrices aligns raw points of the requested symbols into a matrix:
//  1. pivot rows are the distinct observed days (no calendar)
//  2. a symbol with any close <= 0 is dropped
//  3. a symbol missing on MaxMissingRatio or more of the pivot rows is dropped
//  4. fewer than MinConstituents retained symbols → empty matrix
//  5. rows are the days observed by at least one retained symbol
//  6. each column is forward-filled; leading gaps stay missing
func FromPrices(points []contracts.PricePoint, symbols []string, config Config) (*Matrix, contracts.SkipReason) {
	requested := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		requested[s] = struct{}{}
	}

	observed := make(map[string]map[time.Time]float64, len(symbols))
	daySet := make(map[time.Time]struct{})
	for _, p := range points {
		if _, ok := requested[p.Symbol]; !ok {
			continue
		}
		day := contracts.NormalizeDay(p.Day)
		if observed[p.Symbol] == nil {
			observed[p.Symbol] = make(map[time.Time]float64)
		}
		observed[p.Symbol][day] = p.Close.InexactFloat64()
		daySet[day] = struct{}{}
	}

	m := Empty()
	if len(daySet) == 0 {
		for s := range requested {
			m.Excluded[s] = ExcludedNoData
		}
		return m, contracts.SkipNoPriceData
	}

	totalRows := float64(len(daySet))
	var retained []string
	for s := range requested {
		closes := observed[s]
		switch {
		case len(closes) == 0:
			m.Excluded[s] = ExcludedNoData
		case hasNonPositive(closes):
			m.Excluded[s] = ExcludedNonPositivePrice
		case (totalRows-float64(len(closes)))/totalRows >= config.MaxMissingRatio:
			m.Excluded[s] = ExcludedMissingRatio
		default:
			retained = append(retained, s)
		}
	}

	if len(retained) < config.MinConstituents {
		return m, contracts.SkipInsufficientData
	}
	sort.Strings(retained)

	// Rows are days observed by a retained symbol, so excluded symbols never add rows
	// to the daily mean (DESIGN.md §3 item 3).
	rowSet := make(map[time.Time]struct{})
	for _, s := range retained {
		for day := range observed[s] {
			rowSet[day] = struct{}{}
		}
	}
	days := make([]time.Time, 0, len(rowSet))
	for day := range rowSet {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	cells := make([][]*float64, len(days))
	last := make([]*float64, len(retained))
	for row, day := range days {
		cells[row] = make([]*float64, len(retained))
		for col, s := range retained {
			if v, ok := observed[s][day]; ok {
				value := v
				last[col] = &value
			}
			cells[row][col] = last[col]
		}
	}

	m.Days = days
	m.Symbols = retained
	m.Cells = dropEmptyRows(days, cells, &m.Days)
	if m.IsEmpty() {
		return Empty(), contracts.SkipInsufficientData
	}
	return m, contracts.SkipNone
}

func hasNonPositive(closes map[time.Time]float64) bool {
	for _, v := range closes {
		if v <= 0 {
			return true
		}
	}
	return false
}

// dropEmptyRows removes rows on which every column is missing
func dropEmptyRows(days []time.Time, cells [][]*float64, keptDays *[]time.Time) [][]*float64 {
	outDays := days[:0:0]
	out := cells[:0:0]
	for row, cols := range cells {
		for _, c := range cols {
			if c != nil {
				outDays = append(outDays, days[row])
				out = append(out, cols)
				break
			}
		}
	}
	*keptDays = outDays
	return out
}
