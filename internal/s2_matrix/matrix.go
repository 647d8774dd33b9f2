package s2_matrix

import "time"

// Exclusion reasons recorded per dropped symbol
const (
	ExcludedNoData           = "no_data"
	ExcludedNonPositivePrice = "non_positive_price"
	ExcludedMissingRatio     = "missing_ratio"
)

// Matrix is a day × symbol grid of close prices.
// Days ascend, Symbols are sorted, Cells[row][col] is nil where no value exists.
// Forward-filled cells carry the last observed close; leading cells stay nil.
type Matrix struct {
	Days     []time.Time
	Symbols  []string
	Cells    [][]*float64
	Excluded map[string]string // dropped symbol → reason
}

// Empty returns the empty marker matrix
func Empty() *Matrix {
	return &Matrix{Excluded: map[string]string{}}
}

// IsEmpty reports whether the matrix has no rows or no columns
func (m *Matrix) IsEmpty() bool {
	return m == nil || len(m.Days) == 0 || len(m.Symbols) == 0
}

// Rows returns the number of days
func (m *Matrix) Rows() int {
	if m == nil {
		return 0
	}
	return len(m.Days)
}

// Value returns the cell at (row, col) and whether it is present
func (m *Matrix) Value(row, col int) (float64, bool) {
	cell := m.Cells[row][col]
	if cell == nil {
		return 0, false
	}
	return *cell, true
}
