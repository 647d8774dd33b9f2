package s3_index

import (
	"errors"

	"github.com/wonny/equindex/internal/contracts"
	"github.com/wonny/equindex/internal/s2_matrix"
)

// ErrEmptyMatrix is returned when there is nothing to compute
var ErrEmptyMatrix = errors.New("empty price matrix")

// Calculator turns an aligned price matrix into an equiweighted index series
type Calculator struct{}

// NewCalculator creates a new index calculator
func NewCalculator() *Calculator {
	return &Calculator{}
}

// Compute returns one point per matrix row:
//
//	r[t][s]  = close[t][s] / close[t-1][s] - 1   (0 on the first row and on a symbol's first value)
//	c[t]     = mean of r[t][s] over symbols with a value on t
//	level[t] = Π (1 + c[k]) for k ≤ t, level[0] = 1
//	value[t] = base × level[t]
//
// Values are not rounded; the first equals base exactly.
func (c *Calculator) Compute(m *s2_matrix.Matrix, base float64) (contracts.IndexSeries, error) {
	if m.IsEmpty() {
		return nil, ErrEmptyMatrix
	}

	series := make(contracts.IndexSeries, len(m.Days))
	prev := make([]float64, len(m.Symbols))
	seen := make([]bool, len(m.Symbols))
	level := 1.0

	for row, day := range m.Days {
		sum, n := 0.0, 0
		for col := range m.Symbols {
			v, ok := m.Value(row, col)
			if !ok {
				continue
			}
			r := 0.0
			if seen[col] {
				r = v/prev[col] - 1
			}
			prev[col], seen[col] = v, true
			sum += r
			n++
		}

		if row > 0 && n > 0 {
			level *= 1 + sum/float64(n)
		}
		series[row] = contracts.SeriesPoint{Day: day, Value: base * level}
	}

	return series, nil
}
