package s3_index_test

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/equindex/internal/contracts"
	"github.com/wonny/equindex/internal/s2_matrix"
	"github.com/wonny/equindex/internal/s3_index"
)

// Example_compute builds a three-symbol matrix and computes its equiweighted series
func Example_compute() {
	var prices []contracts.PricePoint
	for _, symbol := range []string{"AAA.NS", "BBB.NS", "CCC.NS"} {
		for i, c := range []float64{100, 110, 99} {
			prices = append(prices, contracts.PricePoint{
				Day:    time.Date(2024, 1, 2+i, 0, 0, 0, 0, time.UTC),
				Symbol: symbol,
				Close:  decimal.NewFromFloat(c),
			})
		}
	}

	m, reason := s2_matrix.FromPrices(prices, []string{"AAA.NS", "BBB.NS", "CCC.NS"},
		s2_matrix.Config{MinConstituents: 3, MaxMissingRatio: 0.5})
	if reason != contracts.SkipNone {
		fmt.Println("skipped:", reason)
		return
	}

	series, err := s3_index.NewCalculator().Compute(m, 1000)
	if err != nil {
		fmt.Println("compute:", err)
		return
	}

	for _, p := range series {
		fmt.Printf("%s %.4f\n", p.Day.Format(contracts.DateLayout), p.Value)
	}

	// Output:
	// 2024-01-02 1000.0000
	// 2024-01-03 1100.0000
	// 2024-01-04 990.0000
}
