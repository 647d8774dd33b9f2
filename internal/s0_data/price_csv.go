package s0_data

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/wonny/equindex/internal/contracts"
)

// ReadPriceCSV parses "date,symbol,close" rows (date as YYYY-MM-DD).
// A header row starting with "date" is skipped.
func ReadPriceCSV(r io.Reader) ([]contracts.PricePoint, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 3
	reader.TrimLeadingSpace = true

	var points []contracts.PricePoint
	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("price csv line %d: %w", line, err)
		}

		if line == 1 && strings.EqualFold(strings.TrimSpace(record[0]), "date") {
			continue
		}

		day, err := contracts.ParseDay(strings.TrimSpace(record[0]))
		if err != nil {
			return nil, fmt.Errorf("price csv line %d: invalid date %q", line, record[0])
		}

		symbol := strings.TrimSpace(record[1])
		if symbol == "" {
			return nil, fmt.Errorf("price csv line %d: empty symbol", line)
		}

		closePrice, err := decimal.NewFromString(strings.TrimSpace(record[2]))
		if err != nil {
			return nil, fmt.Errorf("price csv line %d: invalid close %q", line, record[2])
		}

		points = append(points, contracts.PricePoint{
			Day:    day,
			Symbol: symbol,
			Close:  closePrice,
		})
	}

	return points, nil
}
