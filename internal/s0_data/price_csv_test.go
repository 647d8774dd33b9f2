package s0_data

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadPriceCSV(t *testing.T) {
	input := "date,symbol,close\n2024-01-02,TCS.NS,3800.5\n2024-01-03, INFY.NS ,1550\n"

	points, err := ReadPriceCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, points, 2)

	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), points[0].Day)
	assert.Equal(t, "TCS.NS", points[0].Symbol)
	assert.Equal(t, "3800.5", points[0].Close.String())
	assert.Equal(t, "INFY.NS", points[1].Symbol)
}

func TestReadPriceCSVWithoutHeader(t *testing.T) {
	points, err := ReadPriceCSV(strings.NewReader("2024-01-02,TCS.NS,3800\n"))
	require.NoError(t, err)
	assert.Len(t, points, 1)
}

func TestReadPriceCSVErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bad date", "02/01/2024,TCS.NS,1\n", "line 1: invalid date"},
		{"bad close", "2024-01-02,TCS.NS,abc\n", "line 1: invalid close"},
		{"empty symbol", "2024-01-02,,1\n", "line 1: empty symbol"},
		{"wrong field count", "2024-01-02,TCS.NS\n", "line 1"},
		{"error on second line", "2024-01-02,A,1\n2024-01-03,B,x\n", "line 2: invalid close"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadPriceCSV(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
