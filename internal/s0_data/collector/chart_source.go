package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/wonny/equindex/internal/contracts"
	"github.com/wonny/equindex/pkg/httputil"
)

// ErrNoData is returned when the source knows nothing about a symbol
var ErrNoData = errors.New("no price data")

// BreakerConfig controls the source circuit breaker
type BreakerConfig struct {
	ConsecutiveFailures uint32
	Timeout             time.Duration // open → half-open
}

// DefaultBreakerConfig trips after 5 straight host failures and retries after 2 minutes
var DefaultBreakerConfig = BreakerConfig{ConsecutiveFailures: 5, Timeout: 2 * time.Minute}

// ChartSource reads daily closes from a Yahoo-style chart API:
// GET {base}/{symbol}?period1=..&period2=..&interval=1d
type ChartSource struct {
	name    string
	baseURL string
	client  *httputil.Client
	breaker *gobreaker.CircuitBreaker
}

// NewChartSource creates a chart source. Unknown symbols (404, empty result) do not count
// as breaker failures; only host failures do.
func NewChartSource(name, baseURL string, client *httputil.Client, bc BreakerConfig) *ChartSource {
	if name == "" {
		name = "chart"
	}
	if bc.ConsecutiveFailures == 0 {
		bc = DefaultBreakerConfig
	}

	settings := gobreaker.Settings{
		Name:    name,
		Timeout: bc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bc.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNoData) || errors.Is(err, context.Canceled)
		},
	}

	return &ChartSource{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Name returns the source name
func (s *ChartSource) Name() string {
	return s.name
}

// State returns the circuit breaker state (closed, half-open, open)
func (s *ChartSource) State() string {
	return s.breaker.State().String()
}

// FetchPrices returns the closes of symbol with from <= day <= to, ordered by day
func (s *ChartSource) FetchPrices(ctx context.Context, symbol string, from, to time.Time) ([]contracts.PricePoint, error) {
	from, to = contracts.NormalizeDay(from), contracts.NormalizeDay(to)
	if to.Before(from) {
		return nil, nil
	}

	result, err := s.breaker.Execute(func() (interface{}, error) {
		body, err := s.client.GetBody(ctx, s.chartURL(symbol, from, to))
		if err != nil {
			var statusErr *httputil.StatusError
			if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
				return nil, fmt.Errorf("%s: %w", symbol, ErrNoData)
			}
			return nil, err
		}
		return parseChart(body, symbol, from, to)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s from %s: %w", symbol, s.name, err)
	}
	return result.([]contracts.PricePoint), nil
}

func (s *ChartSource) chartURL(symbol string, from, to time.Time) string {
	q := url.Values{}
	q.Set("period1", fmt.Sprint(from.Unix()))
	q.Set("period2", fmt.Sprint(to.AddDate(0, 0, 1).Unix()))
	q.Set("interval", "1d")
	q.Set("events", "history")
	return s.baseURL + "/" + url.PathEscape(symbol) + "?" + q.Encode()
}

// chartResponse is the subset of the chart payload we read
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol    string `json:"symbol"`
				GMTOffset int64  `json:"gmtoffset"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// parseChart maps bars to days in the exchange's local calendar.
// Null and non-positive closes are dropped; a later bar for the same day wins.
func parseChart(body []byte, symbol string, from, to time.Time) ([]contracts.PricePoint, error) {
	var resp chartResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode chart %s: %w", symbol, err)
	}
	if e := resp.Chart.Error; e != nil {
		if e.Code == "Not Found" {
			return nil, fmt.Errorf("%s: %s: %w", symbol, e.Description, ErrNoData)
		}
		return nil, fmt.Errorf("chart %s: %s: %s", symbol, e.Code, e.Description)
	}
	if len(resp.Chart.Result) == 0 {
		return nil, fmt.Errorf("%s: %w", symbol, ErrNoData)
	}

	r := resp.Chart.Result[0]
	if len(r.Indicators.Quote) == 0 {
		return nil, nil
	}
	closes := r.Indicators.Quote[0].Close

	points := make([]contracts.PricePoint, 0, len(r.Timestamp))
	index := make(map[time.Time]int, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		if i >= len(closes) || closes[i] == nil || *closes[i] <= 0 {
			continue
		}
		day := contracts.NormalizeDay(time.Unix(ts+r.Meta.GMTOffset, 0).UTC())
		if day.Before(from) || day.After(to) {
			continue
		}

		p := contracts.PricePoint{
			Day:    day,
			Symbol: symbol,
			Close:  decimal.NewFromFloat(*closes[i]).Round(4),
		}
		if j, ok := index[day]; ok {
			points[j] = p
			continue
		}
		index[day] = len(points)
		points = append(points, p)
	}
	return points, nil
}
