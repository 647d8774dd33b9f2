package refdata

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/wonny/equindex/internal/contracts"
	"github.com/wonny/equindex/pkg/httputil"
)

// CSVSource fetches an index constituent list over HTTP.
// Each source owns a circuit breaker so a dead host stops being hammered across syncs.
type CSVSource struct {
	name    string
	url     string
	client  *httputil.Client
	breaker *gobreaker.CircuitBreaker
	opts    parseOptions
}

// BreakerConfig controls the per-source circuit breaker
type BreakerConfig struct {
	ConsecutiveFailures uint32
	Timeout             time.Duration // open → half-open
}

// DefaultBreakerConfig trips after 3 straight failures and probes again after 5 minutes
var DefaultBreakerConfig = BreakerConfig{ConsecutiveFailures: 3, Timeout: 5 * time.Minute}

// NewCSVSource creates a source for rawURL. The name defaults to the file name of the URL.
func NewCSVSource(name, rawURL string, client *httputil.Client, defaultSector, suffix string, bc BreakerConfig) *CSVSource {
	if name == "" {
		name = sourceName(rawURL)
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
	}

	return &CSVSource{
		name:    name,
		url:     rawURL,
		client:  client,
		breaker: gobreaker.NewCircuitBreaker(settings),
		opts:    parseOptions{DefaultSector: defaultSector, SymbolSuffix: suffix},
	}
}

// Name returns the source name
func (s *CSVSource) Name() string {
	return s.name
}

// State returns the circuit breaker state (closed, half-open, open)
func (s *CSVSource) State() string {
	return s.breaker.State().String()
}

// Fetch downloads and parses the list
func (s *CSVSource) Fetch(ctx context.Context) ([]contracts.Stock, error) {
	result, err := s.breaker.Execute(func() (interface{}, error) {
		body, err := s.client.GetBody(ctx, s.url)
		if err != nil {
			return nil, err
		}
		return parseStocks(bytes.NewReader(body), s.opts)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", s.name, err)
	}
	return result.([]contracts.Stock), nil
}

// sourceName derives "ind_nifty500list" from ".../ind_nifty500list.csv"
func sourceName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return rawURL
	}
	return strings.TrimSuffix(path.Base(u.Path), path.Ext(u.Path))
}
