package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/equindex/internal/api/handlers"
	"github.com/wonny/equindex/internal/brain"
	"github.com/wonny/equindex/internal/contracts"
	"github.com/wonny/equindex/internal/metrics"
	"github.com/wonny/equindex/pkg/config"
	"github.com/wonny/equindex/pkg/logger"
	"github.com/wonny/equindex/pkg/redis"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type emptyIndices struct{}

func (emptyIndices) Query(context.Context, contracts.IndexQuery) ([]contracts.IndexPoint, error) {
	return nil, nil
}

func (emptyIndices) ListIndexNames(context.Context, string) ([]contracts.IndexSummary, error) {
	return nil, nil
}

type emptyRuns struct{}

func (emptyRuns) Get(context.Context, string) (*contracts.RunSummary, error) { return nil, nil }

func (emptyRuns) Latest(context.Context, int) ([]*contracts.RunSummary, error) { return nil, nil }

type noopGenerator struct{}

func (noopGenerator) Run(_ context.Context, rc brain.RunConfig) (*contracts.RunSummary, error) {
	return &contracts.RunSummary{RunID: rc.RunID}, nil
}

func (noopGenerator) Range(start, end time.Time) (time.Time, time.Time) {
	return brain.RangeOrDefault(start, end, 365, time.Now())
}

type panicReference struct{}

func (panicReference) ListSectors(context.Context) ([]string, error) { panic("boom") }

func (panicReference) ListIndustries(context.Context, string) ([]string, error) { return nil, nil }

func (panicReference) ListCompanies(context.Context, contracts.CompanyFilter) (*contracts.CompanyPage, error) {
	return nil, nil
}

func (panicReference) SearchCompanies(context.Context, string, int) ([]contracts.Stock, error) {
	return nil, nil
}

func (panicReference) ReferenceStats(context.Context) (*contracts.ReferenceStats, error) {
	return nil, nil
}

func newTestRouter(t *testing.T, db HealthChecker, reg *metrics.Registry) http.Handler {
	t.Helper()
	client, err := redis.New(&config.Config{})
	require.NoError(t, err)
	cache := redis.NewCache(client, "test")
	limiter := redis.NewRateLimiter(client, "test")

	log := logger.Nop()
	ih := handlers.NewIndexHandler(context.Background(), emptyIndices{}, emptyRuns{}, noopGenerator{}, cache, limiter, reg, log)
	rh := handlers.NewReferenceHandler(panicReference{}, nil, cache, log)
	return NewRouter(ih, rh, db, reg, log)
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		db     HealthChecker
		code   int
		status string
	}{
		{"healthy", pinger{}, http.StatusOK, "ok"},
		{"database down", pinger{err: errors.New("refused")}, http.StatusServiceUnavailable, "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newTestRouter(t, tt.db, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.code, rec.Code)
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.status, body["status"])
		})
	}
}

func TestRoutesAndMethods(t *testing.T) {
	router := newTestRouter(t, pinger{}, nil)

	tests := []struct {
		method string
		target string
		code   int
	}{
		{http.MethodGet, "/api/indices", http.StatusOK},
		{http.MethodGet, "/api/indices/names", http.StatusOK},
		{http.MethodPost, "/api/indices/generate", http.StatusAccepted},
		{http.MethodGet, "/api/indices/generate", http.StatusMethodNotAllowed},
		{http.MethodDelete, "/api/indices/generate", http.StatusMethodNotAllowed},
		{http.MethodDelete, "/api/indices", http.StatusMethodNotAllowed},
		{http.MethodPost, "/api/sectors", http.StatusMethodNotAllowed},
		{http.MethodDelete, "/health", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/indices/runs", http.StatusOK},
		{http.MethodGet, "/api/unknown", http.StatusNotFound},
		{http.MethodGet, "/metrics", http.StatusNotFound}, // metrics disabled
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.target, nil))
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestErrorEnvelopeForUnmatchedRoutes(t *testing.T) {
	router := newTestRouter(t, pinger{}, nil)

	tests := []struct {
		method string
		target string
		code   int
		errMsg string
	}{
		{http.MethodDelete, "/api/indices/generate", http.StatusMethodNotAllowed, "Method DELETE not allowed"},
		{http.MethodGet, "/api/indices/runs/abc/extra", http.StatusNotFound, "Route not found"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.target, nil))

			require.Equal(t, tt.code, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			var body handlers.Response
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.False(t, body.Success)
			assert.Equal(t, tt.errMsg, body.Error)
		})
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t, pinger{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sectors", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body handlers.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.False(t, body.Success)
	assert.Equal(t, "Internal server error", body.Error)
}

func TestMetricsEndpointRecordsRoutes(t *testing.T) {
	reg := metrics.NewRegistry()
	router := newTestRouter(t, pinger{}, reg)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/indices?index_name=x", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(),
		`equindex_http_requests_total{code="200",method="GET",route="/api/indices"} 1`))
}
