package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/equindex/internal/brain"
	"github.com/wonny/equindex/internal/contracts"
	"github.com/wonny/equindex/internal/metrics"
	"github.com/wonny/equindex/internal/s0_data"
	"github.com/wonny/equindex/pkg/logger"
	"github.com/wonny/equindex/pkg/redis"
)

// Generator runs index generation
type Generator interface {
	Run(ctx context.Context, rc brain.RunConfig) (*contracts.RunSummary, error)
	Range(start, end time.Time) (time.Time, time.Time)
}

// RunStore reads persisted run summaries
type RunStore interface {
	Get(ctx context.Context, runID string) (*contracts.RunSummary, error)
	Latest(ctx context.Context, limit int) ([]*contracts.RunSummary, error)
}

// IndexHandler serves index queries and generation triggers
// ⭐ SSOT: index API handlers live in this struct only
type IndexHandler struct {
	indices   contracts.IndexReader
	runs      RunStore
	generator Generator
	cache     *redis.Cache
	limiter   *redis.RateLimiter
	metrics   *metrics.Registry
	logger    *logger.Logger

	// background runs outlive the request but not the server
	baseCtx context.Context
	wg      sync.WaitGroup
}

// NewIndexHandler creates a new index handler. baseCtx bounds triggered runs.
func NewIndexHandler(
	baseCtx context.Context,
	indices contracts.IndexReader,
	runs RunStore,
	generator Generator,
	cache *redis.Cache,
	limiter *redis.RateLimiter,
	reg *metrics.Registry,
	log *logger.Logger,
) *IndexHandler {
	return &IndexHandler{
		indices:   indices,
		runs:      runs,
		generator: generator,
		cache:     cache,
		limiter:   limiter,
		metrics:   reg,
		logger:    log,
		baseCtx:   baseCtx,
	}
}

// Wait blocks until triggered runs have returned
func (h *IndexHandler) Wait() {
	h.wg.Wait()
}

// IndexValueResponse is one point of an index series
type IndexValueResponse struct {
	Date             string  `json:"date"`
	IndexName        string  `json:"index_name"`
	IndexType        string  `json:"index_type"`
	IndexValue       float64 `json:"index_value"`
	ConstituentCount int     `json:"constituent_count"`
}

// GetIndices returns stored index points matching every given filter, ordered by day
// GET /api/indices?index_name=&index_type=sector_industry&start_date=&end_date=
func (h *IndexHandler) GetIndices(w http.ResponseWriter, r *http.Request) {
	q := contracts.IndexQuery{
		Name: r.URL.Query().Get("index_name"),
		Type: r.URL.Query().Get("index_type"),
	}
	if q.Type == "" {
		q.Type = contracts.IndexTypeSectorIndustry
	}

	var err error
	if q.Start, err = parseDayParam(r, "start_date"); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if q.End, err = parseDayParam(r, "end_date"); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !q.Start.IsZero() && !q.End.IsZero() && q.Start.After(q.End) {
		respondError(w, http.StatusBadRequest, "start_date must not be after end_date")
		return
	}

	points, err := h.indices.Query(r.Context(), q)
	if err != nil {
		h.logger.WithError(err).WithField("index_name", q.Name).Error("Failed to query indices")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve index series")
		return
	}

	result := make([]IndexValueResponse, len(points))
	for i, p := range points {
		result[i] = IndexValueResponse{
			Date:             p.Day.Format(contracts.DateLayout),
			IndexName:        p.IndexName,
			IndexType:        p.IndexType,
			IndexValue:       p.Value.InexactFloat64(),
			ConstituentCount: p.ConstituentCount,
		}
	}

	respondJSON(w, http.StatusOK, result)
}

// GetIndexNames returns the distinct stored index names
// GET /api/indices/names?index_type=sector_industry
func (h *IndexHandler) GetIndexNames(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	indexType := r.URL.Query().Get("index_type")
	if indexType == "" {
		indexType = contracts.IndexTypeSectorIndustry
	}
	key := redis.IndexNamesKey(indexType)

	var names []contracts.IndexSummary
	if found, err := h.cache.Get(ctx, key, &names); err == nil && found {
		h.metrics.RecordCache("index_names", true)
		respondJSON(w, http.StatusOK, names)
		return
	}
	h.metrics.RecordCache("index_names", false)

	names, err := h.indices.ListIndexNames(ctx, indexType)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list index names")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve index names")
		return
	}

	if err := h.cache.Set(ctx, key, names, redis.TTLMedium); err != nil {
		h.logger.WithError(err).Warn("Failed to cache index names")
	}
	respondJSON(w, http.StatusOK, names)
}

// GenerateRequest is the optional body of a generation trigger
type GenerateRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// GenerateResponse acknowledges an accepted trigger
type GenerateResponse struct {
	RunID     string `json:"run_id"`
	Status    string `json:"status"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// Generate starts a generation run in the background and returns immediately.
// Per-grouping results are available later from /api/indices/runs/{id}.
// POST /api/indices/generate
func (h *IndexHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var start, end time.Time
	var err error
	if req.StartDate != "" {
		if start, err = contracts.ParseDay(req.StartDate); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid 'start_date' format (expected YYYY-MM-DD)")
			return
		}
	}
	if req.EndDate != "" {
		if end, err = contracts.ParseDay(req.EndDate); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid 'end_date' format (expected YYYY-MM-DD)")
			return
		}
	}

	start, end = h.generator.Range(start, end)
	if start.After(end) {
		respondError(w, http.StatusBadRequest, "start_date must not be after end_date")
		return
	}

	allowed, remaining, err := h.limiter.Allow(r.Context(), redis.GenerateRateLimit)
	if err != nil {
		h.logger.WithError(err).Warn("Rate limiter unavailable, allowing trigger")
	} else if !allowed {
		w.Header().Set("Retry-After", strconv.Itoa(int(redis.GenerateRateLimit.Window.Seconds())))
		respondError(w, http.StatusTooManyRequests, "Too many generation requests, try again later")
		return
	}

	runID := brain.GenerateRunID()
	h.logger.WithFields(map[string]interface{}{
		"run_id":     runID,
		"start_date": start.Format(contracts.DateLayout),
		"end_date":   end.Format(contracts.DateLayout),
		"remaining":  remaining,
	}).Info("Index generation triggered")

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if _, err := h.generator.Run(h.baseCtx, brain.RunConfig{RunID: runID, Start: start, End: end}); err != nil {
			h.logger.WithError(err).WithField("run_id", runID).Error("Triggered index generation failed")
		}
	}()

	respondJSON(w, http.StatusAccepted, GenerateResponse{
		RunID:     runID,
		Status:    "accepted",
		StartDate: start.Format(contracts.DateLayout),
		EndDate:   end.Format(contracts.DateLayout),
	})
}

// InvalidateNames drops cached name lists after a run
func (h *IndexHandler) InvalidateNames(ctx context.Context, _ *contracts.RunSummary) {
	if err := h.cache.Delete(ctx, redis.IndexNamesKey(contracts.IndexTypeSectorIndustry)); err != nil {
		h.logger.WithError(err).Warn("Failed to invalidate index name cache")
	}
}

// ListRuns returns the most recent run summaries
// GET /api/indices/runs?limit=20
func (h *IndexHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := intParam(r, "limit", 20, 100)

	runs, err := h.runs.Latest(r.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list runs")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve runs")
		return
	}
	respondJSON(w, http.StatusOK, runs)
}

// GetRun returns one run summary with its per-grouping outcomes
// GET /api/indices/runs/{id}
func (h *IndexHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	run, err := h.runs.Get(r.Context(), runID)
	if errors.Is(err, s0_data.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Run not found")
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("run_id", runID).Error("Failed to get run")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve run")
		return
	}
	respondJSON(w, http.StatusOK, run)
}
