package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/wonny/equindex/internal/contracts"
	"github.com/wonny/equindex/pkg/logger"
	"github.com/wonny/equindex/pkg/redis"
)

// ReferenceStore reads the stocks table
type ReferenceStore interface {
	ListSectors(ctx context.Context) ([]string, error)
	ListIndustries(ctx context.Context, sector string) ([]string, error)
	ListCompanies(ctx context.Context, filter contracts.CompanyFilter) (*contracts.CompanyPage, error)
	SearchCompanies(ctx context.Context, q string, limit int) ([]contracts.Stock, error)
	ReferenceStats(ctx context.Context) (*contracts.ReferenceStats, error)
}

// PriceStatsReader summarizes the price store
type PriceStatsReader interface {
	Stats(ctx context.Context) (*contracts.PriceStats, error)
}

// ReferenceHandler serves sector, industry and company lookups
type ReferenceHandler struct {
	stocks ReferenceStore
	prices PriceStatsReader
	cache  *redis.Cache
	logger *logger.Logger
}

// NewReferenceHandler creates a new reference data handler
func NewReferenceHandler(stocks ReferenceStore, prices PriceStatsReader, cache *redis.Cache, log *logger.Logger) *ReferenceHandler {
	return &ReferenceHandler{
		stocks: stocks,
		prices: prices,
		cache:  cache,
		logger: log,
	}
}

// minSearchLength is the shortest accepted search query
const minSearchLength = 2

// GetSectors returns the distinct sectors
// GET /api/sectors
func (h *ReferenceHandler) GetSectors(w http.ResponseWriter, r *http.Request) {
	sectors, err := redis.GetOrLoad(r.Context(), h.cache, redis.SectorsKey(), redis.TTLLong, h.stocks.ListSectors)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list sectors")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve sectors")
		return
	}
	respondJSON(w, http.StatusOK, sectors)
}

// GetIndustries returns the distinct industries, optionally within one sector
// GET /api/industries?sector=
func (h *ReferenceHandler) GetIndustries(w http.ResponseWriter, r *http.Request) {
	industries, err := h.stocks.ListIndustries(r.Context(), r.URL.Query().Get("sector"))
	if err != nil {
		h.logger.WithError(err).Error("Failed to list industries")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve industries")
		return
	}
	respondJSON(w, http.StatusOK, industries)
}

// GetCompanies returns one page of companies
// GET /api/companies?sector=&industry=&page=1&limit=50
func (h *ReferenceHandler) GetCompanies(w http.ResponseWriter, r *http.Request) {
	filter := contracts.CompanyFilter{
		Sector:   r.URL.Query().Get("sector"),
		Industry: r.URL.Query().Get("industry"),
		Page:     intParam(r, "page", 1, 0),
		Limit:    intParam(r, "limit", 50, 500),
	}

	page, err := h.stocks.ListCompanies(r.Context(), filter)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list companies")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve companies")
		return
	}
	respondJSON(w, http.StatusOK, page)
}

// SearchCompanies matches symbol or company name
// GET /api/search?q=&limit=20
func (h *ReferenceHandler) SearchCompanies(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if len(q) < minSearchLength {
		respondError(w, http.StatusBadRequest, "Query must be at least 2 characters")
		return
	}

	results, err := h.stocks.SearchCompanies(r.Context(), q, intParam(r, "limit", 20, 100))
	if err != nil {
		h.logger.WithError(err).WithField("q", q).Error("Failed to search companies")
		respondError(w, http.StatusInternalServerError, "Failed to search companies")
		return
	}
	respondJSON(w, http.StatusOK, results)
}

// StatsResponse combines reference and price statistics
type StatsResponse struct {
	Overall *contracts.ReferenceStats `json:"overall"`
	Prices  *contracts.PriceStats     `json:"prices"`
}

// GetStats returns database statistics
// GET /api/stats
func (h *ReferenceHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := redis.GetOrLoad(r.Context(), h.cache, redis.StatsKey(), redis.TTLShort,
		func(ctx context.Context) (StatsResponse, error) {
			ref, err := h.stocks.ReferenceStats(ctx)
			if err != nil {
				return StatsResponse{}, err
			}
			prices, err := h.prices.Stats(ctx)
			if err != nil {
				return StatsResponse{}, err
			}
			return StatsResponse{Overall: ref, Prices: prices}, nil
		})
	if err != nil {
		h.logger.WithError(err).Error("Failed to get stats")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve stats")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}
