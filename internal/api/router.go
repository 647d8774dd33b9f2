package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/equindex/internal/api/handlers"
	"github.com/wonny/equindex/internal/metrics"
	"github.com/wonny/equindex/pkg/logger"
)

// HealthChecker reports whether a dependency is reachable
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// NewRouter creates and configures the HTTP router.
// /metrics is mounted only when reg is not nil.
// ⭐ SSOT: routes are defined in this function only
func NewRouter(
	indexHandler *handlers.IndexHandler,
	refHandler *handlers.ReferenceHandler,
	db HealthChecker,
	reg *metrics.Registry,
	log *logger.Logger,
) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler(db)).Methods("GET")
	if reg != nil {
		r.Handle("/metrics", reg.Handler()).Methods("GET")
	}

	// Index endpoints
	r.HandleFunc("/api/indices", indexHandler.GetIndices).Methods("GET")
	r.HandleFunc("/api/indices/names", indexHandler.GetIndexNames).Methods("GET")
	r.HandleFunc("/api/indices/generate", indexHandler.Generate).Methods("POST")
	r.HandleFunc("/api/indices/runs", indexHandler.ListRuns).Methods("GET")
	r.HandleFunc("/api/indices/runs/{id}", indexHandler.GetRun).Methods("GET")

	// Reference data endpoints
	r.HandleFunc("/api/sectors", refHandler.GetSectors).Methods("GET")
	r.HandleFunc("/api/industries", refHandler.GetIndustries).Methods("GET")
	r.HandleFunc("/api/companies", refHandler.GetCompanies).Methods("GET")
	r.HandleFunc("/api/search", refHandler.SearchCompanies).Methods("GET")
	r.HandleFunc("/api/stats", refHandler.GetStats).Methods("GET")

	// Routes stay on the root router: a subrouter reports a method mismatch as 404
	r.NotFoundHandler = http.HandlerFunc(handlers.NotFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(handlers.MethodNotAllowed)

	// Apply middleware
	r.Use(loggingMiddleware(log, reg))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(db HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, code := "ok", http.StatusOK
		database := "ok"
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				status, code, database = "degraded", http.StatusServiceUnavailable, err.Error()
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":   status,
			"service":  "equindex-api",
			"database": database,
		})
	}
}

// statusRecorder captures the response code for logging and metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs HTTP requests and records their metrics
func loggingMiddleware(log *logger.Logger, reg *metrics.Registry) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			route := r.URL.Path
			if cur := mux.CurrentRoute(r); cur != nil {
				if tpl, err := cur.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			duration := time.Since(start)
			reg.ObserveHTTP(route, r.Method, strconv.Itoa(rec.status), duration)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rec.status,
				"duration": duration.String(),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(handlers.Response{
						Success: false,
						Error:   "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
