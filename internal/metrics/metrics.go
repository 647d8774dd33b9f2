package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every Prometheus metric of the service.
// All methods are safe on a nil *Registry, which records nothing.
// ⭐ SSOT: metric names are defined here only
type Registry struct {
	reg *prometheus.Registry

	StageDuration *prometheus.HistogramVec
	Groupings     *prometheus.CounterVec
	StoreRetries  prometheus.Counter

	Runs        *prometheus.CounterVec
	RunDuration prometheus.Histogram
	ActiveRuns  prometheus.Gauge
	LastRunTime prometheus.Gauge

	CacheRequests *prometheus.CounterVec

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	RefDataFetches *prometheus.CounterVec
	PriceFetches   *prometheus.CounterVec
	PricePoints    prometheus.Counter
}

// NewRegistry creates a registry with process and Go collectors plus the service metrics
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "equindex_stage_duration_seconds",
				Help:    "Duration of each grouping stage in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"stage", "result"},
		),

		Groupings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "equindex_groupings_total",
				Help: "Processed groupings by outcome and skip reason",
			},
			[]string{"status", "reason"},
		),

		StoreRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "equindex_store_retries_total",
				Help: "Index store attempts retried after a transient error",
			},
		),

		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "equindex_runs_total",
				Help: "Generation runs by final status",
			},
			[]string{"status"},
		),

		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "equindex_run_duration_seconds",
				Help:    "Duration of whole generation runs",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
		),

		ActiveRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "equindex_active_runs",
				Help: "Generation runs in progress",
			},
		),

		LastRunTime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "equindex_last_run_timestamp_seconds",
				Help: "Unix time of the last finished run",
			},
		),

		CacheRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "equindex_cache_requests_total",
				Help: "Cache lookups by cache and result",
			},
			[]string{"cache", "result"},
		),

		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "equindex_http_requests_total",
				Help: "API requests by route, method and status code",
			},
			[]string{"route", "method", "code"},
		),

		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "equindex_http_request_duration_seconds",
				Help:    "API request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),

		RefDataFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "equindex_refdata_fetches_total",
				Help: "Reference data source fetches by source and result",
			},
			[]string{"source", "result"},
		),

		PriceFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "equindex_price_fetches_total",
				Help: "Per-symbol price source fetches by source and result",
			},
			[]string{"source", "result"},
		),

		PricePoints: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "equindex_price_points_written_total",
				Help: "Daily closes written by price updates",
			},
		),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.StageDuration,
		r.Groupings,
		r.StoreRetries,
		r.Runs,
		r.RunDuration,
		r.ActiveRuns,
		r.LastRunTime,
		r.CacheRequests,
		r.HTTPRequests,
		r.HTTPDuration,
		r.RefDataFetches,
		r.PriceFetches,
		r.PricePoints,
	)

	return r
}

// Handler serves the registry in the Prometheus exposition format
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Gatherer exposes the underlying registry (tests, custom exporters)
func (r *Registry) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.reg
}

// ObserveStage records how long a stage took and how it ended
func (r *Registry) ObserveStage(stage, result string, d time.Duration) {
	if r == nil {
		return
	}
	r.StageDuration.WithLabelValues(stage, result).Observe(d.Seconds())
}

// RecordGrouping counts one grouping outcome
func (r *Registry) RecordGrouping(status, reason string) {
	if r == nil {
		return
	}
	r.Groupings.WithLabelValues(status, reason).Inc()
}

// RecordStoreRetry counts a retried store attempt
func (r *Registry) RecordStoreRetry() {
	if r == nil {
		return
	}
	r.StoreRetries.Inc()
}

// RunStarted marks a run as active
func (r *Registry) RunStarted() {
	if r == nil {
		return
	}
	r.ActiveRuns.Inc()
}

// RunFinished records the end of a run
func (r *Registry) RunFinished(status string, d time.Duration) {
	if r == nil {
		return
	}
	r.ActiveRuns.Dec()
	r.Runs.WithLabelValues(status).Inc()
	r.RunDuration.Observe(d.Seconds())
	r.LastRunTime.SetToCurrentTime()
}

// RecordCache counts a cache hit or miss
func (r *Registry) RecordCache(cache string, hit bool) {
	if r == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.CacheRequests.WithLabelValues(cache, result).Inc()
}

// ObserveHTTP records one API request
func (r *Registry) ObserveHTTP(route, method, code string, d time.Duration) {
	if r == nil {
		return
	}
	r.HTTPRequests.WithLabelValues(route, method, code).Inc()
	r.HTTPDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

// RecordRefDataFetch counts one reference source fetch
func (r *Registry) RecordRefDataFetch(source string, ok bool) {
	if r == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	r.RefDataFetches.WithLabelValues(source, result).Inc()
}

// RecordPriceFetch counts one symbol fetch and the closes it wrote
func (r *Registry) RecordPriceFetch(source string, ok bool, written int) {
	if r == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	r.PriceFetches.WithLabelValues(source, result).Inc()
	r.PricePoints.Add(float64(written))
}
