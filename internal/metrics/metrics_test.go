package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counterValue sums the samples of a metric family whose labels include want
func counterValue(t *testing.T, r *Registry, name string, want map[string]string) float64 {
	t.Helper()
	families, err := r.Gatherer().Gather()
	require.NoError(t, err)

	total := 0.0
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			for k, v := range want {
				if labels[k] != v {
					continue metrics
				}
			}
			if c := m.GetCounter(); c != nil {
				total += c.GetValue()
			}
			if g := m.GetGauge(); g != nil {
				total += g.GetValue()
			}
		}
	}
	return total
}

func TestRecordGrouping(t *testing.T) {
	r := NewRegistry()

	r.RecordGrouping("SUCCESS", "")
	r.RecordGrouping("SKIPPED", "too_few_constituents")
	r.RecordGrouping("SKIPPED", "too_few_constituents")

	assert.Equal(t, 1.0, counterValue(t, r, "equindex_groupings_total", map[string]string{"status": "SUCCESS"}))
	assert.Equal(t, 2.0, counterValue(t, r, "equindex_groupings_total", map[string]string{"reason": "too_few_constituents"}))
}

func TestRunLifecycle(t *testing.T) {
	r := NewRegistry()

	r.RunStarted()
	assert.Equal(t, 1.0, counterValue(t, r, "equindex_active_runs", nil))

	r.RunFinished("completed", 3*time.Second)
	assert.Equal(t, 0.0, counterValue(t, r, "equindex_active_runs", nil))
	assert.Equal(t, 1.0, counterValue(t, r, "equindex_runs_total", map[string]string{"status": "completed"}))
	assert.Greater(t, counterValue(t, r, "equindex_last_run_timestamp_seconds", nil), 0.0)
}

func TestRecordPriceFetch(t *testing.T) {
	r := NewRegistry()

	r.RecordPriceFetch("yahoo", true, 5)
	r.RecordPriceFetch("yahoo", false, 0)
	r.RecordPriceFetch("yahoo", true, 2)

	assert.Equal(t, 2.0, counterValue(t, r, "equindex_price_fetches_total", map[string]string{"result": "ok"}))
	assert.Equal(t, 1.0, counterValue(t, r, "equindex_price_fetches_total", map[string]string{"result": "error"}))
	assert.Equal(t, 7.0, counterValue(t, r, "equindex_price_points_written_total", nil))
}

func TestNilRegistryIsNoop(t *testing.T) {
	var r *Registry
	assert.NotPanics(t, func() {
		r.RecordGrouping("SUCCESS", "")
		r.ObserveStage("S3_STORE", "ok", time.Second)
		r.RecordStoreRetry()
		r.RunStarted()
		r.RunFinished("completed", time.Second)
		r.RecordCache("index_names", true)
		r.ObserveHTTP("/api/indices", "GET", "200", time.Millisecond)
		r.RecordRefDataFetch("nifty500", false)
		r.RecordPriceFetch("yahoo", true, 3)
	})
}

func TestHandler(t *testing.T) {
	r := NewRegistry()
	r.RecordCache("index_names", false)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `equindex_cache_requests_total{cache="index_names",result="miss"} 1`))
}
