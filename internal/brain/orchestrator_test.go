package brain

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/equindex/internal/contracts"
	"github.com/wonny/equindex/internal/s1_constituents"
	"github.com/wonny/equindex/internal/s2_matrix"
	"github.com/wonny/equindex/internal/s3_index"
	"github.com/wonny/equindex/pkg/logger"
)

// ============================================================================
// In-memory stores
// ============================================================================

// memGroupings enumerates groupings as listed and resolves members from a map.
// A grouping's member count may differ from its members to simulate shrinkage.
type memGroupings struct {
	groupings []contracts.Grouping
	members   map[string][]string // key sector|industry
	err       error
}

func (m *memGroupings) add(sector, industry string, symbols ...string) {
	if m.members == nil {
		m.members = map[string][]string{}
	}
	m.groupings = append(m.groupings, contracts.Grouping{Sector: sector, Industry: industry, MemberCount: len(symbols)})
	m.members[sector+"|"+industry] = symbols
}

func (m *memGroupings) ListGroupings(_ context.Context, minSize int) ([]contracts.Grouping, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []contracts.Grouping
	for _, g := range m.groupings {
		if g.MemberCount >= minSize {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *memGroupings) ListSymbols(_ context.Context, sector, industry string) ([]string, error) {
	return m.members[sector+"|"+industry], nil
}

type memPrices struct {
	points []contracts.PricePoint
}

func (m *memPrices) add(symbol string, closes ...float64) {
	for i, c := range closes {
		m.points = append(m.points, contracts.PricePoint{
			Day:    day(i + 1),
			Symbol: symbol,
			Close:  decimal.NewFromFloat(c),
		})
	}
}

func (m *memPrices) GetPrices(_ context.Context, symbols []string, start, end time.Time) ([]contracts.PricePoint, error) {
	want := map[string]bool{}
	for _, s := range symbols {
		want[s] = true
	}
	var out []contracts.PricePoint
	for _, p := range m.points {
		if want[p.Symbol] && !p.Day.Before(start) && !p.Day.After(end) {
			out = append(out, p)
		}
	}
	return out, nil
}

type storedPoint struct {
	value        decimal.Decimal
	constituents int
}

// memIndex is an upsert-only index store. fail, when set, decides the error of each attempt.
type memIndex struct {
	mu       sync.Mutex
	rows     map[string]map[time.Time]storedPoint
	attempts map[string]int
	fail     func(name string, attempt int) error
}

func newMemIndex() *memIndex {
	return &memIndex{
		rows:     map[string]map[time.Time]storedPoint{},
		attempts: map[string]int{},
	}
}

func (m *memIndex) Upsert(_ context.Context, name, _ string, series contracts.IndexSeries, constituentCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.attempts[name]++
	if m.fail != nil {
		if err := m.fail(name, m.attempts[name]); err != nil {
			return err
		}
	}
	if m.rows[name] == nil {
		m.rows[name] = map[time.Time]storedPoint{}
	}
	for _, p := range series {
		m.rows[name][p.Day] = storedPoint{value: contracts.RoundIndexValue(p.Value), constituents: constituentCount}
	}
	return nil
}

func (m *memIndex) names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for name := range m.rows {
		out = append(out, name)
	}
	return out
}

type memRuns struct {
	mu    sync.Mutex
	saves []contracts.RunStatus
	last  contracts.RunSummary
}

func (m *memRuns) Save(_ context.Context, run *contracts.RunSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves = append(m.saves, run.Status)
	m.last = *run
	return nil
}

// ============================================================================
// Helpers
// ============================================================================

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

type fixture struct {
	groupings *memGroupings
	prices    *memPrices
	index     *memIndex
	runs      *memRuns
	config    Config
}

func newFixture() *fixture {
	return &fixture{
		groupings: &memGroupings{},
		prices:    &memPrices{},
		index:     newMemIndex(),
		runs:      &memRuns{},
		config: Config{
			BaseValue:       1000,
			Workers:         1,
			StoreRetries:    2,
			StoreRetryDelay: time.Millisecond,
			LookbackDays:    365,
		},
	}
}

func (f *fixture) orchestrator() *Orchestrator {
	log := logger.Nop()
	resolver := s1_constituents.NewResolver(f.groupings, s1_constituents.Config{MinConstituents: 3}, log)
	builder := s2_matrix.NewBuilder(f.prices, s2_matrix.Config{MinConstituents: 3, MaxMissingRatio: 0.5}, log)
	return NewOrchestrator(resolver, builder, s3_index.NewCalculator(), f.index, f.runs, nil, f.config, log)
}

// fullGrouping adds a grouping whose members all have closes on days 1..5
func (f *fixture) fullGrouping(sector, industry string, symbols ...string) {
	f.groupings.add(sector, industry, symbols...)
	for i, s := range symbols {
		base := float64(100 + 10*i)
		f.prices.add(s, base, base*1.01, base*1.03, base*0.99, base*1.02)
	}
}

func (f *fixture) run(t *testing.T) *contracts.RunSummary {
	t.Helper()
	summary, err := f.orchestrator().Run(context.Background(), RunConfig{RunID: "run_test", Start: day(1), End: day(5)})
	require.NoError(t, err)
	return summary
}

func findOutcome(t *testing.T, s *contracts.RunSummary, name string) contracts.GroupingOutcome {
	t.Helper()
	for _, o := range s.Outcomes {
		if o.IndexName == name {
			return o
		}
	}
	t.Fatalf("no outcome for %s", name)
	return contracts.GroupingOutcome{}
}

// ============================================================================
// Tests
// ============================================================================

func TestRunTwoGroupingsOneSkipped(t *testing.T) {
	f := newFixture()
	f.fullGrouping("Energy", "Oil", "A1", "A2", "A3", "A4", "A5")

	// B was enumerated with 3 members but only 2 remain at resolve time
	f.groupings.groupings = append(f.groupings.groupings, contracts.Grouping{Sector: "Energy", Industry: "Gas", MemberCount: 3})
	f.groupings.members["Energy|Gas"] = []string{"B1", "B2"}
	f.prices.add("B1", 10, 11, 12, 13, 14)
	f.prices.add("B2", 10, 11, 12, 13, 14)

	summary := f.run(t)

	assert.Equal(t, contracts.RunTally{Success: 1, Skipped: 1, Failed: 0}, summary.Tally)
	assert.Equal(t, contracts.RunCompleted, summary.Status)
	assert.Equal(t, []string{"SECTOR-INDUSTRY-Energy-Oil"}, f.index.names())

	b := findOutcome(t, summary, "SECTOR-INDUSTRY-Energy-Gas")
	assert.Equal(t, contracts.OutcomeSkipped, b.Status)
	assert.Equal(t, contracts.SkipTooFewConstituents, b.SkipReason)
	assert.Equal(t, contracts.StageResolve, b.Stage)
}

func TestRunGroupingWithTwoPricedSymbolsSkipped(t *testing.T) {
	f := newFixture()
	f.fullGrouping("Energy", "Oil", "A1", "A2", "A3")
	f.groupings.add("Energy", "Gas", "B1", "B2", "B3")
	f.prices.add("B1", 10, 11, 12, 13, 14)
	f.prices.add("B2", 10, 11, 12, 13, 14)
	f.prices.add("B3", 10, 0, 12, 13, 14) // non-positive close drops B3

	summary := f.run(t)

	assert.Equal(t, contracts.RunTally{Success: 1, Skipped: 1, Failed: 0}, summary.Tally)
	b := findOutcome(t, summary, "SECTOR-INDUSTRY-Energy-Gas")
	assert.Equal(t, contracts.SkipInsufficientData, b.SkipReason)
	assert.Equal(t, contracts.StageBuild, b.Stage)
	assert.Equal(t, 3, b.Constituents)
}

func TestRunMinimumConstituentsBoundary(t *testing.T) {
	tests := []struct {
		name    string
		symbols []string
		stored  bool
	}{
		{"two members", []string{"S1", "S2"}, false},
		{"three members", []string{"S1", "S2", "S3"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.fullGrouping("Tech", "Software", tt.symbols...)

			f.run(t)

			_, ok := f.index.rows["SECTOR-INDUSTRY-Tech-Software"]
			assert.Equal(t, tt.stored, ok)
		})
	}
}

func TestRunStoresBaseAnchoredSeries(t *testing.T) {
	f := newFixture()
	f.fullGrouping("Tech", "Software", "S1", "S2", "S3")

	summary := f.run(t)

	o := findOutcome(t, summary, "SECTOR-INDUSTRY-Tech-Software")
	assert.Equal(t, contracts.OutcomeSuccess, o.Status)
	assert.Equal(t, 5, o.Points)
	assert.Equal(t, 3, o.Retained)
	assert.Equal(t, 1, o.Attempts)

	rows := f.index.rows["SECTOR-INDUSTRY-Tech-Software"]
	require.Len(t, rows, 5)
	assert.Equal(t, "1000", rows[day(1)].value.String())
	assert.Equal(t, 3, rows[day(1)].constituents)
}

func TestRunStoreRetriesTransientErrors(t *testing.T) {
	f := newFixture()
	f.fullGrouping("Tech", "Software", "S1", "S2", "S3")
	f.index.fail = func(_ string, attempt int) error {
		if attempt == 1 {
			return &contracts.TransientError{Op: "upsert", Err: errors.New("connection reset")}
		}
		return nil
	}

	summary := f.run(t)

	o := findOutcome(t, summary, "SECTOR-INDUSTRY-Tech-Software")
	assert.Equal(t, contracts.OutcomeSuccess, o.Status)
	assert.Equal(t, 2, o.Attempts)
}

func TestRunStoreRetriesExhausted(t *testing.T) {
	f := newFixture()
	f.fullGrouping("Tech", "Software", "S1", "S2", "S3")
	f.index.fail = func(string, int) error {
		return &contracts.TransientError{Op: "upsert", Err: errors.New("connection refused")}
	}

	summary := f.run(t)

	o := findOutcome(t, summary, "SECTOR-INDUSTRY-Tech-Software")
	assert.Equal(t, contracts.OutcomeFailed, o.Status)
	assert.Equal(t, 3, o.Attempts) // 1 + StoreRetries
	assert.Contains(t, o.Error, "connection refused")
	assert.Equal(t, contracts.RunTally{Failed: 1}, summary.Tally)
}

func TestRunPersistenceErrorIsNotRetried(t *testing.T) {
	f := newFixture()
	f.fullGrouping("Energy", "Oil", "A1", "A2", "A3")
	f.fullGrouping("Tech", "Software", "S1", "S2", "S3")
	f.index.fail = func(name string, _ int) error {
		if name == "SECTOR-INDUSTRY-Energy-Oil" {
			return &contracts.PersistenceError{Op: "upsert", Err: errors.New("numeric field overflow")}
		}
		return nil
	}

	summary := f.run(t)

	assert.Equal(t, contracts.RunTally{Success: 1, Failed: 1}, summary.Tally)
	failed := findOutcome(t, summary, "SECTOR-INDUSTRY-Energy-Oil")
	assert.Equal(t, 1, failed.Attempts)
	assert.Equal(t, contracts.StageStore, failed.Stage)
	assert.Contains(t, summary.FailedErrors()["SECTOR-INDUSTRY-Energy-Oil"], "numeric field overflow")
	assert.Equal(t, []string{"SECTOR-INDUSTRY-Tech-Software"}, f.index.names())
}

func TestRunIsIdempotent(t *testing.T) {
	f := newFixture()
	f.fullGrouping("Tech", "Software", "S1", "S2", "S3", "S4")

	f.run(t)
	first := map[time.Time]storedPoint{}
	for d, p := range f.index.rows["SECTOR-INDUSTRY-Tech-Software"] {
		first[d] = p
	}

	f.run(t)
	second := f.index.rows["SECTOR-INDUSTRY-Tech-Software"]

	require.Len(t, second, len(first))
	for d, p := range first {
		assert.Equal(t, p.value.String(), second[d].value.String())
		assert.Equal(t, p.constituents, second[d].constituents)
	}
}

func TestRunEnumerationFailureAborts(t *testing.T) {
	f := newFixture()
	f.groupings.err = errors.New("connection refused")

	summary, err := f.orchestrator().Run(context.Background(), RunConfig{Start: day(1), End: day(5)})

	require.Error(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, contracts.RunAborted, summary.Status)
	assert.NotNil(t, summary.FinishedAt)
	assert.Equal(t, contracts.RunAborted, f.runs.last.Status)
	assert.Equal(t, []contracts.RunStatus{contracts.RunRunning, contracts.RunAborted}, f.runs.saves)
}

func TestRunCancelledBeforeGroupings(t *testing.T) {
	f := newFixture()
	f.fullGrouping("Tech", "Software", "S1", "S2", "S3")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := f.orchestrator().Run(ctx, RunConfig{Start: day(1), End: day(5)})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, contracts.RunAborted, summary.Status)
	assert.Zero(t, summary.Tally.Total())
	assert.Equal(t, contracts.RunAborted, f.runs.last.Status)
}

func TestRunInvalidRange(t *testing.T) {
	f := newFixture()

	_, err := f.orchestrator().Run(context.Background(), RunConfig{Start: day(5), End: day(1)})
	assert.ErrorIs(t, err, s2_matrix.ErrInvalidRange)
	assert.Empty(t, f.runs.saves)
}

func TestRunParallelWorkersKeepOrder(t *testing.T) {
	f := newFixture()
	f.config.Workers = 4
	f.fullGrouping("C", "X", "C1", "C2", "C3")
	f.fullGrouping("A", "X", "A1", "A2", "A3")
	f.fullGrouping("B", "Y", "B1", "B2", "B3")
	f.fullGrouping("B", "X", "D1", "D2", "D3")

	summary := f.run(t)

	assert.Equal(t, 4, summary.Tally.Success)
	var names []string
	for _, o := range summary.Outcomes {
		names = append(names, o.IndexName)
	}
	assert.Equal(t, []string{
		"SECTOR-INDUSTRY-A-X",
		"SECTOR-INDUSTRY-B-X",
		"SECTOR-INDUSTRY-B-Y",
		"SECTOR-INDUSTRY-C-X",
	}, names)
}

func TestRunCompletionHook(t *testing.T) {
	f := newFixture()
	f.fullGrouping("Tech", "Software", "S1", "S2", "S3")
	o := f.orchestrator()

	var got *contracts.RunSummary
	o.OnComplete(func(_ context.Context, s *contracts.RunSummary) { got = s })

	summary, err := o.Run(context.Background(), RunConfig{RunID: "run_hook", Start: day(1), End: day(5)})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, summary.RunID, got.RunID)
	assert.Equal(t, contracts.RunCompleted, got.Status)
}

func TestRangeOrDefault(t *testing.T) {
	now := time.Date(2024, 6, 15, 17, 30, 0, 0, time.UTC)

	tests := []struct {
		name      string
		start     time.Time
		end       time.Time
		wantStart time.Time
		wantEnd   time.Time
	}{
		{"both zero", time.Time{}, time.Time{}, time.Date(2023, 6, 16, 0, 0, 0, 0, time.UTC), time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)},
		{"start only", day(1), time.Time{}, day(1), time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)},
		{"both given", day(1), day(9), day(1), day(9)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := RangeOrDefault(tt.start, tt.end, 365, now)
			assert.Equal(t, tt.wantStart, start)
			assert.Equal(t, tt.wantEnd, end)
		})
	}
}

func TestGenerateRunID(t *testing.T) {
	a, b := GenerateRunID(), GenerateRunID()
	assert.Regexp(t, `^run_\d{8}_\d{6}_[0-9a-f]{8}$`, a)
	assert.NotEqual(t, a, b)
}
