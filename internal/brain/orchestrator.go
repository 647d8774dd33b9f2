package brain

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wonny/equindex/internal/contracts"
	"github.com/wonny/equindex/internal/metrics"
	"github.com/wonny/equindex/internal/s1_constituents"
	"github.com/wonny/equindex/internal/s2_matrix"
	"github.com/wonny/equindex/internal/s3_index"
	"github.com/wonny/equindex/pkg/logger"
)

// Config holds the run policy of the orchestrator
type Config struct {
	IndexType       string
	BaseValue       float64
	Workers         int           // concurrent groupings, 1 = sequential
	StoreRetries    int           // extra STORE attempts after a transient error
	StoreRetryDelay time.Duration // fixed delay between STORE attempts
	LookbackDays    int           // default range when a run gives no start day
}

// Orchestrator drives a generation run over every eligible grouping
// ⭐ SSOT: run sequencing and outcome classification happen here only
//
//	START → ENUMERATE → PROCESS_GROUPING* → DONE
//	per grouping: RESOLVE → BUILD → COMPUTE → STORE → SUCCESS | SKIPPED | FAILED
type Orchestrator struct {
	resolver   *s1_constituents.Resolver
	builder    *s2_matrix.Builder
	calculator *s3_index.Calculator
	writer     contracts.IndexWriter
	recorder   contracts.RunRecorder // optional
	metrics    *metrics.Registry     // optional

	config Config
	logger *logger.Logger

	hooksMu sync.Mutex
	hooks   []CompletionHook
}

// CompletionHook is called after every finished run, aborted ones included
type CompletionHook func(ctx context.Context, summary *contracts.RunSummary)

// RunConfig holds the parameters of one run. Zero days select the default range.
type RunConfig struct {
	RunID string
	Start time.Time
	End   time.Time
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(
	resolver *s1_constituents.Resolver,
	builder *s2_matrix.Builder,
	calculator *s3_index.Calculator,
	writer contracts.IndexWriter,
	recorder contracts.RunRecorder,
	reg *metrics.Registry,
	config Config,
	log *logger.Logger,
) *Orchestrator {
	if config.IndexType == "" {
		config.IndexType = contracts.IndexTypeSectorIndustry
	}
	if config.BaseValue <= 0 {
		config.BaseValue = 1000
	}
	if config.Workers < 1 {
		config.Workers = 1
	}
	if config.StoreRetries < 0 {
		config.StoreRetries = 0
	}
	if config.LookbackDays < 1 {
		config.LookbackDays = 365
	}

	return &Orchestrator{
		resolver:   resolver,
		builder:    builder,
		calculator: calculator,
		writer:     writer,
		recorder:   recorder,
		metrics:    reg,
		config:     config,
		logger:     log.WithComponent("brain"),
	}
}

// OnComplete registers a hook run after each finished run
func (o *Orchestrator) OnComplete(hook CompletionHook) {
	o.hooksMu.Lock()
	defer o.hooksMu.Unlock()
	o.hooks = append(o.hooks, hook)
}

// Range resolves the days a run would cover
func (o *Orchestrator) Range(start, end time.Time) (time.Time, time.Time) {
	return RangeOrDefault(start, end, o.config.LookbackDays, time.Now())
}

// Run generates and stores the index of every eligible grouping.
// Grouping problems never abort the run; only a failed enumeration does,
// in which case the aborted summary is returned together with the error.
// Cancellation is honored between groupings.
func (o *Orchestrator) Run(ctx context.Context, rc RunConfig) (*contracts.RunSummary, error) {
	start, end := o.Range(rc.Start, rc.End)
	if start.After(end) {
		return nil, fmt.Errorf("%w: %s > %s", s2_matrix.ErrInvalidRange,
			start.Format(contracts.DateLayout), end.Format(contracts.DateLayout))
	}

	runID := rc.RunID
	if runID == "" {
		runID = GenerateRunID()
	}

	startedAt := time.Now()
	summary := &contracts.RunSummary{
		RunID:     runID,
		Status:    contracts.RunRunning,
		StartDay:  start,
		EndDay:    end,
		StartedAt: startedAt,
		Outcomes:  make([]contracts.GroupingOutcome, 0),
	}

	log := o.logger.WithField("run_id", runID)
	log.WithFields(map[string]interface{}{
		"start_date": start.Format(contracts.DateLayout),
		"end_date":   end.Format(contracts.DateLayout),
		"workers":    o.config.Workers,
		"base_value": o.config.BaseValue,
	}).Info("Starting index generation run")

	o.metrics.RunStarted()
	o.saveRun(ctx, summary)

	// ENUMERATE
	groupings, err := o.resolver.ListEligibleGroupings(ctx)
	if err != nil {
		err = fmt.Errorf("enumerate groupings: %w", err)
		o.finish(ctx, summary, contracts.RunAborted, err)
		return summary, err
	}

	log.WithField("groupings", len(groupings)).Info("Eligible groupings enumerated")

	// PROCESS_GROUPING*
	o.processAll(ctx, summary, groupings, start, end)

	if err := ctx.Err(); err != nil {
		err = fmt.Errorf("run cancelled after %d of %d groupings: %w",
			summary.Tally.Total(), len(groupings), err)
		o.finish(ctx, summary, contracts.RunAborted, err)
		return summary, err
	}

	// DONE
	o.finish(ctx, summary, contracts.RunCompleted, nil)
	return summary, nil
}

// processAll runs groupings with at most Workers in flight
func (o *Orchestrator) processAll(ctx context.Context, summary *contracts.RunSummary, groupings []contracts.Grouping, start, end time.Time) {
	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(o.config.Workers)

	for _, grouping := range groupings {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			// a started grouping runs to completion, STORE transaction included
			outcome := o.processGrouping(context.WithoutCancel(ctx), grouping, start, end)

			mu.Lock()
			summary.Record(outcome)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(summary.Outcomes, func(i, j int) bool {
		a, b := summary.Outcomes[i], summary.Outcomes[j]
		if a.Sector != b.Sector {
			return a.Sector < b.Sector
		}
		return a.Industry < b.Industry
	})
}

// processGrouping runs RESOLVE → BUILD → COMPUTE → STORE for one grouping
func (o *Orchestrator) processGrouping(ctx context.Context, g contracts.Grouping, start, end time.Time) contracts.GroupingOutcome {
	began := time.Now()
	out := contracts.GroupingOutcome{
		IndexName: g.IndexName(),
		Sector:    g.Sector,
		Industry:  g.Industry,
	}

	log := o.logger.WithField("index_name", out.IndexName)

	finish := func(status contracts.OutcomeStatus, reason contracts.SkipReason, err error) contracts.GroupingOutcome {
		out.Status = status
		out.SkipReason = reason
		if err != nil {
			out.Error = err.Error()
		}
		out.DurationMs = time.Since(began).Milliseconds()
		o.metrics.RecordGrouping(string(status), string(reason))

		fields := map[string]interface{}{
			"status":       string(status),
			"stage":        out.Stage.String(),
			"constituents": out.Constituents,
			"retained":     out.Retained,
			"points":       out.Points,
		}
		switch status {
		case contracts.OutcomeSuccess:
			log.WithFields(fields).Info("Grouping indexed")
		case contracts.OutcomeSkipped:
			fields["reason"] = string(reason)
			if err != nil {
				log.WithError(err).WithFields(fields).Warn("Grouping skipped")
			} else {
				log.WithFields(fields).Info("Grouping skipped")
			}
		default:
			log.WithError(err).WithFields(fields).Error("Grouping failed")
		}
		return out
	}

	// S1: RESOLVE
	out.Stage = contracts.StageResolve
	t := time.Now()
	res := o.resolver.ResolveGrouping(ctx, g)
	out.Constituents = len(res.Symbols)
	o.metrics.ObserveStage(out.Stage.String(), stageResult(res.SkipReason, nil), time.Since(t))
	if res.SkipReason != contracts.SkipNone {
		return finish(contracts.OutcomeSkipped, res.SkipReason, nil)
	}

	// S2: BUILD
	out.Stage = contracts.StageBuild
	t = time.Now()
	m, reason, err := o.builder.Build(ctx, res.Symbols, start, end)
	o.metrics.ObserveStage(out.Stage.String(), stageResult(reason, err), time.Since(t))
	if reason != contracts.SkipNone {
		return finish(contracts.OutcomeSkipped, reason, err)
	}
	if err != nil {
		return finish(contracts.OutcomeFailed, contracts.SkipNone, err)
	}
	out.Retained = len(m.Symbols)

	// S3: COMPUTE
	out.Stage = contracts.StageCompute
	t = time.Now()
	series, err := o.calculator.Compute(m, o.config.BaseValue)
	if err != nil || len(series) == 0 {
		o.metrics.ObserveStage(out.Stage.String(), "skipped", time.Since(t))
		return finish(contracts.OutcomeSkipped, contracts.SkipEmptySeries, err)
	}
	o.metrics.ObserveStage(out.Stage.String(), "ok", time.Since(t))
	out.Points = len(series)

	// S3: STORE
	out.Stage = contracts.StageStore
	t = time.Now()
	attempts, err := o.store(ctx, log, out.IndexName, series, out.Constituents)
	out.Attempts = attempts
	o.metrics.ObserveStage(out.Stage.String(), stageResult(contracts.SkipNone, err), time.Since(t))
	if err != nil {
		return finish(contracts.OutcomeFailed, contracts.SkipNone, err)
	}

	return finish(contracts.OutcomeSuccess, contracts.SkipNone, nil)
}

// store upserts series, retrying only transient failures with a fixed delay.
// Each attempt is a complete transaction. Returns the number of attempts made.
func (o *Orchestrator) store(ctx context.Context, log *logger.Logger, name string, series contracts.IndexSeries, constituents int) (int, error) {
	maxAttempts := o.config.StoreRetries + 1

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = o.writer.Upsert(ctx, name, o.config.IndexType, series, constituents)
		if err == nil {
			return attempt, nil
		}
		if !contracts.IsTransient(err) || attempt == maxAttempts {
			return attempt, err
		}

		o.metrics.RecordStoreRetry()
		log.WithError(err).WithFields(map[string]interface{}{
			"attempt": attempt,
			"delay":   o.config.StoreRetryDelay.String(),
		}).Warn("Transient store failure, retrying")

		select {
		case <-ctx.Done():
			return attempt, err
		case <-time.After(o.config.StoreRetryDelay):
		}
	}
	return maxAttempts, err
}

// finish stamps the final status, persists the summary and runs the hooks
func (o *Orchestrator) finish(ctx context.Context, summary *contracts.RunSummary, status contracts.RunStatus, runErr error) {
	finishedAt := time.Now()
	summary.Status = status
	summary.FinishedAt = &finishedAt
	if runErr != nil {
		summary.Error = runErr.Error()
	}

	duration := finishedAt.Sub(summary.StartedAt)
	o.metrics.RunFinished(string(status), duration)

	// the record must land even when the run was cancelled
	persistCtx := context.WithoutCancel(ctx)
	o.saveRun(persistCtx, summary)

	log := o.logger.WithFields(map[string]interface{}{
		"run_id":   summary.RunID,
		"status":   string(status),
		"success":  summary.Tally.Success,
		"skipped":  summary.Tally.Skipped,
		"failed":   summary.Tally.Failed,
		"duration": duration.Seconds(),
	})
	if runErr != nil {
		log.WithError(runErr).Error("Index generation run aborted")
	} else {
		log.Info("Index generation run completed")
	}
	for name, msg := range summary.FailedErrors() {
		o.logger.WithFields(map[string]interface{}{
			"run_id":     summary.RunID,
			"index_name": name,
			"error":      msg,
		}).Warn("Failed grouping")
	}

	o.hooksMu.Lock()
	hooks := append([]CompletionHook(nil), o.hooks...)
	o.hooksMu.Unlock()
	for _, hook := range hooks {
		hook(persistCtx, summary)
	}
}

// saveRun persists the summary; a recorder failure is logged, never fatal
func (o *Orchestrator) saveRun(ctx context.Context, summary *contracts.RunSummary) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.Save(ctx, summary); err != nil {
		o.logger.WithError(err).WithField("run_id", summary.RunID).Warn("Failed to save run summary")
	}
}

func stageResult(reason contracts.SkipReason, err error) string {
	switch {
	case reason != contracts.SkipNone:
		return "skipped"
	case err != nil:
		return "error"
	default:
		return "ok"
	}
}

// RangeOrDefault fills zero days: end defaults to today, start to end minus lookbackDays.
// Both are normalized to UTC midnight.
func RangeOrDefault(start, end time.Time, lookbackDays int, now time.Time) (time.Time, time.Time) {
	if end.IsZero() {
		end = now
	}
	end = contracts.NormalizeDay(end)

	if start.IsZero() {
		start = end.AddDate(0, 0, -lookbackDays)
	}
	return contracts.NormalizeDay(start), end
}

// GenerateRunID generates a unique, time-sortable run ID
func GenerateRunID() string {
	return fmt.Sprintf("run_%s_%s", time.Now().UTC().Format("20060102_150405"), uuid.NewString()[:8])
}
