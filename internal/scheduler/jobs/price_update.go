package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/equindex/internal/s0_data/collector"
	"github.com/wonny/equindex/pkg/logger"
)

// PriceUpdater brings stored closes up to date
type PriceUpdater interface {
	Update(ctx context.Context, symbols []string) (*collector.Result, error)
}

// PriceUpdateJob fetches the closes missing since each symbol's latest stored day
type PriceUpdateJob struct {
	updater  PriceUpdater
	schedule string
	logger   *logger.Logger
}

// NewPriceUpdateJob creates a new price update job
func NewPriceUpdateJob(updater PriceUpdater, schedule string, log *logger.Logger) *PriceUpdateJob {
	if schedule == "" {
		schedule = "0 0 18 * * 1-5" // ahead of index_generation
	}
	return &PriceUpdateJob{
		updater:  updater,
		schedule: schedule,
		logger:   log,
	}
}

// Name returns the job name
func (j *PriceUpdateJob) Name() string {
	return "price_update"
}

// Schedule returns the cron schedule (with seconds)
func (j *PriceUpdateJob) Schedule() string {
	return j.schedule
}

// Run updates every stored symbol. Single symbol failures are logged by the collector;
// the job fails only when no symbol could be updated.
func (j *PriceUpdateJob) Run(ctx context.Context) error {
	j.logger.Info("Starting scheduled price update")

	result, err := j.updater.Update(ctx, nil)
	if err != nil {
		return fmt.Errorf("price update: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"updated":    result.Updated,
		"up_to_date": result.UpToDate,
		"failed":     result.Failed,
		"written":    result.Written,
	}).Info("Scheduled price update completed")
	return nil
}
