package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/equindex/internal/brain"
	"github.com/wonny/equindex/pkg/logger"
)

// IndexGenerationJob regenerates every sector/industry index over the default range
// ⭐ SSOT: the index generation schedule lives in this job only
type IndexGenerationJob struct {
	orchestrator *brain.Orchestrator
	schedule     string
	logger       *logger.Logger
}

// NewIndexGenerationJob creates a new index generation job
func NewIndexGenerationJob(o *brain.Orchestrator, schedule string, log *logger.Logger) *IndexGenerationJob {
	if schedule == "" {
		schedule = "0 30 18 * * 1-5" // weekdays after market close
	}
	return &IndexGenerationJob{
		orchestrator: o,
		schedule:     schedule,
		logger:       log,
	}
}

// Name returns the job name
func (j *IndexGenerationJob) Name() string {
	return "index_generation"
}

// Schedule returns the cron schedule (with seconds)
func (j *IndexGenerationJob) Schedule() string {
	return j.schedule
}

// Run executes one generation run. Failed groupings are reported in the run
// summary and do not fail the job; only an aborted run does.
func (j *IndexGenerationJob) Run(ctx context.Context) error {
	j.logger.Info("Starting scheduled index generation")

	summary, err := j.orchestrator.Run(ctx, brain.RunConfig{})
	if err != nil {
		return fmt.Errorf("index generation: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"run_id":  summary.RunID,
		"success": summary.Tally.Success,
		"skipped": summary.Tally.Skipped,
		"failed":  summary.Tally.Failed,
	}).Info("Scheduled index generation completed")

	return nil
}
