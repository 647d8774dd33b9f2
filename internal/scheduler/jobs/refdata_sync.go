package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/equindex/internal/refdata"
	"github.com/wonny/equindex/pkg/logger"
)

// RefDataSyncJob refreshes stock classification from the reference sources
type RefDataSyncJob struct {
	syncer *refdata.Syncer
	logger *logger.Logger
}

// NewRefDataSyncJob creates a new reference data sync job
func NewRefDataSyncJob(syncer *refdata.Syncer, log *logger.Logger) *RefDataSyncJob {
	return &RefDataSyncJob{
		syncer: syncer,
		logger: log,
	}
}

// Name returns the job name
func (j *RefDataSyncJob) Name() string {
	return "refdata_sync"
}

// Schedule returns the cron schedule (Sunday 06:00, ahead of the weekday runs)
func (j *RefDataSyncJob) Schedule() string {
	return "0 0 6 * * 0"
}

// Run executes the sync
func (j *RefDataSyncJob) Run(ctx context.Context) error {
	result, err := j.syncer.Sync(ctx)
	if err != nil {
		return fmt.Errorf("refdata sync: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"merged":     result.Merged,
		"classified": result.Classified,
		"upserted":   result.Upserted,
	}).Info("Scheduled reference data sync completed")
	return nil
}
