package s3_index

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/equindex/internal/contracts"
	"github.com/wonny/equindex/internal/s0_data"
)

// RunRepository stores run summaries in index_runs
type RunRepository struct {
	pool *pgxpool.Pool
}

// NewRunRepository creates a new run repository
func NewRunRepository(pool *pgxpool.Pool) *RunRepository {
	return &RunRepository{pool: pool}
}

// Save inserts or replaces a run summary
func (r *RunRepository) Save(ctx context.Context, run *contracts.RunSummary) error {
	outcomes, err := json.Marshal(run.Outcomes)
	if err != nil {
		return fmt.Errorf("marshal outcomes: %w", err)
	}

	query := `
		INSERT INTO index_runs (
			run_id, status, start_date, end_date, started_at, finished_at,
			succeeded, skipped, failed, error, outcomes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11)
		ON CONFLICT (run_id) DO UPDATE SET
			status = EXCLUDED.status,
			finished_at = EXCLUDED.finished_at,
			succeeded = EXCLUDED.succeeded,
			skipped = EXCLUDED.skipped,
			failed = EXCLUDED.failed,
			error = EXCLUDED.error,
			outcomes = EXCLUDED.outcomes
	`

	_, err = r.pool.Exec(ctx, query,
		run.RunID, string(run.Status), run.StartDay, run.EndDay, run.StartedAt, run.FinishedAt,
		run.Tally.Success, run.Tally.Skipped, run.Tally.Failed, run.Error, outcomes,
	)
	if err != nil {
		return s0_data.ClassifyError("save run "+run.RunID, err)
	}
	return nil
}

const runColumns = `
	run_id, status, start_date, end_date, started_at, finished_at,
	succeeded, skipped, failed, COALESCE(error, ''), outcomes
`

// Get returns one run, or s0_data.ErrNotFound
func (r *RunRepository) Get(ctx context.Context, runID string) (*contracts.RunSummary, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM index_runs WHERE run_id = $1`, runID)
	run, err := scanRun(row)
	if err != nil {
		return nil, s0_data.ClassifyError("get run "+runID, err)
	}
	return run, nil
}

// Latest returns the most recent runs first
func (r *RunRepository) Latest(ctx context.Context, limit int) ([]*contracts.RunSummary, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+runColumns+` FROM index_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, s0_data.ClassifyError("list runs", err)
	}
	defer rows.Close()

	runs := []*contracts.RunSummary{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanRun(row pgx.Row) (*contracts.RunSummary, error) {
	var run contracts.RunSummary
	var status string
	var finished *time.Time
	var outcomes []byte

	err := row.Scan(
		&run.RunID, &status, &run.StartDay, &run.EndDay, &run.StartedAt, &finished,
		&run.Tally.Success, &run.Tally.Skipped, &run.Tally.Failed, &run.Error, &outcomes,
	)
	if err != nil {
		return nil, err
	}

	run.Status = contracts.RunStatus(status)
	run.FinishedAt = finished
	run.StartDay = contracts.NormalizeDay(run.StartDay)
	run.EndDay = contracts.NormalizeDay(run.EndDay)
	if err := json.Unmarshal(outcomes, &run.Outcomes); err != nil {
		return nil, fmt.Errorf("unmarshal outcomes of %s: %w", run.RunID, err)
	}
	return &run, nil
}
