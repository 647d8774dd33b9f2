package s3_index

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/equindex/internal/contracts"
	"github.com/wonny/equindex/internal/s0_data"
)

// IndexRepository stores index series in the equiweighted_indices hypertable
// ⭐ SSOT: index points are written here only
type IndexRepository struct {
	pool *pgxpool.Pool
}

// NewIndexRepository creates a new index repository
func NewIndexRepository(pool *pgxpool.Pool) *IndexRepository {
	return &IndexRepository{pool: pool}
}

// Upsert writes every point of series in one transaction, keyed by (day, name).
// Values are rounded to 4 decimal places. Any failure rolls back the whole series.
func (r *IndexRepository) Upsert(ctx context.Context, name, indexType string, series contracts.IndexSeries, constituentCount int) error {
	if len(series) == 0 {
		return nil
	}

	query := `
		INSERT INTO equiweighted_indices (time, index_name, index_type, index_value, constituent_count)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (time, index_name) DO UPDATE SET
			index_type = EXCLUDED.index_type,
			index_value = EXCLUDED.index_value,
			constituent_count = EXCLUDED.constituent_count
	`

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return s0_data.ClassifyError("begin index upsert", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, p := range series {
		batch.Queue(query,
			contracts.NormalizeDay(p.Day),
			name,
			indexType,
			contracts.RoundIndexValue(p.Value),
			constituentCount,
		)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return s0_data.ClassifyError("upsert index "+name, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return s0_data.ClassifyError("commit index "+name, err)
	}
	return nil
}

// Query returns stored points matching every provided filter, ordered by day ascending
func (r *IndexRepository) Query(ctx context.Context, q contracts.IndexQuery) ([]contracts.IndexPoint, error) {
	var conditions []string
	var args []interface{}

	if q.Name != "" {
		args = append(args, q.Name)
		conditions = append(conditions, fmt.Sprintf("index_name = $%d", len(args)))
	}
	if q.Type != "" {
		args = append(args, q.Type)
		conditions = append(conditions, fmt.Sprintf("index_type = $%d", len(args)))
	}
	if !q.Start.IsZero() {
		args = append(args, contracts.NormalizeDay(q.Start))
		conditions = append(conditions, fmt.Sprintf("time >= $%d", len(args)))
	}
	if !q.End.IsZero() {
		args = append(args, contracts.NormalizeDay(q.End).AddDate(0, 0, 1))
		conditions = append(conditions, fmt.Sprintf("time < $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT time, index_name, index_type, index_value, constituent_count
		FROM equiweighted_indices
		%s
		ORDER BY time ASC, index_name ASC
	`, where)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, s0_data.ClassifyError("query indices", err)
	}
	defer rows.Close()

	points := []contracts.IndexPoint{}
	for rows.Next() {
		var p contracts.IndexPoint
		if err := rows.Scan(&p.Day, &p.IndexName, &p.IndexType, &p.Value, &p.ConstituentCount); err != nil {
			return nil, fmt.Errorf("scan index point: %w", err)
		}
		p.Day = contracts.NormalizeDay(p.Day)
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, s0_data.ClassifyError("iterate indices", err)
	}
	return points, nil
}

// ListIndexNames returns one summary per stored index, ordered by name.
// An empty indexType lists every type.
func (r *IndexRepository) ListIndexNames(ctx context.Context, indexType string) ([]contracts.IndexSummary, error) {
	query := `
		SELECT index_name, MAX(index_type), MAX(constituent_count), MIN(time), MAX(time), COUNT(*)
		FROM equiweighted_indices
		WHERE $1 = '' OR index_type = $1
		GROUP BY index_name
		ORDER BY index_name
	`

	rows, err := r.pool.Query(ctx, query, indexType)
	if err != nil {
		return nil, s0_data.ClassifyError("list index names", err)
	}
	defer rows.Close()

	summaries := []contracts.IndexSummary{}
	for rows.Next() {
		var s contracts.IndexSummary
		if err := rows.Scan(&s.IndexName, &s.IndexType, &s.ConstituentCount, &s.FirstDay, &s.LastDay, &s.Points); err != nil {
			return nil, fmt.Errorf("scan index summary: %w", err)
		}
		s.FirstDay = contracts.NormalizeDay(s.FirstDay)
		s.LastDay = contracts.NormalizeDay(s.LastDay)
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, s0_data.ClassifyError("iterate index names", err)
	}
	return summaries, nil
}
