package contracts

import (
	"context"
	"time"
)

// ⭐ SSOT: storage interfaces consumed by the pipeline are defined here only

// PriceReader reads close prices (Price Store)
type PriceReader interface {
	GetPrices(ctx context.Context, symbols []string, start, end time.Time) ([]PricePoint, error)
}

// GroupingReader reads stock classification (Stock reference data)
type GroupingReader interface {
	ListGroupings(ctx context.Context, minSize int) ([]Grouping, error)
	ListSymbols(ctx context.Context, sector, industry string) ([]string, error)
}

// IndexWriter persists an index series atomically (Index Store)
type IndexWriter interface {
	Upsert(ctx context.Context, name, indexType string, series IndexSeries, constituentCount int) error
}

// IndexReader queries stored index points
type IndexReader interface {
	Query(ctx context.Context, q IndexQuery) ([]IndexPoint, error)
	ListIndexNames(ctx context.Context, indexType string) ([]IndexSummary, error)
}

// RunRecorder persists run summaries
type RunRecorder interface {
	Save(ctx context.Context, run *RunSummary) error
}
