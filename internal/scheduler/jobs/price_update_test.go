package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/equindex/internal/s0_data/collector"
	"github.com/wonny/equindex/internal/scheduler"
	"github.com/wonny/equindex/pkg/logger"
)

type stubUpdater struct {
	calls   int
	symbols []string
	errs    []error
}

func (u *stubUpdater) Update(_ context.Context, symbols []string) (*collector.Result, error) {
	u.calls++
	u.symbols = symbols
	if len(u.errs) >= u.calls && u.errs[u.calls-1] != nil {
		return &collector.Result{Failed: 2, Symbols: 2}, u.errs[u.calls-1]
	}
	return &collector.Result{Symbols: 2, Updated: 2, Written: 4}, nil
}

func TestPriceUpdateJob(t *testing.T) {
	u := &stubUpdater{}
	job := NewPriceUpdateJob(u, "", logger.Nop())

	assert.Equal(t, "price_update", job.Name())
	assert.Equal(t, "0 0 18 * * 1-5", job.Schedule())
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, u.calls)
	assert.Nil(t, u.symbols, "scheduled runs cover every stored symbol")

	assert.Equal(t, "0 30 17 * * *", NewPriceUpdateJob(u, "0 30 17 * * *", logger.Nop()).Schedule())
}

func TestPriceUpdateJobRetriedByScheduler(t *testing.T) {
	u := &stubUpdater{errs: []error{errors.New("all 2 symbols failed")}}
	sched := scheduler.New(logger.Nop(), scheduler.Options{MaxRetries: 1, RetryDelay: time.Millisecond})
	require.NoError(t, sched.AddJob(NewPriceUpdateJob(u, "", logger.Nop())))

	result, err := sched.RunJobSync(context.Background(), "price_update")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Attempts)
	assert.Equal(t, 2, u.calls)
}
