package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payment-mail-reconciler-go/internal/service/reconcile"
)

type countingScanner struct {
	calls int32
	err   error
}

func (c *countingScanner) ScanAndCreatePayments(context.Context) (*reconcile.ScanResult, error) {
	n := atomic.AddInt32(&c.calls, 1)
	if c.err != nil {
		return nil, c.err
	}
	return &reconcile.ScanResult{EmailsScanned: int(n)}, nil
}

func TestSchedulerRestart(t *testing.T) {
	sched := NewScheduler(60, &countingScanner{})

	require.NoError(t, sched.Start())
	assert.True(t, sched.IsRunning())
	assert.False(t, sched.GetNextRun().IsZero())
	assert.Error(t, sched.Start())

	require.NoError(t, sched.Stop())
	assert.False(t, sched.IsRunning())
	assert.True(t, sched.GetNextRun().IsZero())

	require.NoError(t, sched.Start())
	assert.True(t, sched.IsRunning())
	require.NotNil(t, sched.ctx)
	assert.NoError(t, sched.ctx.Err())
	require.NoError(t, sched.Stop())
}

func TestSchedulerIntervalLongerThanAnHour(t *testing.T) {
	sched := NewScheduler(90, &countingScanner{})

	before := time.Now()
	require.NoError(t, sched.Start())
	defer sched.Stop()

	next := sched.GetNextRun()
	require.False(t, next.IsZero())
	assert.WithinDuration(t, before.Add(90*time.Minute), next, 5*time.Second)
}

func TestRunOnceRecordsResult(t *testing.T) {
	scanner := &countingScanner{}
	sched := NewScheduler(5, scanner)

	res, err := sched.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.EmailsScanned)

	last, lastErr := sched.LastResult()
	assert.NoError(t, lastErr)
	assert.Same(t, res, last)
	assert.False(t, sched.GetLastRun().IsZero())
}

func TestRunOnceSkipsOverlap(t *testing.T) {
	sched := NewScheduler(5, &countingScanner{err: reconcile.ErrScanInProgress})

	_, err := sched.RunOnce(context.Background())
	assert.True(t, errors.Is(err, reconcile.ErrScanInProgress))
	assert.True(t, sched.GetLastRun().IsZero())
}
