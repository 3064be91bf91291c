package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/decksync/internal/common"
	"github.com/dmitrijs2005/decksync/internal/locker"
	"github.com/dmitrijs2005/decksync/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePurger struct {
	calls atomic.Int32
	opts  models.PurgeOptions
	err   error
}

func (p *fakePurger) Purge(_ context.Context, opts models.PurgeOptions) (*models.PurgeCounts, error) {
	p.calls.Add(1)
	p.opts = opts
	if p.err != nil {
		return nil, p.err
	}
	return &models.PurgeCounts{}, nil
}

type failingLocker struct{}

func (failingLocker) TryAcquire(context.Context, string, time.Duration) (locker.ReleaseFunc, bool, error) {
	return nil, false, errors.New("redis down")
}

func TestPurgeScheduler_TickRunsUnderLease(t *testing.T) {
	p := &fakePurger{}
	l := locker.NewLocalLocker()
	opts := models.PurgeOptions{RetentionDays: 7, BatchSize: 10}
	s := NewPurgeScheduler(p, l, time.Minute, opts, &recLogger{})

	require.True(t, s.Tick(context.Background()))
	assert.Equal(t, int32(1), p.calls.Load())
	assert.Equal(t, opts, p.opts)

	// the lease was released, so the next tick runs too
	require.True(t, s.Tick(context.Background()))
	assert.Equal(t, int32(2), p.calls.Load())
}

func TestPurgeScheduler_TickSkipsWhenLeaseHeld(t *testing.T) {
	p := &fakePurger{}
	l := locker.NewLocalLocker()
	release, ok, err := l.TryAcquire(context.Background(), common.PurgeLockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	defer release(context.Background())

	s := NewPurgeScheduler(p, l, time.Minute, models.PurgeOptions{}, &recLogger{})

	assert.False(t, s.Tick(context.Background()))
	assert.Zero(t, p.calls.Load())
}

func TestPurgeScheduler_TickLogsFailures(t *testing.T) {
	t.Run("purge", func(t *testing.T) {
		log := &recLogger{}
		s := NewPurgeScheduler(&fakePurger{err: errBoom}, locker.NewLocalLocker(), time.Minute, models.PurgeOptions{}, log)

		assert.False(t, s.Tick(context.Background()))
		assert.Equal(t, []string{"purge failed, retrying next tick"}, log.errors)
	})

	t.Run("lease", func(t *testing.T) {
		log := &recLogger{}
		p := &fakePurger{}
		s := NewPurgeScheduler(p, failingLocker{}, time.Minute, models.PurgeOptions{}, log)

		assert.False(t, s.Tick(context.Background()))
		assert.Zero(t, p.calls.Load())
		assert.Equal(t, []string{"purge lease failed"}, log.errors)
	})
}

func TestPurgeScheduler_RunTicksUntilCancelled(t *testing.T) {
	p := &fakePurger{}
	s := NewPurgeScheduler(p, locker.NewLocalLocker(), 5*time.Millisecond, models.PurgeOptions{}, &recLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return p.calls.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestPurgeScheduler_ZeroIntervalDisables(t *testing.T) {
	p := &fakePurger{}
	s := NewPurgeScheduler(p, locker.NewLocalLocker(), 0, models.PurgeOptions{}, &recLogger{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.NoError(t, s.Run(ctx))
	assert.Zero(t, p.calls.Load())
}
