package sync

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingRun struct {
	calls atomic.Int32
	block chan struct{}
	err   error
}

func (c *countingRun) run(ctx context.Context) error {
	c.calls.Add(1)
	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
		}
	}
	return c.err
}

func TestScheduler_FiresOnStart(t *testing.T) {
	r := &countingRun{}
	s := NewScheduler(r.run, zap.NewNop(), WithInterval(time.Hour))
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Eventually(t, func() bool { return r.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Error(t, s.Start(context.Background()), "second start is rejected")
}

func TestScheduler_FiresOnInterval(t *testing.T) {
	r := &countingRun{}
	s := NewScheduler(r.run, zap.NewNop(), WithInterval(10*time.Millisecond), WithFireOnStart(false))
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Eventually(t, func() bool { return r.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
}

func TestScheduler_IntervalPausedInBackground(t *testing.T) {
	r := &countingRun{}
	s := NewScheduler(r.run, zap.NewNop(), WithInterval(10*time.Millisecond), WithFireOnStart(false))
	s.OnAppStateChange(AppStateBackground)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, r.calls.Load())

	s.OnAppStateChange(AppStateActive)
	assert.Eventually(t, func() bool { return r.calls.Load() >= 1 }, time.Second, 5*time.Millisecond)
}

func TestScheduler_ForegroundTransitionFiresOnce(t *testing.T) {
	r := &countingRun{}
	s := NewScheduler(r.run, zap.NewNop(), WithInterval(time.Hour), WithFireOnStart(false))
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	s.OnAppStateChange(AppStateActive) // already active: no run
	s.OnAppStateChange(AppStateInactive)
	s.OnAppStateChange(AppStateActive)

	assert.Eventually(t, func() bool { return r.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 1, r.calls.Load())
}

func TestScheduler_NoOverlappingRuns(t *testing.T) {
	r := &countingRun{block: make(chan struct{})}
	s := NewScheduler(r.run, zap.NewNop(), WithInterval(5*time.Millisecond))
	require.NoError(t, s.Start(context.Background()))

	assert.Eventually(t, s.IsSyncing, time.Second, time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.EqualValues(t, 1, r.calls.Load())

	assert.ErrorIs(t, s.SyncNow(context.Background()), ErrSyncInProgress)

	close(r.block)
	s.Stop()
	assert.False(t, s.IsSyncing())
}

func TestScheduler_FailuresDoNotStopScheduling(t *testing.T) {
	r := &countingRun{err: errors.New("backend down")}
	s := NewScheduler(r.run, zap.NewNop(), WithInterval(10*time.Millisecond))
	require.NoError(t, s.Start(context.Background()))

	assert.Eventually(t, func() bool { return r.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	s.Stop()

	st := s.Status()
	assert.False(t, st.Running)
	assert.Equal(t, st.Runs, st.Failures)
	assert.Equal(t, "backend down", st.LastError)
	assert.NotNil(t, st.LastSync)
}

func TestScheduler_SyncNow(t *testing.T) {
	r := &countingRun{}
	s := NewScheduler(r.run, zap.NewNop(), WithMetrics(NewMetrics()))

	// works without Start
	require.NoError(t, s.SyncNow(context.Background()))
	assert.EqualValues(t, 1, r.calls.Load())

	r.err = errors.New("boom")
	assert.EqualError(t, s.SyncNow(context.Background()), "boom")
	assert.Equal(t, 2, s.Status().Runs)
}

func TestScheduler_StopsWithContext(t *testing.T) {
	r := &countingRun{}
	ctx, cancel := context.WithCancel(context.Background())
	s := NewScheduler(r.run, zap.NewNop(), WithInterval(5*time.Millisecond), WithFireOnStart(false))
	require.NoError(t, s.Start(ctx))

	assert.Eventually(t, func() bool { return r.calls.Load() >= 1 }, time.Second, time.Millisecond)
	cancel()
	s.Stop()

	n := r.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, r.calls.Load())
}

func TestAppStateValid(t *testing.T) {
	assert.True(t, AppStateBackground.Valid())
	assert.False(t, AppState("asleep").Valid())
}
