// Package sync decides when the local count store is reconciled with the
// backend and performs the reconciliation pass.
package sync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// SyncFunc is one reconciliation pass
type SyncFunc func(ctx context.Context) error

// AppState is the host app's foreground state
type AppState string

const (
	AppStateActive     AppState = "active"
	AppStateBackground AppState = "background"
	AppStateInactive   AppState = "inactive"
)

// Valid reports whether s is a known app state
func (s AppState) Valid() bool {
	switch s {
	case AppStateActive, AppStateBackground, AppStateInactive:
		return true
	}
	return false
}

const (
	TriggerMount      = "mount"
	TriggerForeground = "foreground"
	TriggerInterval   = "interval"
	TriggerManual     = "manual"
)

// ErrSyncInProgress is returned by SyncNow while another run is in flight
var ErrSyncInProgress = errors.New("sync already in progress")

// Scheduler fires a SyncFunc on start, on return to the foreground and on a
// fixed interval while foregrounded. Runs never overlap. A failed run is
// logged and counted; it does not change the schedule.
type Scheduler struct {
	run              SyncFunc
	interval         time.Duration
	timeout          time.Duration
	fireOnStart      bool
	fireOnForeground bool
	log              *zap.Logger
	metrics          *Metrics

	syncing atomic.Bool

	mu        sync.RWMutex
	isRunning bool
	appState  AppState
	lastSync  time.Time
	lastErr   error
	runs      int
	failures  int
	cancel    context.CancelFunc
	baseCtx   context.Context

	wg sync.WaitGroup
}

// SchedulerOption configures a Scheduler
type SchedulerOption func(*Scheduler)

// WithInterval sets the periodic interval (default 30s)
func WithInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithRunTimeout bounds each run (default 60s)
func WithRunTimeout(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithFireOnStart toggles the run on Start (default on)
func WithFireOnStart(v bool) SchedulerOption {
	return func(s *Scheduler) { s.fireOnStart = v }
}

// WithFireOnForeground toggles the run on return to the foreground (default on)
func WithFireOnForeground(v bool) SchedulerOption {
	return func(s *Scheduler) { s.fireOnForeground = v }
}

// WithMetrics records runs in m
func WithMetrics(m *Metrics) SchedulerOption {
	return func(s *Scheduler) { s.metrics = m }
}

// NewScheduler creates a stopped scheduler around run
func NewScheduler(run SyncFunc, log *zap.Logger, opts ...SchedulerOption) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Scheduler{
		run:              run,
		interval:         30 * time.Second,
		timeout:          60 * time.Second,
		fireOnStart:      true,
		fireOnForeground: true,
		log:              log.Named("scheduler"),
		appState:         AppStateActive,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start fires once and begins the periodic loop. It stops when ctx is done
// or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return errors.New("scheduler already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.isRunning = true
	s.cancel = cancel
	s.baseCtx = ctx
	s.mu.Unlock()

	s.log.Info("sync scheduler started", zap.Duration("interval", s.interval))

	if s.fireOnStart {
		s.trigger(TriggerMount)
	}

	s.wg.Add(1)
	go s.loop(ctx)
	return nil
}

// Stop cancels the loop and waits for an in-flight run to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("sync scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s.AppState() == AppStateActive {
				s.trigger(TriggerInterval)
			}
		case <-ctx.Done():
			return
		}
	}
}

// OnAppStateChange records the host app's state. Returning to active from
// background or inactive fires a run.
func (s *Scheduler) OnAppStateChange(state AppState) {
	s.mu.Lock()
	prev := s.appState
	s.appState = state
	s.mu.Unlock()

	if prev != AppStateActive && state == AppStateActive && s.fireOnForeground {
		s.log.Debug("app returned to foreground")
		s.trigger(TriggerForeground)
	}
}

// AppState returns the last reported app state
func (s *Scheduler) AppState() AppState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.appState
}

// IsSyncing reports whether a run is in flight
func (s *Scheduler) IsSyncing() bool {
	return s.syncing.Load()
}

// SyncNow runs synchronously, for pull-to-refresh. It does not wait for a
// run already in flight.
func (s *Scheduler) SyncNow(ctx context.Context) error {
	if !s.syncing.CompareAndSwap(false, true) {
		s.metrics.runSkipped(TriggerManual)
		return ErrSyncInProgress
	}
	return s.execute(ctx, TriggerManual)
}

// trigger starts a background run unless one is in flight or the scheduler
// is stopped.
func (s *Scheduler) trigger(reason string) bool {
	s.mu.RLock()
	running, ctx := s.isRunning, s.baseCtx
	if running {
		// Add under the lock so Stop cannot miss this run
		s.wg.Add(1)
	}
	s.mu.RUnlock()
	if !running {
		return false
	}

	if !s.syncing.CompareAndSwap(false, true) {
		s.wg.Done()
		s.metrics.runSkipped(reason)
		s.log.Debug("sync skipped, run in flight", zap.String("trigger", reason))
		return false
	}

	go func() {
		defer s.wg.Done()
		_ = s.execute(ctx, reason)
	}()
	return true
}

// execute runs once; the caller holds the syncing flag
func (s *Scheduler) execute(ctx context.Context, reason string) error {
	defer s.syncing.Store(false)

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	s.metrics.runStarted()
	start := time.Now()
	err := s.run(runCtx)
	took := time.Since(start)
	s.metrics.runFinished(reason, took, err)

	s.mu.Lock()
	s.runs++
	s.lastSync = time.Now().UTC()
	s.lastErr = err
	if err != nil {
		s.failures++
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Warn("sync run failed", zap.String("trigger", reason), zap.Duration("took", took), zap.Error(err))
		return err
	}
	s.log.Debug("sync run done", zap.String("trigger", reason), zap.Duration("took", took))
	return nil
}

// Status is a point-in-time view of the scheduler
type Status struct {
	Running   bool       `json:"running"`
	Syncing   bool       `json:"syncing"`
	AppState  AppState   `json:"appState"`
	Interval  string     `json:"interval"`
	LastSync  *time.Time `json:"lastSync,omitempty"`
	LastError string     `json:"lastError,omitempty"`
	Runs      int        `json:"runs"`
	Failures  int        `json:"failures"`
}

// Status returns the current scheduler status
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		Running:  s.isRunning,
		Syncing:  s.syncing.Load(),
		AppState: s.appState,
		Interval: s.interval.String(),
		Runs:     s.runs,
		Failures: s.failures,
	}
	if !s.lastSync.IsZero() {
		t := s.lastSync
		st.LastSync = &t
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}
