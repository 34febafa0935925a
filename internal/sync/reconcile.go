package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/edukinara/happybar-sub000/internal/counting"
)

// Result summarises one reconciliation pass
type Result struct {
	SessionsSynced    int           `json:"sessionsSynced"`
	AreasAcknowledged int           `json:"areasAcknowledged"`
	ItemsPushed       int           `json:"itemsPushed"`
	PendingSessions   int           `json:"pendingSessions"`
	PendingAreas      int           `json:"pendingAreas"`
	PendingItems      int           `json:"pendingItems"`
	Errors            []string      `json:"errors,omitempty"`
	Duration          time.Duration `json:"duration"`
	Timestamp         time.Time     `json:"timestamp"`
}

// Reconciler brings the backend up to date with the local store: unsynced
// sessions first, then unacknowledged area statuses, then unpushed items.
// Later steps depend on the ids the earlier ones obtain.
type Reconciler struct {
	store   *counting.Store
	log     *zap.Logger
	metrics *Metrics

	mu   sync.RWMutex
	last *Result
}

// NewReconciler creates a reconciler over store
func NewReconciler(store *counting.Store, log *zap.Logger, metrics *Metrics) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{
		store:   store,
		log:     log.Named("reconcile"),
		metrics: metrics,
	}
}

// Run is a SyncFunc: one pass, all step errors joined
func (r *Reconciler) Run(ctx context.Context) error {
	res, err := r.Reconcile(ctx)
	if err != nil {
		return err
	}
	if len(res.Errors) > 0 {
		errs := make([]error, 0, len(res.Errors))
		for _, e := range res.Errors {
			errs = append(errs, errors.New(e))
		}
		return errors.Join(errs...)
	}
	return nil
}

// Reconcile performs one pass. The error is only set when ctx is done before
// the pass could start; individual failures are listed in the Result.
func (r *Reconciler) Reconcile(ctx context.Context) (Result, error) {
	start := time.Now()
	res := Result{Timestamp: start.UTC()}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	if !r.store.Online() {
		r.log.Debug("no backend configured, nothing to reconcile")
		return res, nil
	}

	fail := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		res.Errors = append(res.Errors, msg)
	}

	work := r.store.PendingWork()
	for _, id := range work.UnsyncedSessions {
		if ctx.Err() != nil {
			break
		}
		out, err := r.store.SyncSessionWithAPI(ctx, id)
		switch {
		case err != nil:
			fail("session %s: %v", id, err)
		case out.Err != nil:
			fail("session %s: %v", id, out.Err)
		case out.OK():
			res.SessionsSynced++
		}
	}

	// syncing sessions can flag areas and unlock items, so re-read
	work = r.store.PendingWork()
	for _, ref := range work.PendingAreas {
		if ctx.Err() != nil {
			break
		}
		out := r.store.RetryAreaStatus(ctx, ref.SessionID, ref.AreaID)
		if out.Err != nil {
			fail("area %s of session %s: %v", ref.AreaID, ref.SessionID, out.Err)
		} else if out.OK() {
			res.AreasAcknowledged++
		}
	}

	for _, id := range work.UnsyncedItems {
		if ctx.Err() != nil {
			break
		}
		out := r.store.PushCountItem(ctx, id)
		if out.Err != nil {
			fail("item %s: %v", id, out.Err)
		} else if out.OK() {
			res.ItemsPushed++
		}
	}

	left := r.store.PendingWork()
	res.PendingSessions = len(left.UnsyncedSessions)
	res.PendingAreas = len(left.PendingAreas)
	res.PendingItems = len(left.UnsyncedItems)
	res.Duration = time.Since(start)
	r.metrics.observeResult(res)

	r.mu.Lock()
	last := res
	r.last = &last
	r.mu.Unlock()

	r.log.Info("reconciliation pass done",
		zap.Int("sessions_synced", res.SessionsSynced),
		zap.Int("areas_acknowledged", res.AreasAcknowledged),
		zap.Int("items_pushed", res.ItemsPushed),
		zap.Int("errors", len(res.Errors)),
		zap.Duration("took", res.Duration))

	return res, nil
}

// LastResult returns the most recent completed pass, or nil
func (r *Reconciler) LastResult() *Result {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.last == nil {
		return nil
	}
	out := *r.last
	return &out
}
