// Package counting holds the offline-first count engine: the ledger of
// counted items, the session registry, area progress and the save flow.
//
// The Store is the single source of truth. Every operation applies locally
// first and only then talks to the backend, outside the lock; a failed
// remote call never rolls local state back.
package counting

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/edukinara/happybar-sub000/internal/models"
	"github.com/edukinara/happybar-sub000/internal/services/counts"
)

// Reconciler is the backend count resource as the engine needs it.
// *counts.Client implements it.
type Reconciler interface {
	CreateCount(ctx context.Context, req counts.CreateCountRequest) (*counts.Count, error)
	UpdateCount(ctx context.Context, id string, req counts.UpdateCountRequest) (*counts.Count, error)
	UpdateAreaStatus(ctx context.Context, countID, areaID string, status models.AreaStatus) error
	AddCountItem(ctx context.Context, countID string, req counts.AddItemRequest) (*counts.CountItemRef, error)
}

// Persister receives every local mutation. Errors are logged, never returned
// to callers: the in-memory state stays authoritative for the process.
type Persister interface {
	SaveItem(item *models.CountItem) error
	DeleteItem(id string) error
	ClearItems() error
	SaveSession(session *models.CountSession) error
	SaveActiveSession(id *string) error
}

// Snapshot is persisted engine state, newest first
type Snapshot struct {
	Items           []*models.CountItem
	Sessions        []*models.CountSession
	ActiveSessionID *string
}

// Store owns the count ledger and the session registry
type Store struct {
	mu              sync.RWMutex
	items           []*models.CountItem    // newest first
	sessions        []*models.CountSession // newest first
	activeSessionID *string
	seq             int64

	// keys of sessions being created remotely and items being pushed
	syncing map[string]struct{}
	pushing map[string]struct{}

	// backend count id -> closed once its queued status updates were sent
	transitions map[string]chan struct{}

	remote    Reconciler
	persist   Persister
	notify    Notifier
	now       func() time.Time
	log       *zap.Logger
	bgTimeout time.Duration

	wg sync.WaitGroup
}

// Option configures a Store
type Option func(*Store)

// WithReconciler enables backend mirroring
func WithReconciler(r Reconciler) Option {
	return func(s *Store) { s.remote = r }
}

// WithPersister writes every mutation through to p
func WithPersister(p Persister) Option {
	return func(s *Store) { s.persist = p }
}

// WithNotifier publishes engine events to n
func WithNotifier(n Notifier) Option {
	return func(s *Store) { s.notify = n }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithBackgroundTimeout bounds fire-and-forget status transitions
func WithBackgroundTimeout(d time.Duration) Option {
	return func(s *Store) { s.bgTimeout = d }
}

// NewStore creates an empty store
func NewStore(log *zap.Logger, opts ...Option) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{
		syncing:     make(map[string]struct{}),
		pushing:     make(map[string]struct{}),
		transitions: make(map[string]chan struct{}),
		now:         time.Now,
		log:         log.Named("counting"),
		bgTimeout:   15 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Restore replaces the in-memory state with a persisted snapshot
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make([]*models.CountItem, 0, len(snap.Items))
	s.sessions = make([]*models.CountSession, 0, len(snap.Sessions))
	s.seq = 0
	for _, it := range snap.Items {
		s.items = append(s.items, it.Clone())
		s.seq = max(s.seq, it.Seq)
	}
	for _, sess := range snap.Sessions {
		s.sessions = append(s.sessions, sess.Clone())
		s.seq = max(s.seq, sess.Seq)
	}
	s.activeSessionID = nil
	if snap.ActiveSessionID != nil && s.sessionLocked(*snap.ActiveSessionID) != nil {
		s.activeSessionID = models.StringPtr(*snap.ActiveSessionID)
	}

	s.log.Info("store restored",
		zap.Int("items", len(s.items)),
		zap.Int("sessions", len(s.sessions)))
}

// Online reports whether a backend is wired
func (s *Store) Online() bool {
	return s.remote != nil
}

// Wait blocks until background status transitions have finished
func (s *Store) Wait() {
	s.wg.Wait()
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

func (s *Store) nextSeq() int64 {
	s.seq++
	return s.seq
}

func (s *Store) sessionLocked(id string) *models.CountSession {
	for _, sess := range s.sessions {
		if sess.ID == id {
			return sess
		}
	}
	return nil
}

func (s *Store) itemIndexLocked(id string) int {
	for i, it := range s.items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) publish(events ...Event) {
	if s.notify == nil {
		return
	}
	for _, ev := range events {
		s.notify.Publish(ev)
	}
}

// Write-through helpers. Called with the lock held so rows are written in
// mutation order.

func (s *Store) saveItemLocked(it *models.CountItem) {
	if s.persist == nil {
		return
	}
	if err := s.persist.SaveItem(it); err != nil {
		s.log.Error("failed to persist count item", zap.String("id", it.ID), zap.Error(err))
	}
}

func (s *Store) deleteItemLocked(id string) {
	if s.persist == nil {
		return
	}
	if err := s.persist.DeleteItem(id); err != nil {
		s.log.Error("failed to delete count item", zap.String("id", id), zap.Error(err))
	}
}

func (s *Store) saveSessionLocked(sess *models.CountSession) {
	sess.UpdatedAt = s.timestamp()
	if s.persist == nil {
		return
	}
	if err := s.persist.SaveSession(sess); err != nil {
		s.log.Error("failed to persist count session", zap.String("id", sess.ID), zap.Error(err))
	}
}

func (s *Store) saveActiveLocked() {
	if s.persist == nil {
		return
	}
	if err := s.persist.SaveActiveSession(s.activeSessionID); err != nil {
		s.log.Error("failed to persist active session", zap.Error(err))
	}
}

// background runs fn detached from the caller's cancellation, bounded by the
// background timeout.
func (s *Store) background(parent context.Context, name string, fn func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), s.bgTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.log.Warn("background call failed", zap.String("call", name), zap.Error(err))
		}
	}()
}
