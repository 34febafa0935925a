package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edukinara/happybar-sub000/internal/counting"
	"github.com/edukinara/happybar-sub000/internal/models"
	"github.com/edukinara/happybar-sub000/internal/services/counts"
)

type flakyBackend struct {
	mu      sync.Mutex
	down    bool
	counts  int
	areas   int
	items   int
	updates int
}

func (b *flakyBackend) setDown(v bool) {
	b.mu.Lock()
	b.down = v
	b.mu.Unlock()
}

func (b *flakyBackend) err() error {
	if b.down {
		return errors.New("connection refused")
	}
	return nil
}

func (b *flakyBackend) CreateCount(_ context.Context, req counts.CreateCountRequest) (*counts.Count, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.err(); err != nil {
		return nil, err
	}
	b.counts++
	out := &counts.Count{ID: fmt.Sprintf("remote-%d", b.counts)}
	for _, a := range req.Areas {
		out.Areas = append(out.Areas, counts.Area{ID: fmt.Sprintf("r%d-%d", b.counts, a.Order), Name: a.Name, Order: a.Order})
	}
	return out, nil
}

func (b *flakyBackend) UpdateCount(_ context.Context, id string, _ counts.UpdateCountRequest) (*counts.Count, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.err(); err != nil {
		return nil, err
	}
	b.updates++
	return &counts.Count{ID: id}, nil
}

func (b *flakyBackend) UpdateAreaStatus(context.Context, string, string, models.AreaStatus) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.err(); err != nil {
		return err
	}
	b.areas++
	return nil
}

func (b *flakyBackend) AddCountItem(context.Context, string, counts.AddItemRequest) (*counts.CountItemRef, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.err(); err != nil {
		return nil, err
	}
	b.items++
	return &counts.CountItemRef{ID: fmt.Sprintf("item-%d", b.items)}, nil
}

func TestReconcile_CatchesUpAfterOfflineCounting(t *testing.T) {
	backend := &flakyBackend{down: true}
	store := counting.NewStore(zap.NewNop(), counting.WithReconciler(backend))
	defer store.Wait()
	ctx := context.Background()

	sess, out := store.CreateCountSessionWithAPI(ctx, counting.SessionInput{
		Name:         "Weekly",
		Type:         models.CountTypeFull,
		StorageAreas: []string{"Bar", "Storage"},
	})
	require.Error(t, out.Err)

	_, _, err := store.SaveCount(ctx, counting.SaveCountInput{ProductID: "p1", CountedQuantity: 4})
	require.NoError(t, err)
	_, err = store.CompleteCurrentArea(ctx, sess.ID)
	require.NoError(t, err)
	_, _, err = store.SaveCount(ctx, counting.SaveCountInput{ProductID: "p2", CountedQuantity: 1.5})
	require.NoError(t, err)

	metrics := NewMetrics()
	r := NewReconciler(store, zap.NewNop(), metrics)

	// still offline: everything stays pending, errors are reported
	res, err := r.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.SessionsSynced)
	assert.Len(t, res.Errors, 1)
	assert.Equal(t, 1, res.PendingSessions)
	assert.Error(t, r.Run(ctx))

	backend.setDown(false)
	res, err = r.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.SessionsSynced)
	assert.Equal(t, 1, res.AreasAcknowledged)
	assert.Equal(t, 2, res.ItemsPushed)
	assert.Empty(t, res.Errors)
	assert.Zero(t, res.PendingSessions+res.PendingAreas+res.PendingItems)
	assert.True(t, store.PendingWork().Empty())

	got, _ := store.GetCountSession(sess.ID)
	require.NotNil(t, got.APIID)
	assert.Equal(t, "r1-0", got.Areas[0].ID)
	assert.False(t, got.Areas[0].PendingSync)

	require.NotNil(t, r.LastResult())
	assert.Equal(t, 2, r.LastResult().ItemsPushed)

	// nothing left: the next pass is a no-op
	require.NoError(t, r.Run(ctx))
	backend.mu.Lock()
	assert.Equal(t, 2, backend.items)
	assert.Equal(t, 1, backend.counts)
	backend.mu.Unlock()
}

func TestReconcile_PushesSessionCompletedOffline(t *testing.T) {
	backend := &flakyBackend{down: true}
	store := counting.NewStore(zap.NewNop(), counting.WithReconciler(backend))
	ctx := context.Background()

	sess, _ := store.CreateCountSessionWithAPI(ctx, counting.SessionInput{
		Name:         "Spot",
		Type:         models.CountTypeSpot,
		StorageAreas: []string{"Bar"},
	})
	_, _, err := store.SaveCount(ctx, counting.SaveCountInput{ProductID: "gin", CountedQuantity: 2})
	require.NoError(t, err)
	_, ok := store.CompleteCountSession(sess.ID)
	require.True(t, ok)
	assert.Equal(t, []string{sess.ID}, store.PendingWork().UnsyncedSessions)

	backend.setDown(false)
	res, err := NewReconciler(store, zap.NewNop(), nil).Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.SessionsSynced)
	assert.Equal(t, 1, res.ItemsPushed)
	store.Wait()
	assert.True(t, store.PendingWork().Empty())

	got, _ := store.GetCountSession(sess.ID)
	require.NotNil(t, got.APIID)
	assert.Equal(t, models.CountStatusCompleted, got.Status)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Equal(t, 1, backend.counts)
	assert.Equal(t, 2, backend.updates, "IN_PROGRESS then COMPLETED")
}

func TestReconcile_OfflineStoreIsNoop(t *testing.T) {
	store := counting.NewStore(zap.NewNop())
	store.CreateCountSession(counting.SessionInput{Name: "Local", StorageAreas: []string{"Bar"}})

	r := NewReconciler(store, nil, nil)
	res, err := r.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.SessionsSynced)
	assert.Empty(t, res.Errors)
}

func TestReconcile_CancelledContext(t *testing.T) {
	store := counting.NewStore(zap.NewNop(), counting.WithReconciler(&flakyBackend{}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewReconciler(store, nil, nil).Reconcile(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
