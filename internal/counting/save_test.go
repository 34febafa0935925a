package counting

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edukinara/happybar-sub000/internal/models"
)

func TestSaveCount_RecountUpdatesInPlace(t *testing.T) {
	s := NewStore(zap.NewNop())
	ctx := context.Background()
	sess := s.CreateCountSession(weekly("Bar"))

	first, _, err := s.SaveCount(ctx, SaveCountInput{ProductID: "P", CountedQuantity: 5, CurrentStock: 8})
	require.NoError(t, err)

	second, _, err := s.SaveCount(ctx, SaveCountInput{ProductID: "P", CountedQuantity: 9, CurrentStock: 100})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 9.0, second.CountedQuantity)
	assert.Equal(t, 8.0, second.CurrentStock, "stock snapshot from the first count is kept")
	assert.Equal(t, 1.0, second.Variance)
	assert.False(t, second.Timestamp.Before(first.Timestamp))
	assert.Len(t, s.GetCountItemsBySession(sess.ID), 1)

	got, _ := s.GetCountSession(sess.ID)
	assert.Equal(t, 1, got.TotalItems)
	assert.Equal(t, 1.0, got.TotalVariance)
}

func TestSaveCount_SameProductDifferentAreas(t *testing.T) {
	s := NewStore(zap.NewNop())
	ctx := context.Background()
	sess := s.CreateCountSession(weekly("Bar", "Storage"))

	_, _, err := s.SaveCount(ctx, SaveCountInput{ProductID: "P", CountedQuantity: 1})
	require.NoError(t, err)
	_, err = s.CompleteCurrentArea(ctx, sess.ID)
	require.NoError(t, err)
	_, _, err = s.SaveCount(ctx, SaveCountInput{ProductID: "P", CountedQuantity: 2})
	require.NoError(t, err)

	assert.Len(t, s.GetCountItemsBySession(sess.ID), 2)
}

func TestSaveCount_UsesAreaCurrentAtSaveTime(t *testing.T) {
	s := NewStore(zap.NewNop())
	ctx := context.Background()
	sess := s.CreateCountSession(weekly("Bar", "Storage"))

	// the entry screen opened while Bar was current
	opened := s.GetActiveSession()
	require.Equal(t, sess.Areas[0].ID, *opened.CurrentAreaID)

	_, err := s.CompleteCurrentArea(ctx, sess.ID)
	require.NoError(t, err)

	it, _, err := s.SaveCount(ctx, SaveCountInput{ProductID: "P", CountedQuantity: 1})
	require.NoError(t, err)
	assert.Equal(t, sess.Areas[1].ID, *it.AreaID)
}

func TestSaveCount_AdHocAlwaysAppends(t *testing.T) {
	s := NewStore(zap.NewNop())
	ctx := context.Background()

	a, out, err := s.SaveCount(ctx, SaveCountInput{ProductID: "P", CountedQuantity: 1})
	require.NoError(t, err)
	assert.True(t, out.Skipped())
	b, _, err := s.SaveCount(ctx, SaveCountInput{ProductID: "P", CountedQuantity: 1})
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Nil(t, a.CountSessionID)
	assert.Len(t, s.GetRecentCountItems(10), 2)
}

func TestSaveCount_Validation(t *testing.T) {
	s := NewStore(zap.NewNop())
	ctx := context.Background()

	_, _, err := s.SaveCount(ctx, SaveCountInput{ProductID: "P", CountedQuantity: -1})
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	_, _, err = s.SaveCount(ctx, SaveCountInput{ProductID: "P", CountedQuantity: math.NaN()})
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	_, _, err = s.SaveCount(ctx, SaveCountInput{CountedQuantity: 1})
	assert.ErrorIs(t, err, ErrMissingProduct)
}

func TestSaveCount_PushesToSyncedSession(t *testing.T) {
	s, remote := newOnlineStore(t)
	ctx := context.Background()
	_, _ = s.CreateCountSessionWithAPI(ctx, weekly("Bar"))

	it, out, err := s.SaveCount(ctx, SaveCountInput{ProductID: "P", CountedQuantity: 2.5, Notes: "half open"})
	require.NoError(t, err)
	require.True(t, out.OK())
	assert.True(t, it.Synced)
	require.NotNil(t, it.RemoteID)

	calls := remote.itemCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "a1", calls[0].AreaID)
	assert.Equal(t, 2, calls[0].FullUnits)
	assert.Equal(t, 0.5, calls[0].PartialUnit)
	assert.Equal(t, "half open", calls[0].Notes)
}

func TestSaveCount_PushFailureKeepsItemForRetry(t *testing.T) {
	s, remote := newOnlineStore(t)
	ctx := context.Background()
	_, _ = s.CreateCountSessionWithAPI(ctx, weekly("Bar"))
	remote.set(func(f *fakeRemote) { f.itemErr = errOffline })

	it, out, err := s.SaveCount(ctx, SaveCountInput{ProductID: "P", CountedQuantity: 1})
	require.NoError(t, err, "push failures are not save failures")
	assert.ErrorIs(t, out.Err, errOffline)
	assert.False(t, it.Synced)
	assert.Equal(t, []string{it.ID}, s.PendingWork().UnsyncedItems)

	remote.set(func(f *fakeRemote) { f.itemErr = nil })
	require.True(t, s.PushCountItem(ctx, it.ID).OK())
	assert.True(t, s.PendingWork().Empty())
	assert.True(t, s.PushCountItem(ctx, it.ID).Skipped())
}

// Weekly count over Bar and Storage, both areas counted, backend reachable
// throughout.
func TestEndToEndWeeklyCount(t *testing.T) {
	s, remote := newOnlineStore(t)
	ctx := context.Background()

	sess, out := s.CreateCountSessionWithAPI(ctx, SessionInput{
		Name:         "Weekly",
		Type:         models.CountTypeFull,
		StorageAreas: []string{"Bar", "Storage"},
	})
	require.True(t, out.OK())
	require.Len(t, sess.Areas, 2)
	assert.Equal(t, "a1", sess.Areas[0].ID)
	assert.Equal(t, "Bar", sess.Areas[0].Name)
	assert.Equal(t, 0, sess.Areas[0].Order)
	assert.Equal(t, "a2", sess.Areas[1].ID)
	assert.Equal(t, "Storage", sess.Areas[1].Name)
	assert.Equal(t, 1, sess.Areas[1].Order)
	assert.Equal(t, "a1", *sess.CurrentAreaID)

	it, _, err := s.SaveCount(ctx, SaveCountInput{ProductID: "P1", CountedQuantity: 12, CurrentStock: 10})
	require.NoError(t, err)
	assert.Equal(t, "a1", *it.AreaID)
	assert.Equal(t, 2.0, it.Variance)

	got, _ := s.GetCountSession(sess.ID)
	assert.Equal(t, 1, got.TotalItems)
	assert.Equal(t, 2.0, got.TotalVariance)

	res, err := s.CompleteCurrentArea(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, AreaCompletion{HasMoreAreas: true, CountCompleted: false}, res)
	got, _ = s.GetCountSession(sess.ID)
	assert.Equal(t, "a2", *got.CurrentAreaID)

	it, _, err = s.SaveCount(ctx, SaveCountInput{ProductID: "P2", CountedQuantity: 3, CurrentStock: 4})
	require.NoError(t, err)
	assert.Equal(t, "a2", *it.AreaID)

	res, err = s.CompleteCurrentArea(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, AreaCompletion{HasMoreAreas: false, CountCompleted: true}, res)

	got, _ = s.GetCountSession(sess.ID)
	assert.Equal(t, models.CountStatusCompleted, got.Status)
	assert.Nil(t, s.GetActiveSession())
	assert.Equal(t, 2, got.TotalItems)
	assert.Equal(t, 3.0, got.TotalVariance)

	s.Wait()
	assert.Equal(t, []string{"c1/a1=COMPLETED", "c1/a2=COMPLETED"}, remote.areaCalls())
	assert.Len(t, remote.itemCalls(), 2)
	assert.True(t, s.PendingWork().Empty())
}
