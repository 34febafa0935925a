package counting

import (
	"context"

	"go.uber.org/zap"

	"github.com/edukinara/happybar-sub000/internal/models"
	"github.com/edukinara/happybar-sub000/internal/services/counts"
)

// AreaProgress is how far a session has got through its areas
type AreaProgress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// Current is the 1-indexed area shown while counting, capped at Total
func (p AreaProgress) Current() int {
	return min(p.Completed+1, p.Total)
}

// Done reports whether every area is completed
func (p AreaProgress) Done() bool {
	return p.Total > 0 && p.Completed == p.Total
}

// AreaCompletion is the result of completing the current area
type AreaCompletion struct {
	HasMoreAreas   bool `json:"hasMoreAreas"`
	CountCompleted bool `json:"countCompleted"`
}

// GetAreaProgress counts completed areas of session id. Unknown sessions
// report zero areas.
func (s *Store) GetAreaProgress(sessionID string) AreaProgress {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess := s.sessionLocked(sessionID)
	if sess == nil {
		return AreaProgress{}
	}
	return progressOf(sess)
}

func progressOf(sess *models.CountSession) AreaProgress {
	p := AreaProgress{Total: len(sess.Areas)}
	for _, a := range sess.Areas {
		if a.Status == models.AreaStatusCompleted {
			p.Completed++
		}
	}
	return p
}

// nextIncompleteArea returns the index of the first non-completed area after
// from, wrapping around, or -1.
func nextIncompleteArea(areas []models.CountArea, from int) int {
	n := len(areas)
	for step := 1; step < n; step++ {
		i := (from + step) % n
		if areas[i].Status != models.AreaStatusCompleted {
			return i
		}
	}
	return -1
}

// firstIncompleteArea returns the index of the first non-completed area, or -1
func firstIncompleteArea(areas []models.CountArea) int {
	for i, a := range areas {
		if a.Status != models.AreaStatusCompleted {
			return i
		}
	}
	return -1
}

// CompleteCurrentArea completes the session's current area and moves on to
// the next incomplete one. On the last area the backend count is completed
// too, and only if that succeeds is the session completed locally;
// otherwise {false, false} tells the caller to offer manual completion.
//
// Progression is always applied locally. If the backend does not acknowledge
// the area, the result is returned together with an *AreaSyncError.
//
// Repeating the call is harmless: a closed session reports {false, true} and
// a session whose areas are all done reports {false, false}, both without
// touching local state or the backend.
func (s *Store) CompleteCurrentArea(ctx context.Context, sessionID string) (AreaCompletion, error) {
	s.mu.Lock()
	sess := s.sessionLocked(sessionID)
	if sess == nil {
		s.mu.Unlock()
		return AreaCompletion{}, ErrSessionNotFound
	}
	if sess.Status == models.CountStatusCompleted || sess.Status == models.CountStatusApproved {
		s.mu.Unlock()
		return AreaCompletion{CountCompleted: true}, nil
	}
	if sess.CurrentAreaID == nil {
		s.mu.Unlock()
		return AreaCompletion{}, ErrNoCurrentArea
	}
	idx := sess.AreaIndex(*sess.CurrentAreaID)
	if idx < 0 {
		s.mu.Unlock()
		return AreaCompletion{}, ErrNoCurrentArea
	}
	if sess.Areas[idx].Status == models.AreaStatusCompleted && nextIncompleteArea(sess.Areas, idx) < 0 {
		s.mu.Unlock()
		return AreaCompletion{}, nil
	}

	now := s.timestamp()
	area := &sess.Areas[idx]
	area.Status = models.AreaStatusCompleted
	area.PendingSync = sess.Synced()
	areaID := area.ID

	next := nextIncompleteArea(sess.Areas, idx)
	if next >= 0 {
		if sess.Areas[next].Status == models.AreaStatusPending {
			sess.Areas[next].Status = models.AreaStatusInProgress
		}
		sess.CurrentAreaID = models.StringPtr(sess.Areas[next].ID)
	}
	s.saveSessionLocked(sess)

	var apiID string
	if sess.APIID != nil {
		apiID = *sess.APIID
	}
	events := []Event{
		{Type: EventAreaCompleted, EntityType: sess.GetEntityType(), EntityID: sess.ID, Data: map[string]string{"areaId": areaID}, At: now},
		entityEvent(EventSessionSaved, sess, sess.Clone(), now),
	}
	s.mu.Unlock()

	s.log.Info("area completed",
		zap.String("session_id", sessionID),
		zap.String("area_id", areaID),
		zap.Bool("has_more", next >= 0))
	s.publish(events...)

	var syncErr *AreaSyncError
	if apiID != "" {
		if o := s.pushAreaStatus(ctx, sessionID, apiID, areaID, models.AreaStatusCompleted); o.Err != nil {
			syncErr = &AreaSyncError{SessionID: sessionID, AreaID: areaID, Err: o.Err}
		}
	}

	if next >= 0 {
		return AreaCompletion{HasMoreAreas: true}, errOrNil(syncErr)
	}

	if apiID == "" || syncErr != nil {
		return AreaCompletion{}, errOrNil(syncErr)
	}

	// the IN_PROGRESS sent at creation must reach the backend first
	if err := s.awaitTransition(ctx, apiID); err != nil {
		s.log.Warn("auto-completion skipped, earlier status update still pending",
			zap.String("session_id", sessionID), zap.Error(err))
		return AreaCompletion{}, nil
	}
	if _, err := s.remote.UpdateCount(ctx, apiID, counts.StatusUpdate(models.CountStatusCompleted)); err != nil {
		s.log.Warn("auto-completion failed, manual completion required",
			zap.String("session_id", sessionID), zap.Error(err))
		return AreaCompletion{}, nil
	}

	s.CompleteCountSession(sessionID)
	return AreaCompletion{CountCompleted: true}, nil
}

// pushAreaStatus sends an area status and clears its pendingSync flag once
// the backend acknowledges, provided the status has not changed meanwhile.
func (s *Store) pushAreaStatus(ctx context.Context, sessionID, apiID, areaID string, status models.AreaStatus) Outcome {
	if s.remote == nil {
		return attempted(ErrBackendNotWired)
	}
	if err := s.remote.UpdateAreaStatus(ctx, apiID, areaID, status); err != nil {
		s.log.Warn("area status sync failed",
			zap.String("session_id", sessionID),
			zap.String("area_id", areaID),
			zap.Error(err))
		return attempted(err)
	}

	s.mu.Lock()
	if sess := s.sessionLocked(sessionID); sess != nil {
		if i := sess.AreaIndex(areaID); i >= 0 && sess.Areas[i].Status == status && sess.Areas[i].PendingSync {
			sess.Areas[i].PendingSync = false
			s.saveSessionLocked(sess)
		}
	}
	s.mu.Unlock()
	return attempted(nil)
}

// RetryAreaStatus re-sends the status of an area still flagged pendingSync
func (s *Store) RetryAreaStatus(ctx context.Context, sessionID, areaID string) Outcome {
	s.mu.RLock()
	sess := s.sessionLocked(sessionID)
	if sess == nil || !sess.Synced() {
		s.mu.RUnlock()
		return Outcome{}
	}
	i := sess.AreaIndex(areaID)
	if i < 0 || !sess.Areas[i].PendingSync || isLocalAreaID(areaID) {
		s.mu.RUnlock()
		return Outcome{}
	}
	apiID, status := *sess.APIID, sess.Areas[i].Status
	s.mu.RUnlock()

	return s.pushAreaStatus(ctx, sessionID, apiID, areaID, status)
}

// RehydrateCurrentSessionItems re-derives the active session's view after
// the caller has been away: the current area is moved to the first incomplete
// area when it is missing, stale or already completed, and the running
// counters are rebuilt from the ledger. No item is discarded.
func (s *Store) RehydrateCurrentSessionItems() (*models.CountSession, []*models.CountItem, error) {
	s.mu.Lock()
	sess := s.activeSessionLocked()
	if sess == nil {
		s.mu.Unlock()
		return nil, nil, ErrNoActiveSession
	}

	if len(sess.Areas) > 0 {
		cur := -1
		if sess.CurrentAreaID != nil {
			cur = sess.AreaIndex(*sess.CurrentAreaID)
		}
		if cur < 0 || sess.Areas[cur].Status == models.AreaStatusCompleted {
			target := firstIncompleteArea(sess.Areas)
			if target < 0 {
				// all done: keep a valid pointer, prefer the last area
				target = cur
				if target < 0 {
					target = len(sess.Areas) - 1
				}
			}
			if sess.Areas[target].Status == models.AreaStatusPending {
				sess.Areas[target].Status = models.AreaStatusInProgress
			}
			sess.CurrentAreaID = models.StringPtr(sess.Areas[target].ID)
		}
	} else {
		sess.CurrentAreaID = nil
	}

	events := []Event{}
	if ev, ok := s.recomputeCountersLocked(&sess.ID); ok {
		events = append(events, ev)
	}
	out := sess.Clone()
	items := s.sessionItemsLocked(sess.ID)
	s.mu.Unlock()

	s.publish(events...)
	return out, items, nil
}

// errOrNil avoids returning a typed nil inside a non-nil error interface
func errOrNil(e *AreaSyncError) error {
	if e == nil {
		return nil
	}
	return e
}
