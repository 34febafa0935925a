package counting

import (
	"math"

	"go.uber.org/zap"

	"github.com/edukinara/happybar-sub000/internal/models"
)

// CountItemPatch is a partial update of a count item; nil fields are kept
type CountItemPatch struct {
	ProductName     *string  `json:"productName,omitempty"`
	Unit            *string  `json:"unit,omitempty"`
	Container       *string  `json:"container,omitempty"`
	CurrentStock    *float64 `json:"currentStock,omitempty"`
	CountedQuantity *float64 `json:"countedQuantity,omitempty"`
	ParLevel        *float64 `json:"parLevel,omitempty"`
	AreaID          *string  `json:"areaId,omitempty"`
}

// AddCountItem records a new observation. ID, Timestamp and Variance of data
// are assigned here. When the item references a known session, that
// session's running counters are advanced.
func (s *Store) AddCountItem(data models.CountItem) *models.CountItem {
	s.mu.Lock()
	it, events := s.addItemLocked(data)
	out := it.Clone()
	s.mu.Unlock()

	s.publish(events...)
	return out
}

func (s *Store) addItemLocked(data models.CountItem) (*models.CountItem, []Event) {
	now := s.timestamp()

	it := data.Clone()
	it.ID = newID(prefixItem, now)
	it.Timestamp = now
	it.Variance = it.CountedQuantity - it.CurrentStock
	it.RemoteID = nil
	it.Synced = false
	it.Seq = s.nextSeq()

	s.items = append([]*models.CountItem{it}, s.items...)
	s.saveItemLocked(it)

	events := []Event{entityEvent(EventItemSaved, it, it.Clone(), now)}

	if it.CountSessionID != nil {
		if sess := s.sessionLocked(*it.CountSessionID); sess != nil {
			sess.TotalItems++
			sess.TotalVariance += math.Abs(it.Variance)
			s.saveSessionLocked(sess)
			events = append(events, entityEvent(EventSessionSaved, sess, sess.Clone(), now))
		}
	}

	s.log.Debug("count item added", zap.String("id", it.ID), zap.String("product_id", it.ProductID))
	return it, events
}

// UpdateCountItem merges patch into item id. Unknown ids are ignored.
func (s *Store) UpdateCountItem(id string, patch CountItemPatch) (*models.CountItem, bool) {
	s.mu.Lock()
	idx := s.itemIndexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return nil, false
	}

	it := s.items[idx]
	if patch.ProductName != nil {
		it.ProductName = *patch.ProductName
	}
	if patch.Unit != nil {
		it.Unit = *patch.Unit
	}
	if patch.Container != nil {
		it.Container = *patch.Container
	}
	if patch.ParLevel != nil {
		it.ParLevel = *patch.ParLevel
	}
	if patch.AreaID != nil {
		it.AreaID = models.StringPtr(*patch.AreaID)
	}
	if patch.CurrentStock != nil || patch.CountedQuantity != nil {
		if patch.CurrentStock != nil {
			it.CurrentStock = *patch.CurrentStock
		}
		if patch.CountedQuantity != nil {
			it.CountedQuantity = *patch.CountedQuantity
		}
		it.Variance = it.CountedQuantity - it.CurrentStock
		it.Synced = false
	}
	s.saveItemLocked(it)

	now := s.timestamp()
	events := []Event{entityEvent(EventItemSaved, it, it.Clone(), now)}
	if ev, ok := s.recomputeCountersLocked(it.CountSessionID); ok {
		events = append(events, ev)
	}
	out := it.Clone()
	s.mu.Unlock()

	s.publish(events...)
	return out, true
}

// RemoveCountItem deletes item id. Unknown ids are ignored.
func (s *Store) RemoveCountItem(id string) bool {
	s.mu.Lock()
	idx := s.itemIndexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}

	it := s.items[idx]
	s.items = append(s.items[:idx], s.items[idx+1:]...)
	s.deleteItemLocked(id)

	now := s.timestamp()
	events := []Event{entityEvent(EventItemRemoved, it, nil, now)}
	if ev, ok := s.recomputeCountersLocked(it.CountSessionID); ok {
		events = append(events, ev)
	}
	s.mu.Unlock()

	s.publish(events...)
	return true
}

// ClearCountItems empties the ledger. Session counters drop to zero.
func (s *Store) ClearCountItems() {
	s.mu.Lock()
	s.items = nil
	if s.persist != nil {
		if err := s.persist.ClearItems(); err != nil {
			s.log.Error("failed to clear count items", zap.Error(err))
		}
	}

	now := s.timestamp()
	events := []Event{{Type: EventItemsCleared, EntityType: "count_item", At: now}}
	for _, sess := range s.sessions {
		if sess.TotalItems == 0 && sess.TotalVariance == 0 {
			continue
		}
		sess.TotalItems = 0
		sess.TotalVariance = 0
		s.saveSessionLocked(sess)
		events = append(events, entityEvent(EventSessionSaved, sess, sess.Clone(), now))
	}
	s.mu.Unlock()

	s.publish(events...)
}

// GetRecentCountItems returns the limit most recent items, newest first
func (s *Store) GetRecentCountItems(limit int) []*models.CountItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		return []*models.CountItem{}
	}
	limit = min(limit, len(s.items))
	out := make([]*models.CountItem, 0, limit)
	for _, it := range s.items[:limit] {
		out = append(out, it.Clone())
	}
	return out
}

// GetCountItemsBySession returns the items of one session, newest first
func (s *Store) GetCountItemsBySession(sessionID string) []*models.CountItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionItemsLocked(sessionID)
}

// GetCountItem returns a copy of item id
func (s *Store) GetCountItem(id string) (*models.CountItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.itemIndexLocked(id)
	if idx < 0 {
		return nil, false
	}
	return s.items[idx].Clone(), true
}

func (s *Store) sessionItemsLocked(sessionID string) []*models.CountItem {
	out := []*models.CountItem{}
	for _, it := range s.items {
		if it.InSession(sessionID) {
			out = append(out, it.Clone())
		}
	}
	return out
}

// recomputeCountersLocked rebuilds totalItems/totalVariance from the ledger.
// Items are summed oldest first, the same order the incremental path uses.
func (s *Store) recomputeCountersLocked(sessionID *string) (Event, bool) {
	if sessionID == nil {
		return Event{}, false
	}
	sess := s.sessionLocked(*sessionID)
	if sess == nil {
		return Event{}, false
	}

	total, variance := 0, 0.0
	for i := len(s.items) - 1; i >= 0; i-- {
		if s.items[i].InSession(sess.ID) {
			total++
			variance += math.Abs(s.items[i].Variance)
		}
	}
	sess.TotalItems = total
	sess.TotalVariance = variance
	s.saveSessionLocked(sess)

	return entityEvent(EventSessionSaved, sess, sess.Clone(), s.timestamp()), true
}
