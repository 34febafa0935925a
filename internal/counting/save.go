package counting

import (
	"context"
	"errors"
	"math"

	"go.uber.org/zap"

	"github.com/edukinara/happybar-sub000/internal/models"
	"github.com/edukinara/happybar-sub000/internal/services/counts"
)

// SaveCountInput is what the count entry screen submits for one product
type SaveCountInput struct {
	InventoryItemID string  `json:"inventoryItemId"`
	ProductID       string  `json:"productId"`
	ProductName     string  `json:"productName"`
	SKU             string  `json:"sku,omitempty"`
	Barcode         string  `json:"barcode,omitempty"`
	Unit            string  `json:"unit"`
	Container       string  `json:"container,omitempty"`
	CurrentStock    float64 `json:"currentStock"`
	CountedQuantity float64 `json:"countedQuantity"`
	ParLevel        float64 `json:"parLevel"`
	Notes           string  `json:"notes,omitempty"`
}

func (in SaveCountInput) validate() error {
	if in.ProductID == "" {
		return ErrMissingProduct
	}
	q := in.CountedQuantity
	if math.IsNaN(q) || math.IsInf(q, 0) || q < 0 {
		return ErrInvalidQuantity
	}
	return nil
}

// SaveCount records a counted quantity against whatever session and area are
// current at the moment of the call. A product already counted in the same
// session and area is updated in place rather than added twice. Counts made
// with no active session are ad-hoc and always appended.
//
// When the session is synced the item is pushed to the backend; the Outcome
// of that push may be ignored.
func (s *Store) SaveCount(ctx context.Context, in SaveCountInput) (*models.CountItem, Outcome, error) {
	if err := in.validate(); err != nil {
		return nil, Outcome{}, err
	}

	s.mu.Lock()
	var sessionID, areaID *string
	if sess := s.activeSessionLocked(); sess != nil {
		sessionID = models.StringPtr(sess.ID)
		if sess.CurrentAreaID != nil {
			areaID = models.StringPtr(*sess.CurrentAreaID)
		}
	}

	var (
		it     *models.CountItem
		events []Event
	)
	if existing := s.findRecountLocked(in.ProductID, sessionID, areaID); existing != nil {
		now := s.timestamp()
		existing.CountedQuantity = in.CountedQuantity
		existing.Variance = existing.CountedQuantity - existing.CurrentStock
		existing.Timestamp = now
		existing.Synced = false
		s.saveItemLocked(existing)

		it = existing
		events = append(events, entityEvent(EventItemSaved, it, it.Clone(), now))
		if ev, ok := s.recomputeCountersLocked(sessionID); ok {
			events = append(events, ev)
		}
	} else {
		it, events = s.addItemLocked(models.CountItem{
			InventoryItemID: in.InventoryItemID,
			ProductID:       in.ProductID,
			ProductName:     in.ProductName,
			SKU:             in.SKU,
			Barcode:         in.Barcode,
			Unit:            in.Unit,
			Container:       in.Container,
			CurrentStock:    in.CurrentStock,
			CountedQuantity: in.CountedQuantity,
			ParLevel:        in.ParLevel,
			CountSessionID:  sessionID,
			AreaID:          areaID,
		})
	}
	out := it.Clone()
	s.mu.Unlock()

	s.publish(events...)

	if sessionID == nil || areaID == nil {
		return out, Outcome{}, nil
	}
	o := s.pushItem(ctx, out.ID, in.Notes)
	if o.OK() {
		if fresh, ok := s.GetCountItem(out.ID); ok {
			out = fresh
		}
	}
	return out, o, nil
}

// findRecountLocked returns the current item for (product, session, area).
// Ad-hoc counts never match.
func (s *Store) findRecountLocked(productID string, sessionID, areaID *string) *models.CountItem {
	if sessionID == nil {
		return nil
	}
	for _, it := range s.items {
		if it.ProductID != productID || !it.InSession(*sessionID) {
			continue
		}
		if sameArea(it.AreaID, areaID) {
			return it
		}
	}
	return nil
}

func sameArea(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// PushCountItem sends item id to the backend if its session is synced and
// its area has a backend id. Skipped when not pushable or already in flight.
func (s *Store) PushCountItem(ctx context.Context, id string) Outcome {
	return s.pushItem(ctx, id, "")
}

func (s *Store) pushItem(ctx context.Context, id, notes string) Outcome {
	if s.remote == nil {
		return Outcome{}
	}

	s.mu.Lock()
	idx := s.itemIndexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return attempted(ErrItemNotFound)
	}
	it := s.items[idx]
	apiID, ok := s.pushTargetLocked(it)
	if !ok || it.Synced {
		s.mu.Unlock()
		return Outcome{}
	}
	if _, busy := s.pushing[id]; busy {
		s.mu.Unlock()
		return Outcome{}
	}
	s.pushing[id] = struct{}{}
	qty := it.CountedQuantity
	req := counts.NewAddItemRequest(*it.AreaID, it.ProductID, qty, notes)
	s.mu.Unlock()

	ref, err := s.remote.AddCountItem(ctx, apiID, req)
	if err == nil && ref == nil {
		err = errors.New("backend returned no item id")
	}

	s.mu.Lock()
	delete(s.pushing, id)
	if err == nil {
		if idx := s.itemIndexLocked(id); idx >= 0 {
			it := s.items[idx]
			it.RemoteID = models.StringPtr(ref.ID)
			// a re-count during the push leaves the item for the next run
			it.Synced = it.CountedQuantity == qty
			s.saveItemLocked(it)
		}
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Warn("count item push failed", zap.String("id", id), zap.Error(err))
		return attempted(err)
	}
	return attempted(nil)
}

// pushTargetLocked returns the backend count id for it, if it can be pushed
func (s *Store) pushTargetLocked(it *models.CountItem) (string, bool) {
	if it.CountSessionID == nil || it.AreaID == nil || isLocalAreaID(*it.AreaID) {
		return "", false
	}
	sess := s.sessionLocked(*it.CountSessionID)
	if sess == nil || !sess.Synced() {
		return "", false
	}
	return *sess.APIID, true
}

// AreaRef names one area of one session
type AreaRef struct {
	SessionID string `json:"sessionId"`
	AreaID    string `json:"areaId"`
}

// PendingWork lists what the backend has not acknowledged yet
type PendingWork struct {
	UnsyncedSessions []string  `json:"unsyncedSessions"`
	PendingAreas     []AreaRef `json:"pendingAreas"`
	UnsyncedItems    []string  `json:"unsyncedItems"`
}

// Empty reports whether nothing is waiting
func (w PendingWork) Empty() bool {
	return len(w.UnsyncedSessions) == 0 && len(w.PendingAreas) == 0 && len(w.UnsyncedItems) == 0
}

// PendingWork collects sessions without a backend id (oldest first, including
// ones completed offline), areas whose status was not acknowledged and items
// not yet pushed.
func (s *Store) PendingWork() PendingWork {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var w PendingWork
	for i := len(s.sessions) - 1; i >= 0; i-- {
		sess := s.sessions[i]
		if !sess.Synced() {
			w.UnsyncedSessions = append(w.UnsyncedSessions, sess.ID)
			continue
		}
		for _, a := range sess.Areas {
			if a.PendingSync && !isLocalAreaID(a.ID) {
				w.PendingAreas = append(w.PendingAreas, AreaRef{SessionID: sess.ID, AreaID: a.ID})
			}
		}
	}
	for i := len(s.items) - 1; i >= 0; i-- {
		it := s.items[i]
		if it.Synced {
			continue
		}
		if _, ok := s.pushTargetLocked(it); ok {
			w.UnsyncedItems = append(w.UnsyncedItems, it.ID)
		}
	}
	return w
}
