package counting

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/edukinara/happybar-sub000/internal/models"
	"github.com/edukinara/happybar-sub000/internal/services/counts"
)

// SessionInput describes a new count session
type SessionInput struct {
	Name         string             `json:"name"`
	Type         models.CountType   `json:"type"`
	Status       models.CountStatus `json:"status,omitempty"` // defaults to IN_PROGRESS
	LocationID   string             `json:"locationId"`
	LocationName string             `json:"locationName"`
	StorageAreas []string           `json:"storageAreas"`
	Notes        string             `json:"notes,omitempty"`
}

// SessionPatch is a local-only partial update; nil fields are kept
type SessionPatch struct {
	Name          *string             `json:"name,omitempty"`
	Notes         *string             `json:"notes,omitempty"`
	LocationName  *string             `json:"locationName,omitempty"`
	Status        *models.CountStatus `json:"status,omitempty"`
	CurrentAreaID *string             `json:"currentAreaId,omitempty"`
}

// CreateCountSession creates a local, unsynced session and makes it active.
// Storage areas get local ids so counting can start offline.
func (s *Store) CreateCountSession(in SessionInput) *models.CountSession {
	s.mu.Lock()
	now := s.timestamp()

	sess := s.newSessionLocked(in)
	areas := make(datatypes.JSONSlice[models.CountArea], 0, len(in.StorageAreas))
	for i, name := range in.StorageAreas {
		areas = append(areas, models.CountArea{
			ID:     newID(prefixArea, now),
			Name:   name,
			Order:  i,
			Status: models.AreaStatusPending,
		})
	}
	events := s.insertSessionLocked(sess, areas)
	out := sess.Clone()
	s.mu.Unlock()

	s.log.Info("count session created", zap.String("id", out.ID), zap.Bool("synced", false))
	s.publish(events...)
	return out
}

// CreateCountSessionWithAPI creates the backend count first and mirrors its
// areas locally. If the backend is unreachable the session is created
// locally instead; a session is always returned.
func (s *Store) CreateCountSessionWithAPI(ctx context.Context, in SessionInput) (*models.CountSession, Outcome) {
	if s.remote == nil {
		return s.CreateCountSession(in), Outcome{}
	}

	remote, err := s.remote.CreateCount(ctx, createRequest(in.LocationID, in.Name, in.Type, in.Notes, in.StorageAreas))
	if err == nil && (remote == nil || remote.ID == "") {
		err = errors.New("backend returned no count id")
	}
	if err != nil {
		s.log.Warn("remote count creation failed, creating local session", zap.Error(err))
		return s.CreateCountSession(in), attempted(err)
	}

	s.mu.Lock()
	sess := s.newSessionLocked(in)
	sess.APIID = models.StringPtr(remote.ID)
	events := s.insertSessionLocked(sess, remoteAreas(remote.Areas))
	out := sess.Clone()
	s.mu.Unlock()

	s.log.Info("count session created", zap.String("id", out.ID), zap.String("api_id", remote.ID))
	s.publish(events...)

	s.transitionRemote(ctx, remote.ID, models.CountStatusInProgress)
	return out, attempted(nil)
}

func (s *Store) newSessionLocked(in SessionInput) *models.CountSession {
	now := s.timestamp()
	status := in.Status
	if status == "" {
		status = models.CountStatusInProgress
	}
	return &models.CountSession{
		ID:           newID(prefixSession, now),
		Name:         in.Name,
		Type:         in.Type,
		Status:       status,
		LocationID:   in.LocationID,
		LocationName: in.LocationName,
		StorageAreas: append(datatypes.JSONSlice[string]{}, in.StorageAreas...),
		Notes:        in.Notes,
		StartedAt:    now,
		Seq:          s.nextSeq(),
	}
}

// insertSessionLocked attaches areas, prepends the session and activates it
func (s *Store) insertSessionLocked(sess *models.CountSession, areas datatypes.JSONSlice[models.CountArea]) []Event {
	sess.Areas = areas
	if len(areas) > 0 {
		sess.Areas[0].Status = models.AreaStatusInProgress
		sess.CurrentAreaID = models.StringPtr(sess.Areas[0].ID)
	}

	s.sessions = append([]*models.CountSession{sess}, s.sessions...)
	s.activeSessionID = models.StringPtr(sess.ID)
	s.saveSessionLocked(sess)
	s.saveActiveLocked()

	now := s.timestamp()
	return []Event{
		entityEvent(EventSessionSaved, sess, sess.Clone(), now),
		{Type: EventActiveChanged, EntityType: sess.GetEntityType(), EntityID: sess.ID, At: now},
	}
}

// UpdateCountSession merges patch into session id locally. A current area
// that is not one of the session's areas is rejected.
func (s *Store) UpdateCountSession(id string, patch SessionPatch) (*models.CountSession, bool) {
	s.mu.Lock()
	sess := s.sessionLocked(id)
	if sess == nil {
		s.mu.Unlock()
		return nil, false
	}
	if patch.CurrentAreaID != nil && sess.AreaIndex(*patch.CurrentAreaID) < 0 {
		s.mu.Unlock()
		return nil, false
	}

	if patch.Name != nil {
		sess.Name = *patch.Name
	}
	if patch.Notes != nil {
		sess.Notes = *patch.Notes
	}
	if patch.LocationName != nil {
		sess.LocationName = *patch.LocationName
	}
	if patch.Status != nil {
		sess.Status = *patch.Status
	}
	if patch.CurrentAreaID != nil {
		sess.CurrentAreaID = models.StringPtr(*patch.CurrentAreaID)
	}
	s.saveSessionLocked(sess)

	out := sess.Clone()
	s.mu.Unlock()

	s.publish(entityEvent(EventSessionSaved, out, out, s.timestamp()))
	return out, true
}

// CompleteCountSession marks session id COMPLETED locally and clears the
// active pointer if it pointed at it.
func (s *Store) CompleteCountSession(id string) (*models.CountSession, bool) {
	s.mu.Lock()
	sess, events := s.completeSessionLocked(id)
	if sess == nil {
		s.mu.Unlock()
		return nil, false
	}
	out := sess.Clone()
	s.mu.Unlock()

	s.log.Info("count session completed", zap.String("id", id))
	s.publish(events...)
	return out, true
}

// ApproveCountSession asks the backend to apply a completed, synced session
// to live inventory and mirrors the APPROVED status locally on success.
func (s *Store) ApproveCountSession(ctx context.Context, id string) (*models.CountSession, error) {
	s.mu.RLock()
	sess := s.sessionLocked(id)
	var apiID string
	var status models.CountStatus
	if sess != nil {
		status = sess.Status
		if sess.Synced() {
			apiID = *sess.APIID
		}
	}
	s.mu.RUnlock()

	switch {
	case sess == nil:
		return nil, ErrSessionNotFound
	case s.remote == nil:
		return nil, ErrBackendNotWired
	case apiID == "":
		return nil, ErrSessionNotSynced
	case status != models.CountStatusCompleted:
		return nil, ErrSessionNotCompleted
	}

	if err := s.awaitTransition(ctx, apiID); err != nil {
		return nil, fmt.Errorf("approve count %s: %w", apiID, err)
	}
	if _, err := s.remote.UpdateCount(ctx, apiID, counts.StatusUpdate(models.CountStatusApproved)); err != nil {
		return nil, fmt.Errorf("approve count %s: %w", apiID, err)
	}

	s.mu.Lock()
	sess = s.sessionLocked(id)
	if sess == nil {
		s.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	sess.Status = models.CountStatusApproved
	s.saveSessionLocked(sess)
	out := sess.Clone()
	s.mu.Unlock()

	s.log.Info("count session approved", zap.String("id", id), zap.String("api_id", apiID))
	s.publish(entityEvent(EventSessionSaved, out, out, s.timestamp()))
	return out, nil
}

func (s *Store) completeSessionLocked(id string) (*models.CountSession, []Event) {
	sess := s.sessionLocked(id)
	if sess == nil {
		return nil, nil
	}

	now := s.timestamp()
	sess.Status = models.CountStatusCompleted
	sess.CompletedAt = &now
	s.saveSessionLocked(sess)

	events := []Event{entityEvent(EventSessionCompleted, sess, sess.Clone(), now)}
	if s.activeSessionID != nil && *s.activeSessionID == id {
		s.activeSessionID = nil
		s.saveActiveLocked()
		events = append(events, Event{Type: EventActiveChanged, EntityType: sess.GetEntityType(), At: now})
	}
	return sess, events
}

// SetActiveSession points the engine at session id, or at nothing when id is
// nil. It reports false for an unknown id.
func (s *Store) SetActiveSession(id *string) bool {
	s.mu.Lock()
	if id != nil && s.sessionLocked(*id) == nil {
		s.mu.Unlock()
		return false
	}
	s.activeSessionID = nil
	if id != nil {
		s.activeSessionID = models.StringPtr(*id)
	}
	s.saveActiveLocked()
	ev := Event{Type: EventActiveChanged, EntityType: "count_session", At: s.timestamp()}
	if id != nil {
		ev.EntityID = *id
	}
	s.mu.Unlock()

	s.publish(ev)
	return true
}

// GetActiveSession returns a copy of the active session, or nil
func (s *Store) GetActiveSession() *models.CountSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeSessionLocked().Clone()
}

func (s *Store) activeSessionLocked() *models.CountSession {
	if s.activeSessionID == nil {
		return nil
	}
	return s.sessionLocked(*s.activeSessionID)
}

// GetCountSession returns a copy of session id
func (s *Store) GetCountSession(id string) (*models.CountSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess := s.sessionLocked(id)
	if sess == nil {
		return nil, false
	}
	return sess.Clone(), true
}

// ListCountSessions returns all sessions, newest first
func (s *Store) ListCountSessions() []*models.CountSession {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.CountSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Clone())
	}
	return out
}

// SyncSessionWithAPI mirrors a local session on the backend. Already synced
// sessions are left alone. Local area ids are replaced by the backend ids
// (matched by order) on the session and on its ledger items. The returned
// error is local only; the remote result is in the Outcome.
func (s *Store) SyncSessionWithAPI(ctx context.Context, id string) (Outcome, error) {
	s.mu.Lock()
	sess := s.sessionLocked(id)
	if sess == nil {
		s.mu.Unlock()
		return Outcome{}, ErrSessionNotFound
	}
	if sess.Synced() || s.remote == nil {
		s.mu.Unlock()
		return Outcome{}, nil
	}
	if _, busy := s.syncing[id]; busy {
		s.mu.Unlock()
		return Outcome{}, nil
	}
	s.syncing[id] = struct{}{}

	names := []string(sess.StorageAreas)
	if len(sess.Areas) > 0 {
		names = make([]string, len(sess.Areas))
		for i, a := range sess.Areas {
			names[i] = a.Name
		}
	}
	req := createRequest(sess.LocationID, sess.Name, sess.Type, sess.Notes, names)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.syncing, id)
		s.mu.Unlock()
	}()

	remote, err := s.remote.CreateCount(ctx, req)
	if err == nil && (remote == nil || remote.ID == "") {
		err = errors.New("backend returned no count id")
	}
	if err != nil {
		s.log.Warn("session sync failed", zap.String("id", id), zap.Error(err))
		return attempted(err), nil
	}

	s.mu.Lock()
	sess = s.sessionLocked(id)
	sess.APIID = models.StringPtr(remote.ID)
	events := s.adoptRemoteAreasLocked(sess, remoteAreas(remote.Areas))
	s.saveSessionLocked(sess)
	completed := sess.Status == models.CountStatusCompleted
	events = append(events, entityEvent(EventSessionSaved, sess, sess.Clone(), s.timestamp()))
	s.mu.Unlock()

	s.log.Info("count session synced", zap.String("id", id), zap.String("api_id", remote.ID))
	s.publish(events...)

	statuses := []models.CountStatus{models.CountStatusInProgress}
	if completed {
		statuses = append(statuses, models.CountStatusCompleted)
	}
	s.transitionRemote(ctx, remote.ID, statuses...)
	return attempted(nil), nil
}

// adoptRemoteAreasLocked swaps local area ids for backend ids by order and
// carries local progress over. Completed areas are flagged for a status push.
// Local areas the backend did not return keep their local ids.
func (s *Store) adoptRemoteAreasLocked(sess *models.CountSession, backend datatypes.JSONSlice[models.CountArea]) []Event {
	if len(sess.Areas) == 0 {
		sess.Areas = backend
		if len(backend) > 0 {
			sess.Areas[0].Status = models.AreaStatusInProgress
			sess.CurrentAreaID = models.StringPtr(sess.Areas[0].ID)
		}
		return nil
	}

	byOrder := make(map[int]models.CountArea, len(backend))
	for _, a := range backend {
		byOrder[a.Order] = a
	}

	remap := make(map[string]string)
	areas := make(datatypes.JSONSlice[models.CountArea], 0, len(sess.Areas))
	for _, local := range sess.Areas {
		b, ok := byOrder[local.Order]
		if !ok {
			areas = append(areas, local)
			continue
		}
		remap[local.ID] = b.ID
		areas = append(areas, models.CountArea{
			ID:          b.ID,
			Name:        b.Name,
			Order:       local.Order,
			Status:      local.Status,
			PendingSync: local.Status == models.AreaStatusCompleted,
		})
	}
	sess.Areas = areas
	if sess.CurrentAreaID != nil {
		if to, ok := remap[*sess.CurrentAreaID]; ok {
			sess.CurrentAreaID = models.StringPtr(to)
		}
	}

	var events []Event
	now := s.timestamp()
	for _, it := range s.items {
		if !it.InSession(sess.ID) || it.AreaID == nil {
			continue
		}
		if to, ok := remap[*it.AreaID]; ok {
			it.AreaID = models.StringPtr(to)
			s.saveItemLocked(it)
			events = append(events, entityEvent(EventItemSaved, it, it.Clone(), now))
		}
	}
	return events
}

// transitionRemote moves the backend count through statuses, in order,
// without blocking the caller. Transitions queued for the same count run one
// after another.
func (s *Store) transitionRemote(ctx context.Context, apiID string, statuses ...models.CountStatus) {
	done := make(chan struct{})
	s.mu.Lock()
	prev := s.transitions[apiID]
	s.transitions[apiID] = done
	s.mu.Unlock()

	s.background(ctx, "transition count", func(ctx context.Context) error {
		defer s.finishTransition(apiID, done)
		if prev != nil {
			select {
			case <-prev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		for _, status := range statuses {
			if _, err := s.remote.UpdateCount(ctx, apiID, counts.StatusUpdate(status)); err != nil {
				return fmt.Errorf("count %s to %s: %w", apiID, status, err)
			}
		}
		return nil
	})
}

func (s *Store) finishTransition(apiID string, done chan struct{}) {
	s.mu.Lock()
	if s.transitions[apiID] == done {
		delete(s.transitions, apiID)
	}
	s.mu.Unlock()
	close(done)
}

// awaitTransition blocks until the status updates queued for apiID have been
// sent (or given up on), so a later status cannot overtake them.
func (s *Store) awaitTransition(ctx context.Context, apiID string) error {
	s.mu.RLock()
	done := s.transitions[apiID]
	s.mu.RUnlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func createRequest(locationID, name string, typ models.CountType, notes string, areaNames []string) counts.CreateCountRequest {
	req := counts.CreateCountRequest{
		LocationID: locationID,
		Name:       name,
		Type:       typ,
		Notes:      notes,
	}
	for i, n := range areaNames {
		req.Areas = append(req.Areas, counts.AreaInput{Name: n, Order: i})
	}
	return req
}

// remoteAreas converts backend areas into pending local areas, ordered
func remoteAreas(in []counts.Area) datatypes.JSONSlice[models.CountArea] {
	out := make(datatypes.JSONSlice[models.CountArea], 0, len(in))
	for _, a := range in {
		out = append(out, models.CountArea{
			ID:     a.ID,
			Name:   a.Name,
			Order:  a.Order,
			Status: models.AreaStatusPending,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}
