package counting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/edukinara/happybar-sub000/internal/models"
	"github.com/edukinara/happybar-sub000/internal/services/counts"
)

var errOffline = errors.New("network unreachable")

// fakeRemote is an in-memory backend. Areas are numbered a1, a2, ... in
// request order; counts are c1, c2, ...
type fakeRemote struct {
	mu sync.Mutex

	createErr   error
	completeErr error // only for status COMPLETED
	areaErr     error
	itemErr     error

	// IN_PROGRESS updates wait for this channel to close
	holdInProgress chan struct{}

	counts   int
	statuses []models.CountStatus
	areas    []string // "<countID>/<areaID>=<status>"
	items    []counts.AddItemRequest
}

func (f *fakeRemote) CreateCount(_ context.Context, req counts.CreateCountRequest) (*counts.Count, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.counts++
	out := &counts.Count{ID: fmt.Sprintf("c%d", f.counts), Status: models.CountStatusDraft}
	for i, a := range req.Areas {
		out.Areas = append(out.Areas, counts.Area{ID: fmt.Sprintf("a%d", i+1), Name: a.Name, Order: a.Order})
	}
	return out, nil
}

func (f *fakeRemote) UpdateCount(ctx context.Context, id string, req counts.UpdateCountRequest) (*counts.Count, error) {
	f.mu.Lock()
	hold := f.holdInProgress
	f.mu.Unlock()
	if hold != nil && req.Status != nil && *req.Status == models.CountStatusInProgress {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if req.Status == nil {
		return &counts.Count{ID: id}, nil
	}
	if *req.Status == models.CountStatusCompleted && f.completeErr != nil {
		return nil, f.completeErr
	}
	f.statuses = append(f.statuses, *req.Status)
	return &counts.Count{ID: id, Status: *req.Status}, nil
}

func (f *fakeRemote) UpdateAreaStatus(_ context.Context, countID, areaID string, status models.AreaStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.areaErr != nil {
		return f.areaErr
	}
	f.areas = append(f.areas, fmt.Sprintf("%s/%s=%s", countID, areaID, status))
	return nil
}

func (f *fakeRemote) AddCountItem(_ context.Context, countID string, req counts.AddItemRequest) (*counts.CountItemRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.itemErr != nil {
		return nil, f.itemErr
	}
	f.items = append(f.items, req)
	return &counts.CountItemRef{ID: fmt.Sprintf("ci%d", len(f.items))}, nil
}

func (f *fakeRemote) set(fn func(f *fakeRemote)) {
	f.mu.Lock()
	fn(f)
	f.mu.Unlock()
}

func (f *fakeRemote) statusCalls() []models.CountStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.CountStatus(nil), f.statuses...)
}

func (f *fakeRemote) areaCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.areas...)
}

func (f *fakeRemote) itemCalls() []counts.AddItemRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]counts.AddItemRequest(nil), f.items...)
}

// recorder collects published events
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Publish(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func newOnlineStore(t *testing.T) (*Store, *fakeRemote) {
	t.Helper()
	remote := &fakeRemote{}
	s := NewStore(zap.NewNop(), WithReconciler(remote))
	t.Cleanup(s.Wait)
	return s, remote
}

func weekly(areas ...string) SessionInput {
	return SessionInput{
		Name:         "Weekly",
		Type:         models.CountTypeFull,
		LocationID:   "loc-1",
		LocationName: "Main Bar",
		StorageAreas: areas,
	}
}
