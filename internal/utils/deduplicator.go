package utils

import (
	"context"
	"sync"
	"time"
)

type dedupEntry struct {
	at     time.Time
	result interface{}
	// closed once the claiming request remembered or released the id
	ready chan struct{}
}

func (e *dedupEntry) finished() bool {
	select {
	case <-e.ready:
		return true
	default:
		return false
	}
}

// Deduplicator remembers request ids for a TTL so a retried or
// double-tapped request is applied once.
type Deduplicator struct {
	mu      sync.Mutex
	ttl     time.Duration
	max     int
	entries map[string]*dedupEntry
	now     func() time.Time
}

// NewDeduplicator creates a deduplicator; ttl defaults to 5 minutes
func NewDeduplicator(ttl time.Duration) *Deduplicator {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Deduplicator{
		ttl:     ttl,
		max:     10000,
		entries: make(map[string]*dedupEntry),
		now:     time.Now,
	}
}

// Claim reserves id for the caller and reports false; the caller must then
// Remember or Release it. If id was already claimed within the TTL, Claim
// waits for that request to finish and returns its result with true. An
// empty id is never a duplicate.
func (d *Deduplicator) Claim(ctx context.Context, id string) (interface{}, bool, error) {
	if id == "" {
		return nil, false, nil
	}
	for {
		d.mu.Lock()
		e, ok := d.entries[id]
		if !ok || (e.finished() && d.now().Sub(e.at) >= d.ttl) {
			d.entries[id] = &dedupEntry{at: d.now(), ready: make(chan struct{})}
			d.purgeLocked()
			d.mu.Unlock()
			return nil, false, nil
		}
		d.mu.Unlock()

		select {
		case <-e.ready:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}

		d.mu.Lock()
		cur := d.entries[id]
		d.mu.Unlock()
		if cur == e {
			return e.result, true, nil
		}
		// released by the first request; try to claim it ourselves
	}
}

// Remember records the result of the request that claimed id
func (d *Deduplicator) Remember(id string, result interface{}) {
	if id == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[id]
	if !ok || e.finished() {
		e = &dedupEntry{ready: make(chan struct{})}
		d.entries[id] = e
	}
	e.at = d.now()
	e.result = result
	close(e.ready)
}

// Release gives up a claim whose request failed, so a retry is applied
func (d *Deduplicator) Release(id string) {
	if id == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if e, ok := d.entries[id]; ok && !e.finished() {
		delete(d.entries, id)
		close(e.ready)
	}
}

// Cleanup old entries if map gets too big
func (d *Deduplicator) purgeLocked() {
	if len(d.entries) <= d.max {
		return
	}
	now := d.now()
	for k, e := range d.entries {
		if e.finished() && now.Sub(e.at) > d.ttl {
			delete(d.entries, k)
		}
	}
}
