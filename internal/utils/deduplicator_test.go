package utils

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestDeduplicator(t *testing.T) {
	d := NewDeduplicator(time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }
	ctx := context.Background()

	if _, dup, _ := d.Claim(ctx, "req-1"); dup {
		t.Fatal("First request should not be a duplicate")
	}
	d.Remember("req-1", "item-1")

	res, dup, err := d.Claim(ctx, "req-1")
	if err != nil || !dup || res != "item-1" {
		t.Fatalf("Expected duplicate with stored result, got %v %v %v", res, dup, err)
	}

	now = now.Add(2 * time.Minute)
	if _, dup, _ := d.Claim(ctx, "req-1"); dup {
		t.Error("Entry should expire after the TTL")
	}

	d.Remember("", "x")
	if _, dup, _ := d.Claim(ctx, ""); dup {
		t.Error("Empty id is never a duplicate")
	}
}

func TestDeduplicator_ConcurrentClaimsApplyOnce(t *testing.T) {
	d := NewDeduplicator(time.Minute)
	ctx := context.Background()

	var mu sync.Mutex
	applied := 0
	results := make([]interface{}, 8)

	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, dup, err := d.Claim(ctx, "req-1")
			if err != nil {
				t.Errorf("Claim failed: %v", err)
				return
			}
			if !dup {
				mu.Lock()
				applied++
				mu.Unlock()
				time.Sleep(10 * time.Millisecond)
				res = "item-1"
				d.Remember("req-1", res)
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	if applied != 1 {
		t.Fatalf("Expected the request to be applied once, got %d", applied)
	}
	for i, res := range results {
		if res != "item-1" {
			t.Errorf("Caller %d got %v, expected the first result", i, res)
		}
	}
}

func TestDeduplicator_ReleaseLetsRetryThrough(t *testing.T) {
	d := NewDeduplicator(time.Minute)
	ctx := context.Background()

	if _, dup, _ := d.Claim(ctx, "req-1"); dup {
		t.Fatal("First request should not be a duplicate")
	}

	claimed := make(chan bool, 1)
	go func() {
		_, dup, _ := d.Claim(ctx, "req-1")
		claimed <- dup
	}()

	time.Sleep(10 * time.Millisecond)
	d.Release("req-1")

	select {
	case dup := <-claimed:
		if dup {
			t.Error("A released id should be claimable again")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Waiting claim was not woken by Release")
	}
}

func TestDeduplicator_WaitHonoursContext(t *testing.T) {
	d := NewDeduplicator(time.Minute)
	d.Claim(context.Background(), "req-1")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, _, err := d.Claim(ctx, "req-1"); err == nil {
		t.Error("Expected the context error while the first request is in flight")
	}
}

func TestDeduplicator_Cleanup(t *testing.T) {
	d := NewDeduplicator(time.Minute)
	d.max = 2
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	d.Remember("a", 1)
	d.Remember("b", 2)
	now = now.Add(5 * time.Minute)
	d.Claim(context.Background(), "c")

	if len(d.entries) != 1 {
		t.Errorf("Expected stale entries to be purged, have %d", len(d.entries))
	}
}
