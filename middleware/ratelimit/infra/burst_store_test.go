package infra

import (
	"testing"
	"time"

	"governance-gateway/clock"
	"governance-gateway/middleware/ratelimit/domain"
)

func TestBurstStore_GetSameKeyReturnsSameLimiter(t *testing.T) {
	s := NewBurstStore(10, 1)

	l1 := s.Get(domain.Key("k"))
	l2 := s.Get(domain.Key("k"))
	if l1 != l2 {
		t.Fatalf("expected same limiter pointer for same key")
	}
}

func TestBurstStore_LowBurstRejectsSecondImmediateAllow(t *testing.T) {
	fc := clock.NewFake(t0)
	s := NewBurstStore(0.02, 1, WithBurstClock(fc))

	lim := s.Get(domain.Key("k"))
	if ok, _ := lim.AllowAt(fc.Now()); !ok {
		t.Fatalf("expected first AllowAt to be true")
	}
	ok, wait := lim.AllowAt(fc.Now())
	if ok {
		t.Fatalf("expected second immediate AllowAt to be false (burst=1)")
	}
	// 0.02 rps: um token a cada 50s
	if wait < 49*time.Second || wait > 50*time.Second {
		t.Fatalf("expected wait close to 50s, got %s", wait)
	}
}

func TestBurstStore_RefillFollowsInjectedClock(t *testing.T) {
	fc := clock.NewFake(t0)
	s := NewBurstStore(2, 2, WithBurstClock(fc))
	lim := s.Get(domain.Key("k"))

	for i := 0; i < 2; i++ {
		if ok, _ := lim.AllowAt(fc.Now()); !ok {
			t.Fatalf("expected burst token %d", i+1)
		}
	}
	ok, wait := lim.AllowAt(fc.Now())
	if ok {
		t.Fatalf("expected empty bucket")
	}
	if wait <= 0 || wait > 500*time.Millisecond {
		t.Fatalf("expected wait up to 500ms at 2 rps, got %s", wait)
	}

	fc.Advance(500 * time.Millisecond)
	if ok, _ := lim.AllowAt(fc.Now()); !ok {
		t.Fatalf("expected one token after 500ms")
	}
	if ok, _ := lim.AllowAt(fc.Now()); ok {
		t.Fatalf("expected only one refilled token")
	}
}

func TestBurstStore_ZeroRateReportsNoWait(t *testing.T) {
	fc := clock.NewFake(t0)
	s := NewBurstStore(0, 1, WithBurstClock(fc))
	lim := s.Get(domain.Key("k"))

	_, _ = lim.AllowAt(fc.Now())
	ok, wait := lim.AllowAt(fc.Now().Add(time.Hour))
	if ok || wait != 0 {
		t.Fatalf("expected denial without refill estimate, got ok=%v wait=%s", ok, wait)
	}
}

func TestBurstStore_CleanupRemovesIdleEntries(t *testing.T) {
	fc := clock.NewFake(t0)
	s := NewBurstStore(0.001, 1, WithIdleTTL(time.Minute), WithCleanupEvery(0), WithBurstClock(fc))

	before := s.Get(domain.Key("k"))
	_, _ = before.AllowAt(fc.Now())

	fc.Advance(30 * time.Second)
	if n := s.Cleanup(); n != 0 {
		t.Fatalf("expected entry kept inside idle ttl, removed %d", n)
	}

	fc.Advance(31 * time.Second)
	if n := s.Cleanup(); n != 1 || s.Len() != 0 {
		t.Fatalf("expected idle entry to be removed, removed %d, left %d", n, s.Len())
	}

	after := s.Get(domain.Key("k"))
	if before == after {
		t.Fatalf("expected limiter to be recreated after cleanup")
	}
}

func TestBurstStore_CleanupDropsRefilledBuckets(t *testing.T) {
	fc := clock.NewFake(t0)
	s := NewBurstStore(10, 2, WithBurstClock(fc))

	busy := s.Get(domain.Key("busy"))
	_, _ = busy.AllowAt(fc.Now())
	_, _ = busy.AllowAt(fc.Now())
	s.Get(domain.Key("quiet"))

	if n := s.Cleanup(); n != 1 {
		t.Fatalf("expected only the full bucket removed, got %d", n)
	}

	fc.Advance(time.Second)
	if n := s.Cleanup(); n != 1 || s.Len() != 0 {
		t.Fatalf("expected refilled bucket removed, removed %d, left %d", n, s.Len())
	}
}
