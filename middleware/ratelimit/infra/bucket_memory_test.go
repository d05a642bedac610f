package infra

import (
	"context"
	"testing"
	"time"

	"governance-gateway/clock"
	"governance-gateway/middleware/ratelimit/domain"
)

var t0 = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

func TestMemoryBucketStore_AllowsExactlyMaxThenDenies(t *testing.T) {
	s := NewMemoryBucketStore()
	rule := domain.Rule{Window: time.Minute, MaxRequests: 3}
	key := domain.BucketKey("user-1", "tradeCreation")

	for i := 0; i < 3; i++ {
		dec, err := s.Take(context.Background(), key, rule, t0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !dec.Allowed {
			t.Fatalf("expected request %d to be allowed", i+1)
		}
		if dec.Remaining != 2-i {
			t.Fatalf("expected remaining=%d, got %d", 2-i, dec.Remaining)
		}
	}

	dec, _ := s.Take(context.Background(), key, rule, t0.Add(10*time.Second))
	if dec.Allowed {
		t.Fatalf("expected 4th request to be denied")
	}
	if dec.Remaining != 0 {
		t.Fatalf("expected remaining=0, got %d", dec.Remaining)
	}
	if dec.RetryAfter != 50*time.Second {
		t.Fatalf("expected RetryAfter=50s, got %s", dec.RetryAfter)
	}

	b, ok := s.Peek(key)
	if !ok || b.Count != 3 {
		t.Fatalf("denial must not increment count, got %+v", b)
	}
}

func TestMemoryBucketStore_ResetsAfterWindow(t *testing.T) {
	s := NewMemoryBucketStore()
	rule := domain.Rule{Window: time.Minute, MaxRequests: 2}
	key := domain.BucketKey("user-1", "auth")

	_, _ = s.Take(context.Background(), key, rule, t0)
	_, _ = s.Take(context.Background(), key, rule, t0)

	// exatamente no resetAt a janela ainda vale
	dec, _ := s.Take(context.Background(), key, rule, t0.Add(time.Minute))
	if dec.Allowed {
		t.Fatalf("expected denial at the window boundary")
	}

	dec, _ = s.Take(context.Background(), key, rule, t0.Add(time.Minute+time.Millisecond))
	if !dec.Allowed {
		t.Fatalf("expected allowed after window elapsed")
	}
	if dec.Remaining != rule.MaxRequests-1 {
		t.Fatalf("expected remaining=%d, got %d", rule.MaxRequests-1, dec.Remaining)
	}
	if !dec.ResetAt.Equal(t0.Add(2*time.Minute + time.Millisecond)) {
		t.Fatalf("expected fresh resetAt, got %s", dec.ResetAt)
	}
}

func TestMemoryBucketStore_KeysAreIndependent(t *testing.T) {
	s := NewMemoryBucketStore()
	rule := domain.Rule{Window: time.Minute, MaxRequests: 1}

	a, _ := s.Take(context.Background(), domain.BucketKey("u1", "auth"), rule, t0)
	b, _ := s.Take(context.Background(), domain.BucketKey("u1", "messageSend"), rule, t0)
	c, _ := s.Take(context.Background(), domain.BucketKey("u2", "auth"), rule, t0)
	if !a.Allowed || !b.Allowed || !c.Allowed {
		t.Fatalf("expected independent buckets per identity:action")
	}
}

func TestMemoryBucketStore_CleanupRemovesElapsedBuckets(t *testing.T) {
	fc := clock.NewFake(t0)
	s := NewMemoryBucketStore(WithBucketClock(fc))
	_, _ = s.Take(context.Background(), "a", domain.Rule{Window: time.Second, MaxRequests: 1}, t0)
	_, _ = s.Take(context.Background(), "b", domain.Rule{Window: time.Hour, MaxRequests: 1}, t0)

	fc.Advance(2 * time.Second)
	if n := s.Cleanup(); n != 1 {
		t.Fatalf("expected 1 bucket removed, got %d", n)
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 bucket left, got %d", s.Len())
	}
}
