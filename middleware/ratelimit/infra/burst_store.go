package infra

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"governance-gateway/clock"
	"governance-gateway/middleware/ratelimit/domain"
)

// BurstStore guarda um token bucket (x/time/rate) por cliente para o guarda
// de rajada. Só suaviza picos; a cota de negócio por ação fica no BucketStore.
//
// Todas as decisões usam o relógio injetado, então o reabastecimento segue
// clock.Fake nos testes.
type BurstStore struct {
	mu      sync.Mutex
	buckets map[domain.Key]*burstEntry
	rps     rate.Limit
	burst   int

	idleTTL      time.Duration
	cleanupEvery time.Duration
	clock        clock.Clock
}

type burstEntry struct {
	bucket   *tokenBucket
	lastSeen time.Time
}

// tokenBucket adapta rate.Limiter para domain.Limiter.
type tokenBucket struct {
	lim *rate.Limiter
}

func (b *tokenBucket) AllowAt(now time.Time) (bool, time.Duration) {
	if b.lim.AllowN(now, 1) {
		return true, 0
	}
	per := b.lim.Limit()
	if per <= 0 || per == rate.Inf {
		return false, 0
	}
	missing := 1 - b.lim.TokensAt(now)
	if missing <= 0 {
		return false, 0
	}
	return false, time.Duration(missing / float64(per) * float64(time.Second))
}

// full indica bucket cheio: equivale a um limiter novo.
func (b *tokenBucket) full(now time.Time) bool {
	return b.lim.TokensAt(now) >= float64(b.lim.Burst())
}

type BurstOption func(*BurstStore)

func WithIdleTTL(d time.Duration) BurstOption {
	return func(s *BurstStore) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) BurstOption {
	return func(s *BurstStore) { s.cleanupEvery = d }
}

func WithBurstClock(c clock.Clock) BurstOption {
	return func(s *BurstStore) { s.clock = c }
}

func NewBurstStore(rps float64, burst int, opts ...BurstOption) *BurstStore {
	s := &BurstStore{
		buckets:      make(map[domain.Key]*burstEntry),
		rps:          rate.Limit(rps),
		burst:        burst,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.clock = clock.OrReal(s.clock)
	return s
}

func (s *BurstStore) RPS() float64 { return float64(s.rps) }
func (s *BurstStore) Burst() int   { return s.burst }

// Get implementa domain.LimiterStore.
func (s *BurstStore) Get(key domain.Key) domain.Limiter {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.buckets[key]
	if !ok {
		ent = &burstEntry{bucket: &tokenBucket{lim: rate.NewLimiter(s.rps, s.burst)}}
		s.buckets[key] = ent
	}
	ent.lastSeen = now
	return ent.bucket
}

func (s *BurstStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

// Cleanup remove clientes ociosos além do idleTTL e os que já reabasteceram
// o bucket inteiro. Devolve quantos saíram.
func (s *BurstStore) Cleanup() int {
	now := s.clock.Now()
	cutoff := now.Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, ent := range s.buckets {
		if ent.lastSeen.Before(cutoff) || ent.bucket.full(now) {
			delete(s.buckets, k)
			removed++
		}
	}
	return removed
}

// StartJanitor limpa periodicamente pelo relógio do store. Pare cancelando o contexto.
func (s *BurstStore) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.clock.After(s.cleanupEvery):
				s.Cleanup()
			}
		}
	}()
}
