package infra

import (
	"context"
	"sync"
	"time"

	"governance-gateway/clock"
	"governance-gateway/middleware/ratelimit/domain"
)

// MemoryBucketStore guarda as janelas fixas em um mapa local ao processo.
//
// Cada instância do gateway tem a sua tabela: com N instâncias o limite
// agregado efetivo é ~N vezes o configurado.
type MemoryBucketStore struct {
	mu           sync.Mutex
	buckets      map[domain.Key]*domain.Bucket
	cleanupEvery time.Duration
	clock        clock.Clock
}

type MemoryBucketOption func(*MemoryBucketStore)

func WithBucketCleanupEvery(d time.Duration) MemoryBucketOption {
	return func(s *MemoryBucketStore) { s.cleanupEvery = d }
}

func WithBucketClock(c clock.Clock) MemoryBucketOption {
	return func(s *MemoryBucketStore) { s.clock = c }
}

func NewMemoryBucketStore(opts ...MemoryBucketOption) *MemoryBucketStore {
	s := &MemoryBucketStore{
		buckets:      make(map[domain.Key]*domain.Bucket),
		cleanupEvery: time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.clock = clock.OrReal(s.clock)
	return s
}

// Take implementa domain.BucketStore.
func (s *MemoryBucketStore) Take(_ context.Context, key domain.Key, rule domain.Rule, now time.Time) (domain.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok || now.After(b.ResetAt) {
		b = &domain.Bucket{Count: 0, ResetAt: now.Add(rule.Window)}
		s.buckets[key] = b
	}

	dec := domain.Decision{
		Limit:   rule.MaxRequests,
		ResetAt: b.ResetAt,
		Window:  rule.Window,
	}
	if b.Count < rule.MaxRequests {
		b.Count++
		dec.Allowed = true
		dec.Remaining = rule.MaxRequests - b.Count
		return dec, nil
	}

	dec.RetryAfter = b.ResetAt.Sub(now)
	return dec, nil
}

// Peek devolve uma cópia do bucket, se existir.
func (s *MemoryBucketStore) Peek(key domain.Key) (domain.Bucket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[key]
	if !ok {
		return domain.Bucket{}, false
	}
	return *b, true
}

// Reset remove o bucket da chave (ex.: após login bem-sucedido).
func (s *MemoryBucketStore) Reset(key domain.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets, key)
}

func (s *MemoryBucketStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

// Cleanup remove buckets cuja janela já terminou.
func (s *MemoryBucketStore) Cleanup() int {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, b := range s.buckets {
		if now.After(b.ResetAt) {
			delete(s.buckets, k)
			removed++
		}
	}
	return removed
}

// StartJanitor inicia a limpeza periódica. Pare cancelando o contexto.
func (s *MemoryBucketStore) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}
