// Package cache implementa um cache em memória com TTL, limpeza amortizada
// e limite de tamanho.
//
// A expiração é preguiçosa: leituras e escritas disparam uma varredura completa
// no máximo uma vez por CleanupInterval. Quando o cache está cheio, Set remove a
// entrada inserida há mais tempo (FIFO por inserção, não LRU).
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"governance-gateway/clock"
	"governance-gateway/logging"
	"governance-gateway/metrics"
)

// Entry é um valor armazenado. É logicamente ausente quando now > StoredAt+TTL.
type Entry[T any] struct {
	Key      string
	Data     T
	StoredAt time.Time
	TTL      time.Duration

	seq uint64
}

// Stats é o retrato dos contadores do cache.
type Stats struct {
	Hits    uint64
	Misses  uint64
	Size    int
	MaxSize int
	HitRate float64
}

type Option func(*options)

type options struct {
	name            string
	defaultTTL      time.Duration
	maxSize         int
	cleanupInterval time.Duration
	clock           clock.Clock
	metrics         *metrics.Metrics
	log             *slog.Logger
}

func WithName(name string) Option { return func(o *options) { o.name = name } }

func WithDefaultTTL(d time.Duration) Option { return func(o *options) { o.defaultTTL = d } }

func WithMaxSize(n int) Option { return func(o *options) { o.maxSize = n } }

func WithCleanupInterval(d time.Duration) Option {
	return func(o *options) { o.cleanupInterval = d }
}

func WithClock(c clock.Clock) Option { return func(o *options) { o.clock = c } }

func WithMetrics(m *metrics.Metrics) Option { return func(o *options) { o.metrics = m } }

func WithLogger(l *slog.Logger) Option { return func(o *options) { o.log = l } }

// Cache é seguro para uso concorrente.
type Cache[T any] struct {
	mu        sync.Mutex
	entries   map[string]*Entry[T]
	seq       uint64
	hits      uint64
	misses    uint64
	lastSweep time.Time
	opts      options
}

func New[T any](opts ...Option) *Cache[T] {
	o := options{
		name:            "default",
		defaultTTL:      5 * time.Minute,
		maxSize:         1000,
		cleanupInterval: time.Minute,
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.clock = clock.OrReal(o.clock)
	if o.log == nil {
		o.log = logging.Component(nil, "cache", "infra")
	}
	if o.maxSize <= 0 {
		o.maxSize = 1
	}
	return &Cache[T]{
		entries:   make(map[string]*Entry[T]),
		lastSweep: o.clock.Now(),
		opts:      o,
	}
}

func (c *Cache[T]) Name() string { return c.opts.name }

// Get devolve o valor e true se a chave existir e não tiver expirado.
func (c *Cache[T]) Get(key string) (T, bool) {
	now := c.opts.clock.Now()

	c.mu.Lock()
	c.maybeSweepLocked(now)
	data, ok := c.lookupLocked(key, now)
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	c.mu.Unlock()

	c.opts.metrics.CacheLookup(c.opts.name, ok)
	return data, ok
}

// Has verifica a presença sem afetar as estatísticas.
func (c *Cache[T]) Has(key string) bool {
	now := c.opts.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.maybeSweepLocked(now)
	_, ok := c.lookupLocked(key, now)
	return ok
}

// Set grava data com o ttl informado; ttl <= 0 usa o TTL padrão.
func (c *Cache[T]) Set(key string, data T, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.opts.defaultTTL
	}
	now := c.opts.clock.Now()

	c.mu.Lock()
	c.maybeSweepLocked(now)
	evicted := 0
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.opts.maxSize {
		if c.evictOldestLocked() {
			evicted = 1
		}
	}
	c.seq++
	c.entries[key] = &Entry[T]{Key: key, Data: data, StoredAt: now, TTL: ttl, seq: c.seq}
	c.mu.Unlock()

	c.opts.metrics.CacheEviction(c.opts.name, "capacity", evicted)
}

// Delete remove a chave e informa se ela existia.
func (c *Cache[T]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	delete(c.entries, key)
	return ok
}

// GetOrSet implementa cache-aside. Em caso de miss, factory roda fora do lock
// e o resultado é armazenado. Misses concorrentes para a mesma chave não são
// deduplicados: cada chamador executa factory. Se factory falhar o cache não
// é alterado e o erro é devolvido.
func (c *Cache[T]) GetOrSet(ctx context.Context, key string, factory func(ctx context.Context) (T, error), ttl time.Duration) (T, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := factory(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	c.Set(key, v, ttl)
	return v, nil
}

// Clear remove todas as entradas; os contadores são preservados.
func (c *Cache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*Entry[T])
}

// Len conta as entradas armazenadas, incluindo expiradas ainda não varridas.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache[T]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.hits + c.misses
	if total == 0 {
		total = 1
	}
	return Stats{
		Hits:    c.hits,
		Misses:  c.misses,
		Size:    len(c.entries),
		MaxSize: c.opts.maxSize,
		HitRate: float64(c.hits) / float64(total),
	}
}

// Sweep força a varredura de expirados e devolve quantos foram removidos.
func (c *Cache[T]) Sweep() int {
	now := c.opts.clock.Now()
	c.mu.Lock()
	n := c.sweepLocked(now)
	c.mu.Unlock()

	c.opts.metrics.CacheEviction(c.opts.name, "expired", n)
	return n
}

// StartJanitor roda Sweep periodicamente até ctx encerrar. Opcional: sem ele
// a limpeza continua acontecendo de forma amortizada nos acessos.
func (c *Cache[T]) StartJanitor(ctx context.Context) {
	if c.opts.cleanupInterval <= 0 {
		return
	}
	t := time.NewTicker(c.opts.cleanupInterval)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := c.Sweep(); n > 0 {
					c.opts.log.Debug("cache sweep completed",
						"operation", "sweep", "outcome", "success",
						"cache", c.opts.name, "removed", n)
				}
			}
		}
	}()
}

func (c *Cache[T]) lookupLocked(key string, now time.Time) (T, bool) {
	e, ok := c.entries[key]
	if !ok {
		var zero T
		return zero, false
	}
	if clock.Expired(e.StoredAt, e.TTL, now) {
		delete(c.entries, key)
		var zero T
		return zero, false
	}
	return e.Data, true
}

func (c *Cache[T]) maybeSweepLocked(now time.Time) {
	if now.Sub(c.lastSweep) < c.opts.cleanupInterval {
		return
	}
	c.sweepLocked(now)
}

func (c *Cache[T]) sweepLocked(now time.Time) int {
	c.lastSweep = now
	removed := 0
	for k, e := range c.entries {
		if clock.Expired(e.StoredAt, e.TTL, now) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

func (c *Cache[T]) evictOldestLocked() bool {
	var oldest *Entry[T]
	for _, e := range c.entries {
		if oldest == nil || e.StoredAt.Before(oldest.StoredAt) ||
			(e.StoredAt.Equal(oldest.StoredAt) && e.seq < oldest.seq) {
			oldest = e
		}
	}
	if oldest == nil {
		return false
	}
	delete(c.entries, oldest.Key)
	return true
}
