package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"governance-gateway/clock"
)

var epoch = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func newTestCache(t *testing.T, opts ...Option) (*Cache[string], *clock.Fake) {
	t.Helper()
	fc := clock.NewFake(epoch)
	opts = append([]Option{WithClock(fc)}, opts...)
	return New[string](opts...), fc
}

func TestCache_TTLBoundary(t *testing.T) {
	c, fc := newTestCache(t)
	ttl := 10 * time.Second
	c.Set("quote:BTC-USD", "64000", ttl)

	fc.Advance(ttl - time.Millisecond)
	v, ok := c.Get("quote:BTC-USD")
	require.True(t, ok)
	assert.Equal(t, "64000", v)

	fc.Advance(2 * time.Millisecond)
	_, ok = c.Get("quote:BTC-USD")
	assert.False(t, ok)
	assert.False(t, c.Has("quote:BTC-USD"))
}

func TestCache_DefaultTTLWhenZero(t *testing.T) {
	c, fc := newTestCache(t, WithDefaultTTL(time.Minute))
	c.Set("k", "v", 0)

	fc.Advance(59 * time.Second)
	assert.True(t, c.Has("k"))
	fc.Advance(2 * time.Second)
	assert.False(t, c.Has("k"))
}

func TestCache_EvictsOldestInsertionWhenFull(t *testing.T) {
	c, fc := newTestCache(t, WithMaxSize(3))

	c.Set("a", "1", time.Hour)
	fc.Advance(time.Second)
	c.Set("b", "2", time.Hour)
	fc.Advance(time.Second)
	c.Set("c", "3", time.Hour)

	// acesso recente não protege "a": a política é por inserção
	_, _ = c.Get("a")

	fc.Advance(time.Second)
	c.Set("d", "4", time.Hour)

	assert.Equal(t, 3, c.Len())
	assert.False(t, c.Has("a"))
	assert.True(t, c.Has("b"))
	assert.True(t, c.Has("c"))
	assert.True(t, c.Has("d"))
}

func TestCache_EvictionTieBreaksByInsertionOrder(t *testing.T) {
	c, _ := newTestCache(t, WithMaxSize(2))
	c.Set("first", "1", time.Hour)
	c.Set("second", "2", time.Hour)
	c.Set("third", "3", time.Hour)

	assert.False(t, c.Has("first"))
	assert.True(t, c.Has("second"))
	assert.True(t, c.Has("third"))
}

func TestCache_OverwriteDoesNotEvict(t *testing.T) {
	c, _ := newTestCache(t, WithMaxSize(2))
	c.Set("a", "1", time.Hour)
	c.Set("b", "2", time.Hour)
	c.Set("b", "3", time.Hour)

	assert.Equal(t, 2, c.Len())
	v, ok := c.Get("b")
	require.True(t, ok)
	assert.Equal(t, "3", v)
}

func TestCache_SizeNeverExceedsMax(t *testing.T) {
	c, fc := newTestCache(t, WithMaxSize(5))
	for i := 0; i < 50; i++ {
		c.Set(fmt.Sprintf("k%d", i), "v", time.Hour)
		fc.Advance(time.Millisecond)
		require.LessOrEqual(t, c.Len(), 5)
	}
}

func TestCache_ThrottledSweep(t *testing.T) {
	c, fc := newTestCache(t, WithCleanupInterval(time.Minute))
	c.Set("short", "v", time.Second)
	c.Set("long", "v", time.Hour)

	fc.Advance(10 * time.Second)
	// ainda não passou o intervalo de limpeza: a expirada segue no mapa
	c.Set("other", "v", time.Hour)
	assert.Equal(t, 3, c.Len())

	fc.Advance(time.Minute)
	c.Set("another", "v", time.Hour)
	assert.Equal(t, 3, c.Len())
	assert.False(t, c.Has("short"))
}

func TestCache_SweepRemovesExpired(t *testing.T) {
	c, fc := newTestCache(t)
	c.Set("a", "v", time.Second)
	c.Set("b", "v", time.Second)
	c.Set("c", "v", time.Hour)

	fc.Advance(2 * time.Second)
	assert.Equal(t, 2, c.Sweep())
	assert.Equal(t, 1, c.Len())
}

func TestCache_GetOrSetCallsFactoryOnMissOnly(t *testing.T) {
	c, _ := newTestCache(t)
	calls := 0
	factory := func(context.Context) (string, error) {
		calls++
		return "computed", nil
	}

	v, err := c.GetOrSet(context.Background(), "k", factory, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "computed", v)

	v, err = c.GetOrSet(context.Background(), "k", factory, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "computed", v)
	assert.Equal(t, 1, calls)
}

func TestCache_GetOrSetDoesNotStoreFailures(t *testing.T) {
	c, _ := newTestCache(t)
	boom := errors.New("upstream down")

	_, err := c.GetOrSet(context.Background(), "k", func(context.Context) (string, error) {
		return "", boom
	}, time.Minute)

	require.ErrorIs(t, err, boom)
	assert.False(t, c.Has("k"))
	assert.Equal(t, 0, c.Len())
}

// Misses concorrentes não são deduplicados; cada chamador executa a factory.
func TestCache_GetOrSetConcurrentMissesAreNotDeduplicated(t *testing.T) {
	c, _ := newTestCache(t)
	var calls atomic.Int32
	gate := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.GetOrSet(context.Background(), "k", func(context.Context) (string, error) {
				calls.Add(1)
				<-gate
				return "v", nil
			}, time.Minute)
		}()
	}

	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, time.Millisecond)
	close(gate)
	wg.Wait()
	assert.Equal(t, int32(2), calls.Load())
}

func TestCache_StatsHitRate(t *testing.T) {
	c, _ := newTestCache(t, WithMaxSize(10))
	assert.Equal(t, 0.0, c.Stats().HitRate)

	c.Set("k", "v", time.Minute)
	c.Get("k")
	c.Get("k")
	c.Get("k")
	c.Get("missing")

	st := c.Stats()
	assert.Equal(t, uint64(3), st.Hits)
	assert.Equal(t, uint64(1), st.Misses)
	assert.Equal(t, 0.75, st.HitRate)
	assert.Equal(t, 1, st.Size)
	assert.Equal(t, 10, st.MaxSize)
}

func TestCache_DeleteAndClear(t *testing.T) {
	c, _ := newTestCache(t)
	c.Set("a", "1", time.Minute)
	c.Set("b", "2", time.Minute)

	assert.True(t, c.Delete("a"))
	assert.False(t, c.Delete("a"))
	c.Clear()
	assert.Equal(t, 0, c.Len())
}
