package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"governance-gateway/middleware/ratelimit/infra"
)

func TestConcurrencyMiddleware_TimesOutWhenNoSlot(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	secondDone := make(chan struct{})
	var startedOnce sync.Once

	// handler que segura a vaga até liberarmos.
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedOnce.Do(func() { close(started) })
		<-release
		w.WriteHeader(http.StatusOK)
	})

	h := ConcurrencyMiddleware(ConcurrencyOptions{
		Max:            1,
		RejectStatus:   http.StatusServiceUnavailable,
		AcquireTimeout: 25 * time.Millisecond,
	})(next)

	var wg sync.WaitGroup
	wg.Add(2)

	// request 1: ocupa o semáforo e fica pendurado
	go func() {
		defer wg.Done()
		r1 := httptest.NewRequest(http.MethodGet, "http://example/", nil)
		w1 := httptest.NewRecorder()
		h.ServeHTTP(w1, r1)
		if w1.Code != http.StatusOK {
			t.Errorf("expected first request 200, got %d", w1.Code)
		}
	}()

	// espera a primeira realmente entrar no handler
	select {
	case <-started:
	case <-time.After(200 * time.Millisecond):
		close(release)
		wg.Wait()
		t.Fatalf("timeout waiting first request to start")
	}

	// request 2: deve falhar por timeout ao tentar adquirir
	go func() {
		defer wg.Done()
		r2 := httptest.NewRequest(http.MethodGet, "http://example/", nil)
		w2 := httptest.NewRecorder()
		h.ServeHTTP(w2, r2)
		if w2.Code != http.StatusServiceUnavailable {
			t.Errorf("expected second request 503, got %d", w2.Code)
		}
		close(secondDone)
	}()

	// garante que a segunda terminou antes de liberar a primeira (senão a 2ª pode adquirir)
	select {
	case <-secondDone:
	case <-time.After(500 * time.Millisecond):
		close(release)
		wg.Wait()
		t.Fatalf("timeout waiting second request to finish")
	}

	// libera a primeira
	close(release)
	wg.Wait()
}

func TestConcurrencyMiddleware_SharesInjectedPool(t *testing.T) {
	pool := &countingPool{}
	h := ConcurrencyMiddleware(ConcurrencyOptions{Pool: pool})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if pool.inUse != 1 {
			t.Errorf("expected slot held during handler, got %d", pool.inUse)
		}
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://example/", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if pool.inUse != 0 || pool.acquired != 1 {
		t.Fatalf("expected slot released after one acquire, got inUse=%d acquired=%d", pool.inUse, pool.acquired)
	}
}

func TestConcurrencyMiddleware_RecordsRejection(t *testing.T) {
	stats := infra.NewMemoryStatsStore()
	h := ConcurrencyMiddleware(ConcurrencyOptions{Pool: fullPool{}, Stats: stats})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("handler must not run without a slot")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "http://example/api/trades", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if got := stats.ByAction()["concurrency"]; got.Denied != 1 {
		t.Fatalf("expected one concurrency rejection, got %+v", got)
	}
}

type fullPool struct{}

func (fullPool) Acquire(context.Context) (func(), bool) { return nil, false }
func (fullPool) Usage() (int, int)                      { return 1, 1 }

type countingPool struct {
	inUse    int
	acquired int
}

func (p *countingPool) Acquire(context.Context) (func(), bool) {
	p.inUse++
	p.acquired++
	return func() { p.inUse-- }, true
}

func (p *countingPool) Usage() (int, int) { return p.inUse, 4 }
