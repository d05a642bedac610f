package ratelimit

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"governance-gateway/clock"
	"governance-gateway/middleware/ratelimit/domain"
	"governance-gateway/middleware/ratelimit/infra"
)

type recordingAuditor struct {
	mu      sync.Mutex
	denials []domain.Denial
}

func (a *recordingAuditor) RecordDenial(_ context.Context, d domain.Denial) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.denials = append(a.denials, d)
}

func newFixedWindow(t *testing.T, rules map[string]domain.Rule) (http.Handler, *clock.Fake, *recordingAuditor, *int) {
	t.Helper()
	clk := clock.NewFake(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	aud := &recordingAuditor{}
	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok")
	})
	h := Middleware(Options{
		Store:   infra.NewMemoryBucketStore(infra.WithBucketClock(clk)),
		Rules:   rules,
		Auditor: aud,
		Clock:   clk,
	})(next)
	return h, clk, aud, &calls
}

func TestMiddleware_AllowsThenRejectsSameKey(t *testing.T) {
	h, _, aud, calls := newFixedWindow(t, map[string]domain.Rule{
		domain.ActionDefault: {Window: time.Minute, MaxRequests: 2},
	})

	for i := 0; i < 2; i++ {
		r := httptest.NewRequest(http.MethodGet, "http://example/showTela", nil)
		r.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, w.Code)
		}
		if got := w.Header().Get("X-RateLimit-Remaining"); got != strconv.Itoa(1-i) {
			t.Fatalf("request %d: expected remaining %d, got %q", i+1, 1-i, got)
		}
	}

	r := httptest.NewRequest(http.MethodGet, "http://example/showTela", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "60" {
		t.Fatalf("expected Retry-After=60, got %q", got)
	}
	if *calls != 2 {
		t.Fatalf("expected next handler to be called twice, got %d", *calls)
	}
	if len(aud.denials) != 1 {
		t.Fatalf("expected one audited denial, got %d", len(aud.denials))
	}
	if aud.denials[0].Identity != "10.0.0.1" || aud.denials[0].Action != domain.ActionDefault {
		t.Fatalf("unexpected denial: %+v", aud.denials[0])
	}
}

func TestMiddleware_SetsRateLimitHeaders(t *testing.T) {
	h, clk, _, _ := newFixedWindow(t, nil)

	r := httptest.NewRequest(http.MethodGet, "http://example/api/orders", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if got := w.Header().Get("X-RateLimit-Limit"); got != "100" {
		t.Fatalf("expected api limit 100, got %q", got)
	}
	if got := w.Header().Get("X-RateLimit-Remaining"); got != "99" {
		t.Fatalf("expected remaining 99, got %q", got)
	}
	if got := w.Header().Get("X-RateLimit-Window"); got != "60" {
		t.Fatalf("expected window 60, got %q", got)
	}
	wantReset := strconv.FormatInt(clk.Now().Add(time.Minute).Unix(), 10)
	if got := w.Header().Get("X-RateLimit-Reset"); got != wantReset {
		t.Fatalf("expected reset %s, got %q", wantReset, got)
	}
}

func TestMiddleware_RejectionBodyIsJSON(t *testing.T) {
	h, clk, _, _ := newFixedWindow(t, nil)

	var last *httptest.ResponseRecorder
	for i := 0; i < 6; i++ {
		r := httptest.NewRequest(http.MethodPost, "http://example/auth/login", nil)
		r.RemoteAddr = "10.0.0.1:1234"
		last = httptest.NewRecorder()
		h.ServeHTTP(last, r)
		clk.Advance(time.Second)
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 6th auth attempt to be rejected, got %d", last.Code)
	}
	if ct := last.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected json content type, got %q", ct)
	}

	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Type       string `json:"type"`
			RetryAfter int    `json:"retry_after"`
		} `json:"error"`
	}
	if err := json.NewDecoder(last.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Success || body.Error.Type != "RATE_LIMITED" {
		t.Fatalf("unexpected body: %+v", body)
	}
	// janela de 15min, 5s já consumidos
	if want := 15*60 - 5; body.Error.RetryAfter != want {
		t.Fatalf("expected retry_after %d, got %d", want, body.Error.RetryAfter)
	}
}

func TestMiddleware_KeyByHeader(t *testing.T) {
	// duas chaves diferentes => ambos devem passar (cada chave tem sua própria janela)
	store := infra.NewMemoryBucketStore()
	hh := Middleware(Options{
		Store:     store,
		KeyHeader: "X-Api-Key",
		Rules:     map[string]domain.Rule{domain.ActionDefault: {Window: time.Minute, MaxRequests: 1}},
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, k := range []string{"k1", "k2"} {
		r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
		r.Header.Set("X-Api-Key", k)
		r.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		hh.ServeHTTP(w, r)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200 for key %s, got %d", k, w.Code)
		}
	}
	if store.Len() != 2 {
		t.Fatalf("expected one bucket per key, got %d", store.Len())
	}
}

func TestMiddleware_WindowResetsAfterExpiry(t *testing.T) {
	h, clk, _, calls := newFixedWindow(t, map[string]domain.Rule{
		domain.ActionDefault: {Window: time.Minute, MaxRequests: 1},
	})

	do := func() int {
		r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
		r.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w.Code
	}

	if code := do(); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	clk.Advance(time.Minute)
	if code := do(); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 exactly at reset boundary, got %d", code)
	}
	clk.Advance(time.Millisecond)
	if code := do(); code != http.StatusOK {
		t.Fatalf("expected 200 after window, got %d", code)
	}
	if *calls != 2 {
		t.Fatalf("expected 2 calls, got %d", *calls)
	}
}

func TestMiddleware_RecordsStatsWithAction(t *testing.T) {
	stats := infra.NewMemoryStatsStore()
	h := Middleware(Options{
		Store: infra.NewMemoryBucketStore(),
		Stats: stats,
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest(http.MethodPost, "http://example/api/trades", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	h.ServeHTTP(httptest.NewRecorder(), r)

	if got := stats.ByAction()[domain.ActionTradeCreation].Allowed; got != 1 {
		t.Fatalf("expected 1 allowed tradeCreation, got %d", got)
	}
	if got := stats.Total().Allowed; got != 1 {
		t.Fatalf("expected 1 allowed total, got %d", got)
	}
}

func TestBurstMiddleware_AllowsThenRejectsSameKey(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	store := infra.NewBurstStore(0.02, 1, infra.WithBurstClock(clk))

	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	})

	h := BurstMiddleware(BurstOptions{
		Store:           store,
		RetryAfter:      2500 * time.Millisecond,
		AddBurstHeaders: true,
		Clock:           clk,
	})(next)

	send := func() *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "http://example/showTela", nil)
		r.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w
	}

	w1 := send()
	if w1.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w1.Code)
	}
	if got := w1.Header().Get("X-Burst-Key"); got != "10.0.0.1" {
		t.Fatalf("expected X-Burst-Key header, got %q", got)
	}
	if got := w1.Header().Get("X-Burst-Size"); got != "1" {
		t.Fatalf("expected X-Burst-Size=1, got %q", got)
	}

	w2 := send()
	if w2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w2.Code)
	}
	// 0.02 rps: o próximo token chega em 50s, acima do piso de 2.5s
	if got := w2.Header().Get("Retry-After"); got != "50" {
		t.Fatalf("expected Retry-After=50, got %q", got)
	}
	if calls != 1 {
		t.Fatalf("expected next handler to be called once, got %d", calls)
	}

	clk.Advance(50 * time.Second)
	if w := send(); w.Code != http.StatusOK {
		t.Fatalf("expected 200 after token refill, got %d", w.Code)
	}
}

func TestBurstMiddleware_RetryAfterFloorRoundsUp(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	h := BurstMiddleware(BurstOptions{
		Store:      infra.NewBurstStore(10, 1, infra.WithBurstClock(clk)),
		RetryAfter: 2500 * time.Millisecond,
		Clock:      clk,
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
		r.RemoteAddr = "10.0.0.2:1234"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		if w.Code != want {
			t.Fatalf("request %d: expected %d, got %d", i+1, want, w.Code)
		}
		if want == http.StatusTooManyRequests && w.Header().Get("Retry-After") != "3" {
			t.Fatalf("expected Retry-After rounded up to 3, got %q", w.Header().Get("Retry-After"))
		}
	}
}

func TestBurstMiddleware_NoStoreIsPassThrough(t *testing.T) {
	h := BurstMiddleware(BurstOptions{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://example/", nil))
	if w.Code != http.StatusTeapot {
		t.Fatalf("expected pass-through, got %d", w.Code)
	}
}
