package ratelimit

import (
	"net/http"
	"time"

	"governance-gateway/clock"
	"governance-gateway/middleware/ratelimit/application"
	"governance-gateway/middleware/ratelimit/domain"
)

type BurstOptions struct {
	Store              domain.LimiterStore
	Stats              domain.StatsStore
	KeyFn              KeyFunc
	KeyHeader          string
	TrustXForwardedFor bool
	RejectStatus       int
	RetryAfter         time.Duration
	AddBurstHeaders    bool
	Clock              clock.Clock
}

type rateInfo interface {
	RPS() float64
	Burst() int
}

// BurstMiddleware aplica o token bucket por cliente antes das janelas fixas.
func BurstMiddleware(opts BurstOptions) func(next http.Handler) http.Handler {
	if opts.Store == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.RetryAfter == 0 {
		opts.RetryAfter = 1 * time.Second
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}

	clk := clock.OrReal(opts.Clock)
	svc := application.BurstService{
		Store:      opts.Store,
		RetryAfter: opts.RetryAfter,
		Clock:      clk,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := opts.KeyFn(r)

			if opts.AddBurstHeaders {
				w.Header().Set("X-Burst-Key", key)
				if ri, ok := opts.Store.(rateInfo); ok {
					w.Header().Set("X-Burst-RPS", formatFloat(ri.RPS()))
					w.Header().Set("X-Burst-Size", formatInt(ri.Burst()))
				}
			}

			dec := svc.Decide(domain.Key(key))
			if opts.Stats != nil {
				_ = opts.Stats.Record(r.Context(), domain.StatsEvent{
					Key:     domain.Key(key),
					Layer:   domain.LayerBurst,
					Action:  domain.LayerBurst,
					Allowed: dec.Allowed,
					Method:  r.Method,
					Path:    r.URL.Path,
					At:      clk.Now(),
				})
			}
			if !dec.Allowed {
				w.Header().Set("Retry-After", formatInt(ceilSeconds(dec.RetryAfter)))
				http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
