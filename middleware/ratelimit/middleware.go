package ratelimit

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"governance-gateway/clock"
	"governance-gateway/middleware/ratelimit/application"
	"governance-gateway/middleware/ratelimit/domain"
)

type KeyFunc func(r *http.Request) string

// ActionFunc escolhe o nome da regra (ação) aplicada à requisição.
type ActionFunc func(r *http.Request) string

type Options struct {
	Store              domain.BucketStore
	Rules              map[string]domain.Rule
	Auditor            domain.DenialAuditor
	Stats              domain.StatsStore
	Clock              clock.Clock
	Log                *slog.Logger
	KeyFn              KeyFunc
	KeyHeader          string
	TrustXForwardedFor bool
	ActionFn           ActionFunc
	RejectStatus       int
}

func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			// pega o primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				parts := strings.Split(xff, ",")
				if len(parts) > 0 {
					ip := strings.TrimSpace(parts[0])
					if ip != "" {
						return ip
					}
				}
			}
		}

		// fallback: RemoteAddr
		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

// Middleware aplica a janela fixa por identidade:ação.
//
// Toda resposta leva X-RateLimit-Limit/Remaining/Reset/Window; a negação
// responde 429 com Retry-After e corpo JSON.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.ActionFn == nil {
		opts.ActionFn = RouteActionFunc(DefaultRoutes())
	}
	clk := clock.OrReal(opts.Clock)

	svc := application.Limiter{
		Store:   opts.Store,
		Rules:   opts.Rules,
		Auditor: opts.Auditor,
		Clock:   clk,
		Log:     opts.Log,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := opts.KeyFn(r)
			action := opts.ActionFn(r)

			dec := svc.CheckLimit(r.Context(), key, action)
			if opts.Stats != nil {
				_ = opts.Stats.Record(r.Context(), domain.StatsEvent{
					Key:     domain.Key(key),
					Layer:   domain.LayerWindow,
					Action:  action,
					Allowed: dec.Allowed,
					Method:  r.Method,
					Path:    r.URL.Path,
					At:      clk.Now(),
				})
			}

			setRateLimitHeaders(w.Header(), dec)
			if !dec.Allowed {
				w.Header().Set("Retry-After", formatInt(ceilSeconds(dec.RetryAfter)))
				writeJSON(w, opts.RejectStatus, map[string]any{
					"success": false,
					"error": map[string]any{
						"type":        "RATE_LIMITED",
						"message":     "rate limit exceeded for " + action,
						"retry_after": ceilSeconds(dec.RetryAfter),
					},
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func setRateLimitHeaders(h http.Header, dec domain.Decision) {
	h.Set("X-RateLimit-Limit", formatInt(dec.Limit))
	h.Set("X-RateLimit-Remaining", formatInt(dec.Remaining))
	if !dec.ResetAt.IsZero() {
		h.Set("X-RateLimit-Reset", formatInt64(dec.ResetAt.Unix()))
	}
	h.Set("X-RateLimit-Window", formatInt(int(dec.Window/time.Second)))
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
