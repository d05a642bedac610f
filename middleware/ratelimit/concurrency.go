package ratelimit

import (
	"net/http"
	"time"

	"governance-gateway/middleware/ratelimit/application"
	"governance-gateway/middleware/ratelimit/domain"
	"governance-gateway/middleware/ratelimit/infra"
)

type ConcurrencyOptions struct {
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration
	// Pool permite compartilhar o semáforo com a checagem de saturação.
	// Quando nil, um pool de tamanho Max é criado.
	Pool domain.SlotPool
	// Stats recebe as rejeições por falta de vaga.
	Stats domain.StatsStore
}

func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 && opts.Pool == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}
	if opts.Pool == nil {
		opts.Pool = infra.NewChanPool(opts.Max)
	}

	svc := application.ConcurrencyService{
		Pool:           opts.Pool,
		AcquireTimeout: opts.AcquireTimeout,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, ok := svc.Acquire(r.Context())
			if !ok {
				if opts.Stats != nil {
					_ = opts.Stats.Record(r.Context(), domain.StatsEvent{
						Layer:  domain.LayerConcurrency,
						Action: domain.LayerConcurrency,
						Method: r.Method,
						Path:   r.URL.Path,
						At:     time.Now(),
					})
				}
				http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
