package application

import (
	"context"
	"time"

	"governance-gateway/middleware/ratelimit/domain"
)

// ConcurrencyService protege o upstream limitando chamadas em voo.
// A espera por vaga é limitada por AcquireTimeout.
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
}

// Acquire devolve (release, true) ao conseguir vaga. Sem timeout espera até
// o ctx encerrar; ok=false significa que nada foi adquirido.
func (s ConcurrencyService) Acquire(ctx context.Context) (func(), bool) {
	if s.Pool == nil {
		return func() {}, true
	}

	if s.AcquireTimeout <= 0 {
		return s.Pool.Acquire(ctx)
	}

	acqCtx, cancel := context.WithTimeout(ctx, s.AcquireTimeout)
	defer cancel()
	return s.Pool.Acquire(acqCtx)
}

// Saturation devolve a fração ocupada do pool (0 quando não há pool).
func (s ConcurrencyService) Saturation() float64 {
	if s.Pool == nil {
		return 0
	}
	used, capacity := s.Pool.Usage()
	if capacity <= 0 {
		return 0
	}
	return float64(used) / float64(capacity)
}
