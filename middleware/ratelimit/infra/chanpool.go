package infra

import (
	"context"

	"governance-gateway/middleware/ratelimit/domain"
)

// ChanPool limita as requisições em voo para o upstream com um channel
// bufferizado como semáforo.
type ChanPool struct {
	sem chan struct{}
}

var _ domain.SlotPool = (*ChanPool)(nil)

// NewChanPool cria o semáforo com capacidade max; max <= 0 vira 1.
func NewChanPool(max int) *ChanPool {
	if max <= 0 {
		max = 1
	}
	return &ChanPool{sem: make(chan struct{}, max)}
}

func (p *ChanPool) Acquire(ctx context.Context) (func(), bool) {
	select {
	case p.sem <- struct{}{}:
		return func() { <-p.sem }, true
	case <-ctx.Done():
		return nil, false
	}
}

func (p *ChanPool) Usage() (int, int) {
	return len(p.sem), cap(p.sem)
}

// Saturation devolve a fração de vagas ocupadas, entre 0 e 1.
func (p *ChanPool) Saturation() float64 {
	return float64(len(p.sem)) / float64(cap(p.sem))
}
