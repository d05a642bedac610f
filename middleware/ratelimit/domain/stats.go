package domain

import (
	"context"
	"time"
)

// Camadas que registram decisões.
const (
	LayerBurst       = "burst"
	LayerWindow      = "window"
	LayerConcurrency = "concurrency"
)

// StatsEvent é uma decisão de limite vista por uma das camadas do gateway.
//
// Key é a identidade do cliente; gravar Key ou Path sem controle aumenta a
// cardinalidade no Redis e no Prometheus.
type StatsEvent struct {
	Key     Key
	Layer   string
	Action  string
	Allowed bool

	Method string
	Path   string

	At time.Time
}

// StatsStore recebe as decisões. Erros são ignorados pelo chamador.
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
