package infra

import (
	"context"

	"governance-gateway/metrics"
	"governance-gateway/middleware/ratelimit/domain"
)

// PromStatsStore exporta as decisões como contador Prometheus por ação.
// Chave e rota ficam de fora para limitar a cardinalidade.
type PromStatsStore struct {
	m *metrics.Metrics
}

func NewPromStatsStore(m *metrics.Metrics) *PromStatsStore {
	return &PromStatsStore{m: m}
}

func (s *PromStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	action := ev.Action
	if action == "" {
		action = "unknown"
	}
	s.m.RateLimitDecision(action, ev.Allowed)
	return nil
}

// MultiStats repassa o evento para vários stores e devolve o primeiro erro.
type MultiStats []domain.StatsStore

func (m MultiStats) Record(ctx context.Context, ev domain.StatsEvent) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
