package application

import (
	"context"

	rldomain "governance-gateway/middleware/ratelimit/domain"
)

// RateLimitAuditor liga as negações do rate limit ao monitor: cada bloqueio
// vira auditoria de atividade suspeita e alerta rate_limit_breach.
type RateLimitAuditor struct {
	Monitor *Monitor
}

var _ rldomain.DenialAuditor = RateLimitAuditor{}

func (a RateLimitAuditor) RecordDenial(ctx context.Context, d rldomain.Denial) {
	if a.Monitor == nil {
		return
	}
	a.Monitor.MonitorRateLimitBreach(ctx, d.Identity, d.Action, map[string]any{
		"limit":     d.Rule.MaxRequests,
		"window_ms": d.Rule.Window.Milliseconds(),
		"reset_at":  d.ResetAt,
	})
}
