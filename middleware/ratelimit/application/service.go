package application

import (
	"context"
	"log/slog"
	"time"

	"governance-gateway/clock"
	"governance-gateway/logging"
	"governance-gateway/middleware/ratelimit/domain"
)

// Limiter concentra a regra de aplicação do rate limit por janela fixa.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
// Toda negação é repassada ao Auditor.
type Limiter struct {
	Store   domain.BucketStore
	Rules   map[string]domain.Rule
	Auditor domain.DenialAuditor
	Clock   clock.Clock
	Log     *slog.Logger
}

// RuleFor devolve a regra da ação, caindo para "default" quando desconhecida.
func (l Limiter) RuleFor(action string) domain.Rule {
	rules := l.Rules
	if rules == nil {
		rules = domain.DefaultRules()
	}
	if r, ok := rules[action]; ok {
		return r
	}
	if r, ok := rules[domain.ActionDefault]; ok {
		return r
	}
	return domain.DefaultRules()[domain.ActionDefault]
}

// CheckLimit aplica a regra nomeada pela ação para a identidade.
func (l Limiter) CheckLimit(ctx context.Context, identity, action string) domain.Decision {
	return l.CheckLimitWithRule(ctx, identity, action, l.RuleFor(action))
}

// CheckLimitWithRule aplica uma regra explícita. Sem Store, tudo é permitido.
// Erro do Store falha aberto: a requisição passa e o erro é logado.
func (l Limiter) CheckLimitWithRule(ctx context.Context, identity, action string, rule domain.Rule) domain.Decision {
	open := domain.Decision{Allowed: true, Limit: rule.MaxRequests, Remaining: rule.MaxRequests, Window: rule.Window}
	if l.Store == nil || rule.MaxRequests <= 0 {
		return open
	}
	now := clock.OrReal(l.Clock).Now()

	dec, err := l.Store.Take(ctx, domain.BucketKey(identity, action), rule, now)
	if err != nil {
		l.logger().WarnContext(ctx, "rate limit store failed, allowing request",
			"operation", "check_limit",
			"outcome", "fail_open",
			"action", action,
			"error", err.Error(),
		)
		open.ResetAt = now.Add(rule.Window)
		return open
	}

	if !dec.Allowed && l.Auditor != nil {
		l.Auditor.RecordDenial(ctx, domain.Denial{
			Identity: identity,
			Action:   action,
			Rule:     rule,
			ResetAt:  dec.ResetAt,
			At:       now,
		})
	}
	return dec
}

func (l Limiter) logger() *slog.Logger {
	if l.Log != nil {
		return l.Log
	}
	return logging.Component(nil, "ratelimit", "application")
}

// BurstService decide pelo token bucket por cliente (guarda de rajada).
//
// RetryAfter funciona como piso: a resposta usa o maior entre ele e o
// tempo até o próximo token.
type BurstService struct {
	Store      domain.LimiterStore
	RetryAfter time.Duration
	Clock      clock.Clock
}

func (s BurstService) Decide(key domain.Key) domain.Decision {
	if s.Store == nil {
		return domain.Decision{Allowed: true}
	}
	if s.RetryAfter <= 0 {
		s.RetryAfter = 1 * time.Second
	}

	lim := s.Store.Get(key)
	if lim == nil {
		return domain.Decision{Allowed: true}
	}
	ok, wait := lim.AllowAt(clock.OrReal(s.Clock).Now())
	if ok {
		return domain.Decision{Allowed: true}
	}
	return domain.Decision{Allowed: false, RetryAfter: max(wait, s.RetryAfter)}
}
