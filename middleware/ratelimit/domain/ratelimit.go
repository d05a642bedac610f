package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"time"
)

type Key string

// BucketKey monta a chave "identidade:ação" de uma janela fixa.
func BucketKey(identity, action string) Key {
	return Key(identity + ":" + action)
}

// Rule parametriza uma janela fixa: no máximo MaxRequests por Window.
type Rule struct {
	Window      time.Duration
	MaxRequests int
}

// Regras nomeadas. O chamador escolhe a regra pelo nome da ação.
const (
	ActionAuth          = "auth"
	ActionTradeCreation = "tradeCreation"
	ActionMessageSend   = "messageSend"
	ActionKYCSubmission = "kycSubmission"
	ActionAPI           = "api"
	ActionDefault       = "default"
)

// DefaultRules devolve uma cópia nova do conjunto padrão de regras.
func DefaultRules() map[string]Rule {
	return map[string]Rule{
		ActionAuth:          {Window: 15 * time.Minute, MaxRequests: 5},
		ActionTradeCreation: {Window: 5 * time.Minute, MaxRequests: 10},
		ActionMessageSend:   {Window: time.Minute, MaxRequests: 30},
		ActionKYCSubmission: {Window: time.Hour, MaxRequests: 3},
		ActionAPI:           {Window: time.Minute, MaxRequests: 100},
		ActionDefault:       {Window: time.Minute, MaxRequests: 60},
	}
}

// Bucket é o contador de uma janela fixa.
//
// Invariante: Count nunca passa de MaxRequests para requisições permitidas;
// o bucket é substituído (não incrementado) quando now > ResetAt.
type Bucket struct {
	Count   int
	ResetAt time.Time
}

type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	Window    time.Duration
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
}

// BucketStore aplica a regra de janela fixa de forma atômica para a chave.
//
// Implementações: memória (mapa + mutex) e Redis (script Lua). Nenhuma delas
// oferece consistência entre instâncias além do que o próprio backend garante.
type BucketStore interface {
	Take(ctx context.Context, key Key, rule Rule, now time.Time) (Decision, error)
}

// Limiter é o token bucket de um cliente no guarda de rajada.
//
// AllowAt consome um token no instante now. Sem token disponível devolve
// false e quanto falta para o próximo (0 quando o bucket não reabastece).
type Limiter interface {
	AllowAt(now time.Time) (ok bool, wait time.Duration)
}

// LimiterStore obtém um limiter por chave (ex: IP, API key, usuário).
type LimiterStore interface {
	Get(Key) Limiter
}

// Denial descreve uma requisição bloqueada pelo rate limit.
type Denial struct {
	Identity string
	Action   string
	Rule     Rule
	ResetAt  time.Time
	At       time.Time
}

// DenialAuditor recebe toda negação. Bloquear e auditar andam juntos:
// cada negação vira um registro de atividade suspeita.
//
// A implementação deve ser best-effort e nunca bloquear a decisão.
type DenialAuditor interface {
	RecordDenial(ctx context.Context, d Denial)
}
