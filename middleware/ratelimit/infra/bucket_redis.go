package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"governance-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// takeScript aplica a janela fixa de forma atômica no Redis.
//
// KEYS[1] = hash do bucket (campos count, reset_at em ms)
// ARGV[1] = agora (ms), ARGV[2] = janela (ms), ARGV[3] = máximo
// Retorna {permitido(0/1), count, reset_at}.
var takeScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])

local count = tonumber(redis.call('HGET', KEYS[1], 'count'))
local reset_at = tonumber(redis.call('HGET', KEYS[1], 'reset_at'))

if count == nil or reset_at == nil or now > reset_at then
  count = 0
  reset_at = now + window
  redis.call('HSET', KEYS[1], 'count', 0, 'reset_at', reset_at)
  redis.call('PEXPIRE', KEYS[1], window + 1000)
end

if count < max then
  count = redis.call('HINCRBY', KEYS[1], 'count', 1)
  return {1, count, reset_at}
end
return {0, count, reset_at}
`)

// RedisBucketStore compartilha as janelas fixas entre instâncias via Redis.
//
// É o backend plugável para quando o gateway roda com várias réplicas; a
// semântica de janela é a mesma do MemoryBucketStore.
type RedisBucketStore struct {
	rdb    redis.Scripter
	prefix string
}

type RedisBucketOption func(*RedisBucketStore)

func WithBucketPrefix(prefix string) RedisBucketOption {
	return func(s *RedisBucketStore) { s.prefix = strings.Trim(prefix, ":") }
}

func NewRedisBucketStore(rdb redis.Scripter, opts ...RedisBucketOption) *RedisBucketStore {
	s := &RedisBucketStore{rdb: rdb, prefix: "ratelimit:bucket"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Take implementa domain.BucketStore.
func (s *RedisBucketStore) Take(ctx context.Context, key domain.Key, rule domain.Rule, now time.Time) (domain.Decision, error) {
	res, err := takeScript.Run(ctx, s.rdb,
		[]string{s.prefix + ":" + string(key)},
		now.UnixMilli(), rule.Window.Milliseconds(), rule.MaxRequests,
	).Int64Slice()
	if err != nil {
		return domain.Decision{}, fmt.Errorf("redis bucket take: %w", err)
	}
	if len(res) != 3 {
		return domain.Decision{}, fmt.Errorf("redis bucket take: unexpected reply len %d", len(res))
	}

	resetAt := time.UnixMilli(res[2])
	dec := domain.Decision{
		Allowed: res[0] == 1,
		Limit:   rule.MaxRequests,
		ResetAt: resetAt,
		Window:  rule.Window,
	}
	if dec.Allowed {
		dec.Remaining = rule.MaxRequests - int(res[1])
		return dec, nil
	}
	dec.RetryAfter = resetAt.Sub(now)
	return dec, nil
}
