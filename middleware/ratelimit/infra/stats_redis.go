package infra

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"governance-gateway/middleware/ratelimit/domain"
)

// RedisStatsStore acumula contadores de decisões em hashes:
//
//	<prefix>:total                   allowed|denied
//	<prefix>:layer                   <layer>:allowed|denied
//	<prefix>:action                  <action>:allowed|denied
//	<prefix>:route                   "<METHOD> <path>":allowed|denied
//	<prefix>:minute:<yyyymmddHHMM>   <action>:allowed|denied (expira em ttl)
//	<prefix>:denied:<key>            <action> (expira em ttl, só com trackKeys)
type RedisStatsStore struct {
	rdb redis.Cmdable

	prefix string
	ttl    time.Duration
	bucket string // "minute" (padrão) ou "none"

	// trackKeys grava negações por identidade, útil para achar abusadores.
	trackKeys bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		if p := strings.Trim(prefix, ":"); p != "" {
			s.prefix = p
		}
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb redis.Cmdable, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "ratelimit:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	outcome := outcomeField(ev.Allowed)
	action := strings.TrimSpace(ev.Action)
	if action == "" {
		action = domain.ActionDefault
	}

	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, s.prefix+":total", outcome, 1)
		if ev.Layer != "" {
			pipe.HIncrBy(ctx, s.prefix+":layer", ev.Layer+":"+outcome, 1)
		}
		pipe.HIncrBy(ctx, s.prefix+":action", action+":"+outcome, 1)

		if route := strings.TrimSpace(ev.Method + " " + ev.Path); route != "" {
			pipe.HIncrBy(ctx, s.prefix+":route", route+":"+outcome, 1)
		}

		if s.bucket == "minute" {
			bucketKey := s.prefix + ":minute:" + at.UTC().Format("200601021504")
			pipe.HIncrBy(ctx, bucketKey, action+":"+outcome, 1)
			if s.ttl > 0 {
				pipe.Expire(ctx, bucketKey, s.ttl)
			}
		}

		if s.trackKeys && !ev.Allowed {
			if k := strings.TrimSpace(string(ev.Key)); k != "" {
				keyKey := s.prefix + ":denied:" + k
				pipe.HIncrBy(ctx, keyKey, action, 1)
				if s.ttl > 0 {
					pipe.Expire(ctx, keyKey, s.ttl)
				}
			}
		}
		return nil
	})
	return err
}

func outcomeField(allowed bool) string {
	if allowed {
		return "allowed"
	}
	return "denied"
}
