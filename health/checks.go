package health

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shirou/gopsutil/v3/mem"

	"governance-gateway/apperr"
	"governance-gateway/cache"
	"governance-gateway/retry"
)

// EnvCheck falha quando alguma variável obrigatória está vazia.
func EnvCheck(vars ...string) Check {
	return Check{
		Name:     "environment",
		Critical: true,
		Fn: func(ctx context.Context) Result {
			var missing []string
			for _, v := range vars {
				if strings.TrimSpace(os.Getenv(v)) == "" {
					missing = append(missing, v)
				}
			}
			if len(missing) > 0 {
				return Result{
					Status:  StatusUnhealthy,
					Message: "missing environment variables: " + strings.Join(missing, ", "),
					Details: map[string]any{"missing": missing},
				}
			}
			return Result{Status: StatusHealthy, Details: map[string]any{"checked": len(vars)}}
		},
	}
}

type MemoryThresholds struct {
	DegradedPercent  float64
	UnhealthyPercent float64
}

func DefaultMemoryThresholds() MemoryThresholds {
	return MemoryThresholds{DegradedPercent: 85, UnhealthyPercent: 95}
}

// MemoryCheck avalia a memória do host (gopsutil) e reporta o heap do processo.
func MemoryCheck(th MemoryThresholds) Check {
	return memoryCheck(th, func(ctx context.Context) (float64, uint64, error) {
		vm, err := mem.VirtualMemoryWithContext(ctx)
		if err != nil {
			return 0, 0, err
		}
		return vm.UsedPercent, vm.Total, nil
	})
}

func memoryCheck(th MemoryThresholds, sample func(ctx context.Context) (usedPercent float64, total uint64, err error)) Check {
	if th.DegradedPercent <= 0 {
		th.DegradedPercent = DefaultMemoryThresholds().DegradedPercent
	}
	if th.UnhealthyPercent <= 0 {
		th.UnhealthyPercent = DefaultMemoryThresholds().UnhealthyPercent
	}
	return Check{
		Name: "memory",
		Fn: func(ctx context.Context) Result {
			var ms runtime.MemStats
			runtime.ReadMemStats(&ms)
			details := map[string]any{
				"heap_alloc_bytes": ms.HeapAlloc,
				"heap_sys_bytes":   ms.HeapSys,
				"goroutines":       runtime.NumGoroutine(),
			}

			used, total, err := sample(ctx)
			if err != nil {
				return Result{Status: StatusDegraded, Message: "host memory unavailable: " + err.Error(), Details: details}
			}
			details["used_percent"] = used
			details["total_bytes"] = total

			switch {
			case used >= th.UnhealthyPercent:
				return Result{Status: StatusUnhealthy, Message: fmt.Sprintf("memory usage %.1f%%", used), Details: details}
			case used >= th.DegradedPercent:
				return Result{Status: StatusDegraded, Message: fmt.Sprintf("memory usage %.1f%%", used), Details: details}
			}
			return Result{Status: StatusHealthy, Details: details}
		},
	}
}

// HTTPCheck faz GET em url via harness de retry. Respostas lentas (acima de
// slowAfter) ficam degraded.
func HTTPCheck(name, url string, client *http.Client, opts retry.Options, slowAfter time.Duration) Check {
	if client == nil {
		client = http.DefaultClient
	}
	if opts.Name == "" {
		opts.Name = "health_" + name
	}
	return Check{
		Name:    name,
		Timeout: 15 * time.Second,
		Fn: func(ctx context.Context) Result {
			start := time.Now()
			status, err := retry.Do(ctx, func(ctx context.Context) (int, error) {
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
				if err != nil {
					return 0, apperr.Wrap(err, apperr.Validation, "build_request", "invalid url")
				}
				resp, err := client.Do(req)
				if err != nil {
					return 0, apperr.Wrap(err, apperr.Network, "http_get", "request failed")
				}
				defer resp.Body.Close()
				if resp.StatusCode >= 400 {
					return resp.StatusCode, &apperr.StatusError{StatusCode: resp.StatusCode, URL: url}
				}
				return resp.StatusCode, nil
			}, opts)
			took := time.Since(start)

			details := map[string]any{"url": url, "took_ms": took.Milliseconds()}
			if err != nil {
				details["error_type"] = string(apperr.Classify(err))
				return Result{Status: StatusUnhealthy, Message: err.Error(), Details: details}
			}
			details["status_code"] = status
			if slowAfter > 0 && took > slowAfter {
				return Result{Status: StatusDegraded, Message: "slow response", Details: details}
			}
			return Result{Status: StatusHealthy, Details: details}
		},
	}
}

// StatsSource é qualquer coisa que exponha estatísticas de cache.
type StatsSource interface {
	Name() string
	Stats() cache.Stats
}

// CacheCheck degrada quando o cache passa de 90% da capacidade.
func CacheCheck(src StatsSource) Check {
	return Check{
		Name: "cache_" + src.Name(),
		Fn: func(ctx context.Context) Result {
			st := src.Stats()
			details := map[string]any{
				"size":     st.Size,
				"max_size": st.MaxSize,
				"hits":     st.Hits,
				"misses":   st.Misses,
				"hit_rate": st.HitRate,
			}
			if st.MaxSize > 0 && float64(st.Size) >= 0.9*float64(st.MaxSize) {
				return Result{Status: StatusDegraded, Message: "cache near capacity", Details: details}
			}
			return Result{Status: StatusHealthy, Details: details}
		},
	}
}

// RedisCheck faz PING no Redis.
func RedisCheck(rdb redis.Cmdable) Check {
	return Check{
		Name:     "redis",
		Critical: false,
		Timeout:  2 * time.Second,
		Fn: func(ctx context.Context) Result {
			if err := rdb.Ping(ctx).Err(); err != nil {
				return Result{Status: StatusUnhealthy, Message: "redis ping failed: " + err.Error()}
			}
			return Result{Status: StatusHealthy}
		},
	}
}

// SQLCheck faz ping no banco e reporta o uso do pool.
func SQLCheck(name string, db *sql.DB, critical bool) Check {
	return Check{
		Name:     name,
		Critical: critical,
		Timeout:  3 * time.Second,
		Fn: func(ctx context.Context) Result {
			if err := db.PingContext(ctx); err != nil {
				return Result{Status: StatusUnhealthy, Message: "database ping failed: " + err.Error()}
			}
			st := db.Stats()
			return Result{Status: StatusHealthy, Details: map[string]any{
				"open_connections": st.OpenConnections,
				"in_use":           st.InUse,
				"idle":             st.Idle,
			}}
		},
	}
}

// SaturationCheck degrada quando a fração ocupada passa de threshold.
func SaturationCheck(name string, saturation func() float64, threshold float64) Check {
	if threshold <= 0 {
		threshold = 0.9
	}
	return Check{
		Name: name,
		Fn: func(ctx context.Context) Result {
			s := saturation()
			details := map[string]any{"saturation": s}
			if s >= threshold {
				return Result{Status: StatusDegraded, Message: fmt.Sprintf("saturation %.0f%%", s*100), Details: details}
			}
			return Result{Status: StatusHealthy, Details: details}
		},
	}
}
