package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"governance-gateway/cache"
	"governance-gateway/config"
	"governance-gateway/health"
	"governance-gateway/logging"
	"governance-gateway/metrics"
	"governance-gateway/middleware/ratelimit"
	rldomain "governance-gateway/middleware/ratelimit/domain"
	rlinfra "governance-gateway/middleware/ratelimit/infra"
	"governance-gateway/retry"
	"governance-gateway/security/application"
	"governance-gateway/security/domain"
	"governance-gateway/security/infra"
)

type gateway struct {
	health         *health.Monitor
	monitor        *application.Monitor
	dashboardCache *cache.Cache[domain.Dashboard]
	upstream       http.Handler
	// securityLimiter aplica a regra "api" às rotas administrativas.
	securityLimiter func(http.Handler) http.Handler

	closers []func(ctx context.Context) error
}

func (g *gateway) close(logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// ordem inversa: o monitor drena a fila antes de o banco fechar
	for i := len(g.closers) - 1; i >= 0; i-- {
		if err := g.closers[i](ctx); err != nil {
			logger.Warn("shutdown step failed", "operation", "close", "outcome", "failed", "error", err)
		}
	}
}

func build(ctx context.Context, cfg config.Config, logger *slog.Logger, m *metrics.Metrics, target *url.URL) (*gateway, error) {
	g := &gateway{}
	hm := health.NewMonitor(health.WithLogger(logger), health.WithMetrics(m))
	g.health = hm

	var rdb *redis.Client
	if cfg.Redis.Configured() {
		client, err := newRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		rdb = client
		g.closers = append(g.closers, func(context.Context) error { return rdb.Close() })
		hm.Register(health.RedisCheck(rdb))
	}

	auditStore, alertStore, err := g.securityStores(ctx, cfg.Database, logger, hm)
	if err != nil {
		g.close(logger)
		return nil, err
	}

	var monitorOpts []application.MonitorOption
	if len(cfg.Kafka.Brokers) > 0 {
		notifier, err := infra.NewKafkaNotifier(cfg.Kafka.Brokers, cfg.Kafka.AlertTopic)
		if err != nil {
			g.close(logger)
			return nil, err
		}
		g.closers = append(g.closers, func(context.Context) error { return notifier.Close() })
		monitorOpts = append(monitorOpts, application.WithNotifier(notifier))
	}

	audit := &application.AuditLogger{Store: auditStore, Logger: logger, Metrics: m}
	detector := application.NewAnomalyDetector(detectorConfig(cfg.Security), audit,
		application.WithDetectorLogger(logger),
		application.WithDetectorMetrics(m),
	)
	detector.StartJanitor(ctx, cfg.Security.CleanupEvery)

	monitorOpts = append(monitorOpts,
		application.WithMonitorConfig(application.MonitorConfig{
			DataAccessRiskThreshold: cfg.Security.DataAccessRiskThreshold,
			SuspiciousRiskThreshold: cfg.Security.SuspiciousRiskThreshold,
		}),
		application.WithMonitorLogger(logger),
		application.WithMonitorMetrics(m),
	)
	g.monitor = application.NewMonitor(alertStore, audit, detector, monitorOpts...)
	g.closers = append(g.closers, g.monitor.Close)

	g.dashboardCache = cache.New[domain.Dashboard](
		cache.WithName("dashboard"),
		cache.WithDefaultTTL(cfg.Security.DashboardTTL),
		cache.WithMaxSize(16),
		cache.WithMetrics(m),
		cache.WithLogger(logger),
	)
	g.dashboardCache.StartJanitor(ctx)
	hm.Register(health.CacheCheck(g.dashboardCache))

	g.upstream = g.proxyChain(ctx, cfg, logger, m, rdb, target)

	if len(cfg.Health.RequiredEnv) > 0 {
		hm.Register(health.EnvCheck(cfg.Health.RequiredEnv...))
	}
	hm.Register(health.MemoryCheck(health.MemoryThresholds{
		DegradedPercent:  cfg.Health.MemoryDegraded,
		UnhealthyPercent: cfg.Health.MemoryUnhealthy,
	}))
	hm.Register(health.HTTPCheck("upstream", upstreamHealthURL(target, cfg.Health.UpstreamPath),
		&http.Client{Timeout: 5 * time.Second},
		retry.Options{Name: "upstream_health", Logger: logger},
		cfg.Health.SlowAfter,
	))

	return g, nil
}

// securityStores escolhe Postgres quando DATABASE_URL existe; senão memória.
func (g *gateway) securityStores(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger, hm *health.Monitor) (domain.AuditStore, domain.AlertStore, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		store := infra.NewMemoryStore()
		return store, store, nil
	}

	db, err := infra.Connect(ctx, cfg.URL, cfg.MaxConns, logger)
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("postgres handle: %w", err)
	}
	g.closers = append(g.closers, func(context.Context) error { return sqlDB.Close() })

	if cfg.Migrate {
		if err := infra.RunMigrations(ctx, db, logger); err != nil {
			return nil, nil, err
		}
	}
	hm.Register(health.SQLCheck("database", sqlDB, true))

	store := infra.NewPostgresStore(db)
	return store, store, nil
}

// proxyChain monta burst -> janela fixa -> concorrência -> proxy reverso.
func (g *gateway) proxyChain(ctx context.Context, cfg config.Config, logger *slog.Logger, m *metrics.Metrics, rdb *redis.Client, target *url.URL) http.Handler {
	stats := rlinfra.MultiStats{rlinfra.NewPromStatsStore(m)}
	if cfg.Stats.Enabled && rdb != nil {
		stats = append(stats, rlinfra.NewRedisStatsStore(
			rdb,
			rlinfra.WithStatsPrefix(cfg.Stats.Prefix),
			rlinfra.WithStatsTTL(cfg.Stats.TTL),
			rlinfra.WithStatsBucket(cfg.Stats.Bucket),
			rlinfra.WithStatsTrackKeys(cfg.Stats.TrackKeys),
		))
	}

	pool := rlinfra.NewChanPool(cfg.Concurrency.Max)
	if cfg.Concurrency.Max > 0 {
		g.health.Register(health.SaturationCheck("concurrency", pool.Saturation, cfg.Health.SaturationDegraded))
	}

	h := http.Handler(newProxy(target, logger))
	h = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
		Max:            cfg.Concurrency.Max,
		RejectStatus:   http.StatusServiceUnavailable,
		AcquireTimeout: cfg.Concurrency.Timeout,
		Pool:           poolIfEnabled(cfg.Concurrency.Max, pool),
		Stats:          stats,
	})(h)

	if cfg.Rate.Enabled {
		var buckets rldomain.BucketStore
		if cfg.Rate.Backend == "redis" && rdb != nil {
			buckets = rlinfra.NewRedisBucketStore(rdb)
		} else {
			mem := rlinfra.NewMemoryBucketStore()
			mem.StartJanitor(ctx)
			buckets = mem
		}
		opts := ratelimit.Options{
			Store:              buckets,
			Rules:              cfg.RateRules(),
			Auditor:            application.RateLimitAuditor{Monitor: g.monitor},
			Stats:              stats,
			Log:                logging.Component(logger, "ratelimit", "adapter"),
			KeyHeader:          cfg.Rate.KeyHeader,
			TrustXForwardedFor: cfg.Rate.TrustXFF,
		}
		h = ratelimit.Middleware(opts)(h)

		opts.ActionFn = func(*http.Request) string { return rldomain.ActionAPI }
		g.securityLimiter = ratelimit.Middleware(opts)
	}

	if cfg.Burst.Enabled {
		burst := rlinfra.NewBurstStore(cfg.Burst.RPS, cfg.Burst.Burst)
		burst.StartJanitor(ctx)
		h = ratelimit.BurstMiddleware(ratelimit.BurstOptions{
			Store:              burst,
			Stats:              stats,
			KeyHeader:          cfg.Rate.KeyHeader,
			TrustXForwardedFor: cfg.Rate.TrustXFF,
			RetryAfter:         cfg.Burst.RetryAfter,
			AddBurstHeaders:    cfg.Burst.AddHeaders,
		})(h)
	}
	return h
}

func poolIfEnabled(max int, pool rldomain.SlotPool) rldomain.SlotPool {
	if max <= 0 {
		return nil
	}
	return pool
}

func newRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := rdb.Ping(pingCtx).Result(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping error: %w", err)
	}
	return rdb, nil
}

func detectorConfig(sc config.SecurityConfig) application.DetectorConfig {
	cfg := application.DefaultDetectorConfig()
	if sc.BulkThreshold > 0 {
		cfg.BulkThreshold = sc.BulkThreshold
	}
	if sc.SensitiveThreshold > 0 {
		cfg.SensitiveThreshold = sc.SensitiveThreshold
	}
	if len(sc.SensitiveResourceTypes) > 0 {
		cfg.SensitiveResourceTypes = sc.SensitiveResourceTypes
	}
	if sc.AuthFailureThreshold > 0 {
		cfg.AuthFailureThreshold = sc.AuthFailureThreshold
	}
	cfg.DisableUnusualHour = sc.DisableUnusualHour
	if sc.UnusualHourEnd > sc.UnusualHourStart {
		cfg.UnusualHourStart = sc.UnusualHourStart
		cfg.UnusualHourEnd = sc.UnusualHourEnd
	}
	return cfg
}

func upstreamHealthURL(target *url.URL, path string) string {
	u := *target
	if path != "" {
		u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	}
	return u.String()
}
