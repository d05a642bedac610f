package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

func applyEnv(cfg *Config) {
	cfg.ListenAddr = getenvDefault("LISTEN_ADDR", cfg.ListenAddr)
	cfg.UpstreamURL = getenvDefault("UPSTREAM_URL", cfg.UpstreamURL)
	cfg.Log.Level = getenvDefault("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getenvDefault("LOG_FORMAT", cfg.Log.Format)

	cfg.Rate.Enabled = getenvBoolDefault("RATE_ENABLED", cfg.Rate.Enabled)
	cfg.Rate.Backend = strings.ToLower(getenvDefault("RATE_BACKEND", cfg.Rate.Backend))
	cfg.Rate.KeyHeader = getenvDefault("RATE_KEY_HEADER", cfg.Rate.KeyHeader)
	cfg.Rate.TrustXFF = getenvBoolDefault("TRUST_XFF", cfg.Rate.TrustXFF)

	cfg.Burst.Enabled = getenvBoolDefault("RATE_BURST_ENABLED", cfg.Burst.Enabled)
	cfg.Burst.RPS = getenvFloatDefault("RATE_RPS", cfg.Burst.RPS)
	// IMPORTANTE: o "burst" permite uma rajada inicial de requisições.
	// Com RPS muito baixo (ex: 0.02) e sem RATE_BURST explícito, usa burst 1
	// para que o limiter não pareça inoperante nas primeiras requisições.
	if burst, ok := getenvInt("RATE_BURST"); ok {
		cfg.Burst.Burst = burst
	} else if getenvIsSet("RATE_RPS") && cfg.Burst.RPS > 0 && cfg.Burst.RPS < 1 {
		cfg.Burst.Burst = 1
	}
	cfg.Burst.RetryAfter = getenvDurationDefault("RETRY_AFTER", cfg.Burst.RetryAfter)
	cfg.Burst.AddHeaders = getenvBoolDefault("ADD_RATELIMIT_HEADERS", cfg.Burst.AddHeaders)

	cfg.Concurrency.Max = getenvIntDefault("CONCURRENCY_MAX", cfg.Concurrency.Max)
	cfg.Concurrency.Timeout = getenvDurationDefault("CONCURRENCY_TIMEOUT", cfg.Concurrency.Timeout)

	cfg.Stats.Enabled = getenvBoolDefault("RATE_STATS_ENABLED", cfg.Stats.Enabled)
	cfg.Stats.Prefix = getenvDefault("RATE_STATS_PREFIX", cfg.Stats.Prefix)
	cfg.Stats.TTL = getenvDurationDefault("RATE_STATS_TTL", cfg.Stats.TTL)
	cfg.Stats.Bucket = getenvDefault("RATE_STATS_BUCKET", cfg.Stats.Bucket)
	cfg.Stats.TrackKeys = getenvBoolDefault("RATE_STATS_TRACK_KEYS", cfg.Stats.TrackKeys)

	cfg.Redis.URL = getenvDefault("REDIS_URL", cfg.Redis.URL)
	cfg.Redis.Addr = getenvDefault("RATE_STATS_REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getenvDefault("RATE_STATS_REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getenvIntDefault("RATE_STATS_REDIS_DB", cfg.Redis.DB)

	cfg.Database.URL = getenvDefault("DATABASE_URL", cfg.Database.URL)
	cfg.Database.MaxConns = getenvIntDefault("DATABASE_MAX_CONNS", cfg.Database.MaxConns)
	cfg.Database.Migrate = getenvBoolDefault("DATABASE_MIGRATE", cfg.Database.Migrate)

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
	cfg.Kafka.AlertTopic = getenvDefault("KAFKA_ALERT_TOPIC", cfg.Kafka.AlertTopic)

	cfg.Security.DashboardTTL = getenvDurationDefault("DASHBOARD_CACHE_TTL", cfg.Security.DashboardTTL)
	cfg.Security.DisableUnusualHour = getenvBoolDefault("SECURITY_DISABLE_UNUSUAL_HOUR", cfg.Security.DisableUnusualHour)
	cfg.Admin.Token = getenvDefault("ADMIN_TOKEN", cfg.Admin.Token)
	if v := os.Getenv("HEALTH_REQUIRED_ENV"); v != "" {
		cfg.Health.RequiredEnv = splitList(v)
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvInt(k string) (int, bool) {
	v, ok := os.LookupEnv(k)
	if !ok || v == "" {
		return 0, false
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return i, true
}

func getenvIsSet(k string) bool {
	v, ok := os.LookupEnv(k)
	return ok && v != ""
}

func getenvFloatDefault(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
