// Package config carrega a configuração do gateway: padrões, depois um
// arquivo YAML opcional e por fim variáveis de ambiente.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	rldomain "governance-gateway/middleware/ratelimit/domain"
)

type Config struct {
	ListenAddr  string            `yaml:"listen_addr"`
	UpstreamURL string            `yaml:"upstream_url"`
	Log         LogConfig         `yaml:"log"`
	Rate        RateConfig        `yaml:"rate"`
	Burst       BurstConfig       `yaml:"burst"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Stats       StatsConfig       `yaml:"stats"`
	Redis       RedisConfig       `yaml:"redis"`
	Database    DatabaseConfig    `yaml:"database"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Security    SecurityConfig    `yaml:"security"`
	Health      HealthConfig      `yaml:"health"`
	Admin       AdminConfig       `yaml:"admin"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type RuleConfig struct {
	Window      time.Duration `yaml:"window"`
	MaxRequests int           `yaml:"max_requests"`
}

// RateConfig controla as janelas fixas por ação.
type RateConfig struct {
	Enabled   bool                  `yaml:"enabled"`
	Backend   string                `yaml:"backend"` // memory | redis
	KeyHeader string                `yaml:"key_header"`
	TrustXFF  bool                  `yaml:"trust_xff"`
	Rules     map[string]RuleConfig `yaml:"rules"`
}

// BurstConfig controla o token bucket por cliente.
type BurstConfig struct {
	Enabled    bool          `yaml:"enabled"`
	RPS        float64       `yaml:"rps"`
	Burst      int           `yaml:"burst"`
	RetryAfter time.Duration `yaml:"retry_after"`
	AddHeaders bool          `yaml:"add_headers"`
}

type ConcurrencyConfig struct {
	Max     int           `yaml:"max"`
	Timeout time.Duration `yaml:"timeout"`
}

type StatsConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Prefix    string        `yaml:"prefix"`
	TTL       time.Duration `yaml:"ttl"`
	Bucket    string        `yaml:"bucket"`
	TrackKeys bool          `yaml:"track_keys"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

func (r RedisConfig) Configured() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Addr) != ""
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
	Migrate  bool   `yaml:"migrate"`
}

type KafkaConfig struct {
	Brokers    []string `yaml:"brokers"`
	AlertTopic string   `yaml:"alert_topic"`
}

type SecurityConfig struct {
	BulkThreshold           int           `yaml:"bulk_threshold"`
	SensitiveThreshold      int           `yaml:"sensitive_threshold"`
	SensitiveResourceTypes  []string      `yaml:"sensitive_resource_types"`
	AuthFailureThreshold    int           `yaml:"auth_failure_threshold"`
	UnusualHourStart        int           `yaml:"unusual_hour_start"`
	UnusualHourEnd          int           `yaml:"unusual_hour_end"`
	DisableUnusualHour      bool          `yaml:"disable_unusual_hour"`
	DataAccessRiskThreshold int           `yaml:"data_access_risk_threshold"`
	SuspiciousRiskThreshold int           `yaml:"suspicious_risk_threshold"`
	DashboardTTL            time.Duration `yaml:"dashboard_ttl"`
	CleanupEvery            time.Duration `yaml:"cleanup_every"`
}

// AdminConfig protege as rotas /security/*.
type AdminConfig struct {
	Token string `yaml:"token"`
}

type HealthConfig struct {
	RequiredEnv        []string      `yaml:"required_env"`
	UpstreamPath       string        `yaml:"upstream_path"`
	SlowAfter          time.Duration `yaml:"slow_after"`
	MemoryDegraded     float64       `yaml:"memory_degraded_percent"`
	MemoryUnhealthy    float64       `yaml:"memory_unhealthy_percent"`
	SaturationDegraded float64       `yaml:"saturation_degraded"`
}

// Default devolve a configuração padrão, sem upstream definido.
func Default() Config {
	return Config{
		ListenAddr: ":8080",
		Log:        LogConfig{Level: "info", Format: "json"},
		Rate: RateConfig{
			Enabled: true,
			Backend: "memory",
		},
		Burst: BurstConfig{
			Enabled:    true,
			RPS:        10,
			Burst:      20,
			RetryAfter: time.Second,
		},
		Concurrency: ConcurrencyConfig{Max: 100},
		Stats: StatsConfig{
			Prefix: "ratelimit:stats",
			TTL:    24 * time.Hour,
			Bucket: "minute",
		},
		Database: DatabaseConfig{MaxConns: 10, Migrate: true},
		Security: SecurityConfig{
			DashboardTTL: 30 * time.Second,
			CleanupEvery: time.Hour,
		},
		Health: HealthConfig{
			UpstreamPath:    "/",
			SlowAfter:       2 * time.Second,
			MemoryDegraded:  85,
			MemoryUnhealthy: 95,
		},
	}
}

// Load aplica padrões, o YAML em path (se não vazio) e o ambiente, e valida.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.UpstreamURL) == "" {
		return errors.New("UPSTREAM_URL is required")
	}
	if c.Burst.Enabled && c.Burst.RPS <= 0 {
		return errors.New("RATE_RPS must be > 0")
	}
	if c.Burst.Enabled && c.Burst.Burst <= 0 {
		return errors.New("RATE_BURST must be > 0")
	}
	if c.Concurrency.Max < 0 {
		return errors.New("CONCURRENCY_MAX must be >= 0")
	}
	switch c.Rate.Backend {
	case "memory":
	case "redis":
		if !c.Redis.Configured() {
			return errors.New("REDIS_URL or RATE_STATS_REDIS_ADDR is required when RATE_BACKEND=redis")
		}
	default:
		return fmt.Errorf("unknown RATE_BACKEND %q", c.Rate.Backend)
	}
	if c.Stats.Enabled && !c.Redis.Configured() {
		return errors.New("RATE_STATS_REDIS_ADDR is required when RATE_STATS_ENABLED=true")
	}
	for name, r := range c.Rate.Rules {
		if r.Window <= 0 || r.MaxRequests <= 0 {
			return fmt.Errorf("rate rule %q needs window > 0 and max_requests > 0", name)
		}
	}
	return nil
}

// RateRules mescla as regras configuradas sobre as regras padrão.
func (c Config) RateRules() map[string]rldomain.Rule {
	rules := rldomain.DefaultRules()
	for name, r := range c.Rate.Rules {
		rules[name] = rldomain.Rule{Window: r.Window, MaxRequests: r.MaxRequests}
	}
	return rules
}
