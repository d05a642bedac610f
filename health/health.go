// Package health agrega checagens de saúde independentes, executadas em
// paralelo, cada uma com seu próprio timeout.
//
// Regra do status geral: checagem crítica falhando => unhealthy; senão,
// qualquer checagem não saudável => degraded; senão healthy.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"governance-gateway/clock"
	"governance-gateway/logging"
	"governance-gateway/metrics"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// gauge é o valor publicado em governance_health_status.
func (s Status) gauge() float64 {
	switch s {
	case StatusHealthy:
		return 1
	case StatusDegraded:
		return 0.5
	}
	return 0
}

const DefaultTimeout = 5 * time.Second

// Result é o desfecho de uma checagem.
type Result struct {
	Status         Status         `json:"status"`
	Message        string         `json:"message,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
	ResponseTimeMs int64          `json:"responseTimeMs"`
	Critical       bool           `json:"critical"`
	CheckedAt      time.Time      `json:"checkedAt"`
}

// CheckFunc executa a checagem; o ctx já carrega o timeout da checagem.
type CheckFunc func(ctx context.Context) Result

type Check struct {
	Name     string
	Fn       CheckFunc
	Timeout  time.Duration
	Critical bool
}

type Summary struct {
	Total            int `json:"total"`
	Healthy          int `json:"healthy"`
	Degraded         int `json:"degraded"`
	Unhealthy        int `json:"unhealthy"`
	CriticalFailures int `json:"critical_failures"`
}

// Overall é o resultado de uma rodada completa.
type Overall struct {
	Status    Status            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]Result `json:"checks"`
	Summary   Summary           `json:"summary"`
}

type Option func(*Monitor)

func WithClock(c clock.Clock) Option {
	return func(m *Monitor) { m.clock = clock.OrReal(c) }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.log = l
		}
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Monitor) { m.metrics = mt }
}

type Monitor struct {
	clock   clock.Clock
	log     *slog.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	checks []Check
	last   map[string]Result
}

func NewMonitor(opts ...Option) *Monitor {
	m := &Monitor{
		clock: clock.Real(),
		log:   logging.Component(nil, "health", "monitor"),
		last:  make(map[string]Result),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register adiciona (ou substitui, pelo nome) uma checagem.
func (m *Monitor) Register(c Check) {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.checks {
		if m.checks[i].Name == c.Name {
			m.checks[i] = c
			return
		}
	}
	m.checks = append(m.checks, c)
}

// Last devolve o último resultado conhecido da checagem.
func (m *Monitor) Last(name string) (Result, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.last[name]
	return r, ok
}

// CheckHealth roda todas as checagens em paralelo e agrega o resultado.
// Timeout ou panic numa checagem afeta só aquela checagem.
func (m *Monitor) CheckHealth(ctx context.Context) Overall {
	m.mu.RLock()
	checks := append([]Check(nil), m.checks...)
	m.mu.RUnlock()

	results := make([]Result, len(checks))
	var g errgroup.Group
	for i, c := range checks {
		i, c := i, c
		g.Go(func() error {
			results[i] = m.run(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	out := Overall{
		Status:    StatusHealthy,
		Timestamp: m.clock.Now(),
		Checks:    make(map[string]Result, len(checks)),
	}
	m.mu.Lock()
	for i, c := range checks {
		r := results[i]
		out.Checks[c.Name] = r
		m.last[c.Name] = r
	}
	m.mu.Unlock()

	out.Summary, out.Status = aggregate(checks, results)

	level := slog.LevelDebug
	if out.Status != StatusHealthy {
		level = slog.LevelWarn
	}
	m.log.Log(ctx, level, "health check completed",
		"operation", "check_health",
		"outcome", string(out.Status),
		"total", out.Summary.Total,
		"unhealthy", out.Summary.Unhealthy,
		"critical_failures", out.Summary.CriticalFailures,
	)
	return out
}

func aggregate(checks []Check, results []Result) (Summary, Status) {
	s := Summary{Total: len(checks)}
	for i, c := range checks {
		switch results[i].Status {
		case StatusHealthy:
			s.Healthy++
		case StatusDegraded:
			s.Degraded++
		default:
			s.Unhealthy++
			if c.Critical {
				s.CriticalFailures++
			}
		}
	}
	switch {
	case s.CriticalFailures > 0:
		return s, StatusUnhealthy
	case s.Degraded > 0 || s.Unhealthy > 0:
		return s, StatusDegraded
	}
	return s, StatusHealthy
}

func (m *Monitor) run(ctx context.Context, c Check) Result {
	start := m.clock.Now()
	cctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	ch := make(chan Result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- Result{Status: StatusUnhealthy, Message: fmt.Sprintf("check panicked: %v", p)}
			}
		}()
		if c.Fn == nil {
			ch <- Result{Status: StatusUnhealthy, Message: "check has no function"}
			return
		}
		ch <- c.Fn(cctx)
	}()

	var r Result
	select {
	case r = <-ch:
	case <-cctx.Done():
		r = Result{Status: StatusUnhealthy, Message: "check timed out after " + c.Timeout.String()}
	}
	if r.Status == "" {
		r.Status = StatusUnhealthy
	}

	took := m.clock.Now().Sub(start)
	r.ResponseTimeMs = took.Milliseconds()
	r.Critical = c.Critical
	r.CheckedAt = m.clock.Now()
	m.metrics.HealthCheck(c.Name, r.Status.gauge(), took)

	if r.Status != StatusHealthy {
		m.log.WarnContext(ctx, "health check not healthy",
			"operation", "run_check",
			"outcome", string(r.Status),
			"check", c.Name,
			"critical", c.Critical,
			"message", r.Message,
		)
	}
	return r
}
