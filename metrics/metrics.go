// Package metrics define os coletores Prometheus da camada de governança.
//
// Todos os métodos aceitam receptor nil, então os serviços podem receber
// *Metrics opcional sem checagens espalhadas.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "governance"

type Metrics struct {
	RateLimitDecisions *prometheus.CounterVec
	CacheRequests      *prometheus.CounterVec
	CacheEvictions     *prometheus.CounterVec
	AnomaliesDetected  *prometheus.CounterVec
	AlertQueueDepth    prometheus.Gauge
	AlertFlushes       *prometheus.CounterVec
	AuditWriteFailures prometheus.Counter
	HealthStatus       *prometheus.GaugeVec
	HealthCheckSeconds *prometheus.HistogramVec
}

// New registra os coletores em reg. Use prometheus.NewRegistry() em testes.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RateLimitDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "decisions_total",
			Help:      "Rate limit decisions by action and outcome.",
		}, []string{"action", "outcome"}),
		CacheRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Cache lookups by cache name and result (hit, miss).",
		}, []string{"cache", "result"}),
		CacheEvictions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Entries removed by capacity eviction or expiry sweep.",
		}, []string{"cache", "reason"}),
		AnomaliesDetected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "anomaly",
			Name:      "detected_total",
			Help:      "Anomaly alerts raised by type and severity.",
		}, []string{"alert_type", "severity"}),
		AlertQueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "queue_depth",
			Help:      "Security alerts waiting for batch persistence.",
		}),
		AlertFlushes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "flushes_total",
			Help:      "Alert batch flushes by outcome.",
		}, []string{"outcome"}),
		AuditWriteFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "write_failures_total",
			Help:      "Audit log writes that failed and were swallowed.",
		}),
		HealthStatus: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "check_status",
			Help:      "Last status per health check (0 healthy, 1 degraded, 2 unhealthy).",
		}, []string{"check"}),
		HealthCheckSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "check_duration_seconds",
			Help:      "Health check execution time.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"check"}),
	}
}

func (m *Metrics) RateLimitDecision(action string, allowed bool) {
	if m == nil {
		return
	}
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	m.RateLimitDecisions.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) CacheLookup(cache string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheRequests.WithLabelValues(cache, result).Inc()
}

func (m *Metrics) CacheEviction(cache, reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CacheEvictions.WithLabelValues(cache, reason).Add(float64(n))
}

func (m *Metrics) Anomaly(alertType, severity string) {
	if m == nil {
		return
	}
	m.AnomaliesDetected.WithLabelValues(alertType, severity).Inc()
}

func (m *Metrics) QueueDepth(n int) {
	if m == nil {
		return
	}
	m.AlertQueueDepth.Set(float64(n))
}

func (m *Metrics) AlertFlush(ok bool) {
	if m == nil {
		return
	}
	outcome := "failure"
	if ok {
		outcome = "success"
	}
	m.AlertFlushes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AuditWriteFailed() {
	if m == nil {
		return
	}
	m.AuditWriteFailures.Inc()
}

// HealthCheck registra o status numérico e a duração de uma checagem.
func (m *Metrics) HealthCheck(check string, status float64, took time.Duration) {
	if m == nil {
		return
	}
	m.HealthStatus.WithLabelValues(check).Set(status)
	m.HealthCheckSeconds.WithLabelValues(check).Observe(took.Seconds())
}
