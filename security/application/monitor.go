package application

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"governance-gateway/apperr"
	"governance-gateway/clock"
	"governance-gateway/logging"
	"governance-gateway/metrics"
	"governance-gateway/security/domain"
)

// MonitorConfig parametriza limiares e a fila de alertas.
type MonitorConfig struct {
	DataAccessRiskThreshold int
	SuspiciousRiskThreshold int
	BatchSize               int
	RetryDelay              time.Duration
	RecentLimit             int
	// BreachAlertCooldown vale quando a negação não informa reset_at.
	BreachAlertCooldown     time.Duration
}

func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		DataAccessRiskThreshold: 7,
		SuspiciousRiskThreshold: 8,
		BatchSize:               10,
		RetryDelay:              time.Second,
		RecentLimit:             10,
		BreachAlertCooldown:     time.Minute,
	}
}

func (c MonitorConfig) withDefaults() MonitorConfig {
	d := DefaultMonitorConfig()
	if c.DataAccessRiskThreshold <= 0 {
		c.DataAccessRiskThreshold = d.DataAccessRiskThreshold
	}
	if c.SuspiciousRiskThreshold <= 0 {
		c.SuspiciousRiskThreshold = d.SuspiciousRiskThreshold
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.RecentLimit <= 0 {
		c.RecentLimit = d.RecentLimit
	}
	if c.BreachAlertCooldown <= 0 {
		c.BreachAlertCooldown = d.BreachAlertCooldown
	}
	return c
}

type MonitorOption func(*Monitor)

func WithMonitorConfig(cfg MonitorConfig) MonitorOption {
	return func(m *Monitor) { m.cfg = cfg.withDefaults() }
}

func WithMonitorClock(c clock.Clock) MonitorOption {
	return func(m *Monitor) { m.clock = clock.OrReal(c) }
}

func WithMonitorLogger(l *slog.Logger) MonitorOption {
	return func(m *Monitor) {
		if l != nil {
			m.log = l
		}
	}
}

func WithMonitorMetrics(mt *metrics.Metrics) MonitorOption {
	return func(m *Monitor) { m.metrics = mt }
}

// WithNotifier recebe os alertas críticos assim que enfileirados.
func WithNotifier(n domain.AlertNotifier) MonitorOption {
	return func(m *Monitor) { m.notifier = n }
}

// WithAutoFlush controla se Enqueue dispara um flush assíncrono (padrão: sim).
func WithAutoFlush(enabled bool) MonitorOption {
	return func(m *Monitor) { m.autoFlush = enabled }
}

// Monitor traduz eventos de segurança em chamadas ao detector e em alertas,
// que seguem por uma fila FIFO gravada em lotes.
//
// Apenas um flush roda por vez. Lote que falha volta para a frente da fila
// e um novo flush é agendado após RetryDelay.
type Monitor struct {
	cfg       MonitorConfig
	alerts    domain.AlertStore
	audit     *AuditLogger
	detector  *AnomalyDetector
	notifier  domain.AlertNotifier
	clock     clock.Clock
	log       *slog.Logger
	metrics   *metrics.Metrics
	autoFlush bool

	flushing atomic.Bool
	inflight sync.WaitGroup

	mu         sync.Mutex
	queue      []domain.SecurityAlert
	retryTimer clock.Timer
	closed     bool

	// fim da janela de cada identidade:ação que já gerou rate_limit_breach
	breachUntil map[string]time.Time
}

// acima deste tamanho, breachUntil é podado a cada novo bloqueio
const breachPruneAt = 1024

func NewMonitor(alerts domain.AlertStore, audit *AuditLogger, detector *AnomalyDetector, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		cfg:       DefaultMonitorConfig(),
		alerts:    alerts,
		audit:     audit,
		detector:  detector,
		clock:     clock.Real(),
		log:       logging.Component(nil, "security", "monitor"),
		autoFlush: true,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.audit == nil {
		m.audit = &AuditLogger{Clock: m.clock, Logger: m.log}
	}
	return m
}

// MonitorDataAccess audita o acesso, alimenta o detector e, se houve anomalia
// com risco acima do limiar, enfileira um data_access_anomaly.
func (m *Monitor) MonitorDataAccess(ctx context.Context, userID, resourceType, resourceID, action string, metadata map[string]any) []domain.AnomalyAlert {
	m.audit.LogDataAccess(ctx, userID, resourceType, resourceID, action, metadata)
	anomalies := m.record(ctx, userID, action, resourceType, metadata)
	if len(anomalies) == 0 {
		return nil
	}
	risk := m.riskScore(userID)
	if risk >= m.cfg.DataAccessRiskThreshold {
		md := anomalySummary(anomalies, risk)
		md["resource_type"] = resourceType
		md["resource_id"] = resourceID
		md["action"] = action
		m.Enqueue(ctx, domain.SecurityAlert{
			UserID:      userID,
			AlertType:   domain.AlertDataAccessAnomaly,
			Severity:    maxAnomalySeverity(anomalies),
			Description: "anomalous access to " + resourceType,
			Metadata:    md,
		})
	}
	return anomalies
}

// MonitorRLSViolation sempre gera um alerta rls_violation de severidade high.
func (m *Monitor) MonitorRLSViolation(ctx context.Context, userID, table, operation string, metadata map[string]any) {
	md := cloneMetadata(metadata)
	md["table"] = table
	md["operation"] = operation
	m.audit.LogSuspiciousActivity(ctx, userID, domain.AlertRLSViolation, md, domain.SeverityHigh)
	anomalies := m.record(ctx, userID, "rls_violation", table, metadata)

	m.Enqueue(ctx, domain.SecurityAlert{
		UserID:      userID,
		AlertType:   domain.AlertRLSViolation,
		Severity:    domain.SeverityHigh,
		Description: "row level security violation on " + table + " (" + operation + ")",
		Metadata:    md,
	})
	m.maybeSuspicious(ctx, userID, anomalies)
}

// MonitorRateLimitBreach audita todo bloqueio, mas gera no máximo um
// rate_limit_breach medium por identidade:ação e janela.
func (m *Monitor) MonitorRateLimitBreach(ctx context.Context, identity, action string, metadata map[string]any) {
	md := cloneMetadata(metadata)
	md["rate_limit_action"] = action
	m.audit.LogSuspiciousActivity(ctx, identity, "rate_limit_exceeded", md, domain.SeverityMedium)
	anomalies := m.record(ctx, identity, "rate_limit_breach", action, metadata)

	if m.firstBreachInWindow(identity, action, metadata) {
		m.Enqueue(ctx, domain.SecurityAlert{
			UserID:      identity,
			AlertType:   domain.AlertRateLimitBreach,
			Severity:    domain.SeverityMedium,
			Description: "rate limit exceeded for " + action,
			Metadata:    md,
		})
	}
	m.maybeSuspicious(ctx, identity, anomalies)
}

// firstBreachInWindow marca identidade:ação até o reset da janela (reset_at
// nos metadados) ou, sem ele, por BreachAlertCooldown.
func (m *Monitor) firstBreachInWindow(identity, action string, metadata map[string]any) bool {
	now := m.clock.Now()
	until := now.Add(m.cfg.BreachAlertCooldown)
	if reset, ok := metadata["reset_at"].(time.Time); ok && reset.After(now) {
		until = reset
	}
	key := identity + ":" + action

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.breachUntil == nil {
		m.breachUntil = make(map[string]time.Time)
	}
	if u, ok := m.breachUntil[key]; ok && !now.After(u) {
		return false
	}
	if len(m.breachUntil) >= breachPruneAt {
		for k, u := range m.breachUntil {
			if now.After(u) {
				delete(m.breachUntil, k)
			}
		}
	}
	m.breachUntil[key] = until
	return true
}

// MonitorAuthFailure registra a falha de login e escala padrões suspeitos.
func (m *Monitor) MonitorAuthFailure(ctx context.Context, userID, reason string, metadata map[string]any) []domain.AnomalyAlert {
	md := cloneMetadata(metadata)
	md["reason"] = reason
	m.audit.LogAuthEvent(ctx, userID, "login", false, md)
	anomalies := m.record(ctx, userID, ActionFailedLogin, domain.ResourceTypeAuth, md)
	m.maybeSuspicious(ctx, userID, anomalies)
	return anomalies
}

func (m *Monitor) maybeSuspicious(ctx context.Context, userID string, anomalies []domain.AnomalyAlert) {
	if len(anomalies) == 0 {
		return
	}
	risk := m.riskScore(userID)
	if risk < m.cfg.SuspiciousRiskThreshold {
		return
	}
	m.Enqueue(ctx, domain.SecurityAlert{
		UserID:      userID,
		AlertType:   domain.AlertSuspiciousPattern,
		Severity:    maxAnomalySeverity(anomalies),
		Description: "suspicious behavior pattern detected",
		Metadata:    anomalySummary(anomalies, risk),
	})
}

func (m *Monitor) record(ctx context.Context, userID, action, resourceType string, metadata map[string]any) []domain.AnomalyAlert {
	if m.detector == nil {
		return nil
	}
	return m.detector.RecordActivity(ctx, userID, action, resourceType, metadata)
}

func (m *Monitor) riskScore(userID string) int {
	if m.detector == nil {
		return 0
	}
	return m.detector.RiskScore(userID)
}

// Enqueue coloca o alerta na fila. Alertas críticos também são logados e
// notificados na hora, sem esperar pelo lote.
func (m *Monitor) Enqueue(ctx context.Context, alert domain.SecurityAlert) {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = m.clock.Now()
	}
	if !alert.Severity.Valid() {
		alert.Severity = domain.SeverityMedium
	}

	m.mu.Lock()
	m.queue = append(m.queue, alert)
	depth := len(m.queue)
	// Add sob o mesmo lock que Close usa para marcar closed antes do Wait
	spawn := m.autoFlush && !m.closed
	if spawn {
		m.inflight.Add(1)
	}
	m.mu.Unlock()
	m.metrics.QueueDepth(depth)

	if alert.Severity == domain.SeverityCritical {
		m.log.ErrorContext(ctx, "critical security alert",
			"operation", "enqueue_alert",
			"outcome", "critical",
			"alert_id", alert.ID,
			"alert_type", alert.AlertType,
			"user_id", alert.UserID,
			"description", alert.Description,
		)
		if m.notifier != nil {
			if err := m.notifier.NotifyCritical(ctx, alert); err != nil {
				m.log.WarnContext(ctx, "critical alert notification failed",
					"operation", "notify_critical",
					"outcome", "failure",
					"alert_id", alert.ID,
					"error", err.Error(),
				)
			}
		}
	}

	if spawn {
		go func() {
			defer m.inflight.Done()
			_, _ = m.Flush(context.WithoutCancel(ctx))
		}()
	}
}

// Pending devolve quantos alertas aguardam gravação.
func (m *Monitor) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Flush grava a fila em lotes de até BatchSize até esvaziá-la.
//
// Se outro flush já estiver rodando, retorna (0, nil) sem fazer nada.
// Em falha, o lote volta para a frente da fila e um retry é agendado.
func (m *Monitor) Flush(ctx context.Context) (int, error) {
	total := 0
	for {
		if !m.flushing.CompareAndSwap(false, true) {
			return total, nil
		}
		n, err := m.drain(ctx)
		m.flushing.Store(false)
		total += n
		if err != nil {
			return total, err
		}
		// um Enqueue entre a fila vazia e a liberação do flag perdeu o CAS
		// e conta com este flush para ser gravado
		if m.Pending() == 0 {
			return total, nil
		}
	}
}

func (m *Monitor) drain(ctx context.Context) (int, error) {
	written := 0
	for {
		m.mu.Lock()
		n := min(len(m.queue), m.cfg.BatchSize)
		if n == 0 {
			m.mu.Unlock()
			return written, nil
		}
		batch := make([]domain.SecurityAlert, n)
		copy(batch, m.queue[:n])
		m.queue = m.queue[n:]
		m.mu.Unlock()

		if err := m.insert(ctx, batch); err != nil {
			m.mu.Lock()
			m.queue = append(batch, m.queue...)
			depth := len(m.queue)
			m.mu.Unlock()

			m.metrics.AlertFlush(false)
			m.metrics.QueueDepth(depth)
			m.log.ErrorContext(ctx, "alert batch insert failed, requeued",
				"operation", "flush_alerts",
				"outcome", "failure",
				"batch_size", n,
				"queue_depth", depth,
				"error", err.Error(),
			)
			m.scheduleRetry()
			return written, apperr.Wrap(err, apperr.Classify(err), "flush_alerts", "insert alert batch")
		}

		written += n
		m.metrics.AlertFlush(true)
		m.metrics.QueueDepth(m.Pending())
		m.log.DebugContext(ctx, "alert batch stored",
			"operation", "flush_alerts",
			"outcome", "success",
			"batch_size", n,
		)
	}
}

func (m *Monitor) insert(ctx context.Context, batch []domain.SecurityAlert) error {
	if m.alerts == nil {
		return apperr.New(apperr.Server, "flush_alerts", "no alert store configured")
	}
	return m.alerts.InsertAlerts(ctx, batch)
}

func (m *Monitor) scheduleRetry() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.retryTimer != nil {
		return
	}
	m.retryTimer = m.clock.AfterFunc(m.cfg.RetryDelay, func() {
		m.mu.Lock()
		m.retryTimer = nil
		m.mu.Unlock()
		_, _ = m.Flush(context.Background())
	})
}

// Close para de agendar flushes e drena a fila no melhor esforço.
func (m *Monitor) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	m.mu.Unlock()

	m.inflight.Wait()

	for m.Pending() > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := m.Flush(ctx)
		if err != nil {
			m.log.WarnContext(ctx, "alert queue not drained on close",
				"operation", "close",
				"outcome", "failure",
				"pending", m.Pending(),
				"error", err.Error(),
			)
			return err
		}
		if n == 0 {
			// flush de retry ainda em andamento
			t := time.NewTimer(10 * time.Millisecond)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
	}
	return nil
}

// Dashboard agrega alertas e auditorias criados dentro do timeframe.
func (m *Monitor) Dashboard(ctx context.Context, timeframe string) (domain.Dashboard, error) {
	window, err := domain.ParseTimeframe(timeframe)
	if err != nil {
		return domain.Dashboard{}, err
	}
	if timeframe == "" {
		timeframe = domain.DefaultTimeframe
	}
	now := m.clock.Now()
	since := now.Add(-window)

	var alerts []domain.SecurityAlert
	if m.alerts != nil {
		alerts, err = m.alerts.ListAlertsSince(ctx, since)
		if err != nil {
			return domain.Dashboard{}, apperr.Wrap(err, apperr.Server, "dashboard", "list alerts")
		}
	}
	var logs []domain.AuditLogEntry
	if m.audit.Store != nil {
		logs, err = m.audit.Store.ListAuditLogsSince(ctx, since)
		if err != nil {
			return domain.Dashboard{}, apperr.Wrap(err, apperr.Server, "dashboard", "list audit logs")
		}
	}

	out := domain.Dashboard{
		Timeframe:   timeframe,
		GeneratedAt: now,
		Alerts: domain.AlertSummary{
			Total:   len(alerts),
			ByLevel: make(map[domain.Severity]int),
			Recent:  []domain.SecurityAlert{},
		},
		AuditLogs: domain.AuditSummary{
			Total:      len(logs),
			BySeverity: make(map[domain.Severity]int),
		},
	}
	for _, a := range alerts {
		out.Alerts.ByLevel[a.Severity]++
	}
	for _, l := range logs {
		out.AuditLogs.BySeverity[l.Severity]++
	}

	recent := append([]domain.SecurityAlert(nil), alerts...)
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].CreatedAt.After(recent[j].CreatedAt)
	})
	if len(recent) > m.cfg.RecentLimit {
		recent = recent[:m.cfg.RecentLimit]
	}
	out.Alerts.Recent = append(out.Alerts.Recent, recent...)
	return out, nil
}

func maxAnomalySeverity(anomalies []domain.AnomalyAlert) domain.Severity {
	sev := make([]domain.Severity, 0, len(anomalies))
	for _, a := range anomalies {
		sev = append(sev, a.Severity)
	}
	return domain.MaxSeverity(sev...)
}

func anomalySummary(anomalies []domain.AnomalyAlert, risk int) map[string]any {
	types := make([]string, 0, len(anomalies))
	for _, a := range anomalies {
		types = append(types, a.AlertType)
	}
	return map[string]any{
		"anomalies":  types,
		"risk_score": risk,
	}
}
