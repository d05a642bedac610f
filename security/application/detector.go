package application

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"governance-gateway/clock"
	"governance-gateway/logging"
	"governance-gateway/metrics"
	"governance-gateway/security/domain"
)

// ActionFailedLogin é a ação que alimenta a regra de falhas de autenticação.
const ActionFailedLogin = "failed_login"

// DetectorConfig parametriza as regras de anomalia.
type DetectorConfig struct {
	BulkThreshold int
	BulkWindow    time.Duration

	SensitiveThreshold     int
	SensitiveWindow        time.Duration
	SensitiveResourceTypes []string

	// faixa noturna [UnusualHourStart, UnusualHourEnd) no fuso Location
	UnusualHourStart   int
	UnusualHourEnd     int
	Location           *time.Location
	// DisableUnusualHour desliga a regra; faixa zerada volta ao padrão.
	DisableUnusualHour bool

	AuthFailureThreshold int
	AuthFailureWindow    time.Duration

	// InactivityHorizon é também o horizonte das janelas de timestamps.
	InactivityHorizon time.Duration
}

func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		BulkThreshold:          100,
		BulkWindow:             time.Hour,
		SensitiveThreshold:     20,
		SensitiveWindow:        10 * time.Minute,
		SensitiveResourceTypes: []string{"kyc_verifications"},
		UnusualHourStart:       2,
		UnusualHourEnd:         6,
		AuthFailureThreshold:   10,
		AuthFailureWindow:      30 * time.Minute,
		InactivityHorizon:      24 * time.Hour,
	}
}

func (c DetectorConfig) withDefaults() DetectorConfig {
	d := DefaultDetectorConfig()
	if c.BulkThreshold <= 0 {
		c.BulkThreshold = d.BulkThreshold
	}
	if c.BulkWindow <= 0 {
		c.BulkWindow = d.BulkWindow
	}
	if c.SensitiveThreshold <= 0 {
		c.SensitiveThreshold = d.SensitiveThreshold
	}
	if c.SensitiveWindow <= 0 {
		c.SensitiveWindow = d.SensitiveWindow
	}
	if c.SensitiveResourceTypes == nil {
		c.SensitiveResourceTypes = d.SensitiveResourceTypes
	}
	if c.UnusualHourStart == 0 && c.UnusualHourEnd == 0 {
		c.UnusualHourStart, c.UnusualHourEnd = d.UnusualHourStart, d.UnusualHourEnd
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.AuthFailureThreshold <= 0 {
		c.AuthFailureThreshold = d.AuthFailureThreshold
	}
	if c.AuthFailureWindow <= 0 {
		c.AuthFailureWindow = d.AuthFailureWindow
	}
	if c.InactivityHorizon <= 0 {
		c.InactivityHorizon = d.InactivityHorizon
	}
	return c
}

type DetectorOption func(*AnomalyDetector)

func WithDetectorClock(c clock.Clock) DetectorOption {
	return func(d *AnomalyDetector) { d.clock = clock.OrReal(c) }
}

func WithDetectorLogger(l *slog.Logger) DetectorOption {
	return func(d *AnomalyDetector) {
		if l != nil {
			d.log = l
		}
	}
}

func WithDetectorMetrics(m *metrics.Metrics) DetectorOption {
	return func(d *AnomalyDetector) { d.metrics = m }
}

// AnomalyDetector mantém o padrão de comportamento por usuário e roda as
// regras de detecção de forma síncrona a cada atividade registrada.
//
// O risco acumulado só cresce; volta a zero apenas com Reset.
type AnomalyDetector struct {
	cfg       DetectorConfig
	sensitive map[string]struct{}
	audit     *AuditLogger
	clock     clock.Clock
	log       *slog.Logger
	metrics   *metrics.Metrics

	mu       sync.Mutex
	patterns map[string]*domain.UserBehaviorPattern
}

func NewAnomalyDetector(cfg DetectorConfig, audit *AuditLogger, opts ...DetectorOption) *AnomalyDetector {
	cfg = cfg.withDefaults()
	d := &AnomalyDetector{
		cfg:       cfg,
		sensitive: make(map[string]struct{}, len(cfg.SensitiveResourceTypes)),
		audit:     audit,
		clock:     clock.Real(),
		log:       logging.Component(nil, "security", "detector"),
		patterns:  make(map[string]*domain.UserBehaviorPattern),
	}
	for _, rt := range cfg.SensitiveResourceTypes {
		d.sensitive[rt] = struct{}{}
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RecordActivity registra a atividade e devolve as anomalias disparadas por ela.
func (d *AnomalyDetector) RecordActivity(ctx context.Context, userID, action, resourceType string, metadata map[string]any) []domain.AnomalyAlert {
	now := d.clock.Now()

	d.mu.Lock()
	p := d.patternLocked(userID)
	p.ActionCounts[action]++
	p.LastActivityAt = now

	key := domain.WindowKey(action, resourceType)
	p.TimeWindows[key] = append(p.TimeWindows[key], now)
	cutoff := now.Add(-d.cfg.InactivityHorizon)
	for k, ts := range p.TimeWindows {
		ts = clock.PruneBefore(ts, cutoff)
		if len(ts) == 0 {
			delete(p.TimeWindows, k)
			continue
		}
		p.TimeWindows[k] = ts
	}

	alerts := d.evaluateLocked(p, action, resourceType, now, metadata)
	for _, a := range alerts {
		p.RiskScore += a.Severity.RiskIncrement()
	}
	risk := p.RiskScore
	d.mu.Unlock()

	// auditoria fora do lock: o Store pode ser lento
	for _, a := range alerts {
		d.metrics.Anomaly(a.AlertType, string(a.Severity))
		d.log.WarnContext(ctx, "anomaly detected",
			"operation", "record_activity",
			"outcome", "anomaly",
			"user_id", userID,
			"alert_type", a.AlertType,
			"severity", string(a.Severity),
			"risk_score", risk,
		)
		if d.audit != nil {
			md := cloneMetadata(a.Metadata)
			md["alert_type"] = a.AlertType
			md["description"] = a.Description
			md["risk_score"] = risk
			d.audit.LogSuspiciousActivity(ctx, userID, a.AlertType, md, a.Severity)
		}
	}
	return alerts
}

func (d *AnomalyDetector) evaluateLocked(p *domain.UserBehaviorPattern, action, resourceType string, now time.Time, metadata map[string]any) []domain.AnomalyAlert {
	var out []domain.AnomalyAlert
	mk := func(alertType string, sev domain.Severity, desc string, md map[string]any) domain.AnomalyAlert {
		merged := cloneMetadata(metadata)
		for k, v := range md {
			merged[k] = v
		}
		merged["action"] = action
		merged["resource_type"] = resourceType
		return domain.AnomalyAlert{
			UserID:      p.UserID,
			AlertType:   alertType,
			Severity:    sev,
			Description: desc,
			Metadata:    merged,
			Timestamp:   now,
		}
	}

	key := domain.WindowKey(action, resourceType)
	if n := clock.CountSince(p.TimeWindows[key], now.Add(-d.cfg.BulkWindow)); n > d.cfg.BulkThreshold {
		out = append(out, mk(domain.AlertBulkDataAccess, domain.SeverityHigh,
			"bulk access: "+strconv.Itoa(n)+" "+key+" events in "+d.cfg.BulkWindow.String(),
			map[string]any{"count": n, "window": d.cfg.BulkWindow.String()}))
	}

	if _, ok := d.sensitive[resourceType]; ok {
		n := d.countResourceLocked(p, resourceType, now.Add(-d.cfg.SensitiveWindow))
		if n > d.cfg.SensitiveThreshold {
			out = append(out, mk(domain.AlertRapidSensitive, domain.SeverityCritical,
				"rapid access to sensitive resource "+resourceType,
				map[string]any{"count": n, "window": d.cfg.SensitiveWindow.String()}))
		}
	}

	if h := now.In(d.cfg.Location).Hour(); !d.cfg.DisableUnusualHour && h >= d.cfg.UnusualHourStart && h < d.cfg.UnusualHourEnd {
		out = append(out, mk(domain.AlertUnusualHourAccess, domain.SeverityMedium,
			"activity at unusual hour "+strconv.Itoa(h),
			map[string]any{"hour": h}))
	}

	if action == ActionFailedLogin {
		n := d.countActionLocked(p, ActionFailedLogin, now.Add(-d.cfg.AuthFailureWindow))
		if n > d.cfg.AuthFailureThreshold {
			out = append(out, mk(domain.AlertRepeatedAuthFailure, domain.SeverityHigh,
				"repeated authentication failures",
				map[string]any{"count": n, "window": d.cfg.AuthFailureWindow.String()}))
		}
	}
	return out
}

// countResourceLocked soma, entre todas as ações, os acessos ao tipo de recurso.
func (d *AnomalyDetector) countResourceLocked(p *domain.UserBehaviorPattern, resourceType string, since time.Time) int {
	n := 0
	suffix := ":" + resourceType
	for k, ts := range p.TimeWindows {
		if strings.HasSuffix(k, suffix) {
			n += clock.CountSince(ts, since)
		}
	}
	return n
}

func (d *AnomalyDetector) countActionLocked(p *domain.UserBehaviorPattern, action string, since time.Time) int {
	n := 0
	prefix := action + ":"
	for k, ts := range p.TimeWindows {
		if strings.HasPrefix(k, prefix) {
			n += clock.CountSince(ts, since)
		}
	}
	return n
}

func (d *AnomalyDetector) patternLocked(userID string) *domain.UserBehaviorPattern {
	p, ok := d.patterns[userID]
	if !ok {
		p = &domain.UserBehaviorPattern{
			UserID:       userID,
			ActionCounts: make(map[string]int),
			TimeWindows:  make(map[string][]time.Time),
		}
		d.patterns[userID] = p
	}
	return p
}

// RiskScore devolve o risco acumulado (0 para usuários desconhecidos).
func (d *AnomalyDetector) RiskScore(userID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.patterns[userID]; ok {
		return p.RiskScore
	}
	return 0
}

// Pattern devolve uma cópia do padrão do usuário.
func (d *AnomalyDetector) Pattern(userID string) (domain.UserBehaviorPattern, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.patterns[userID]
	if !ok {
		return domain.UserBehaviorPattern{}, false
	}
	return p.Clone(), true
}

// Reset apaga o estado do usuário, inclusive o risco.
func (d *AnomalyDetector) Reset(userID string) {
	d.mu.Lock()
	delete(d.patterns, userID)
	d.mu.Unlock()
}

func (d *AnomalyDetector) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.patterns)
}

// Cleanup remove padrões inativos além do horizonte e devolve quantos saíram.
func (d *AnomalyDetector) Cleanup() int {
	cutoff := d.clock.Now().Add(-d.cfg.InactivityHorizon)

	d.mu.Lock()
	defer d.mu.Unlock()
	removed := 0
	for id, p := range d.patterns {
		if p.LastActivityAt.Before(cutoff) {
			delete(d.patterns, id)
			removed++
		}
	}
	return removed
}

// StartJanitor roda Cleanup periodicamente até o ctx encerrar.
func (d *AnomalyDetector) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Hour
	}
	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := d.Cleanup(); n > 0 {
					d.log.DebugContext(ctx, "inactive patterns removed",
						"operation", "cleanup",
						"outcome", "success",
						"removed", n,
					)
				}
			}
		}
	}()
}
