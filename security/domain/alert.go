package domain

import (
	"context"
	"time"
)

// Tipos de alerta produzidos pelo detector e pelo monitor.
const (
	AlertBulkDataAccess      = "bulk_data_access"
	AlertRapidSensitive      = "rapid_sensitive_access"
	AlertUnusualHourAccess   = "unusual_hour_access"
	AlertRepeatedAuthFailure = "repeated_auth_failure"

	AlertDataAccessAnomaly = "data_access_anomaly"
	AlertSuspiciousPattern = "suspicious_pattern"
	AlertRLSViolation      = "rls_violation"
	AlertRateLimitBreach   = "rate_limit_breach"
)

// AnomalyAlert é transitório: nasce na detecção e é consumido na hora.
type AnomalyAlert struct {
	UserID      string         `json:"user_id"`
	AlertType   string         `json:"alert_type"`
	Severity    Severity       `json:"severity"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// SecurityAlert é persistido em lotes pelo monitor.
type SecurityAlert struct {
	ID          string         `json:"id"`
	UserID      string         `json:"user_id"`
	AlertType   string         `json:"alert_type"`
	Severity    Severity       `json:"severity"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// AlertStore grava lotes de alertas (até 10 por chamada) e consulta por janela.
type AlertStore interface {
	InsertAlerts(ctx context.Context, alerts []SecurityAlert) error
	ListAlertsSince(ctx context.Context, since time.Time) ([]SecurityAlert, error)
}

// AlertNotifier recebe alertas críticos fora do caminho do lote.
type AlertNotifier interface {
	NotifyCritical(ctx context.Context, alert SecurityAlert) error
}
