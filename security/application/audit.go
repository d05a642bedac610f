package application

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"governance-gateway/clock"
	"governance-gateway/logging"
	"governance-gateway/metrics"
	"governance-gateway/security/domain"
)

// AuditLogger grava entradas de auditoria como canal lateral best-effort:
// falhas são logadas e engolidas, nunca propagadas ao chamador.
type AuditLogger struct {
	Store   domain.AuditStore
	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Log completa ID, CreatedAt, severidade e dados da requisição e grava a entrada.
func (a *AuditLogger) Log(ctx context.Context, entry domain.AuditLogEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = clock.OrReal(a.Clock).Now()
	}
	if !entry.Severity.Valid() {
		entry.Severity = domain.SeverityLow
	}
	if info, ok := domain.RequestInfoFrom(ctx); ok {
		if entry.IPAddress == "" {
			entry.IPAddress = info.IPAddress
		}
		if entry.UserAgent == "" {
			entry.UserAgent = info.UserAgent
		}
	}

	if a.Store == nil {
		a.logger().DebugContext(ctx, "audit entry without store",
			"operation", "audit_log",
			"outcome", "skipped",
			"action", entry.Action,
		)
		return
	}
	if err := a.Store.InsertAuditLog(ctx, entry); err != nil {
		a.Metrics.AuditWriteFailed()
		a.logger().ErrorContext(ctx, "audit write failed",
			"operation", "audit_log",
			"outcome", "failure",
			"action", entry.Action,
			"user_id", entry.UserID,
			"error", err.Error(),
		)
	}
}

// LogSuspiciousActivity registra uma atividade suspeita (anomalia, bloqueio, violação).
func (a *AuditLogger) LogSuspiciousActivity(ctx context.Context, userID, activity string, metadata map[string]any, severity domain.Severity) {
	md := cloneMetadata(metadata)
	md["activity"] = activity
	a.Log(ctx, domain.AuditLogEntry{
		UserID:       userID,
		Action:       domain.AuditActionSuspiciousActivity,
		ResourceType: domain.ResourceTypeSecurity,
		Metadata:     md,
		Severity:     severity,
	})
}

func (a *AuditLogger) LogDataAccess(ctx context.Context, userID, resourceType, resourceID, action string, metadata map[string]any) {
	md := cloneMetadata(metadata)
	md["access_action"] = action
	a.Log(ctx, domain.AuditLogEntry{
		UserID:       userID,
		Action:       domain.AuditActionDataAccess,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Metadata:     md,
		Severity:     domain.SeverityLow,
	})
}

// LogAuthEvent registra login/logout; falhas ficam com severidade medium.
func (a *AuditLogger) LogAuthEvent(ctx context.Context, userID, event string, success bool, metadata map[string]any) {
	md := cloneMetadata(metadata)
	md["event"] = event
	md["success"] = success
	sev := domain.SeverityLow
	if !success {
		sev = domain.SeverityMedium
	}
	a.Log(ctx, domain.AuditLogEntry{
		UserID:       userID,
		Action:       domain.AuditActionAuthEvent,
		ResourceType: domain.ResourceTypeAuth,
		Metadata:     md,
		Severity:     sev,
	})
}

func (a *AuditLogger) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return logging.Component(nil, "security", "audit")
}

func cloneMetadata(in map[string]any) map[string]any {
	out := make(map[string]any, len(in)+2)
	for k, v := range in {
		out[k] = v
	}
	return out
}
