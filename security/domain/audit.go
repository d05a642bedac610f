package domain

import (
	"context"
	"time"
)

// Ações de auditoria emitidas pela própria camada de governança.
const (
	AuditActionSuspiciousActivity = "suspicious_activity"
	AuditActionDataAccess         = "data_access"
	AuditActionAuthEvent          = "auth_event"

	ResourceTypeSecurity = "security"
	ResourceTypeAuth     = "auth"
)

// AuditLogEntry é uma linha append-only do log de auditoria.
type AuditLogEntry struct {
	ID           string         `json:"id"`
	UserID       string         `json:"user_id"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id,omitempty"`
	IPAddress    string         `json:"ip_address,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Severity     Severity       `json:"severity"`
	CreatedAt    time.Time      `json:"created_at"`
}

// AuditStore persiste entradas de auditoria. A camada nunca altera nem apaga linhas.
type AuditStore interface {
	InsertAuditLog(ctx context.Context, entry AuditLogEntry) error
	ListAuditLogsSince(ctx context.Context, since time.Time) ([]AuditLogEntry, error)
}
