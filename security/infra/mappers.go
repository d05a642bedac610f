package infra

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"governance-gateway/security/domain"
)

func parseID(id string) (uuid.UUID, error) {
	if id == "" {
		return uuid.New(), nil
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse id %q: %w", id, err)
	}
	return parsed, nil
}

func encodeMetadata(md map[string]any) (string, error) {
	if len(md) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(md)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(raw), nil
}

func decodeMetadata(raw string) map[string]any {
	if raw == "" || raw == "{}" {
		return nil
	}
	out := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]any{"raw": raw}
	}
	return out
}

func nullableString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func toAuditModel(e domain.AuditLogEntry) (auditLogModel, error) {
	id, err := parseID(e.ID)
	if err != nil {
		return auditLogModel{}, err
	}
	md, err := encodeMetadata(e.Metadata)
	if err != nil {
		return auditLogModel{}, err
	}
	return auditLogModel{
		ID:           id,
		UserID:       e.UserID,
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceID:   nullableString(e.ResourceID),
		IPAddress:    nullableString(e.IPAddress),
		UserAgent:    e.UserAgent,
		Metadata:     md,
		Severity:     string(e.Severity),
		CreatedAt:    e.CreatedAt.UTC(),
	}, nil
}

func toDomainAudit(row auditLogModel) domain.AuditLogEntry {
	return domain.AuditLogEntry{
		ID:           row.ID.String(),
		UserID:       row.UserID,
		Action:       row.Action,
		ResourceType: row.ResourceType,
		ResourceID:   derefString(row.ResourceID),
		IPAddress:    derefString(row.IPAddress),
		UserAgent:    row.UserAgent,
		Metadata:     decodeMetadata(row.Metadata),
		Severity:     domain.Severity(row.Severity),
		CreatedAt:    row.CreatedAt,
	}
}

func toAlertModel(a domain.SecurityAlert) (securityAlertModel, error) {
	id, err := parseID(a.ID)
	if err != nil {
		return securityAlertModel{}, err
	}
	md, err := encodeMetadata(a.Metadata)
	if err != nil {
		return securityAlertModel{}, err
	}
	return securityAlertModel{
		ID:          id,
		UserID:      a.UserID,
		AlertType:   a.AlertType,
		Severity:    string(a.Severity),
		Description: a.Description,
		Metadata:    md,
		CreatedAt:   a.CreatedAt.UTC(),
	}, nil
}

func toDomainAlert(row securityAlertModel) domain.SecurityAlert {
	return domain.SecurityAlert{
		ID:          row.ID.String(),
		UserID:      row.UserID,
		AlertType:   row.AlertType,
		Severity:    domain.Severity(row.Severity),
		Description: row.Description,
		Metadata:    decodeMetadata(row.Metadata),
		CreatedAt:   row.CreatedAt,
	}
}
