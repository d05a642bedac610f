package domain

import (
	"time"

	"governance-gateway/apperr"
)

// Timeframes aceitos pelo painel.
var timeframes = map[string]time.Duration{
	"1h":  time.Hour,
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

const DefaultTimeframe = "24h"

// ParseTimeframe converte o token do painel. Vazio assume 24h.
func ParseTimeframe(token string) (time.Duration, error) {
	if token == "" {
		token = DefaultTimeframe
	}
	d, ok := timeframes[token]
	if !ok {
		err := apperr.New(apperr.Validation, "parse_timeframe", "timeframe must be one of 1h, 24h, 7d, 30d")
		err.Metadata = map[string]any{"timeframe": token}
		return 0, err
	}
	return d, nil
}

type AlertSummary struct {
	Total   int              `json:"total"`
	ByLevel map[Severity]int `json:"byLevel"`
	Recent  []SecurityAlert  `json:"recent"`
}

type AuditSummary struct {
	Total      int              `json:"total"`
	BySeverity map[Severity]int `json:"bySeverity"`
}

// Dashboard é a agregação devolvida pela consulta do painel.
type Dashboard struct {
	Timeframe   string       `json:"timeframe"`
	GeneratedAt time.Time    `json:"generatedAt"`
	Alerts      AlertSummary `json:"alerts"`
	AuditLogs   AuditSummary `json:"auditLogs"`
}
