package domain

import "time"

// UserBehaviorPattern acumula o comportamento recente de um usuário.
//
// TimeWindows é indexado por "ação:tipoDeRecurso" e guarda timestamps em
// ordem crescente, podados a 24h a cada escrita.
type UserBehaviorPattern struct {
	UserID         string                 `json:"user_id"`
	ActionCounts   map[string]int         `json:"action_counts"`
	TimeWindows    map[string][]time.Time `json:"-"`
	LastActivityAt time.Time              `json:"last_activity_at"`
	RiskScore      int                    `json:"risk_score"`
}

func WindowKey(action, resourceType string) string {
	return action + ":" + resourceType
}

// Clone devolve uma cópia profunda, segura para leitura fora do lock.
func (p *UserBehaviorPattern) Clone() UserBehaviorPattern {
	out := UserBehaviorPattern{
		UserID:         p.UserID,
		ActionCounts:   make(map[string]int, len(p.ActionCounts)),
		TimeWindows:    make(map[string][]time.Time, len(p.TimeWindows)),
		LastActivityAt: p.LastActivityAt,
		RiskScore:      p.RiskScore,
	}
	for k, v := range p.ActionCounts {
		out.ActionCounts[k] = v
	}
	for k, v := range p.TimeWindows {
		out.TimeWindows[k] = append([]time.Time(nil), v...)
	}
	return out
}
