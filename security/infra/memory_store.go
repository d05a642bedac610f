package infra

import (
	"context"
	"sync"
	"time"

	"governance-gateway/security/domain"
)

// MemoryStore guarda auditorias e alertas em memória, com teto opcional
// de linhas (as mais antigas saem primeiro).
type MemoryStore struct {
	mu      sync.RWMutex
	audits  []domain.AuditLogEntry
	alerts  []domain.SecurityAlert
	maxRows int
}

type MemoryStoreOption func(*MemoryStore)

// WithMaxRows limita quantas linhas de cada tipo ficam retidas (0 = sem limite).
func WithMaxRows(n int) MemoryStoreOption {
	return func(s *MemoryStore) { s.maxRows = n }
}

func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var (
	_ domain.AuditStore = (*MemoryStore)(nil)
	_ domain.AlertStore = (*MemoryStore)(nil)
)

func (s *MemoryStore) InsertAuditLog(_ context.Context, entry domain.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, entry)
	if s.maxRows > 0 && len(s.audits) > s.maxRows {
		s.audits = append(s.audits[:0], s.audits[len(s.audits)-s.maxRows:]...)
	}
	return nil
}

func (s *MemoryStore) ListAuditLogsSince(_ context.Context, since time.Time) ([]domain.AuditLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.AuditLogEntry, 0)
	for _, e := range s.audits {
		if e.CreatedAt.After(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemoryStore) InsertAlerts(_ context.Context, alerts []domain.SecurityAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alerts...)
	if s.maxRows > 0 && len(s.alerts) > s.maxRows {
		s.alerts = append(s.alerts[:0], s.alerts[len(s.alerts)-s.maxRows:]...)
	}
	return nil
}

func (s *MemoryStore) ListAlertsSince(_ context.Context, since time.Time) ([]domain.SecurityAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.SecurityAlert, 0)
	for _, a := range s.alerts {
		if a.CreatedAt.After(since) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *MemoryStore) Counts() (audits, alerts int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.audits), len(s.alerts)
}
