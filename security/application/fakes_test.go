package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"governance-gateway/security/domain"
)

var errStoreDown = errors.New("store down")

type fakeAuditStore struct {
	mu      sync.Mutex
	entries []domain.AuditLogEntry
	fail    bool
}

func (s *fakeAuditStore) InsertAuditLog(_ context.Context, e domain.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errStoreDown
	}
	s.entries = append(s.entries, e)
	return nil
}

func (s *fakeAuditStore) ListAuditLogsSince(_ context.Context, since time.Time) ([]domain.AuditLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AuditLogEntry
	for _, e := range s.entries {
		if e.CreatedAt.After(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeAuditStore) byAction(action string) []domain.AuditLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AuditLogEntry
	for _, e := range s.entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

type fakeAlertStore struct {
	mu      sync.Mutex
	batches [][]domain.SecurityAlert
	fail    bool

	// quando não-nil, InsertAlerts sinaliza entered e espera release
	entered chan struct{}
	release chan struct{}

	active    int
	maxActive int
}

func (s *fakeAlertStore) InsertAlerts(_ context.Context, alerts []domain.SecurityAlert) error {
	s.mu.Lock()
	s.active++
	if s.active > s.maxActive {
		s.maxActive = s.active
	}
	entered, release := s.entered, s.release
	s.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
		<-release
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.active--
	if s.fail {
		return errStoreDown
	}
	s.batches = append(s.batches, append([]domain.SecurityAlert(nil), alerts...))
	return nil
}

func (s *fakeAlertStore) ListAlertsSince(_ context.Context, since time.Time) ([]domain.SecurityAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.SecurityAlert
	for _, b := range s.batches {
		for _, a := range b {
			if a.CreatedAt.After(since) {
				out = append(out, a)
			}
		}
	}
	return out, nil
}

func (s *fakeAlertStore) setFail(v bool) {
	s.mu.Lock()
	s.fail = v
	s.mu.Unlock()
}

func (s *fakeAlertStore) stored() []domain.SecurityAlert {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.SecurityAlert
	for _, b := range s.batches {
		out = append(out, b...)
	}
	return out
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []domain.SecurityAlert
}

func (n *fakeNotifier) NotifyCritical(_ context.Context, a domain.SecurityAlert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, a)
	return nil
}
