package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"governance-gateway/clock"
	"governance-gateway/logging"
	"governance-gateway/security/domain"
)

// meio-dia UTC: fora da faixa noturna
var noon = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newDetector(t *testing.T, start time.Time) (*AnomalyDetector, *clock.Fake, *fakeAuditStore) {
	t.Helper()
	clk := clock.NewFake(start)
	store := &fakeAuditStore{}
	audit := &AuditLogger{Store: store, Clock: clk, Logger: logging.Discard()}
	cfg := DefaultDetectorConfig()
	cfg.Location = time.UTC
	d := NewAnomalyDetector(cfg, audit, WithDetectorClock(clk), WithDetectorLogger(logging.Discard()))
	return d, clk, store
}

func TestDetector_BulkAccessFiresOnceAt101(t *testing.T) {
	d, clk, store := newDetector(t, noon)
	ctx := context.Background()

	var fired []domain.AnomalyAlert
	for i := 0; i < 101; i++ {
		fired = append(fired, d.RecordActivity(ctx, "u1", "read", "trades", nil)...)
		clk.Advance(time.Second)
	}

	require.Len(t, fired, 1)
	assert.Equal(t, domain.AlertBulkDataAccess, fired[0].AlertType)
	assert.Equal(t, domain.SeverityHigh, fired[0].Severity)
	assert.Equal(t, 5, d.RiskScore("u1"))

	suspicious := store.byAction(domain.AuditActionSuspiciousActivity)
	require.Len(t, suspicious, 1)
	assert.Equal(t, domain.AlertBulkDataAccess, suspicious[0].Metadata["activity"])
}

func TestDetector_BulkWindowSlides(t *testing.T) {
	d, clk, _ := newDetector(t, noon)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		d.RecordActivity(ctx, "u1", "read", "trades", nil)
	}
	clk.Advance(time.Hour + time.Second)

	got := d.RecordActivity(ctx, "u1", "read", "trades", nil)
	assert.Empty(t, got)
	assert.Equal(t, 0, d.RiskScore("u1"))
}

func TestDetector_RapidSensitiveAccessIsCritical(t *testing.T) {
	d, clk, _ := newDetector(t, noon)
	ctx := context.Background()

	var fired []domain.AnomalyAlert
	for i := 0; i < 21; i++ {
		// ações diferentes sobre o mesmo recurso sensível somam
		action := "read"
		if i%2 == 1 {
			action = "export"
		}
		fired = append(fired, d.RecordActivity(ctx, "u1", action, "kyc_verifications", nil)...)
		clk.Advance(10 * time.Second)
	}

	require.Len(t, fired, 1)
	assert.Equal(t, domain.AlertRapidSensitive, fired[0].AlertType)
	assert.Equal(t, domain.SeverityCritical, fired[0].Severity)
	assert.Equal(t, 10, d.RiskScore("u1"))
}

func TestDetector_UnusualHour(t *testing.T) {
	d, clk, _ := newDetector(t, time.Date(2024, 3, 1, 3, 30, 0, 0, time.UTC))
	ctx := context.Background()

	got := d.RecordActivity(ctx, "u1", "read", "trades", nil)
	require.Len(t, got, 1)
	assert.Equal(t, domain.AlertUnusualHourAccess, got[0].AlertType)
	assert.Equal(t, domain.SeverityMedium, got[0].Severity)
	assert.Equal(t, 3, d.RiskScore("u1"))

	// 06:00 já está fora da faixa
	clk.Set(time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC))
	assert.Empty(t, d.RecordActivity(ctx, "u1", "read", "trades", nil))
}

func TestDetector_UnusualHourCanBeDisabled(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 3, 1, 3, 30, 0, 0, time.UTC))
	cfg := DefaultDetectorConfig()
	cfg.Location = time.UTC
	cfg.UnusualHourStart, cfg.UnusualHourEnd = 0, 0
	cfg.DisableUnusualHour = true
	d := NewAnomalyDetector(cfg, &AuditLogger{Logger: logging.Discard()}, WithDetectorClock(clk), WithDetectorLogger(logging.Discard()))

	assert.Empty(t, d.RecordActivity(context.Background(), "u1", "read", "trades", nil))
	assert.Zero(t, d.RiskScore("u1"))
}

func TestDetector_RepeatedAuthFailure(t *testing.T) {
	d, clk, _ := newDetector(t, noon)
	ctx := context.Background()

	var fired []domain.AnomalyAlert
	for i := 0; i < 11; i++ {
		fired = append(fired, d.RecordActivity(ctx, "u1", ActionFailedLogin, "auth", nil)...)
		clk.Advance(time.Minute)
	}
	require.Len(t, fired, 1)
	assert.Equal(t, domain.AlertRepeatedAuthFailure, fired[0].AlertType)
	assert.Equal(t, domain.SeverityHigh, fired[0].Severity)
}

func TestDetector_RiskScoreNeverDecreasesUntilReset(t *testing.T) {
	d, clk, _ := newDetector(t, time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC))
	ctx := context.Background()

	prev := 0
	for i := 0; i < 50; i++ {
		d.RecordActivity(ctx, "u1", "read", "kyc_verifications", nil)
		clk.Advance(7 * time.Minute)
		score := d.RiskScore("u1")
		require.GreaterOrEqual(t, score, prev)
		prev = score
	}
	assert.Greater(t, prev, 0)

	d.Reset("u1")
	assert.Equal(t, 0, d.RiskScore("u1"))
	_, ok := d.Pattern("u1")
	assert.False(t, ok)
}

func TestDetector_WindowsPrunedTo24h(t *testing.T) {
	d, clk, _ := newDetector(t, noon)
	ctx := context.Background()

	d.RecordActivity(ctx, "u1", "read", "trades", nil)
	clk.Advance(25 * time.Hour)
	d.RecordActivity(ctx, "u1", "write", "messages", nil)

	p, ok := d.Pattern("u1")
	require.True(t, ok)
	_, stale := p.TimeWindows[domain.WindowKey("read", "trades")]
	assert.False(t, stale)
	assert.Len(t, p.TimeWindows[domain.WindowKey("write", "messages")], 1)
	assert.Equal(t, 1, p.ActionCounts["read"])
}

func TestDetector_CleanupRemovesInactivePatterns(t *testing.T) {
	d, clk, _ := newDetector(t, noon)
	ctx := context.Background()

	d.RecordActivity(ctx, "old", "read", "trades", nil)
	clk.Advance(23 * time.Hour)
	d.RecordActivity(ctx, "fresh", "read", "trades", nil)
	clk.Advance(2 * time.Hour)

	assert.Equal(t, 1, d.Cleanup())
	assert.Equal(t, 1, d.Len())
	_, ok := d.Pattern("fresh")
	assert.True(t, ok)
}
