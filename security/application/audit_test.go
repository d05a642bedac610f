package application

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"governance-gateway/clock"
	"governance-gateway/logging"
	"governance-gateway/security/domain"
)

func TestAuditLogger_FillsIDTimestampAndRequestInfo(t *testing.T) {
	store := &fakeAuditStore{}
	clk := clock.NewFake(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	a := &AuditLogger{Store: store, Clock: clk, Logger: logging.Discard()}

	ctx := domain.WithRequestInfo(context.Background(), domain.RequestInfo{IPAddress: "10.1.1.1", UserAgent: "otc-desk/1.0"})
	a.LogDataAccess(ctx, "u1", "trades", "t-9", "read", map[string]any{"fields": 3})

	require.Len(t, store.entries, 1)
	e := store.entries[0]
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, clk.Now(), e.CreatedAt)
	assert.Equal(t, "10.1.1.1", e.IPAddress)
	assert.Equal(t, "otc-desk/1.0", e.UserAgent)
	assert.Equal(t, domain.AuditActionDataAccess, e.Action)
	assert.Equal(t, "trades", e.ResourceType)
	assert.Equal(t, "read", e.Metadata["access_action"])
	assert.Equal(t, domain.SeverityLow, e.Severity)
}

func TestAuditLogger_StoreFailureIsSwallowed(t *testing.T) {
	store := &fakeAuditStore{fail: true}
	a := &AuditLogger{Store: store, Logger: logging.Discard()}

	assert.NotPanics(t, func() {
		a.LogSuspiciousActivity(context.Background(), "u1", "port_scan", nil, domain.SeverityHigh)
	})
	assert.Empty(t, store.entries)
}

func TestAuditLogger_StoreFailureGoesToInjectedLogger(t *testing.T) {
	var buf bytes.Buffer
	a := &AuditLogger{Store: &fakeAuditStore{fail: true}, Logger: logging.New(&buf, "debug", "json")}

	a.LogAuthEvent(context.Background(), "u1", "failed_login", false, nil)
	assert.Contains(t, buf.String(), `"msg":"audit write failed"`)
	assert.Contains(t, buf.String(), `"user_id":"u1"`)
}

func TestAuditLogger_NoStoreIsNoop(t *testing.T) {
	a := &AuditLogger{Logger: logging.Discard()}
	assert.NotPanics(t, func() {
		a.Log(context.Background(), domain.AuditLogEntry{Action: "x"})
	})
}

func TestAuditLogger_AuthEventSeverity(t *testing.T) {
	store := &fakeAuditStore{}
	a := &AuditLogger{Store: store, Logger: logging.Discard()}

	a.LogAuthEvent(context.Background(), "u1", "login", true, nil)
	a.LogAuthEvent(context.Background(), "u1", "login", false, map[string]any{"reason": "bad password"})

	require.Len(t, store.entries, 2)
	assert.Equal(t, domain.SeverityLow, store.entries[0].Severity)
	assert.Equal(t, domain.SeverityMedium, store.entries[1].Severity)
	assert.Equal(t, false, store.entries[1].Metadata["success"])
}

func TestAuditLogger_DoesNotMutateCallerMetadata(t *testing.T) {
	store := &fakeAuditStore{}
	a := &AuditLogger{Store: store, Logger: logging.Discard()}
	md := map[string]any{"k": "v"}

	a.LogSuspiciousActivity(context.Background(), "u1", "port_scan", md, domain.SeverityLow)

	assert.Len(t, md, 1)
}
