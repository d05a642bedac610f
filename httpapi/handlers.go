package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"governance-gateway/apperr"
	"governance-gateway/health"
	"governance-gateway/security/domain"
)

func (h *Handler) checkHealth(w http.ResponseWriter, r *http.Request) {
	if h.deps.Health == nil {
		writeError(w, http.StatusServiceUnavailable, "SERVER", "health monitor not configured")
		return
	}
	out := h.deps.Health.CheckHealth(r.Context())
	status := http.StatusOK
	if out.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"success": out.Status != health.StatusUnhealthy,
		"data":    out,
	})
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	if h.deps.Security == nil {
		writeError(w, http.StatusServiceUnavailable, "SERVER", "security monitor not configured")
		return
	}
	timeframe := strings.TrimSpace(r.URL.Query().Get("timeframe"))
	if timeframe == "" {
		timeframe = domain.DefaultTimeframe
	}
	if _, err := domain.ParseTimeframe(timeframe); err != nil {
		writeAppError(w, err)
		return
	}

	load := func(ctx context.Context) (domain.Dashboard, error) {
		return h.deps.Security.Dashboard(ctx, timeframe)
	}
	var (
		d   domain.Dashboard
		err error
	)
	if h.deps.DashboardCache != nil {
		d, err = h.deps.DashboardCache.GetOrSet(r.Context(), "dashboard:"+timeframe, load, h.deps.DashboardTTL)
	} else {
		d, err = load(r.Context())
	}
	if err != nil {
		h.log.WarnContext(r.Context(), "dashboard query failed",
			"operation", "dashboard",
			"outcome", "failure",
			"timeframe", timeframe,
			"error", err.Error(),
		)
		writeAppError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, d)
}

type securityEvent struct {
	UserID       string         `json:"user_id"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Action       string         `json:"action"`
	Table        string         `json:"table"`
	Operation    string         `json:"operation"`
	Reason       string         `json:"reason"`
	Metadata     map[string]any `json:"metadata"`
}

func (h *Handler) decodeEvent(w http.ResponseWriter, r *http.Request, required ...string) (securityEvent, bool) {
	if h.deps.Security == nil {
		writeError(w, http.StatusServiceUnavailable, "SERVER", "security monitor not configured")
		return securityEvent{}, false
	}
	var ev securityEvent
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	if err := dec.Decode(&ev); err != nil {
		writeAppError(w, apperr.Wrap(err, apperr.Validation, "decode_event", "invalid JSON body"))
		return securityEvent{}, false
	}
	fields := map[string]string{
		"user_id":       ev.UserID,
		"resource_type": ev.ResourceType,
		"action":        ev.Action,
		"table":         ev.Table,
		"operation":     ev.Operation,
	}
	for _, f := range required {
		if strings.TrimSpace(fields[f]) == "" {
			writeAppError(w, apperr.New(apperr.Validation, "decode_event", f+" is required"))
			return securityEvent{}, false
		}
	}
	return ev, true
}

func (h *Handler) dataAccessEvent(w http.ResponseWriter, r *http.Request) {
	ev, ok := h.decodeEvent(w, r, "user_id", "resource_type", "action")
	if !ok {
		return
	}
	anomalies := h.deps.Security.MonitorDataAccess(r.Context(), ev.UserID, ev.ResourceType, ev.ResourceID, ev.Action, ev.Metadata)
	if anomalies == nil {
		anomalies = []domain.AnomalyAlert{}
	}
	writeSuccess(w, http.StatusAccepted, map[string]any{"anomalies": anomalies})
}

func (h *Handler) rlsViolationEvent(w http.ResponseWriter, r *http.Request) {
	ev, ok := h.decodeEvent(w, r, "user_id", "table", "operation")
	if !ok {
		return
	}
	h.deps.Security.MonitorRLSViolation(r.Context(), ev.UserID, ev.Table, ev.Operation, ev.Metadata)
	writeSuccess(w, http.StatusAccepted, map[string]any{"queued": true})
}

func (h *Handler) authFailureEvent(w http.ResponseWriter, r *http.Request) {
	ev, ok := h.decodeEvent(w, r, "user_id")
	if !ok {
		return
	}
	anomalies := h.deps.Security.MonitorAuthFailure(r.Context(), ev.UserID, ev.Reason, ev.Metadata)
	if anomalies == nil {
		anomalies = []domain.AnomalyAlert{}
	}
	writeSuccess(w, http.StatusAccepted, map[string]any{"anomalies": anomalies})
}
