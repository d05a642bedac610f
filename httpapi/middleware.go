package httpapi

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"governance-gateway/apperr"
	"governance-gateway/security/domain"
)

type ctxKey string

const ctxKeyRequestID ctxKey = "request_id"

// requestIDMiddleware também grava IP e user agent no ctx para a auditoria.
func (h *Handler) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)

		ctx := context.WithValue(r.Context(), ctxKeyRequestID, reqID)
		ctx = domain.WithRequestInfo(ctx, domain.RequestInfo{
			RequestID: reqID,
			IPAddress: clientIP(r, h.deps.TrustXFF),
			UserAgent: r.UserAgent(),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.log.ErrorContext(r.Context(), "panic recovered",
					"operation", "http_panic_recovery",
					"outcome", "failure",
					"request_id", requestIDFromContext(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"panic", rec,
				)
				writeError(w, http.StatusInternalServerError, "SERVER", "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	bytes      int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *statusRecorder) Write(payload []byte) (int, error) {
	if r.statusCode == 0 {
		r.statusCode = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(payload)
	r.bytes += n
	return n, err
}

// Unwrap deixa http.ResponseController alcançar o writer original (hijack do upgrade).
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Flush mantém o streaming do reverse proxy funcionando através do recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (h *Handler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(recorder, r)

		statusCode := recorder.statusCode
		if statusCode == 0 {
			statusCode = http.StatusOK
		}
		outcome := "success"
		if statusCode >= 400 {
			outcome = "failure"
		}

		fields := []any{
			"operation", "http_request",
			"outcome", outcome,
			"method", r.Method,
			"path", r.URL.Path,
			"status_code", statusCode,
			"bytes", recorder.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", requestIDFromContext(r.Context()),
		}
		switch {
		case statusCode >= 500:
			h.log.ErrorContext(r.Context(), "http request completed", fields...)
		case statusCode >= 400:
			h.log.WarnContext(r.Context(), "http request completed", fields...)
		default:
			h.log.DebugContext(r.Context(), "http request completed", fields...)
		}
	})
}

// adminAuthMiddleware exige o token administrativo em Authorization: Bearer
// ou X-Admin-Token. Sem token configurado a API de segurança fica fechada.
func (h *Handler) adminAuthMiddleware(next http.Handler) http.Handler {
	expected := []byte(h.deps.AdminToken)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(expected) == 0 {
			h.log.WarnContext(r.Context(), "security api disabled",
				"operation", "admin_auth",
				"outcome", "rejected",
				"request_id", requestIDFromContext(r.Context()),
				"path", r.URL.Path,
			)
			writeError(w, http.StatusForbidden, string(apperr.Authorization), "security api is disabled")
			return
		}
		token := adminToken(r)
		if token == "" || subtle.ConstantTimeCompare([]byte(token), expected) != 1 {
			h.log.WarnContext(r.Context(), "admin token rejected",
				"operation", "admin_auth",
				"outcome", "rejected",
				"request_id", requestIDFromContext(r.Context()),
				"path", r.URL.Path,
				"token_present", token != "",
			)
			w.Header().Set("WWW-Authenticate", `Bearer realm="security"`)
			writeError(w, http.StatusUnauthorized, string(apperr.Authentication), "missing or invalid admin token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func adminToken(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get("X-Admin-Token")); v != "" {
		return v
	}
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

func requestIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(ctxKeyRequestID).(string); ok {
		return s
	}
	return ""
}

// clientIP só considera X-Forwarded-For quando o gateway está atrás de um proxy confiável.
func clientIP(r *http.Request, trustXFF bool) string {
	if trustXFF {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
