// Package httpapi expõe a superfície HTTP da governança: saúde, painel de
// segurança, ingestão de eventos e métricas Prometheus. O restante do
// tráfego segue para o handler Upstream (proxy já envolvido pelos limites).
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"governance-gateway/cache"
	"governance-gateway/health"
	"governance-gateway/logging"
	"governance-gateway/security/application"
	"governance-gateway/security/domain"
)

const DefaultDashboardTTL = 30 * time.Second

type Deps struct {
	Health   *health.Monitor
	Security *application.Monitor
	// DashboardCache guarda o painel por timeframe; nil desliga o cache.
	DashboardCache *cache.Cache[domain.Dashboard]
	DashboardTTL   time.Duration
	Gatherer       prometheus.Gatherer
	Upstream       http.Handler
	Log            *slog.Logger

	// AdminToken protege /security/*; vazio fecha as rotas com 403.
	AdminToken string
	// SecurityLimiter limita /security/* antes da checagem do token.
	SecurityLimiter func(http.Handler) http.Handler
	// TrustXFF faz o IP auditado vir do X-Forwarded-For.
	TrustXFF bool
}

type Handler struct {
	deps Deps
	log  *slog.Logger
}

func NewHandler(deps Deps) *Handler {
	if deps.DashboardTTL <= 0 {
		deps.DashboardTTL = DefaultDashboardTTL
	}
	return &Handler{deps: deps, log: logging.Component(deps.Log, "http", "adapter")}
}

// NewRouter registra as rotas e a pilha de middlewares.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(h.requestIDMiddleware)
	r.Use(h.recoverMiddleware)
	r.Use(h.loggingMiddleware)

	r.Get("/health", h.checkHealth)
	if h.deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/security", func(r chi.Router) {
		if h.deps.SecurityLimiter != nil {
			r.Use(h.deps.SecurityLimiter)
		}
		r.Use(h.adminAuthMiddleware)
		r.Get("/dashboard", h.dashboard)
		r.Post("/events/data-access", h.dataAccessEvent)
		r.Post("/events/rls-violation", h.rlsViolationEvent)
		r.Post("/events/auth-failure", h.authFailureEvent)
	})

	if h.deps.Upstream != nil {
		r.NotFound(h.deps.Upstream.ServeHTTP)
		r.MethodNotAllowed(h.deps.Upstream.ServeHTTP)
	}
	return r
}
