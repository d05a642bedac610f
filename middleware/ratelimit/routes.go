package ratelimit

import (
	"net/http"
	"strings"

	"governance-gateway/middleware/ratelimit/domain"
)

// Route associa método + prefixo de caminho a uma regra nomeada.
// Method vazio casa com qualquer método.
type Route struct {
	Method string
	Prefix string
	Action string
}

// DefaultRoutes mapeia as rotas da API OTC para as regras padrão.
// A ordem importa: a primeira rota que casar vence.
func DefaultRoutes() []Route {
	return []Route{
		{Method: http.MethodPost, Prefix: "/auth/", Action: domain.ActionAuth},
		{Method: http.MethodPost, Prefix: "/api/trades", Action: domain.ActionTradeCreation},
		{Method: http.MethodPost, Prefix: "/api/messages", Action: domain.ActionMessageSend},
		{Method: http.MethodPost, Prefix: "/api/kyc", Action: domain.ActionKYCSubmission},
		{Prefix: "/api/", Action: domain.ActionAPI},
	}
}

// RouteActionFunc devolve uma ActionFunc baseada em tabela; sem casamento
// cai em "default".
func RouteActionFunc(routes []Route) ActionFunc {
	return func(r *http.Request) string {
		for _, rt := range routes {
			if rt.Method != "" && !strings.EqualFold(rt.Method, r.Method) {
				continue
			}
			if strings.HasPrefix(r.URL.Path, rt.Prefix) {
				return rt.Action
			}
		}
		return domain.ActionDefault
	}
}
