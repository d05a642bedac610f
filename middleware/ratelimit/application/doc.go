// Package application contém os casos de uso (regras de aplicação) para rate limit
// e limite de concorrência.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: Limiter.CheckLimit(ctx, identidade, ação) retorna uma Decision
// (allow/deny + remaining/reset) e audita toda negação.
package application
