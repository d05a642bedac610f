// Package ratelimit fornece adapters HTTP (net/http) para rate limit e limite de concorrência.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (regras nomeadas, janelas, sem net/http)
//   - application: casos de uso (janela fixa, rajada, acquire/timeout) sem net/http
//   - infra: implementações concretas (janela em memória/Redis, token bucket, semáforo, stats)
//   - ratelimit (este pacote): middlewares HTTP + extração de chave/ação + tradução para status/headers
//
// Fluxo no gateway:
//
//  1. Extrai a identidade do cliente (header/XFF/IP) e a ação pela rota
//  2. BurstMiddleware barra rajadas pelo token bucket
//  3. Middleware aplica a janela fixa da ação e publica X-RateLimit-*
//  4. ConcurrencyMiddleware limita requisições em voo (503 ao estourar o timeout)
//  5. Se permitido, chama o próximo handler (ex: reverse proxy)
//
// Toda negação da janela fixa é entregue ao DenialAuditor configurado.
package ratelimit
