// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - MemoryBucketStore / RedisBucketStore: janela fixa por identidade:ação
//   - BurstStore: token bucket por cliente usando golang.org/x/time/rate
//   - ChanPool: semáforo simples para limite de concorrência
//   - Memory/Redis/Prom StatsStore: estatísticas best-effort das decisões
package infra
