// Package infra implementa a persistência e a notificação da governança:
// MemoryStore (testes e modo sem banco), PostgresStore (GORM) e
// KafkaNotifier para alertas críticos.
package infra
