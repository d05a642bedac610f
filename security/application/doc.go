// Package application contém os casos de uso da governança de segurança:
// AuditLogger, AnomalyDetector, Monitor (fila de alertas + painel) e o
// RateLimitAuditor que liga o rate limit à auditoria.
package application
