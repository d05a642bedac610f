// Package domain define os tipos e contratos da camada de governança de
// segurança: auditoria, alertas, padrões de comportamento e o painel.
//
// Nada aqui depende de HTTP, banco ou broker; a persistência entra pelos
// contratos AuditStore e AlertStore e a notificação por AlertNotifier.
package domain
