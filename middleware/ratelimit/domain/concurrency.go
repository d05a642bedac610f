package domain

import "context"

// SlotPool representa um recurso com capacidade finita (ex: requisições em voo
// para o upstream da mesa OTC).
//
// Acquire bloqueia até conseguir uma vaga ou até o ctx encerrar.
// Ao adquirir, retorna uma função de release que deve ser chamada exatamente uma vez.
// Usage informa a ocupação atual, usada pela checagem de saúde de saturação.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
	Usage() (inUse, capacity int)
}
