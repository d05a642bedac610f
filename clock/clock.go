// Package clock abstrai o tempo para os componentes de governança.
//
// Código de produção injeta Real(); testes injetam NewFake(t) e controlam
// o avanço do tempo de forma determinística.
package clock

import "time"

// Clock é o mínimo de operações de tempo usadas pelos serviços.
type Clock interface {
	Now() time.Time
	// After equivale a time.After.
	After(d time.Duration) <-chan time.Time
	// AfterFunc agenda f para depois de d. O Timer retornado permite cancelar.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer é um evento agendado que pode ser cancelado.
type Timer interface {
	Stop() bool
}

// Real retorna o relógio do sistema.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// OrReal devolve c, ou o relógio real quando c é nil.
func OrReal(c Clock) Clock {
	if c == nil {
		return Real()
	}
	return c
}
