package clock

import "time"

// CountSince conta quantos timestamps são posteriores ou iguais a since.
// ts deve estar em ordem crescente (é o caso das janelas append-only).
func CountSince(ts []time.Time, since time.Time) int {
	// busca a partir do fim: as janelas crescem no final
	n := 0
	for i := len(ts) - 1; i >= 0; i-- {
		if ts[i].Before(since) {
			break
		}
		n++
	}
	return n
}

// PruneBefore descarta os timestamps anteriores a cutoff, reaproveitando o slice.
func PruneBefore(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && ts[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return ts
	}
	return append(ts[:0], ts[i:]...)
}

// Expired informa se algo armazenado em storedAt com ttl já expirou em now.
// O limite é exclusivo: em storedAt+ttl a entrada ainda vale.
func Expired(storedAt time.Time, ttl time.Duration, now time.Time) bool {
	return now.After(storedAt.Add(ttl))
}
