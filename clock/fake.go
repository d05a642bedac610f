package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake é um relógio controlado manualmente.
//
// Timers e canais de After só disparam quando Advance/Set move o tempo
// para além do vencimento. Os callbacks de AfterFunc rodam de forma síncrona
// dentro de Advance, fora do lock.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	seq     int
	pending []*fakeTimer
}

type fakeTimer struct {
	id      int
	at      time.Time
	fn      func()
	ch      chan time.Time
	stopped bool
	owner   *Fake
}

// NewFake cria um relógio parado em t.
func NewFake(t time.Time) *Fake {
	return &Fake{now: t}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	f.schedule(d, nil, ch)
	return ch
}

func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	return f.schedule(d, fn, nil)
}

// Advance move o relógio d para frente e dispara os timers vencidos em ordem.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()
	f.Set(target)
}

// Set posiciona o relógio em t. Mover para trás não dispara nada.
func (f *Fake) Set(t time.Time) {
	for {
		f.mu.Lock()
		next := f.nextDue(t)
		if next == nil {
			f.now = t
			f.mu.Unlock()
			return
		}
		if next.at.After(f.now) {
			f.now = next.at
		}
		next.stopped = true
		now := f.now
		f.mu.Unlock()

		if next.ch != nil {
			next.ch <- now
		}
		if next.fn != nil {
			next.fn()
		}
	}
}

// Pending retorna quantos timers ainda não dispararam.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.pending {
		if !t.stopped {
			n++
		}
	}
	return n
}

func (f *Fake) schedule(d time.Duration, fn func(), ch chan time.Time) *fakeTimer {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	t := &fakeTimer{id: f.seq, at: f.now.Add(d), fn: fn, ch: ch, owner: f}
	f.pending = append(f.pending, t)
	return t
}

// nextDue remove da fila e devolve o próximo timer com vencimento <= limit.
// Deve ser chamado com f.mu travado.
func (f *Fake) nextDue(limit time.Time) *fakeTimer {
	live := f.pending[:0]
	for _, t := range f.pending {
		if !t.stopped {
			live = append(live, t)
		}
	}
	f.pending = live
	sort.SliceStable(f.pending, func(i, j int) bool {
		if f.pending[i].at.Equal(f.pending[j].at) {
			return f.pending[i].id < f.pending[j].id
		}
		return f.pending[i].at.Before(f.pending[j].at)
	})
	if len(f.pending) == 0 || f.pending[0].at.After(limit) {
		return nil
	}
	next := f.pending[0]
	f.pending = f.pending[1:]
	return next
}

func (t *fakeTimer) Stop() bool {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}
