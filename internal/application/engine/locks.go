package engine

import "sync"

// strategyLocks serializa las operaciones de escritura por strategy id.
// Estrategias distintas no comparten mutex y avanzan en paralelo.
type strategyLocks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newStrategyLocks() *strategyLocks {
	return &strategyLocks{locks: make(map[string]*lockEntry)}
}

// lock bloquea la estrategia y devuelve la función de desbloqueo.
// La entrada se libera del mapa cuando nadie más la espera.
func (l *strategyLocks) lock(strategyID string) func() {
	l.mu.Lock()
	e, ok := l.locks[strategyID]
	if !ok {
		e = &lockEntry{}
		l.locks[strategyID] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, strategyID)
		}
		l.mu.Unlock()
	}
}
