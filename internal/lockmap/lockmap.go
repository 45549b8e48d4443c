package lockmap

import "sync"

// Map provides per-key mutual exclusion. Locks are created on demand and
// removed on unlock, so the map only holds locks that are currently taken.
type Map[K comparable] struct {
	mut   sync.Mutex
	locks map[K]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func New[K comparable]() *Map[K] {
	return &Map[K]{
		locks: make(map[K]*lockEntry),
	}
}

func (lm *Map[K]) Lock(key K) {
	lm.mut.Lock()

	entry, ok := lm.locks[key]
	if !ok {
		entry = &lockEntry{}
		lm.locks[key] = entry
	}

	entry.refs++
	lm.mut.Unlock()

	entry.mu.Lock()
}

func (lm *Map[K]) Unlock(key K) {
	lm.mut.Lock()

	entry := lm.locks[key]
	entry.refs--

	if entry.refs == 0 {
		delete(lm.locks, key)
	}

	lm.mut.Unlock()

	entry.mu.Unlock()
}
