/*
guard.go - Single-flight guard for per-item student actions

PURPOSE:
  Prevents a second purchase or equip for the same (student, item) pair
  from being dispatched while one is already in flight - the double-click
  / double-spend guard. Keyed by student+item, NOT a global lock: a
  purchase of a different item proceeds concurrently.

BEHAVIOR:
  Acquire blocks until the in-flight operation for the key resolves, then
  proceeds. The follow-up attempt is then rejected by the storage-level
  uniqueness constraint (already owned) rather than double-charging.
  TryAcquire is the non-blocking variant used where callers prefer an
  immediate ErrRequestInFlight.

CLEANUP:
  Per-key entries are reference counted and removed when the last holder
  releases, so the map does not grow with every item ever touched.
*/
package redemption

import "sync"

// =============================================================================
// KEYED GUARD
// =============================================================================

type guardEntry struct {
	mu   sync.Mutex
	refs int
}

// Guard hands out per-key mutexes.
type Guard struct {
	mu      sync.Mutex
	entries map[string]*guardEntry
}

func NewGuard() *Guard {
	return &Guard{entries: make(map[string]*guardEntry)}
}

// Acquire blocks until the key is free and returns a release function.
func (g *Guard) Acquire(key string) func() {
	e := g.retain(key)
	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		g.release(key, e)
	}
}

// TryAcquire returns (release, true) if the key was free, (nil, false)
// if an identical operation is already in flight.
func (g *Guard) TryAcquire(key string) (func(), bool) {
	e := g.retain(key)
	if !e.mu.TryLock() {
		g.release(key, e)
		return nil, false
	}
	return func() {
		e.mu.Unlock()
		g.release(key, e)
	}, true
}

func (g *Guard) retain(key string) *guardEntry {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.entries[key]
	if !ok {
		e = &guardEntry{}
		g.entries[key] = e
	}
	e.refs++
	return e
}

func (g *Guard) release(key string, e *guardEntry) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(g.entries, key)
	}
}
