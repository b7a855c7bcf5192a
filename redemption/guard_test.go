package redemption

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGuard_SerializesSameKey(t *testing.T) {
	// Two holders of the same key never overlap.

	g := NewGuard()
	var inFlight, maxInFlight int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := g.Acquire("stu-1:frame-gold")
			defer release()

			mu.Lock()
			inFlight++
			if inFlight > maxInFlight {
				maxInFlight = inFlight
			}
			mu.Unlock()

			mu.Lock()
			inFlight--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInFlight)
}

func TestGuard_DifferentKeysIndependent(t *testing.T) {
	g := NewGuard()

	release1 := g.Acquire("stu-1:frame-gold")
	defer release1()

	// A different item must not block.
	release2, ok := g.TryAcquire("stu-1:bg-ocean")
	assert.True(t, ok)
	release2()
}

func TestGuard_TryAcquire_FailsWhileHeld(t *testing.T) {
	g := NewGuard()

	release := g.Acquire("k")
	_, ok := g.TryAcquire("k")
	assert.False(t, ok)

	release()
	release2, ok := g.TryAcquire("k")
	assert.True(t, ok)
	release2()
}

func TestGuard_EntriesCleanedUp(t *testing.T) {
	// The per-key map must not grow with every key ever used.

	g := NewGuard()
	for i := 0; i < 100; i++ {
		release := g.Acquire("k")
		release()
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	assert.Empty(t, g.entries)
}
