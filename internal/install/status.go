package install

import "sync"

// StatusBroadcaster implements the long-poll contract behind GET
// /install/status?cur=: a caller blocks until the state differs from
// cur, which it learns about through a broadcast condition variable
// rather than polling.
type StatusBroadcaster struct {
	mu      sync.Mutex
	cond    *sync.Cond
	current State
}

// NewStatusBroadcaster returns a broadcaster starting at StateNotStarted.
func NewStatusBroadcaster() *StatusBroadcaster {
	b := &StatusBroadcaster{current: StateNotStarted}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Set updates the current state and wakes every waiter.
func (b *StatusBroadcaster) Set(s State) {
	b.mu.Lock()
	b.current = s
	b.mu.Unlock()
	b.cond.Broadcast()
}

// Current returns the current state.
func (b *StatusBroadcaster) Current() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Wait blocks until the state differs from cur, then returns it. It is
// safe to call from multiple goroutines concurrently (one per polling
// HTTP request).
func (b *StatusBroadcaster) Wait(cur State) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.current == cur {
		b.cond.Wait()
	}
	return b.current
}
