// Package async implements the single-instance restartable task pattern,
// grounded on subiquity's async_helpers.SingleInstanceTask: at most one
// invocation of the wrapped function runs at a time, and starting a new
// one cancels and awaits whatever invocation is currently running first.
package async

import (
	"context"
	"sync"
)

// SingleFlight runs one invocation of a function at a time. A new Start
// call cancels and waits out the previous invocation before launching its
// replacement, the same restart-supersedes-the-old-run semantics
// controllers need for a repeatable, cancelable operation like applying a
// network configuration: a second POST before the first apply finishes
// should abandon the stale attempt rather than race it.
type SingleFlight struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Start cancels and awaits any in-flight run of fn, then launches a fresh
// one in its own goroutine. It returns once the new run has been
// launched, not once it completes; Cancel cancels the run's context and
// then blocks until fn has returned, without starting a replacement.
func (s *SingleFlight) Start(ctx context.Context, fn func(context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		<-s.done
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		defer cancel()
		_ = fn(runCtx)
	}()
}

// Cancel stops the current run, if any, without starting a replacement.
func (s *SingleFlight) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		<-s.done
		s.cancel = nil
		s.done = nil
	}
}
