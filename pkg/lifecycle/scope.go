// Package lifecycle runs a cleanup exactly once for a resource that can be
// concluded by several independent completion signals.
package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"
)

// Reason names the signal which concluded a Scope.
type Reason string

const (
	// The handler chain returned normally.
	Finished Reason = "finished"
	// The client went away before the handler finished.
	Aborted Reason = "aborted"
	// The underlying stream was closed from our side.
	Closed Reason = "closed"
)

// Scope moves from pending to concluded exactly once. Whichever signal fires
// first runs the cleanup, every signal (winner or not) detaches all listeners.
type Scope struct {
	concluded atomic.Bool
	cleanup   func(Reason)

	mu       sync.Mutex
	detached bool
	stops    []func() bool
	quit     chan struct{}
}

// New returns a pending Scope which will call cleanup with the winning reason.
func New(cleanup func(Reason)) *Scope {
	return &Scope{cleanup: cleanup, quit: make(chan struct{})}
}

// OnContextDone concludes the scope with reason once ctx is done.
func (s *Scope) OnContextDone(ctx context.Context, reason Reason) {
	stop := context.AfterFunc(ctx, func() { s.Conclude(reason) })
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.detached {
		stop()
		return
	}
	s.stops = append(s.stops, stop)
}

// OnClose concludes the scope with reason once ch is closed.
func (s *Scope) OnClose(ch <-chan struct{}, reason Reason) {
	s.mu.Lock()
	detached := s.detached
	s.mu.Unlock()
	if detached {
		return
	}
	go func() {
		select {
		case <-ch:
			s.Conclude(reason)
		case <-s.quit:
		}
	}()
}

// Conclude runs the cleanup if the scope is still pending and reports whether it did.
func (s *Scope) Conclude(reason Reason) bool {
	won := s.concluded.CompareAndSwap(false, true)
	s.detach()
	if !won {
		return false
	}
	if s.cleanup != nil {
		s.cleanup(reason)
	}
	return true
}

// Concluded reports whether a signal already fired.
func (s *Scope) Concluded() bool {
	return s.concluded.Load()
}

func (s *Scope) detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.detached {
		return
	}
	s.detached = true
	close(s.quit)
	for _, stop := range s.stops {
		stop()
	}
	s.stops = nil
}
