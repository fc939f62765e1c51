// Package saga provides the building blocks shared by the two saga
// process implementations: the per-instance state guard and the named
// wait-state representation of suspension points.
//
// Each process instance owns exactly one Guard. The guard gives signal
// handlers atomic, run-to-completion access to instance state while the
// main sequence blocks at explicit suspension points expressed as
// predicates over that same state. Nothing is shared across instances.
package saga

import (
	"context"
	"sync"
)

// WaitState names a suspension point in a process's main sequence
type WaitState string

// Guard serializes access to a single instance's state. Every mutation
// wakes any predicate wait so suspension points re-evaluate immediately.
// The zero value is not usable; call NewGuard.
type Guard struct {
	mu      sync.Mutex
	changed chan struct{}
	waiting WaitState
}

// NewGuard creates a ready guard
func NewGuard() *Guard {
	return &Guard{changed: make(chan struct{})}
}

// Mutate applies fn atomically and signals all predicate waiters
func (g *Guard) Mutate(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn()
	close(g.changed)
	g.changed = make(chan struct{})
}

// Read applies fn while holding the guard, without signalling waiters
func (g *Guard) Read(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn()
}

// WaitUntil blocks until pred over guarded state becomes true or ctx is
// done. pred is evaluated under the guard and re-evaluated after every
// mutation, never by polling.
func (g *Guard) WaitUntil(ctx context.Context, state WaitState, pred func() bool) error {
	for {
		g.mu.Lock()
		if pred() {
			g.waiting = ""
			g.mu.Unlock()
			return nil
		}
		g.waiting = state
		ch := g.changed
		g.mu.Unlock()

		select {
		case <-ctx.Done():
			g.mu.Lock()
			g.waiting = ""
			g.mu.Unlock()
			return ctx.Err()
		case <-ch:
		}
	}
}

// Waiting reports the wait state the main sequence is currently blocked
// in, or empty when it is running.
func (g *Guard) Waiting() WaitState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.waiting
}
