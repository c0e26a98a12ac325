// Package rendezvous is the Wait-Mode Rendezvous: a process-local map
// from submission id to a one-shot completion signal, letting an HTTP
// handler block for a bounded duration until a worker commits a
// terminal result.
package rendezvous

import (
	"context"
	"errors"
	"sync"
)

// ErrTimeout is returned by Await when the deadline elapses
// before the submission reaches a terminal state.
var ErrTimeout = errors.New("rendezvous: wait timed out")

// Rendezvous tracks one-shot completion signals by submission id.
type Rendezvous struct {
	mu      sync.Mutex
	waiters map[string]chan struct{}
}

// New returns an empty Rendezvous.
func New() *Rendezvous {
	return &Rendezvous{waiters: make(map[string]chan struct{})}
}

// Register creates the completion signal for id. Must be called before
// the submission is enqueued, so a worker finishing before the waiter
// starts blocking cannot race it — Publish is idempotent, so it is safe
// even if Register runs concurrently with a fast worker.
func (r *Rendezvous) Register(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.waiters[id]; !exists {
		r.waiters[id] = make(chan struct{})
	}
}

// Publish fires id's completion signal. Idempotent and safe if nobody
// registered for id (a fire-and-forget submission, for instance). A
// signal fired before Await starts blocking stays fired until an Await
// consumes it.
func (r *Rendezvous) Publish(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, exists := r.waiters[id]
	if !exists {
		return
	}
	select {
	case <-ch:
	default:
		close(ch)
	}
}

// Await blocks until id's signal fires or ctx is done, whichever comes
// first. On timeout the waiter entry is removed, but the submission
// keeps running to completion in the background; the caller is
// expected to re-read the store for the actual terminal value once
// this returns nil, and to receive ErrTimeout on expiry.
func (r *Rendezvous) Await(ctx context.Context, id string) error {
	r.mu.Lock()
	ch, exists := r.waiters[id]
	if !exists {
		ch = make(chan struct{})
		r.waiters[id] = ch
	}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		if r.waiters[id] == ch {
			delete(r.waiters, id)
		}
		r.mu.Unlock()
	}()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ErrTimeout
	}
}
