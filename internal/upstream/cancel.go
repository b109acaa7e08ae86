package upstream

import (
	"context"
	"sync"
)

// registry tracks in-flight calls by request id so they can be cancelled from outside
// the goroutine that issued them.
type registry struct {
	mu      sync.Mutex
	entries map[string]*registration
}

type registration struct {
	cancel context.CancelCauseFunc
}

func newRegistry() *registry {
	return &registry{entries: make(map[string]*registration)}
}

// register derives a cancellable context for requestID. The returned release func
// removes the entry and must be called on every exit path. An empty requestID is not
// tracked.
func (r *registry) register(ctx context.Context, requestID string) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(ctx)
	if requestID == "" {
		return ctx, func() { cancel(nil) }
	}

	reg := &registration{cancel: cancel}

	r.mu.Lock()
	// A reused request id points at the newest call; the older call can no longer be
	// cancelled by id but still releases cleanly.
	r.entries[requestID] = reg
	r.mu.Unlock()

	var once sync.Once
	return ctx, func() {
		once.Do(func() {
			r.mu.Lock()
			if r.entries[requestID] == reg {
				delete(r.entries, requestID)
			}
			r.mu.Unlock()
			cancel(nil)
		})
	}
}

// cancel signals the call registered under requestID. It reports whether a call was
// found.
func (r *registry) cancel(requestID string) bool {
	r.mu.Lock()
	reg, ok := r.entries[requestID]
	r.mu.Unlock()

	if ok {
		reg.cancel(ErrCancelled)
	}
	return ok
}

// len returns the number of tracked calls.
func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
