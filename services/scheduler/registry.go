package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"agentplane/services/workitem"
)

// ErrUnknownKind is returned when no handler is registered for an item's
// kind. The executor fails such items terminally without consuming retries.
var ErrUnknownKind = errors.New("no handler registered for kind")

// Result is what a handler reports back on success.
type Result struct {
	Summary string
}

// Attempt carries the claimed item into a handler invocation. Number is
// 1-based and counts previous retries.
type Attempt struct {
	Item   *workitem.WorkItem
	Number int
}

// Handler executes the side-effecting work for one kind of work item. The
// engine guarantees at most one concurrent execution per item, not automatic
// idempotency of the side effect: a handler that is not retry-safe must
// derive a deterministic idempotency key from the item id.
type Handler interface {
	Kind() workitem.Kind
	Execute(ctx context.Context, att Attempt) (Result, error)
	// RetrySafe reports whether re-executing after a crash between execute
	// and commit cannot duplicate the side effect.
	RetrySafe() bool
}

// Registry maps work item kinds to handlers. New kinds register here without
// touching the executor.
type Registry struct {
	mu       sync.RWMutex
	handlers map[workitem.Kind]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[workitem.Kind]Handler)}
}

func (r *Registry) Register(h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	kind := h.Kind()
	if _, exists := r.handlers[kind]; exists {
		return fmt.Errorf("handler for kind %q already registered", kind)
	}
	r.handlers[kind] = h
	return nil
}

func (r *Registry) Resolve(kind workitem.Kind) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return h, nil
}

func (r *Registry) Kinds() []workitem.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]workitem.Kind, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	return kinds
}
