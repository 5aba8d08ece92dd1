package formats

import (
	"errors"
	"slices"
	"sync"
	"sync/atomic"

	"vpgate/internal/verification/models"
)

// ReasonNoHandler is the DispatchError reason when nothing accepts a presentation.
const ReasonNoHandler = "no handler"

var (
	// ErrNoHandler matches any DispatchError raised because no handler accepted
	// the presentation. Use errors.Is.
	ErrNoHandler = errors.New(ReasonNoHandler)

	ErrNilHandler        = errors.New("handler is required")
	ErrHandlerRegistered = errors.New("handler already registered")
)

// DispatchError is the fatal, non-retryable failure to select a handler.
// It is distinct from a verification rejection.
type DispatchError struct {
	Reason string
}

// Error implements the error interface.
func (e *DispatchError) Error() string {
	return "dispatch failed: " + e.Reason
}

// Is lets errors.Is(err, ErrNoHandler) match.
func (e *DispatchError) Is(target error) bool {
	return target == ErrNoHandler && e.Reason == ReasonNoHandler
}

// Registry is the ordered handler collection used for dispatch.
//
// Dispatch reads an immutable snapshot that is swapped atomically on every
// mutation, so an in-flight dispatch never observes a half-applied
// Register or Unregister. Mutations are serialized.
type Registry struct {
	mu       sync.Mutex
	snapshot atomic.Pointer[[]Handler]
}

// NewRegistry creates a registry holding handlers in the given order.
func NewRegistry(handlers ...Handler) (*Registry, error) {
	r := &Registry{}
	for _, h := range handlers {
		if err := r.Register(h); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register appends h to the dispatch order.
// Handlers must be comparable (pointer receivers) so Unregister can find them.
func (r *Registry) Register(h Handler) error {
	if h == nil {
		return ErrNilHandler
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.load()
	if slices.Contains(current, h) {
		return ErrHandlerRegistered
	}
	next := make([]Handler, len(current), len(current)+1)
	copy(next, current)
	next = append(next, h)
	r.snapshot.Store(&next)
	return nil
}

// Unregister removes h. It reports whether h was registered.
func (r *Registry) Unregister(h Handler) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.load()
	idx := slices.Index(current, h)
	if idx < 0 {
		return false
	}
	next := slices.Delete(slices.Clone(current), idx, idx+1)
	r.snapshot.Store(&next)
	return true
}

// Dispatch returns the first handler, in registration order, whose
// CanHandle accepts p. A CanHandle that panics counts as a decline.
func (r *Registry) Dispatch(p *models.Presentation) (Handler, error) {
	if p == nil {
		return nil, &DispatchError{Reason: ReasonNoHandler}
	}
	for _, h := range r.load() {
		if canHandle(h, p) {
			return h, nil
		}
	}
	return nil, &DispatchError{Reason: ReasonNoHandler}
}

func canHandle(h Handler, p *models.Presentation) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return h.CanHandle(p)
}

// Handlers returns the current dispatch order.
func (r *Registry) Handlers() []Handler {
	return slices.Clone(r.load())
}

// Names returns handler names in dispatch order.
func (r *Registry) Names() []string {
	handlers := r.load()
	names := make([]string, 0, len(handlers))
	for _, h := range handlers {
		names = append(names, h.Name())
	}
	return names
}

func (r *Registry) load() []Handler {
	if p := r.snapshot.Load(); p != nil {
		return *p
	}
	return nil
}
