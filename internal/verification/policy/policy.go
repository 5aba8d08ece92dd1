// Package policy holds post-verification business rules and the executor
// that runs the subset a request names.
//
// The registry only ever receives fully constructed Policy values from the
// caller. It never instantiates anything itself.
package policy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"vpgate/internal/verification/models"
)

//go:generate mockgen -source=policy.go -destination=mocks/mocks.go -package=mocks Policy

var (
	ErrEmptyName  = errors.New("policy name is required")
	ErrNilPolicy  = errors.New("policy is required")
	ErrRegistered = errors.New("policy already registered")
)

// Policy evaluates one business rule against verified claims.
//
// Returning an error is equivalent to returning a non-compliant result
// carrying the error message; the executor records it and moves on.
type Policy interface {
	Execute(ctx context.Context, data models.VerificationData) (models.PolicyResult, error)
}

// Func adapts a function to the Policy interface.
type Func func(ctx context.Context, data models.VerificationData) (models.PolicyResult, error)

// Execute calls f.
func (f Func) Execute(ctx context.Context, data models.VerificationData) (models.PolicyResult, error) {
	return f(ctx, data)
}

// Registry maps policy names to policies. Reads are concurrent; Register
// and Unregister are serialized and never interleave with a lookup.
type Registry struct {
	mu       sync.RWMutex
	policies map[string]Policy
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{policies: make(map[string]Policy)}
}

// Register adds p under name.
func (r *Registry) Register(name string, p Policy) error {
	if name == "" {
		return ErrEmptyName
	}
	if p == nil {
		return ErrNilPolicy
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.policies[name]; exists {
		return fmt.Errorf("%w: %s", ErrRegistered, name)
	}
	r.policies[name] = p
	return nil
}

// Unregister removes the policy under name and reports whether it existed.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.policies[name]
	delete(r.policies, name)
	return ok
}

// Lookup returns the policy registered under name.
func (r *Registry) Lookup(name string) (Policy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.policies[name]
	return p, ok
}

// Names returns registered policy names in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.policies))
	for n := range r.policies {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// resolve looks up every name under one read lock so a single execution
// sees a consistent registry.
func (r *Registry) resolve(names []string) (found []namedPolicy, missing []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		if p, ok := r.policies[n]; ok {
			found = append(found, namedPolicy{name: n, policy: p})
		} else {
			missing = append(missing, n)
		}
	}
	return found, missing
}

type namedPolicy struct {
	name   string
	policy Policy
}

// Compliant is the logical AND over executed results. An empty set is compliant.
func Compliant(results map[string]models.PolicyResult) bool {
	for _, r := range results {
		if !r.Compliant {
			return false
		}
	}
	return true
}
