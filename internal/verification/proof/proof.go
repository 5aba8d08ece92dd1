// Package proof defines the proof verifier contract and the per-handler
// registry that maps open algorithm tags to verifiers.
//
// Registries are owned privately by a format handler. There is no global
// algorithm enum: supporting a new algorithm means registering a new
// tag/verifier pair on the handlers that should accept it.
package proof

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"vpgate/internal/verification/models"
)

//go:generate mockgen -source=proof.go -destination=mocks/mocks.go -package=mocks Verifier

var (
	ErrDuplicateProofType = errors.New("proof type already registered")
	ErrEmptyProofType     = errors.New("proof type is required")
	ErrNilVerifier        = errors.New("verifier is required")
)

// Input is everything a verifier may need to check one proof.
type Input struct {
	Proof models.Proof

	// Document is the secured document (credential or presentation) without
	// its proof member. Nil when the proof is self-contained.
	Document map[string]any

	// Challenge and Domain come from the verification request and let
	// holder-binding proofs be tied to this exchange.
	Challenge string
	Domain    string
}

// Verifier checks a single proof type. Implementations may block on network
// or CPU-bound work and must honour ctx.
//
// A false result with a nil error means the proof is well formed but does
// not verify; an error means it could not be checked at all.
type Verifier interface {
	VerifyProof(ctx context.Context, in Input) (bool, error)
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(ctx context.Context, in Input) (bool, error)

// VerifyProof calls f.
func (f VerifierFunc) VerifyProof(ctx context.Context, in Input) (bool, error) {
	return f(ctx, in)
}

// Registry maps proof type tags to verifiers, at most one per tag.
// It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	verifiers map[string]Verifier
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{verifiers: make(map[string]Verifier)}
}

// Register adds a verifier for proofType.
func (r *Registry) Register(proofType string, v Verifier) error {
	if proofType == "" {
		return ErrEmptyProofType
	}
	if v == nil {
		return ErrNilVerifier
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.verifiers[proofType]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateProofType, proofType)
	}
	r.verifiers[proofType] = v
	return nil
}

// MustRegister is Register for wiring code where a duplicate is a programming error.
func (r *Registry) MustRegister(proofType string, v Verifier) {
	if err := r.Register(proofType, v); err != nil {
		panic(err)
	}
}

// Unregister removes the verifier for proofType, if any.
func (r *Registry) Unregister(proofType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.verifiers, proofType)
}

// Lookup returns the verifier registered for proofType.
func (r *Registry) Lookup(proofType string) (Verifier, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.verifiers[proofType]
	return v, ok
}

// Types returns the registered proof types in lexical order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.verifiers))
	for t := range r.verifiers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
