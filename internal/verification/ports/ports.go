package ports

import (
	"context"
	"crypto"
	"errors"

	"vpgate/internal/verification/models"
)

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks KeyResolver,StatusChecker

// ErrKeyNotFound is returned by resolvers that cannot find the referenced key.
var ErrKeyNotFound = errors.New("verification key not found")

// KeyResolver resolves a proof's verificationMethod to a public key.
// This is a hexagonal architecture port - proof suites depend on this interface,
// and adapters (static key set, did:key, remote DID resolver) implement it.
type KeyResolver interface {
	// ResolveKey returns the public key behind verificationMethod, for example
	// "did:example:123#key-1". Returns ErrKeyNotFound (possibly wrapped) when
	// the method is unknown.
	ResolveKey(ctx context.Context, verificationMethod string) (crypto.PublicKey, error)
}

// StatusChecker answers revocation questions for a credential status entry.
type StatusChecker interface {
	IsRevoked(ctx context.Context, status models.CredentialStatus) (bool, error)
}
