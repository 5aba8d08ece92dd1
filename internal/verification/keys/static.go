package keys

import (
	"context"
	"crypto"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"vpgate/internal/verification/ports"
)

// StaticResolver serves keys from a fixed set keyed by verification method.
type StaticResolver struct {
	mu   sync.RWMutex
	keys map[string]crypto.PublicKey
}

// NewStatic creates a resolver over keys. The map is copied.
func NewStatic(keys map[string]crypto.PublicKey) *StaticResolver {
	s := &StaticResolver{keys: make(map[string]crypto.PublicKey, len(keys))}
	for vm, k := range keys {
		s.keys[vm] = k
	}
	return s
}

// LoadStaticFile reads a JSON object mapping verification method to JWK:
//
//	{"did:example:123#key-1": {"kty": "OKP", "crv": "Ed25519", "x": "..."}}
func LoadStaticFile(path string) (*StaticResolver, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode key file: %w", err)
	}
	s := NewStatic(nil)
	for vm, jwk := range entries {
		pub, err := ParseJWK(jwk)
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", vm, err)
		}
		s.Add(vm, pub)
	}
	return s, nil
}

// Add registers or replaces the key for verificationMethod.
func (s *StaticResolver) Add(verificationMethod string, key crypto.PublicKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[verificationMethod] = key
}

// Len returns the number of keys held.
func (s *StaticResolver) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

// ResolveKey implements ports.KeyResolver.
func (s *StaticResolver) ResolveKey(_ context.Context, verificationMethod string) (crypto.PublicKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.keys[verificationMethod]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ports.ErrKeyNotFound, verificationMethod)
	}
	return k, nil
}

var _ ports.KeyResolver = (*StaticResolver)(nil)
