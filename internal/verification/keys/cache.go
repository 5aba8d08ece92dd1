package keys

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"vpgate/internal/verification/ports"
)

// Chain tries resolvers in order and returns the first key found.
// ErrKeyNotFound from one resolver moves on to the next; any other error stops.
type Chain []ports.KeyResolver

// ResolveKey implements ports.KeyResolver.
func (c Chain) ResolveKey(ctx context.Context, verificationMethod string) (crypto.PublicKey, error) {
	for _, r := range c {
		k, err := r.ResolveKey(ctx, verificationMethod)
		if err == nil {
			return k, nil
		}
		if !errors.Is(err, ports.ErrKeyNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s", ports.ErrKeyNotFound, verificationMethod)
}

type cachedKey struct {
	key      crypto.PublicKey
	storedAt time.Time
}

// CachingResolver memoizes another resolver for ttl and collapses concurrent
// lookups of the same verification method into one upstream call.
// Failures are not cached.
type CachingResolver struct {
	next  ports.KeyResolver
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group

	mu    sync.RWMutex
	cache map[string]cachedKey
}

// NewCaching wraps next with a TTL cache.
func NewCaching(next ports.KeyResolver, ttl time.Duration) *CachingResolver {
	return &CachingResolver{
		next:  next,
		ttl:   ttl,
		now:   time.Now,
		cache: make(map[string]cachedKey),
	}
}

// ResolveKey implements ports.KeyResolver.
func (c *CachingResolver) ResolveKey(ctx context.Context, verificationMethod string) (crypto.PublicKey, error) {
	c.mu.RLock()
	hit, ok := c.cache[verificationMethod]
	c.mu.RUnlock()
	if ok && c.now().Sub(hit.storedAt) < c.ttl {
		return hit.key, nil
	}

	v, err, _ := c.group.Do(verificationMethod, func() (any, error) {
		k, err := c.next.ResolveKey(ctx, verificationMethod)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.cache[verificationMethod] = cachedKey{key: k, storedAt: c.now()}
		c.mu.Unlock()
		return k, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(crypto.PublicKey), nil
}

// Purge drops every cached key.
func (c *CachingResolver) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.cache)
}

var (
	_ ports.KeyResolver = Chain(nil)
	_ ports.KeyResolver = (*CachingResolver)(nil)
)
