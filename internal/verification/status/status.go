// Package status provides StatusChecker adapters backed by revocation sets.
//
// A credential status entry is identified by its status list credential and
// index when both are present, and by its id otherwise.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/redis/go-redis/v9"

	"vpgate/internal/verification/models"
	"vpgate/internal/verification/ports"
)

const redisRevokedKeyPrefix = "status:revoked:"

// ErrUnaddressable is returned for status entries with neither an id nor a list reference.
var ErrUnaddressable = errors.New("credential status has no id or status list reference")

// entryRef returns the set name and member for a status entry.
func entryRef(st models.CredentialStatus) (list, member string, err error) {
	switch {
	case st.StatusListCredential != "" && st.StatusListIndex != "":
		return st.StatusListCredential, st.StatusListIndex, nil
	case st.ID != "":
		return "id", st.ID, nil
	default:
		return "", "", ErrUnaddressable
	}
}

// Memory is an in-process revocation set.
type Memory struct {
	mu      sync.RWMutex
	revoked map[string]map[string]struct{}
}

// NewMemory creates an empty in-memory checker.
func NewMemory() *Memory {
	return &Memory{revoked: make(map[string]map[string]struct{})}
}

// LoadMemoryFile reads a JSON array of credentialStatus entries and returns
// a checker reporting each of them as revoked.
func LoadMemoryFile(path string) (*Memory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read revocations file: %w", err)
	}
	var entries []models.CredentialStatus
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode revocations file: %w", err)
	}
	m := NewMemory()
	for i, st := range entries {
		if err := m.Revoke(st); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
	}
	return m, nil
}

// Len returns the number of revoked entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, set := range m.revoked {
		n += len(set)
	}
	return n
}

// Revoke marks st as revoked.
func (m *Memory) Revoke(st models.CredentialStatus) error {
	list, member, err := entryRef(st)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.revoked[list]
	if !ok {
		set = make(map[string]struct{})
		m.revoked[list] = set
	}
	set[member] = struct{}{}
	return nil
}

// IsRevoked implements ports.StatusChecker.
func (m *Memory) IsRevoked(_ context.Context, st models.CredentialStatus) (bool, error) {
	list, member, err := entryRef(st)
	if err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.revoked[list][member]
	return ok, nil
}

// setClient is the slice of the go-redis API the Redis checker needs.
type setClient interface {
	SIsMember(ctx context.Context, key string, member any) *redis.BoolCmd
	SAdd(ctx context.Context, key string, members ...any) *redis.IntCmd
}

// Redis keeps revocation sets in Redis, one set per status list.
type Redis struct {
	client setClient
}

// NewRedis constructs a Redis-backed checker from a configured client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// IsRevoked implements ports.StatusChecker.
//
// Side effects: performs a Redis SISMEMBER.
func (r *Redis) IsRevoked(ctx context.Context, st models.CredentialStatus) (bool, error) {
	list, member, err := entryRef(st)
	if err != nil {
		return false, err
	}
	revoked, err := r.client.SIsMember(ctx, redisRevokedKeyPrefix+list, member).Result()
	if err != nil {
		return false, fmt.Errorf("check revocation: %w", err)
	}
	return revoked, nil
}

// Revoke adds st to its revocation set.
//
// Side effects: performs a Redis SADD.
func (r *Redis) Revoke(ctx context.Context, st models.CredentialStatus) error {
	list, member, err := entryRef(st)
	if err != nil {
		return err
	}
	if err := r.client.SAdd(ctx, redisRevokedKeyPrefix+list, member).Err(); err != nil {
		return fmt.Errorf("revoke credential: %w", err)
	}
	return nil
}

var (
	_ ports.StatusChecker = (*Memory)(nil)
	_ ports.StatusChecker = (*Redis)(nil)
)
