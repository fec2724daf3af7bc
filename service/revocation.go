// file: service/revocation.go

package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// RevocationRegistry records tokens that must be refused before their natural expiry.
// Entries only need to live until expiresAt; afterwards the token is rejected as expired anyway.
type RevocationRegistry interface {
	Revoke(ctx context.Context, token string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, token string) (bool, error)
	// RevokeIfAbsent revokes token and reports whether this call did so. Of several
	// concurrent calls for the same token exactly one returns true.
	RevokeIfAbsent(ctx context.Context, token string, expiresAt time.Time) (bool, error)
}

// MemoryRevocationRegistry is a process-local registry. It is emptied on restart.
type MemoryRevocationRegistry struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewMemoryRevocationRegistry(now func() time.Time) *MemoryRevocationRegistry {
	if now == nil {
		now = time.Now
	}
	return &MemoryRevocationRegistry{
		entries: make(map[string]time.Time),
		now:     now,
	}
}

// Revoke is idempotent. Expired entries are pruned on every insert.
func (r *MemoryRevocationRegistry) Revoke(_ context.Context, token string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for t, exp := range r.entries {
		if !exp.After(now) {
			delete(r.entries, t)
		}
	}
	if expiresAt.After(now) {
		r.entries[token] = expiresAt
	}
	return nil
}

func (r *MemoryRevocationRegistry) RevokeIfAbsent(_ context.Context, token string, expiresAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if !expiresAt.After(now) {
		return false, nil
	}
	if exp, ok := r.entries[token]; ok && exp.After(now) {
		return false, nil
	}
	r.entries[token] = expiresAt
	return true, nil
}

func (r *MemoryRevocationRegistry) IsRevoked(_ context.Context, token string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exp, ok := r.entries[token]
	return ok && exp.After(r.now()), nil
}

// Len reports the number of live entries.
func (r *MemoryRevocationRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

const revokedKeyPrefix = "revoked:"

// RedisRevocationRegistry shares revocations between processes. Keys carry a TTL
// equal to the token's remaining lifetime so Redis evicts them on its own.
type RedisRevocationRegistry struct {
	client ICacheClient
	now    func() time.Time
}

func NewRedisRevocationRegistry(client ICacheClient, now func() time.Time) *RedisRevocationRegistry {
	if now == nil {
		now = time.Now
	}
	return &RedisRevocationRegistry{client: client, now: now}
}

func revokedKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return revokedKeyPrefix + hex.EncodeToString(sum[:])
}

func (r *RedisRevocationRegistry) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, revokedKey(token), 1, ttl).Err(); err != nil {
		return fmt.Errorf("could not store revoked token: %w", err)
	}
	return nil
}

// RevokeIfAbsent relies on SET NX, so the claim holds across processes sharing the Redis.
func (r *RedisRevocationRegistry) RevokeIfAbsent(ctx context.Context, token string, expiresAt time.Time) (bool, error) {
	ttl := expiresAt.Sub(r.now())
	if ttl <= 0 {
		return false, nil
	}
	ok, err := r.client.SetNX(ctx, revokedKey(token), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("could not claim token: %w", err)
	}
	return ok, nil
}

func (r *RedisRevocationRegistry) IsRevoked(ctx context.Context, token string) (bool, error) {
	n, err := r.client.Exists(ctx, revokedKey(token)).Result()
	if err != nil {
		return false, fmt.Errorf("could not check revoked token: %w", err)
	}
	return n > 0, nil
}
