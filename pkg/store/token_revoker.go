package store

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenRevoker tracks revoked token IDs until expiry and per-user cutoffs.
type TokenRevoker interface {
	Revoke(jti string, ttl time.Duration) error
	IsRevoked(jti string) (bool, error)
	// RevokeUser rejects every token of the user issued at or before since.
	// Cutoffs only move forward.
	RevokeUser(userID string, since time.Time) error
	RevokedAfter(userID string) (time.Time, error)
}

// MemoryTokenRevoker keeps revocations in memory (single instance only).
type MemoryTokenRevoker struct {
	mu      sync.Mutex
	tokens  map[string]time.Time
	cutoffs map[string]time.Time
}

// NewMemoryTokenRevoker builds an in-memory revoker.
func NewMemoryTokenRevoker() *MemoryTokenRevoker {
	return &MemoryTokenRevoker{
		tokens:  make(map[string]time.Time),
		cutoffs: make(map[string]time.Time),
	}
}

// Revoke marks a token as revoked until its expiry.
func (r *MemoryTokenRevoker) Revoke(jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	r.mu.Lock()
	r.tokens[jti] = time.Now().Add(ttl)
	r.mu.Unlock()
	return nil
}

// IsRevoked checks if the token is revoked.
func (r *MemoryTokenRevoker) IsRevoked(jti string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	expiry, ok := r.tokens[jti]
	if !ok {
		return false, nil
	}
	if time.Now().After(expiry) {
		delete(r.tokens, jti)
		return false, nil
	}
	return true, nil
}

// RevokeUser records a user-wide cutoff.
func (r *MemoryTokenRevoker) RevokeUser(userID string, since time.Time) error {
	since = since.UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.cutoffs[userID]; ok && !since.After(prev) {
		return nil
	}
	r.cutoffs[userID] = since
	return nil
}

// RevokedAfter returns the user's cutoff or the zero time.
func (r *MemoryTokenRevoker) RevokedAfter(userID string) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cutoffs[userID], nil
}

// raiseCutoffScript stores ARGV[1] only when it is newer than the current value.
var raiseCutoffScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if (not current) or tonumber(ARGV[1]) > tonumber(current) then
  redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
end
return 1
`)

// RedisTokenRevoker stores revocations in Redis with TTL. User cutoffs live
// for cutoffTTL, which should cover the longest token lifetime.
type RedisTokenRevoker struct {
	client    *redis.Client
	cutoffTTL time.Duration
}

// NewRedisTokenRevoker builds a Redis-backed revoker.
func NewRedisTokenRevoker(client *redis.Client, cutoffTTL time.Duration) *RedisTokenRevoker {
	if cutoffTTL <= 0 {
		cutoffTTL = 24 * time.Hour
	}
	return &RedisTokenRevoker{client: client, cutoffTTL: cutoffTTL}
}

// Revoke marks a token as revoked until expiry.
func (r *RedisTokenRevoker) Revoke(jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return r.client.Set(ctx, revocationKey(jti), "1", ttl).Err()
}

// IsRevoked checks if the token is revoked.
func (r *RedisTokenRevoker) IsRevoked(jti string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	res, err := r.client.Exists(ctx, revocationKey(jti)).Result()
	if err != nil {
		return false, err
	}
	return res > 0, nil
}

// RevokeUser records a user-wide cutoff in Redis.
func (r *RedisTokenRevoker) RevokeUser(userID string, since time.Time) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return raiseCutoffScript.Run(ctx, r.client,
		[]string{userCutoffKey(userID)},
		since.UTC().UnixNano(),
		r.cutoffTTL.Milliseconds(),
	).Err()
}

// RevokedAfter returns the user's cutoff or the zero time.
func (r *RedisTokenRevoker) RevokedAfter(userID string) (time.Time, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	raw, err := r.client.Get(ctx, userCutoffKey(userID)).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	nanos, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, nanos).UTC(), nil
}

func revocationKey(jti string) string {
	return "healthconnect:revoked:" + jti
}

func userCutoffKey(userID string) string {
	return "healthconnect:revoked-user:" + userID
}
