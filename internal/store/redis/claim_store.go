// Package redis provides Redis-backed coordination stores.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "projectkeeper:teardown:"

// claimScript takes the key when it is free or already held by the caller.
var claimScript = redis.NewScript(`
local cur = redis.call("GET", KEYS[1])
if cur == false or cur == ARGV[1] then
  redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
  return 1
end
return 0
`)

// releaseScript deletes the key only if the caller still holds it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Config holds the Redis connection settings.
type Config struct {
	Addr      string
	Password  string
	DB        int
	PoolSize  int
	KeyPrefix string
}

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Addr, err)
	}

	return rdb, nil
}

// ClaimStore implements store.ClaimStore with one expiring key per tenant.
type ClaimStore struct {
	rdb    redis.Scripter
	prefix string
}

// NewClaimStore creates a claim store. An empty prefix uses the default.
func NewClaimStore(rdb redis.Scripter, prefix string) *ClaimStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &ClaimStore{rdb: rdb, prefix: prefix}
}

func (s *ClaimStore) key(tenantID uuid.UUID) string {
	return s.prefix + tenantID.String()
}

// Claim takes the marker unless a different owner holds it. Expiry is handled by Redis.
func (s *ClaimStore) Claim(ctx context.Context, tenantID uuid.UUID, owner string, ttl time.Duration) (bool, error) {
	n, err := claimScript.Run(ctx, s.rdb, []string{s.key(tenantID)}, owner, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to claim tenant %s: %w", tenantID, err)
	}
	return n == 1, nil
}

// Release drops the marker if owner still holds it.
func (s *ClaimStore) Release(ctx context.Context, tenantID uuid.UUID, owner string) error {
	if err := releaseScript.Run(ctx, s.rdb, []string{s.key(tenantID)}, owner).Err(); err != nil {
		return fmt.Errorf("failed to release claim on tenant %s: %w", tenantID, err)
	}
	return nil
}
