package crawler

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "devrank:visited:"

// RedisRegistry keeps claims in Redis sets so they survive the process and
// can be shared by several crawlers. SADD reports whether the member was new,
// which makes it an atomic claim.
type RedisRegistry struct {
	client *redis.Client
	prefix string
}

// NewRedisRegistry creates a registry over client. An empty prefix uses the
// default "devrank:visited:" key space.
func NewRedisRegistry(client *redis.Client, prefix string) *RedisRegistry {
	if prefix == "" {
		prefix = redisKeyPrefix
	}
	return &RedisRegistry{client: client, prefix: prefix}
}

func (r *RedisRegistry) key(ns Namespace) string {
	return r.prefix + string(ns)
}

// TryClaim implements Registry
func (r *RedisRegistry) TryClaim(ctx context.Context, ns Namespace, id string) (bool, error) {
	added, err := r.client.SAdd(ctx, r.key(ns), id).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim %s %s: %w", ns, id, err)
	}
	return added == 1, nil
}

// Claimed implements Registry
func (r *RedisRegistry) Claimed(ctx context.Context, ns Namespace, id string) (bool, error) {
	ok, err := r.client.SIsMember(ctx, r.key(ns), id).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check %s %s: %w", ns, id, err)
	}
	return ok, nil
}

// Count returns the number of claims in a namespace
func (r *RedisRegistry) Count(ctx context.Context, ns Namespace) (int64, error) {
	n, err := r.client.SCard(ctx, r.key(ns)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count %s claims: %w", ns, err)
	}
	return n, nil
}
