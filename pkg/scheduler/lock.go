// Package scheduler runs the periodic follow-up tick: take the lease,
// collect due sessions, dispatch each one and advance its cadence.
package scheduler

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Lease gates one tick across scheduler instances.
type Lease interface {
	// TryAcquire reports whether this instance owns the current tick.
	TryAcquire(ctx context.Context) (bool, error)
}

// RedisLease takes the tick with SET NX and lets it expire on its own: the
// TTL equals the tick interval, so overlapping instances simply skip.
type RedisLease struct {
	client redis.UniversalClient
	key    string
	owner  string
	ttl    time.Duration
}

func NewRedisLease(client redis.UniversalClient, key, owner string, ttl time.Duration) *RedisLease {
	return &RedisLease{
		client: client,
		key:    key,
		owner:  owner,
		ttl:    ttl,
	}
}

func (l *RedisLease) TryAcquire(ctx context.Context) (bool, error) {
	acquired, err := l.client.SetNX(ctx, l.key, l.owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire scheduler lease: %w", err)
	}

	return acquired, nil
}

// SingleInstanceLease always acquires, for deployments without redis.
type SingleInstanceLease struct{}

func (SingleInstanceLease) TryAcquire(_ context.Context) (bool, error) {
	return true, nil
}
