/**
 * @description
 * Optional distributed single-flighting for full allocator sweeps. The lock is
 * an availability optimization only: the store's commit-time re-checks keep
 * allocation correct even when two instances sweep concurrently, so a Redis
 * outage degrades to unlocked sweeps instead of failing the run.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9: Redis client, SET NX with TTL.
 */

package app

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// SweepLock single-flights full allocator sweeps across engine instances.
type SweepLock interface {
	// Acquire attempts to take the lock. ok reports whether this caller holds
	// it; when ok, release must be called to free it early. A non-nil error
	// means the lock backend is unreachable, not that the lock is held.
	Acquire(ctx context.Context) (release func(), ok bool, err error)
}

// RedisSweepLock implements SweepLock with SET NX and a TTL, so a crashed
// holder frees the lock after at most the TTL.
type RedisSweepLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisSweepLock creates a sweep lock on the given client. The TTL should
// comfortably exceed a worst-case sweep duration.
func NewRedisSweepLock(client *redis.Client, key string, ttl time.Duration) *RedisSweepLock {
	if key == "" {
		key = "engine:matcher:sweep"
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisSweepLock{client: client, key: key, ttl: ttl}
}

func (l *RedisSweepLock) Acquire(ctx context.Context) (func(), bool, error) {
	acquired, err := l.client.SetNX(ctx, l.key, "1", l.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !acquired {
		return nil, false, nil
	}
	release := func() {
		if err := l.client.Del(context.Background(), l.key).Err(); err != nil {
			log.Printf("level=warn component=sweeplock msg=\"failed to release sweep lock\" key=%s err=%v", l.key, err)
		}
	}
	return release, true, nil
}
