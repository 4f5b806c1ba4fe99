package infra

import (
	"context"
	"fmt"
	"runtime"

	"github.com/redis/go-redis/v9"
)

const redisClientName = "tracklane-payments"

// NewRedisClient configures a Redis client sized for this service's traffic
// and verifies connectivity. Redis backs the idempotency replay store and the
// webhook rate limiter, both on the request hot path, so the pool is sized to
// the host rather than go-redis's fixed default.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url is required")
	}

	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	opt.ClientName = redisClientName
	if opt.PoolSize == 0 {
		opt.PoolSize = 16 * runtime.GOMAXPROCS(0)
	}
	opt.MinIdleConns = 2

	client := redis.NewClient(opt)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}
