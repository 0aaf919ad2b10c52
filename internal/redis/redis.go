package redis

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Client implements domain.DistributedLock on top of redis SET NX with a TTL.
// The TTL bounds how long a crashed process can hold a project lock.
type Client struct {
	redisClient *redis.Client
}

func NewClient(dsn string) (*Client, error) {
	opts, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, err
	}

	return &Client{redisClient: redis.NewClient(opts)}, nil
}

func (c *Client) Lock(ctx context.Context, lockKey string, lockTimeDuration time.Duration) (result bool, err error) {
	return c.redisClient.SetNX(ctx, lockKey, 1, lockTimeDuration).Result()
}

func (c *Client) Unlock(ctx context.Context, lockKey string) (err error) {
	return c.redisClient.Del(ctx, lockKey).Err()
}

func (c *Client) Ping(ctx context.Context) (err error) {
	return c.redisClient.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.redisClient.Close()
}
