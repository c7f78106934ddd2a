package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"medshelf/backend/internal/alert"
)

type Redis struct {
	client *redis.Client
}

func NewRedis(addr string, password string, db int) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &Redis{client: client}
}

func (c *Redis) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Redis) Close() error {
	return c.client.Close()
}

// AlertCache and PurgeGate share the client.
func (c *Redis) AlertCache() *RedisAlertCache {
	return &RedisAlertCache{client: c.client}
}

func (c *Redis) PurgeGate() *RedisPurgeGate {
	return &RedisPurgeGate{client: c.client}
}

type RedisAlertCache struct {
	client *redis.Client
}

func (c *RedisAlertCache) generation(ctx context.Context, ownerID int64) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey(ownerID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *RedisAlertCache) Get(ctx context.Context, ownerID int64, asOf string) (*alert.Summary, int64, bool, error) {
	gen, err := c.generation(ctx, ownerID)
	if err != nil {
		return nil, 0, false, err
	}

	val, err := c.client.Get(ctx, alertKey(ownerID, gen)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, gen, false, nil
	}
	if err != nil {
		return nil, gen, false, err
	}

	var summary alert.Summary
	if err := json.Unmarshal([]byte(val), &summary); err != nil {
		return nil, gen, false, err
	}
	if summary.AsOf != asOf {
		return nil, gen, false, nil
	}
	return &summary, gen, true, nil
}

// Set writes under the given generation. A write for a generation that has
// since been bumped lands on a key no reader uses and ages out with its TTL.
func (c *RedisAlertCache) Set(ctx context.Context, ownerID int64, generation int64, value *alert.Summary, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, alertKey(ownerID, generation), payload, ttl).Err()
}

func (c *RedisAlertCache) Invalidate(ctx context.Context, ownerID int64) error {
	return c.client.Incr(ctx, generationKey(ownerID)).Err()
}

// RedisPurgeGate coordinates the sweep across server replicas with SET NX.
type RedisPurgeGate struct {
	client *redis.Client
}

func (g *RedisPurgeGate) Acquire(ctx context.Context, ownerID int64, window time.Duration) (bool, error) {
	return g.client.SetNX(ctx, purgeKey(ownerID), time.Now().UTC().Format(time.RFC3339), window).Result()
}
