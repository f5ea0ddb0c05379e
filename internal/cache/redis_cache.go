package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	redis "github.com/redis/go-redis/v9"

	"pharmacy/admin/internal/domain"
)

type RedisDashboardCache struct {
	client *redis.Client
}

func NewRedisDashboardCache(addr string, password string, db int) *RedisDashboardCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisDashboardCache{client: client}
}

func (c *RedisDashboardCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisDashboardCache) Close() error {
	return c.client.Close()
}

func (c *RedisDashboardCache) Get(ctx context.Context, key string) (*domain.DashboardSummary, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var summary domain.DashboardSummary
	if err := json.Unmarshal([]byte(val), &summary); err != nil {
		return nil, false, errors.Wrap(err, "decode cached dashboard summary")
	}
	return &summary, true, nil
}

func (c *RedisDashboardCache) Set(ctx context.Context, key string, value *domain.DashboardSummary, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}

func (c *RedisDashboardCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}
