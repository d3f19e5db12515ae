package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	availabilityKeyPrefix = "stock:available:"
	availabilityTTL       = 30 * time.Second
)

// ErrCacheMiss is returned when no availability value is cached for a product.
var ErrCacheMiss = errors.New("availability not cached")

// AvailabilityCache keeps recently read available quantities in Redis so that
// hot availability checks do not hit the primary store. Values are advisory:
// every mutation invalidates its key and reservations are always decided
// against the store.
type AvailabilityCache struct {
	client *redis.Client
}

func NewAvailabilityCache(client *redis.Client) *AvailabilityCache {
	return &AvailabilityCache{client: client}
}

func ConnectRedis(addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

func (c *AvailabilityCache) GetAvailable(ctx context.Context, productID string) (int, error) {
	val, err := c.client.Get(ctx, availabilityKeyPrefix+productID).Int()
	if err == redis.Nil {
		return 0, ErrCacheMiss
	}
	if err != nil {
		return 0, fmt.Errorf("get cached availability: %w", err)
	}
	return val, nil
}

func (c *AvailabilityCache) SetAvailable(ctx context.Context, productID string, available int) error {
	return c.client.Set(ctx, availabilityKeyPrefix+productID, available, availabilityTTL).Err()
}

func (c *AvailabilityCache) Invalidate(ctx context.Context, productID string) error {
	return c.client.Del(ctx, availabilityKeyPrefix+productID).Err()
}
