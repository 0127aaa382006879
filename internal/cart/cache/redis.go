package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fjod/storefront/internal/cart"
)

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client:  client,
		baseTTL: 15 * time.Minute,
	}
}

type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

type cachedCart struct {
	Items   []cart.Item `json:"items"`
	Cleared bool        `json:"cleared,omitempty"`
}

func (r *RedisCache) Get(ctx context.Context, cartID string) ([]cart.Item, error) {
	data, err := r.client.Get(ctx, cacheKey(cartID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var c cachedCart
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	if c.Cleared {
		return nil, cart.ErrCartNotFound
	}
	return c.Items, nil
}

func (r *RedisCache) Set(ctx context.Context, cartID string, items []cart.Item) error {
	return r.set(ctx, cartID, cachedCart{Items: items})
}

func (r *RedisCache) MarkCleared(ctx context.Context, cartID string) error {
	return r.set(ctx, cartID, cachedCart{Cleared: true})
}

func (r *RedisCache) SetIfAbsent(ctx context.Context, cartID string, items []cart.Item) (bool, error) {
	data, err := json.Marshal(cachedCart{Items: items})
	if err != nil {
		return false, fmt.Errorf("marshal cart failed: %w", err)
	}
	ok, err := r.client.SetNX(ctx, cacheKey(cartID), data, r.ttl()).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}
	return ok, nil
}

func (r *RedisCache) set(ctx context.Context, cartID string, c cachedCart) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}
	if err := r.client.Set(ctx, cacheKey(cartID), data, r.ttl()).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// ttl adds up to 4 minutes of jitter per key.
func (r *RedisCache) ttl() time.Duration {
	return r.baseTTL + time.Duration(rand.Intn(5))*time.Minute
}

func (r *RedisCache) Delete(ctx context.Context, cartID string) error {
	if err := r.client.Del(ctx, cacheKey(cartID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cacheKey(cartID string) string {
	return fmt.Sprintf("cart:%s", cartID)
}
