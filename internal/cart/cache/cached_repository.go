package cache

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/fjod/storefront/internal/cart"
)

const cacheOpTimeout = time.Second

// CachedRepository puts a CartCache in front of a durable cart.Repository.
// Writes go to the repository first and then overwrite the cache. A miss
// fills the cache only if no write got there first, so a fill that read the
// repository before a Save or Clear can never shadow it.
type CachedRepository struct {
	repo   cart.Repository
	cache  CartCache
	sfg    singleflight.Group // collapses concurrent misses for one cart
	logger *zap.Logger
}

func NewCachedRepository(repo cart.Repository, cache CartCache, logger *zap.Logger) *CachedRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedRepository{
		repo:   repo,
		cache:  cache,
		logger: logger,
	}
}

func (c *CachedRepository) Load(ctx context.Context, cartID string) ([]cart.Item, error) {
	v, err, _ := c.sfg.Do(cartID, func() (interface{}, error) {
		items, err := c.cache.Get(ctx, cartID)
		switch {
		case err == nil:
			return items, nil
		case errors.Is(err, cart.ErrCartNotFound):
			return nil, err
		case !errors.Is(err, ErrCacheMiss):
			c.logger.Warn("cart cache get failed", zap.String("cart_id", cartID), zap.Error(err))
		}

		items, err = c.repo.Load(ctx, cartID)
		if err != nil {
			return nil, err
		}

		setCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheOpTimeout)
		defer cancel()
		if _, err := c.cache.SetIfAbsent(setCtx, cartID, items); err != nil {
			c.logger.Warn("cart cache fill failed", zap.String("cart_id", cartID), zap.Error(err))
		}
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]cart.Item), nil
}

func (c *CachedRepository) Save(ctx context.Context, cartID string, items []cart.Item) error {
	if err := c.repo.Save(ctx, cartID, items); err != nil {
		return err
	}
	c.write(ctx, cartID, func(ctx context.Context) error {
		return c.cache.Set(ctx, cartID, items)
	})
	return nil
}

func (c *CachedRepository) Clear(ctx context.Context, cartID string) error {
	if err := c.repo.Clear(ctx, cartID); err != nil {
		return err
	}
	c.write(ctx, cartID, func(ctx context.Context) error {
		return c.cache.MarkCleared(ctx, cartID)
	})
	return nil
}

// write applies fn to the cache and falls back to dropping the key, so a
// failed overwrite never leaves the previous value readable.
func (c *CachedRepository) write(ctx context.Context, cartID string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheOpTimeout)
	defer cancel()
	err := fn(ctx)
	if err == nil {
		return
	}
	c.logger.Warn("cart cache write failed", zap.String("cart_id", cartID), zap.Error(err))
	if err := c.cache.Delete(ctx, cartID); err != nil {
		c.logger.Warn("cart cache invalidate failed", zap.String("cart_id", cartID), zap.Error(err))
	}
}
