package cache

import (
	"context"
	"errors"

	"github.com/fjod/storefront/internal/cart"
)

// CartCache holds carts by id. Get returns ErrCacheMiss when the key is
// absent and cart.ErrCartNotFound when the cart is known to be cleared.
type CartCache interface {
	Get(ctx context.Context, cartID string) ([]cart.Item, error)
	Set(ctx context.Context, cartID string, items []cart.Item) error
	// SetIfAbsent fills the key only when nothing is cached for it yet.
	SetIfAbsent(ctx context.Context, cartID string, items []cart.Item) (bool, error)
	// MarkCleared caches the fact that the cart no longer exists.
	MarkCleared(ctx context.Context, cartID string) error
	Delete(ctx context.Context, cartID string) error
}

var ErrCacheMiss = errors.New("cache miss")
