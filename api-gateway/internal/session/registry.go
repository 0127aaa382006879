// Package session keeps the per-user state the BFF serves from: the open
// cart and the checkout currently awaiting payment.
package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/payment"
)

// Shopper is the server-side state of one signed-in user.
type Shopper struct {
	UserID string
	Cart   *cart.Store

	mu       sync.Mutex
	checkout *payment.Confirmation
	placed   map[string]struct{} // order numbers confirmed through this shopper
	lastSeen time.Time
}

// Checkout returns the pending confirmation, or nil.
func (s *Shopper) Checkout() *payment.Confirmation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkout
}

// SetCheckout replaces the pending confirmation. A confirmation that is
// mid-submit cannot be replaced.
func (s *Shopper) SetCheckout(c *payment.Confirmation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.checkout != nil && s.checkout.State() == payment.Submitting {
		return payment.ErrSubmitInFlight
	}
	s.checkout = c
	return nil
}

// MarkPlaced records an order this shopper's cart already produced.
func (s *Shopper) MarkPlaced(orderNumber string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.placed[orderNumber] = struct{}{}
}

func (s *Shopper) wasPlaced(orderNumber string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.placed[orderNumber]
	return ok
}

func (s *Shopper) idleSince(t time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.checkout != nil && s.checkout.State() == payment.Submitting {
		return false
	}
	return s.lastSeen.Before(t)
}

func (s *Shopper) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

type Registry struct {
	mu       sync.Mutex
	shoppers map[string]*Shopper

	repo     cart.Repository
	cartOpts []cart.Option
	now      func() time.Time
	logger   *zap.Logger
}

func NewRegistry(repo cart.Repository, logger *zap.Logger, cartOpts ...cart.Option) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		shoppers: make(map[string]*Shopper),
		repo:     repo,
		cartOpts: append([]cart.Option{cart.WithLogger(logger)}, cartOpts...),
		now:      time.Now,
		logger:   logger,
	}
}

// Shopper returns the state for userID, opening the persisted cart on
// first use.
func (r *Registry) Shopper(ctx context.Context, userID string) *Shopper {
	r.mu.Lock()
	s, ok := r.shoppers[userID]
	r.mu.Unlock()
	if ok {
		s.touch(r.now())
		return s
	}

	// Load outside the lock; the first opener wins.
	opened := &Shopper{
		UserID:   userID,
		Cart:     cart.Open(ctx, userID, r.repo, r.cartOpts...),
		placed:   make(map[string]struct{}),
		lastSeen: r.now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.shoppers[userID]; ok {
		return s
	}
	r.shoppers[userID] = opened
	return opened
}

// ClearCart empties userID's cart after orderNumber was created. Orders this
// instance confirmed were already cleared locally and are skipped, so items
// added since then survive.
func (r *Registry) ClearCart(ctx context.Context, userID, orderNumber string) error {
	r.mu.Lock()
	s, ok := r.shoppers[userID]
	r.mu.Unlock()

	if !ok {
		return r.repo.Clear(ctx, userID)
	}
	if s.wasPlaced(orderNumber) {
		return nil
	}
	s.Cart.Clear(ctx)
	return nil
}

// Sweep forgets shoppers unseen for idle. Their carts stay persisted.
func (r *Registry) Sweep(idle time.Duration) int {
	cutoff := r.now().Add(-idle)

	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, s := range r.shoppers {
		if s.idleSince(cutoff) {
			delete(r.shoppers, id)
			n++
		}
	}
	return n
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval, idle time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := r.Sweep(idle); n > 0 {
				r.logger.Debug("idle shoppers evicted", zap.Int("count", n))
			}
		}
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.shoppers)
}
