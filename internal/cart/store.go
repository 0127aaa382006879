package cart

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fjod/storefront/internal/pricing"
)

type Option func(*Store)

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

func WithShippingPolicy(p pricing.ShippingPolicy) Option {
	return func(s *Store) { s.policy = p }
}

func WithDiscountRegistry(r *pricing.DiscountRegistry) Option {
	return func(s *Store) { s.discounts = r }
}

// WithPersistTimeout bounds each write-through call to the repository.
func WithPersistTimeout(d time.Duration) Option {
	return func(s *Store) { s.persistTimeout = d }
}

// Store owns the cart of one shopping session. Reads always reflect the
// last mutation. Every mutation is written through to the repository, but
// repository failures are only logged: the in-memory state stays
// authoritative for the session.
type Store struct {
	mu       sync.Mutex
	id       string
	items    []Item
	discount *pricing.Discount

	repo           Repository
	discounts      *pricing.DiscountRegistry
	policy         pricing.ShippingPolicy
	persistTimeout time.Duration
	logger         *zap.Logger
}

// Open loads the persisted cart for id. A failed load starts an empty cart.
func Open(ctx context.Context, id string, repo Repository, opts ...Option) *Store {
	s := &Store{
		id:             id,
		repo:           repo,
		discounts:      pricing.DefaultRegistry(),
		policy:         pricing.DefaultShippingPolicy,
		persistTimeout: 2 * time.Second,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	items, err := repo.Load(ctx, id)
	switch {
	case err == nil:
		s.items = sanitize(items)
	case errors.Is(err, ErrCartNotFound):
	default:
		s.logger.Warn("cart load failed, starting empty", zap.String("cart_id", id), zap.Error(err))
	}
	return s
}

func (s *Store) ID() string {
	return s.id
}

// Add puts item in the cart. Adding a (product, size) already present merges
// the quantities into the existing line.
func (s *Store) Add(ctx context.Context, item Item) error {
	if item.Quantity < 1 {
		return ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(item.Key()); i >= 0 {
		existing := s.items[i]
		if item.AvailableStock != nil {
			existing.AvailableStock = item.AvailableStock
		}
		merged := existing.Quantity + item.Quantity
		if existing.exceedsStock(merged) {
			return stockExceeded(existing, merged)
		}
		existing.Quantity = merged
		s.items[i] = existing
	} else {
		if item.exceedsStock(item.Quantity) {
			return stockExceeded(item, item.Quantity)
		}
		s.items = append(s.items, copyItems([]Item{item})[0])
	}

	s.persist(ctx)
	return nil
}

// UpdateQuantity sets the quantity of a line. Quantities below 1 are ignored.
func (s *Store) UpdateQuantity(ctx context.Context, productID, size string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(Key{ProductID: productID, Size: size})
	if i < 0 {
		return ErrItemNotFound
	}
	if qty < 1 {
		return nil
	}
	if s.items[i].exceedsStock(qty) {
		return stockExceeded(s.items[i], qty)
	}
	if s.items[i].Quantity == qty {
		return nil
	}

	s.items[i].Quantity = qty
	s.persist(ctx)
	return nil
}

func (s *Store) Remove(ctx context.Context, productID, size string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(Key{ProductID: productID, Size: size})
	if i < 0 {
		return ErrItemNotFound
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	if len(s.items) == 0 {
		s.discount = nil
	}

	s.persist(ctx)
	return nil
}

// Clear empties the cart and drops the applied discount.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = nil
	s.discount = nil
	s.persist(ctx)
}

func (s *Store) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyItems(s.items)
}

// ApplyDiscount activates a discount code. Only one code may be active.
func (s *Store) ApplyDiscount(code string) (pricing.Discount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.items) == 0 {
		return pricing.Discount{}, ErrEmptyCart
	}
	if s.discount != nil {
		return pricing.Discount{}, ErrDiscountAlreadyApplied
	}
	d, err := s.discounts.Lookup(code)
	if err != nil {
		return pricing.Discount{}, err
	}
	s.discount = &d
	return d, nil
}

func (s *Store) RemoveDiscount() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discount = nil
}

func (s *Store) Discount() *pricing.Discount {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.discount == nil {
		return nil
	}
	d := *s.discount
	return &d
}

func (s *Store) Breakdown() pricing.Breakdown {
	return s.Snapshot().Breakdown
}

// Snapshot freezes the current lines, discount and breakdown.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Items:     copyItems(s.items),
		Breakdown: pricing.Compute(lines(s.items), s.discount, s.policy),
	}
	if s.discount != nil {
		d := *s.discount
		snap.Discount = &d
	}
	return snap
}

func (s *Store) indexOf(k Key) int {
	for i, it := range s.items {
		if it.Key() == k {
			return i
		}
	}
	return -1
}

// persist must be called with s.mu held.
func (s *Store) persist(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.persistTimeout)
	defer cancel()

	var err error
	if len(s.items) == 0 {
		err = s.repo.Clear(ctx, s.id)
	} else {
		err = s.repo.Save(ctx, s.id, s.items)
	}
	if err != nil {
		s.logger.Warn("cart persist failed", zap.String("cart_id", s.id), zap.Int("lines", len(s.items)), zap.Error(err))
	}
}

func stockExceeded(it Item, requested int) *StockExceededError {
	return &StockExceededError{
		ProductID: it.ProductID,
		Size:      it.Size,
		Requested: requested,
		Available: *it.AvailableStock,
	}
}

// sanitize merges duplicate keys and drops invalid lines from persisted data.
func sanitize(items []Item) []Item {
	out := make([]Item, 0, len(items))
	seen := make(map[Key]int, len(items))
	for _, it := range items {
		if it.Quantity < 1 {
			continue
		}
		if i, ok := seen[it.Key()]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		seen[it.Key()] = len(out)
		out = append(out, it)
	}
	return out
}
