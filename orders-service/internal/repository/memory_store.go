package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/fjod/storefront/internal/orders"
)

// MemoryStore implements OrderRepository in memory. Each operation
// validates and applies under one lock, so it gives the same all-or-nothing
// stock guarantees as the postgres repository.
type MemoryStore struct {
	mu        sync.RWMutex
	stocks    map[string]int              // variantID -> units
	orders    map[uuid.UUID]*orders.Order // orderID -> order
	byNumber  map[string]uuid.UUID        // order number -> orderID
	byPayment map[string]uuid.UUID        // payment reference -> orderID
	outbox    []*OutboxEvent
	processed map[int64]bool
	nextEvent int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		stocks:    make(map[string]int),
		orders:    make(map[uuid.UUID]*orders.Order),
		byNumber:  make(map[string]uuid.UUID),
		byPayment: make(map[string]uuid.UUID),
		processed: make(map[int64]bool),
	}
}

func (s *MemoryStore) CreateOrder(_ context.Context, o *orders.Order) error {
	event, err := newEvent(o, orders.EventOrderCreated)
	if err != nil {
		return fmt.Errorf("build outbox event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.byPayment[o.PaymentReference]; dup {
		return orders.ErrDuplicatePayment
	}

	// First pass: validate all variants have sufficient stock
	demand := orders.StockDemand(o.Items)
	for _, d := range demand {
		stock, exists := s.stocks[d.VariantID]
		if !exists {
			return fmt.Errorf("%w: %s", orders.ErrVariantNotFound, d.VariantID)
		}
		if stock < d.Quantity {
			return &orders.StockError{VariantID: d.VariantID, Requested: d.Quantity}
		}
	}

	// Second pass: decrement
	for _, d := range demand {
		s.stocks[d.VariantID] -= d.Quantity
	}

	stored := cloneOrder(o)
	s.orders[o.ID] = stored
	s.byNumber[o.OrderNumber] = o.ID
	s.byPayment[o.PaymentReference] = o.ID
	s.appendEvent(event)
	return nil
}

func (s *MemoryStore) GetOrderByID(_ context.Context, id uuid.UUID) (*orders.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, orders.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (s *MemoryStore) GetOrderByNumber(ctx context.Context, number string) (*orders.Order, error) {
	s.mu.RLock()
	id, ok := s.byNumber[number]
	s.mu.RUnlock()
	if !ok {
		return nil, orders.ErrOrderNotFound
	}
	return s.GetOrderByID(ctx, id)
}

func (s *MemoryStore) GetOrderByPaymentReference(ctx context.Context, ref string) (*orders.Order, error) {
	s.mu.RLock()
	id, ok := s.byPayment[ref]
	s.mu.RUnlock()
	if !ok {
		return nil, orders.ErrOrderNotFound
	}
	return s.GetOrderByID(ctx, id)
}

func (s *MemoryStore) ListOrdersByUserID(_ context.Context, userID string) ([]*orders.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*orders.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, o *orders.Order, from orders.Status) error {
	event, err := newEvent(o, orders.EventOrderStatusChanged)
	if err != nil {
		return fmt.Errorf("build outbox event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.guard(o, from)
	if err != nil {
		return err
	}
	stored.Status = o.Status
	stored.UpdatedAt = o.UpdatedAt
	s.appendEvent(event)
	return nil
}

func (s *MemoryStore) CancelOrder(_ context.Context, o *orders.Order, from orders.Status) error {
	event, err := newEvent(o, orders.EventOrderCancelled)
	if err != nil {
		return fmt.Errorf("build outbox event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.guard(o, from)
	if err != nil {
		return err
	}
	stored.Status = o.Status
	stored.UpdatedAt = o.UpdatedAt
	if o.CancelledAt != nil {
		t := *o.CancelledAt
		stored.CancelledAt = &t
	}

	// Return the frozen quantities to the available pool
	for _, d := range orders.StockDemand(stored.Items) {
		s.stocks[d.VariantID] += d.Quantity
	}
	s.appendEvent(event)
	return nil
}

func (s *MemoryStore) guard(o *orders.Order, from orders.Status) (*orders.Order, error) {
	stored, ok := s.orders[o.ID]
	if !ok {
		return nil, orders.ErrOrderNotFound
	}
	if stored.Status != from {
		return nil, &orders.TransitionError{From: stored.Status, To: o.Status}
	}
	return stored, nil
}

func (s *MemoryStore) SetStock(_ context.Context, variantID string, qty int) error {
	if qty < 0 {
		return fmt.Errorf("%w: negative stock", orders.ErrInvalidOrder)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stocks[variantID] = qty
	return nil
}

func (s *MemoryStore) GetStock(_ context.Context, variantID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stock, ok := s.stocks[variantID]
	if !ok {
		return 0, orders.ErrVariantNotFound
	}
	return stock, nil
}

func (s *MemoryStore) appendEvent(e *OutboxEvent) {
	s.nextEvent++
	e.ID = s.nextEvent
	s.outbox = append(s.outbox, e)
}

func (s *MemoryStore) GetUnprocessedEvents(_ context.Context, limit int) ([]*OutboxEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*OutboxEvent
	for _, e := range s.outbox {
		if len(out) == limit {
			break
		}
		if !s.processed[e.ID] {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) MarkEventAsProcessed(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.processed[id] = true
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func cloneOrder(o *orders.Order) *orders.Order {
	cp := *o
	cp.Items = make([]orders.Item, len(o.Items))
	copy(cp.Items, o.Items)
	if o.CancelledAt != nil {
		t := *o.CancelledAt
		cp.CancelledAt = &t
	}
	return &cp
}
