// Package service enforces the order lifecycle on top of the repository:
// ownership, the status machine and idempotent creation.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fjod/storefront/internal/orders"
	"github.com/fjod/storefront/orders-service/internal/repository"
	"github.com/fjod/storefront/pkg/auth"
)

type OrderService struct {
	repo   repository.OrderRepository
	logger *zap.Logger
	now    func() time.Time
}

type Option func(*OrderService)

func WithLogger(l *zap.Logger) Option {
	return func(s *OrderService) { s.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *OrderService) { s.now = now }
}

func New(repo repository.OrderRepository, opts ...Option) *OrderService {
	s := &OrderService{repo: repo, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create places a PENDING order for the caller. Replaying a payment
// reference the caller already used returns the existing order.
func (s *OrderService) Create(ctx context.Context, p auth.Principal, req orders.CreateRequest) (*orders.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	o := orders.New(p.UserID, req, s.now().UTC())
	err := s.repo.CreateOrder(ctx, o)
	if errors.Is(err, orders.ErrDuplicatePayment) {
		existing, getErr := s.repo.GetOrderByPaymentReference(ctx, req.PaymentReference)
		if getErr != nil {
			return nil, fmt.Errorf("load order for duplicate payment: %w", getErr)
		}
		if !existing.OwnedBy(p.UserID) {
			return nil, orders.ErrDuplicatePayment
		}
		s.logger.Info("order already exists for payment",
			zap.String("payment_reference", req.PaymentReference),
			zap.String("order_number", existing.OrderNumber))
		return existing, nil
	}
	if err != nil {
		s.logger.Warn("order creation failed",
			zap.String("user_id", p.UserID),
			zap.String("payment_reference", req.PaymentReference),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("order created",
		zap.String("order_id", o.ID.String()),
		zap.String("order_number", o.OrderNumber),
		zap.String("user_id", o.UserID),
		zap.String("total", o.Total.StringFixed(2)))
	return o, nil
}

func (s *OrderService) Get(ctx context.Context, p auth.Principal, id uuid.UUID) (*orders.Order, error) {
	o, err := s.repo.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return authorize(p, o)
}

func (s *OrderService) GetByNumber(ctx context.Context, p auth.Principal, number string) (*orders.Order, error) {
	o, err := s.repo.GetOrderByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	return authorize(p, o)
}

func (s *OrderService) List(ctx context.Context, p auth.Principal) ([]*orders.Order, error) {
	return s.repo.ListOrdersByUserID(ctx, p.UserID)
}

// UpdateStatus advances an order one step. Only admins may call it;
// CANCELLED is handed to Cancel.
func (s *OrderService) UpdateStatus(ctx context.Context, p auth.Principal, id uuid.UUID, to orders.Status) (*orders.Order, error) {
	if !p.IsAdmin() {
		return nil, orders.ErrForbidden
	}
	if to == orders.StatusCancelled {
		return s.Cancel(ctx, p, id)
	}

	o, err := s.repo.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	from := o.Status
	if err := o.Advance(to, s.now().UTC()); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, o, from); err != nil {
		return nil, err
	}

	s.logger.Info("order status changed",
		zap.String("order_id", o.ID.String()),
		zap.String("from", from.String()),
		zap.String("to", o.Status.String()))
	return o, nil
}

// Cancel cancels a non-terminal order and restores its stock.
func (s *OrderService) Cancel(ctx context.Context, p auth.Principal, id uuid.UUID) (*orders.Order, error) {
	o, err := s.repo.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := authorize(p, o); err != nil {
		return nil, err
	}

	from := o.Status
	if err := o.Cancel(s.now().UTC()); err != nil {
		return nil, err
	}
	if err := s.repo.CancelOrder(ctx, o, from); err != nil {
		return nil, err
	}

	s.logger.Info("order cancelled",
		zap.String("order_id", o.ID.String()),
		zap.String("from", from.String()),
		zap.String("by", p.UserID))
	return o, nil
}

func (s *OrderService) SetStock(ctx context.Context, p auth.Principal, variantID string, qty int) error {
	if !p.IsAdmin() {
		return orders.ErrForbidden
	}
	return s.repo.SetStock(ctx, variantID, qty)
}

func (s *OrderService) GetStock(ctx context.Context, variantID string) (int, error) {
	return s.repo.GetStock(ctx, variantID)
}

func authorize(p auth.Principal, o *orders.Order) (*orders.Order, error) {
	if !p.IsAdmin() && !o.OwnedBy(p.UserID) {
		return nil, orders.ErrForbidden
	}
	return o, nil
}
