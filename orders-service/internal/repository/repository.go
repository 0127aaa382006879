package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/fjod/storefront/internal/orders"
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// OutboxEvent is an order event waiting to be published.
type OutboxEvent struct {
	ID          int64
	AggregateID string
	EventType   string
	Payload     json.RawMessage
	CreatedAt   time.Time
}

// OrderRepository persists orders and variant stock. Every write that
// touches stock also records its outbox event in the same unit of work.
type OrderRepository interface {
	// CreateOrder decrements stock for every item and inserts the order, all
	// or nothing. Returns orders.ErrInsufficientStock, orders.ErrVariantNotFound
	// or orders.ErrDuplicatePayment.
	CreateOrder(ctx context.Context, o *orders.Order) error
	GetOrderByID(ctx context.Context, id uuid.UUID) (*orders.Order, error)
	GetOrderByNumber(ctx context.Context, number string) (*orders.Order, error)
	GetOrderByPaymentReference(ctx context.Context, ref string) (*orders.Order, error)
	ListOrdersByUserID(ctx context.Context, userID string) ([]*orders.Order, error)

	// UpdateStatus stores o.Status if the stored status still equals from.
	UpdateStatus(ctx context.Context, o *orders.Order, from orders.Status) error
	// CancelOrder stores the cancellation and gives every item's quantity back
	// to stock, if the stored status still equals from.
	CancelOrder(ctx context.Context, o *orders.Order, from orders.Status) error

	SetStock(ctx context.Context, variantID string, qty int) error
	GetStock(ctx context.Context, variantID string) (int, error)

	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error

	Close() error
}

func newEvent(o *orders.Order, eventType string) (*OutboxEvent, error) {
	payload, err := orders.NewEvent(o, o.UpdatedAt).Marshal()
	if err != nil {
		return nil, err
	}
	return &OutboxEvent{
		AggregateID: o.ID.String(),
		EventType:   eventType,
		Payload:     payload,
		CreatedAt:   o.UpdatedAt,
	}, nil
}
