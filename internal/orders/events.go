package orders

import (
	"encoding/json"
	"time"
)

// Event types published on the orders outbox topic.
const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
	EventOrderCancelled     = "order.cancelled"

	OutboxTopic = "orders-outbox"
)

// Event is the payload of every orders outbox message.
type Event struct {
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	UserID      string    `json:"user_id"`
	Status      Status    `json:"status"`
	Total       string    `json:"total"`
	OccurredAt  time.Time `json:"occurred_at"`
}

func NewEvent(o *Order, at time.Time) Event {
	return Event{
		OrderID:     o.ID.String(),
		OrderNumber: o.OrderNumber,
		UserID:      o.UserID,
		Status:      o.Status,
		Total:       o.Total.StringFixed(2),
		OccurredAt:  at,
	}
}

func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
