// Package orders is the order lifecycle shared by the orders service and
// its clients: the Order aggregate, its status machine and the create
// contract.
package orders

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Item is a frozen copy of a cart line at confirmation time. It never
// follows later catalog changes.
type Item struct {
	ProductID string          `json:"product_id" validate:"required"`
	VariantID string          `json:"variant_id" validate:"required"`
	Name      string          `json:"name"`
	Brand     string          `json:"brand,omitempty"`
	Size      string          `json:"size"`
	Quantity  int             `json:"quantity" validate:"min=1"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	ID               uuid.UUID       `json:"id"`
	OrderNumber      string          `json:"order_number"`
	UserID           string          `json:"user_id"`
	Items            []Item          `json:"items"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	Discount         decimal.Decimal `json:"discount"`
	Shipping         decimal.Decimal `json:"shipping"`
	Tax              decimal.Decimal `json:"tax"`
	Total            decimal.Decimal `json:"total"`
	ShippingAddress  string          `json:"shipping_address"`
	ContactName      string          `json:"contact_name"`
	Phone            string          `json:"phone"`
	PaymentReference string          `json:"payment_reference"`
	Status           Status          `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	CancelledAt      *time.Time      `json:"cancelled_at,omitempty"`
}

// New materializes a PENDING order from a validated create request.
func New(userID string, req CreateRequest, now time.Time) *Order {
	id := uuid.New()
	items := make([]Item, len(req.Items))
	copy(items, req.Items)

	return &Order{
		ID:               id,
		OrderNumber:      NewOrderNumber(id, now),
		UserID:           userID,
		Items:            items,
		Subtotal:         req.Subtotal,
		Discount:         req.Discount,
		Shipping:         req.Shipping,
		Tax:              req.Tax,
		Total:            req.Total,
		ShippingAddress:  req.ShippingAddress,
		ContactName:      req.FullName,
		Phone:            req.Phone,
		PaymentReference: req.PaymentReference,
		Status:           StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// NewOrderNumber builds the customer facing number, e.g. ORD-20261015-1A2B3C4D.
func NewOrderNumber(id uuid.UUID, now time.Time) string {
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), strings.ToUpper(id.String()[:8]))
}

// Advance moves the order to the next forward status.
func (o *Order) Advance(to Status, now time.Time) error {
	if to == StatusCancelled || !o.Status.CanTransitionTo(to) {
		return &TransitionError{From: o.Status, To: to}
	}
	o.Status = to
	o.UpdatedAt = now
	return nil
}

func (o *Order) Cancel(now time.Time) error {
	if !o.Status.CanTransitionTo(StatusCancelled) {
		return &TransitionError{From: o.Status, To: StatusCancelled}
	}
	o.Status = StatusCancelled
	o.UpdatedAt = now
	o.CancelledAt = &now
	return nil
}

// OwnedBy reports whether userID placed the order.
func (o *Order) OwnedBy(userID string) bool {
	return o.UserID == userID
}

// StockDemand sums item quantities per variant, ordered by variant ID so
// that concurrent transactions lock rows in the same order.
func StockDemand(items []Item) []VariantQuantity {
	totals := make(map[string]int, len(items))
	for _, it := range items {
		totals[it.VariantID] += it.Quantity
	}
	out := make([]VariantQuantity, 0, len(totals))
	for v, q := range totals {
		out = append(out, VariantQuantity{VariantID: v, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VariantID < out[j].VariantID })
	return out
}

type VariantQuantity struct {
	VariantID string
	Quantity  int
}
