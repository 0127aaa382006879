package checkout

import (
	"errors"
	"time"

	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/orders"
	"github.com/fjod/storefront/internal/pricing"
)

var ErrSessionExpired = errors.New("checkout session expired")

// Draft is an authorized checkout waiting for payment confirmation. Its
// items and breakdown are frozen at authorization time.
type Draft struct {
	ID           string
	Contact      ShippingContact
	Items        []cart.Item
	Discount     *pricing.Discount
	Breakdown    pricing.Breakdown
	AmountMinor  int64
	Currency     string
	ClientSecret string
	IntentID     string
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// Valid returns ErrSessionExpired unless the draft can still be confirmed.
func (d *Draft) Valid(now time.Time) error {
	if d == nil || d.ClientSecret == "" || len(d.Items) == 0 {
		return ErrSessionExpired
	}
	if !d.ExpiresAt.IsZero() && !now.Before(d.ExpiresAt) {
		return ErrSessionExpired
	}
	return nil
}

// OrderRequest builds the order creation payload from the frozen snapshot.
func (d *Draft) OrderRequest(paymentReference string) orders.CreateRequest {
	items := make([]orders.Item, 0, len(d.Items))
	for _, it := range d.Items {
		items = append(items, orders.Item{
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Name:      it.DisplayName,
			Brand:     it.Brand,
			Size:      it.Size,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}

	return orders.CreateRequest{
		Items:            items,
		Subtotal:         d.Breakdown.Subtotal,
		Discount:         d.Breakdown.DiscountAmount,
		Shipping:         d.Breakdown.ShippingAmount,
		Tax:              d.Breakdown.TaxAmount,
		Total:            d.Breakdown.Total,
		ShippingAddress:  d.Contact.ShippingAddress(),
		FullName:         d.Contact.FullName(),
		Phone:            d.Contact.Phone,
		PaymentReference: paymentReference,
	}
}
