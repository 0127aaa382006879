// Package cart holds the shopper's line items for the active session and
// keeps them durable through a Repository.
package cart

import (
	"github.com/shopspring/decimal"

	"github.com/fjod/storefront/internal/pricing"
)

// Item is one cart line. A cart holds at most one line per Key.
type Item struct {
	ProductID   string          `json:"product_id"`
	VariantID   string          `json:"variant_id"`
	DisplayName string          `json:"display_name"`
	Brand       string          `json:"brand"`
	Size        string          `json:"size"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	// AvailableStock is informational; nil when the catalog did not report it.
	AvailableStock *int   `json:"available_stock,omitempty"`
	ImageURL       string `json:"image_url,omitempty"`
}

// Key identifies a line by product and size.
type Key struct {
	ProductID string
	Size      string
}

func (i Item) Key() Key {
	return Key{ProductID: i.ProductID, Size: i.Size}
}

// LineTotal is UnitPrice × Quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

func (i Item) exceedsStock(qty int) bool {
	return i.AvailableStock != nil && qty > *i.AvailableStock
}

// Snapshot is a frozen copy of the cart and its pricing at one instant.
type Snapshot struct {
	Items     []Item            `json:"items"`
	Discount  *pricing.Discount `json:"discount,omitempty"`
	Breakdown pricing.Breakdown `json:"breakdown"`
}

func (s Snapshot) IsEmpty() bool {
	return len(s.Items) == 0
}

// ItemCount is the number of units across all lines.
func (s Snapshot) ItemCount() int {
	n := 0
	for _, it := range s.Items {
		n += it.Quantity
	}
	return n
}

func lines(items []Item) []pricing.Line {
	out := make([]pricing.Line, 0, len(items))
	for _, it := range items {
		out = append(out, pricing.Line{UnitPrice: it.UnitPrice, Quantity: it.Quantity})
	}
	return out
}

func copyItems(items []Item) []Item {
	out := make([]Item, len(items))
	for i, it := range items {
		out[i] = it
		if it.AvailableStock != nil {
			stock := *it.AvailableStock
			out[i].AvailableStock = &stock
		}
	}
	return out
}
