// Package pricing derives the monetary breakdown of a cart.
//
// Every function in this package is pure: the same lines, discount and
// shipping policy always produce the same Breakdown.
package pricing

import (
	"github.com/shopspring/decimal"
)

// Places is the number of decimal places every presented amount carries.
const Places = 2

var (
	// TaxRate is the consumption tax (IGV) applied to the taxable base.
	TaxRate = decimal.RequireFromString("0.18")

	hundred = decimal.NewFromInt(100)
)

// ShippingPolicy decides the shipping fee from the cart subtotal.
type ShippingPolicy struct {
	FreeThreshold decimal.Decimal
	FlatFee       decimal.Decimal
}

// DefaultShippingPolicy is free shipping from 150.00, otherwise a flat 15.00.
var DefaultShippingPolicy = ShippingPolicy{
	FreeThreshold: decimal.NewFromInt(150),
	FlatFee:       decimal.NewFromInt(15),
}

// Fee returns the shipping amount for a subtotal. Empty carts ship for free.
func (p ShippingPolicy) Fee(subtotal decimal.Decimal, empty bool) decimal.Decimal {
	if empty || subtotal.GreaterThanOrEqual(p.FreeThreshold) {
		return decimal.Zero
	}
	return p.FlatFee
}

// Line is one priced cart line.
type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// Breakdown is the derived monetary summary of a cart.
type Breakdown struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	ShippingAmount decimal.Decimal `json:"shipping_amount"`
	TaxableBase    decimal.Decimal `json:"taxable_base"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	Total          decimal.Decimal `json:"total"`

	// AmountToFreeShipping is how much more subtotal unlocks free shipping.
	AmountToFreeShipping decimal.Decimal `json:"amount_to_free_shipping"`
}

// Compute derives the breakdown for lines with an optional discount.
//
// Each field is rounded once, when produced. TaxableBase and Total are sums of
// already rounded fields so that
//
//	TaxableBase = Subtotal - DiscountAmount + ShippingAmount
//	Total       = TaxableBase + TaxAmount
//
// hold exactly on the presented values.
func Compute(lines []Line, discount *Discount, policy ShippingPolicy) Breakdown {
	subtotal := decimal.Zero
	empty := true
	for _, l := range lines {
		if l.Quantity < 1 {
			continue
		}
		empty = false
		subtotal = subtotal.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	subtotal = subtotal.Round(Places)

	discountAmount := decimal.Zero
	if discount != nil && !empty {
		discountAmount = subtotal.Mul(decimal.NewFromInt(int64(discount.Percentage))).Div(hundred).Round(Places)
	}

	shipping := policy.Fee(subtotal, empty).Round(Places)
	base := subtotal.Sub(discountAmount).Add(shipping)
	tax := base.Mul(TaxRate).Round(Places)

	toFree := decimal.Zero
	if !empty && shipping.IsPositive() {
		toFree = policy.FreeThreshold.Sub(subtotal).Round(Places)
	}

	return Breakdown{
		Subtotal:             subtotal,
		DiscountAmount:       discountAmount,
		ShippingAmount:       shipping,
		TaxableBase:          base,
		TaxAmount:            tax,
		Total:                base.Add(tax),
		AmountToFreeShipping: toFree,
	}
}

// ToMinorUnits converts an amount into the gateway's integer representation.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromMinorUnits is the inverse of ToMinorUnits.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -Places)
}
