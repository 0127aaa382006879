package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertAmount(t *testing.T, expected string, actual decimal.Decimal, field string) {
	t.Helper()
	assert.Equal(t, expected, actual.StringFixed(Places), field)
}

func TestCompute_FreeShippingAboveThreshold(t *testing.T) {
	b := Compute([]Line{{UnitPrice: money("100.00"), Quantity: 2}}, nil, DefaultShippingPolicy)

	assertAmount(t, "200.00", b.Subtotal, "subtotal")
	assertAmount(t, "0.00", b.DiscountAmount, "discount")
	assertAmount(t, "0.00", b.ShippingAmount, "shipping")
	assertAmount(t, "200.00", b.TaxableBase, "taxable base")
	assertAmount(t, "36.00", b.TaxAmount, "tax")
	assertAmount(t, "236.00", b.Total, "total")
	assertAmount(t, "0.00", b.AmountToFreeShipping, "to free shipping")
}

func TestCompute_FlatShippingWithDiscount(t *testing.T) {
	d := &Discount{Code: "DESCUENTO10", Percentage: 10}
	b := Compute([]Line{{UnitPrice: money("50.00"), Quantity: 1}}, d, DefaultShippingPolicy)

	assertAmount(t, "50.00", b.Subtotal, "subtotal")
	assertAmount(t, "5.00", b.DiscountAmount, "discount")
	assertAmount(t, "15.00", b.ShippingAmount, "shipping")
	assertAmount(t, "60.00", b.TaxableBase, "taxable base")
	assertAmount(t, "10.80", b.TaxAmount, "tax")
	assertAmount(t, "70.80", b.Total, "total")
	assertAmount(t, "100.00", b.AmountToFreeShipping, "to free shipping")
}

func TestCompute_EmptyCart(t *testing.T) {
	d := &Discount{Code: "VERANO20", Percentage: 20}
	b := Compute(nil, d, DefaultShippingPolicy)

	assert.True(t, b.Subtotal.IsZero())
	assert.True(t, b.DiscountAmount.IsZero())
	assert.True(t, b.ShippingAmount.IsZero())
	assert.True(t, b.TaxableBase.IsZero())
	assert.True(t, b.TaxAmount.IsZero())
	assert.True(t, b.Total.IsZero())
	assert.True(t, b.AmountToFreeShipping.IsZero())
}

func TestCompute_ShippingBoundary(t *testing.T) {
	tests := []struct {
		name     string
		lines    []Line
		shipping string
	}{
		{"exactly at threshold", []Line{{UnitPrice: money("75.00"), Quantity: 2}}, "0.00"},
		{"one cent below", []Line{{UnitPrice: money("149.99"), Quantity: 1}}, "15.00"},
		{"several lines above", []Line{{UnitPrice: money("60.00"), Quantity: 1}, {UnitPrice: money("95.50"), Quantity: 1}}, "0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Compute(tt.lines, nil, DefaultShippingPolicy)
			assertAmount(t, tt.shipping, b.ShippingAmount, "shipping")
		})
	}
}

func TestCompute_ShippingUsesSubtotalBeforeDiscount(t *testing.T) {
	d := &Discount{Code: "VERANO20", Percentage: 20}
	b := Compute([]Line{{UnitPrice: money("160.00"), Quantity: 1}}, d, DefaultShippingPolicy)

	assertAmount(t, "32.00", b.DiscountAmount, "discount")
	assertAmount(t, "0.00", b.ShippingAmount, "shipping")
	assertAmount(t, "128.00", b.TaxableBase, "taxable base")
}

func TestCompute_IdentitiesHold(t *testing.T) {
	prices := []string{"0.99", "19.90", "33.33", "149.99", "250.00", "7.77"}
	discounts := []*Discount{nil, {Percentage: 10}, {Percentage: 15}, {Percentage: 20}}
	onePlusTax := decimal.NewFromInt(1).Add(TaxRate)
	tolerance := money("0.01")

	for _, p := range prices {
		for qty := 1; qty <= 4; qty++ {
			for _, d := range discounts {
				b := Compute([]Line{{UnitPrice: money(p), Quantity: qty}}, d, DefaultShippingPolicy)

				assert.True(t, b.TaxableBase.Equal(b.Subtotal.Sub(b.DiscountAmount).Add(b.ShippingAmount)))
				assert.True(t, b.Total.Equal(b.TaxableBase.Add(b.TaxAmount)))
				assert.True(t, b.Total.Sub(b.TaxableBase.Mul(onePlusTax)).Abs().LessThanOrEqual(tolerance),
					"total %s drifts from base %s", b.Total, b.TaxableBase)
			}
		}
	}
}

func TestCompute_IgnoresNonPositiveQuantities(t *testing.T) {
	b := Compute([]Line{{UnitPrice: money("10.00"), Quantity: 0}}, nil, DefaultShippingPolicy)
	assert.True(t, b.Total.IsZero())
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(23600), ToMinorUnits(money("236.00")))
	assert.Equal(t, int64(7080), ToMinorUnits(money("70.80")))
	assert.Equal(t, int64(1), ToMinorUnits(money("0.005")))
	assertAmount(t, "70.80", FromMinorUnits(7080), "from minor")
}

func TestDiscountRegistry_Lookup(t *testing.T) {
	r := DefaultRegistry()

	d, err := r.Lookup("  descuento10 ")
	require.NoError(t, err)
	assert.Equal(t, "DESCUENTO10", d.Code)
	assert.Equal(t, 10, d.Percentage)

	d, err = r.Lookup("Verano20")
	require.NoError(t, err)
	assert.Equal(t, 20, d.Percentage)

	_, err = r.Lookup("BLACKFRIDAY")
	assert.ErrorIs(t, err, ErrInvalidDiscountCode)

	_, err = r.Lookup("   ")
	assert.ErrorIs(t, err, ErrInvalidDiscountCode)
}

func TestNewDiscountRegistry_RejectsOutOfRange(t *testing.T) {
	_, err := NewDiscountRegistry(map[string]int{"BROKEN": 120})
	assert.Error(t, err)
}
