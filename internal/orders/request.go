package orders

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// CreateRequest is the body of POST /orders/create. The amounts are the
// exact breakdown the payment was authorized for.
type CreateRequest struct {
	Items            []Item          `json:"items" validate:"required,min=1,dive"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	Discount         decimal.Decimal `json:"discount"`
	Shipping         decimal.Decimal `json:"shipping"`
	Tax              decimal.Decimal `json:"tax"`
	Total            decimal.Decimal `json:"total"`
	ShippingAddress  string          `json:"shipping_address" validate:"required"`
	FullName         string          `json:"full_name" validate:"required"`
	Phone            string          `json:"phone" validate:"required"`
	PaymentReference string          `json:"payment_reference" validate:"required"`
}

// Validate checks required fields and that the breakdown adds up.
func (r CreateRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		var vErrs validator.ValidationErrors
		if errors.As(err, &vErrs) {
			fields := make([]string, 0, len(vErrs))
			for _, fe := range vErrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidOrder, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}

	for name, amount := range map[string]decimal.Decimal{
		"subtotal": r.Subtotal, "discount": r.Discount, "shipping": r.Shipping, "tax": r.Tax, "total": r.Total,
	} {
		if amount.IsNegative() {
			return fmt.Errorf("%w: %s is negative", ErrInvalidOrder, name)
		}
	}
	for _, it := range r.Items {
		if !it.UnitPrice.IsPositive() {
			return fmt.Errorf("%w: variant %s has no price", ErrInvalidOrder, it.VariantID)
		}
	}

	sum := decimal.Zero
	for _, it := range r.Items {
		sum = sum.Add(it.LineTotal())
	}
	if !sum.Round(2).Equal(r.Subtotal) {
		return fmt.Errorf("%w: subtotal %s does not match items %s", ErrInvalidOrder, r.Subtotal.StringFixed(2), sum.StringFixed(2))
	}
	expected := r.Subtotal.Sub(r.Discount).Add(r.Shipping).Add(r.Tax)
	if !expected.Equal(r.Total) {
		return fmt.Errorf("%w: total %s does not match breakdown %s", ErrInvalidOrder, r.Total.StringFixed(2), expected.StringFixed(2))
	}
	return nil
}

// CreateResult is the response of POST /orders/create.
type CreateResult struct {
	ID          uuid.UUID `json:"id"`
	OrderNumber string    `json:"order_number"`
	Status      Status    `json:"status"`
}

// StatusUpdate is the body of PUT /orders/{id}/status.
type StatusUpdate struct {
	NewStatus Status `json:"new_status"`
}
