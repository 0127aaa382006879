package orders

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrVariantNotFound   = errors.New("variant not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrDuplicatePayment  = errors.New("an order already exists for this payment")
	ErrInvalidOrder      = errors.New("invalid order")
	ErrForbidden         = errors.New("not allowed to access this order")
)

// TransitionError says which transition was refused.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// StockError names the variant that ran out.
type StockError struct {
	VariantID string
	Requested int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("variant %s: not enough stock for %d units", e.VariantID, e.Requested)
}

func (e *StockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// Error codes carried in the "code" field of error responses.
const (
	CodeNotFound          = "order_not_found"
	CodeVariantNotFound   = "variant_not_found"
	CodeInsufficientStock = "insufficient_stock"
	CodeInvalidTransition = "invalid_transition"
	CodeInvalidOrder      = "invalid_order"
	CodeForbidden         = "forbidden"
)

var codeErrors = map[string]error{
	CodeNotFound:          ErrOrderNotFound,
	CodeVariantNotFound:   ErrVariantNotFound,
	CodeInsufficientStock: ErrInsufficientStock,
	CodeInvalidTransition: ErrInvalidTransition,
	CodeInvalidOrder:      ErrInvalidOrder,
	CodeForbidden:         ErrForbidden,
}

// ErrorFromCode maps a response code back to its sentinel error.
func ErrorFromCode(code string) (error, bool) {
	err, ok := codeErrors[code]
	return err, ok
}

// ErrorCode is the inverse of ErrorFromCode. Unknown errors map to "".
func ErrorCode(err error) string {
	for code, target := range codeErrors {
		if errors.Is(err, target) {
			return code
		}
	}
	return ""
}
