package cart

import (
	"errors"
	"fmt"
)

var (
	ErrCartNotFound           = errors.New("cart not found")
	ErrItemNotFound           = errors.New("item not found in cart")
	ErrInvalidQuantity        = errors.New("quantity must be at least 1")
	ErrEmptyCart              = errors.New("cart is empty")
	ErrDiscountAlreadyApplied = errors.New("a discount code is already applied")
	ErrStockExceeded          = errors.New("requested quantity exceeds available stock")
)

// StockExceededError is a soft warning: the cart was left unchanged and the
// caller should tell the shopper how many units are available.
type StockExceededError struct {
	ProductID string
	Size      string
	Requested int
	Available int
}

func (e *StockExceededError) Error() string {
	return fmt.Sprintf("product %s size %s: requested %d, only %d available",
		e.ProductID, e.Size, e.Requested, e.Available)
}

func (e *StockExceededError) Is(target error) bool {
	return target == ErrStockExceeded
}
