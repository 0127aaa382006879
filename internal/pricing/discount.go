package pricing

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidDiscountCode is returned for codes the registry does not know.
var ErrInvalidDiscountCode = errors.New("invalid discount code")

// Discount is a promotional percentage applied to the subtotal.
type Discount struct {
	Code       string `json:"code"`
	Percentage int    `json:"percentage"`
}

// DefaultDiscountCodes are the promotions currently on offer.
var DefaultDiscountCodes = map[string]int{
	"DESCUENTO10":   10,
	"VERANO20":      20,
	"PRIMERACOMPRA": 15,
}

// DiscountRegistry is a fixed set of discount codes.
type DiscountRegistry struct {
	codes map[string]int
}

// NewDiscountRegistry normalizes codes and rejects percentages outside 0..100.
func NewDiscountRegistry(codes map[string]int) (*DiscountRegistry, error) {
	normalized := make(map[string]int, len(codes))
	for code, pct := range codes {
		if pct < 0 || pct > 100 {
			return nil, fmt.Errorf("discount %q: percentage %d out of range", code, pct)
		}
		normalized[normalizeCode(code)] = pct
	}
	return &DiscountRegistry{codes: normalized}, nil
}

// DefaultRegistry returns a registry over DefaultDiscountCodes.
func DefaultRegistry() *DiscountRegistry {
	r, _ := NewDiscountRegistry(DefaultDiscountCodes)
	return r
}

// Lookup resolves a user supplied code. Case and surrounding whitespace are ignored.
func (r *DiscountRegistry) Lookup(code string) (Discount, error) {
	normalized := normalizeCode(code)
	pct, ok := r.codes[normalized]
	if !ok || normalized == "" {
		return Discount{}, ErrInvalidDiscountCode
	}
	return Discount{Code: normalized, Percentage: pct}, nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
