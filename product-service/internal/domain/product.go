package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrProductNotFound = errors.New("product not found")

// Variant is one purchasable size. Stock is informational; the orders
// service holds the authoritative count.
type Variant struct {
	ID    string `json:"id"`
	Size  string `json:"size"`
	Stock int    `json:"stock"`
}

type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Brand       string          `json:"brand"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    string          `json:"image_url"`
	Variants    []Variant       `json:"variants"`
	CreatedAt   time.Time       `json:"created_at"`
}
