// Package clients holds the BFF's HTTP clients for the catalog, profile and
// payment services.
package clients

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/pkg/httpclient"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrSizeUnavailable = errors.New("size not available for product")
)

type Variant struct {
	ID    string `json:"id"`
	Size  string `json:"size"`
	Stock *int   `json:"stock,omitempty"`
}

type Product struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Brand    string          `json:"brand"`
	Price    decimal.Decimal `json:"price"`
	ImageURL string          `json:"image_url"`
	Variants []Variant       `json:"variants"`
}

// CartItem builds the cart line for size with the product's current price.
func (p *Product) CartItem(size string, qty int) (cart.Item, error) {
	for _, v := range p.Variants {
		if strings.EqualFold(v.Size, size) {
			return cart.Item{
				ProductID:      p.ID,
				VariantID:      v.ID,
				DisplayName:    p.Name,
				Brand:          p.Brand,
				Size:           v.Size,
				UnitPrice:      p.Price,
				Quantity:       qty,
				AvailableStock: v.Stock,
				ImageURL:       p.ImageURL,
			}, nil
		}
	}
	return cart.Item{}, fmt.Errorf("%w: %s size %s", ErrSizeUnavailable, p.ID, size)
}

type CatalogClient struct {
	http *httpclient.Client
}

func NewCatalogClient(baseURL string, opts ...httpclient.Option) *CatalogClient {
	return &CatalogClient{http: httpclient.New("catalog", baseURL, opts...)}
}

func (c *CatalogClient) GetProduct(ctx context.Context, id string) (*Product, error) {
	var p Product
	err := c.http.Do(ctx, http.MethodGet, "/products/"+url.PathEscape(id), nil, &p)
	if httpclient.StatusCode(err) == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrProductNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
