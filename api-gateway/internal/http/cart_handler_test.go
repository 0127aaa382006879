package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/fjod/storefront/api-gateway/internal/session"
	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/pkg/circuitbreaker"
)

func newCartHandler(catalog Catalog) (*CartHandler, *session.Registry) {
	reg := session.NewRegistry(cart.NewMemoryRepository(), zap.NewNop())
	return NewCartHandler(reg, catalog, time.Second, zap.NewNop()), reg
}

func addItem(h *CartHandler, body string) *httptest.ResponseRecorder {
	req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(body)))
	rec := httptest.NewRecorder()
	h.AddItem(rec, req)
	return rec
}

func TestAddItem_Success(t *testing.T) {
	h, _ := newCartHandler(runnerCatalog())

	rec := addItem(h, `{"product_id":"p-1","size":"40","quantity":1}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decode[CartResponseDTO](t, rec)
	if len(resp.Items) != 1 || resp.Items[0].VariantID != "v-40" {
		t.Fatalf("unexpected items %+v", resp.Items)
	}
	// 100 + 15 shipping + 18% tax on 115
	if got := resp.Breakdown.Total.StringFixed(2); got != "135.70" {
		t.Errorf("expected total 135.70, got %s", got)
	}
	if resp.ItemCount != 1 {
		t.Errorf("expected item_count 1, got %d", resp.ItemCount)
	}
}

func TestAddItem_StockExceededIsWarning(t *testing.T) {
	h, _ := newCartHandler(runnerCatalog())
	addItem(h, `{"product_id":"p-1","size":"40","quantity":2}`)

	rec := addItem(h, `{"product_id":"p-1","size":"40","quantity":1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decode[CartResponseDTO](t, rec)
	if len(resp.Warnings) != 1 || resp.Warnings[0].Code != "stock_exceeded" || resp.Warnings[0].Available != 2 {
		t.Fatalf("expected stock warning, got %+v", resp.Warnings)
	}
	if resp.Items[0].Quantity != 2 {
		t.Errorf("quantity must stay at 2, got %d", resp.Items[0].Quantity)
	}
}

func TestAddItem_Errors(t *testing.T) {
	tests := []struct {
		name    string
		catalog *CatalogMock
		body    string
		status  int
		code    string
	}{
		{"bad json", runnerCatalog(), `{`, http.StatusBadRequest, "invalid_request"},
		{"missing size", runnerCatalog(), `{"product_id":"p-1","quantity":1}`, http.StatusBadRequest, "invalid_request"},
		{"zero quantity", runnerCatalog(), `{"product_id":"p-1","size":"40","quantity":0}`, http.StatusBadRequest, "invalid_quantity"},
		{"too many", runnerCatalog(), `{"product_id":"p-1","size":"40","quantity":100}`, http.StatusBadRequest, "invalid_quantity"},
		{"unknown product", runnerCatalog(), `{"product_id":"nope","size":"40","quantity":1}`, http.StatusNotFound, "product_not_found"},
		{"unknown size", runnerCatalog(), `{"product_id":"p-1","size":"46","quantity":1}`, http.StatusUnprocessableEntity, "size_unavailable"},
		{"catalog down", &CatalogMock{err: circuitbreaker.ErrUnavailable}, `{"product_id":"p-1","size":"40","quantity":1}`, http.StatusServiceUnavailable, "service_unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newCartHandler(tt.catalog)
			rec := addItem(h, tt.body)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rec.Code)
			}
			if got := decode[ErrorResponse](t, rec).Code; got != tt.code {
				t.Errorf("expected code %q, got %q", tt.code, got)
			}
		})
	}
}

func TestAddItem_Unauthorized(t *testing.T) {
	h, _ := newCartHandler(runnerCatalog())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.AddItem(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestUpdateQuantity(t *testing.T) {
	h, reg := newCartHandler(runnerCatalog())
	addItem(h, `{"product_id":"p-1","size":"41","quantity":1}`)

	req := withUser(httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"quantity":3}`)))
	req = withParams(req, "product_id", "p-1", "size", "41")
	rec := httptest.NewRecorder()
	h.UpdateQuantity(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := reg.Shopper(context.Background(), "user-1").Cart.Items()[0].Quantity; got != 3 {
		t.Errorf("expected quantity 3, got %d", got)
	}
}

func TestRemoveItem_NotInCart(t *testing.T) {
	h, _ := newCartHandler(runnerCatalog())

	req := withParams(withUser(httptest.NewRequest(http.MethodDelete, "/", nil)), "product_id", "p-1", "size", "40")
	rec := httptest.NewRecorder()
	h.RemoveItem(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestDiscount(t *testing.T) {
	h, _ := newCartHandler(runnerCatalog())

	apply := func(code string) *httptest.ResponseRecorder {
		req := withUser(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"code":"`+code+`"}`)))
		rec := httptest.NewRecorder()
		h.ApplyDiscount(rec, req)
		return rec
	}

	if rec := apply("VERANO20"); rec.Code != http.StatusConflict {
		t.Errorf("discount on empty cart: expected 409, got %d", rec.Code)
	}

	addItem(h, `{"product_id":"p-1","size":"41","quantity":2}`)

	if rec := apply("NOPE"); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("unknown code: expected 422, got %d", rec.Code)
	}

	rec := apply("verano20")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decode[CartResponseDTO](t, rec)
	if resp.Discount == nil || resp.Discount.Code != "VERANO20" {
		t.Fatalf("expected VERANO20 applied, got %+v", resp.Discount)
	}

	if rec := apply("DESCUENTO10"); rec.Code != http.StatusConflict {
		t.Errorf("second code: expected 409, got %d", rec.Code)
	}

	req := withUser(httptest.NewRequest(http.MethodDelete, "/", nil))
	rec = httptest.NewRecorder()
	h.RemoveDiscount(rec, req)
	if resp := decode[CartResponseDTO](t, rec); resp.Discount != nil {
		t.Errorf("expected discount removed, got %+v", resp.Discount)
	}
}

func TestClearCart(t *testing.T) {
	h, _ := newCartHandler(runnerCatalog())
	addItem(h, `{"product_id":"p-1","size":"41","quantity":2}`)

	req := withUser(httptest.NewRequest(http.MethodDelete, "/", nil))
	rec := httptest.NewRecorder()
	h.ClearCart(rec, req)

	resp := decode[CartResponseDTO](t, rec)
	if len(resp.Items) != 0 || !resp.Breakdown.Total.IsZero() {
		t.Errorf("expected empty cart with zero total, got %+v", resp)
	}
}
