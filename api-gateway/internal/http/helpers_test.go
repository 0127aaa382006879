package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/fjod/storefront/api-gateway/internal/clients"
	"github.com/fjod/storefront/pkg/auth"
)

// --- Mocks ---

type CatalogMock struct {
	products map[string]*clients.Product
	err      error
}

func (m *CatalogMock) GetProduct(_ context.Context, id string) (*clients.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.products[id]
	if !ok {
		return nil, clients.ErrProductNotFound
	}
	return p, nil
}

func stock(n int) *int { return &n }

func runnerCatalog() *CatalogMock {
	return &CatalogMock{products: map[string]*clients.Product{
		"p-1": {
			ID:    "p-1",
			Name:  "Runner",
			Brand: "Acme",
			Price: decimal.RequireFromString("100.00"),
			Variants: []clients.Variant{
				{ID: "v-40", Size: "40", Stock: stock(2)},
				{ID: "v-41", Size: "41"},
			},
		},
	}}
}

// --- helpers ---

func withUser(r *http.Request) *http.Request {
	ctx := auth.WithPrincipal(r.Context(), auth.Principal{UserID: "user-1", Role: auth.RoleCustomer, Token: "tok"})
	return r.WithContext(ctx)
}

func withParams(r *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}
