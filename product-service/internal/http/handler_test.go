package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fjod/storefront/product-service/internal/domain"
)

type RepoMock struct {
	mock.Mock
}

func (m *RepoMock) GetAllProducts(ctx context.Context) ([]*domain.Product, error) {
	args := m.Called(ctx)
	products, _ := args.Get(0).([]*domain.Product)
	return products, args.Error(1)
}

func (m *RepoMock) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(*domain.Product)
	return p, args.Error(1)
}

func newTestRouter(repo ProductReader) http.Handler {
	h := NewProductHandler(repo, time.Second, zap.NewNop())
	return NewRouter(h, zap.NewNop(), 5*time.Second)
}

func TestGetProduct(t *testing.T) {
	repo := new(RepoMock)
	repo.On("GetProduct", mock.Anything, "zap-002").Return(&domain.Product{
		ID:       "zap-002",
		Name:     "Air Max 90",
		Brand:    "Nike",
		Price:    decimal.RequireFromString("129.90"),
		ImageURL: "/img/zap-002.jpg",
		Variants: []domain.Variant{{ID: "zap-002-40", Size: "40", Stock: 8}},
	}, nil)

	rec := httptest.NewRecorder()
	newTestRouter(repo).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products/zap-002", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "zap-002", body["id"])
	assert.Equal(t, "/img/zap-002.jpg", body["image_url"])
	variants, ok := body["variants"].([]any)
	require.True(t, ok)
	require.Len(t, variants, 1)
	assert.Equal(t, "40", variants[0].(map[string]any)["size"])
	repo.AssertExpectations(t)
}

func TestGetProduct_Errors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{"not found", domain.ErrProductNotFound, http.StatusNotFound, "product_not_found"},
		{"storage failure", errors.New("disk I/O error"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			repo.On("GetProduct", mock.Anything, "x").Return(nil, tt.err)

			rec := httptest.NewRecorder()
			newTestRouter(repo).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products/x", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantBody, resp.Code)
		})
	}
}

func TestListProducts_EmptyIsArray(t *testing.T) {
	repo := new(RepoMock)
	repo.On("GetAllProducts", mock.Anything).Return(nil, nil)

	rec := httptest.NewRecorder()
	newTestRouter(repo).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}
