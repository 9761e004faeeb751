package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/go_cart/cart-engine/internal/domain"
	"github.com/fjod/go_cart/cart-engine/internal/service"
	"github.com/fjod/go_cart/cart-engine/internal/storage"
)

func setupRouter(t *testing.T) (http.Handler, *service.Registry) {
	t.Helper()
	reg := service.NewRegistry(storage.NewMemoryStore(), nil, service.RegistryConfig{})
	handler := NewCartHandler(reg, 5*time.Second, nil)
	return NewRouter(handler, nil), reg
}

func cartOf(t *testing.T, reg *service.Registry, owner string) *service.CartStore {
	t.Helper()
	c, err := reg.Get(context.Background(), owner)
	require.NoError(t, err)
	return c
}

// downStore fails every read, like a backend behind an open breaker.
type downStore struct{}

func (downStore) Slot(string) storage.Slot { return downSlot{} }

type downSlot struct{}

func (downSlot) Load(context.Context) ([]byte, error) { return nil, errors.New("circuit breaker is open") }
func (downSlot) Save(context.Context, []byte) error { return errors.New("circuit breaker is open") }
func (downSlot) Discard(context.Context) error { return errors.New("circuit breaker is open") }

func do(t *testing.T, h http.Handler, method, path, owner string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if owner != "" {
		req.Header.Set(OwnerHeader, owner)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeCart(t *testing.T, rec *httptest.ResponseRecorder) CartResponse {
	t.Helper()
	var resp CartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func tomato() domain.Product {
	return domain.Product{ID: "p1", Name: "Tomato", Price: 120, Unit: "kg"}
}

func TestGetCart_RequiresOwner(t *testing.T) {
	h, _ := setupRouter(t)

	rec := do(t, h, http.MethodGet, "/api/v1/cart/", "", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestGetCart_Empty(t *testing.T) {
	h, _ := setupRouter(t)

	rec := do(t, h, http.MethodGet, "/api/v1/cart/", "u1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeCart(t, rec)
	assert.Empty(t, resp.Cart.Items)
	assert.Nil(t, resp.Notice)
	assert.True(t, resp.Cart.Totals.DeliveryFee.Equal(decimal.NewFromInt(50)))
}

func TestAddItem_Success(t *testing.T) {
	h, reg := setupRouter(t)

	rec := do(t, h, http.MethodPost, "/api/v1/cart/items", "u1", AddItemRequestDTO{Product: tomato()})

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeCart(t, rec)
	require.Len(t, resp.Cart.Items, 1)
	assert.Equal(t, 1, resp.Cart.Items[0].Quantity, "quantity defaults to 1")
	require.NotNil(t, resp.Notice)
	assert.Equal(t, "Tomato added to cart!", resp.Notice.Message)
	assert.Equal(t, 1, cartOf(t, reg, "u1").CartCount())
}

func TestAddItem_CapWarning(t *testing.T) {
	h, _ := setupRouter(t)
	ten := 10
	do(t, h, http.MethodPost, "/api/v1/cart/items", "u1", AddItemRequestDTO{Product: tomato(), Quantity: &ten})

	rec := do(t, h, http.MethodPost, "/api/v1/cart/items", "u1", AddItemRequestDTO{Product: tomato()})

	resp := decodeCart(t, rec)
	require.NotNil(t, resp.Notice)
	assert.Equal(t, domain.NoticeWarning, resp.Notice.Level)
	assert.Equal(t, 10, resp.Cart.Items[0].Quantity)
}

func TestAddItem_InvalidBody(t *testing.T) {
	h, _ := setupRouter(t)

	rec := do(t, h, http.MethodPost, "/api/v1/cart/items", "u1", "{broken")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/cart/items", "u1", AddItemRequestDTO{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, "invalid_product_id", errResp.Code)
}

func TestUpdateQuantity(t *testing.T) {
	h, _ := setupRouter(t)
	do(t, h, http.MethodPost, "/api/v1/cart/items", "u1", AddItemRequestDTO{Product: tomato()})

	rec := do(t, h, http.MethodPut, "/api/v1/cart/items/p1", "u1", UpdateQuantityRequestDTO{Quantity: 5})
	resp := decodeCart(t, rec)
	assert.Equal(t, 5, resp.Cart.Items[0].Quantity)
	assert.True(t, resp.Cart.Totals.Subtotal.Equal(decimal.NewFromInt(600)))
	assert.True(t, resp.Cart.Totals.FreeDelivery)

	rec = do(t, h, http.MethodPut, "/api/v1/cart/items/p1", "u1", UpdateQuantityRequestDTO{Quantity: 11})
	resp = decodeCart(t, rec)
	require.NotNil(t, resp.Notice)
	assert.Equal(t, "Maximum quantity allowed is 10!", resp.Notice.Message)
	assert.Equal(t, 5, resp.Cart.Items[0].Quantity)

	rec = do(t, h, http.MethodPut, "/api/v1/cart/items/p1", "u1", UpdateQuantityRequestDTO{Quantity: 0})
	resp = decodeCart(t, rec)
	assert.Empty(t, resp.Cart.Items)
}

func TestRemoveItem(t *testing.T) {
	h, _ := setupRouter(t)
	do(t, h, http.MethodPost, "/api/v1/cart/items", "u1", AddItemRequestDTO{Product: tomato()})

	rec := do(t, h, http.MethodDelete, "/api/v1/cart/items/p1", "u1", nil)

	resp := decodeCart(t, rec)
	assert.Empty(t, resp.Cart.Items)
	require.NotNil(t, resp.Notice)
	assert.Equal(t, "Tomato removed from cart!", resp.Notice.Message)
}

func TestClearCart(t *testing.T) {
	h, _ := setupRouter(t)
	do(t, h, http.MethodPost, "/api/v1/cart/items", "u1", AddItemRequestDTO{Product: tomato()})

	rec := do(t, h, http.MethodDelete, "/api/v1/cart/", "u1", nil)
	resp := decodeCart(t, rec)
	assert.Empty(t, resp.Cart.Items)
	require.NotNil(t, resp.Notice)
	assert.Equal(t, "Cart cleared!", resp.Notice.Message)

	// second clear is silent
	rec = do(t, h, http.MethodDelete, "/api/v1/cart/", "u1", nil)
	assert.Nil(t, decodeCart(t, rec).Notice)
}

func TestCheckout(t *testing.T) {
	h, reg := setupRouter(t)

	rec := do(t, h, http.MethodPost, "/api/v1/cart/checkout", "u1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	three := 3
	do(t, h, http.MethodPost, "/api/v1/cart/items", "u1", AddItemRequestDTO{Product: tomato(), Quantity: &three})
	rec = do(t, h, http.MethodPost, "/api/v1/cart/checkout", "u1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp CheckoutResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Order.Totals.Total.Equal(decimal.NewFromInt(410)))
	assert.Equal(t, 0, reg.Len(), "checked-out cart is dropped from memory")
	assert.Equal(t, 0, cartOf(t, reg, "u1").CartCount())
}

func TestStorageDownIsServiceUnavailable(t *testing.T) {
	reg := service.NewRegistry(downStore{}, nil, service.RegistryConfig{})
	h := NewRouter(NewCartHandler(reg, 5*time.Second, nil), nil)

	rec := do(t, h, http.MethodPost, "/api/v1/cart/items", "u1", AddItemRequestDTO{Product: tomato()})

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, "cart_unavailable", errResp.Code)
	assert.Equal(t, 0, reg.Len())
}

func TestMoneyIsJSONNumbers(t *testing.T) {
	h, _ := setupRouter(t)
	three := 3
	rec := do(t, h, http.MethodPost, "/api/v1/cart/items", "u1", AddItemRequestDTO{Product: tomato(), Quantity: &three})

	var raw struct {
		Cart struct {
			Items []struct {
				Price json.Number `json:"price"`
			} `json:"items"`
			Totals map[string]json.RawMessage `json:"totals"`
		} `json:"cart"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Equal(t, "120", raw.Cart.Items[0].Price.String())
	assert.Equal(t, "360", string(raw.Cart.Totals["subtotal"]))
	assert.Equal(t, "50", string(raw.Cart.Totals["delivery_fee"]))
	assert.Equal(t, "410", string(raw.Cart.Totals["total"]))
}

func TestOwnersDoNotShareCarts(t *testing.T) {
	h, _ := setupRouter(t)
	do(t, h, http.MethodPost, "/api/v1/cart/items", "u1", AddItemRequestDTO{Product: tomato()})

	rec := do(t, h, http.MethodGet, "/api/v1/cart/", "u2", nil)
	assert.Empty(t, decodeCart(t, rec).Cart.Items)
}

func TestHealth(t *testing.T) {
	h, _ := setupRouter(t)
	rec := do(t, h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
