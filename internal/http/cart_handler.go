package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fjod/go_cart/cart-engine/internal/domain"
	"github.com/fjod/go_cart/cart-engine/internal/logger"
	"github.com/fjod/go_cart/cart-engine/internal/service"
)

func init() {
	// money goes out as JSON numbers, like product prices
	decimal.MarshalJSONWithoutQuotes = true
}

// Carts resolves the cart of an owner.
type Carts interface {
	Get(ctx context.Context, owner string) (*service.CartStore, error)
	Forget(owner string) bool
}

type CartHandler struct {
	carts   Carts
	timeout time.Duration
	log     *logger.Logger
}

func NewCartHandler(carts Carts, timeout time.Duration, log *logger.Logger) *CartHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &CartHandler{
		carts:   carts,
		timeout: timeout,
		log:     log,
	}
}

type AddItemRequestDTO struct {
	Product  domain.Product `json:"product"`
	Quantity *int           `json:"quantity,omitempty"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type CartResponse struct {
	Cart   domain.Snapshot `json:"cart"`
	Notice *domain.Notice  `json:"notice,omitempty"`
}

type CheckoutResponse struct {
	Order domain.Snapshot `json:"order"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// NewRouter mounts the cart API under /api/v1/cart.
func NewRouter(h *CartHandler, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.Nop()
	}
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(AccessLog(log))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1/cart", func(r chi.Router) {
		r.Use(OwnerMiddleware)
		r.Get("/", h.GetCart)
		r.Delete("/", h.ClearCart)
		r.Post("/items", h.AddItem)
		r.Put("/items/{product_id}", h.UpdateQuantity)
		r.Delete("/items/{product_id}", h.RemoveItem)
		r.Post("/checkout", h.Checkout)
	})

	return otelhttp.NewHandler(r, "cart-engine")
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	cart, ok := h.cart(w, r)
	if !ok {
		return
	}

	respondJSON(w, http.StatusOK, CartResponse{Cart: cart.Snapshot()})
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Product.ID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product.id is required")
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	cart, ok := h.cart(w, r)
	if !ok {
		return
	}

	notice := cart.AddToCart(r.Context(), req.Product, quantity)
	respondCart(w, http.StatusOK, cart, notice)
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	cart, ok := h.cart(w, r)
	if !ok {
		return
	}

	notice := cart.UpdateQuantity(r.Context(), chi.URLParam(r, "product_id"), req.Quantity)
	respondCart(w, http.StatusOK, cart, notice)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	cart, ok := h.cart(w, r)
	if !ok {
		return
	}

	notice := cart.RemoveFromCart(r.Context(), chi.URLParam(r, "product_id"))
	respondCart(w, http.StatusOK, cart, notice)
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	cart, ok := h.cart(w, r)
	if !ok {
		return
	}

	notice := cart.ClearCart(r.Context())
	respondCart(w, http.StatusOK, cart, notice)
}

func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	cart, ok := h.cart(w, r)
	if !ok {
		return
	}

	order, err := cart.Checkout(r.Context())
	if errors.Is(err, service.ErrEmptyCart) {
		respondError(w, http.StatusConflict, "empty_cart", "cart is empty")
		return
	}
	if err != nil {
		h.log.WithContext(r.Context()).Error("checkout failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	// storage now holds the empty cart; reload it from there next time
	h.carts.Forget(getOwner(r.Context()))
	respondJSON(w, http.StatusOK, CheckoutResponse{Order: order})
}

// cart resolves the caller's cart and answers 503 when it cannot be loaded. The timeout
// bounds how long the request waits for a cold load from storage.
func (h *CartHandler) cart(w http.ResponseWriter, r *http.Request) (*service.CartStore, bool) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cart, err := h.carts.Get(ctx, getOwner(r.Context()))
	if err != nil {
		h.log.WithContext(r.Context()).Warn("cart unavailable", "error", err)
		w.Header().Set("Retry-After", "1")
		respondError(w, http.StatusServiceUnavailable, "cart_unavailable", "cart is temporarily unavailable")
		return nil, false
	}
	return cart, true
}

func respondCart(w http.ResponseWriter, status int, cart *service.CartStore, notice domain.Notice) {
	resp := CartResponse{Cart: cart.Snapshot()}
	if !notice.IsZero() {
		resp.Notice = &notice
	}
	respondJSON(w, status, resp)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
