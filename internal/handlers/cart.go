package handlers

import (
	"context"
	"net/http"
	"strings"

	"storefront/internal/models"
)

// CartService is the cart engine used by CartHandler.
type CartService interface {
	GetCart(ctx context.Context, userID int, country string) (*models.CartView, error)
	AddToCart(ctx context.Context, req *models.AddToCartRequest) (*models.CartView, error)
	UpdateCartItem(ctx context.Context, lineID, quantity int) (*models.CartView, error)
	RemoveFromCart(ctx context.Context, lineID int) (*models.CartView, error)
	ClearCart(ctx context.Context, userID int) error
}

// CartHandler handles shopping cart requests
type CartHandler struct {
	cartService CartService
}

// NewCartHandler creates a new cart handler
func NewCartHandler(cartService CartService) *CartHandler {
	return &CartHandler{cartService: cartService}
}

// GetCart returns the priced cart of the user named by the id segment.
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	userID, err := intParam(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	view, err := h.cartService.GetCart(r.Context(), userID, strings.TrimSpace(r.URL.Query().Get("country")))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// AddToCart adds a product or bundle to a user's cart.
func (h *CartHandler) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req models.AddToCartRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	view, err := h.cartService.AddToCart(r.Context(), &req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// UpdateCartItem sets the quantity of a cart line.
func (h *CartHandler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	lineID, err := intParam(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	var req models.UpdateCartItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	view, err := h.cartService.UpdateCartItem(r.Context(), lineID, req.Quantity)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// RemoveFromCart deletes a cart line.
func (h *CartHandler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	lineID, err := intParam(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	view, err := h.cartService.RemoveFromCart(r.Context(), lineID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ClearCart empties a user's cart.
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	userID, err := intParam(r, "userID")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if err := h.cartService.ClearCart(r.Context(), userID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "cart cleared"})
}
