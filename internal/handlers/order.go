package handlers

import (
	"context"
	"errors"
	"net/http"

	"storefront/internal/models"

	"github.com/go-chi/chi/v5"
)

// IdempotencyKeyHeader lets clients retry order creation safely.
const IdempotencyKeyHeader = "X-Idempotency-Key"

// OrderService is the order engine used by OrderHandler.
type OrderService interface {
	CreateOrder(ctx context.Context, req *models.CreateOrderRequest, idempotencyKey string) (*models.OrderResult, error)
	GetOrder(ctx context.Context, reference string) (*models.Order, error)
	VerifyPayment(ctx context.Context, reference string) (*models.Order, error)
}

// OrderHandler handles checkout and order lookups
type OrderHandler struct {
	orderService OrderService
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(orderService OrderService) *OrderHandler {
	return &OrderHandler{orderService: orderService}
}

// ConflictResponse is returned when a reference already belongs to another
// order.
type ConflictResponse struct {
	Error         string               `json:"error"`
	OrderID       int                  `json:"order_id"`
	Reference     string               `json:"reference"`
	PaymentStatus models.PaymentStatus `json:"payment_status"`
}

// CreateOrder places an order and returns the payment link.
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req models.CreateOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	result, err := h.orderService.CreateOrder(r.Context(), &req, r.Header.Get(IdempotencyKeyHeader))
	var dup *models.DuplicateOrderError
	if errors.As(err, &dup) {
		writeJSON(w, http.StatusConflict, ConflictResponse{
			Error:         dup.Error(),
			OrderID:       dup.Order.ID,
			Reference:     dup.Order.Reference,
			PaymentStatus: dup.Order.PaymentStatus,
		})
		return
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

// GetOrder returns an order by reference.
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orderService.GetOrder(r.Context(), chi.URLParam(r, "reference"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// VerifyPayment polls Paystack for a pending order and returns its state.
func (h *OrderHandler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	order, err := h.orderService.VerifyPayment(r.Context(), chi.URLParam(r, "reference"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}
