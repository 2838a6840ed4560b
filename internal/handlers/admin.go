package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"storefront/internal/models"
	"storefront/internal/repositories"
	"storefront/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// AdminOrderService is the subset of the order engine behind the admin
// token.
type AdminOrderService interface {
	QuoteDeliveryFee(ctx context.Context, reference string, fee decimal.Decimal) (*services.DeliveryFeeQuote, error)
	ListOrders(ctx context.Context, filters repositories.OrderSearchFilters) ([]*models.Order, int, error)
	PaymentHistory(ctx context.Context, reference string) ([]*models.PaymentEvent, error)
}

// AdminHandler serves store administration
type AdminHandler struct {
	orderService AdminOrderService
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(orderService AdminOrderService) *AdminHandler {
	return &AdminHandler{orderService: orderService}
}

// DeliveryFeeRequest is the admin's quote for an international order.
type DeliveryFeeRequest struct {
	Fee decimal.Decimal `json:"fee"`
}

// QuoteDeliveryFee opens a delivery-fee payment for an international order.
func (h *AdminHandler) QuoteDeliveryFee(w http.ResponseWriter, r *http.Request) {
	var req DeliveryFeeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	quote, err := h.orderService.QuoteDeliveryFee(r.Context(), chi.URLParam(r, "reference"), req.Fee)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// OrderListResponse is one page of orders.
type OrderListResponse struct {
	Orders []*models.Order `json:"orders"`
	Total  int             `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// ListOrders searches orders for store administration.
func (h *AdminHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	filters, err := parseOrderFilters(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	orders, total, err := h.orderService.ListOrders(r.Context(), filters)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if orders == nil {
		orders = []*models.Order{}
	}
	writeJSON(w, http.StatusOK, OrderListResponse{Orders: orders, Total: total, Limit: filters.Limit, Offset: filters.Offset})
}

// PaymentHistory lists the webhook deliveries recorded for an order.
func (h *AdminHandler) PaymentHistory(w http.ResponseWriter, r *http.Request) {
	events, err := h.orderService.PaymentHistory(r.Context(), chi.URLParam(r, "reference"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if events == nil {
		events = []*models.PaymentEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func parseOrderFilters(r *http.Request) (repositories.OrderSearchFilters, error) {
	q := r.URL.Query()
	filters := repositories.OrderSearchFilters{
		Email:    q.Get("email"),
		Status:   models.PaymentStatus(q.Get("status")),
		SortBy:   q.Get("sort"),
		SortDesc: q.Get("order") != "asc",
		Limit:    20,
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"user_id", &filters.UserID},
		{"limit", &filters.Limit},
		{"offset", &filters.Offset},
	}
	for _, p := range ints {
		if v := q.Get(p.name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return filters, models.NewValidationError(p.name, "must be a non-negative integer")
			}
			*p.dst = n
		}
	}

	dates := []struct {
		name string
		dst  **time.Time
	}{
		{"from", &filters.DateFrom},
		{"to", &filters.DateTo},
	}
	for _, p := range dates {
		if v := q.Get(p.name); v != "" {
			t, err := time.Parse("2006-01-02", v)
			if err != nil {
				return filters, models.NewValidationError(p.name, "must be a date in YYYY-MM-DD format")
			}
			*p.dst = &t
		}
	}

	switch filters.Status {
	case "", models.PaymentPending, models.PaymentCompleted, models.PaymentFailed:
	default:
		return filters, models.NewValidationError("status", "must be one of: pending completed failed")
	}
	return filters, nil
}
