package handlers

import (
	"context"

	"storefront/internal/models"
	"storefront/internal/repositories"
	"storefront/internal/services"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MockCartService for testing
type MockCartService struct {
	mock.Mock
}

func (m *MockCartService) GetCart(ctx context.Context, userID int, country string) (*models.CartView, error) {
	args := m.Called(userID, country)
	view, _ := args.Get(0).(*models.CartView)
	return view, args.Error(1)
}

func (m *MockCartService) AddToCart(ctx context.Context, req *models.AddToCartRequest) (*models.CartView, error) {
	args := m.Called(req)
	view, _ := args.Get(0).(*models.CartView)
	return view, args.Error(1)
}

func (m *MockCartService) UpdateCartItem(ctx context.Context, lineID, quantity int) (*models.CartView, error) {
	args := m.Called(lineID, quantity)
	view, _ := args.Get(0).(*models.CartView)
	return view, args.Error(1)
}

func (m *MockCartService) RemoveFromCart(ctx context.Context, lineID int) (*models.CartView, error) {
	args := m.Called(lineID)
	view, _ := args.Get(0).(*models.CartView)
	return view, args.Error(1)
}

func (m *MockCartService) ClearCart(ctx context.Context, userID int) error {
	args := m.Called(userID)
	return args.Error(0)
}

// MockOrderService for testing
type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) CreateOrder(ctx context.Context, req *models.CreateOrderRequest, idempotencyKey string) (*models.OrderResult, error) {
	args := m.Called(req, idempotencyKey)
	result, _ := args.Get(0).(*models.OrderResult)
	return result, args.Error(1)
}

func (m *MockOrderService) GetOrder(ctx context.Context, reference string) (*models.Order, error) {
	args := m.Called(reference)
	order, _ := args.Get(0).(*models.Order)
	return order, args.Error(1)
}

func (m *MockOrderService) VerifyPayment(ctx context.Context, reference string) (*models.Order, error) {
	args := m.Called(reference)
	order, _ := args.Get(0).(*models.Order)
	return order, args.Error(1)
}

func (m *MockOrderService) QuoteDeliveryFee(ctx context.Context, reference string, fee decimal.Decimal) (*services.DeliveryFeeQuote, error) {
	args := m.Called(reference, fee.String())
	quote, _ := args.Get(0).(*services.DeliveryFeeQuote)
	return quote, args.Error(1)
}

func (m *MockOrderService) ListOrders(ctx context.Context, filters repositories.OrderSearchFilters) ([]*models.Order, int, error) {
	args := m.Called(filters)
	orders, _ := args.Get(0).([]*models.Order)
	return orders, args.Int(1), args.Error(2)
}

func (m *MockOrderService) PaymentHistory(ctx context.Context, reference string) ([]*models.PaymentEvent, error) {
	args := m.Called(reference)
	events, _ := args.Get(0).([]*models.PaymentEvent)
	return events, args.Error(1)
}

// MockWebhookProcessor for testing
type MockWebhookProcessor struct {
	mock.Mock
}

func (m *MockWebhookProcessor) HandleEvent(ctx context.Context, body []byte, signature string) (models.WebhookOutcome, error) {
	args := m.Called(string(body), signature)
	return args.Get(0).(models.WebhookOutcome), args.Error(1)
}
