package services

import (
	"context"

	"storefront/internal/models"
	"storefront/internal/repositories"

	"github.com/shopspring/decimal"
)

// TxRunner runs fn inside one database transaction carried by ctx.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CatalogRepository interface for catalog lookups and stock adjustments
type CatalogRepository interface {
	GetVariantSize(ctx context.Context, variantID, sizeID int) (*models.VariantSize, error)
	LockVariantSize(ctx context.Context, variantID, sizeID int) (*models.VariantSize, error)
	GetBundle(ctx context.Context, bundleID int) (*models.Bundle, error)
	DecrementStock(ctx context.Context, variantID, sizeID, qty int) error
	IncrementStock(ctx context.Context, variantID, sizeID, qty int) error
}

// CartRepository interface for cart data operations
type CartRepository interface {
	GetLatestByUser(ctx context.Context, userID int) (*models.Cart, error)
	GetOrCreate(ctx context.Context, userID int, country string) (*models.Cart, error)
	LockCart(ctx context.Context, cartID int) (*models.Cart, error)
	ListLines(ctx context.Context, cartID int) ([]models.CartLine, error)
	GetLine(ctx context.Context, lineID int) (*models.CartLine, error)
	FindSingleLine(ctx context.Context, cartID, variantID, sizeID int) (*models.CartLine, error)
	UpsertSingleLine(ctx context.Context, cartID int, line *models.CartLine) (int, error)
	FindBundleLine(ctx context.Context, cartID, bundleID int, signature string) (*models.CartLine, error)
	InsertBundleLine(ctx context.Context, cartID int, line *models.CartLine, items []models.BundleSelection) (int, error)
	UpdateLineQuantity(ctx context.Context, lineID, quantity int) error
	DeleteLine(ctx context.Context, lineID int) error
	DeleteAllLines(ctx context.Context, cartID int) error
	UpdateTotal(ctx context.Context, cartID int, total decimal.Decimal, country string) error
}

// OrderRepository interface for order data operations
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) (bool, error)
	CreateItems(ctx context.Context, orderID int, items []models.OrderItem) error
	GetByReference(ctx context.Context, reference string) (*models.Order, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	GetByDeliveryFeeReference(ctx context.Context, reference string) (*models.Order, error)
	GetItems(ctx context.Context, orderID int) ([]models.OrderItem, error)
	HasCompletedOrder(ctx context.Context, userID int, email string) (bool, error)
	UpdatePaymentInit(ctx context.Context, orderID int, authorizationURL, accessCode string) error
	TransitionStatus(ctx context.Context, orderID int, from, to models.PaymentStatus) (bool, error)
	ClaimEmailSend(ctx context.Context, orderID int) (bool, error)
	ReleaseEmailSend(ctx context.Context, orderID int) error
	SetDeliveryFeeQuote(ctx context.Context, orderID int, fee decimal.Decimal, reference string) error
	MarkDeliveryFeePaid(ctx context.Context, orderID int) (bool, error)
	Search(ctx context.Context, filters repositories.OrderSearchFilters) ([]*models.Order, int, error)
}

// CouponRepository interface for coupon lookups
type CouponRepository interface {
	GetByCode(ctx context.Context, code string) (*models.Coupon, error)
}

// PaymentEventRepository interface for the webhook audit trail
type PaymentEventRepository interface {
	Create(ctx context.Context, event *models.PaymentEvent) error
	ListByReference(ctx context.Context, reference string) ([]*models.PaymentEvent, error)
}

// PaymentGateway is the external payment processor.
type PaymentGateway interface {
	InitializeTransaction(ctx context.Context, req *TransactionRequest) (*TransactionData, error)
	VerifyTransaction(ctx context.Context, reference string) (*TransactionDetails, error)
	VerifyWebhookSignature(payload []byte, signature string) bool
}

// Notifier sends transactional emails.
type Notifier interface {
	SendOrderConfirmation(ctx context.Context, order *models.Order) error
	SendDeliveryFeeQuoteNeeded(ctx context.Context, order *models.Order) error
	SendDeliveryFeeRequest(ctx context.Context, order *models.Order, paymentURL string) error
}

// StatusPublisher fans out order status changes to live subscribers.
type StatusPublisher interface {
	Publish(update models.OrderStatusUpdate)
}
