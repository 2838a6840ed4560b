package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/database"
	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

// OrderRepository handles order data operations
type OrderRepository struct {
	db *database.DB
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *database.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// OrderSearchFilters represents filters for order search
type OrderSearchFilters struct {
	UserID   int                  // Filter by user
	Email    string               // Filter by customer email
	Status   models.PaymentStatus // Filter by payment status
	DateFrom *time.Time           // Filter orders created from this date
	DateTo   *time.Time           // Filter orders created before this date
	Limit    int                  // Number of results to return
	Offset   int                  // Number of results to skip
	SortBy   string               // "created_at", "total", "payment_status"
	SortDesc bool                 // Sort in descending order
}

const orderColumns = `
	id, reference, idempotency_key, user_id, cart_id, email, customer_name, phone,
	shipping_address, billing_address, country, currency, subtotal, discount, tax,
	shipping, total, shipping_pending, coupon_code, payment_method, payment_status,
	authorization_url, access_code, email_sent, delivery_fee, delivery_fee_reference,
	delivery_fee_paid, paid_at, created_at, updated_at`

// Create inserts the order unless its reference or idempotency key already
// exists. created is false when another order owns either value.
func (r *OrderRepository) Create(ctx context.Context, order *models.Order) (bool, error) {
	query := `
		INSERT INTO orders (
			reference, idempotency_key, user_id, cart_id, email, customer_name, phone,
			shipping_address, billing_address, country, currency, subtotal, discount, tax,
			shipping, total, shipping_pending, coupon_code, payment_method, payment_status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT DO NOTHING
		RETURNING id, created_at, updated_at`

	err := r.db.Conn(ctx).QueryRowxContext(ctx, query,
		order.Reference,
		order.IdempotencyKey,
		order.UserID,
		order.CartID,
		order.Email,
		order.CustomerName,
		order.Phone,
		order.ShippingAddress,
		order.BillingAddress,
		order.Country,
		order.Currency,
		order.Subtotal,
		order.Discount,
		order.Tax,
		order.Shipping,
		order.Total,
		order.ShippingPending,
		order.CouponCode,
		order.PaymentMethod,
		order.PaymentStatus,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create order: %w", err)
	}
	return true, nil
}

// CreateItems inserts the snapshot rows of an order.
func (r *OrderRepository) CreateItems(ctx context.Context, orderID int, items []models.OrderItem) error {
	query := `
		INSERT INTO order_items (
			order_id, product_type, product_id, variant_id, size_id, bundle_id,
			product_name, color_name, size_name, image_url, quantity, unit_price,
			line_total, bundle_details
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id`

	conn := r.db.Conn(ctx)
	for i := range items {
		item := &items[i]
		item.OrderID = orderID
		err := conn.QueryRowxContext(ctx, query,
			orderID,
			item.ProductType,
			item.ProductID,
			item.VariantID,
			item.SizeID,
			item.BundleID,
			item.ProductName,
			item.ColorName,
			item.SizeName,
			item.ImageURL,
			item.Quantity,
			item.UnitPrice,
			item.LineTotal,
			item.BundleDetails,
		).Scan(&item.ID)
		if err != nil {
			return fmt.Errorf("failed to create order item: %w", err)
		}
	}
	return nil
}

// GetByReference retrieves an order by its reference
func (r *OrderRepository) GetByReference(ctx context.Context, reference string) (*models.Order, error) {
	return r.getOne(ctx, `WHERE reference = $1`, reference)
}

// GetByIdempotencyKey retrieves the order created for an idempotency key
func (r *OrderRepository) GetByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	return r.getOne(ctx, `WHERE idempotency_key = $1`, key)
}

// GetByDeliveryFeeReference retrieves the order a delivery-fee payment belongs to
func (r *OrderRepository) GetByDeliveryFeeReference(ctx context.Context, reference string) (*models.Order, error) {
	return r.getOne(ctx, `WHERE delivery_fee_reference = $1`, reference)
}

func (r *OrderRepository) getOne(ctx context.Context, where string, arg interface{}) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders ` + where

	order := &models.Order{}
	err := r.db.Conn(ctx).GetContext(ctx, order, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

// GetItems returns the snapshot rows of an order.
func (r *OrderRepository) GetItems(ctx context.Context, orderID int) ([]models.OrderItem, error) {
	query := `
		SELECT id, order_id, product_type, product_id, variant_id, size_id, bundle_id,
		       product_name, color_name, size_name, image_url, quantity, unit_price,
		       line_total, bundle_details
		FROM order_items
		WHERE order_id = $1
		ORDER BY id`

	var items []models.OrderItem
	if err := r.db.Conn(ctx).SelectContext(ctx, &items, query, orderID); err != nil {
		return nil, fmt.Errorf("failed to get order items: %w", err)
	}
	return items, nil
}

// HasCompletedOrder reports whether the user or email already paid for an order.
func (r *OrderRepository) HasCompletedOrder(ctx context.Context, userID int, email string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM orders
			WHERE payment_status = 'completed'
			  AND ((user_id = $1 AND $1 > 0) OR LOWER(email) = LOWER($2))
		)`

	var exists bool
	if err := r.db.Conn(ctx).QueryRowxContext(ctx, query, userID, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check previous orders: %w", err)
	}
	return exists, nil
}

// UpdatePaymentInit stores the gateway checkout details of a pending order.
func (r *OrderRepository) UpdatePaymentInit(ctx context.Context, orderID int, authorizationURL, accessCode string) error {
	query := `
		UPDATE orders
		SET authorization_url = $2, access_code = $3, updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.Conn(ctx).ExecContext(ctx, query, orderID, authorizationURL, accessCode)
	if err != nil {
		return fmt.Errorf("failed to store payment details: %w", err)
	}
	return expectRow(result, models.ErrOrderNotFound)
}

// TransitionStatus moves an order from one payment status to another. It
// returns false without error when the order is no longer in from.
func (r *OrderRepository) TransitionStatus(ctx context.Context, orderID int, from, to models.PaymentStatus) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, models.ErrInvalidStatusChange
	}

	query := `
		UPDATE orders
		SET payment_status = $3,
		    paid_at = CASE WHEN $3 = 'completed' THEN NOW() ELSE paid_at END,
		    updated_at = NOW()
		WHERE id = $1 AND payment_status = $2`

	result, err := r.db.Conn(ctx).ExecContext(ctx, query, orderID, from, to)
	if err != nil {
		return false, fmt.Errorf("failed to update payment status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// ClaimEmailSend flips email_sent so exactly one caller sends the
// confirmation.
func (r *OrderRepository) ClaimEmailSend(ctx context.Context, orderID int) (bool, error) {
	result, err := r.db.Conn(ctx).ExecContext(ctx,
		`UPDATE orders SET email_sent = TRUE WHERE id = $1 AND email_sent = FALSE`, orderID)
	if err != nil {
		return false, fmt.Errorf("failed to claim confirmation email: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// ReleaseEmailSend undoes a claim after a failed send so a later delivery
// can retry.
func (r *OrderRepository) ReleaseEmailSend(ctx context.Context, orderID int) error {
	_, err := r.db.Conn(ctx).ExecContext(ctx, `UPDATE orders SET email_sent = FALSE WHERE id = $1`, orderID)
	if err != nil {
		return fmt.Errorf("failed to release confirmation email: %w", err)
	}
	return nil
}

// SetDeliveryFeeQuote records the quoted fee and its payment reference.
func (r *OrderRepository) SetDeliveryFeeQuote(ctx context.Context, orderID int, fee decimal.Decimal, reference string) error {
	query := `
		UPDATE orders
		SET delivery_fee = $2, delivery_fee_reference = $3, updated_at = NOW()
		WHERE id = $1 AND delivery_fee_paid = FALSE`

	result, err := r.db.Conn(ctx).ExecContext(ctx, query, orderID, fee, reference)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrDuplicateEntry
		}
		return fmt.Errorf("failed to store delivery fee quote: %w", err)
	}
	return expectRow(result, models.ErrDeliveryFeeNotNeeded)
}

// MarkDeliveryFeePaid sets delivery_fee_paid once. It returns false when it
// was already set.
func (r *OrderRepository) MarkDeliveryFeePaid(ctx context.Context, orderID int) (bool, error) {
	query := `
		UPDATE orders
		SET delivery_fee_paid = TRUE, updated_at = NOW()
		WHERE id = $1 AND delivery_fee_paid = FALSE`

	result, err := r.db.Conn(ctx).ExecContext(ctx, query, orderID)
	if err != nil {
		return false, fmt.Errorf("failed to mark delivery fee paid: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// Search searches orders with filters and pagination
func (r *OrderRepository) Search(ctx context.Context, filters OrderSearchFilters) ([]*models.Order, int, error) {
	where := newConditionBuilder()

	if filters.UserID > 0 {
		where.add("user_id = ?", filters.UserID)
	}
	if filters.Email != "" {
		where.add("LOWER(email) = LOWER(?)", filters.Email)
	}
	if filters.Status != "" {
		where.add("payment_status = ?", filters.Status)
	}
	if filters.DateFrom != nil {
		where.add("created_at >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		where.add("created_at <= ?", *filters.DateTo)
	}

	orderBy := "ORDER BY created_at DESC"
	if filters.SortBy != "" {
		direction := "ASC"
		if filters.SortDesc {
			direction = "DESC"
		}

		switch filters.SortBy {
		case "created_at", "total", "payment_status":
			orderBy = fmt.Sprintf("ORDER BY %s %s", filters.SortBy, direction)
		}
	}

	if filters.Limit <= 0 || filters.Limit > 100 {
		filters.Limit = 20
	}
	if filters.Offset < 0 {
		filters.Offset = 0
	}

	conn := r.db.Conn(ctx)
	whereClause, args := where.build()

	var total int
	countQuery := `SELECT COUNT(*) FROM orders ` + whereClause
	if err := conn.QueryRowxContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to get order count: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM orders %s %s LIMIT $%d OFFSET $%d`,
		orderColumns, whereClause, orderBy, len(args)+1, len(args)+2)
	args = append(args, filters.Limit, filters.Offset)

	var orders []*models.Order
	if err := conn.SelectContext(ctx, &orders, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to search orders: %w", err)
	}
	return orders, total, nil
}

// conditionBuilder composes AND-ed conditions, numbering "?" placeholders as
// $n so values are always bound.
type conditionBuilder struct {
	conditions []string
	args       []interface{}
}

func newConditionBuilder() *conditionBuilder {
	return &conditionBuilder{}
}

func (b *conditionBuilder) add(condition string, arg interface{}) {
	b.args = append(b.args, arg)
	b.conditions = append(b.conditions, strings.Replace(condition, "?", fmt.Sprintf("$%d", len(b.args)), 1))
}

func (b *conditionBuilder) build() (string, []interface{}) {
	if len(b.conditions) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(b.conditions, " AND "), b.args
}
