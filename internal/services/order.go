package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"storefront/internal/models"
	"storefront/internal/repositories"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// errLostInsertRace rolls back an order transaction that lost the insert to
// a concurrent request with the same reference or idempotency key.
var errLostInsertRace = errors.New("order already inserted by a concurrent request")

const (
	// DefaultPendingOrderTTL is how long an unpaid order holds its stock.
	DefaultPendingOrderTTL = 2 * time.Hour

	expiryBatchSize = 100
)

// OrderService handles order-related business logic
type OrderService struct {
	tx         TxRunner
	orders     OrderRepository
	carts      CartRepository
	catalog    CatalogRepository
	coupons    CouponRepository
	events     PaymentEventRepository
	gateway    PaymentGateway
	notifier   Notifier
	reconciler *PaymentReconciler
	pricer     *Pricer
	currency   string
	pendingTTL time.Duration
	now        func() time.Time
}

// OrderServiceDeps groups the collaborators of OrderService.
type OrderServiceDeps struct {
	Tx         TxRunner
	Orders     OrderRepository
	Carts      CartRepository
	Catalog    CatalogRepository
	Coupons    CouponRepository
	Events     PaymentEventRepository
	Gateway    PaymentGateway
	Notifier   Notifier
	Reconciler *PaymentReconciler
	Pricer     *Pricer
	Currency   string
	// PendingTTL defaults to DefaultPendingOrderTTL.
	PendingTTL time.Duration
}

// NewOrderService creates a new order service
func NewOrderService(deps OrderServiceDeps) *OrderService {
	currency := deps.Currency
	if currency == "" {
		currency = "NGN"
	}
	pendingTTL := deps.PendingTTL
	if pendingTTL <= 0 {
		pendingTTL = DefaultPendingOrderTTL
	}
	return &OrderService{
		tx:         deps.Tx,
		orders:     deps.Orders,
		carts:      deps.Carts,
		catalog:    deps.Catalog,
		coupons:    deps.Coupons,
		events:     deps.Events,
		gateway:    deps.Gateway,
		notifier:   deps.Notifier,
		reconciler: deps.Reconciler,
		pricer:     deps.Pricer,
		currency:   currency,
		pendingTTL: pendingTTL,
		now:        time.Now,
	}
}

// CreateOrder places an order from the user's cart or from the guest items
// in req, reserves stock and initializes payment. Repeating an idempotency
// key returns the existing order with Duplicate set. Reusing a reference
// under another key fails with *models.DuplicateOrderError.
func (s *OrderService) CreateOrder(ctx context.Context, req *models.CreateOrderRequest, idempotencyKey string) (*models.OrderResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if len(idempotencyKey) > 255 {
		return nil, models.NewValidationError("idempotency_key", "must be at most 255 characters")
	}

	if existing, sameKey, err := s.findExisting(ctx, idempotencyKey, req.Reference); err != nil {
		return nil, err
	} else if existing != nil {
		return s.duplicate(ctx, existing, sameKey)
	}

	reference := req.Reference
	if reference == "" {
		reference = models.GenerateReference(s.now())
	}

	var order *models.Order
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		order, err = s.placeOrder(ctx, req, reference, idempotencyKey)
		return err
	})
	if errors.Is(err, errLostInsertRace) {
		existing, sameKey, findErr := s.findExisting(ctx, idempotencyKey, reference)
		if findErr != nil {
			return nil, findErr
		}
		if existing == nil {
			return nil, fmt.Errorf("failed to create order: %w", err)
		}
		return s.duplicate(ctx, existing, sameKey)
	}
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("reference", order.Reference).
		Int("order_id", order.ID).
		Str("total", order.Total.StringFixed(2)).
		Bool("guest", !order.UserID.Valid).
		Msg("order created")

	if err := s.initializePayment(ctx, order); err != nil {
		return nil, err
	}

	return &models.OrderResult{
		Order:            order,
		AuthorizationURL: order.AuthorizationURL,
		AccessCode:       order.AccessCode,
	}, nil
}

// findExisting looks an order up by idempotency key, then by reference.
func (s *OrderService) findExisting(ctx context.Context, key, reference string) (*models.Order, bool, error) {
	if key != "" {
		order, err := s.orders.GetByIdempotencyKey(ctx, key)
		if err == nil {
			return order, true, nil
		}
		if !errors.Is(err, models.ErrOrderNotFound) {
			return nil, false, err
		}
	}
	if reference != "" {
		order, err := s.orders.GetByReference(ctx, reference)
		if err == nil {
			sameKey := key != "" && order.IdempotencyKey.Valid && order.IdempotencyKey.String == key
			return order, sameKey, nil
		}
		if !errors.Is(err, models.ErrOrderNotFound) {
			return nil, false, err
		}
	}
	return nil, false, nil
}

// duplicate resolves a request that matches an existing order. Only a retry
// with the same idempotency key gets the order back; any other reference
// collision is a conflict.
func (s *OrderService) duplicate(ctx context.Context, order *models.Order, sameKey bool) (*models.OrderResult, error) {
	if !sameKey {
		log.Warn().Str("reference", order.Reference).Msg("order reference already in use")
		return nil, &models.DuplicateOrderError{Order: order}
	}
	return s.replay(ctx, order, sameKey)
}

// replay returns an existing order. A pending order whose payment was never
// initialized gets a fresh attempt.
func (s *OrderService) replay(ctx context.Context, order *models.Order, sameKey bool) (*models.OrderResult, error) {
	items, err := s.orders.GetItems(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Items = items

	if order.IsPending() && order.AuthorizationURL == "" {
		if err := s.initializePayment(ctx, order); err != nil {
			return nil, err
		}
	}

	log.Info().
		Str("reference", order.Reference).
		Bool("same_key", sameKey).
		Msg("duplicate order request")

	return &models.OrderResult{
		Order:            order,
		AuthorizationURL: order.AuthorizationURL,
		AccessCode:       order.AccessCode,
		Duplicate:        true,
		SameKey:          sameKey,
	}, nil
}

func (s *OrderService) placeOrder(ctx context.Context, req *models.CreateOrderRequest, reference, idempotencyKey string) (*models.Order, error) {
	lines, cart, err := s.resolveLines(ctx, req)
	if err != nil {
		return nil, err
	}

	if result := EvaluateCart(lines); result.HasInsufficientBriefs {
		return nil, &models.MinimumQuantityError{Remaining: result.Remaining}
	}

	items := make([]models.OrderItem, 0, len(lines))
	subtotal := decimal.Zero
	for i := range lines {
		item := snapshotLine(&lines[i])
		subtotal = subtotal.Add(item.LineTotal)
		items = append(items, item)
	}

	hasPaid, err := s.orders.HasCompletedOrder(ctx, req.UserID, req.Email)
	if err != nil {
		return nil, err
	}

	coupon, err := s.lookupCoupon(ctx, req.CouponCode)
	if err != nil {
		return nil, err
	}

	price := s.pricer.PriceOrder(subtotal, req.ShippingAddress, !hasPaid, coupon)
	if req.ExpectedTotal != nil && !req.ExpectedTotal.Round(2).Equal(price.Total) {
		return nil, fmt.Errorf("%w: expected %s, calculated %s",
			models.ErrTotalMismatch, req.ExpectedTotal.StringFixed(2), price.Total.StringFixed(2))
	}

	order := &models.Order{
		Reference:       reference,
		IdempotencyKey:  sql.NullString{String: idempotencyKey, Valid: idempotencyKey != ""},
		Email:           strings.TrimSpace(req.Email),
		CustomerName:    strings.TrimSpace(req.CustomerName),
		Phone:           req.Phone,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  models.NullableAddress{Address: req.BillingAddress},
		Country:         req.ShippingAddress.Country,
		Currency:        s.currency,
		Subtotal:        price.Subtotal,
		Discount:        price.Discount,
		Tax:             price.Tax,
		Shipping:        price.Shipping,
		Total:           price.Total,
		ShippingPending: price.ShippingPending,
		PaymentMethod:   "paystack",
		PaymentStatus:   models.PaymentPending,
	}
	if req.UserID > 0 {
		order.UserID = sql.NullInt64{Int64: int64(req.UserID), Valid: true}
	}
	if cart != nil {
		order.CartID = sql.NullInt64{Int64: int64(cart.ID), Valid: true}
	}
	if coupon != nil {
		order.CouponCode = sql.NullString{String: coupon.Code, Valid: true}
	}

	created, err := s.orders.Create(ctx, order)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, errLostInsertRace
	}

	if err := s.orders.CreateItems(ctx, order.ID, items); err != nil {
		return nil, err
	}
	order.Items = items

	if err := s.reserveStock(ctx, items); err != nil {
		return nil, err
	}
	return order, nil
}

// resolveLines returns the lines being purchased: the locked cart of a
// signed-in user, or the guest items priced from the catalog.
func (s *OrderService) resolveLines(ctx context.Context, req *models.CreateOrderRequest) ([]models.CartLine, *models.Cart, error) {
	if req.UserID > 0 && len(req.Items) == 0 {
		cart, err := s.carts.GetLatestByUser(ctx, req.UserID)
		if errors.Is(err, models.ErrCartNotFound) {
			return nil, nil, models.NewValidationError("cart", "is empty")
		}
		if err != nil {
			return nil, nil, err
		}
		if cart, err = s.carts.LockCart(ctx, cart.ID); err != nil {
			return nil, nil, err
		}
		lines, err := s.carts.ListLines(ctx, cart.ID)
		if err != nil {
			return nil, nil, err
		}
		if len(lines) == 0 {
			return nil, nil, models.NewValidationError("cart", "is empty")
		}
		return lines, cart, nil
	}

	lines := make([]models.CartLine, 0, len(req.Items))
	for i := range req.Items {
		line, err := s.guestLine(ctx, &req.Items[i])
		if err != nil {
			return nil, nil, err
		}
		lines = append(lines, *line)
	}
	return lines, nil, nil
}

func (s *OrderService) guestLine(ctx context.Context, item *models.OrderItemRequest) (*models.CartLine, error) {
	if item.ProductType == models.ProductSingle {
		vs, err := s.catalog.GetVariantSize(ctx, item.VariantID, item.SizeID)
		if err != nil {
			return nil, err
		}
		return &models.CartLine{
			ProductType:  models.ProductSingle,
			VariantID:    vs.VariantID,
			SizeID:       vs.SizeID,
			Quantity:     item.Quantity,
			Price:        vs.Price,
			ProductID:    vs.ProductID,
			ProductName:  vs.ProductName,
			Category:     vs.Category,
			ProductClass: vs.ProductClass,
			ColorName:    vs.ColorName,
			SizeName:     vs.SizeName,
			ImageURL:     vs.ImageURL,
		}, nil
	}

	bundle, err := s.catalog.GetBundle(ctx, item.BundleID)
	if err != nil {
		return nil, err
	}
	if cardinality := bundle.BundleType.Cardinality(); len(item.Items) != cardinality {
		return nil, models.NewValidationError("items",
			fmt.Sprintf("a %s bundle needs exactly %d items, got %d", bundle.BundleType, cardinality, len(item.Items)))
	}

	selections := models.CanonicalSelections(item.Items)
	contents := make([]models.CartBundleItem, 0, len(selections))
	for pos, sel := range selections {
		vs, err := s.catalog.GetVariantSize(ctx, sel.VariantID, sel.SizeID)
		if err != nil {
			return nil, err
		}
		if vs.ProductID != bundle.ProductID {
			return nil, fmt.Errorf("%w: %s is not part of %s", models.ErrInvalidBundle, vs.Label(), bundle.Name)
		}
		contents = append(contents, models.CartBundleItem{
			VariantID:   vs.VariantID,
			SizeID:      vs.SizeID,
			Position:    pos,
			ProductName: vs.ProductName,
			ColorName:   vs.ColorName,
			SizeName:    vs.SizeName,
			ImageURL:    vs.ImageURL,
		})
	}

	return &models.CartLine{
		ProductType:     models.ProductBundle,
		BundleID:        bundle.ID,
		BundleSignature: models.BundleSignature(selections),
		BundleType:      bundle.BundleType,
		Quantity:        item.Quantity,
		Price:           bundle.UnitPrice(),
		ProductID:       bundle.ProductID,
		ProductName:     bundle.Name,
		Category:        bundle.Category,
		ProductClass:    bundle.ProductClass,
		ImageURL:        bundle.ImageURL,
		BundleItems:     contents,
	}, nil
}

// snapshotLine freezes a cart line into an order item.
func snapshotLine(line *models.CartLine) models.OrderItem {
	item := models.OrderItem{
		ProductType: line.ProductType,
		ProductName: line.ProductName,
		ColorName:   line.ColorName,
		SizeName:    line.SizeName,
		ImageURL:    line.ImageURL,
		Quantity:    line.Quantity,
		UnitPrice:   line.Price,
		LineTotal:   line.LineTotal(),
	}
	if line.ProductID > 0 {
		item.ProductID = sql.NullInt64{Int64: int64(line.ProductID), Valid: true}
	}

	if line.ProductType == models.ProductBundle {
		item.BundleID = sql.NullInt64{Int64: int64(line.BundleID), Valid: true}
		item.BundleDetails = make(models.BundleSnapshot, 0, len(line.BundleItems))
		for _, b := range line.BundleItems {
			item.BundleDetails = append(item.BundleDetails, models.BundleSnapshotItem{
				VariantID:   b.VariantID,
				SizeID:      b.SizeID,
				ProductName: b.ProductName,
				ColorName:   b.ColorName,
				SizeName:    b.SizeName,
				ImageURL:    b.ImageURL,
			})
		}
		return item
	}

	item.VariantID = sql.NullInt64{Int64: int64(line.VariantID), Valid: true}
	item.SizeID = sql.NullInt64{Int64: int64(line.SizeID), Valid: true}
	return item
}

// reserveStock decrements stock for every unit the items consume.
func (s *OrderService) reserveStock(ctx context.Context, items []models.OrderItem) error {
	var units []models.StockUnit
	for i := range items {
		units = append(units, items[i].StockUnits()...)
	}

	for _, u := range models.MergeStockUnits(units) {
		err := s.catalog.DecrementStock(ctx, u.VariantID, u.SizeID, u.Quantity)
		if errors.Is(err, models.ErrInsufficientStock) {
			vs, lookupErr := s.catalog.GetVariantSize(ctx, u.VariantID, u.SizeID)
			if lookupErr != nil {
				return lookupErr
			}
			return &models.StockError{Label: vs.Label(), Requested: u.Quantity, Available: vs.Stock}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *OrderService) lookupCoupon(ctx context.Context, code string) (*models.Coupon, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil
	}
	coupon, err := s.coupons.GetByCode(ctx, code)
	if errors.Is(err, models.ErrCouponNotFound) {
		return nil, models.ErrInvalidCoupon
	}
	if err != nil {
		return nil, err
	}
	if !coupon.IsUsable(s.now()) {
		return nil, models.ErrInvalidCoupon
	}
	return coupon, nil
}

// initializePayment opens the Paystack transaction outside any database
// transaction and stores the checkout link on the order.
func (s *OrderService) initializePayment(ctx context.Context, order *models.Order) error {
	metadata := map[string]string{
		"order_id":      strconv.Itoa(order.ID),
		"customer_name": order.CustomerName,
	}
	if order.CartID.Valid {
		metadata["cart_id"] = strconv.FormatInt(order.CartID.Int64, 10)
	}

	data, err := s.gateway.InitializeTransaction(ctx, &TransactionRequest{
		Email:     order.Email,
		Amount:    order.AmountInSubunits(),
		Currency:  order.Currency,
		Reference: order.Reference,
		Metadata:  metadata,
	})
	if err != nil {
		log.Error().Err(err).Str("reference", order.Reference).Msg("payment initialization failed")
		if errors.Is(err, models.ErrGatewayUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %v", models.ErrGatewayUnavailable, err)
	}

	if err := s.orders.UpdatePaymentInit(ctx, order.ID, data.AuthorizationURL, data.AccessCode); err != nil {
		return fmt.Errorf("failed to store payment link: %w", err)
	}
	order.AuthorizationURL = data.AuthorizationURL
	order.AccessCode = data.AccessCode
	return nil
}

// GetOrder returns an order with its items.
func (s *OrderService) GetOrder(ctx context.Context, reference string) (*models.Order, error) {
	order, err := s.orders.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if order.Items, err = s.orders.GetItems(ctx, order.ID); err != nil {
		return nil, err
	}
	return order, nil
}

// VerifyPayment asks Paystack for the transaction state of a pending order
// and applies it the same way the webhook would.
func (s *OrderService) VerifyPayment(ctx context.Context, reference string) (*models.Order, error) {
	order, err := s.orders.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if !order.IsPending() {
		return s.GetOrder(ctx, reference)
	}

	details, err := s.gateway.VerifyTransaction(ctx, reference)
	if err != nil {
		return nil, err
	}
	if _, err := s.applyVerification(ctx, order, details); err != nil {
		return nil, err
	}
	return s.GetOrder(ctx, reference)
}

// applyVerification settles a pending order from a verified transaction and
// reports whether the order was released. Only a declined or reversed charge
// fails the order, unless the order has outlived the pending TTL and the
// checkout was abandoned.
func (s *OrderService) applyVerification(ctx context.Context, order *models.Order, details *TransactionDetails) (bool, error) {
	switch {
	case details.Succeeded():
		if details.Amount != order.AmountInSubunits() {
			log.Warn().
				Str("reference", order.Reference).
				Int64("paid", details.Amount).
				Int64("expected", order.AmountInSubunits()).
				Msg("verified amount does not match order total")
			return false, nil
		}
		_, err := s.reconciler.Complete(ctx, order)
		return false, err
	case details.Failed():
		return s.release(ctx, order)
	case details.Abandoned() && s.expired(order):
		log.Info().Str("reference", order.Reference).Msg("abandoned checkout expired")
		return s.release(ctx, order)
	}
	return false, nil
}

func (s *OrderService) release(ctx context.Context, order *models.Order) (bool, error) {
	outcome, err := s.reconciler.Fail(ctx, order)
	if err != nil {
		return false, err
	}
	return outcome == models.OutcomeProcessed, nil
}

func (s *OrderService) expired(order *models.Order) bool {
	return !order.CreatedAt.IsZero() && s.now().Sub(order.CreatedAt) >= s.pendingTTL
}

// ExpirePendingOrders releases the stock held by unpaid orders older than the
// pending TTL. Each order is checked with Paystack first, so a payment whose
// webhook never arrived completes instead. Orders whose checkout is still in
// progress, or that Paystack cannot be asked about, are left for a later run.
func (s *OrderService) ExpirePendingOrders(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.pendingTTL)
	orders, _, err := s.orders.Search(ctx, repositories.OrderSearchFilters{
		Status: models.PaymentPending,
		DateTo: &cutoff,
		Limit:  expiryBatchSize,
		SortBy: "created_at",
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list pending orders: %w", err)
	}

	released := 0
	for _, order := range orders {
		if ctx.Err() != nil {
			return released, ctx.Err()
		}

		// Payment was never opened with Paystack, so no charge can exist
		if order.AuthorizationURL == "" {
			ok, err := s.release(ctx, order)
			if err != nil {
				return released, err
			}
			if ok {
				released++
			}
			continue
		}

		details, err := s.gateway.VerifyTransaction(ctx, order.Reference)
		if err != nil {
			log.Warn().Err(err).Str("reference", order.Reference).Msg("could not verify stale pending order")
			continue
		}
		ok, err := s.applyVerification(ctx, order, details)
		if err != nil {
			return released, err
		}
		if ok {
			released++
		}
	}

	if released > 0 {
		log.Info().Int("released", released).Time("cutoff", cutoff).Msg("expired pending orders")
	}
	return released, nil
}

// RunExpirySweeper calls ExpirePendingOrders every interval until ctx ends.
func (s *OrderService) RunExpirySweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ExpirePendingOrders(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("pending order expiry failed")
			}
		}
	}
}

// DeliveryFeeQuote is the payment link created for a quoted delivery fee.
type DeliveryFeeQuote struct {
	Order            *models.Order `json:"order"`
	Reference        string        `json:"reference"`
	AuthorizationURL string        `json:"authorization_url"`
}

// QuoteDeliveryFee prices shipping for a paid international order, opens a
// separate payment for it and emails the customer the link.
func (s *OrderService) QuoteDeliveryFee(ctx context.Context, reference string, fee decimal.Decimal) (*DeliveryFeeQuote, error) {
	if !fee.IsPositive() {
		return nil, models.NewValidationError("fee", "must be greater than zero")
	}

	order, err := s.orders.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if !order.IsCompleted() || !order.ShippingPending || order.DeliveryFeePaid {
		return nil, models.ErrDeliveryFeeNotNeeded
	}

	fee = fee.Round(2)
	feeRef := models.GenerateDeliveryFeeReference(order.Reference)
	data, err := s.gateway.InitializeTransaction(ctx, &TransactionRequest{
		Email:     order.Email,
		Amount:    models.ToSubunits(fee),
		Currency:  order.Currency,
		Reference: feeRef,
		Metadata: map[string]string{
			"order_reference": order.Reference,
			"purpose":         "delivery_fee",
		},
	})
	if err != nil {
		return nil, err
	}

	if err := s.orders.SetDeliveryFeeQuote(ctx, order.ID, fee, feeRef); err != nil {
		return nil, err
	}
	order.DeliveryFee = decimal.NullDecimal{Decimal: fee, Valid: true}
	order.DeliveryFeeReference = sql.NullString{String: feeRef, Valid: true}

	if err := s.notifier.SendDeliveryFeeRequest(ctx, order, data.AuthorizationURL); err != nil {
		log.Error().Err(err).Str("reference", order.Reference).Msg("failed to send delivery fee request")
	}

	log.Info().
		Str("reference", order.Reference).
		Str("fee_reference", feeRef).
		Str("fee", fee.StringFixed(2)).
		Msg("delivery fee quoted")

	return &DeliveryFeeQuote{Order: order, Reference: feeRef, AuthorizationURL: data.AuthorizationURL}, nil
}

// ListOrders searches orders for the admin listing.
func (s *OrderService) ListOrders(ctx context.Context, filters repositories.OrderSearchFilters) ([]*models.Order, int, error) {
	if filters.Limit <= 0 || filters.Limit > 100 {
		filters.Limit = 20
	}
	if filters.Offset < 0 {
		filters.Offset = 0
	}
	return s.orders.Search(ctx, filters)
}

// PaymentHistory returns the recorded webhook deliveries for an order,
// including those for its delivery-fee payment.
func (s *OrderService) PaymentHistory(ctx context.Context, reference string) ([]*models.PaymentEvent, error) {
	order, err := s.orders.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}

	events, err := s.events.ListByReference(ctx, order.Reference)
	if err != nil {
		return nil, err
	}
	if order.DeliveryFeeReference.Valid {
		feeEvents, err := s.events.ListByReference(ctx, order.DeliveryFeeReference.String)
		if err != nil {
			return nil, err
		}
		events = append(events, feeEvents...)
	}
	return events, nil
}
