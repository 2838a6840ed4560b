package models

import (
	"database/sql"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus represents the payment state of an order
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// CanTransitionTo reports whether the state machine allows moving to next.
// Completed and failed are terminal.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	return s == PaymentPending && (next == PaymentCompleted || next == PaymentFailed)
}

// IsTerminal returns true once no further transition is possible
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentCompleted || s == PaymentFailed
}

// Address is a shipping or billing address snapshot stored as JSONB.
type Address struct {
	FullName   string `json:"full_name" validate:"required,max=255"`
	Line1      string `json:"line1" validate:"required,max=255"`
	Line2      string `json:"line2,omitempty" validate:"max=255"`
	City       string `json:"city" validate:"required,max=100"`
	State      string `json:"state,omitempty" validate:"max=100"`
	PostalCode string `json:"postal_code,omitempty" validate:"max=20"`
	Country    string `json:"country" validate:"required,max=100"`
	Phone      string `json:"phone,omitempty" validate:"max=50"`
}

func (a Address) Value() (driver.Value, error) {
	return marshalJSONString(a)
}

func (a *Address) Scan(src interface{}) error {
	return scanJSON(src, a)
}

// NullableAddress is an optional address column.
type NullableAddress struct {
	Address *Address
}

func (n NullableAddress) Value() (driver.Value, error) {
	if n.Address == nil {
		return nil, nil
	}
	return marshalJSONString(n.Address)
}

func (n *NullableAddress) Scan(src interface{}) error {
	if src == nil {
		n.Address = nil
		return nil
	}
	n.Address = &Address{}
	return scanJSON(src, n.Address)
}

func (n NullableAddress) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.Address)
}

// Order represents a placed order. Everything except payment bookkeeping is
// frozen at creation.
type Order struct {
	ID                   int                 `json:"id" db:"id"`
	Reference            string              `json:"reference" db:"reference"`
	IdempotencyKey       sql.NullString      `json:"-" db:"idempotency_key"`
	UserID               sql.NullInt64       `json:"-" db:"user_id"`
	CartID               sql.NullInt64       `json:"-" db:"cart_id"`
	Email                string              `json:"email" db:"email"`
	CustomerName         string              `json:"customer_name" db:"customer_name"`
	Phone                string              `json:"phone" db:"phone"`
	ShippingAddress      Address             `json:"shipping_address" db:"shipping_address"`
	BillingAddress       NullableAddress     `json:"billing_address" db:"billing_address"`
	Country              string              `json:"country" db:"country"`
	Currency             string              `json:"currency" db:"currency"`
	Subtotal             decimal.Decimal     `json:"subtotal" db:"subtotal"`
	Discount             decimal.Decimal     `json:"discount" db:"discount"`
	Tax                  decimal.Decimal     `json:"tax" db:"tax"`
	Shipping             decimal.Decimal     `json:"shipping" db:"shipping"`
	Total                decimal.Decimal     `json:"total" db:"total"`
	ShippingPending      bool                `json:"shipping_pending" db:"shipping_pending"`
	CouponCode           sql.NullString      `json:"-" db:"coupon_code"`
	PaymentMethod        string              `json:"payment_method" db:"payment_method"`
	PaymentStatus        PaymentStatus       `json:"payment_status" db:"payment_status"`
	AuthorizationURL     string              `json:"authorization_url,omitempty" db:"authorization_url"`
	AccessCode           string              `json:"access_code,omitempty" db:"access_code"`
	EmailSent            bool                `json:"-" db:"email_sent"`
	DeliveryFee          decimal.NullDecimal `json:"delivery_fee" db:"delivery_fee"`
	DeliveryFeeReference sql.NullString      `json:"-" db:"delivery_fee_reference"`
	DeliveryFeePaid      bool                `json:"delivery_fee_paid" db:"delivery_fee_paid"`
	PaidAt               sql.NullTime        `json:"-" db:"paid_at"`
	CreatedAt            time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at" db:"updated_at"`
	Items                []OrderItem         `json:"items,omitempty" db:"-"`
}

// IsPending returns true if the order is awaiting payment
func (o *Order) IsPending() bool {
	return o.PaymentStatus == PaymentPending
}

// IsCompleted returns true if payment was confirmed
func (o *Order) IsCompleted() bool {
	return o.PaymentStatus == PaymentCompleted
}

// IsDomestic reports whether the order ships inside domesticCountry.
func (o *Order) IsDomestic(domesticCountry string) bool {
	return strings.EqualFold(strings.TrimSpace(o.Country), strings.TrimSpace(domesticCountry))
}

// AmountInSubunits converts the total into the gateway's smallest unit.
func (o *Order) AmountInSubunits() int64 {
	return ToSubunits(o.Total)
}

// GetStatusDisplayName returns a human-readable status name
func (o *Order) GetStatusDisplayName() string {
	switch o.PaymentStatus {
	case PaymentPending:
		return "Pending Payment"
	case PaymentCompleted:
		return "Paid"
	case PaymentFailed:
		return "Payment Failed"
	default:
		return string(o.PaymentStatus)
	}
}

// ToSubunits converts a major-unit amount to kobo/cents.
func ToSubunits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// OrderItem is the frozen snapshot of one cart line.
type OrderItem struct {
	ID            int             `json:"id" db:"id"`
	OrderID       int             `json:"order_id" db:"order_id"`
	ProductType   ProductType     `json:"product_type" db:"product_type"`
	ProductID     sql.NullInt64   `json:"-" db:"product_id"`
	VariantID     sql.NullInt64   `json:"-" db:"variant_id"`
	SizeID        sql.NullInt64   `json:"-" db:"size_id"`
	BundleID      sql.NullInt64   `json:"-" db:"bundle_id"`
	ProductName   string          `json:"product_name" db:"product_name"`
	ColorName     string          `json:"color_name" db:"color_name"`
	SizeName      string          `json:"size_name" db:"size_name"`
	ImageURL      string          `json:"image_url" db:"image_url"`
	Quantity      int             `json:"quantity" db:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price" db:"unit_price"`
	LineTotal     decimal.Decimal `json:"line_total" db:"line_total"`
	BundleDetails BundleSnapshot  `json:"bundle_details,omitempty" db:"bundle_details"`
}

// StockUnits returns every (variant, size) the item consumed and how many.
func (i *OrderItem) StockUnits() []StockUnit {
	if i.ProductType == ProductBundle {
		units := make([]StockUnit, 0, len(i.BundleDetails))
		for _, d := range i.BundleDetails {
			units = append(units, StockUnit{VariantID: d.VariantID, SizeID: d.SizeID, Quantity: i.Quantity})
		}
		return MergeStockUnits(units)
	}
	return []StockUnit{{VariantID: int(i.VariantID.Int64), SizeID: int(i.SizeID.Int64), Quantity: i.Quantity}}
}

// StockUnit is a quantity of one (variant, size).
type StockUnit struct {
	VariantID int
	SizeID    int
	Quantity  int
}

// MergeStockUnits sums quantities for repeated pairs, keeping first-seen order.
func MergeStockUnits(units []StockUnit) []StockUnit {
	index := make(map[[2]int]int, len(units))
	merged := make([]StockUnit, 0, len(units))
	for _, u := range units {
		key := [2]int{u.VariantID, u.SizeID}
		if i, ok := index[key]; ok {
			merged[i].Quantity += u.Quantity
			continue
		}
		index[key] = len(merged)
		merged = append(merged, u)
	}
	return merged
}

// BundleSnapshotItem freezes one bundle selection at order time.
type BundleSnapshotItem struct {
	VariantID   int    `json:"variant_id"`
	SizeID      int    `json:"size_id"`
	ProductName string `json:"product_name"`
	ColorName   string `json:"color_name"`
	SizeName    string `json:"size_name"`
	ImageURL    string `json:"image"`
}

// BundleSnapshot is persisted as a JSON array in order_items.bundle_details.
type BundleSnapshot []BundleSnapshotItem

func (b BundleSnapshot) Value() (driver.Value, error) {
	if b == nil {
		return nil, nil
	}
	return marshalJSONString(b)
}

func (b *BundleSnapshot) Scan(src interface{}) error {
	if src == nil {
		*b = nil
		return nil
	}
	return scanJSON(src, b)
}

// marshalJSONString encodes v as text so JSONB parameters are never bound as bytea.
func marshalJSONString(v interface{}) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func scanJSON(src interface{}, dest interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported JSON column type %T", src)
	}
}

// OrderItemRequest is an inline item for guest checkout.
type OrderItemRequest struct {
	ProductType ProductType       `json:"product_type" validate:"required,oneof=single bundle"`
	VariantID   int               `json:"variant_id,omitempty"`
	SizeID      int               `json:"size_id,omitempty"`
	BundleID    int               `json:"bundle_id,omitempty"`
	Items       []BundleSelection `json:"items,omitempty" validate:"omitempty,dive"`
	Quantity    int               `json:"quantity" validate:"required,gte=1,lte=1000"`
}

// CreateOrderRequest is either a user checkout (UserID set, items come from
// the cart) or a guest checkout (Items set).
type CreateOrderRequest struct {
	UserID          int                `json:"user_id,omitempty" validate:"gte=0"`
	Reference       string             `json:"reference,omitempty"`
	Email           string             `json:"email" validate:"required,email,max=255"`
	CustomerName    string             `json:"customer_name" validate:"required,max=255"`
	Phone           string             `json:"phone,omitempty" validate:"max=50"`
	ShippingAddress Address            `json:"shipping_address" validate:"required"`
	BillingAddress  *Address           `json:"billing_address,omitempty"`
	CouponCode      string             `json:"coupon_code,omitempty" validate:"max=50"`
	ExpectedTotal   *decimal.Decimal   `json:"expected_total,omitempty"`
	Items           []OrderItemRequest `json:"items,omitempty" validate:"omitempty,dive"`
}

var referenceRegex = regexp.MustCompile(`^ORD-[0-9A-Za-z]+-[0-9A-Za-z]+$`)

// Validate validates the order creation payload
func (req *CreateOrderRequest) Validate() error {
	if err := Validate(req); err != nil {
		return err
	}

	if req.UserID == 0 && len(req.Items) == 0 {
		return NewValidationError("items", "guest checkout requires at least one item")
	}

	if req.Reference != "" && !IsOrderReference(req.Reference) {
		return NewValidationError("reference", "format is invalid")
	}

	for i, item := range req.Items {
		if err := validateSelection(item.ProductType, item.VariantID, item.SizeID, item.BundleID, item.Items); err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				return NewValidationError(fmt.Sprintf("items[%d].%s", i, verr.Field), verr.Message)
			}
			return err
		}
	}
	return nil
}

// OrderResult is returned by order creation.
type OrderResult struct {
	Order            *Order `json:"order"`
	AuthorizationURL string `json:"authorization_url,omitempty"`
	AccessCode       string `json:"access_code,omitempty"`
	// Duplicate is set when an existing order was returned.
	Duplicate bool `json:"duplicate"`
	// SameKey is set when the duplicate was found by idempotency key.
	SameKey bool `json:"-"`
}

// GenerateReference creates a reference of the form ORD-<unix millis>-<hex>.
func GenerateReference(now time.Time) string {
	return fmt.Sprintf("ORD-%d-%s", now.UnixMilli(), randomHex(4))
}

// IsOrderReference checks the shape of a main-order reference.
func IsOrderReference(ref string) bool {
	return len(ref) <= 64 && referenceRegex.MatchString(ref)
}

// DeliveryFeePrefix marks references that pay a delivery fee quote.
const DeliveryFeePrefix = "DF-"

// GenerateDeliveryFeeReference derives a delivery-fee reference from an
// order reference.
func GenerateDeliveryFeeReference(orderRef string) string {
	return fmt.Sprintf("%s%s-%s", DeliveryFeePrefix, orderRef, randomHex(3))
}

// IsDeliveryFeeReference reports whether ref belongs to the delivery-fee flow.
func IsDeliveryFeeReference(ref string) bool {
	return strings.HasPrefix(ref, DeliveryFeePrefix)
}

// randomHex returns 2n hex characters taken from the random leading bytes
// of a v4 UUID. n must not exceed 6.
func randomHex(n int) string {
	id := uuid.New()
	return hex.EncodeToString(id[:n])
}

// PriceBreakdown is the server-side pricing of an order or cart.
type PriceBreakdown struct {
	Subtotal        decimal.Decimal `json:"subtotal"`
	Discount        decimal.Decimal `json:"discount"`
	Tax             decimal.Decimal `json:"tax"`
	Shipping        decimal.Decimal `json:"shipping"`
	Total           decimal.Decimal `json:"total"`
	ShippingPending bool            `json:"shipping_pending"`
}

// OrderStatusUpdate is pushed to clients watching an order.
type OrderStatusUpdate struct {
	Reference       string        `json:"reference"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	DeliveryFeePaid bool          `json:"delivery_fee_paid"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// StatusUpdate snapshots the order's current payment state.
func (o *Order) StatusUpdate() OrderStatusUpdate {
	return OrderStatusUpdate{
		Reference:       o.Reference,
		PaymentStatus:   o.PaymentStatus,
		DeliveryFeePaid: o.DeliveryFeePaid,
		UpdatedAt:       time.Now(),
	}
}
