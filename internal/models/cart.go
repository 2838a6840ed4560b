package models

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ProductType distinguishes single-product lines from bundle lines.
type ProductType string

const (
	ProductSingle ProductType = "single"
	ProductBundle ProductType = "bundle"
)

// MaxLineQuantity caps the quantity of one cart or order line. It matches
// the lte tag on request quantities.
const MaxLineQuantity = 1000

// NewQuantityLimitError reports a merged line growing past MaxLineQuantity.
func NewQuantityLimitError() error {
	return NewValidationError("quantity", fmt.Sprintf("must be at most %d per line", MaxLineQuantity))
}

// Cart is the persisted cart row. Total is a write-through cache of the
// priced line items.
type Cart struct {
	ID        int             `json:"id" db:"id"`
	UserID    int             `json:"user_id" db:"user_id"`
	Total     decimal.Decimal `json:"total" db:"total"`
	Country   string          `json:"country" db:"country"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// CartLine is a cart_items row joined with its display data.
type CartLine struct {
	ID              int              `json:"id" db:"id"`
	CartID          int              `json:"cart_id" db:"cart_id"`
	ProductType     ProductType      `json:"product_type" db:"product_type"`
	VariantID       int              `json:"variant_id,omitempty" db:"variant_id"`
	SizeID          int              `json:"size_id,omitempty" db:"size_id"`
	BundleID        int              `json:"bundle_id,omitempty" db:"bundle_id"`
	BundleSignature string           `json:"-" db:"bundle_signature"`
	BundleType      BundleType       `json:"bundle_type,omitempty" db:"bundle_type"`
	Quantity        int              `json:"quantity" db:"quantity"`
	Price           decimal.Decimal  `json:"price" db:"price"`
	ProductID       int              `json:"product_id" db:"product_id"`
	ProductName     string           `json:"product_name" db:"product_name"`
	Category        string           `json:"category" db:"category"`
	ProductClass    ProductClass     `json:"-" db:"moq_class"`
	ColorName       string           `json:"color_name,omitempty" db:"color_name"`
	SizeName        string           `json:"size_name,omitempty" db:"size_name"`
	ImageURL        string           `json:"image_url" db:"image_url"`
	BundleItems     []CartBundleItem `json:"bundle_items,omitempty" db:"-"`
}

// LineTotal is price × quantity.
func (l *CartLine) LineTotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// CartBundleItem is one selection inside a bundle line.
type CartBundleItem struct {
	ID          int    `json:"id" db:"id"`
	CartItemID  int    `json:"cart_item_id" db:"cart_item_id"`
	VariantID   int    `json:"variant_id" db:"variant_id"`
	SizeID      int    `json:"size_id" db:"size_id"`
	Position    int    `json:"position" db:"position"`
	ProductName string `json:"product_name" db:"product_name"`
	ColorName   string `json:"color_name" db:"color_name"`
	SizeName    string `json:"size_name" db:"size_name"`
	ImageURL    string `json:"image_url" db:"image_url"`
}

// CartView is the priced cart returned to clients.
type CartView struct {
	CartID   int             `json:"cartId"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
	Items    []CartLine      `json:"items"`
	Warning  string          `json:"warning,omitempty"`
}

// EmptyCartView is returned for users without a cart.
func EmptyCartView() *CartView {
	return &CartView{
		Subtotal: decimal.Zero,
		Tax:      decimal.Zero,
		Total:    decimal.Zero,
		Items:    []CartLine{},
	}
}

// BundleSelection is one (variant, size) choice inside a bundle.
type BundleSelection struct {
	VariantID int `json:"variant_id" validate:"required,gt=0"`
	SizeID    int `json:"size_id" validate:"required,gt=0"`
}

// CanonicalSelections returns a sorted copy of items.
func CanonicalSelections(items []BundleSelection) []BundleSelection {
	sorted := make([]BundleSelection, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].VariantID != sorted[j].VariantID {
			return sorted[i].VariantID < sorted[j].VariantID
		}
		return sorted[i].SizeID < sorted[j].SizeID
	})
	return sorted
}

// BundleSignature is the canonical key of a bundle configuration. Two
// selections in any order share a signature.
func BundleSignature(items []BundleSelection) string {
	parts := make([]string, 0, len(items))
	for _, it := range CanonicalSelections(items) {
		parts = append(parts, fmt.Sprintf("%d:%d", it.VariantID, it.SizeID))
	}
	return strings.Join(parts, ",")
}

type AddToCartRequest struct {
	UserID      int               `json:"user_id" validate:"required,gt=0"`
	ProductType ProductType       `json:"product_type" validate:"required,oneof=single bundle"`
	VariantID   int               `json:"variant_id,omitempty"`
	SizeID      int               `json:"size_id,omitempty"`
	BundleID    int               `json:"bundle_id,omitempty"`
	Items       []BundleSelection `json:"items,omitempty" validate:"omitempty,dive"`
	Quantity    int               `json:"quantity" validate:"required,gte=1,lte=1000"`
	Country     string            `json:"country,omitempty" validate:"max=100"`
}

// Validate checks the request shape. Bundle cardinality is checked against
// the bundle definition by the cart service.
func (req *AddToCartRequest) Validate() error {
	if req.Quantity < 1 {
		return NewValidationError("quantity", "must be at least 1")
	}
	if err := Validate(req); err != nil {
		return err
	}
	return validateSelection(req.ProductType, req.VariantID, req.SizeID, req.BundleID, req.Items)
}

type UpdateCartItemRequest struct {
	Quantity int `json:"quantity" validate:"required,gte=1,lte=1000"`
}

func (req *UpdateCartItemRequest) Validate() error {
	if req.Quantity < 1 {
		return NewValidationError("quantity", "must be a positive whole number")
	}
	return Validate(req)
}

func validateSelection(productType ProductType, variantID, sizeID, bundleID int, items []BundleSelection) error {
	switch productType {
	case ProductSingle:
		if variantID <= 0 {
			return NewValidationError("variant_id", "is required for single products")
		}
		if sizeID <= 0 {
			return NewValidationError("size_id", "is required for single products")
		}
	case ProductBundle:
		if bundleID <= 0 {
			return NewValidationError("bundle_id", "is required for bundles")
		}
		if len(items) == 0 {
			return NewValidationError("items", "are required for bundles")
		}
		if len(items) != BundleThreeInOne.Cardinality() && len(items) != BundleFiveInOne.Cardinality() {
			return NewValidationError("items", fmt.Sprintf("bundles hold %d or %d items, got %d",
				BundleThreeInOne.Cardinality(), BundleFiveInOne.Cardinality(), len(items)))
		}
	default:
		return NewValidationError("product_type", "must be one of: single bundle")
	}
	return nil
}
