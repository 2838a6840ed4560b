package models

import (
	"database/sql"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ProductClass is the minimum-order-quantity bucket stored on a product.
type ProductClass string

const (
	ClassStandard ProductClass = "standard"
	ClassBrief    ProductClass = "brief"
	ClassGymwear  ProductClass = "gymwear"
)

// CurrentClassVersion is written alongside moq_class by the catalog tooling.
const CurrentClassVersion = 2

var (
	briefKeywords   = []string{"brief", "boxer", "underwear", "trunk"}
	gymwearKeywords = []string{"gym", "activewear", "sportswear"}
)

// InferProductClass derives a class from a product's name and category. It is
// only used to backfill moq_class for products that predate the column.
func InferProductClass(name, category string) ProductClass {
	text := strings.ToLower(name + " " + category)
	for _, kw := range briefKeywords {
		if strings.Contains(text, kw) {
			return ClassBrief
		}
	}

	cat := strings.ToLower(category)
	for _, kw := range gymwearKeywords {
		if strings.Contains(cat, kw) {
			return ClassGymwear
		}
	}
	return ClassStandard
}

func (c ProductClass) Valid() bool {
	switch c {
	case ClassStandard, ClassBrief, ClassGymwear:
		return true
	}
	return false
}

// VariantSize is one sellable (variant, size) pair with its denormalized
// product data.
type VariantSize struct {
	VariantID    int             `json:"variant_id" db:"variant_id"`
	SizeID       int             `json:"size_id" db:"size_id"`
	ProductID    int             `json:"product_id" db:"product_id"`
	ProductName  string          `json:"product_name" db:"product_name"`
	Category     string          `json:"category" db:"category"`
	ProductClass ProductClass    `json:"moq_class" db:"moq_class"`
	ColorName    string          `json:"color_name" db:"color_name"`
	SizeName     string          `json:"size_name" db:"size_name"`
	ImageURL     string          `json:"image_url" db:"image_url"`
	Price        decimal.Decimal `json:"price" db:"price"`
	Stock        int             `json:"stock" db:"stock"`
}

// Label is the human-readable name used in stock messages.
func (vs *VariantSize) Label() string {
	parts := []string{vs.ProductName}
	if vs.ColorName != "" {
		parts = append(parts, vs.ColorName)
	}
	if vs.SizeName != "" {
		parts = append(parts, "size "+vs.SizeName)
	}
	return strings.Join(parts, " / ")
}

// BundleType is the fixed-cardinality bundle kind.
type BundleType string

const (
	BundleThreeInOne BundleType = "3-in-1"
	BundleFiveInOne  BundleType = "5-in-1"
)

// FiveInOneMultiplier is applied to the stored bundle price of 5-in-1 bundles.
var FiveInOneMultiplier = decimal.NewFromFloat(1.5)

// Cardinality returns the number of selections the bundle holds, or 0 for an
// unknown type.
func (t BundleType) Cardinality() int {
	switch t {
	case BundleThreeInOne:
		return 3
	case BundleFiveInOne:
		return 5
	}
	return 0
}

type Bundle struct {
	ID           int             `json:"id" db:"id"`
	ProductID    int             `json:"product_id" db:"product_id"`
	Name         string          `json:"name" db:"name"`
	BundleType   BundleType      `json:"bundle_type" db:"bundle_type"`
	BundlePrice  decimal.Decimal `json:"bundle_price" db:"bundle_price"`
	ImageURL     string          `json:"image_url" db:"image_url"`
	IsActive     bool            `json:"is_active" db:"is_active"`
	ProductName  string          `json:"product_name" db:"product_name"`
	Category     string          `json:"category" db:"category"`
	ProductClass ProductClass    `json:"moq_class" db:"moq_class"`
}

// UnitPrice is the price charged per bundle at cart insertion.
func (b *Bundle) UnitPrice() decimal.Decimal {
	if b.BundleType == BundleFiveInOne {
		return b.BundlePrice.Mul(FiveInOneMultiplier).Round(2)
	}
	return b.BundlePrice
}

type DiscountType string

const (
	DiscountPercent DiscountType = "percent"
	DiscountFixed   DiscountType = "fixed"
)

type Coupon struct {
	Code         string          `json:"code" db:"code"`
	DiscountType DiscountType    `json:"discount_type" db:"discount_type"`
	Value        decimal.Decimal `json:"value" db:"value"`
	IsActive     bool            `json:"is_active" db:"is_active"`
	ExpiresAt    sql.NullTime    `json:"-" db:"expires_at"`
}

// IsUsable reports whether the coupon can be applied at time now.
func (c *Coupon) IsUsable(now time.Time) bool {
	if !c.IsActive {
		return false
	}
	return !c.ExpiresAt.Valid || now.Before(c.ExpiresAt.Time)
}

// Amount is the uncapped discount the coupon grants on subtotal.
func (c *Coupon) Amount(subtotal decimal.Decimal) decimal.Decimal {
	switch c.DiscountType {
	case DiscountPercent:
		return subtotal.Mul(c.Value).Div(decimal.NewFromInt(100)).Round(2)
	case DiscountFixed:
		return c.Value
	}
	return decimal.Zero
}
