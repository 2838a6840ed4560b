package services

import (
	"strings"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

var (
	// InternationalTaxRate applies to every destination outside the domestic country.
	InternationalTaxRate = decimal.NewFromFloat(0.05)
	// FirstOrderDiscountRate is granted on a customer's first paid order.
	FirstOrderDiscountRate = decimal.NewFromFloat(0.05)
)

// Domestic flat shipping rates keyed by lower-cased state.
var defaultShippingRates = map[string]decimal.Decimal{
	"lagos": decimal.NewFromInt(2500),
	"abuja": decimal.NewFromInt(4000),
	"fct":   decimal.NewFromInt(4000),
	"ogun":  decimal.NewFromInt(3500),
	"oyo":   decimal.NewFromInt(4000),
}

var defaultDomesticShipping = decimal.NewFromInt(5000)

// Pricer computes tax, shipping and discounts.
type Pricer struct {
	domesticCountry string
	shippingRates   map[string]decimal.Decimal
	defaultShipping decimal.Decimal
}

// NewPricer creates a pricer for the given home country
func NewPricer(domesticCountry string) *Pricer {
	return &Pricer{
		domesticCountry: strings.TrimSpace(domesticCountry),
		shippingRates:   defaultShippingRates,
		defaultShipping: defaultDomesticShipping,
	}
}

// IsDomestic reports whether country is the store's home country. An empty
// country is treated as domestic.
func (p *Pricer) IsDomestic(country string) bool {
	country = strings.TrimSpace(country)
	return country == "" || strings.EqualFold(country, p.domesticCountry)
}

// DomesticCountry returns the configured home country.
func (p *Pricer) DomesticCountry() string {
	return p.domesticCountry
}

// TaxRate returns 0 for domestic destinations and 5% otherwise.
func (p *Pricer) TaxRate(country string) decimal.Decimal {
	if p.IsDomestic(country) {
		return decimal.Zero
	}
	return InternationalTaxRate
}

// Tax computes tax on amount for a destination.
func (p *Pricer) Tax(amount decimal.Decimal, country string) decimal.Decimal {
	return amount.Mul(p.TaxRate(country)).Round(2)
}

// Shipping returns the flat domestic rate for the address's state. For
// international addresses the fee is quoted later: it returns zero and
// pending=true.
func (p *Pricer) Shipping(addr models.Address) (fee decimal.Decimal, pending bool) {
	if !p.IsDomestic(addr.Country) {
		return decimal.Zero, true
	}
	if rate, ok := p.shippingRates[strings.ToLower(strings.TrimSpace(addr.State))]; ok {
		return rate, false
	}
	return p.defaultShipping, false
}

// Discount combines the first-order discount and an optional coupon, capped
// at subtotal.
func (p *Pricer) Discount(subtotal decimal.Decimal, firstOrder bool, coupon *models.Coupon) decimal.Decimal {
	discount := decimal.Zero
	if firstOrder {
		discount = discount.Add(subtotal.Mul(FirstOrderDiscountRate).Round(2))
	}
	if coupon != nil {
		discount = discount.Add(coupon.Amount(subtotal))
	}
	if discount.GreaterThan(subtotal) {
		return subtotal
	}
	if discount.IsNegative() {
		return decimal.Zero
	}
	return discount
}

// PriceCart returns subtotal, tax and total of cart lines for a destination.
func (p *Pricer) PriceCart(lines []models.CartLine, country string) models.PriceBreakdown {
	subtotal := decimal.Zero
	for i := range lines {
		subtotal = subtotal.Add(lines[i].LineTotal())
	}
	tax := p.Tax(subtotal, country)
	return models.PriceBreakdown{
		Subtotal: subtotal,
		Discount: decimal.Zero,
		Tax:      tax,
		Shipping: decimal.Zero,
		Total:    subtotal.Add(tax),
	}
}

// PriceOrder prices an order. Tax applies to the discounted subtotal.
func (p *Pricer) PriceOrder(subtotal decimal.Decimal, addr models.Address, firstOrder bool, coupon *models.Coupon) models.PriceBreakdown {
	discount := p.Discount(subtotal, firstOrder, coupon)
	tax := p.Tax(subtotal.Sub(discount), addr.Country)
	shipping, pending := p.Shipping(addr)

	return models.PriceBreakdown{
		Subtotal:        subtotal,
		Discount:        discount,
		Tax:             tax,
		Shipping:        shipping,
		Total:           subtotal.Sub(discount).Add(tax).Add(shipping),
		ShippingPending: pending,
	}
}
