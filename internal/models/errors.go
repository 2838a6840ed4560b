package models

import (
	"errors"
	"fmt"
)

// Common errors used throughout the application
var (
	ErrOrderNotFound        = errors.New("order not found")
	ErrCartNotFound         = errors.New("cart not found")
	ErrCartItemNotFound     = errors.New("cart item not found")
	ErrVariantSizeNotFound  = errors.New("product variant and size combination not found")
	ErrBundleNotFound       = errors.New("bundle not found")
	ErrCouponNotFound       = errors.New("coupon not found")
	ErrInvalidCoupon        = errors.New("coupon is not valid")
	ErrUnauthorized         = errors.New("unauthorized access")
	ErrForbidden            = errors.New("forbidden")
	ErrInvalidInput         = errors.New("invalid input")
	ErrDuplicateEntry       = errors.New("duplicate entry")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrMinimumQuantity      = errors.New("minimum order quantity not met")
	ErrInvalidBundle        = errors.New("invalid bundle composition")
	ErrTotalMismatch        = errors.New("order total does not match server calculation")
	ErrInvalidSignature     = errors.New("invalid webhook signature")
	ErrMissingBody          = errors.New("missing request body")
	ErrGatewayUnavailable   = errors.New("payment service is experiencing high traffic, please try again shortly")
	ErrInvalidStatusChange  = errors.New("invalid payment status transition")
	ErrDeliveryFeeNotNeeded = errors.New("order does not require a delivery fee")
)

// ValidationError describes a malformed or missing request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// StockError reports the exact quantity still available.
type StockError struct {
	Label     string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	if e.Available <= 0 {
		return fmt.Sprintf("%s is out of stock", e.Label)
	}
	return fmt.Sprintf("only %d left in stock for %s (requested %d)", e.Available, e.Label, e.Requested)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }

// MinimumQuantityError reports how many more briefs the cart needs.
type MinimumQuantityError struct {
	Remaining int
}

func (e *MinimumQuantityError) Error() string {
	noun := "briefs"
	if e.Remaining == 1 {
		noun = "brief"
	}
	return fmt.Sprintf("briefs have a minimum order of %d: add %d more %s", MinimumBriefQuantity, e.Remaining, noun)
}

func (e *MinimumQuantityError) Unwrap() error { return ErrMinimumQuantity }

// DuplicateOrderError carries the order that already owns a reference or
// idempotency key.
type DuplicateOrderError struct {
	Order *Order
}

func (e *DuplicateOrderError) Error() string {
	return fmt.Sprintf("order %s already exists", e.Order.Reference)
}

func (e *DuplicateOrderError) Unwrap() error { return ErrDuplicateEntry }
