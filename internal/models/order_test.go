package models

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validAddress() Address {
	return Address{
		FullName: "Ada Obi",
		Line1:    "12 Marina Road",
		City:     "Lagos",
		State:    "Lagos",
		Country:  "Nigeria",
	}
}

func TestPaymentStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from PaymentStatus
		to   PaymentStatus
		want bool
	}{
		{PaymentPending, PaymentCompleted, true},
		{PaymentPending, PaymentFailed, true},
		{PaymentPending, PaymentPending, false},
		{PaymentCompleted, PaymentFailed, false},
		{PaymentCompleted, PaymentPending, false},
		{PaymentFailed, PaymentCompleted, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}

	assert.False(t, PaymentPending.IsTerminal())
	assert.True(t, PaymentCompleted.IsTerminal())
	assert.True(t, PaymentFailed.IsTerminal())
}

func TestCreateOrderRequest_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(r *CreateOrderRequest)
		wantField string
	}{
		{
			name:   "user checkout",
			mutate: func(r *CreateOrderRequest) { r.Items = nil; r.UserID = 7 },
		},
		{
			name: "guest checkout with single item",
		},
		{
			name:      "missing email",
			mutate:    func(r *CreateOrderRequest) { r.Email = "" },
			wantField: "email",
		},
		{
			name:      "malformed email",
			mutate:    func(r *CreateOrderRequest) { r.Email = "not-an-email" },
			wantField: "email",
		},
		{
			name:      "missing address line",
			mutate:    func(r *CreateOrderRequest) { r.ShippingAddress.Line1 = "" },
			wantField: "shipping_address.line1",
		},
		{
			name:      "guest without items",
			mutate:    func(r *CreateOrderRequest) { r.Items = nil },
			wantField: "items",
		},
		{
			name:      "bad reference",
			mutate:    func(r *CreateOrderRequest) { r.Reference = "INVALID-123" },
			wantField: "reference",
		},
		{
			name:   "client supplied reference",
			mutate: func(r *CreateOrderRequest) { r.Reference = "ORD-1700000000000-ab12cd34" },
		},
		{
			name: "bundle item with wrong cardinality",
			mutate: func(r *CreateOrderRequest) {
				r.Items = []OrderItemRequest{{
					ProductType: ProductBundle,
					BundleID:    3,
					Quantity:    1,
					Items:       []BundleSelection{{VariantID: 1, SizeID: 1}, {VariantID: 2, SizeID: 1}},
				}}
			},
			wantField: "items[0].items",
		},
		{
			name: "single item without size",
			mutate: func(r *CreateOrderRequest) {
				r.Items = []OrderItemRequest{{ProductType: ProductSingle, VariantID: 1, Quantity: 1}}
			},
			wantField: "items[0].size_id",
		},
		{
			name: "item quantity above line limit",
			mutate: func(r *CreateOrderRequest) {
				r.Items[0].Quantity = MaxLineQuantity + 1
			},
			wantField: "items[0].quantity",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &CreateOrderRequest{
				Email:           "ada@example.com",
				CustomerName:    "Ada Obi",
				ShippingAddress: validAddress(),
				Items: []OrderItemRequest{
					{ProductType: ProductSingle, VariantID: 1, SizeID: 2, Quantity: 1},
				},
			}
			if tt.mutate != nil {
				tt.mutate(req)
			}

			err := req.Validate()
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}

			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
			assert.Equal(t, tt.wantField, verr.Field)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestGenerateReference(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	ref := GenerateReference(now)

	assert.True(t, strings.HasPrefix(ref, "ORD-1700000000123-"))
	assert.Len(t, strings.TrimPrefix(ref, "ORD-1700000000123-"), 8)
	assert.True(t, IsOrderReference(ref))
	assert.NotEqual(t, ref, GenerateReference(now))
}

func TestDeliveryFeeReference(t *testing.T) {
	ref := GenerateDeliveryFeeReference("ORD-1700000000123-ab12cd34")

	assert.True(t, IsDeliveryFeeReference(ref))
	assert.True(t, strings.HasPrefix(ref, "DF-ORD-1700000000123-ab12cd34-"))
	assert.Len(t, strings.TrimPrefix(ref, "DF-ORD-1700000000123-ab12cd34-"), 6)
	assert.False(t, IsDeliveryFeeReference("ORD-1700000000123-ab12cd34"))
	assert.False(t, IsOrderReference(ref))
}

func TestToSubunits(t *testing.T) {
	tests := []struct {
		amount string
		want   int64
	}{
		{"0", 0},
		{"2500", 250000},
		{"10499.99", 1049999},
		{"0.005", 1},
	}
	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			assert.Equal(t, tt.want, ToSubunits(decimal.RequireFromString(tt.amount)))
		})
	}
}

func TestOrderItem_StockUnits(t *testing.T) {
	t.Run("single", func(t *testing.T) {
		item := OrderItem{ProductType: ProductSingle, Quantity: 3}
		item.VariantID.Int64, item.VariantID.Valid = 4, true
		item.SizeID.Int64, item.SizeID.Valid = 2, true

		assert.Equal(t, []StockUnit{{VariantID: 4, SizeID: 2, Quantity: 3}}, item.StockUnits())
	})

	t.Run("bundle merges repeated selections", func(t *testing.T) {
		item := OrderItem{
			ProductType: ProductBundle,
			Quantity:    2,
			BundleDetails: BundleSnapshot{
				{VariantID: 1, SizeID: 1},
				{VariantID: 2, SizeID: 1},
				{VariantID: 1, SizeID: 1},
			},
		}

		assert.Equal(t, []StockUnit{
			{VariantID: 1, SizeID: 1, Quantity: 4},
			{VariantID: 2, SizeID: 1, Quantity: 2},
		}, item.StockUnits())
	})
}

func TestAddress_ScanValue(t *testing.T) {
	addr := validAddress()
	v, err := addr.Value()
	require.NoError(t, err)
	require.IsType(t, "", v)

	var scanned Address
	require.NoError(t, scanned.Scan([]byte(v.(string))))
	assert.Equal(t, addr, scanned)

	var nullable NullableAddress
	require.NoError(t, nullable.Scan(nil))
	assert.Nil(t, nullable.Address)
	nv, err := nullable.Value()
	require.NoError(t, err)
	assert.Nil(t, nv)
}

func TestErrorMessages(t *testing.T) {
	stock := &StockError{Label: "Brief / Black / size M", Requested: 5, Available: 2}
	assert.Equal(t, "only 2 left in stock for Brief / Black / size M (requested 5)", stock.Error())
	assert.ErrorIs(t, stock, ErrInsufficientStock)

	out := &StockError{Label: "Brief", Requested: 1}
	assert.Equal(t, "Brief is out of stock", out.Error())

	assert.Equal(t, "briefs have a minimum order of 3: add 1 more brief", (&MinimumQuantityError{Remaining: 1}).Error())
	assert.Equal(t, "briefs have a minimum order of 3: add 2 more briefs", (&MinimumQuantityError{Remaining: 2}).Error())
	assert.ErrorIs(t, &MinimumQuantityError{Remaining: 1}, ErrMinimumQuantity)

	dup := &DuplicateOrderError{Order: &Order{Reference: "ORD-1-a"}}
	assert.ErrorIs(t, dup, ErrDuplicateEntry)
}
