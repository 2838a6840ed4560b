package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"storefront/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goodSig = "good-signature"

func chargeEvent(t *testing.T, event, reference string, amount int64) []byte {
	t.Helper()
	body, err := json.Marshal(models.PaystackEvent{
		Event: event,
		Data: models.PaystackEventData{
			Reference: reference,
			Status:    "success",
			Amount:    amount,
			Currency:  "NGN",
		},
	})
	require.NoError(t, err)
	return body
}

func placeOrder(t *testing.T, h *harness, req *models.CreateOrderRequest) *models.Order {
	t.Helper()
	result, err := h.orderSvc.CreateOrder(context.Background(), req, "")
	require.NoError(t, err)
	return result.Order
}

func TestWebhookService_Authentication(t *testing.T) {
	h := newHarness()
	order := placeOrder(t, h, guestOrder(guestSingle(teeWhite, sizeL, 1)))
	body := chargeEvent(t, models.EventChargeSuccess, order.Reference, order.AmountInSubunits())

	_, err := h.webhookSvc.HandleEvent(context.Background(), nil, goodSig)
	assert.ErrorIs(t, err, models.ErrMissingBody)

	_, err = h.webhookSvc.HandleEvent(context.Background(), body, "forged")
	assert.ErrorIs(t, err, models.ErrInvalidSignature)

	_, err = h.webhookSvc.HandleEvent(context.Background(), body, "")
	assert.ErrorIs(t, err, models.ErrInvalidSignature)

	assert.Equal(t, models.PaymentPending, h.store.orderByRef(order.Reference).PaymentStatus)
	assert.Empty(t, h.store.events, "rejected deliveries are not recorded")
}

func TestWebhookService_ChargeSuccess(t *testing.T) {
	ctx := context.Background()
	h := newHarness()

	_, err := h.cartSvc.AddToCart(ctx, addSingle(briefBlackM, sizeM, 3))
	require.NoError(t, err)
	req := guestOrder()
	req.UserID = userID
	order := placeOrder(t, h, req)

	updates, cancel := h.hub.Subscribe(order.Reference)
	defer cancel()

	body := chargeEvent(t, models.EventChargeSuccess, order.Reference, order.AmountInSubunits())
	outcome, err := h.webhookSvc.HandleEvent(ctx, body, goodSig)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeProcessed, outcome)

	stored := h.store.orderByRef(order.Reference)
	assert.Equal(t, models.PaymentCompleted, stored.PaymentStatus)
	assert.True(t, stored.EmailSent)
	assert.Equal(t, []string{order.Reference}, h.notifier.confirmations)
	assert.Empty(t, h.notifier.quoteNeeded)

	view, err := h.cartSvc.GetCart(ctx, userID, "")
	require.NoError(t, err)
	assert.Empty(t, view.Items, "the purchased cart is emptied")
	assert.True(t, view.Total.IsZero())

	select {
	case update := <-updates:
		assert.Equal(t, models.PaymentCompleted, update.PaymentStatus)
	case <-time.After(time.Second):
		t.Fatal("no status update published")
	}

	// Replays are acknowledged without side effects.
	outcome, err = h.webhookSvc.HandleEvent(ctx, body, goodSig)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeAlreadyProcessed, outcome)
	assert.Equal(t, 1, h.notifier.confirmationCount())

	require.Len(t, h.store.events, 2)
	assert.Equal(t, models.OutcomeProcessed, h.store.events[0].Outcome)
	assert.Equal(t, models.OutcomeAlreadyProcessed, h.store.events[1].Outcome)
	assert.JSONEq(t, string(body), string(h.store.events[0].Payload))
}

func TestWebhookService_ConfirmationRetriedOnReplay(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	order := placeOrder(t, h, guestOrder(guestSingle(teeWhite, sizeL, 1)))
	body := chargeEvent(t, models.EventChargeSuccess, order.Reference, order.AmountInSubunits())

	h.notifier.confirmErr = errors.New("smtp down")
	outcome, err := h.webhookSvc.HandleEvent(ctx, body, goodSig)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeProcessed, outcome)
	assert.False(t, h.store.orderByRef(order.Reference).EmailSent, "the claim is released after a failed send")

	h.notifier.confirmErr = nil
	outcome, err = h.webhookSvc.HandleEvent(ctx, body, goodSig)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeAlreadyProcessed, outcome)
	assert.True(t, h.store.orderByRef(order.Reference).EmailSent)
	assert.Equal(t, 1, h.notifier.confirmationCount())
}

func TestWebhookService_InternationalNotifiesAdmin(t *testing.T) {
	h := newHarness()
	req := guestOrder(guestSingle(teeWhite, sizeL, 1))
	req.ShippingAddress = londonAddress()
	order := placeOrder(t, h, req)

	outcome, err := h.webhookSvc.HandleEvent(context.Background(),
		chargeEvent(t, models.EventChargeSuccess, order.Reference, order.AmountInSubunits()), goodSig)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeProcessed, outcome)
	assert.Equal(t, []string{order.Reference}, h.notifier.quoteNeeded)
}

func TestWebhookService_ChargeFailedRestocks(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	order := placeOrder(t, h, guestOrder(
		guestSingle(teeWhite, sizeL, 2),
		models.OrderItemRequest{
			ProductType: models.ProductBundle,
			BundleID:    briefBundleThree,
			Quantity:    2,
			Items:       []models.BundleSelection{sel(briefBlackM, sizeM), sel(briefBlackM, sizeM), sel(briefWhiteM, sizeM)},
		},
	))
	require.Equal(t, 1, h.store.stockOf(teeWhite, sizeL))
	require.Equal(t, 16, h.store.stockOf(briefBlackM, sizeM))
	require.Equal(t, 18, h.store.stockOf(briefWhiteM, sizeM))

	failed := chargeEvent(t, models.EventChargeFailed, order.Reference, order.AmountInSubunits())
	outcome, err := h.webhookSvc.HandleEvent(ctx, failed, goodSig)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeProcessed, outcome)

	assert.Equal(t, models.PaymentFailed, h.store.orderByRef(order.Reference).PaymentStatus)
	assert.Equal(t, 3, h.store.stockOf(teeWhite, sizeL))
	assert.Equal(t, 20, h.store.stockOf(briefBlackM, sizeM))
	assert.Equal(t, 20, h.store.stockOf(briefWhiteM, sizeM))

	outcome, err = h.webhookSvc.HandleEvent(ctx, failed, goodSig)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeAlreadyProcessed, outcome)
	assert.Equal(t, 3, h.store.stockOf(teeWhite, sizeL), "stock is restored once")

	success := chargeEvent(t, models.EventChargeSuccess, order.Reference, order.AmountInSubunits())
	outcome, err = h.webhookSvc.HandleEvent(ctx, success, goodSig)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeIgnored, outcome, "failed is terminal")
	assert.Equal(t, models.PaymentFailed, h.store.orderByRef(order.Reference).PaymentStatus)
}

func TestWebhookService_Ignored(t *testing.T) {
	h := newHarness()
	order := placeOrder(t, h, guestOrder(guestSingle(teeWhite, sizeL, 1)))

	tests := []struct {
		name string
		body []byte
	}{
		{"amount mismatch", chargeEvent(t, models.EventChargeSuccess, order.Reference, order.AmountInSubunits()-1)},
		{"unknown reference", chargeEvent(t, models.EventChargeSuccess, "ORD-1-unknown", 100)},
		{"unhandled event", chargeEvent(t, "transfer.success", order.Reference, order.AmountInSubunits())},
		{"no reference", chargeEvent(t, models.EventChargeSuccess, "", 100)},
		{"malformed json", []byte(`{"event":`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, err := h.webhookSvc.HandleEvent(context.Background(), tt.body, goodSig)
			require.NoError(t, err)
			assert.Equal(t, models.OutcomeIgnored, outcome)
			assert.Equal(t, models.PaymentPending, h.store.orderByRef(order.Reference).PaymentStatus)
		})
	}
}

func TestWebhookService_DeliveryFee(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	req := guestOrder(guestSingle(teeWhite, sizeL, 1))
	req.ShippingAddress = londonAddress()
	order := placeOrder(t, h, req)

	_, err := h.webhookSvc.HandleEvent(ctx, chargeEvent(t, models.EventChargeSuccess, order.Reference, order.AmountInSubunits()), goodSig)
	require.NoError(t, err)

	quote, err := h.orderSvc.QuoteDeliveryFee(ctx, order.Reference, dec("12000"))
	require.NoError(t, err)

	tests := []struct {
		name    string
		body    []byte
		outcome models.WebhookOutcome
		paid    bool
	}{
		{"failed charge is ignored", chargeEvent(t, models.EventChargeFailed, quote.Reference, 1200000), models.OutcomeIgnored, false},
		{"wrong amount is ignored", chargeEvent(t, models.EventChargeSuccess, quote.Reference, 1000), models.OutcomeIgnored, false},
		{"unknown quote is ignored", chargeEvent(t, models.EventChargeSuccess, "DF-ORD-1-x-abcdef", 1200000), models.OutcomeIgnored, false},
		{"matching payment marks it paid", chargeEvent(t, models.EventChargeSuccess, quote.Reference, 1200000), models.OutcomeProcessed, true},
		{"replay", chargeEvent(t, models.EventChargeSuccess, quote.Reference, 1200000), models.OutcomeAlreadyProcessed, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, err := h.webhookSvc.HandleEvent(ctx, tt.body, goodSig)
			require.NoError(t, err)
			assert.Equal(t, tt.outcome, outcome)

			stored := h.store.orderByRef(order.Reference)
			assert.Equal(t, tt.paid, stored.DeliveryFeePaid)
			assert.Equal(t, models.PaymentCompleted, stored.PaymentStatus)
		})
	}

	history, err := h.orderSvc.PaymentHistory(ctx, order.Reference)
	require.NoError(t, err)
	assert.Len(t, history, 5, "one main payment and four fee deliveries for this quote")
}
