package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"storefront/internal/models"

	"github.com/rs/zerolog/log"
)

// PaystackSignatureHeader carries the HMAC of the webhook body.
const PaystackSignatureHeader = "X-Paystack-Signature"

// maxWebhookBytes bounds a webhook delivery.
const maxWebhookBytes = 1 << 20

// WebhookProcessor applies an authenticated gateway event.
type WebhookProcessor interface {
	HandleEvent(ctx context.Context, body []byte, signature string) (models.WebhookOutcome, error)
}

// PaymentHandler receives Paystack webhooks
type PaymentHandler struct {
	webhooks WebhookProcessor
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(webhooks WebhookProcessor) *PaymentHandler {
	return &PaymentHandler{webhooks: webhooks}
}

// PaystackWebhook handles event deliveries. Signature and body problems
// answer 400 so Paystack does not retry them; processing failures answer 500
// so it does.
func (h *PaymentHandler) PaystackWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		log.Warn().Err(err).Msg("failed to read webhook body")
		writeError(w, http.StatusBadRequest, models.ErrMissingBody.Error())
		return
	}

	outcome, err := h.webhooks.HandleEvent(r.Context(), body, r.Header.Get(PaystackSignatureHeader))
	if err != nil {
		if errors.Is(err, models.ErrInvalidSignature) || errors.Is(err, models.ErrMissingBody) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Error().Err(err).Msg("webhook processing failed")
		writeError(w, http.StatusInternalServerError, "webhook processing failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": string(outcome)})
}
