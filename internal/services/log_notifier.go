package services

import (
	"context"

	"storefront/internal/models"

	"github.com/rs/zerolog/log"
)

// LogNotifier writes notifications to the log instead of sending them. It is
// used when no Resend API key is configured.
type LogNotifier struct{}

// NewNotifier returns a Resend notifier when an API key is configured and a
// LogNotifier otherwise.
func NewNotifier(config ResendConfig) Notifier {
	if config.APIKey != "" {
		log.Info().Msg("Email service: using Resend API")
		return NewResendNotifier(config)
	}
	log.Info().Msg("Email service: using log notifier (no Resend API key provided)")
	return &LogNotifier{}
}

func (n *LogNotifier) SendOrderConfirmation(ctx context.Context, order *models.Order) error {
	log.Info().
		Str("reference", order.Reference).
		Str("email", order.Email).
		Str("total", order.Total.StringFixed(2)).
		Int("items", len(order.Items)).
		Msg("mock email: order confirmation")
	return nil
}

func (n *LogNotifier) SendDeliveryFeeQuoteNeeded(ctx context.Context, order *models.Order) error {
	log.Info().
		Str("reference", order.Reference).
		Str("country", order.Country).
		Msg("mock email: delivery fee quote needed")
	return nil
}

func (n *LogNotifier) SendDeliveryFeeRequest(ctx context.Context, order *models.Order, paymentURL string) error {
	log.Info().
		Str("reference", order.Reference).
		Str("email", order.Email).
		Str("payment_url", paymentURL).
		Msg("mock email: delivery fee request")
	return nil
}
