package services

import (
	"context"
	"encoding/json"
	"errors"

	"storefront/internal/models"

	"github.com/rs/zerolog/log"
)

// WebhookService authenticates and applies Paystack event deliveries.
type WebhookService struct {
	gateway    PaymentGateway
	orders     OrderRepository
	events     PaymentEventRepository
	reconciler *PaymentReconciler
}

// NewWebhookService creates a new webhook service
func NewWebhookService(gateway PaymentGateway, orders OrderRepository, events PaymentEventRepository, reconciler *PaymentReconciler) *WebhookService {
	return &WebhookService{
		gateway:    gateway,
		orders:     orders,
		events:     events,
		reconciler: reconciler,
	}
}

// HandleEvent verifies the signature of body and applies the event. The
// signature is checked before anything is read from the database.
func (s *WebhookService) HandleEvent(ctx context.Context, body []byte, signature string) (models.WebhookOutcome, error) {
	if len(body) == 0 {
		return "", models.ErrMissingBody
	}
	if !s.gateway.VerifyWebhookSignature(body, signature) {
		log.Warn().Int("body_bytes", len(body)).Msg("webhook signature rejected")
		return "", models.ErrInvalidSignature
	}

	var event models.PaystackEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Warn().Err(err).Msg("webhook payload is not valid JSON")
		return models.OutcomeIgnored, nil
	}

	reference := event.Data.Reference
	if reference == "" {
		log.Warn().Str("event", event.Event).Msg("webhook event without reference")
		return models.OutcomeIgnored, nil
	}

	outcome, err := s.dispatch(ctx, &event)
	if err != nil {
		log.Error().Err(err).Str("event", event.Event).Str("reference", reference).Msg("webhook processing failed")
		return "", err
	}

	s.record(ctx, &event, outcome, body)

	log.Info().
		Str("event", event.Event).
		Str("reference", reference).
		Str("outcome", string(outcome)).
		Msg("webhook handled")
	return outcome, nil
}

func (s *WebhookService) dispatch(ctx context.Context, event *models.PaystackEvent) (models.WebhookOutcome, error) {
	reference := event.Data.Reference

	if models.IsDeliveryFeeReference(reference) {
		if event.Event != models.EventChargeSuccess {
			return models.OutcomeIgnored, nil
		}
		order, err := s.orders.GetByDeliveryFeeReference(ctx, reference)
		if errors.Is(err, models.ErrOrderNotFound) {
			log.Warn().Str("reference", reference).Msg("delivery fee payment for unknown quote")
			return models.OutcomeIgnored, nil
		}
		if err != nil {
			return "", err
		}
		if !order.DeliveryFee.Valid || models.ToSubunits(order.DeliveryFee.Decimal) != event.Data.Amount {
			log.Warn().
				Str("reference", reference).
				Int64("paid", event.Data.Amount).
				Msg("delivery fee amount mismatch")
			return models.OutcomeIgnored, nil
		}
		return s.reconciler.MarkDeliveryFeePaid(ctx, order)
	}

	if event.Event != models.EventChargeSuccess && event.Event != models.EventChargeFailed {
		return models.OutcomeIgnored, nil
	}

	order, err := s.orders.GetByReference(ctx, reference)
	if errors.Is(err, models.ErrOrderNotFound) {
		log.Warn().Str("reference", reference).Msg("webhook for unknown order")
		return models.OutcomeIgnored, nil
	}
	if err != nil {
		return "", err
	}

	if event.Event == models.EventChargeFailed {
		return s.reconciler.Fail(ctx, order)
	}

	if event.Data.Amount != order.AmountInSubunits() {
		log.Warn().
			Str("reference", reference).
			Int64("paid", event.Data.Amount).
			Int64("expected", order.AmountInSubunits()).
			Msg("payment amount mismatch")
		return models.OutcomeIgnored, nil
	}
	return s.reconciler.Complete(ctx, order)
}

func (s *WebhookService) record(ctx context.Context, event *models.PaystackEvent, outcome models.WebhookOutcome, body []byte) {
	if s.events == nil {
		return
	}
	err := s.events.Create(ctx, &models.PaymentEvent{
		Reference: event.Data.Reference,
		Event:     event.Event,
		Outcome:   outcome,
		Payload:   models.RawPayload(body),
	})
	if err != nil {
		log.Error().Err(err).Str("reference", event.Data.Reference).Msg("failed to record payment event")
	}
}
